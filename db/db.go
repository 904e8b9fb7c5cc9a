package db

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNoRows     = errors.New("no rows found")
	ErrEmailTaken = errors.New("email already registered")
)

// Message states as stored; the client accepts any casing.
const (
	StateSent      = "SENT"
	StateDelivered = "DELIVERED"
	StateSeen      = "SEEN"
)

// Fixed-width so that lexical order in sqlite is chronological.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

type User struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Avatar    string
	LastSeen  time.Time
}

type Message struct {
	ID         int64
	ChatID     string
	SenderID   string
	ReceiverID string
	Content    string
	Type       string
	MediaURL   string
	State      string
	CreatedAt  time.Time
}

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			avatar TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS chats (
			id TEXT PRIMARY KEY,
			first_user TEXT NOT NULL REFERENCES users(id),
			second_user TEXT NOT NULL REFERENCES users(id),
			UNIQUE(first_user, second_user)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT NOT NULL REFERENCES chats(id),
			sender_id TEXT NOT NULL,
			receiver_id TEXT NOT NULL,
			content TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'TEXT',
			media_url TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL DEFAULT 'SENT',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return db.migrate()
}

// migrate adds columns introduced after the first schema.
func (db *DB) migrate() error {
	if !db.columnExists("users", "last_seen") {
		if _, err := db.conn.Exec("ALTER TABLE users ADD COLUMN last_seen TEXT NOT NULL DEFAULT ''"); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) columnExists(table, column string) bool {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return false
	}
	return count > 0
}

// User methods

func (db *DB) CreateUser(firstName, lastName, email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	exists, err := db.UserExists(email)
	if err != nil {
		return User{}, err
	}
	if exists {
		return User{}, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}

	u := User{
		ID:        uuid.NewString(),
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		LastSeen:  time.Now().UTC(),
	}
	_, err = db.conn.Exec(
		"INSERT INTO users (id, first_name, last_name, email, password, last_seen) VALUES (?, ?, ?, ?, ?, ?)",
		u.ID, u.FirstName, u.LastName, u.Email, string(hashed), u.LastSeen.Format(timeLayout),
	)
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// AuthenticateUser returns the user when the password matches, ErrNoRows otherwise.
func (db *DB) AuthenticateUser(email, password string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var hashed string
	err := db.conn.QueryRow("SELECT password FROM users WHERE email = ?", email).Scan(&hashed)
	if err == sql.ErrNoRows {
		return User{}, ErrNoRows
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password)) != nil {
		return User{}, ErrNoRows
	}
	return db.scanUser(db.conn.QueryRow(userSelect+" WHERE email = ?", email))
}

func (db *DB) UserExists(email string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

const userSelect = "SELECT id, first_name, last_name, email, avatar, last_seen FROM users"

func (db *DB) GetUser(id string) (User, error) {
	return db.scanUser(db.conn.QueryRow(userSelect+" WHERE id = ?", id))
}

func (db *DB) ListUsers() ([]User, error) {
	rows, err := db.conn.Query(userSelect + " ORDER BY first_name, last_name, email")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := db.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (db *DB) UpdateLastSeen(id string, t time.Time) error {
	_, err := db.conn.Exec("UPDATE users SET last_seen = ? WHERE id = ?", t.UTC().Format(timeLayout), id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func (db *DB) scanUser(row scanner) (User, error) {
	var u User
	var lastSeen string
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Avatar, &lastSeen)
	if err == sql.ErrNoRows {
		return User{}, ErrNoRows
	}
	if err != nil {
		return User{}, err
	}
	if lastSeen != "" {
		u.LastSeen, _ = time.Parse(timeLayout, lastSeen)
	}
	return u, nil
}

// Chat methods

// GetOrCreateChat returns the chat of an unordered user pair, creating it once.
func (db *DB) GetOrCreateChat(a, b string) (string, error) {
	if a > b {
		a, b = b, a
	}
	if _, err := db.conn.Exec(
		"INSERT OR IGNORE INTO chats (id, first_user, second_user) VALUES (?, ?, ?)",
		uuid.NewString(), a, b,
	); err != nil {
		return "", err
	}
	var id string
	err := db.conn.QueryRow("SELECT id FROM chats WHERE first_user = ? AND second_user = ?", a, b).Scan(&id)
	return id, err
}

func (db *DB) ChatParticipants(chatID string) (string, string, error) {
	var a, b string
	err := db.conn.QueryRow("SELECT first_user, second_user FROM chats WHERE id = ?", chatID).Scan(&a, &b)
	if err == sql.ErrNoRows {
		return "", "", ErrNoRows
	}
	return a, b, err
}

// Message methods

func (db *DB) SaveMessage(m Message) (Message, error) {
	if m.State == "" {
		m.State = StateSent
	}
	if m.Type == "" {
		m.Type = "TEXT"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Microsecond)

	res, err := db.conn.Exec(
		`INSERT INTO messages (chat_id, sender_id, receiver_id, content, type, media_url, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ChatID, m.SenderID, m.ReceiverID, m.Content, m.Type, m.MediaURL, m.State, m.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return Message{}, err
	}
	m.ID, err = res.LastInsertId()
	return m, err
}

func (db *DB) GetMessages(chatID string) ([]Message, error) {
	rows, err := db.conn.Query(`
		SELECT id, chat_id, sender_id, receiver_id, content, type, media_url, state, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Type, &m.MediaURL, &m.State, &created); err != nil {
			return nil, err
		}
		m.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// MarkSeen marks everything reader received in the chat as seen.
func (db *DB) MarkSeen(chatID, readerID string) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET state = ? WHERE chat_id = ? AND receiver_id = ? AND state <> ?",
		StateSeen, chatID, readerID, StateSeen,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/op/go-logging"

	"chatsync/models"
	"chatsync/protocol"
)

var log = logging.MustGetLogger("api")

const (
	authPrefix = "/api/auth"
	v1Prefix   = "/api/v1"
)

// Error is a non-2xx backend response.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Detail)
}

func (e *Error) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return models.ErrUnauthorized
	}
	return nil
}

// Client talks to the REST collaborators: auth, directory, conversations, messages.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for baseURL (scheme://host[:port]).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Credentials is the login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration is the register payload.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// Validate applies the registration form rules.
func (r Registration) Validate() map[string]string {
	problems := make(map[string]string)
	if strings.TrimSpace(r.FirstName) == "" {
		problems["firstName"] = "First name is required"
	}
	if strings.TrimSpace(r.LastName) == "" {
		problems["lastName"] = "Last name is required"
	}
	if r.Email == "" {
		problems["email"] = "Email is required"
	} else if !emailPattern.MatchString(r.Email) {
		problems["email"] = "Email is invalid"
	}
	if r.Password == "" {
		problems["password"] = "Password is required"
	} else if len(r.Password) < 6 {
		problems["password"] = "Password must be at least 6 characters"
	}
	return problems
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, creds Credentials) (*models.Session, error) {
	var resp protocol.AuthResponse
	if err := c.do(ctx, http.MethodPost, authPrefix+"/login", "", creds, &resp); err != nil {
		return nil, err
	}
	return &models.Session{UserID: resp.UserID.String(), Token: resp.Token}, nil
}

// Register creates an account. The returned session may lack a user id;
// callers log in afterwards in that case.
func (c *Client) Register(ctx context.Context, reg Registration) (*models.Session, error) {
	var resp protocol.AuthResponse
	if err := c.do(ctx, http.MethodPost, authPrefix+"/register", "", reg, &resp); err != nil {
		return nil, err
	}
	return &models.Session{UserID: resp.UserID.String(), Token: resp.Token}, nil
}

// Users fetches the directory.
func (c *Client) Users(ctx context.Context, token string) ([]models.Contact, error) {
	var users []protocol.WireUser
	if err := c.do(ctx, http.MethodGet, v1Prefix+"/users", token, nil, &users); err != nil {
		return nil, err
	}
	contacts := make([]models.Contact, 0, len(users))
	for _, u := range users {
		contacts = append(contacts, u.ToContact())
	}
	return contacts, nil
}

// ResolveChat creates or fetches the conversation between sender and receiver.
func (c *Client) ResolveChat(ctx context.Context, token, senderID, receiverID string) (string, error) {
	q := url.Values{}
	q.Set("sender_id", senderID)
	q.Set("receiver_id", receiverID)

	var resp protocol.ChatResponse
	if err := c.do(ctx, http.MethodPost, v1Prefix+"/chats?"+q.Encode(), token, nil, &resp); err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", &Error{Status: http.StatusOK, Detail: "no chat id returned"}
	}
	return resp.Response.String(), nil
}

// History fetches the full message history of a conversation.
func (c *Client) History(ctx context.Context, token, chatID string) ([]protocol.WireMessage, error) {
	var msgs []protocol.WireMessage
	path := v1Prefix + "/messages/chat/" + url.PathEscape(chatID)
	if err := c.do(ctx, http.MethodGet, path, token, nil, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// PostMessage persists one message.
func (c *Client) PostMessage(ctx context.Context, token string, msg protocol.ChatMessage) error {
	return c.do(ctx, http.MethodPost, v1Prefix+"/messages", token, msg, nil)
}

// MarkSeen marks every message of the conversation as seen.
func (c *Client) MarkSeen(ctx context.Context, token, chatID string) error {
	q := url.Values{}
	q.Set("chat-id", chatID)
	return c.do(ctx, http.MethodPatch, v1Prefix+"/messages?"+q.Encode(), token, nil, nil)
}

// UploadMedia sends one file as multipart form data (fields chat-id and file).
func (c *Client) UploadMedia(ctx context.Context, token, chatID, filename string, r io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat-id", chatID); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+v1Prefix+"/messages/upload-media", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return c.send(req, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debugf("%s %s -> %d", req.Method, req.URL.Path, resp.StatusCode)
		return &Error{Status: resp.StatusCode, Detail: errorDetail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// errorDetail extracts "error" or "message" from a JSON body, else the raw text.
func errorDetail(data []byte) string {
	var eb protocol.ErrorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Detail() != "" {
		return eb.Detail()
	}
	return strings.TrimSpace(string(data))
}

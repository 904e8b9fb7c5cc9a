package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
)

// Config holds client engine settings.
type Config struct {
	BackendURL       string        `env:"CHAT_BACKEND_URL"       envDefault:"http://localhost:8080"`
	WebsocketURL     string        `env:"CHAT_WS_URL"`
	ReconnectDelay   time.Duration `env:"CHAT_RECONNECT_DELAY"   envDefault:"5s"`
	TypingTTL        time.Duration `env:"CHAT_TYPING_TTL"        envDefault:"2s"`
	NotifyDismiss    time.Duration `env:"CHAT_NOTIFY_DISMISS"    envDefault:"5s"`
	RequestTimeout   time.Duration `env:"CHAT_REQUEST_TIMEOUT"   envDefault:"15s"`
	Timezone         string        `env:"CHAT_TIMEZONE"          envDefault:"Asia/Kolkata"`
	AppName          string        `env:"CHAT_APP_NAME"          envDefault:"Netronix"`
	LogDir           string        `env:"CHAT_LOG_DIR"           envDefault:"~/.chatsync/logs"`
	SystemAlerts     bool          `env:"CHAT_SYSTEM_ALERTS"     envDefault:"false"`
	NotificationsOff bool          `env:"CHAT_NOTIFICATIONS_OFF" envDefault:"false"`
}

// ServerConfig holds settings of the reference backend daemon.
type ServerConfig struct {
	Addr         string        `env:"CHATD_ADDR"          envDefault:":8080"`
	DBPath       string        `env:"CHATD_DB_PATH"       envDefault:"chatd.db"`
	MediaDir     string        `env:"CHATD_MEDIA_DIR"     envDefault:"media"`
	JWTSecret    string        `env:"CHATD_JWT_SECRET"    envDefault:"change-me"`
	TokenTTL     time.Duration `env:"CHATD_TOKEN_TTL"     envDefault:"24h"`
	LogDir       string        `env:"CHATD_LOG_DIR"       envDefault:"~/.chatsync/logs"`
	MaxUpload    int64         `env:"CHATD_MAX_UPLOAD"    envDefault:"10485760"`
	WriteTimeout time.Duration `env:"CHATD_WRITE_TIMEOUT" envDefault:"10s"`
	ControlPath  string        `env:"CHATD_CONTROL_SOCKET" envDefault:"/tmp/chatd.sock"`
}

// Load reads the client configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServer reads the daemon configuration from the environment.
func LoadServer() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	dir, err := ExpandPath(cfg.LogDir)
	if err != nil {
		return nil, err
	}
	cfg.LogDir = dir
	return cfg, nil
}

func (c *Config) normalize() error {
	c.BackendURL = strings.TrimRight(c.BackendURL, "/")
	if c.WebsocketURL == "" {
		c.WebsocketURL = DeriveWebsocketURL(c.BackendURL)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	dir, err := ExpandPath(c.LogDir)
	if err != nil {
		return err
	}
	c.LogDir = dir
	return nil
}

// Location returns the display time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DeriveWebsocketURL maps http(s)://host to ws(s)://host/ws.
func DeriveWebsocketURL(backendURL string) string {
	u := strings.TrimRight(backendURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// ExpandPath resolves a leading ~ and cleans the path.
func ExpandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", p, err)
	}
	return filepath.Clean(expanded), nil
}

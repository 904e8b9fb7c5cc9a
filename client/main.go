package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/natefinch/lumberjack"
	"github.com/op/go-logging"

	"chatsync/client/ui"
	"chatsync/config"
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} [%{module}] [%{level}] %{message}`,
)

type Options struct {
	Backend      string `short:"b" long:"backend" description:"backend base URL, overrides CHAT_BACKEND_URL"`
	Websocket    string `long:"ws" description:"live channel URL, overrides CHAT_WS_URL"`
	Timezone     string `long:"tz" description:"display time zone, overrides CHAT_TIMEZONE"`
	SystemAlerts bool   `long:"system-alerts" description:"raise a dialog for messages that arrive while away"`
	LogLevel     string `short:"l" long:"loglevel" default:"info" description:"logging level [debug, info, notice, warning, error, critical]"`
}

func main() {
	var opts Options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if opts.Backend != "" {
		cfg.BackendURL = strings.TrimRight(opts.Backend, "/")
		if opts.Websocket == "" && os.Getenv("CHAT_WS_URL") == "" {
			cfg.WebsocketURL = config.DeriveWebsocketURL(cfg.BackendURL)
		}
	}
	if opts.Websocket != "" {
		cfg.WebsocketURL = opts.Websocket
	}
	if opts.Timezone != "" {
		cfg.Timezone = opts.Timezone
	}
	if opts.SystemAlerts {
		cfg.SystemAlerts = true
	}

	if err := setupLogging(cfg.LogDir, opts.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app := ui.NewApp(cfg)
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogging routes all modules to a rotating file. The terminal belongs
// to the UI.
func setupLogging(dir, level string) error {
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return err
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "client.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	backend := logging.AddModuleLevel(logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), fileLogFormat))
	backend.SetLevel(lvl, "")
	logging.SetBackend(backend)
	return nil
}

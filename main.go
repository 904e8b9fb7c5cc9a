package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/natefinch/lumberjack"
	"github.com/op/go-logging"

	"chatsync/config"
	"chatsync/db"
	"chatsync/server"
)

var log = logging.MustGetLogger("main")

var stdoutLogFormat = logging.MustStringFormatter(
	`%{color:reset}%{color}%{time:15:04:05.000} [%{module}] [%{level}] %{message}`,
)

var fileLogFormat = logging.MustStringFormatter(
	`%{time:2006-01-02 15:04:05.000} [%{module}] [%{level}] %{message}`,
)

type Start struct {
	Addr     string `short:"a" long:"addr" description:"listen address, overrides CHATD_ADDR"`
	DBPath   string `long:"db" description:"sqlite database path, overrides CHATD_DB_PATH"`
	MediaDir string `long:"media" description:"directory for uploaded files, overrides CHATD_MEDIA_DIR"`
	LogLevel string `short:"l" long:"loglevel" default:"info" description:"logging level [debug, info, notice, warning, error, critical]"`
}

type Stats struct{}

type Stop struct{}

var parser = flags.NewParser(nil, flags.Default)

func main() {
	parser.AddCommand("start",
		"start the chat backend",
		"The start command serves the REST API and the WebSocket broker",
		&Start{})
	parser.AddCommand("stats",
		"print live connection stats",
		"The stats command queries a running backend over its control socket",
		&Stats{})
	parser.AddCommand("stop",
		"stop a running backend",
		"The stop command asks a running backend to shut down",
		&Stop{})

	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
}

func (x *Start) Execute(args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	if x.Addr != "" {
		cfg.Addr = x.Addr
	}
	if x.DBPath != "" {
		cfg.DBPath = x.DBPath
	}
	if x.MediaDir != "" {
		cfg.MediaDir = x.MediaDir
	}
	if err := setupLogging(cfg.LogDir, x.LogLevel); err != nil {
		return err
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer database.Close()

	srv := server.New(database, cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go startControlSocket(ctx, cfg.ControlPath, srv, cancel)

	err = srv.Start(ctx)
	log.Info("chat backend stopped")
	return err
}

func setupLogging(dir, level string) error {
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return err
	}
	w := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "chatd.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	stdout := logging.AddModuleLevel(logging.NewBackendFormatter(logging.NewLogBackend(os.Stdout, "", 0), stdoutLogFormat))
	file := logging.AddModuleLevel(logging.NewBackendFormatter(logging.NewLogBackend(w, "", 0), fileLogFormat))
	stdout.SetLevel(lvl, "")
	file.SetLevel(lvl, "")
	logging.SetBackend(file, stdout)
	return nil
}

func (x *Stats) Execute(args []string) error {
	return control("stats")
}

func (x *Stop) Execute(args []string) error {
	return control("shutdown")
}

// control sends one command to a running backend and prints its reply.
func control(cmd string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	conn, err := net.DialTimeout("unix", cfg.ControlPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("backend not running: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		return err
	}
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	status, body, _ := strings.Cut(strings.TrimSpace(reply), "|")
	if status != "OK" {
		return fmt.Errorf("%s", body)
	}
	fmt.Println(body)
	return nil
}

func startControlSocket(ctx context.Context, path string, srv *server.Server, shutdown context.CancelFunc) {
	os.Remove(path)

	listener, err := net.Listen("unix", path)
	if err != nil {
		log.Warningf("control socket unavailable: %v", err)
		return
	}
	context.AfterFunc(ctx, func() { listener.Close() })
	defer os.Remove(path)

	log.Infof("control socket listening on %s", path)
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		go handleControlCommand(conn, srv, shutdown)
	}
}

func handleControlCommand(conn net.Conn, srv *server.Server, shutdown context.CancelFunc) {
	defer conn.Close()

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	switch strings.TrimSpace(line) {
	case "stats":
		conn.Write([]byte("OK|" + srv.GetStats() + "\n"))
	case "shutdown":
		conn.Write([]byte("OK|Shutting down\n"))
		log.Notice("shutdown requested over control socket")
		shutdown()
	default:
		conn.Write([]byte("ERROR|Unknown command\n"))
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/appinfo"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/config"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/consolelog"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/jobs"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/session"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/store"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/transport"
	"github.com/c04ch1337/pagi-digital-twin-sub000/internal/tui"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	configPath := fs.String("config", "config.json", "path to config.json")
	backendURL := fs.String("backend", "", "backend websocket URL (overrides config)")
	userID := fs.String("user", "", "user id for the chat route (overrides config)")
	showVersion := fs.Bool("version", false, "print version and exit")
	fs.Parse(args)

	if *showVersion {
		fmt.Println(appinfo.Display())
		return nil
	}

	cfg, err := config.LoadConsoleConfig(*configPath)
	if err != nil {
		return err
	}
	if strings.TrimSpace(*backendURL) != "" {
		cfg.BackendURL = strings.TrimSpace(*backendURL)
	}
	if strings.TrimSpace(*userID) != "" {
		cfg.UserID = strings.TrimSpace(*userID)
	}

	logger, err := openLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.Logf(consolelog.KindInfo, "%s starting backend=%s user=%s agent=%s",
		appinfo.Display(), cfg.BackendURL, cfg.UserID, cfg.AgentID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache session.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		st, err := store.Open(cfg.RedisURL, logger.Kindf(consolelog.KindInfo))
		if err != nil {
			logger.Logf(consolelog.KindWarn, "redis unavailable, running without project cache: %v", err)
		} else {
			defer st.Close()
			cache = st
		}
	}

	sessions := session.NewManager(cfg.AgentID, cache, logger.Kindf(consolelog.KindInfo))
	sessions.Load(ctx)

	tracker := jobs.NewTracker(logger.Kindf(consolelog.KindJob))

	client, err := transport.NewClient(transport.Options{
		BackendURL:      cfg.BackendURL,
		UserID:          cfg.UserID,
		DialTimeout:     cfg.DialTimeout(),
		MaxMessageBytes: cfg.MaxMessageBytes,
		PingInterval:    cfg.PingInterval(),
		Logf:            logger.Kindf(consolelog.KindWS),
	})
	if err != nil {
		return err
	}
	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Logf(consolelog.KindError, "transport stopped: %v", err)
		}
	}()

	return tui.Run(ctx, tui.Options{
		Config:   cfg,
		Logger:   logger,
		Sessions: sessions,
		Tracker:  tracker,
		Client:   client,
	})
}

func openLogger(cfg config.ConsoleConfig) (*consolelog.Logger, error) {
	opts := consolelog.Options{}
	if strings.TrimSpace(cfg.LogFile) != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		opts.File = f
	}
	// The alternate screen owns stdout, so terminal log output stays off
	// while the console runs.
	return consolelog.New(opts), nil
}

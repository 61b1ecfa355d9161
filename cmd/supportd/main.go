package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	apiPkg "github.com/AntonysrmNafi/blockveil-support-bot/internal/api"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/config"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector"
	slackconn "github.com/AntonysrmNafi/blockveil-support-bot/internal/connector/slack"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/connector/telegram"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/directory"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/logbuf"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/ratelimit"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/relay"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/scheduler"
	"github.com/AntonysrmNafi/blockveil-support-bot/internal/ticket"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (file or env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.LoadFromEnv()
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("supportd starting", "bot_id", cfg.Bot.ID)

	// 1. Ticket store. With no data_dir the whole state is process-lifetime.
	dbPath := ticket.MemoryPath
	if cfg.Bot.DataDir != "" {
		os.MkdirAll(cfg.Bot.DataDir, 0o755)
		dbPath = filepath.Join(cfg.Bot.DataDir, "tickets.db")
	}
	store, err := ticket.NewSQLiteStore(dbPath)
	if err != nil {
		logger.Error("failed to open ticket store", "path", dbPath, "error", err)
		os.Exit(1)
	}

	// 2. Routing dependencies
	gen := ticket.NewGenerator()
	if cfg.Relay.TicketPrefix != "" {
		gen.Prefix = cfg.Relay.TicketPrefix
	}
	limiter := ratelimit.New(
		time.Duration(cfg.Relay.RateWindowSeconds)*time.Second,
		cfg.Relay.RateBurst,
	)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Connectors. The router is created after them, so the inbound handler
	// closes over a forward-declared pointer.
	var router *relay.Router
	inbound := func(ctx context.Context, msg connector.InboundMessage) error {
		return router.HandleInbound(ctx, msg)
	}

	tgConn, err := telegram.New(
		telegram.Config{
			Token:       cfg.Connectors.Telegram.Token,
			StaffChatID: cfg.Connectors.Telegram.StaffChatID,
			AllowFrom:   cfg.Connectors.Telegram.AllowFrom,
		},
		inbound,
		logger.With("connector", "telegram"),
	)
	if err != nil {
		logger.Error("failed to init telegram connector", "error", err)
		os.Exit(1)
	}

	staffChannel, staffDest := cfg.StaffDestination()
	var staffConn connector.Connector = tgConn
	if staffChannel == "slack" {
		slackC, err := slackconn.New(
			slackconn.Config{
				BotToken:     cfg.Connectors.Slack.BotToken,
				AppToken:     cfg.Connectors.Slack.AppToken,
				StaffChannel: cfg.Connectors.Slack.StaffChannel,
			},
			inbound,
			logger.With("connector", "slack"),
		)
		if err != nil {
			logger.Error("failed to init slack connector", "error", err)
			os.Exit(1)
		}
		staffConn = slackC
	}

	// 4. Router
	router = relay.New(relay.Options{
		Staff:     staffConn,
		StaffDest: staffDest,
		Store:     store,
		Directory: directory.New(),
		Limiter:   limiter,
		Generator: gen,
		Logger:    logger.With("component", "relay"),
	})
	router.RegisterConnector(tgConn)

	go safeGo(logger, "telegram", func() { tgConn.Start(ctx) })
	if staffChannel == "slack" {
		go safeGo(logger, "slack", func() { staffConn.Start(ctx) })
	}
	logger.Info("connectors started", "staff_channel", staffChannel, "staff_dest", staffDest)

	// 5. Digest scheduler
	if cfg.Relay.DigestSchedule != "" {
		sched := scheduler.New(store, func(ctx context.Context, text string) {
			if _, err := staffConn.Send(ctx, connector.OutboundMessage{
				Destination: staffDest,
				Content:     text,
			}); err != nil {
				logger.Warn("digest delivery failed", "error", err)
			}
		}, logger.With("component", "scheduler"))
		if err := sched.AddDigest(ctx, cfg.Relay.DigestSchedule); err != nil {
			logger.Error("failed to schedule digest", "error", err)
			os.Exit(1)
		}
		go safeGo(logger, "scheduler", func() { sched.Start(ctx) })
	}

	// 6. API server
	apiSrv := apiPkg.NewServer(router, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 7. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("supportd stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

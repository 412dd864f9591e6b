package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/walletstream/internal/auth"
	"github.com/rickgao/walletstream/internal/channel"
	"github.com/rickgao/walletstream/internal/client"
	"github.com/rickgao/walletstream/internal/config"
	"github.com/rickgao/walletstream/internal/database"
	"github.com/rickgao/walletstream/internal/dispatch"
	"github.com/rickgao/walletstream/internal/journal"
	"github.com/rickgao/walletstream/internal/notify"
	"github.com/rickgao/walletstream/internal/supervisor"
	"github.com/rickgao/walletstream/internal/version"
	"github.com/rickgao/walletstream/internal/wire"
)

func main() {
	configPath := flag.String("config", "configs/walletstream.yaml", "path to config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file loaded before the config")
	botIDs := flag.String("bots", "", "comma-separated bot ids to subscribe to")
	flag.Parse()

	// Bootstrap logger until the config says otherwise
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(*envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to load env file", "path", *envFile, "error", err)
		}
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = newLogger(os.Stdout, cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting walletstream",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"base_url", cfg.Server.BaseURL,
		"topics", cfg.Server.Topics,
	)

	if err := run(cfg, splitIDs(*botIDs), logger); err != nil {
		logger.Error("walletstream failed", "error", err)
		os.Exit(1)
	}

	logger.Info("walletstream stopped")
}

func run(cfg *config.Config, bots []string, logger *slog.Logger) error {
	creds, err := auth.LoadCredentials(cfg.Auth.UserID, cfg.Auth.Token, cfg.Auth.TokenFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	opts := []client.Option{
		client.WithLogger(logger),
		client.WithNotifier(notify.NewLogNotifier(logger.With("component", "toast"))),
	}

	var (
		jw       *journal.Writer
		dbPinger pinger
	)
	if cfg.Journal.Enabled {
		logger.Info("connecting to journal database",
			"host", cfg.Journal.Database.Host,
			"port", cfg.Journal.Database.Port,
			"database", cfg.Journal.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Journal.Database)
		if err != nil {
			return fmt.Errorf("connect journal database: %w", err)
		}
		defer pool.Close()
		dbPinger = pool

		jw = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger.With("component", "journal"))

		if err := jw.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
		if err := jw.Start(ctx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			jw.Stop(shutdownCtx)
		}()

		opts = append(opts, client.WithRecorder(jw))
	}

	var holder client.Holder
	defer holder.Teardown()

	handlers := sessionHandlers(&holder, bots, logger)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Status.Enabled {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Status.Port),
			Handler:           newStatusRouter(&holder, jw, dbPinger),
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting status server", "port", cfg.Status.Port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		if _, err := holder.Initialize(gctx, clientConfig(cfg), creds, handlers, opts...); err != nil {
			if errors.Is(err, supervisor.ErrDisconnected) || gctx.Err() != nil {
				return nil
			}
			// Retries continue in the background
			logger.Warn("initial connect failed", "error", err)
		}

		<-gctx.Done()
		logger.Info("shutting down...")
		holder.Teardown()
		return nil
	})

	return g.Wait()
}

// clientConfig maps the file configuration onto the client.
func clientConfig(cfg *config.Config) client.Config {
	topics := make([]wire.Topic, 0, len(cfg.Server.Topics))
	for _, t := range cfg.Server.Topics {
		topics = append(topics, wire.Topic(t))
	}

	cc := cfg.Connections
	return client.Config{
		Supervisor: supervisor.Config{
			BaseURL: cfg.Server.BaseURL,
			Topics:  topics,
			Channel: channel.Config{
				HandshakeTimeout: cc.HandshakeTimeout,
				WriteTimeout:     cc.WriteTimeout,
				PingInterval:     cc.HeartbeatInterval(),
				PongTimeout:      cc.PongTimeout,
				MaxMessageSize:   cc.MaxMessageSize,
				UserAgent:        version.UserAgent(),
			},
			ReconnectBaseDelay:   cc.ReconnectBaseDelay,
			MaxReconnectAttempts: cc.MaxReconnectAttempts,
		},
		KeepaliveInterval: cc.KeepaliveInterval,
	}
}

// sessionHandlers logs every event and issues the initial subscriptions
// when a topic is established.
func sessionHandlers(holder *client.Holder, bots []string, logger *slog.Logger) dispatch.Handlers {
	log := logger.With("component", "events")

	return dispatch.Handlers{
		ConnectionEstablished: func(topic wire.Topic, ev wire.ConnectionEstablished) {
			log.Info("topic established", "topic", topic, "connection_id", ev.ConnectionID, "message", ev.Message)

			c := holder.Instance()
			if c == nil {
				return
			}
			switch topic {
			case wire.TopicWallet:
				c.SubscribeTransactions()
				c.RequestWalletStatus()
			case wire.TopicBots:
				for _, id := range bots {
					c.SubscribeBotUpdates(id)
				}
			}
		},
		BalanceUpdate: func(ev wire.BalanceUpdate) {
			log.Info("balance update",
				"balance_kes", ev.BalanceKES.String(),
				"balance_usdt", ev.BalanceUSDT.String(),
			)
		},
		TransactionNotification: func(ev wire.TransactionNotification) {
			tx := ev.Transaction
			log.Info("transaction",
				"id", tx.ID,
				"category", tx.Category,
				"polarity", tx.Polarity(),
				"amount", tx.Amount.String(),
				"currency", tx.Currency,
				"status", tx.Status,
			)
		},
		BotStatusUpdate: func(ev wire.BotStatusUpdate) {
			log.Info("bot status", "bot_id", ev.BotID, "status", ev.Status)
		},
		SystemNotification: func(ev wire.SystemNotification) {
			log.Info("system notification", "level", ev.Level, "message", ev.Message)
		},
		ErrorNotification: func(ev wire.ErrorNotification) {
			log.Warn("backend error", "error", ev.Error, "details", ev.Details)
		},
		Pong: func(topic wire.Topic, ev wire.Pong) {
			log.Debug("pong", "topic", topic, "timestamp", ev.Timestamp)
		},
		TransactionHistory: func(ev wire.TransactionHistory) {
			log.Info("transaction history", "count", len(ev.Transactions))
		},
		WalletStatus: func(ev wire.WalletStatus) {
			log.Info("wallet status",
				"balance_kes", ev.BalanceKES.String(),
				"balance_usdt", ev.BalanceUSDT.String(),
				"total_received", ev.TotalReceived.String(),
				"total_sent", ev.TotalSent.String(),
				"daily_transfers", ev.DailyTransferCount,
			)
		},
		BotStatusInitial: func(ev wire.BotStatusInitial) {
			log.Info("bots", "count", len(ev.Bots))
		},
		BotSubscriptionConfirmed: func(ev wire.BotSubscriptionConfirmed) {
			log.Info("bot subscription confirmed", "bot_id", ev.BotID)
		},
	}
}

// newLogger builds the process logger from config.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

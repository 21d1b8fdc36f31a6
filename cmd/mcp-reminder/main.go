// Command mcp-reminder provides an MCP server for reminder management.
//
// This server provides tools for creating, listing, completing, and managing
// reminders, and delivers their notifications while it runs.
//
// Usage:
//
//	./mcp-reminder                 # Start MCP server (stdio)
//	./mcp-reminder -config <path>  # Use a specific config file
//	./mcp-reminder --help          # Show help
//
// Environment:
//
//	REMINDERS_DATABASE__PATH  Path to SQLite database (default: ~/.reminders/reminders.db)
//	TELEGRAM_BOT_TOKEN        Deliver notifications through this bot
//	TELEGRAM_CHAT_ID          Chat that receives notifications
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmhodges/clock"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/notexe/reminders/internal/config"
	"github.com/notexe/reminders/internal/listview"
	"github.com/notexe/reminders/internal/logging"
	"github.com/notexe/reminders/internal/notify"
	"github.com/notexe/reminders/internal/preferences"
	"github.com/notexe/reminders/internal/reminder"
	"github.com/notexe/reminders/internal/storage"
	"github.com/notexe/reminders/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.GetDefaultConfigPath(), "path to config file")
	flag.Usage = printHelp
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	store, err := storage.Open(ctx, cfg.Database, logger.Named("storage"))
	if err != nil {
		return err
	}
	defer store.Close()

	sender, err := newSender(cfg.Notifications, logger)
	if err != nil {
		return err
	}

	var notifier reminder.Notifier = notify.Noop{}
	var scheduler *notify.Scheduler
	if cfg.Notifications.Enabled {
		scheduler = notify.NewScheduler(sender, store, clk, logger.Named("notify"))
		defer scheduler.Close()
		notifier = scheduler
	}

	svc := reminder.NewService(store, notifier,
		reminder.WithClock(clk),
		reminder.WithLogger(logger.Named("reminder")),
	)

	prefs, err := preferences.Open(cfg.Preferences.File, logger.Named("preferences"))
	if err != nil {
		return fmt.Errorf("failed to open preferences: %w", err)
	}
	defer prefs.Close()

	pipeline := listview.NewPipeline(svc, prefs, clk)

	queue := worker.NewQueue(logger.Named("worker"), cfg.Worker.Concurrency)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := queue.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("background tasks did not finish", "err", err)
		}
	}()

	if cfg.Notifications.Enabled && cfg.Notifications.Resync != "" {
		resyncer, err := notify.NewResyncer(cfg.Notifications.Resync, svc, logger.Named("resync"))
		if err != nil {
			return err
		}
		resyncer.Start(ctx)
		defer resyncer.Stop()
	}

	s := reminder.NewServer(svc, pipeline, prefs, queue, clk)

	logger.Infow("serving reminders over stdio",
		"driver", cfg.Database.Driver,
		"notifications", cfg.Notifications.Enabled,
		"telegram", cfg.Notifications.Telegram.Configured(),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(s.MCPServer())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Infow("shutting down")
		return nil
	}
}

func newSender(cfg config.NotificationsConfig, logger *zap.SugaredLogger) (notify.Sender, error) {
	if !cfg.Telegram.Configured() {
		return notify.NewLogSender(logger.Named("notify")), nil
	}
	sender, err := notify.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if err != nil {
		return nil, err
	}
	return sender, nil
}

func printHelp() {
	fmt.Println(`MCP Reminder Server - Reminder management via MCP protocol

USAGE:
    mcp-reminder                 Start MCP server (communicates via stdio)
    mcp-reminder -config <path>  Use a specific config file
                                 Default: ~/.reminders/config.yaml
    mcp-reminder --help          Show this help

ENVIRONMENT:
    REMINDERS_DATABASE__DRIVER  sqlite or postgres
    REMINDERS_DATABASE__PATH    Path to SQLite database file
    REMINDERS_DATABASE__URL     Postgres connection string
    TELEGRAM_BOT_TOKEN          Deliver notifications through this bot
    TELEGRAM_CHAT_ID            Chat that receives notifications

TOOLS:
    add_reminder       Add a reminder (name, start, repeat_amount, repeat_unit, notes, notify)
    update_reminder    Update reminder fields
    get_reminder       Get one reminder by ID
    list_reminders     List reminders (filter, sort, query)
    complete_reminder  Mark done; recurring reminders move to the next occurrence
    complete_series    End a recurring reminder
    delete_reminder    Delete a reminder permanently
    set_filter         Save the default filter
    set_sort_order     Save the default sort order

CONFIGURATION:
    Register with an MCP client, e.g.:
    {
      "mcpServers": {
        "reminder": {
          "command": "/path/to/mcp-reminder",
          "args": []
        }
      }
    }`)
}

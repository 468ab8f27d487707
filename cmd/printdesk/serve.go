package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/orrn/printdesk/internal/api"
	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/archive"
	"github.com/orrn/printdesk/internal/config"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/cups"
	"github.com/orrn/printdesk/internal/db"
	"github.com/orrn/printdesk/internal/document"
	"github.com/orrn/printdesk/internal/events"
	"github.com/orrn/printdesk/internal/logging"
	"github.com/orrn/printdesk/internal/notify"
	"github.com/orrn/printdesk/internal/webhook"
)

// stdinSource is the notifications.log_path value that reads lines from
// standard input instead of following a file.
const stdinSource = "-"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the print desk server",
	Long: `Start the HTTP API, the notification reader and the background sweeps.

The server provides:
  - /health         - liveness check
  - /api/auth/login - exchange the access token for a session
  - /api/jobs       - upload, prepare, submit and cancel print jobs

Examples:
  printdesk serve                          # ./printdesk.yaml
  printdesk serve --config /etc/printdesk.yaml
  PRINTDESK_PRINTER=office printdesk serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger := logging.New(cfg.Logging, os.Stdout)
		slog.SetDefault(logger)

		return serve(ctx, cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o750); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	if err := db.Init(db.Config{Path: cfg.Database.Path}); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	client, err := cups.NewClient(cups.Config{
		Host:     cfg.Printer.Host,
		Port:     cfg.Printer.Port,
		Username: cfg.Printer.Username,
		Password: cfg.Printer.Password,
		TLS:      cfg.Printer.TLS,
		Printer:  cfg.Printer.Name,
		Attempts: cfg.Printer.Attempts,
		Delay:    cfg.Printer.RetryDelay,
	}, logger)
	if err != nil {
		return err
	}

	printer := core.NewPrinterManager(client, cfg.Printer.MaxCopies, logger)
	if err := printer.Load(ctx); err != nil {
		logger.Warn("printer unavailable, offering 1-up printing only", "printer", cfg.Printer.Name, "error", err)
	}

	converter := document.NewConverter(cfg.Jobs.Converter, cfg.Jobs.ConvertTimeout)
	if err := converter.Available(); err != nil {
		logger.Warn("document conversion disabled", "converter", cfg.Jobs.Converter, "error", err)
		converter = nil
	}
	ingestor, err := document.NewIngestor(cfg.Jobs.SpoolDir, converter, logger)
	if err != nil {
		return err
	}

	jobs := core.NewJobManager(core.ManagerConfig{
		Retention: cfg.Jobs.Retention,
		Printer:   printer,
		Service:   client,
		Rewriter:  document.NewPDFRewriter(),
		Archiver:  db.NewJobArchiver(nil),
		Logger:    logger,
	})

	sender := webhook.NewWebhookSender(db.Webhooks, webhook.WebhookConfig{
		RetryCount:  cfg.Webhook.RetryCount,
		RetryDelay:  cfg.Webhook.RetryDelay,
		Timeout:     cfg.Webhook.Timeout,
		WorkerCount: cfg.Webhook.Workers,
		QueueSize:   cfg.Webhook.QueueSize,
	}, logger)
	sender.Start()
	defer sender.Stop()
	jobs.OnTransition(sender.HandleTransition)
	jobs.OnTransition(func(v core.View, from, to core.State) {
		logger.Info("job transition", "job_id", v.ID, "owner", v.Owner, "from", from.String(), "to", to.String())
	})

	sweeper := core.NewSweeper(jobs, cfg.Jobs.SweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	archiver, err := archive.NewArchiver(db.GetDB(), archive.ArchiveConfig{
		ArchivePath: cfg.History.ArchivePath,
		ArchiveDays: cfg.History.RetentionDays,
		Interval:    cfg.History.ArchiveInterval,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	archiver.Start()
	defer archiver.Stop()

	auth, err := middleware.NewAuthMiddleware(cfg.Auth.AccessToken, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	reconciler := events.NewReconciler(jobs, logger)
	switch path := cfg.Notifications.LogPath; path {
	case "":
		logger.Warn("no notification log configured, job progress will not be tracked")
	case stdinSource:
		// Not waited for: a blocked read on stdin cannot be interrupted.
		logger.Info("reading notifications from stdin")
		go func() {
			if err := notify.ReadLines(ctx, os.Stdin, reconciler); err != nil {
				logger.Error("notification source stopped", "error", err)
			}
		}()
	default:
		source := notify.NewFileSource(path, cfg.Notifications.FromStart, reconciler, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("notification source stopped", "error", err)
			}
		}()
	}

	srv := api.NewServer(api.Config{
		Port:             cfg.Server.Port,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		Auth:             auth,
		Jobs:             jobs,
		Printer:          printer,
		Ingester:         ingestor,
		Webhooks:         sender,
		Version:          version,
		Logger:           logger,
		MaxUploadBytes:   cfg.MaxUploadBytes(),
		DefaultTonerSave: cfg.Jobs.DefaultTonerSave,
	})

	err = srv.Start(ctx)
	cancel()
	wg.Wait()
	return err
}

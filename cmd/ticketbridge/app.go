package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/copperline/ticketbridge/bridge"
	"github.com/copperline/ticketbridge/bus"
	"github.com/copperline/ticketbridge/config"
	"github.com/copperline/ticketbridge/discord"
	"github.com/copperline/ticketbridge/intercom"
	"github.com/copperline/ticketbridge/storage"
	"github.com/copperline/ticketbridge/webhook"
)

// app bundles the wired components shared by serve and the one-shot
// commands.
type app struct {
	cfg        *config.Config
	configPath string
	store      *storage.Store
	intercom   *intercom.Client
	discord    *discord.Client
	bridge     *bridge.Bridge
	registry   *prometheus.Registry
	logger     *slog.Logger
}

func newApp(configPath string) (*app, error) {
	logger := slog.Default()

	loader := config.NewLoader(logger)
	cfg, resolvedPath, err := loader.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open ticket store: %w", err)
	}

	ic := intercom.NewClient(cfg.Intercom.AccessToken,
		intercom.WithBaseURL(cfg.Intercom.BaseURL),
		intercom.WithAdminID(cfg.Intercom.AdminID),
		intercom.WithLogger(logger),
	)
	dc := discord.NewClient(cfg.Discord.Token, discord.WithLogger(logger))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := bridge.New(bridge.Options{
		Intercom:      ic,
		Discord:       dc,
		Store:         store,
		ChannelID:     cfg.Discord.ChannelID,
		ApplicationID: cfg.Discord.ApplicationID,
		QuickReplies:  cfg.QuickReplies,
		Logger:        logger,
		Registerer:    registry,
	})

	return &app{
		cfg:        cfg,
		configPath: resolvedPath,
		store:      store,
		intercom:   ic,
		discord:    dc,
		bridge:     b,
		registry:   registry,
		logger:     logger,
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("could not close ticket store", "error", err)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge: webhook server, event consumer and interactions endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(*configPath)
		},
	}
}

func runServe(configPath string) error {
	printBanner()

	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.bridge.SetBaseContext(ctx)

	eventBus, err := bus.Connect(ctx, a.cfg.NATS, a.logger)
	if err != nil {
		return fmt.Errorf("connect event bus: %w", err)
	}
	defer eventBus.Close()

	consumeCtx, err := eventBus.Consume(ctx, a.bridge.HandleNotification)
	if err != nil {
		return fmt.Errorf("start event consumer: %w", err)
	}
	defer consumeCtx.Stop()

	// Reload quick replies when the project config changes on disk.
	if a.configPath != "" {
		watcher, err := config.NewWatcher(a.configPath, a.logger, a.bridge.SetQuickReplies)
		if err != nil {
			a.logger.Warn("config watching disabled", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	verifier, err := discord.NewInteractionVerifier(a.cfg.Discord.PublicKey)
	if err != nil {
		return fmt.Errorf("parse discord public key: %w", err)
	}

	srv := webhook.NewServer(webhook.Options{
		Publisher:     eventBus,
		Interactions:  a.bridge,
		Store:         a.store,
		Verifier:      verifier,
		WebhookSecret: a.cfg.Intercom.WebhookSecret,
		Gatherer:      a.registry,
		Logger:        a.logger,
	})

	mux := http.NewServeMux()
	srv.RegisterHTTPHandlers("webhook", mux)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("webhook server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	a.bridge.SetWebhookActive(true)

	if err := a.bridge.AnnounceStartup(ctx); err != nil {
		a.logger.Warn("could not announce startup", "error", err)
	}

	a.logger.Info("ticketbridge ready",
		"version", Version,
		"channel_id", a.cfg.Discord.ChannelID)

	select {
	case err := <-serveErr:
		return fmt.Errorf("webhook server: %w", err)
	case <-ctx.Done():
	}
	a.logger.Info("received shutdown signal")
	a.bridge.SetWebhookActive(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("webhook server shutdown", "error", err)
	}
	return nil
}

func syncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Repost all fresh open Intercom conversations to the ticket channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			posted, err := a.bridge.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Synced %d fresh tickets\n", posted)
			return nil
		},
	}
}

func statusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print ticket counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.bridge.Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Total tickets:   %d\n", report.Total)
			fmt.Printf("Open tickets:    %d\n", report.Open)
			fmt.Printf("Replied tickets: %d\n", report.Replied)
			fmt.Printf("Closed tickets:  %d\n", report.Closed)
			return nil
		},
	}
}

func cleanupCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove tickets not updated within the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configPath)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.bridge.Cleanup(cmd.Context(), time.Duration(days)*24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d old tickets\n", removed)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "Remove tickets older than this many days")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader(slog.Default())
			return loader.EnsureUserConfig()
		},
	})

	return cmd
}

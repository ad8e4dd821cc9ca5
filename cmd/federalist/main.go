package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "modernc.org/sqlite"

	"github.com/5l1v3r1/federalist/internal/api"
	"github.com/5l1v3r1/federalist/internal/auth"
	"github.com/5l1v3r1/federalist/internal/build"
	"github.com/5l1v3r1/federalist/internal/config"
	"github.com/5l1v3r1/federalist/internal/eventstore"
	"github.com/5l1v3r1/federalist/internal/github"
	"github.com/5l1v3r1/federalist/internal/metrics"
	"github.com/5l1v3r1/federalist/internal/site"
	"github.com/5l1v3r1/federalist/internal/socket"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Start the build coordination server"`

	Version struct{} `cmd:"" help:"Print the version and exit"`
}

var version = "dev"

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "serve":
		if err := serve(); err != nil {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Println(version)
	}
}

func serve() error {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	buildStore, err := build.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	siteStore, err := site.NewSQLiteStore(db)
	if err != nil {
		return err
	}
	eventStore, err := eventstore.NewSQLiteStore(db)
	if err != nil {
		return err
	}

	var publisher socket.Publisher
	var natsPublisher *socket.NATSPublisher
	if cfg.NATS.URL != "" {
		natsPublisher, err = socket.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("connect notifier: %w", err)
		}
		publisher = natsPublisher
	} else {
		slog.Warn("no NATS URL configured, real-time notifications stay in-process")
		publisher = socket.NewMemoryPublisher()
	}

	var reporter build.StatusReporter
	if cfg.GitHub.Token != "" {
		client := github.NewClient(cfg.GitHub.APIURL, cfg.GitHub.Token, cfg.GitHub.RequestTimeout)
		reporter = github.NewStatusReporter(client, cfg.App.Host, cfg.GitHub.StatusContext)
	} else {
		slog.Warn("no GitHub token configured, commit statuses will not be reported")
	}

	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(registry)

	svc := build.NewService(build.Deps{
		Store:     buildStore,
		Sites:     siteStore,
		Reporter:  reporter,
		Publisher: publisher,
		Events:    eventStore,
		Metrics:   recorder,
	})

	server := api.NewServer(api.Options{
		Addr:          cfg.Server.Addr,
		Builds:        svc,
		Authorizer:    auth.NewAuthorizer(siteStore),
		Sites:         siteStore,
		WebhookSecret: cfg.GitHub.WebhookSecret,
		Registry:      registry,
		ReadTimeout:   cfg.Server.ReadTimeout,
		WriteTimeout:  cfg.Server.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Server.Addr, "env", cfg.App.Environment)
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down server", "error", err)
	}

	// let in-flight notifier/reporter fan-outs finish before closing the
	// publisher connection
	svc.Wait()
	if natsPublisher != nil {
		if err := natsPublisher.Close(); err != nil {
			slog.Error("error draining notifier", "error", err)
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hickar/mailagent/internal/app/config"
	"github.com/hickar/mailagent/internal/app/daemon"
	"github.com/hickar/mailagent/internal/app/handler"
	"github.com/hickar/mailagent/internal/app/session"
	"github.com/hickar/mailagent/internal/pkg/logger"
)

var (
	configFilepath = flag.String("config", "./config.yaml", "Filepath to configuration file. Default is './config.yaml'")
	envFilepath    = flag.String("env-file", "./.env", "Filepath to environment variables file. Default is '.env'")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configFilepath, *envFilepath)
	if err != nil {
		log.Fatalf(fmt.Sprintf("failed to load configuration: %s", err))
	}

	slogger := slog.New(logger.NewContextHandler(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       slog.Level(cfg.LogLevel),
			ReplaceAttr: logger.ReplaceAttr,
		}),
	))

	registry := handler.NewRegistry(
		cfg,
		session.DialerFunc(session.DialIMAP),
		slogger.With(slog.String("module", "registry")),
	)

	watchdog := daemon.NewDaemon(
		cfg,
		registry,
		&daemon.Scheduler{},
		slogger.With(slog.String("module", "watchdog")),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer cancel()

	if err = watchdog.Start(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			slogger.Error(fmt.Sprintf("Application exited with error: %s", err), slog.String("module", "main"))
			registry.CloseAll(context.Background())
			cancel()
			//nolint:gocritic
			os.Exit(1)
		}
	}

	registry.CloseAll(context.Background())
	cancel()
}

package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hickar/mailagent/internal/app/config"
	"github.com/hickar/mailagent/internal/app/handler"
)

// Daemon periodically probes the health of every account's retrieval
// connection so stale sessions are detected and replaced before a
// caller trips over them.
type Daemon struct {
	cfg       config.Config
	registry  *handler.Registry
	scheduler scheduler
	logger    *slog.Logger
}

type scheduler interface {
	ScheduleWithCtx(context.Context, schedulerSettings) error
	Stop()
}

func NewDaemon(
	cfg config.Config,
	registry *handler.Registry,
	scheduler scheduler,
	logger *slog.Logger,
) *Daemon {
	return &Daemon{
		cfg:       cfg,
		registry:  registry,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Start launches the health-check scheduler and blocks until the
// context is cancelled or the scheduler fails to start. Individual
// probe failures are logged per account; they never stop the daemon.
func (d *Daemon) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		err := d.scheduler.ScheduleWithCtx(ctx, schedulerSettings{
			LaunchInitially: true,
			Interval:        d.cfg.HealthCheckInterval,
			Callback: func() {
				d.checkAll(ctx)
			},
		})
		if err != nil {
			errCh <- fmt.Errorf("error occurred while launching the scheduler: %w", err)
		}
	}()
	defer d.scheduler.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (d *Daemon) checkAll(ctx context.Context) {
	for _, name := range d.registry.Names() {
		h, err := d.registry.Get(name)
		if err != nil {
			continue
		}

		report := h.Health(ctx)
		if !report.Healthy {
			d.logger.WarnContext(ctx, "account connection unhealthy",
				slog.String("account", name),
				slog.String("host", report.Host),
				slog.Any("error", report.Err),
			)
			continue
		}

		d.logger.DebugContext(ctx, "account connection healthy",
			slog.String("account", name),
			slog.Duration("response_time", report.ResponseTime),
		)
	}
}

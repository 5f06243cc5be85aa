package taskq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eduforge/taskq/pkg/monitor"
)

// Run starts the worker pool, the beat scheduler when a schedule table is
// configured, the dead-letter retention sweeper, and the metrics endpoint
// when MetricsExportPort is set. It blocks until ctx is cancelled or a
// component fails, then drains everything and returns.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.exec.Run(ctx)
	})

	if s.beatSched != nil {
		g.Go(func() error {
			return s.beatSched.Run(ctx)
		})
	}

	g.Go(func() error {
		s.purgeLoop(ctx)
		return nil
	})

	if s.cfg.MetricsExportPort > 0 {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", s.cfg.MetricsExportPort),
			Handler:           monitor.NewRouter(s.metrics, s.checks),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.log.InfoContext(ctx, "metrics endpoint listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics endpoint: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// purgeLoop drops dead-letter records past their retention, hourly.
func (s *Service) purgeLoop(ctx context.Context) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.dlq.Purge(ctx, time.Now())
			if err != nil {
				s.log.ErrorContext(ctx, "dead-letter purge failed",
					slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				s.log.InfoContext(ctx, "purged expired dead letters", slog.Int64("count", n))
			}
		}
	}
}

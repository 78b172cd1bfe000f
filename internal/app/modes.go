package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mystquest/settler/internal/service"
)

// warmPoolsLimit caps how many open markets the cache refresher touches per
// sweep.
const warmPoolsLimit = 200

// newSettlementService builds the settlement service from wired dependencies.
func (a *App) newSettlementService(deps *Dependencies) *service.SettlementService {
	lockTTL := time.Duration(a.cfg.Worker.LockTTLSeconds) * time.Second
	return service.NewSettlementService(
		deps.Params,
		lockTTL,
		deps.MarketStore,
		deps.BetStore,
		deps.SettlementStore,
		deps.PoolCache,
		deps.LockManager,
		deps.Archiver,
		deps.Notifier,
		a.logger,
	)
}

// WorkerMode runs the resolver: it polls for markets that are past their
// close time with a queued resolution decision and settles them, and keeps
// the pool cache warm for display surfaces. It blocks until the context is
// cancelled.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	interval := time.Duration(a.cfg.Worker.PollIntervalSeconds) * time.Second
	a.logger.InfoContext(ctx, "starting worker mode",
		slog.Duration("poll_interval", interval),
		slog.Int("batch_size", a.cfg.Worker.BatchSize),
	)

	svc := a.newSettlementService(deps)
	g, ctx := errgroup.WithContext(ctx)

	// Resolver loop. Per-market failures are logged inside SettleDue; a
	// failing batch does not stop the worker.
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			settled, err := svc.SettleDue(ctx, time.Now().UTC(), a.cfg.Worker.BatchSize)
			if err != nil && ctx.Err() == nil {
				a.logger.ErrorContext(ctx, "resolver batch had failures",
					slog.String("error", err.Error()),
				)
			}
			if settled > 0 {
				a.logger.InfoContext(ctx, "resolver batch complete",
					slog.Int("settled", settled),
				)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	// Pool cache refresher.
	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if err := svc.WarmPools(ctx, warmPoolsLimit); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "pool cache warm failed",
					slog.String("error", err.Error()),
				)
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	return g.Wait()
}

// AuditMode runs one offline verification pass over every stored settlement
// and exits. A non-clean report is returned as an error so the process exits
// non-zero and the run can gate deploys or cron alerts.
func (a *App) AuditMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting audit mode")

	auditor := service.NewAuditService(
		deps.Params,
		deps.MarketStore,
		deps.BetStore,
		deps.SettlementStore,
		deps.LedgerStore,
		deps.BlobReader,
		a.logger,
	)

	report, err := auditor.Run(ctx)
	if err != nil {
		return fmt.Errorf("audit mode: %w", err)
	}

	a.logger.InfoContext(ctx, "audit complete",
		slog.Int("checked", report.Checked),
		slog.Int("violations", len(report.Violations)),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)),
	)

	if !report.Clean() {
		for _, v := range report.Violations {
			a.logger.ErrorContext(ctx, "audit violation", slog.String("detail", v))
		}
		message := fmt.Sprintf("%d of %d stored settlement(s) failed re-verification", len(report.Violations), report.Checked)
		if err := deps.Notifier.NotifyAll(ctx, "Settlement Audit Failed", message); err != nil {
			a.logger.WarnContext(ctx, "audit notification failed", slog.String("error", err.Error()))
		}
		return fmt.Errorf("audit mode: %d of %d settlement(s) failed verification", len(report.Violations), report.Checked)
	}
	return nil
}

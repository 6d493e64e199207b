package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/royalty-settlement/internal/domain"
	"github.com/josh-kwaku/royalty-settlement/internal/logging"
	"github.com/josh-kwaku/royalty-settlement/internal/metrics"
)

type SweeperConfig struct {
	Interval   time.Duration
	StaleAfter time.Duration
	BatchSize  int
}

// Sweeper resolves payouts stuck without a provider answer and expires cached
// idempotent responses.
type Sweeper struct {
	payouts     stalePayouts
	settlement  payoutSweeper
	idempotency expiredCleaner
	logger      *slog.Logger
	metrics     *metrics.Metrics
	cfg         SweeperConfig
	now         func() time.Time
}

func NewSweeper(
	payouts stalePayouts,
	settlement payoutSweeper,
	idempotency expiredCleaner,
	logger *slog.Logger,
	m *metrics.Metrics,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Sweeper{
		payouts:     payouts,
		settlement:  settlement,
		idempotency: idempotency,
		logger:      logger,
		metrics:     m,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type SweepReport struct {
	Resubmitted int
	Refreshed   int
	Failed      int
	Expired     int64
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("reconciliation sweeper started", "interval", s.cfg.Interval, "stale_after", s.cfg.StaleAfter)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reconciliation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce makes one pass. Individual payout errors are counted and logged, not
// returned, so one bad payout cannot stall the rest.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	ctx = logging.WithLogger(ctx, s.logger)
	before := s.now().Add(-s.cfg.StaleAfter)
	report := &SweepReport{}

	pending, err := s.payouts.ListStalePending(ctx, before, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("RunOnce: %w", err)
	}
	for _, p := range pending {
		if _, err := s.settlement.Resubmit(ctx, p.ID); err != nil {
			report.Failed++
			s.metrics.SweepAction("resubmit", "error")
			s.logger.Warn("resubmit failed", "payout_id", p.ID, "error", err)
			continue
		}
		report.Resubmitted++
		s.metrics.SweepAction("resubmit", "ok")
	}

	inTransit, err := s.payouts.ListStaleInTransit(ctx, before, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("RunOnce: %w", err)
	}
	for _, p := range inTransit {
		if _, err := s.settlement.RefreshFromProvider(ctx, p.ID); err != nil {
			if errors.Is(err, domain.ErrPayoutTerminal) || errors.Is(err, domain.ErrInvalidTransition) {
				s.metrics.SweepAction("refresh", "noop")
				continue
			}
			report.Failed++
			s.metrics.SweepAction("refresh", "error")
			s.logger.Warn("refresh failed", "payout_id", p.ID, "error", err)
			continue
		}
		report.Refreshed++
		s.metrics.SweepAction("refresh", "ok")
	}

	if s.idempotency != nil {
		n, err := s.idempotency.CleanExpired(ctx)
		if err != nil {
			return nil, fmt.Errorf("RunOnce: %w", err)
		}
		report.Expired = n
	}

	if report.Resubmitted+report.Refreshed+report.Failed > 0 || report.Expired > 0 {
		s.logger.Info("sweep complete",
			"resubmitted", report.Resubmitted,
			"refreshed", report.Refreshed,
			"failed", report.Failed,
			"expired_idempotency_keys", report.Expired,
		)
	}
	return report, nil
}

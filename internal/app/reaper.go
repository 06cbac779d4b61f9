package app

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

type ReclaimRepository interface {
	// ListReclaimable returns active resources with expiresAt <= now and every
	// resource already in reclaiming.
	ListReclaimable(ctx context.Context, now time.Time) ([]domain.ProvisionedResource, error)
	TransitionResource(ctx context.Context, id string, from, to domain.ResourceStatus) (domain.ProvisionedResource, error)
	RecordReclaimFailure(ctx context.Context, id, detail string) (domain.ProvisionedResource, error)
	// CompleteReclaim marks the resource reclaimed, deletes it and expires its
	// order in one atomic unit.
	CompleteReclaim(ctx context.Context, id string, at time.Time) (domain.Order, error)
}

const (
	defaultReaperInterval = time.Minute
	defaultReclaimTimeout = 30 * time.Second
)

// Reaper reclaims panels whose paid term has ended.
type Reaper struct {
	repo     ReclaimRepository
	backend  ProvisioningBackend
	notifier Notifier
	clock    clock.Clock
	logger   *log.Logger

	interval       time.Duration
	reclaimTimeout time.Duration
	adminEmail     string

	running atomic.Bool
}

func NewReaper(repo ReclaimRepository, backend ProvisioningBackend, notifier Notifier, clk clock.Clock, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		repo:           repo,
		backend:        backend,
		notifier:       notifier,
		clock:          clk,
		logger:         log.Default(),
		interval:       defaultReaperInterval,
		reclaimTimeout: defaultReclaimTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type ReaperOption func(*Reaper)

func WithReaperLogger(logger *log.Logger) ReaperOption {
	return func(r *Reaper) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInterval sets the time between sweeps started by Run.
func WithInterval(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReclaimTimeout bounds each backend delete call.
func WithReclaimTimeout(d time.Duration) ReaperOption {
	return func(r *Reaper) {
		if d > 0 {
			r.reclaimTimeout = d
		}
	}
}

func WithReaperAdminEmail(addr string) ReaperOption {
	return func(r *Reaper) { r.adminEmail = addr }
}

type SweepReport struct {
	Scanned   int
	Reclaimed int
	Failed    int
	Skipped   int
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	r.logger.Printf("reaper started interval=%s", r.interval)
	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("reaper stopped")
			return nil
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Reaper) tick(ctx context.Context) {
	report, err := r.Sweep(ctx)
	switch {
	case errors.Is(err, domain.ErrSweepInProgress):
		r.logger.Printf("WARN: sweep skipped, previous sweep still running")
	case err != nil:
		r.logger.Printf("sweep failed err=%v", err)
	case report.Scanned > 0:
		r.logger.Printf("sweep scanned=%d reclaimed=%d failed=%d skipped=%d",
			report.Scanned, report.Reclaimed, report.Failed, report.Skipped)
	}
}

// Sweep reclaims every due resource once. It returns ErrSweepInProgress
// without doing anything when another sweep is running.
func (r *Reaper) Sweep(ctx context.Context) (SweepReport, error) {
	if !r.running.CompareAndSwap(false, true) {
		return SweepReport{}, domain.ErrSweepInProgress
	}
	defer r.running.Store(false)

	ctx, span := tracer.Start(ctx, "Reaper.Sweep")
	defer span.End()

	now := domain.Timestamp(r.clock.Now())
	candidates, err := r.repo.ListReclaimable(ctx, now)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(candidates)}
	for _, res := range candidates {
		if ctx.Err() != nil {
			break
		}
		if res.Status == domain.ResourceStatusActive {
			if !res.Due(now) {
				report.Skipped++
				continue
			}
			claimed, err := r.repo.TransitionResource(ctx, res.ID, domain.ResourceStatusActive, domain.ResourceStatusReclaiming)
			if err != nil {
				if errors.Is(err, domain.ErrStaleStatus) || errors.Is(err, domain.ErrResourceNotFound) {
					report.Skipped++
					continue
				}
				r.logger.Printf("claim resource failed resource=%s err=%v", res.ID, err)
				report.Failed++
				continue
			}
			res = claimed
		}

		if r.reclaim(ctx, res, now) {
			report.Reclaimed++
		} else {
			report.Failed++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.scanned", report.Scanned),
		attribute.Int("sweep.reclaimed", report.Reclaimed),
		attribute.Int("sweep.failed", report.Failed),
	)
	return report, nil
}

func (r *Reaper) reclaim(ctx context.Context, res domain.ProvisionedResource, now time.Time) bool {
	dctx, cancel := context.WithTimeout(ctx, r.reclaimTimeout)
	err := r.backend.Delete(dctx, res.ID)
	cancel()

	switch {
	case errors.Is(err, domain.ErrResourceGone):
		r.logger.Printf("resource already removed upstream resource=%s", res.ID)
	case err != nil:
		rerr := &domain.ReclaimError{ResourceID: res.ID, Err: err}
		if _, ferr := r.repo.RecordReclaimFailure(ctx, res.ID, rerr.Error()); ferr != nil {
			r.logger.Printf("record reclaim failure resource=%s err=%v", res.ID, ferr)
		}
		r.logger.Printf("WARN: %v attempts=%d", rerr, res.ReclaimAttempts+1)
		return false
	}

	order, err := r.repo.CompleteReclaim(ctx, res.ID, now)
	if err != nil {
		// Left in reclaiming; the next sweep deletes again and sees it gone.
		r.logger.Printf("complete reclaim failed resource=%s err=%v", res.ID, err)
		return false
	}
	r.logger.Printf("panel reclaimed order=%s resource=%s", order.ID, res.ID)

	if r.adminEmail != "" {
		msg, err := adminReclaimedMessage(r.adminEmail, order, res)
		if err != nil {
			r.logger.Printf("WARN: render reclaim message order=%s err=%v", order.ID, err)
			return true
		}
		if err := r.notifier.Send(ctx, msg); err != nil {
			r.logger.Printf("WARN: %v", &domain.NotificationError{To: msg.To, Err: err})
		}
	}
	return true
}

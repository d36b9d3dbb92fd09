package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"verdant-vault/vault-portal-backend/internal/ledger"
)

// Reconciler owns the snapshot cache and keeps it consistent with the
// ledger. Refreshes may complete out of order; the last to complete wins,
// since ledger reads carry no version number. A failed refresh leaves the
// previous snapshot in place.
type Reconciler struct {
	cache  *SnapshotCache
	reader ledger.Reader
	logger *zap.Logger

	notify chan struct{}
	done   chan struct{}
}

// NewReconciler creates a reconciler over the given ledger reader
func NewReconciler(reader ledger.Reader, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		cache:  NewSnapshotCache(),
		reader: reader,
		logger: logger,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Get returns the cached snapshot without touching the ledger
func (r *Reconciler) Get(id uint64) (*Snapshot, bool) {
	return r.cache.Get(id)
}

// Refresh reads campaign, milestones and investments from the ledger and
// atomically replaces the cached snapshot. On any read failure the cached
// snapshot is left untouched and the error is returned to the caller.
func (r *Reconciler) Refresh(ctx context.Context, id uint64) (*Snapshot, error) {
	c, err := r.reader.GetCampaign(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("refresh campaign %d: %w", id, err)
	}
	milestones, err := r.reader.GetMilestones(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("refresh milestones %d: %w", id, err)
	}
	investments, err := r.reader.GetInvestments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("refresh investments %d: %w", id, err)
	}

	snap := &Snapshot{
		Campaign:    c,
		Milestones:  milestones,
		Investments: investments,
		ObservedAt:  time.Now(),
	}
	r.cache.Replace(id, snap)
	return snap, nil
}

// GetOrRefresh returns the cached snapshot, reading from the ledger only on
// a cache miss.
func (r *Reconciler) GetOrRefresh(ctx context.Context, id uint64) (*Snapshot, error) {
	if snap, ok := r.cache.Get(id); ok {
		return snap, nil
	}
	return r.Refresh(ctx, id)
}

// Invalidate marks a campaign stale and schedules a background refresh. It
// never blocks; repeated calls before the refresh runs collapse into one.
func (r *Reconciler) Invalidate(id uint64) {
	r.cache.MarkStale(id)
	r.kick()
}

// InvalidateCount marks the campaign counter stale
func (r *Reconciler) InvalidateCount() {
	r.cache.MarkCountStale()
	r.kick()
}

func (r *Reconciler) kick() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// CampaignCount returns the cached campaign counter, reading through on a
// miss.
func (r *Reconciler) CampaignCount(ctx context.Context) (uint64, error) {
	if count, ok := r.cache.Count(); ok {
		return count, nil
	}
	return r.RefreshCount(ctx)
}

// RefreshCount re-reads the campaign counter from the ledger
func (r *Reconciler) RefreshCount(ctx context.Context) (uint64, error) {
	count, err := r.reader.GetCampaignCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("refresh campaign count: %w", err)
	}
	r.cache.ReplaceCount(count)
	return count, nil
}

// ProcessStale refreshes everything currently flagged stale. Read failures
// are logged and the stale snapshot stays visible as last-known-good.
func (r *Reconciler) ProcessStale(ctx context.Context) {
	if r.cache.TakeCountStale() {
		if _, err := r.RefreshCount(ctx); err != nil {
			r.logger.Warn("campaign count refresh failed", zap.Error(err))
		}
	}
	for _, id := range r.cache.TakeStale() {
		if _, err := r.Refresh(ctx, id); err != nil {
			r.logger.Warn("snapshot refresh failed, keeping last known good",
				zap.Uint64("campaign_id", id), zap.Error(err))
		}
	}
}

// Resync refreshes the counter and every cached snapshot. The cron sweep
// calls this to narrow the window left by missed event deliveries.
func (r *Reconciler) Resync(ctx context.Context) {
	if _, err := r.RefreshCount(ctx); err != nil {
		r.logger.Warn("resync count failed", zap.Error(err))
	}
	for _, id := range r.cache.Keys() {
		if _, err := r.Refresh(ctx, id); err != nil {
			r.logger.Warn("resync refresh failed",
				zap.Uint64("campaign_id", id), zap.Error(err))
		}
	}
}

// Run processes scheduled refreshes until the context is canceled
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	defer close(r.done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
			r.ProcessStale(ctx)
		case <-ticker.C:
			r.ProcessStale(ctx)
		}
	}
}

// Stopped reports when Run has exited
func (r *Reconciler) Stopped() <-chan struct{} {
	return r.done
}

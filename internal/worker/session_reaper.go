package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// IdleEvictor drops sessions that have not moved for longer than idle.
type IdleEvictor interface {
	EvictIdle(ctx context.Context, idle time.Duration) []string
}

// SessionReaper periodically evicts abandoned verification sessions.
type SessionReaper struct {
	evictor  IdleEvictor
	idle     time.Duration
	interval time.Duration
	logger   *zap.Logger
	done     chan struct{}
}

// NewSessionReaper returns nil when idle is not positive, which disables eviction.
func NewSessionReaper(evictor IdleEvictor, idle, interval time.Duration, logger *zap.Logger) *SessionReaper {
	if evictor == nil || idle <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionReaper{
		evictor:  evictor,
		idle:     idle,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (r *SessionReaper) Start(ctx context.Context) {
	if r == nil {
		return
	}
	go r.run(ctx)
}

// Done is closed once the sweep loop has exited.
func (r *SessionReaper) Done() <-chan struct{} {
	return r.done
}

func (r *SessionReaper) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("session reaper started",
		zap.Duration("idle_timeout", r.idle),
		zap.Duration("interval", r.interval))

	for {
		select {
		case <-ticker.C:
			if evicted := r.evictor.EvictIdle(ctx, r.idle); len(evicted) > 0 {
				r.logger.Info("evicted idle sessions", zap.Int("count", len(evicted)))
			}
		case <-ctx.Done():
			r.logger.Debug("session reaper stopping")
			return
		}
	}
}

package location

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"lead-allocation/internal/logger"
	"lead-allocation/internal/models"
)

// Tracker owns the reference point of one ranking session. Fixes are
// requested one at a time and refreshed on a timer. Every request is
// stamped on issue; a fix that lands after a newer one was applied is dropped.
type Tracker struct {
	provider Provider
	opts     Options
	fallback models.GeoPoint
	interval time.Duration

	group  singleflight.Group
	issued atomic.Uint64

	mu      sync.Mutex
	applied uint64
	current *models.GeoPoint
	source  Source
	subs    []func(models.GeoPoint)
	stop    context.CancelFunc
	done    chan struct{}
}

func NewTracker(p Provider, opts Options, fallback models.GeoPoint, interval time.Duration) *Tracker {
	return &Tracker{provider: p, opts: opts, fallback: fallback, interval: interval}
}

// Subscribe registers fn to run after each applied fix.
func (t *Tracker) Subscribe(fn func(models.GeoPoint)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Current returns the last applied point, if any.
func (t *Tracker) Current() (models.GeoPoint, Source, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return models.GeoPoint{}, "", false
	}
	return *t.current, t.source, true
}

// Refresh requests a fix and reports whether it became current.
// It always returns a point: the provider's, or the fallback.
// The shared lookup ignores ctx cancellation and is bounded by opts.Timeout.
func (t *Tracker) Refresh(ctx context.Context) (models.GeoPoint, bool) {
	seq := t.issued.Add(1)
	shared := context.WithoutCancel(ctx)
	ch := t.group.DoChan("fix", func() (interface{}, error) {
		p, src := Resolve(shared, t.provider, t.opts, t.fallback)
		return fix{p: p, err: sourceErr(src)}, nil
	})

	var f fix
	select {
	case r := <-ch:
		f = r.Val.(fix)
	case <-ctx.Done():
		return t.fallback, false
	}
	if ctx.Err() != nil {
		return f.p, false
	}
	src := SourceProvider
	if f.err != nil {
		src = SourceFallback
	}
	return f.p, t.apply(seq, f.p, src)
}

// Set applies a point supplied directly by the client, superseding
// every request still in flight.
func (t *Tracker) Set(p models.GeoPoint) {
	t.apply(t.issued.Add(1), p, SourceProvider)
}

func (t *Tracker) apply(seq uint64, p models.GeoPoint, src Source) bool {
	t.mu.Lock()
	if seq <= t.applied {
		t.mu.Unlock()
		logger.L().Debug("location_superseded", "seq", seq, "applied", t.applied)
		return false
	}
	t.applied = seq
	t.current = &p
	t.source = src
	subs := make([]func(models.GeoPoint), len(t.subs))
	copy(subs, t.subs)
	t.mu.Unlock()

	for _, fn := range subs {
		fn(p)
	}
	return true
}

// Start fetches immediately and then on every interval until Stop or ctx
// is done. A running loop is stopped first.
func (t *Tracker) Start(ctx context.Context) {
	t.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.stop = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		t.Refresh(ctx)
		if t.interval <= 0 {
			return
		}
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.Refresh(ctx)
			}
		}
	}()
}

// Stop cancels the refresh loop and waits for it to exit.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func sourceErr(src Source) error {
	if src == SourceFallback {
		return ErrUnavailable
	}
	return nil
}

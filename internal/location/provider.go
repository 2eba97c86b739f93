// Package location resolves the reference point that leads are ranked against.
package location

import (
	"context"
	"errors"
	"time"

	"lead-allocation/internal/logger"
	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
)

type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxCacheAge  time.Duration
}

// DefaultOptions mirrors the dashboard: low accuracy, 10s wait, 10s cache.
var DefaultOptions = Options{Timeout: 10 * time.Second, MaxCacheAge: 10 * time.Second}

// Provider produces a position fix or fails.
type Provider interface {
	CurrentPosition(ctx context.Context, opts Options) (models.GeoPoint, error)
}

type ProviderFunc func(ctx context.Context, opts Options) (models.GeoPoint, error)

func (f ProviderFunc) CurrentPosition(ctx context.Context, opts Options) (models.GeoPoint, error) {
	return f(ctx, opts)
}

// Static always answers with the same point.
type Static models.GeoPoint

func (s Static) CurrentPosition(context.Context, Options) (models.GeoPoint, error) {
	return models.GeoPoint(s), nil
}

var ErrUnavailable = errors.New("position unavailable")

type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

type fix struct {
	p   models.GeoPoint
	err error
}

// Resolve asks p for a fix, waiting at most opts.Timeout. Any failure,
// including a provider that ignores cancellation, yields fallback.
func Resolve(ctx context.Context, p Provider, opts Options, fallback models.GeoPoint) (models.GeoPoint, Source) {
	if p == nil {
		metrics.LocationFixesTotal.WithLabelValues(string(SourceFallback)).Inc()
		return fallback, SourceFallback
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ch := make(chan fix, 1)
	go func() {
		pt, err := p.CurrentPosition(ctx, opts)
		ch <- fix{p: pt, err: err}
	}()

	var err error
	select {
	case f := <-ch:
		if f.err == nil {
			metrics.LocationFixesTotal.WithLabelValues(string(SourceProvider)).Inc()
			return f.p, SourceProvider
		}
		err = f.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	logger.L().Warn("location_fallback", "err", err, "lat", fallback.Latitude, "lng", fallback.Longitude)
	metrics.LocationFixesTotal.WithLabelValues(string(SourceFallback)).Inc()
	return fallback, SourceFallback
}

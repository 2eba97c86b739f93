// Package notify simulates push notifications for newly assigned leads.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"lead-allocation/internal/metrics"
	"lead-allocation/internal/models"
)

var ErrNoPending = errors.New("no pending notification")

// Publisher delivers a notification to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
}

// Subscriber consumes notifications matching a routing key pattern.
type Subscriber interface {
	Subscribe(ctx context.Context, routingKey string, handler func(models.Notification) error) error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.Notification) error { return nil }

// MockLead is the lead every simulated notification carries.
var MockLead = models.Lead{
	Name:       "Priya Sharma",
	Location:   "Pune",
	Position:   models.GeoPoint{Latitude: 18.5204, Longitude: 73.8567},
	MatchScore: 88,
}

// Simulator holds at most one pending notification plus the leads the
// user declined. State lives only in memory.
type Simulator struct {
	pub  Publisher
	lead models.Lead

	mu       sync.Mutex
	pending  *models.Notification
	declined []models.Lead
}

func NewSimulator(pub Publisher) *Simulator {
	if pub == nil {
		pub = NopPublisher{}
	}
	return &Simulator{pub: pub, lead: MockLead}
}

// Trigger replaces any pending notification with a fresh one.
// The notification stays pending even when publishing fails.
func (s *Simulator) Trigger(ctx context.Context) (models.Notification, error) {
	n := models.Notification{
		ID:        uuid.New().String(),
		Lead:      s.lead,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.pending = &n
	s.mu.Unlock()
	metrics.NotificationsTotal.WithLabelValues("triggered").Inc()

	if err := s.pub.Publish(ctx, n); err != nil {
		return n, fmt.Errorf("publish notification: %w", err)
	}
	return n, nil
}

func (s *Simulator) Pending() (models.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return models.Notification{}, false
	}
	return *s.pending, true
}

// Accept clears the pending notification and returns its lead.
func (s *Simulator) Accept() (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return models.Lead{}, ErrNoPending
	}
	l := s.pending.Lead
	s.pending = nil
	metrics.NotificationsTotal.WithLabelValues("accepted").Inc()
	return l, nil
}

// Reject moves the pending lead to the declined list.
func (s *Simulator) Reject() (models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return models.Lead{}, ErrNoPending
	}
	l := s.pending.Lead
	declined := make([]models.Lead, len(s.declined), len(s.declined)+1)
	copy(declined, s.declined)
	s.declined = append(declined, l)
	s.pending = nil
	metrics.NotificationsTotal.WithLabelValues("rejected").Inc()
	return l, nil
}

func (s *Simulator) Declined() []models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Lead, len(s.declined))
	copy(out, s.declined)
	return out
}

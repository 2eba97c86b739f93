package dashboard

import (
	"context"
	"sync"
	"time"

	"lead-allocation/internal/catalog"
	"lead-allocation/internal/chat"
	"lead-allocation/internal/location"
	"lead-allocation/internal/logger"
	"lead-allocation/internal/models"
	"lead-allocation/internal/notify"
)

// Session is everything one signed-in user sees. The snapshot is swapped
// under a lock; the tracker feeds new reference points into it.
type Session struct {
	Tracker *location.Tracker
	Chat    *chat.Conversation
	Notify  *notify.Simulator

	mu    sync.Mutex
	state State

	seen time.Time // guarded by Sessions.mu
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Apply replaces the snapshot with fn(current) and returns it.
func (s *Session) Apply(fn func(State) State) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = fn(s.state)
	return s.state
}

// TrackerFactory builds the location tracker for a client address.
type TrackerFactory func(clientIP string) *location.Tracker

type Sessions struct {
	base       context.Context
	catalog    *catalog.Catalog
	threshold  int
	newTracker TrackerFactory
	chat       chat.Backend
	pub        notify.Publisher
	now        func() time.Time

	mu   sync.Mutex
	byID map[string]*Session
}

// NewSessions ties session lifetimes to base: cancelling it stops every tracker.
func NewSessions(base context.Context, c *catalog.Catalog, threshold int, newTracker TrackerFactory, backend chat.Backend, pub notify.Publisher) *Sessions {
	return &Sessions{
		base:       base,
		catalog:    c,
		threshold:  threshold,
		newTracker: newTracker,
		chat:       backend,
		pub:        pub,
		now:        time.Now,
		byID:       make(map[string]*Session),
	}
}

// Get returns the session for id, creating it and starting its tracker
// on first use. id is the per-cookie session ID, so two devices signed in
// as the same user get separate sessions.
func (s *Sessions) Get(id, clientIP string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byID[id]; ok {
		sess.seen = s.now()
		return sess
	}

	sess := &Session{
		Tracker: s.newTracker(clientIP),
		Chat:    chat.NewConversation(s.chat),
		Notify:  notify.NewSimulator(s.pub),
		state:   New(s.catalog, s.threshold),
		seen:    s.now(),
	}
	sess.Tracker.Subscribe(func(p models.GeoPoint) {
		sess.Apply(func(st State) State { return st.SetReference(p) })
	})
	sess.Tracker.Start(s.base)
	s.byID[id] = sess
	return sess
}

// Close stops the session's tracker and forgets it.
func (s *Sessions) Close(id string) {
	s.mu.Lock()
	sess, ok := s.byID[id]
	delete(s.byID, id)
	s.mu.Unlock()
	if ok {
		sess.Tracker.Stop()
	}
}

func (s *Sessions) CloseAll() {
	s.mu.Lock()
	all := s.byID
	s.byID = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Tracker.Stop()
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// Expire closes sessions not used for longer than maxIdle and returns
// how many were removed.
func (s *Sessions) Expire(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.byID {
		if sess.seen.Before(cutoff) {
			idle = append(idle, sess)
			delete(s.byID, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.Tracker.Stop()
	}
	return len(idle)
}

// ExpireEvery runs Expire on every tick until ctx is done.
func (s *Sessions) ExpireEvery(ctx context.Context, every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Expire(maxIdle); n > 0 {
				logger.L().Info("sessions_expired", "count", n)
			}
		}
	}
}

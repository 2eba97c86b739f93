// Package chat is the lead recommendation conversation backed by a mock API.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"lead-allocation/internal/models"
)

const (
	RoleUser = "user"
	RoleBot  = "bot"

	botReply       = "Here are some leads:"
	highlightScore = 80
)

type Suggestion struct {
	models.Lead
	Highlight bool `json:"highlight"`
}

type Message struct {
	Role  string       `json:"role"`
	Text  string       `json:"text"`
	Leads []Suggestion `json:"leads,omitempty"`
}

// Backend answers a free-text query with candidate leads.
type Backend interface {
	Recommend(ctx context.Context, query string) ([]models.Lead, error)
}

// MockBackend waits Delay and returns a fixed list, ignoring the query.
type MockBackend struct {
	Delay time.Duration
	Leads []models.Lead
}

func NewMockBackend(delay time.Duration) *MockBackend {
	return &MockBackend{
		Delay: delay,
		Leads: []models.Lead{
			{Name: "Alice Johnson", Location: "Mumbai", MatchScore: 92},
			{Name: "Bob Singh", Location: "Delhi", MatchScore: 78},
			{Name: "Carol Verma", Location: "Bangalore", MatchScore: 85},
		},
	}
}

func (m *MockBackend) Recommend(ctx context.Context, _ string) ([]models.Lead, error) {
	select {
	case <-time.After(m.Delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	out := make([]models.Lead, len(m.Leads))
	copy(out, m.Leads)
	return out, nil
}

type Conversation struct {
	backend Backend

	mu       sync.Mutex
	messages []Message
}

func NewConversation(b Backend) *Conversation {
	return &Conversation{backend: b}
}

// Send records the user message, then the bot reply. Blank input is
// ignored and returns no messages. On backend failure only the user
// message is kept.
func (c *Conversation) Send(ctx context.Context, text string) ([]Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	user := Message{Role: RoleUser, Text: text}
	c.append(user)

	leads, err := c.backend.Recommend(ctx, text)
	if err != nil {
		return []Message{user}, err
	}
	bot := Message{Role: RoleBot, Text: botReply, Leads: make([]Suggestion, len(leads))}
	for i, l := range leads {
		bot.Leads[i] = Suggestion{Lead: l, Highlight: l.MatchScore > highlightScore}
	}
	c.append(bot)
	return []Message{user, bot}, nil
}

func (c *Conversation) append(m Message) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

func (c *Conversation) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

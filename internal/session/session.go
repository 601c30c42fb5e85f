// Package session holds per-conversation state for interactive front ends.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"docqa/internal/domain"
)

// Settings are the user-tunable knobs of a conversation.
type Settings struct {
	K            int
	Temperature  float64
	Streaming    bool
	ChunkSize    int
	ChunkOverlap int
}

// Exchange is one answered question.
type Exchange struct {
	Question string
	Answer   string
	Sources  []domain.Citation
	Model    string
	Duration time.Duration
	AskedAt  time.Time
}

// Session is owned by its caller; it is safe for concurrent use.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu       sync.RWMutex
	settings Settings
	history  []Exchange
}

// New starts a session with the given settings.
func New(settings Settings) *Session {
	return &Session{ID: uuid.New(), CreatedAt: time.Now(), settings: settings}
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update replaces the settings and reports whether the answering chain has to
// be rebuilt, which is the case when k or temperature changed.
func (s *Session) Update(next Settings) (rebuild bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rebuild = next.K != s.settings.K || next.Temperature != s.settings.Temperature
	s.settings = next
	return rebuild
}

// Record appends a successful result to the history. Failed results are
// dropped and Record reports false.
func (s *Session) Record(res domain.QueryResult) bool {
	if !res.Success {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, Exchange{
		Question: res.Question,
		Answer:   res.Answer,
		Sources:  res.Sources,
		Model:    res.Model,
		Duration: res.ProcessingTime,
		AskedAt:  time.Now(),
	})
	return true
}

// History returns a copy of the recorded exchanges, oldest first.
func (s *Session) History() []Exchange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Exchange, len(s.history))
	copy(out, s.history)
	return out
}

// Reset clears the history and keeps the settings.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

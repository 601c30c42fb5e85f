package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
)

func TestRecord_OnlySuccessful(t *testing.T) {
	s := New(Settings{K: 4, Temperature: 0.1})

	assert.True(t, s.Record(domain.QueryResult{Question: "Q1", Answer: "A1", Success: true, ProcessingTime: time.Second}))
	assert.False(t, s.Record(domain.QueryResult{Question: "Q2", Err: errors.New("boom")}))

	h := s.History()
	require.Len(t, h, 1)
	assert.Equal(t, "Q1", h[0].Question)
	assert.Equal(t, time.Second, h[0].Duration)
}

func TestHistory_IsCopy(t *testing.T) {
	s := New(Settings{})
	s.Record(domain.QueryResult{Question: "Q", Success: true})
	h := s.History()
	h[0].Question = "mutated"
	assert.Equal(t, "Q", s.History()[0].Question)
}

func TestReset_KeepsSettings(t *testing.T) {
	s := New(Settings{K: 7})
	s.Record(domain.QueryResult{Question: "Q", Success: true})
	s.Reset()
	assert.Empty(t, s.History())
	assert.Equal(t, 7, s.Settings().K)
}

func TestUpdate(t *testing.T) {
	base := Settings{K: 4, Temperature: 0.1, ChunkSize: 1000, ChunkOverlap: 200}
	tests := []struct {
		name    string
		next    func(Settings) Settings
		rebuild bool
	}{
		{"unchanged", func(s Settings) Settings { return s }, false},
		{"streaming only", func(s Settings) Settings { s.Streaming = true; return s }, false},
		{"chunking only", func(s Settings) Settings { s.ChunkSize = 500; return s }, false},
		{"k", func(s Settings) Settings { s.K = 8; return s }, true},
		{"temperature", func(s Settings) Settings { s.Temperature = 0.7; return s }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(base)
			next := tt.next(base)
			assert.Equal(t, tt.rebuild, s.Update(next))
			assert.Equal(t, next, s.Settings())
		})
	}
}

func TestNew_AssignsID(t *testing.T) {
	assert.NotEqual(t, New(Settings{}).ID, New(Settings{}).ID)
}

package domain

import (
	"encoding/json"
	"time"
)

// Citation describes a retrieved chunk backing an answer.
type Citation struct {
	Index       int    `json:"index"`
	File        string `json:"file"`
	ChunkID     *int   `json:"chunk_id,omitempty"`
	Preview     string `json:"preview"`
	FullContent string `json:"full_content"`
	Page        *int   `json:"page,omitempty"`
}

// QueryResult is the outcome of answering one question.
type QueryResult struct {
	Question       string
	Answer         string
	Success        bool
	ProcessingTime time.Duration
	Sources        []Citation
	Model          string
	Err            error
}

// MarshalJSON renders durations as seconds and errors as their message.
func (r QueryResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Question       string     `json:"question"`
		Answer         string     `json:"answer,omitempty"`
		Success        bool       `json:"success"`
		ProcessingTime float64    `json:"processing_time"`
		Sources        []Citation `json:"sources,omitempty"`
		NumSources     int        `json:"num_sources,omitempty"`
		Model          string     `json:"model,omitempty"`
		Error          string     `json:"error,omitempty"`
		ErrorKind      string     `json:"error_kind,omitempty"`
	}{
		Question:       r.Question,
		Answer:         r.Answer,
		Success:        r.Success,
		ProcessingTime: r.ProcessingTime.Seconds(),
		Sources:        r.Sources,
		NumSources:     len(r.Sources),
		Model:          r.Model,
	}
	if r.Err != nil {
		out.Error = r.Err.Error()
		out.ErrorKind = KindOf(r.Err).String()
	}
	return json.Marshal(out)
}

// Package qdrant is a minimal REST client exposing a Qdrant collection as a
// vectorstore.Collection. It assumes cosine distance and creates the
// collection on first insert, once the vector size is known.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const (
	payloadContent  = "content"
	payloadMetadata = "metadata"
	payloadSource   = "source_file"
)

// errNotFound marks a 404 from Qdrant, which for most calls means the
// collection has not been created yet.
var errNotFound = errors.New("qdrant: not found")

type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	created bool
}

var _ vectorstore.Collection = (*Storage)(nil)

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Opener returns a vectorstore.Opener bound to one Qdrant server. The persist
// directory is ignored: the server owns persistence.
func Opener(cfg Config) vectorstore.Opener {
	return func(ctx context.Context, _ string, collection string) (vectorstore.Collection, error) {
		if collection == "" {
			return nil, errors.New("collection name required")
		}
		c := cfg
		c.Collection = collection
		s := NewStorage(c)
		if _, err := s.exists(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, url.PathEscape(s.collection), suffix)
}

func (s *Storage) exists(ctx context.Context) (bool, error) {
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	if errors.Is(err, errNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.created = true
	s.mu.Unlock()
	return true, nil
}

func (s *Storage) ensureCollection(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return err
	}
	// keyword index backing the source_file facet
	index := map[string]any{"field_name": payloadSource, "field_schema": "keyword"}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil); err != nil {
		return err
	}
	s.created = true
	return nil
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Insert upserts the records whose IDs are not yet stored, in one request.
func (s *Storage) Insert(ctx context.Context, records []vectorstore.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	dim := len(records[0].Vector)
	for _, r := range records {
		if r.ID == "" {
			return 0, errors.New("record without id")
		}
		if dim == 0 || len(r.Vector) != dim {
			return 0, fmt.Errorf("record %s: %w", r.ID, vectorstore.ErrDimensionMismatch)
		}
	}
	if err := s.ensureCollection(ctx, dim); err != nil {
		return 0, err
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	existing, err := s.retrieve(ctx, ids, false)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p.ID] = struct{}{}
	}

	points := make([]point, 0, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		md := r.Metadata
		if md == nil {
			md = domain.Metadata{}
		}
		points = append(points, point{
			ID:     r.ID,
			Vector: r.Vector,
			Payload: map[string]any{
				payloadContent:  r.Content,
				payloadMetadata: md,
				payloadSource:   vectorstore.SourceOf(md),
			},
		})
	}
	if len(points) == 0 {
		return 0, nil
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return 0, err
	}
	return len(points), nil
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int, filter vectorstore.Filter) ([]vectorstore.ScoredRecord, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			ID      string         `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	results := make([]vectorstore.ScoredRecord, 0, len(resp.Result))
	for _, r := range resp.Result {
		rec := fromPayload(r.ID, r.Payload)
		results = append(results, vectorstore.ScoredRecord{Record: rec, Score: r.Score})
	}
	return results, nil
}

func (s *Storage) Get(ctx context.Context, ids []string) ([]vectorstore.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pts, err := s.retrieve(ctx, ids, true)
	if err != nil {
		return nil, err
	}
	out := make([]vectorstore.Record, 0, len(pts))
	for _, p := range pts {
		r := fromPayload(p.ID, p.Payload)
		r.Vector = p.Vector
		out = append(out, r)
	}
	return out, nil
}

func (s *Storage) retrieve(ctx context.Context, ids []string, full bool) ([]point, error) {
	req := map[string]any{"ids": ids, "with_payload": full, "with_vector": full}
	var resp struct {
		Result []point `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points"), req, &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"exact": true}, &resp)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

// SourceCounts uses the exact facet API over the source_file payload index.
func (s *Storage) SourceCounts(ctx context.Context) (map[string]int, error) {
	req := map[string]any{"key": payloadSource, "exact": true, "limit": 100000}
	var resp struct {
		Result struct {
			Hits []struct {
				Value string `json:"value"`
				Count int    `json:"count"`
			} `json:"hits"`
		} `json:"result"`
	}
	out := map[string]int{}
	err := s.do(ctx, http.MethodPost, s.collectionURL("/facet"), req, &resp)
	if errors.Is(err, errNotFound) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	for _, h := range resp.Result.Hits {
		out[h.Value] = h.Count
	}
	return out, nil
}

// Drop deletes the collection. It is recreated by the next Insert.
func (s *Storage) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.do(ctx, http.MethodDelete, s.collectionURL(""), nil, nil)
	if err != nil && !errors.Is(err, errNotFound) {
		return err
	}
	s.created = false
	return nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func buildFilter(filter vectorstore.Filter) map[string]any {
	if len(filter) == 0 {
		return nil
	}
	must := make([]map[string]any, 0, len(filter))
	for k, v := range filter {
		key := payloadMetadata + "." + k
		if k == domain.MetaSourceFile {
			key = payloadSource
		}
		must = append(must, map[string]any{"key": key, "match": map[string]any{"value": v}})
	}
	return map[string]any{"must": must}
}

func fromPayload(id string, payload map[string]any) vectorstore.Record {
	r := vectorstore.Record{ID: id, Metadata: domain.Metadata{}}
	if v, ok := payload[payloadContent].(string); ok {
		r.Content = v
	}
	if md, ok := payload[payloadMetadata].(map[string]any); ok {
		r.Metadata = md
	}
	return r
}

func (s *Storage) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: marshal request: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rd)
	if err != nil {
		return fmt.Errorf("qdrant: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s %s", errNotFound, method, endpoint)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, endpoint, resp.Status, bytes.TrimSpace(msg))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

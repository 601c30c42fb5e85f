// Package rag answers questions from an indexed collection: it retrieves the
// top-k chunks, renders them into a fixed prompt and drives the language
// model synchronously, as a token stream, or over a batch of questions.
package rag

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"time"

	"docqa/internal/domain"
	"docqa/internal/vectorstore"
)

const (
	DefaultK           = 4
	DefaultTemperature = 0.1
	DefaultTimeout     = 120 * time.Second

	emptyQuestionFragment = "Error: Empty question provided"
)

// Retriever is the slice of the index manager the chain depends on.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filter vectorstore.Filter) ([]domain.ScoredChunk, error)
	Count(ctx context.Context) int
	EmbeddingModel() string
}

// Chain is the retrieval orchestrator. It holds no per-request state.
type Chain struct {
	retriever   Retriever
	llm         domain.LLM
	k           int
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

func WithK(k int) Option { return func(c *Chain) { c.k = k } }

func WithTemperature(t float64) Option { return func(c *Chain) { c.temperature = t } }

func WithMaxTokens(n int) Option { return func(c *Chain) { c.maxTokens = n } }

// WithTimeout bounds a whole query, retrieval and generation included.
func WithTimeout(d time.Duration) Option { return func(c *Chain) { c.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(c *Chain) { c.logger = l } }

// ChainInfo describes a chain's configuration.
type ChainInfo struct {
	Model            string  `json:"model"`
	K                int     `json:"k"`
	Temperature      float64 `json:"temperature"`
	IndexedDocuments int     `json:"indexed_documents"`
	EmbeddingModel   string  `json:"embedding_model"`
}

// New builds a chain over retriever and llm.
func New(retriever Retriever, llm domain.LLM, opts ...Option) (*Chain, error) {
	if retriever == nil || llm == nil {
		return nil, domain.E(domain.KindInput, "rag.new", errors.New("retriever and llm are required"))
	}
	c := &Chain{
		retriever:   retriever,
		llm:         llm,
		k:           DefaultK,
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.k <= 0 {
		return nil, domain.E(domain.KindInput, "rag.new", errors.New("k must be positive"))
	}
	if c.temperature < 0 {
		return nil, domain.E(domain.KindInput, "rag.new", errors.New("temperature must not be negative"))
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	return c, nil
}

// K returns the retrieval width.
func (c *Chain) K() int { return c.k }

func (c *Chain) options() domain.GenerateOptions {
	return domain.GenerateOptions{Temperature: c.temperature, MaxTokens: c.maxTokens}
}

func (c *Chain) retrieve(ctx context.Context, op, question string) ([]domain.ScoredChunk, error) {
	hits, err := c.retriever.Retrieve(ctx, question, c.k, nil)
	if err != nil {
		if domain.KindOf(err) == domain.KindUnknown {
			err = domain.E(domain.KindIndex, op, err)
		}
		return nil, err
	}
	return hits, nil
}

// Query answers one question. It never returns an error: failures are
// reported in the result and logged. The same retrieval feeds the prompt and
// the citations.
func (c *Chain) Query(ctx context.Context, question string, returnSources bool) domain.QueryResult {
	const op = "rag.query"
	start := time.Now()
	res := domain.QueryResult{Question: question, Model: c.llm.ModelName()}
	fail := func(err error) domain.QueryResult {
		res.Err = err
		res.ProcessingTime = time.Since(start)
		c.logger.Error("query failed", "error", err, "duration", res.ProcessingTime)
		return res
	}

	if strings.TrimSpace(question) == "" {
		return fail(domain.E(domain.KindInput, op, domain.ErrEmptyQuestion))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	hits, err := c.retrieve(ctx, op, question)
	if err != nil {
		return fail(err)
	}
	answer, err := c.llm.Complete(ctx, BuildPrompt(FormatContext(hits), question), c.options())
	if err != nil {
		return fail(domain.E(domain.KindGeneration, op, err))
	}

	res.Answer = answer
	res.Success = true
	res.ProcessingTime = time.Since(start)
	if returnSources {
		res.Sources = Citations(hits)
	}
	c.logger.Info("query answered",
		"duration", res.ProcessingTime.Round(time.Millisecond),
		"num_sources", len(hits),
	)
	return res
}

// StreamQueryErr yields answer fragments in emission order. A failure ends
// the sequence with a single pair carrying the classified error. Stopping the
// iteration early cancels the backend stream.
func (c *Chain) StreamQueryErr(ctx context.Context, question string) iter.Seq2[string, error] {
	const op = "rag.stream"
	return func(yield func(string, error) bool) {
		if strings.TrimSpace(question) == "" {
			yield("", domain.E(domain.KindInput, op, domain.ErrEmptyQuestion))
			return
		}
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		hits, err := c.retrieve(ctx, op, question)
		if err != nil {
			c.logger.Error("stream failed", "error", err)
			yield("", err)
			return
		}
		stream, err := c.llm.Stream(ctx, BuildPrompt(FormatContext(hits), question), c.options())
		if err != nil {
			err = domain.E(domain.KindGeneration, op, err)
			c.logger.Error("stream failed", "error", err)
			yield("", err)
			return
		}
		defer stream.Close()

		for {
			tok, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				err = domain.E(domain.KindGeneration, op, err)
				c.logger.Error("stream interrupted", "error", err)
				yield("", err)
				return
			}
			if !yield(tok, nil) {
				c.logger.Debug("stream abandoned by consumer")
				return
			}
		}
	}
}

// StreamQuery is StreamQueryErr rendered as text: a failure becomes a final
// "Error: ..." fragment.
func (c *Chain) StreamQuery(ctx context.Context, question string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for frag, err := range c.StreamQueryErr(ctx, question) {
			if err != nil {
				if errors.Is(err, domain.ErrEmptyQuestion) {
					yield(emptyQuestionFragment)
				} else {
					yield(errorFragment(err))
				}
				return
			}
			if !yield(frag) {
				return
			}
		}
	}
}

// Sources returns the citations for question using the chain's k. Retrieval
// is deterministic, so after StreamQuery it yields the chunks the stream used.
func (c *Chain) Sources(ctx context.Context, question string) []domain.Citation {
	if strings.TrimSpace(question) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	hits, err := c.retrieve(ctx, "rag.sources", question)
	if err != nil {
		c.logger.Error("source retrieval failed", "error", err)
		return nil
	}
	return Citations(hits)
}

// BatchQuery answers questions with one batch call to the model. Blank
// questions fail individually; any other failure fails every remaining
// question with the same error.
func (c *Chain) BatchQuery(ctx context.Context, questions []string, returnSources bool) []domain.QueryResult {
	const op = "rag.batch"
	start := time.Now()
	results := make([]domain.QueryResult, len(questions))
	model := c.llm.ModelName()

	var (
		pending []int
		prompts []string
		hitsFor = make(map[int][]domain.ScoredChunk)
	)
	for i, q := range questions {
		results[i] = domain.QueryResult{Question: q, Model: model}
		if strings.TrimSpace(q) == "" {
			results[i].Err = domain.E(domain.KindInput, op, domain.ErrEmptyQuestion)
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	failAll := func(err error) []domain.QueryResult {
		elapsed := time.Since(start)
		for _, i := range pending {
			results[i].Err = err
			results[i].ProcessingTime = elapsed
		}
		c.logger.Error("batch failed", "questions", len(pending), "error", err)
		return results
	}

	for _, i := range pending {
		hits, err := c.retrieve(ctx, op, questions[i])
		if err != nil {
			return failAll(err)
		}
		hitsFor[i] = hits
		prompts = append(prompts, BuildPrompt(FormatContext(hits), questions[i]))
	}

	answers, err := c.llm.Batch(ctx, prompts, c.options())
	if err != nil {
		return failAll(domain.E(domain.KindGeneration, op, err))
	}
	if len(answers) != len(prompts) {
		return failAll(domain.E(domain.KindGeneration, op, errors.New("backend returned a partial batch")))
	}

	elapsed := time.Since(start)
	for n, i := range pending {
		results[i].Answer = answers[n]
		results[i].Success = true
		results[i].ProcessingTime = elapsed
		if returnSources {
			results[i].Sources = Citations(hitsFor[i])
		}
	}
	c.logger.Info("batch answered", "questions", len(pending), "duration", elapsed.Round(time.Millisecond))
	return results
}

// Info describes the chain and the collection behind it.
func (c *Chain) Info(ctx context.Context) ChainInfo {
	return ChainInfo{
		Model:            c.llm.ModelName(),
		K:                c.k,
		Temperature:      c.temperature,
		IndexedDocuments: c.retriever.Count(ctx),
		EmbeddingModel:   c.retriever.EmbeddingModel(),
	}
}

func errorFragment(err error) string {
	return "Error: " + err.Error()
}

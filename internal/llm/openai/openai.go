// Package openai adapts any OpenAI-compatible chat completion API (Groq,
// OpenAI, Ollama, vLLM) to domain.LLM.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"sync"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"

	"docqa/internal/domain"
)

// Config configures the chat client. Request deadlines come from the
// caller's context.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	// Concurrency bounds parallel requests in Batch.
	Concurrency int
	HTTPClient  *http.Client
}

// Client is a domain.LLM backed by go-openai.
type Client struct {
	client      *openai.Client
	model       string
	concurrency int
}

var _ domain.LLM = (*Client)(nil)

// NewClient builds a chat client. An empty APIKeyEnv allows keyless local servers.
func NewClient(cfg Config) (*Client, error) {
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
		}
	}
	if cfg.Model == "" {
		return nil, errors.New("model name required")
	}
	oc := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		concurrency: concurrency,
	}, nil
}

func (c *Client) ModelName() string { return c.model }

func (c *Client) request(prompt string, opts domain.GenerateOptions, stream bool) openai.ChatCompletionRequest {
	temp := float32(opts.Temperature)
	if temp == 0 {
		// a zero value is dropped by omitempty and the server would use its default
		temp = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Temperature: temp,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

// Complete returns the full completion for prompt.
func (c *Client) Complete(ctx context.Context, prompt string, opts domain.GenerateOptions) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.request(prompt, opts, false))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion.
func (c *Client) Stream(ctx context.Context, prompt string, opts domain.GenerateOptions) (domain.TokenStream, error) {
	s, err := c.client.CreateChatCompletionStream(ctx, c.request(prompt, opts, true))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &tokenStream{stream: s}, nil
}

// Batch completes prompts concurrently. The first failure cancels the rest
// and fails the whole batch.
func (c *Client) Batch(ctx context.Context, prompts []string, opts domain.GenerateOptions) ([]string, error) {
	out := make([]string, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, p := range prompts {
		g.Go(func() error {
			answer, err := c.Complete(gctx, p, opts)
			if err != nil {
				return fmt.Errorf("prompt %d: %w", i, err)
			}
			out[i] = answer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type tokenStream struct {
	stream *openai.ChatCompletionStream
	once   sync.Once
	err    error
}

// Recv returns the next non-empty content delta, or io.EOF once the model is done.
func (t *tokenStream) Recv() (string, error) {
	for {
		resp, err := t.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("chat completion stream: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if delta := resp.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
		if resp.Choices[0].FinishReason != "" {
			return "", io.EOF
		}
	}
}

func (t *tokenStream) Close() error {
	t.once.Do(func() { t.err = t.stream.Close() })
	return t.err
}

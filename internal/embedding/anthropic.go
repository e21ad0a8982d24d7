package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/tidwall/gjson"
)

const (
	defaultModel   = "claude-3-5-haiku-20241022"
	vectorDims     = 256
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned by NewAnthropicProvider when no API key is
// available from either the explicit argument or the environment.
var ErrAPIKeyRequired = errors.New("embedding: ANTHROPIC_API_KEY required")

// AnthropicProvider derives a fixed-length semantic vector for text by
// asking the configured model to produce a deterministic numeric digest of
// the text's meaning, parsed defensively with gjson in case the model
// wraps the array in prose. This is the same retry/backoff shape as the
// teacher's internal/compact package, applied to a different completion
// task against the same client.
type AnthropicProvider struct {
	client         anthropic.Client
	model          anthropic.Model
	maxRetries     int
	initialBackoff time.Duration
}

// NewAnthropicProvider builds a Provider from ANTHROPIC_API_KEY when that
// environment variable is set (it takes precedence over apiKey), otherwise
// from apiKey.
func NewAnthropicProvider(apiKey string) (*AnthropicProvider, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}
	return &AnthropicProvider{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          defaultModel,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

func (p *AnthropicProvider) Embed(ctx context.Context, text string) ([]float32, string, error) {
	prompt := fmt.Sprintf(embedPromptTemplate, vectorDims, vectorDims, truncate(text, 4000))

	raw, err := p.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	vec := parseVector(raw)
	if len(vec) != vectorDims {
		return nil, "", fmt.Errorf("%w: model returned %d dimensions, want %d", ErrUnavailable, len(vec), vectorDims)
	}
	return vec, string(p.model), nil
}

func (p *AnthropicProvider) callWithRetry(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 2048,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := p.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := p.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", fmt.Errorf("no content blocks in response")
			}
			return message.Content[0].Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable: %w", err)
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", p.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

// parseVector pulls the first JSON array of numbers out of raw, tolerating
// surrounding prose the model may add despite instructions not to.
func parseVector(raw string) []float32 {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return nil
	}
	arr := gjson.Parse(raw[start : end+1])
	if !arr.IsArray() {
		return nil
	}
	var out []float32
	arr.ForEach(func(_, v gjson.Result) bool {
		out = append(out, float32(v.Float()))
		return true
	})
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

const embedPromptTemplate = `Produce a %d-dimensional embedding vector that represents the semantic meaning of the text below, suitable for cosine-similarity comparison against other embeddings you produce the same way. Reply with ONLY a JSON array of %d floats in [-1, 1], no prose, no markdown fence.

Text:
%s`

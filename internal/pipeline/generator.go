package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/a1davida1/DomainEmpire-sub003/internal/queue"
)

// Outline is the structured skeleton a draft is written from.
type Outline struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
	Keywords []string `json:"keywords,omitempty"`
}

// Generator produces content for the writing stages. Implementations
// must be safe for concurrent use by multiple workers.
type Generator interface {
	Outline(ctx context.Context, topic string, keywords []string) (*Outline, error)
	Draft(ctx context.Context, outline *Outline) (string, error)
	Humanize(ctx context.Context, body string) (string, error)
}

// RemoteGenerator calls an external generation service over HTTP. A
// circuit breaker sits in front of the service so a dead backend trips
// fast instead of stalling every worker on timeouts; while the breaker
// is open calls fail as retryable so the queue backs the jobs off.
type RemoteGenerator struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewRemoteGenerator(baseURL string, timeout time.Duration, logger *slog.Logger) *RemoteGenerator {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "content-generator",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Generator circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &RemoteGenerator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
	}
}

func (g *RemoteGenerator) Outline(ctx context.Context, topic string, keywords []string) (*Outline, error) {
	var out Outline
	err := g.call(ctx, "/v1/outline", map[string]any{
		"topic":    topic,
		"keywords": keywords,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (g *RemoteGenerator) Draft(ctx context.Context, outline *Outline) (string, error) {
	var out struct {
		Body string `json:"body"`
	}
	if err := g.call(ctx, "/v1/draft", outline, &out); err != nil {
		return "", err
	}
	return out.Body, nil
}

func (g *RemoteGenerator) Humanize(ctx context.Context, body string) (string, error) {
	var out struct {
		Body string `json:"body"`
	}
	err := g.call(ctx, "/v1/humanize", map[string]string{"body": body}, &out)
	if err != nil {
		return "", err
	}
	return out.Body, nil
}

func (g *RemoteGenerator) call(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode generator request: %w", err)
	}

	resp, err := g.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()

		data, err := io.ReadAll(res.Body)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= 300 {
			return nil, fmt.Errorf("generator returned %d: %s", res.StatusCode, string(data))
		}
		return data, nil
	})
	if err != nil {
		// Breaker-open and transport errors are both worth another
		// attempt after the queue's backoff.
		return &queue.RetryableError{Err: fmt.Errorf("generator call %s: %w", path, err)}
	}

	if err := json.Unmarshal(resp.([]byte), out); err != nil {
		return fmt.Errorf("failed to decode generator response from %s: %w", path, err)
	}
	return nil
}

// StaticGenerator produces deterministic content without any external
// service. Used in tests and local development.
type StaticGenerator struct{}

func (StaticGenerator) Outline(_ context.Context, topic string, keywords []string) (*Outline, error) {
	return &Outline{
		Title:    topic,
		Sections: []string{"Overview", "Key Considerations", "Comparison", "Conclusion"},
		Keywords: keywords,
	}, nil
}

func (StaticGenerator) Draft(_ context.Context, outline *Outline) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", outline.Title)
	for _, section := range outline.Sections {
		fmt.Fprintf(&b, "<h2>%s</h2>\n<p>%s of %s, covering %s in practical terms for readers comparing their options.</p>\n",
			section, section, outline.Title, strings.Join(outline.Keywords, ", "))
	}
	return b.String(), nil
}

func (StaticGenerator) Humanize(_ context.Context, body string) (string, error) {
	// Deterministic rewrite marker so tests can observe the stage ran.
	return strings.ReplaceAll(body, "in practical terms", "in plain terms"), nil
}

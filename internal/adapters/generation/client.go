// Package generation is an HTTP client for an Ollama-compatible chat
// endpoint used to answer questions and draft recommendations.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/rankready/pkg/logger"
	"github.com/okian/rankready/pkg/metrics"
	"github.com/okian/rankready/pkg/retry"
)

const (
	defaultTimeout = 60 * time.Second
	defaultModel   = "llama3.1"
	maxErrorBody   = 512
)

var (
	// ErrEmptyQuestion is returned when a request has no question.
	ErrEmptyQuestion = errors.New("generation: empty question")
	// ErrEmptyAnswer is returned when the endpoint replies with no content.
	ErrEmptyAnswer = errors.New("generation: empty answer")
)

// TransientError is a failure worth retrying: rate limiting, temporary
// unavailability or a transport error.
type TransientError struct {
	StatusCode int
	RetryAfter string
	Err        error
}

func (e *TransientError) Error() string {
	var b strings.Builder
	b.WriteString("generation temporarily unavailable")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.RetryAfter != "" {
		fmt.Fprintf(&b, "; Retry-After: %s", e.RetryAfter)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is what a caller hands to the generator.
type Request struct {
	System   string
	Context  string
	History  []Message
	Question string
	JSON     bool
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
}

// Client talks to the chat endpoint.
type Client struct {
	base      url.URL
	http      *http.Client
	model     string
	limiter   *rate.Limiter
	retryOpts []retry.Option
	retrier   *retry.Retrier
}

// NewClient creates a client for baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse generation url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("generation url %q must be absolute", baseURL)
	}

	c := &Client{
		base:  *base,
		http:  &http.Client{Timeout: defaultTimeout},
		model: defaultModel,
	}
	for _, opt := range opts {
		opt(c)
	}

	log := logger.Get().Named("generation")
	defaults := []retry.Option{
		retry.WithRetryIf(IsTransient),
		retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
			metrics.RecordGenerationRetry()
			log.Warn(context.Background(), "retrying generation",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err))
		}),
	}
	c.retrier = retry.New(append(defaults, c.retryOpts...)...)
	return c, nil
}

// Generate sends req and returns the model's reply text.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Question) == "" {
		return "", ErrEmptyQuestion
	}
	body := chatRequest{
		Model:    c.model,
		Messages: buildMessages(req),
	}
	if req.JSON {
		body.Format = "json"
	}

	var answer string
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		start := time.Now()
		var resp chatResponse
		err := c.do(ctx, http.MethodPost, "/api/chat", body, &resp)
		latency := float64(time.Since(start).Microseconds()) / 1000
		switch {
		case err == nil:
			metrics.RecordGenerationAttempt("success", latency)
		case IsTransient(err):
			metrics.RecordGenerationAttempt("transient", latency)
			return err
		default:
			metrics.RecordGenerationAttempt("failure", latency)
			return err
		}
		answer = strings.TrimSpace(resp.Message.Content)
		if answer == "" {
			return ErrEmptyAnswer
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}

func buildMessages(req Request) []Message {
	msgs := make([]Message, 0, len(req.History)+3)
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	if req.Context != "" {
		msgs = append(msgs, Message{Role: "system", Content: "Documentation:\n" + req.Context})
	}
	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: "user", Content: req.Question})
	return msgs
}

func (c *Client) do(ctx context.Context, method, path string, reqData, respData any) error {
	payload, err := json.Marshal(reqData)
	if err != nil {
		return err
	}

	reqURL := c.base.JoinPath(path)
	request, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransientError{StatusCode: resp.StatusCode, Err: err}
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return &TransientError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        errors.New(truncate(string(respBody), maxErrorBody)),
		}
	default:
		return fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, truncate(string(respBody), maxErrorBody))
	}

	if err := json.Unmarshal(respBody, respData); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Package answer issues single requests to the language-model provider with
// rate-limit-aware retry. Generation and accounting are separate concerns:
// the generator returns token usage to the caller and records nothing
// itself.
package answer

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/qna-cli/internal/model"
	"github.com/sells-group/qna-cli/pkg/anthropic"
)

// Request is one answer-generation request.
type Request struct {
	Question     string
	SystemPrompt string
	History      []model.Message
	UsedFallback bool
}

// Result is a successful generation: the answer text, usage metadata for
// the caller to record, and the conversation history extended with the new
// user/assistant turn pair.
type Result struct {
	Text         string
	Model        string
	Usage        anthropic.TokenUsage
	History      []model.Message
	UsedFallback bool
}

// SleepFunc waits for d or until ctx is done. Injected so tests can assert
// backoff behavior without real wall-clock waits.
type SleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option configures a Generator.
type Option func(*Generator)

// WithSleep overrides the backoff sleep function.
func WithSleep(sleep SleepFunc) Option {
	return func(g *Generator) {
		g.sleep = sleep
	}
}

// WithTemperature sets the sampling temperature sent with every request.
// Unset, the provider's default applies.
func WithTemperature(temperature float64) Option {
	return func(g *Generator) {
		g.temperature = &temperature
	}
}

// Generator drives provider calls through a bounded retry loop:
//
//	Pending → Requesting → Success
//	                     → backoff → Requesting   (rate limit / timeout, bounded)
//	                     → Failed                  (non-retryable, or budget exhausted)
//
// Retry waits come from the live settings passed to Answer, never from a
// snapshot taken at construction.
type Generator struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	timeout     time.Duration
	temperature *float64
	sleep       SleepFunc
}

// NewGenerator creates a Generator. timeout bounds each individual provider
// call and is distinct from the retry wait; a timed-out call counts as one
// retryable attempt.
func NewGenerator(client anthropic.Client, llmModel string, maxTokens int64, timeout time.Duration, opts ...Option) *Generator {
	g := &Generator{
		client:    client,
		model:     llmModel,
		maxTokens: maxTokens,
		timeout:   timeout,
		sleep:     realSleep,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Answer issues one request to the provider, retrying rate-limit and
// timeout failures up to settings.MaxRetries times with a fixed
// settings.RetryWait backoff. MaxRetries = 0 means exactly one attempt.
// Failures are one of ValidationError, RateLimitedError, or ProviderError,
// except caller cancellation, which surfaces as the context's error.
func (g *Generator) Answer(ctx context.Context, req Request, settings model.RateLimitSettings) (*Result, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, &ValidationError{Msg: "question must not be blank"}
	}

	messages := make([]anthropic.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		messages = append(messages, anthropic.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, anthropic.Message{Role: "user", Content: req.Question})

	msgReq := anthropic.MessageRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Messages:    messages,
		Temperature: g.temperature,
	}
	if req.SystemPrompt != "" {
		msgReq.System = []anthropic.SystemBlock{{Text: req.SystemPrompt}}
	}

	attempts := settings.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		resp, err := g.createMessage(ctx, msgReq)
		if err == nil {
			return g.buildResult(req, resp), nil
		}
		lastErr = err

		// A canceled caller is not a provider failure.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if !anthropic.IsRateLimited(err) && !anthropic.IsTimeout(err) {
			return nil, &ProviderError{Err: err}
		}

		// Budget exhausted: this was the last allowed attempt.
		if attempt >= attempts-1 {
			break
		}

		zap.L().Warn("provider throttled, backing off",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", settings.MaxRetries),
			zap.Duration("wait", settings.RetryWait()),
			zap.Error(err),
		)

		if err := g.sleep(ctx, settings.RetryWait()); err != nil {
			return nil, err
		}
	}

	return nil, &RateLimitedError{Attempts: attempts, Err: lastErr}
}

// createMessage runs one provider call under the per-call timeout.
func (g *Generator) createMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.client.CreateMessage(ctx, req)
}

func (g *Generator) buildResult(req Request, resp *anthropic.MessageResponse) *Result {
	history := make([]model.Message, 0, len(req.History)+2)
	history = append(history, req.History...)
	history = append(history,
		model.Message{Role: "user", Content: req.Question},
		model.Message{Role: "assistant", Content: resp.Text()},
	)

	return &Result{
		Text:         resp.Text(),
		Model:        resp.Model,
		Usage:        resp.Usage,
		History:      history,
		UsedFallback: req.UsedFallback,
	}
}

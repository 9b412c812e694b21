// Package inference adapts an external language model into the narrow
// Infer capability the enrichment workflows consume.
package inference

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/question-bank/internal/resilience"
	"github.com/sells-group/question-bank/pkg/anthropic"
)

// Inferrer sends a system prompt and a user payload to a model and returns
// its raw text reply. Replies are untrusted; callers must decode them leniently.
type Inferrer interface {
	Infer(ctx context.Context, system, payload string) (string, error)
}

// Func adapts a plain function to Inferrer.
type Func func(ctx context.Context, system, payload string) (string, error)

// Infer calls f.
func (f Func) Infer(ctx context.Context, system, payload string) (string, error) {
	return f(ctx, system, payload)
}

type workflowKey struct{}

// WithWorkflow tags ctx with the workflow issuing the call, used for cost
// attribution in logs.
func WithWorkflow(ctx context.Context, workflow string) context.Context {
	return context.WithValue(ctx, workflowKey{}, workflow)
}

// WorkflowFrom returns the workflow tag set by WithWorkflow, or "unknown".
func WorkflowFrom(ctx context.Context) string {
	if w, ok := ctx.Value(workflowKey{}).(string); ok && w != "" {
		return w
	}
	return "unknown"
}

// AnthropicConfig configures the Anthropic-backed Inferrer.
type AnthropicConfig struct {
	Model     string
	MaxTokens int64
	// Timeout bounds each individual call. Zero means no per-call deadline.
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// Anthropic implements Inferrer over the Anthropic messages API.
type Anthropic struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropic creates an Anthropic inferrer.
func NewAnthropic(client anthropic.Client, cfg AnthropicConfig) *Anthropic {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	return &Anthropic{client: client, cfg: cfg}
}

// Infer sends one message with the system prompt marked for caching.
// Rate-limit and server errors are retried with backoff; any other failure
// is returned on the first attempt.
func (a *Anthropic) Infer(ctx context.Context, system, payload string) (string, error) {
	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       a.cfg.Model,
		MaxTokens:   a.cfg.MaxTokens,
		System:      anthropic.CachedSystem(system),
		Messages:    []anthropic.Message{{Role: "user", Content: payload}},
		Temperature: &temp,
	}

	resp, err := resilience.DoVal(ctx, a.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx := ctx
		if a.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
			defer cancel()
		}
		resp, err := a.client.CreateMessage(callCtx, req)
		if err != nil {
			return nil, resilience.Classify(err, anthropic.StatusCode(err))
		}
		return resp, nil
	})
	if err != nil {
		return "", eris.Wrap(err, "inference: anthropic")
	}

	resp.Usage.LogCost(a.cfg.Model, WorkflowFrom(ctx))
	if resp.StopReason == "max_tokens" {
		zap.L().Warn("inference: reply truncated at max tokens",
			zap.String("workflow", WorkflowFrom(ctx)),
			zap.Int64("max_tokens", a.cfg.MaxTokens),
		)
	}
	return resp.Text(), nil
}

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"prpforge/internal/backlog"
	"prpforge/internal/logging"
	"prpforge/internal/prp"
)

// Anthropic defaults; config overrides both.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultMaxTokens      = 4096
	DefaultMaxRetries     = 3
)

// ErrAPIKeyRequired is returned when the provider's key env var is unset.
var ErrAPIKeyRequired = errors.New("API key required")

// AnthropicAgent generates research artifacts through the Anthropic
// Messages API. The key comes from ANTHROPIC_API_KEY only.
type AnthropicAgent struct {
	client     anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	maxRetries uint64
}

// AnthropicOptions configures the agent; zero values take defaults.
type AnthropicOptions struct {
	Model      string
	MaxTokens  int
	MaxRetries int
}

// NewAnthropicAgent builds the agent from the environment.
func NewAnthropicAgent(opts AnthropicOptions) (*AnthropicAgent, error) {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY", ErrAPIKeyRequired)
	}
	model := opts.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	return &AnthropicAgent{
		client:     anthropic.NewClient(option.WithAPIKey(key)),
		model:      anthropic.Model(model),
		maxTokens:  int64(maxTokens),
		maxRetries: uint64(maxRetries),
	}, nil
}

// Generate renders the research prompt, calls the model with retry, and
// parses the JSON response into an artifact.
func (a *AnthropicAgent) Generate(ctx context.Context, item backlog.Subtask, b backlog.Backlog) (*prp.Artifact, error) {
	prompt, err := buildPrompt(item, b)
	if err != nil {
		return nil, err
	}
	raw, err := callAnthropic(ctx, a.client, a.model, a.maxTokens, a.maxRetries, researchSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	return parseArtifact(raw, item.ID)
}

// callAnthropic runs one Messages.New exchange under an exponential
// backoff policy. Non-retryable API errors short-circuit the policy via
// backoff.Permanent.
func callAnthropic(ctx context.Context, client anthropic.Client, model anthropic.Model, maxTokens int64, maxRetries uint64, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var out string
	op := func() error {
		t := logging.StartTimer(logging.CategoryResearch, "anthropic messages.new")
		message, err := client.Messages.New(ctx, params)
		t.Stop()
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(fmt.Errorf("anthropic: %w", err))
			}
			logging.ResearchWarn("anthropic call retrying: %v", err)
			return err
		}
		for _, block := range message.Content {
			if block.Type == "text" {
				out = block.Text
				return nil
			}
		}
		return backoff.Permanent(fmt.Errorf("anthropic: no text block in response"))
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = 30 * time.Second
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx)); err != nil {
		return "", err
	}
	return out, nil
}

// isRetryable separates transient API conditions (rate limits, server
// errors, network timeouts) from permanent ones.
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

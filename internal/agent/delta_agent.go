package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/template"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"prpforge/internal/backlog"
	"prpforge/internal/delta"
	"prpforge/internal/logging"
)

const deltaSystemPrompt = `You compare two revisions of a Product Requirements Document against the
task backlog derived from the old revision. Classify the impact on backlog items.
Respond with a single JSON object and nothing else.`

var deltaTemplate = template.Must(template.New("delta").Parse(`The PRD changed. Classify the impact on the existing backlog items.

Line diff between revisions:
{{.Diff}}

Current backlog items:
{{.Roster}}

Return a JSON object:
{
  "changes": [{"kind": "added"|"modified"|"removed", "itemId": "<existing item id>", "description": "...", "impact": "low"|"medium"|"high"}],
  "patchInstructions": "free-form guidance for replanning"
}

Rules: "modified" means the item must be redone; "removed" means the PRD no
longer wants it; "added" flags where new work belongs (attach it to the nearest
existing item id). Only reference item ids from the list above.`))

// DeltaAgent is the model-backed delta analyzer. It shares the
// Anthropic transport and retry policy with AnthropicAgent.
type DeltaAgent struct {
	client     anthropic.Client
	model      anthropic.Model
	maxTokens  int64
	maxRetries uint64
}

// NewDeltaAgent builds the analyzer from the environment.
func NewDeltaAgent(opts AnthropicOptions) (*DeltaAgent, error) {
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
	return &DeltaAgent{
		client:     anthropic.NewClient(option.WithAPIKey(key)),
		model:      anthropic.Model(model),
		maxTokens:  int64(maxTokens),
		maxRetries: uint64(maxRetries),
	}, nil
}

// Analyze asks the model to classify the PRD change against the
// backlog, then normalizes the response so the patcher can trust it.
func (d *DeltaAgent) Analyze(ctx context.Context, oldPRD, newPRD []byte, b backlog.Backlog) (*delta.Analysis, error) {
	prompt, err := buildDeltaPrompt(oldPRD, newPRD, b)
	if err != nil {
		return nil, err
	}
	raw, err := callAnthropic(ctx, d.client, d.model, d.maxTokens, d.maxRetries, deltaSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}
	analysis, err := parseAnalysis(raw)
	if err != nil {
		return nil, err
	}
	logging.Delta("model analysis: %d change(s) across %d item(s)", len(analysis.Changes), len(analysis.TaskIDs))
	return analysis, nil
}

func buildDeltaPrompt(oldPRD, newPRD []byte, b backlog.Backlog) (string, error) {
	data := struct {
		Diff   string
		Roster string
	}{
		Diff:   delta.DiffSummary(oldPRD, newPRD),
		Roster: rosterLines(b),
	}
	var buf bytes.Buffer
	if err := deltaTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("agent: render delta prompt: %w", err)
	}
	return buf.String(), nil
}

// rosterLines lists every backlog item as "id (kind) title [status]".
func rosterLines(b backlog.Backlog) string {
	var buf bytes.Buffer
	backlog.Walk(b, func(it backlog.Item) bool {
		fmt.Fprintf(&buf, "%s (%s) %s [%s]\n", it.ItemID(), it.ItemKind(), it.ItemTitle(), it.ItemStatus())
		return true
	})
	return buf.String()
}

func parseAnalysis(raw string) (*delta.Analysis, error) {
	var analysis delta.Analysis
	if err := json.Unmarshal([]byte(extractJSON(raw)), &analysis); err != nil {
		return nil, fmt.Errorf("agent: response is not a delta analysis: %w", err)
	}
	if err := delta.Normalize(&analysis); err != nil {
		return nil, err
	}
	return &analysis, nil
}

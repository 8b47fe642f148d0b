// Package agent provides the research.Agent implementations: hosted
// model clients for Anthropic and Gemini, a deterministic offline
// generator, and the model-backed delta analyzer. All model-facing
// agents share one prompt builder and one JSON extraction path, so a
// provider swap changes transport only.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"prpforge/internal/backlog"
	"prpforge/internal/prp"
)

const researchSystemPrompt = `You are a senior software engineer producing Product Requirement Prompts (PRPs).
A PRP is a complete, self-contained implementation brief for exactly one subtask of a larger plan.
Respond with a single JSON object and nothing else.`

var researchTemplate = template.Must(template.New("research").Parse(`Produce the PRP for the subtask below.

Subtask: {{.TaskID}} - {{.Title}}
{{- if .Path}}
Plan location: {{.Path}}
{{- end}}
{{- if .Description}}
Description: {{.Description}}
{{- end}}
Story points: {{.StoryPoints}}
{{- if .Dependencies}}
Depends on: {{.Dependencies}}
{{- end}}

Contract:
- Research note: {{.ResearchNote}}
- Input: {{.Input}}
- Logic: {{.Logic}}
- Output: {{.Output}}

Return a JSON object with exactly these fields:
{
  "taskId": "{{.TaskID}}",
  "objective": "one-sentence goal",
  "context": "everything an implementer must know before starting",
  "implementationSteps": ["ordered, concrete steps"],
  "validationGates": [{"level": 1, "description": "...", "command": "shell command, or omit for manual gates", "manual": false}],
  "successCriteria": [{"description": "...", "satisfied": false}],
  "references": ["related item ids or documents"]
}

Gates run in ascending level order from 1 to 4. Level 4 is a human review and must set "manual": true.
Only emit commands that are safe to run unattended in the project working directory.`))

type promptData struct {
	TaskID       string
	Title        string
	Description  string
	Path         string
	StoryPoints  int
	Dependencies string
	ResearchNote string
	Input        string
	Logic        string
	Output       string
}

// buildPrompt renders the research prompt for one subtask. The contract
// must parse; a malformed contract fails research for that item.
func buildPrompt(item backlog.Subtask, b backlog.Backlog) (string, error) {
	contract, err := item.Contract()
	if err != nil {
		return "", fmt.Errorf("agent: %s: %w", item.ID, err)
	}
	data := promptData{
		TaskID:       item.ID,
		Title:        item.Title,
		Description:  item.Description,
		Path:         pathTitles(b, item.ID),
		StoryPoints:  item.StoryPoints,
		Dependencies: strings.Join(item.Dependencies, ", "),
		ResearchNote: contract.ResearchNote,
		Input:        contract.Input,
		Logic:        contract.Logic,
		Output:       contract.Output,
	}
	var buf bytes.Buffer
	if err := researchTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("agent: render prompt for %s: %w", item.ID, err)
	}
	return buf.String(), nil
}

// pathTitles joins the titles of the item's ancestors, outermost first.
func pathTitles(b backlog.Backlog, id string) string {
	parts := strings.Split(id, ".")
	var titles []string
	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		if item, ok := backlog.Find(b, prefix); ok {
			titles = append(titles, item.ItemTitle())
		}
	}
	return strings.Join(titles, " > ")
}

// extractJSON pulls the JSON object out of a model response, stripping
// a fenced code block when present and trimming any prose around the
// outermost braces.
func extractJSON(s string) string {
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if j := strings.Index(rest, "\n"); j >= 0 {
			rest = rest[j+1:]
		}
		if k := strings.LastIndex(rest, "```"); k >= 0 {
			rest = rest[:k]
		}
		s = rest
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// parseArtifact decodes a model response into an artifact keyed by the
// subtask id. The id the model echoes back is advisory; the engine keys
// artifacts by the subtask it asked about.
func parseArtifact(raw, taskID string) (*prp.Artifact, error) {
	var a prp.Artifact
	if err := json.Unmarshal([]byte(extractJSON(raw)), &a); err != nil {
		return nil, fmt.Errorf("agent: response for %s is not a PRP document: %w", taskID, err)
	}
	a.TaskID = taskID
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}
	return &a, nil
}

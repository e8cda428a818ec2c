package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quarterwave/parley/internal/llm"
)

// CuratedModel is one entry returned by the curator classifier.
type CuratedModel struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// CuratorOpts selects the classifier models and provider-specific guidance.
type CuratorOpts struct {
	Model         string // primary curator model
	FallbackModel string // smaller/faster model for the single bounded retry
	Guidance      string // provider-specific instruction text
}

const curatorPrompt = `You curate a model catalog for a chat application.
From the identifiers below, select the models an end user would pick for
conversation, and give each a clean human-readable display name.
%s
Respond with ONLY a JSON array of objects: [{"id": "...", "displayName": "..."}].

Identifiers:
%s`

const curatorStrictPrompt = `Return ONLY a raw JSON array, no prose, no code
fences. Each element must be {"id": "<one of the given identifiers>",
"displayName": "<short human name>"}. Select chat-capable models from:
%s`

// Curate sends the prefiltered id list to the curator model and validates
// the returned JSON. On empty, malformed or failed output it retries once
// against the fallback model with a stricter instruction; if that also
// fails, the provider's refresh must be aborted by the caller.
func Curate(ctx context.Context, client llm.Client, ids []string, opts CuratorOpts) ([]CuratedModel, error) {
	idList := strings.Join(ids, "\n")

	prompt := fmt.Sprintf(curatorPrompt, opts.Guidance, idList)
	curated, primaryErr := curateOnce(ctx, client, opts.Model, prompt)
	if primaryErr == nil {
		return curated, nil
	}

	fallback := opts.FallbackModel
	if fallback == "" {
		fallback = opts.Model
	}
	strict := fmt.Sprintf(curatorStrictPrompt, idList)
	curated, fallbackErr := curateOnce(ctx, client, fallback, strict)
	if fallbackErr == nil {
		return curated, nil
	}
	return nil, fmt.Errorf("catalog: curation failed (primary: %v): %w", primaryErr, fallbackErr)
}

// curateOnce runs a single classifier call and validates its output.
func curateOnce(ctx context.Context, client llm.Client, model, prompt string) ([]CuratedModel, error) {
	out, err := client.Complete(ctx, model, []llm.Message{
		{Role: llm.RoleUser, Text: prompt},
	})
	if err != nil {
		return nil, err
	}
	curated, err := parseCurated(out)
	if err != nil {
		return nil, err
	}
	if len(curated) == 0 {
		return nil, fmt.Errorf("catalog: curator returned no models")
	}
	return curated, nil
}

// parseCurated validates the classifier output: it must be a JSON array of
// correctly typed {id, displayName} objects. Code fences are tolerated;
// anything else is rejected.
func parseCurated(out string) ([]CuratedModel, error) {
	text := stripCodeFence(strings.TrimSpace(out))

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("catalog: curator output is not a JSON array: %w", err)
	}

	curated := make([]CuratedModel, 0, len(raw))
	for i, entry := range raw {
		var fields map[string]interface{}
		if err := json.Unmarshal(entry, &fields); err != nil {
			return nil, fmt.Errorf("catalog: curator entry %d is not an object: %w", i, err)
		}
		id, ok := fields["id"].(string)
		if !ok || id == "" {
			return nil, fmt.Errorf("catalog: curator entry %d has no string id", i)
		}
		name, ok := fields["displayName"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("catalog: curator entry %d has no string displayName", i)
		}
		curated = append(curated, CuratedModel{ID: id, DisplayName: name})
	}
	return curated, nil
}

// stripCodeFence removes a surrounding markdown code fence if present.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

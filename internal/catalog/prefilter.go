// Package catalog discovers, curates and caches provider model lists.
package catalog

import (
	"regexp"
	"strings"

	"github.com/quarterwave/parley/internal/llm"
)

// datedPattern matches snapshot identifiers like gpt-4-0613 or
// gpt-4o-2024-05-13.
var datedPattern = regexp.MustCompile(`-(\d{4}-\d{2}-\d{2}|\d{4})$`)

// legacy OpenAI base-model families that never belong in a chat catalog.
var openAILegacy = []string{"davinci", "babbage", "curie", "ada"}

// Prefilter deterministically strips identifiers that can never appear in a
// chat catalog: fine-tuned models, embedding/audio/image-only models, dated
// snapshots and preview tags. If the filter would remove everything, the raw
// list is returned unchanged; an empty result must never reach the cache.
func Prefilter(kind llm.Kind, raw []string) []string {
	filtered := make([]string, 0, len(raw))
	for _, id := range raw {
		if keepModelID(kind, id) {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		return raw
	}
	return filtered
}

// keepModelID applies the per-identifier rules. Order-independent and pure.
func keepModelID(kind llm.Kind, id string) bool {
	m := strings.ToLower(id)

	// Fine-tuned checkpoints.
	if strings.Contains(m, ":ft") || strings.HasPrefix(m, "ft:") {
		return false
	}
	// Embedding, audio and image-only models.
	for _, frag := range []string{"embed", "whisper", "tts", "audio", "transcribe", "dall-e", "image", "moderation"} {
		if strings.Contains(m, frag) {
			return false
		}
	}
	// Dated snapshots and previews.
	if datedPattern.MatchString(m) {
		return false
	}
	if strings.Contains(m, "preview") {
		return false
	}
	if kind == llm.KindOpenAI {
		for _, frag := range openAILegacy {
			if strings.Contains(m, frag) {
				return false
			}
		}
	}
	return true
}

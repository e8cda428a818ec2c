package chat

import (
	"context"
	"log"
	"strings"

	"github.com/quarterwave/parley/internal/llm"
)

// imageKeywords gates the intent classifier. The LLM call only runs when
// the message plausibly asks for an image; everything else is plain chat
// without an extra round trip.
var imageKeywords = []string{
	"image", "picture", "photo", "draw", "paint", "sketch",
	"illustration", "render", "logo", "icon", "wallpaper", "artwork",
	"generate", "portrait", "diagram",
}

const imageIntentPrompt = "You decide whether the user is asking for an image to be " +
	"generated or created. Requests to describe, analyze or discuss an existing image do " +
	"not count. Answer with exactly one word: yes or no."

// classifyImageIntent reports whether the message asks for image
// generation. Only an explicit "yes" from the classifier routes to the
// image pipeline; ambiguity and classifier failures default to text.
func (o *Orchestrator) classifyImageIntent(ctx context.Context, client llm.Client, utilityModel, message string) bool {
	if !containsImageKeyword(message) {
		return false
	}
	answer, err := client.Complete(ctx, utilityModel, []llm.Message{
		{Role: llm.RoleSystem, Text: imageIntentPrompt},
		{Role: llm.RoleUser, Text: message},
	})
	if err != nil {
		log.Printf("chat: image intent classify: %v", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "yes")
}

func containsImageKeyword(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range imageKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

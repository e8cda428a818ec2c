package chat

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/models"
	"github.com/quarterwave/parley/internal/push"
	"github.com/quarterwave/parley/internal/session"
)

// minPartialInterval throttles partial preview uploads. Progress events
// pass through unthrottled; only preview image uploads are rate-limited.
const minPartialInterval = 10 * time.Second

const aspectPrompt = "Classify the aspect ratio the user wants for the requested image. " +
	"Answer with exactly one word: square, portrait or landscape. " +
	"If the request does not imply one, answer square."

// runImageTurn generates an image for the request. Once generation is
// announced, failures surface as pushed error events plus a persisted
// failure note, never as a synchronous error.
func (o *Orchestrator) runImageTurn(ctx context.Context, client llm.Client, provider *config.ProviderConfig, s *models.Session, req TurnRequest) *TurnResult {
	messageID := uuid.NewString()
	pusher := newTurnPusher(ctx, o.push, req.ConnectionID, s.ID)

	aspect := o.classifyAspect(ctx, client, provider.UtilityModel, req.Message)
	pusher.send(push.ImageAspectDetected(s.ID, aspect))

	// The session's chat model renders when it can; otherwise fall back to
	// the provider's dedicated image model.
	model := s.ModelID
	if !client.SupportsImageGeneration(model) {
		model = provider.ImageModel
	}
	size := sizeForAspect(aspect)

	pusher.send(push.ImageStarted(s.ID, messageID))

	var (
		data []byte
		err  error
	)
	if streamer, ok := client.(llm.ImageStreamer); ok {
		data, err = o.streamImage(ctx, streamer, pusher, s, messageID, model, req.Message, size)
	} else {
		data, err = client.GenerateImage(ctx, model, req.Message, size)
	}
	if err != nil {
		log.Printf("chat: generate image for %s: %v", s.ID, err)
		o.persistImageFailure(s, messageID, req.OwnerID)
		pusher.send(push.AssistantError(s.ID, messageID, "Image generation failed."))
		return &TurnResult{MessageID: messageID, Failed: true}
	}

	key := fmt.Sprintf("images/%s/%s.png", s.ID, messageID)
	imageURL, err := o.blobs.Put(ctx, key, data, "image/png")
	if err != nil {
		log.Printf("chat: store image for %s: %v", s.ID, err)
		o.persistImageFailure(s, messageID, req.OwnerID)
		pusher.send(push.AssistantError(s.ID, messageID, "Image generation failed."))
		return &TurnResult{MessageID: messageID, Failed: true}
	}

	event := &models.SessionEvent{
		SessionID: s.ID,
		MessageID: messageID,
		Role:      llm.RoleAssistant,
		Content:   "Generated an image for: " + req.Message,
		ImageRef:  imageURL,
		CreatedBy: s.ProviderID,
		CreatedAt: o.now(),
	}
	if err := session.AppendEvent(o.db, event); err != nil {
		log.Printf("chat: persist image event for %s: %v", s.ID, err)
	}

	pusher.send(push.ImageCompleted(s.ID, imageURL, req.Message))

	if err := session.UpdateMeta(o.db, s, map[string]interface{}{
		"last_interaction_at": o.now(),
	}); err != nil {
		log.Printf("chat: bump session %s after image turn: %v", s.ID, err)
	}

	return &TurnResult{MessageID: messageID, ImageURL: imageURL}
}

// streamImage consumes a streaming image generation, forwarding progress
// and uploading throttled partial previews, and returns the final bytes.
func (o *Orchestrator) streamImage(ctx context.Context, streamer llm.ImageStreamer, pusher *turnPusher, s *models.Session, messageID, model, prompt, size string) ([]byte, error) {
	frames, err := streamer.StreamImage(ctx, model, prompt, size)
	if err != nil {
		return nil, err
	}

	var (
		final        []byte
		lastPartial  time.Time
		partialCount int
	)
	for frame := range frames {
		if frame.Err != nil {
			return nil, frame.Err
		}
		if !frame.Partial {
			final = frame.Data
			continue
		}
		pusher.send(push.ImageProgress(s.ID, messageID))
		if len(frame.Data) == 0 || o.now().Sub(lastPartial) < minPartialInterval {
			continue
		}
		lastPartial = o.now()
		partialCount++
		key := fmt.Sprintf("images/%s/%s-partial-%d.png", s.ID, messageID, partialCount)
		partialURL, err := o.blobs.Put(ctx, key, frame.Data, "image/png")
		if err != nil {
			log.Printf("chat: store partial for %s: %v", s.ID, err)
			continue
		}
		pusher.send(push.ImagePartial(s.ID, partialURL, partialCount))
	}
	if final == nil {
		return nil, fmt.Errorf("chat: image stream ended without a final frame")
	}
	return final, nil
}

// persistImageFailure records a failed generation so the transcript shows
// the turn happened even after the client disconnects.
func (o *Orchestrator) persistImageFailure(s *models.Session, messageID, ownerID string) {
	event := &models.SessionEvent{
		SessionID: s.ID,
		MessageID: messageID,
		Role:      llm.RoleAssistant,
		Content:   "Image generation failed.",
		CreatedBy: s.ProviderID,
		CreatedAt: o.now(),
	}
	if err := session.AppendEvent(o.db, event); err != nil {
		log.Printf("chat: persist image failure for %s: %v", s.ID, err)
	}
}

// classifyAspect picks the requested aspect ratio, defaulting to square on
// any unexpected or failed classification.
func (o *Orchestrator) classifyAspect(ctx context.Context, client llm.Client, utilityModel, message string) string {
	answer, err := client.Complete(ctx, utilityModel, []llm.Message{
		{Role: llm.RoleSystem, Text: aspectPrompt},
		{Role: llm.RoleUser, Text: message},
	})
	if err != nil {
		log.Printf("chat: aspect classify: %v", err)
		return "square"
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "portrait":
		return "portrait"
	case "landscape":
		return "landscape"
	default:
		return "square"
	}
}

// sizeForAspect maps an aspect ratio to a provider image size.
func sizeForAspect(aspect string) string {
	switch aspect {
	case "portrait":
		return "1024x1792"
	case "landscape":
		return "1792x1024"
	default:
		return "1024x1024"
	}
}

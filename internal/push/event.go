// Package push delivers ordered realtime events to registered connections.
package push

// Event is one realtime push payload. Events for a session are delivered in
// the order they are sent.
type Event struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// Event type names.
const (
	TypeAssistantStarted   = "assistant.started"
	TypeAssistantDelta     = "assistant.delta"
	TypeAssistantCompleted = "assistant.completed"
	TypeAssistantError     = "assistant.error"
	TypeSessionTitle       = "session.title"

	TypeImageAspectDetected = "assistant.image.aspect_detected"
	TypeImageStarted        = "assistant.image.started"
	TypeImageProgress       = "assistant.image.progress"
	TypeImagePartial        = "assistant.image.partial"
	TypeImageCompleted      = "assistant.image.completed"
)

// AssistantStarted announces the beginning of an assistant turn.
func AssistantStarted(sessionID, messageID string) Event {
	return Event{Type: TypeAssistantStarted, Data: map[string]interface{}{
		"sessionId": sessionID,
		"messageId": messageID,
	}}
}

// AssistantDelta carries one incremental text fragment.
func AssistantDelta(sessionID, messageID, delta string) Event {
	return Event{Type: TypeAssistantDelta, Data: map[string]interface{}{
		"sessionId": sessionID,
		"messageId": messageID,
		"delta":     delta,
	}}
}

// AssistantCompleted carries the full assembled assistant reply.
func AssistantCompleted(sessionID, messageID, content string) Event {
	return Event{Type: TypeAssistantCompleted, Data: map[string]interface{}{
		"sessionId": sessionID,
		"messageId": messageID,
		"content":   content,
	}}
}

// AssistantError reports a failed turn. messageID may be empty when the
// failure happened before a message id was assigned.
func AssistantError(sessionID, messageID, message string) Event {
	data := map[string]interface{}{
		"sessionId": sessionID,
		"message":   message,
	}
	if messageID != "" {
		data["messageId"] = messageID
	}
	return Event{Type: TypeAssistantError, Data: data}
}

// SessionTitle announces a newly derived conversation title.
func SessionTitle(sessionID, title string) Event {
	return Event{Type: TypeSessionTitle, Data: map[string]interface{}{
		"sessionId": sessionID,
		"title":     title,
	}}
}

// ImageAspectDetected reports the classified aspect ratio.
func ImageAspectDetected(sessionID, aspectRatio string) Event {
	return Event{Type: TypeImageAspectDetected, Data: map[string]interface{}{
		"sessionId":   sessionID,
		"aspectRatio": aspectRatio,
	}}
}

// ImageStarted announces the beginning of image generation.
func ImageStarted(sessionID, messageID string) Event {
	return Event{Type: TypeImageStarted, Data: map[string]interface{}{
		"sessionId": sessionID,
		"messageId": messageID,
	}}
}

// ImageProgress forwards a provider progress event.
func ImageProgress(sessionID, messageID string) Event {
	return Event{Type: TypeImageProgress, Data: map[string]interface{}{
		"sessionId": sessionID,
		"messageId": messageID,
	}}
}

// ImagePartial carries an uploaded partial preview.
func ImagePartial(sessionID, imageURL string, partialCount int) Event {
	return Event{Type: TypeImagePartial, Data: map[string]interface{}{
		"sessionId":    sessionID,
		"imageUrl":     imageURL,
		"partialCount": partialCount,
	}}
}

// ImageCompleted carries the final stored image reference.
func ImageCompleted(sessionID, imageURL, prompt string) Event {
	return Event{Type: TypeImageCompleted, Data: map[string]interface{}{
		"sessionId": sessionID,
		"imageUrl":  imageURL,
		"prompt":    prompt,
	}}
}

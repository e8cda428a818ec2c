// Package llm normalizes LLM provider backends behind one client interface:
// streaming chat, one-shot completion, model listing, image generation,
// speech synthesis and transcription.
package llm

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// PartType identifies one kind of multimodal message part.
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartFile  PartType = "file"
)

// Part is one multimodal fragment of a message. Image parts reference a
// short-lived fetchable URL or carry raw bytes; file parts are inlined.
type Part struct {
	Type     PartType `json:"type"`
	Text     string   `json:"text,omitempty"`
	ImageURL string   `json:"imageUrl,omitempty"`
	FileName string   `json:"fileName,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Data     []byte   `json:"data,omitempty"`
}

// Message is one conversation turn sent to a provider.
type Message struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Parts []Part `json:"parts,omitempty"`
}

// Result is the final outcome of a streamed chat call.
type Result struct {
	Content      string
	StopReason   string
	InputTokens  int
	OutputTokens int
}

// Client is the per-provider adapter contract. Implementations normalize the
// provider's wire format; callers never see provider-specific shapes.
type Client interface {
	// SendMessage opens a streaming chat call. The returned Stream delivers
	// ordered text deltas; FinalResult awaits completion internally.
	SendMessage(ctx context.Context, model string, messages []Message) (*Stream, error)

	// Complete runs a one-shot, non-streaming call and returns the full text.
	// Used for auxiliary classifier calls (curation, intent, aspect).
	Complete(ctx context.Context, model string, messages []Message) (string, error)

	// GenerateTitle derives a short conversation title from history. Callers
	// treat any error as "no title"; a title is optional enrichment.
	GenerateTitle(ctx context.Context, model string, history []Message) (string, error)

	// SupportsImageGeneration is a pure static predicate, evaluated before
	// any network call.
	SupportsImageGeneration(model string) bool

	// ListModels fetches the provider's raw model identifiers.
	ListModels(ctx context.Context) ([]string, error)

	// GenerateImage produces one image for the prompt at the given size.
	GenerateImage(ctx context.Context, model, prompt, size string) ([]byte, error)

	// CreateSpeech synthesizes speech audio for the given text.
	CreateSpeech(ctx context.Context, model, text string) ([]byte, error)

	// Transcribe converts a WAV sample to text.
	Transcribe(ctx context.Context, model string, wav []byte) (string, error)
}

// ImageFrame is one event from a streaming image generation.
type ImageFrame struct {
	Partial bool   // true for intermediate previews
	Data    []byte // PNG bytes
	Err     error  // terminal error; the channel closes after it
}

// ImageStreamer is implemented by clients whose backend can stream image
// generation progress. Clients without it fall back to GenerateImage.
type ImageStreamer interface {
	StreamImage(ctx context.Context, model, prompt, size string) (<-chan ImageFrame, error)
}

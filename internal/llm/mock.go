package llm

import (
	"context"
	"fmt"
)

// Mock implements Client with overridable function fields for tests.
// Unset functions return an error so tests fail loudly on unexpected calls.
type Mock struct {
	SendMessageFunc      func(ctx context.Context, model string, messages []Message) (*Stream, error)
	CompleteFunc         func(ctx context.Context, model string, messages []Message) (string, error)
	GenerateTitleFunc    func(ctx context.Context, model string, history []Message) (string, error)
	SupportsImageGenFunc func(model string) bool
	ListModelsFunc       func(ctx context.Context) ([]string, error)
	GenerateImageFunc    func(ctx context.Context, model, prompt, size string) ([]byte, error)
	CreateSpeechFunc     func(ctx context.Context, model, text string) ([]byte, error)
	TranscribeFunc       func(ctx context.Context, model string, wav []byte) (string, error)
	StreamImageFunc      func(ctx context.Context, model, prompt, size string) (<-chan ImageFrame, error)
}

var _ Client = (*Mock)(nil)

func (m *Mock) SendMessage(ctx context.Context, model string, messages []Message) (*Stream, error) {
	if m.SendMessageFunc == nil {
		return nil, fmt.Errorf("llm: mock SendMessage not configured")
	}
	return m.SendMessageFunc(ctx, model, messages)
}

func (m *Mock) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	if m.CompleteFunc == nil {
		return "", fmt.Errorf("llm: mock Complete not configured")
	}
	return m.CompleteFunc(ctx, model, messages)
}

func (m *Mock) GenerateTitle(ctx context.Context, model string, history []Message) (string, error) {
	if m.GenerateTitleFunc == nil {
		return "", fmt.Errorf("llm: mock GenerateTitle not configured")
	}
	return m.GenerateTitleFunc(ctx, model, history)
}

func (m *Mock) SupportsImageGeneration(model string) bool {
	if m.SupportsImageGenFunc == nil {
		return false
	}
	return m.SupportsImageGenFunc(model)
}

func (m *Mock) ListModels(ctx context.Context) ([]string, error) {
	if m.ListModelsFunc == nil {
		return nil, fmt.Errorf("llm: mock ListModels not configured")
	}
	return m.ListModelsFunc(ctx)
}

func (m *Mock) GenerateImage(ctx context.Context, model, prompt, size string) ([]byte, error) {
	if m.GenerateImageFunc == nil {
		return nil, fmt.Errorf("llm: mock GenerateImage not configured")
	}
	return m.GenerateImageFunc(ctx, model, prompt, size)
}

func (m *Mock) CreateSpeech(ctx context.Context, model, text string) ([]byte, error) {
	if m.CreateSpeechFunc == nil {
		return nil, fmt.Errorf("llm: mock CreateSpeech not configured")
	}
	return m.CreateSpeechFunc(ctx, model, text)
}

func (m *Mock) Transcribe(ctx context.Context, model string, wav []byte) (string, error) {
	if m.TranscribeFunc == nil {
		return "", fmt.Errorf("llm: mock Transcribe not configured")
	}
	return m.TranscribeFunc(ctx, model, wav)
}

// streamingMock wraps Mock with a StreamImage method so that the client
// satisfies ImageStreamer.
type streamingMock struct{ *Mock }

var _ ImageStreamer = streamingMock{}

func (m streamingMock) StreamImage(ctx context.Context, model, prompt, size string) (<-chan ImageFrame, error) {
	return m.StreamImageFunc(ctx, model, prompt, size)
}

// AsClient returns the mock as a Client that satisfies ImageStreamer only
// when StreamImageFunc is configured.
func (m *Mock) AsClient() Client {
	if m.StreamImageFunc != nil {
		return streamingMock{m}
	}
	return m
}

// NewScriptedStream returns a Stream that replays the given deltas and
// finishes with the given result. For tests.
func NewScriptedStream(deltas []string, result Result, err error) *Stream {
	s := newStream()
	go func() {
		for _, d := range deltas {
			s.deltas <- d
		}
		close(s.deltas)
		s.finish(&result, err)
	}()
	return s
}

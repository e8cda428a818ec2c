package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// generativeTimeout bounds a single generative call. Streaming reads run
// under the caller's context on top of this client timeout.
const generativeTimeout = 3 * time.Minute

// OpenAIClient implements Client for api.openai.com and any
// OpenAI-compatible endpoint selected via base URL.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient creates a client. baseURL is optional; when set, calls go
// to that endpoint instead of api.openai.com.
func NewOpenAIClient(apiKey, baseURL string) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: generativeTimeout}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}, nil
}

// SendMessage opens a streaming chat completion and relays deltas in the
// exact order the provider emits them.
func (c *OpenAIClient) SendMessage(ctx context.Context, model string, messages []Message) (*Stream, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	upstream, err := c.api.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("llm: open chat stream: %w", err)
	}

	s := newStream()
	go func() {
		defer upstream.Close()
		var content strings.Builder
		var stopReason string
		var inputTokens, outputTokens int
		for {
			resp, err := upstream.Recv()
			if err != nil {
				close(s.deltas)
				result := &Result{
					Content:      content.String(),
					StopReason:   stopReason,
					InputTokens:  inputTokens,
					OutputTokens: outputTokens,
				}
				if errors.Is(err, io.EOF) {
					s.finish(result, nil)
				} else {
					s.finish(result, fmt.Errorf("llm: chat stream: %w", err))
				}
				return
			}
			if resp.Usage != nil {
				inputTokens = resp.Usage.PromptTokens
				outputTokens = resp.Usage.CompletionTokens
			}
			for _, choice := range resp.Choices {
				if choice.FinishReason != "" {
					stopReason = string(choice.FinishReason)
				}
				if choice.Delta.Content == "" {
					continue
				}
				content.WriteString(choice.Delta.Content)
				s.deltas <- choice.Delta.Content
			}
		}
	}()
	return s, nil
}

// Complete runs a one-shot chat completion and returns the first choice.
func (c *OpenAIClient) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("llm: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: complete: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateTitle asks the model for a short title over the first turns of the
// conversation. Errors are expected to be swallowed by callers.
func (c *OpenAIClient) GenerateTitle(ctx context.Context, model string, history []Message) (string, error) {
	var transcript strings.Builder
	for i, m := range history {
		if i >= 6 {
			break
		}
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(m.Text)
		transcript.WriteString("\n")
	}
	out, err := c.Complete(ctx, model, []Message{
		{Role: RoleSystem, Text: "Generate a title for this conversation: at most six words, no quotes, no trailing punctuation. Reply with the title only."},
		{Role: RoleUser, Text: transcript.String()},
	})
	if err != nil {
		return "", err
	}
	title := strings.Trim(strings.TrimSpace(out), `"'`)
	if title == "" {
		return "", fmt.Errorf("llm: empty title")
	}
	if len(title) > 80 {
		title = title[:80]
	}
	return title, nil
}

// SupportsImageGeneration reports whether the model natively generates
// images. Static predicate; no network call.
func (c *OpenAIClient) SupportsImageGeneration(model string) bool {
	m := strings.ToLower(model)
	return strings.Contains(m, "dall-e") || strings.Contains(m, "gpt-image")
}

// ListModels fetches raw model identifiers from the provider.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]string, error) {
	list, err := c.api.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: list models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// GenerateImage produces one image and returns decoded PNG bytes.
func (c *OpenAIClient) GenerateImage(ctx context.Context, model, prompt, size string) ([]byte, error) {
	resp, err := c.api.CreateImage(ctx, openai.ImageRequest{
		Model:          model,
		Prompt:         prompt,
		N:              1,
		Size:           size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("llm: generate image: empty response")
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("llm: decode image: %w", err)
	}
	return data, nil
}

// StreamImage implements ImageStreamer. The OpenAI image surface has no
// progress events, so the stream carries a single final frame; adapters for
// backends with real progress can emit partial frames.
func (c *OpenAIClient) StreamImage(ctx context.Context, model, prompt, size string) (<-chan ImageFrame, error) {
	ch := make(chan ImageFrame, 1)
	go func() {
		defer close(ch)
		data, err := c.GenerateImage(ctx, model, prompt, size)
		if err != nil {
			ch <- ImageFrame{Err: err}
			return
		}
		ch <- ImageFrame{Data: data}
	}()
	return ch, nil
}

// CreateSpeech synthesizes speech and returns the raw audio bytes.
func (c *OpenAIClient) CreateSpeech(ctx context.Context, model, text string) ([]byte, error) {
	resp, err := c.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(model),
		Input: text,
		Voice: openai.VoiceAlloy,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: create speech: %w", err)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("llm: read speech: %w", err)
	}
	return data, nil
}

// Transcribe converts a WAV sample to text.
func (c *OpenAIClient) Transcribe(ctx context.Context, model string, wav []byte) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "sample.wav",
		Reader:   bytes.NewReader(wav),
	})
	if err != nil {
		return "", fmt.Errorf("llm: transcribe: %w", err)
	}
	return resp.Text, nil
}

// toOpenAIMessages translates normalized messages into the provider shape.
// Image parts become image_url content (fetchable URL or inline data URL);
// file parts are inlined as text with a filename header.
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if len(m.Parts) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Text})
			continue
		}
		var parts []openai.ChatMessagePart
		for _, p := range m.Parts {
			switch p.Type {
			case PartText:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: p.Text,
				})
			case PartImage:
				url := p.ImageURL
				if url == "" && len(p.Data) > 0 {
					url = dataURL(p.MimeType, p.Data)
				}
				parts = append(parts, openai.ChatMessagePart{
					Type:     openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{URL: url},
				})
			case PartFile:
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: fmt.Sprintf("[attached file %s]\n%s", p.FileName, dataURL(p.MimeType, p.Data)),
				})
			}
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts})
	}
	return out
}

// dataURL encodes bytes as an inline data URL.
func dataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

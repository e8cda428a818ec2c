package catalog

import (
	"reflect"
	"testing"

	"github.com/quarterwave/parley/internal/llm"
)

func TestPrefilter_StripsNonChatModels(t *testing.T) {
	raw := []string{"gpt-4-0613", "gpt-4o", "gpt-4o:ft-123"}
	got := Prefilter(llm.KindOpenAI, raw)
	want := []string{"gpt-4o"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Prefilter() = %v, want %v", got, want)
	}
}

func TestPrefilter_Rules(t *testing.T) {
	cases := []struct {
		id   string
		kind llm.Kind
		keep bool
	}{
		{"gpt-4o", llm.KindOpenAI, true},
		{"ft:gpt-4o:org:custom", llm.KindOpenAI, false},
		{"text-embedding-3-small", llm.KindOpenAI, false},
		{"whisper-1", llm.KindOpenAI, false},
		{"tts-1-hd", llm.KindOpenAI, false},
		{"dall-e-3", llm.KindOpenAI, false},
		{"gpt-4o-2024-05-13", llm.KindOpenAI, false},
		{"o1-preview", llm.KindOpenAI, false},
		{"davinci-002", llm.KindOpenAI, false},
		// Legacy family names only apply to the OpenAI kind.
		{"davinci-002", llm.KindCompatible, true},
		{"deepseek-chat", llm.KindCompatible, true},
	}
	for _, c := range cases {
		if got := keepModelID(c.kind, c.id); got != c.keep {
			t.Errorf("keepModelID(%s, %q) = %v, want %v", c.kind, c.id, got, c.keep)
		}
	}
}

func TestPrefilter_Deterministic(t *testing.T) {
	raw := []string{"gpt-4o", "whisper-1", "gpt-4.1", "o1-preview"}
	first := Prefilter(llm.KindOpenAI, raw)
	second := Prefilter(llm.KindOpenAI, raw)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Prefilter not deterministic: %v vs %v", first, second)
	}
}

func TestPrefilter_NeverReturnsEmpty(t *testing.T) {
	raw := []string{"whisper-1", "tts-1", "dall-e-2"}
	got := Prefilter(llm.KindOpenAI, raw)
	if !reflect.DeepEqual(got, raw) {
		t.Errorf("Prefilter() = %v, want raw list back when everything would be dropped", got)
	}
}

func TestPrefilter_EmptyInput(t *testing.T) {
	if got := Prefilter(llm.KindOpenAI, nil); len(got) != 0 {
		t.Errorf("Prefilter(nil) = %v, want empty", got)
	}
}

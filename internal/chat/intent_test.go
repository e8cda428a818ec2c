package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/quarterwave/parley/internal/llm"
)

func TestClassifyImageIntent_KeywordGate(t *testing.T) {
	f := newTurnFixture(t)
	f.mock.CompleteFunc = func(ctx context.Context, model string, messages []llm.Message) (string, error) {
		t.Error("classifier called for a message with no image keyword")
		return "yes", nil
	}

	got := f.orch.classifyImageIntent(context.Background(), f.mock, "gpt-4o-mini", "what is the capital of France?")
	if got {
		t.Error("classifyImageIntent = true, want false without keywords")
	}
}

func TestClassifyImageIntent_ClassifierDecides(t *testing.T) {
	f := newTurnFixture(t)

	cases := []struct {
		answer string
		want   bool
	}{
		{"yes", true},
		{"Yes.", true},
		{"no", false},
		{"maybe", false},
		{"", false},
	}
	for _, c := range cases {
		f.mock.CompleteFunc = func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			return c.answer, nil
		}
		got := f.orch.classifyImageIntent(context.Background(), f.mock, "gpt-4o-mini", "draw a cat")
		if got != c.want {
			t.Errorf("classifyImageIntent(answer %q) = %v, want %v", c.answer, got, c.want)
		}
	}
}

func TestClassifyImageIntent_FailureDefaultsToText(t *testing.T) {
	f := newTurnFixture(t)
	f.mock.CompleteFunc = func(ctx context.Context, model string, messages []llm.Message) (string, error) {
		return "", errors.New("utility model down")
	}

	if f.orch.classifyImageIntent(context.Background(), f.mock, "gpt-4o-mini", "draw a cat") {
		t.Error("classifyImageIntent = true on classifier failure, want text fallback")
	}
}

func TestContainsImageKeyword(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"Draw me a sunset", true},
		{"generate a report", true},
		{"A PICTURE of a dog", true},
		{"summarize this text", false},
		{"", false},
	}
	for _, c := range cases {
		if got := containsImageKeyword(c.msg); got != c.want {
			t.Errorf("containsImageKeyword(%q) = %v, want %v", c.msg, got, c.want)
		}
	}
}

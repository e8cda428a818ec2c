package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quarterwave/parley/internal/llm"
)

func TestCurate_Primary(t *testing.T) {
	mock := &llm.Mock{
		CompleteFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			if model != "gpt-4o" {
				t.Errorf("model = %q, want primary gpt-4o", model)
			}
			return `[{"id":"gpt-4o","displayName":"GPT-4o"}]`, nil
		},
	}

	curated, err := Curate(context.Background(), mock, []string{"gpt-4o"}, CuratorOpts{
		Model:         "gpt-4o",
		FallbackModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Curate() error = %v", err)
	}
	if len(curated) != 1 || curated[0].ID != "gpt-4o" || curated[0].DisplayName != "GPT-4o" {
		t.Errorf("curated = %+v, want one GPT-4o entry", curated)
	}
}

func TestCurate_FallbackRetryOnMalformedOutput(t *testing.T) {
	var calls []string
	mock := &llm.Mock{
		CompleteFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			calls = append(calls, model)
			if model == "gpt-4o" {
				return "Sure! Here are the models you asked for.", nil
			}
			return "```json\n[{\"id\":\"gpt-4o\",\"displayName\":\"GPT-4o\"}]\n```", nil
		},
	}

	curated, err := Curate(context.Background(), mock, []string{"gpt-4o"}, CuratorOpts{
		Model:         "gpt-4o",
		FallbackModel: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("Curate() error = %v", err)
	}
	if len(calls) != 2 || calls[1] != "gpt-4o-mini" {
		t.Errorf("calls = %v, want primary then fallback", calls)
	}
	if len(curated) != 1 {
		t.Errorf("curated = %+v, want the fence-wrapped entry parsed", curated)
	}
}

func TestCurate_BothAttemptsFail(t *testing.T) {
	mock := &llm.Mock{
		CompleteFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			return "", errors.New("upstream timeout")
		},
	}

	_, err := Curate(context.Background(), mock, []string{"gpt-4o"}, CuratorOpts{
		Model:         "gpt-4o",
		FallbackModel: "gpt-4o-mini",
	})
	if err == nil {
		t.Fatal("Curate() error = nil, want failure after both attempts")
	}
	// Both failures must be visible for diagnostics.
	if !strings.Contains(err.Error(), "primary") {
		t.Errorf("error = %v, want to mention the primary failure", err)
	}
}

func TestCurate_EmptyArrayTriggersFallback(t *testing.T) {
	count := 0
	mock := &llm.Mock{
		CompleteFunc: func(ctx context.Context, model string, messages []llm.Message) (string, error) {
			count++
			return "[]", nil
		},
	}
	_, err := Curate(context.Background(), mock, []string{"gpt-4o"}, CuratorOpts{Model: "m"})
	if err == nil {
		t.Fatal("Curate() error = nil, want empty-output failure")
	}
	if count != 2 {
		t.Errorf("classifier calls = %d, want 2 (one bounded retry)", count)
	}
}

func TestParseCurated_RejectsWrongTypes(t *testing.T) {
	cases := []string{
		`{"id":"x"}`,                      // not an array
		`[{"id":42,"displayName":"X"}]`,   // id not a string
		`[{"displayName":"X"}]`,           // missing id
		`[{"id":"x","displayName":true}]`, // displayName not a string
		`["gpt-4o"]`,                      // element not an object
	}
	for _, in := range cases {
		if _, err := parseCurated(in); err == nil {
			t.Errorf("parseCurated(%q) error = nil, want rejection", in)
		}
	}
}

func TestStripCodeFence(t *testing.T) {
	in := "```json\n[1]\n```"
	if got := stripCodeFence(in); got != "[1]" {
		t.Errorf("stripCodeFence() = %q, want [1]", got)
	}
	if got := stripCodeFence("[1]"); got != "[1]" {
		t.Errorf("stripCodeFence(plain) = %q, want unchanged", got)
	}
}

package notify

import (
	"context"
	"errors"
	"testing"
)

type stubNotifier struct {
	sent []string
	err  error
}

func (s *stubNotifier) Send(ctx context.Context, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

func TestNoop(t *testing.T) {
	if err := (Noop{}).Send(context.Background(), "anything"); err != nil {
		t.Errorf("Noop.Send() error = %v, want nil", err)
	}
}

func TestMulti_FanOut(t *testing.T) {
	a := &stubNotifier{}
	b := &stubNotifier{}
	m := Multi{a, b}

	if err := m.Send(context.Background(), "refresh done"); err != nil {
		t.Fatalf("Multi.Send() error = %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("deliveries = %d/%d, want both sinks reached", len(a.sent), len(b.sent))
	}
}

func TestMulti_BrokenSinkDoesNotHideWorking(t *testing.T) {
	broken := &stubNotifier{err: errors.New("webhook 500")}
	working := &stubNotifier{}
	m := Multi{broken, working}

	err := m.Send(context.Background(), "summary")
	if err == nil {
		t.Fatal("Multi.Send() error = nil, want the broken sink reported")
	}
	if len(working.sent) != 1 {
		t.Error("working sink skipped after the broken one failed")
	}
}

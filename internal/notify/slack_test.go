package notify

import (
	"context"
	"errors"
	"testing"

	slackapi "github.com/slack-go/slack"
)

type mockSlackClient struct {
	channel string
	calls   int
	err     error
}

func (m *mockSlackClient) PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.calls++
	m.channel = channelID
	return "", "", m.err
}

func TestNewSlack_Validation(t *testing.T) {
	if _, err := NewSlack(SlackOpts{Channel: "#alerts"}); err == nil {
		t.Error("NewSlack() without token error = nil, want required error")
	}
	if _, err := NewSlack(SlackOpts{BotToken: "xoxb-1"}); err == nil {
		t.Error("NewSlack() without channel error = nil, want required error")
	}
}

func TestSlack_Send(t *testing.T) {
	client := &mockSlackClient{}
	s, err := NewSlack(SlackOpts{Channel: "#alerts", Client: client})
	if err != nil {
		t.Fatalf("NewSlack() error = %v", err)
	}

	if err := s.Send(context.Background(), "refresh ok"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if client.calls != 1 || client.channel != "#alerts" {
		t.Errorf("posted %d times to %q, want once to #alerts", client.calls, client.channel)
	}
}

func TestSlack_SendError(t *testing.T) {
	client := &mockSlackClient{err: errors.New("channel_not_found")}
	s, _ := NewSlack(SlackOpts{Channel: "#alerts", Client: client})
	if err := s.Send(context.Background(), "x"); err == nil {
		t.Error("Send() error = nil, want wrapped API error")
	}
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
)

type mockDiscordSession struct {
	channelID string
	content   string
	err       error
}

func (m *mockDiscordSession) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.channelID = channelID
	m.content = content
	return nil, m.err
}

func TestNewDiscord_Validation(t *testing.T) {
	if _, err := NewDiscord(DiscordOpts{ChannelID: "123"}); err == nil {
		t.Error("NewDiscord() without token error = nil, want required error")
	}
	if _, err := NewDiscord(DiscordOpts{BotToken: "abc"}); err == nil {
		t.Error("NewDiscord() without channel error = nil, want required error")
	}
}

func TestDiscord_Send(t *testing.T) {
	mock := &mockDiscordSession{}
	d, err := NewDiscord(DiscordOpts{ChannelID: "123", Session: mock})
	if err != nil {
		t.Fatalf("NewDiscord() error = %v", err)
	}

	if err := d.Send(context.Background(), "refresh ok"); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if mock.channelID != "123" || mock.content != "refresh ok" {
		t.Errorf("sent %q to %q, want refresh ok to 123", mock.content, mock.channelID)
	}
}

func TestDiscord_SendError(t *testing.T) {
	mock := &mockDiscordSession{err: errors.New("missing permissions")}
	d, _ := NewDiscord(DiscordOpts{ChannelID: "123", Session: mock})
	if err := d.Send(context.Background(), "x"); err == nil {
		t.Error("Send() error = nil, want wrapped API error")
	}
}

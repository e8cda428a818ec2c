package push

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quarterwave/parley/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openHubTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.ConnectionRegistration{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// dialTestSocket spins up a websocket echo endpoint and returns both ends.
func dialTestSocket(t *testing.T) (server *websocket.Conn, client *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		accepted <- ws
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server side never accepted")
	}
	t.Cleanup(func() { server.Close() })
	return server, client
}

func TestHub_RegisterLookup(t *testing.T) {
	db := openHubTestDB(t)
	hub, err := NewHub(HubOpts{DB: db})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}

	if err := hub.Register("conn-1", "alice"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	reg, ok, err := hub.Lookup("conn-1")
	if err != nil || !ok {
		t.Fatalf("Lookup() = %v, %v, %v, want found", reg, ok, err)
	}
	if reg.OwnerID != "alice" {
		t.Errorf("OwnerID = %q, want alice", reg.OwnerID)
	}

	if _, ok, _ := hub.Lookup("nope"); ok {
		t.Error("Lookup(nope) found a registration, want absent")
	}
}

func TestHub_SendOrderedDelivery(t *testing.T) {
	db := openHubTestDB(t)
	hub, _ := NewHub(HubOpts{DB: db})
	server, client := dialTestSocket(t)

	hub.Register("conn-1", "alice")
	hub.Attach("conn-1", server)

	ctx := context.Background()
	for _, delta := range []string{"Hel", "lo"} {
		if err := hub.Send(ctx, "conn-1", AssistantDelta("s1", "m1", delta)); err != nil {
			t.Fatalf("Send(%q) error = %v", delta, err)
		}
	}

	var assembled strings.Builder
	for i := 0; i < 2; i++ {
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if evt.Type != TypeAssistantDelta {
			t.Fatalf("event type = %q, want assistant.delta", evt.Type)
		}
		assembled.WriteString(evt.Data["delta"].(string))
	}
	if assembled.String() != "Hello" {
		t.Errorf("assembled deltas = %q, want Hello", assembled.String())
	}
}

func TestHub_SendToUnattachedConnection(t *testing.T) {
	db := openHubTestDB(t)
	hub, _ := NewHub(HubOpts{DB: db})
	hub.Register("conn-1", "alice")

	err := hub.Send(context.Background(), "conn-1", SessionTitle("s1", "Hi"))
	if !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("Send() error = %v, want ErrStaleConnection", err)
	}

	// The stale registration must be gone so nothing retries it.
	if _, ok, _ := hub.Lookup("conn-1"); ok {
		t.Error("registration survived a stale send, want deregistered")
	}
}

func TestHub_SendToDeadSocket(t *testing.T) {
	db := openHubTestDB(t)
	hub, _ := NewHub(HubOpts{DB: db})
	server, client := dialTestSocket(t)

	hub.Register("conn-1", "alice")
	hub.Attach("conn-1", server)
	client.Close()
	server.Close()

	err := hub.Send(context.Background(), "conn-1", SessionTitle("s1", "Hi"))
	if !errors.Is(err, ErrStaleConnection) {
		t.Fatalf("Send() to dead socket error = %v, want ErrStaleConnection", err)
	}
	if _, ok, _ := hub.Lookup("conn-1"); ok {
		t.Error("registration survived a dead socket, want deregistered")
	}
}

func TestHub_PurgeExpired(t *testing.T) {
	db := openHubTestDB(t)
	clock := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	hub, _ := NewHub(HubOpts{
		DB:  db,
		TTL: time.Hour,
		Now: func() time.Time { return clock },
	})

	hub.Register("old", "alice")
	clock = clock.Add(2 * time.Hour)
	hub.Register("fresh", "alice")

	n, err := hub.PurgeExpired()
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged = %d, want 1", n)
	}
	if _, ok, _ := hub.Lookup("old"); ok {
		t.Error("expired registration survived purge")
	}
	if _, ok, _ := hub.Lookup("fresh"); !ok {
		t.Error("fresh registration was purged")
	}
}

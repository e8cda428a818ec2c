package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quarterwave/parley/internal/models"
	"gorm.io/gorm"
)

// ErrStaleConnection means the target connection is gone. The hub has
// already deregistered it; callers may abandon the remaining stream.
var ErrStaleConnection = errors.New("push: stale connection")

// DefaultRegistrationTTL is the coarse registration expiry. Garbage
// collection does not depend on an explicit disconnect signal.
const DefaultRegistrationTTL = 24 * time.Hour

// Sender is the push contract consumed by the orchestrator.
type Sender interface {
	Send(ctx context.Context, connectionID string, evt Event) error
}

// conn wraps a websocket with a write mutex; gorilla connections do not
// allow concurrent writers.
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Hub tracks live websocket connections and their durable registrations.
type Hub struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time

	mu    sync.Mutex
	conns map[string]*conn
}

// HubOpts holds parameters for creating a Hub.
type HubOpts struct {
	DB  *gorm.DB
	TTL time.Duration    // defaults to DefaultRegistrationTTL
	Now func() time.Time // injectable clock for tests
}

// NewHub creates a Hub.
func NewHub(opts HubOpts) (*Hub, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("push: db is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultRegistrationTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		db:    opts.DB,
		ttl:   ttl,
		now:   now,
		conns: make(map[string]*conn),
	}, nil
}

// Register records a durable connection registration.
func (h *Hub) Register(connectionID, ownerID string) error {
	if connectionID == "" {
		return fmt.Errorf("push: connectionID is required")
	}
	if ownerID == "" {
		return fmt.Errorf("push: ownerID is required")
	}
	reg := models.ConnectionRegistration{
		ConnectionID: connectionID,
		OwnerID:      ownerID,
		ExpiresAt:    h.now().Add(h.ttl),
		CreatedAt:    h.now(),
	}
	if err := h.db.Create(&reg).Error; err != nil {
		return fmt.Errorf("push: register %s: %w", connectionID, err)
	}
	return nil
}

// Attach binds a live websocket to a registered connection id.
func (h *Hub) Attach(connectionID string, ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[connectionID] = &conn{ws: ws}
	h.mu.Unlock()
}

// Lookup returns the registration for a connection id, or false if absent.
func (h *Hub) Lookup(connectionID string) (*models.ConnectionRegistration, bool, error) {
	var reg models.ConnectionRegistration
	err := h.db.First(&reg, "connection_id = ?", connectionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("push: lookup %s: %w", connectionID, err)
	}
	return &reg, true, nil
}

// Send delivers one event to the connection. A missing or dead target is
// deregistered and reported as ErrStaleConnection; encoding errors
// propagate as-is.
func (h *Hub) Send(ctx context.Context, connectionID string, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("push: encode %s: %w", evt.Type, err)
	}

	h.mu.Lock()
	c := h.conns[connectionID]
	h.mu.Unlock()

	if c == nil {
		h.Deregister(connectionID)
		return fmt.Errorf("push: send %s to %s: %w", evt.Type, connectionID, ErrStaleConnection)
	}
	if err := c.write(data); err != nil {
		// A write error on a websocket means the peer is gone.
		h.Deregister(connectionID)
		return fmt.Errorf("push: send %s to %s: %v: %w", evt.Type, connectionID, err, ErrStaleConnection)
	}
	return nil
}

// Deregister drops the live socket and deletes the durable registration.
func (h *Hub) Deregister(connectionID string) {
	h.mu.Lock()
	c := h.conns[connectionID]
	delete(h.conns, connectionID)
	h.mu.Unlock()

	if c != nil {
		c.ws.Close()
	}
	if err := h.db.Delete(&models.ConnectionRegistration{}, "connection_id = ?", connectionID).Error; err != nil {
		log.Printf("push: deregister %s: %v", connectionID, err)
	}
}

// PurgeExpired deletes registrations past their expiry and drops any
// matching live sockets. Returns the number of rows removed.
func (h *Hub) PurgeExpired() (int64, error) {
	now := h.now()

	var expired []models.ConnectionRegistration
	if err := h.db.Where("expires_at < ?", now).Find(&expired).Error; err != nil {
		return 0, fmt.Errorf("push: find expired: %w", err)
	}
	for _, reg := range expired {
		h.mu.Lock()
		if c := h.conns[reg.ConnectionID]; c != nil {
			c.ws.Close()
			delete(h.conns, reg.ConnectionID)
		}
		h.mu.Unlock()
	}

	result := h.db.Delete(&models.ConnectionRegistration{}, "expires_at < ?", now)
	if result.Error != nil {
		return 0, fmt.Errorf("push: purge expired: %w", result.Error)
	}
	return result.RowsAffected, nil
}

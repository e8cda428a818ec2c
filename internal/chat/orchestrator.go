// Package chat drives one conversational turn end to end: persist the user
// message, call the provider, relay deltas to the live connection, persist
// the result, and derive a title for new sessions.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quarterwave/parley/internal/blob"
	"github.com/quarterwave/parley/internal/config"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/models"
	"github.com/quarterwave/parley/internal/push"
	"github.com/quarterwave/parley/internal/session"
	"gorm.io/gorm"
)

// ErrInvalidAttachment means an attachment key does not belong to the
// caller's session. Rejected synchronously with no side effects.
var ErrInvalidAttachment = errors.New("chat: attachment does not belong to session")

// historyLimit caps how many prior events are replayed to the provider.
const historyLimit = 40

// Attachment is one uploaded file referenced by a turn request.
type Attachment struct {
	FileKey  string `json:"fileKey"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
	FileSize int64  `json:"fileSize"`
}

// TurnRequest is one inbound user turn.
type TurnRequest struct {
	SessionID    string       `json:"sessionId"`
	ConnectionID string       `json:"connectionId"`
	OwnerID      string       `json:"-"`
	Message      string       `json:"message"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// TurnResult reports the outcome of a turn. Failed is set when the provider
// call broke after streaming started; such failures are pushed to the
// client, never retried, and never surfaced as a synchronous error.
type TurnResult struct {
	MessageID string `json:"messageId"`
	Content   string `json:"content,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Failed    bool   `json:"failed,omitempty"`
}

// Orchestrator runs the turn state machine.
type Orchestrator struct {
	db       *gorm.DB
	registry *llm.Registry
	creds    llm.CredentialSource
	push     push.Sender
	blobs    blob.Store
	cfg      *config.Config
	leaseTTL time.Duration
	now      func() time.Time
}

// OrchestratorOpts holds parameters for creating an Orchestrator.
type OrchestratorOpts struct {
	DB       *gorm.DB
	Registry *llm.Registry
	Creds    llm.CredentialSource
	Push     push.Sender
	Blobs    blob.Store
	Config   *config.Config
	LeaseTTL time.Duration    // defaults to session.DefaultTurnLease
	Now      func() time.Time // injectable clock for tests
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts OrchestratorOpts) (*Orchestrator, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("chat: db is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("chat: registry is required")
	}
	if opts.Creds == nil {
		return nil, fmt.Errorf("chat: credential source is required")
	}
	if opts.Push == nil {
		return nil, fmt.Errorf("chat: push sender is required")
	}
	if opts.Blobs == nil {
		return nil, fmt.Errorf("chat: blob store is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("chat: config is required")
	}
	leaseTTL := opts.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = session.DefaultTurnLease
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		db:       opts.DB,
		registry: opts.Registry,
		creds:    opts.Creds,
		push:     opts.Push,
		blobs:    opts.Blobs,
		cfg:      opts.Config,
		leaseTTL: leaseTTL,
		now:      now,
	}, nil
}

// HandleTurn runs one turn. Errors before the started event are returned
// synchronously; later failures become best-effort error pushes and a
// Failed result.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	if req.SessionID == "" {
		return nil, fmt.Errorf("chat: sessionId is required")
	}
	if req.ConnectionID == "" {
		return nil, fmt.Errorf("chat: connectionId is required")
	}
	if req.OwnerID == "" {
		return nil, fmt.Errorf("chat: ownerId is required")
	}
	if strings.TrimSpace(req.Message) == "" && len(req.Attachments) == 0 {
		return nil, fmt.Errorf("chat: message is required")
	}

	s, err := session.Get(o.db, req.SessionID)
	if err != nil {
		return nil, err
	}
	if s.OwnerID != req.OwnerID {
		return nil, session.ErrNotFound
	}
	if err := validateAttachments(req, s); err != nil {
		return nil, err
	}

	provider := o.cfg.Provider(s.ProviderID)
	if provider == nil {
		return nil, fmt.Errorf("chat: provider %q is not configured", s.ProviderID)
	}
	client, err := o.registry.ClientFor(*provider, o.creds)
	if err != nil {
		return nil, err
	}

	if err := session.AcquireTurnLease(o.db, s.ID, o.leaseTTL, o.now()); err != nil {
		return nil, err
	}
	defer func() {
		if err := session.ReleaseTurnLease(o.db, s.ID); err != nil {
			log.Printf("chat: release lease %s: %v", s.ID, err)
		}
	}()

	parts, err := o.attachmentParts(ctx, req)
	if err != nil {
		return nil, err
	}

	priorUserTurns, err := countUserTurns(o.db, s.ID)
	if err != nil {
		return nil, err
	}

	userEvent := &models.SessionEvent{
		SessionID: s.ID,
		MessageID: uuid.NewString(),
		Role:      llm.RoleUser,
		Content:   req.Message,
		CreatedBy: req.OwnerID,
		CreatedAt: o.now(),
	}
	if len(parts) > 0 {
		encoded, err := json.Marshal(parts)
		if err != nil {
			return nil, fmt.Errorf("chat: encode parts: %w", err)
		}
		userEvent.PartsJSON = string(encoded)
	}
	if err := session.AppendEvent(o.db, userEvent); err != nil {
		return nil, err
	}

	set := map[string]interface{}{"last_interaction_at": o.now()}
	if s.LiveConnectionID == nil || *s.LiveConnectionID != req.ConnectionID {
		set["live_connection_id"] = req.ConnectionID
	}
	if err := session.UpdateMeta(o.db, s, set); err != nil {
		return nil, err
	}

	// Attachments imply analysis of existing content, never new generation.
	wantsImage := false
	if len(req.Attachments) == 0 {
		wantsImage = o.classifyImageIntent(ctx, client, provider.UtilityModel, req.Message)
	}

	var result *TurnResult
	if wantsImage {
		result = o.runImageTurn(ctx, client, provider, s, req)
	} else {
		result, err = o.runTextTurn(ctx, client, s, req, parts)
		if err != nil {
			return nil, err
		}
	}

	o.maybeGenerateTitle(ctx, client, provider.UtilityModel, s, req, priorUserTurns)
	return result, nil
}

// runTextTurn streams the provider reply to the live connection and
// persists the assistant event.
func (o *Orchestrator) runTextTurn(ctx context.Context, client llm.Client, s *models.Session, req TurnRequest, parts []llm.Part) (*TurnResult, error) {
	history, err := o.buildHistory(s.ID, req, parts)
	if err != nil {
		return nil, err
	}

	stream, err := client.SendMessage(ctx, s.ModelID, history)
	if err != nil {
		// Nothing was announced yet; this is a synchronous failure.
		return nil, err
	}

	messageID := uuid.NewString()
	pusher := newTurnPusher(ctx, o.push, req.ConnectionID, s.ID)

	pusher.send(push.AssistantStarted(s.ID, messageID))

	// Relay deltas in the exact order received. A dead connection stops
	// pushing but never stops draining: the transcript must not depend on
	// the client still being connected.
	for delta := range stream.Deltas() {
		pusher.send(push.AssistantDelta(s.ID, messageID, delta))
	}

	res, streamErr := stream.FinalResult()
	if streamErr != nil {
		log.Printf("chat: provider stream for %s: %v", s.ID, streamErr)
		pusher.send(push.AssistantError(s.ID, messageID, "The model failed to complete its reply."))
		return &TurnResult{MessageID: messageID, Failed: true}, nil
	}

	assistantEvent := &models.SessionEvent{
		SessionID:    s.ID,
		MessageID:    messageID,
		Role:         llm.RoleAssistant,
		Content:      res.Content,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		CreatedBy:    s.ProviderID,
		CreatedAt:    o.now(),
	}
	if err := session.AppendEvent(o.db, assistantEvent); err != nil {
		pusher.send(push.AssistantError(s.ID, messageID, "Failed to save the reply."))
		return &TurnResult{MessageID: messageID, Failed: true}, nil
	}

	pusher.send(push.AssistantCompleted(s.ID, messageID, res.Content))

	if err := session.UpdateMeta(o.db, s, map[string]interface{}{
		"last_interaction_at": o.now(),
	}); err != nil {
		log.Printf("chat: bump session %s after turn: %v", s.ID, err)
	}

	return &TurnResult{MessageID: messageID, Content: res.Content}, nil
}

// maybeGenerateTitle derives a title after the session's first user turn.
// Title generation is optional enrichment: failure is silent and never
// fails the turn.
func (o *Orchestrator) maybeGenerateTitle(ctx context.Context, client llm.Client, utilityModel string, s *models.Session, req TurnRequest, priorUserTurns int64) {
	if s.Title != "" || priorUserTurns > 0 {
		return
	}
	history, err := o.buildHistory(s.ID, req, nil)
	if err != nil {
		log.Printf("chat: title history for %s: %v", s.ID, err)
		return
	}
	title, err := client.GenerateTitle(ctx, utilityModel, history)
	if err != nil || title == "" {
		log.Printf("chat: generate title for %s: %v", s.ID, err)
		return
	}
	if err := session.UpdateMeta(o.db, s, map[string]interface{}{"title": title}); err != nil {
		log.Printf("chat: save title for %s: %v", s.ID, err)
		return
	}
	s.Title = title
	pusher := newTurnPusher(ctx, o.push, req.ConnectionID, s.ID)
	pusher.send(push.SessionTitle(s.ID, title))
}

// buildHistory converts persisted events into provider messages, with the
// current turn's multimodal parts attached to the latest user message.
func (o *Orchestrator) buildHistory(sessionID string, req TurnRequest, parts []llm.Part) ([]llm.Message, error) {
	events, err := session.History(o.db, sessionID, historyLimit)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, 0, len(events))
	for _, evt := range events {
		msgs = append(msgs, llm.Message{Role: evt.Role, Text: evt.Content})
	}
	if len(parts) > 0 && len(msgs) > 0 {
		last := &msgs[len(msgs)-1]
		if last.Role == llm.RoleUser {
			full := append([]llm.Part{{Type: llm.PartText, Text: last.Text}}, parts...)
			last.Parts = full
		}
	}
	return msgs, nil
}

// attachmentParts converts validated attachments into provider message
// parts: images as short-lived fetchable references, documents inlined.
func (o *Orchestrator) attachmentParts(ctx context.Context, req TurnRequest) ([]llm.Part, error) {
	parts := make([]llm.Part, 0, len(req.Attachments))
	for _, att := range req.Attachments {
		if strings.HasPrefix(att.FileType, "image/") {
			parts = append(parts, llm.Part{
				Type:     llm.PartImage,
				ImageURL: o.blobs.URL(att.FileKey),
				MimeType: att.FileType,
			})
			continue
		}
		data, err := o.blobs.Get(ctx, att.FileKey)
		if err != nil {
			return nil, fmt.Errorf("chat: read attachment %s: %w", att.FileKey, err)
		}
		parts = append(parts, llm.Part{
			Type:     llm.PartFile,
			FileName: att.FileName,
			MimeType: att.FileType,
			Data:     data,
		})
	}
	return parts, nil
}

// validateAttachments rejects attachment keys outside the caller's session
// upload prefix.
func validateAttachments(req TurnRequest, s *models.Session) error {
	prefix := fmt.Sprintf("uploads/%s/%s/", s.OwnerID, s.ID)
	for _, att := range req.Attachments {
		if att.FileKey == "" || !strings.HasPrefix(att.FileKey, prefix) {
			return fmt.Errorf("%w: %s", ErrInvalidAttachment, att.FileKey)
		}
	}
	return nil
}

// countUserTurns counts persisted user events for a session.
func countUserTurns(db *gorm.DB, sessionID string) (int64, error) {
	var count int64
	if err := db.Model(&models.SessionEvent{}).
		Where("session_id = ? AND role = ?", sessionID, llm.RoleUser).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("chat: count user turns: %w", err)
	}
	return count, nil
}

// turnPusher wraps the push channel for one turn. After the first stale
// send it stops pushing entirely; other push errors are logged and the
// stream continues.
type turnPusher struct {
	ctx    context.Context
	sender push.Sender
	connID string
	sessID string
	dead   bool
}

func newTurnPusher(ctx context.Context, sender push.Sender, connID, sessID string) *turnPusher {
	return &turnPusher{ctx: ctx, sender: sender, connID: connID, sessID: sessID}
}

func (p *turnPusher) send(evt push.Event) {
	if p.dead {
		return
	}
	err := p.sender.Send(p.ctx, p.connID, evt)
	if err == nil {
		return
	}
	if errors.Is(err, push.ErrStaleConnection) {
		log.Printf("chat: connection %s gone for session %s, abandoning push", p.connID, p.sessID)
		p.dead = true
		return
	}
	log.Printf("chat: push %s for session %s: %v", evt.Type, p.sessID, err)
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quarterwave/parley/internal/catalog"
	"github.com/quarterwave/parley/internal/chat"
	"github.com/quarterwave/parley/internal/models"
	"github.com/quarterwave/parley/internal/session"
)

// maxUploadBytes caps a single attachment upload.
const maxUploadBytes = 20 << 20

// registerRoutes sets up all routes on the gin router.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", s.handleHealth)
	router.Static("/blobs", s.cfg.Blob.Dir)

	router.GET("/ws", s.handleWebSocket)

	api := router.Group("/api", s.authMiddleware())
	api.POST("/sessions", s.handleCreateSession)
	api.GET("/sessions", s.handleListSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	api.PATCH("/sessions/:id", s.handleUpdateSession)
	api.DELETE("/sessions/:id", s.handleDeleteSession)
	api.POST("/sessions/:id/messages", s.handleSendMessage)
	api.POST("/sessions/:id/uploads", s.handleUpload)

	api.GET("/catalog", s.handleCatalog)
	api.POST("/catalog/:provider/refresh", s.handleManualRefresh)
}

func (s *Server) handleHealth(c *gin.Context) {
	if db, err := s.db.DB(); err != nil || db.Ping() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authMiddleware resolves the bearer token to an owner id and stores it in
// the request context.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner, err := s.resolveOwner(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set("owner", owner)
		c.Next()
	}
}

// resolveOwner extracts the caller token from the Authorization header or,
// for WebSocket clients, the token query parameter.
func (s *Server) resolveOwner(c *gin.Context) (string, error) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if token == "" {
		token = c.Query("token")
	}
	return s.identity.Resolve(c.Request.Context(), token)
}

func owner(c *gin.Context) string {
	return c.GetString("owner")
}

type createSessionRequest struct {
	ProviderID string `json:"providerId" binding:"required"`
	ModelID    string `json:"modelId" binding:"required"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider := s.cfg.Provider(req.ProviderID)
	if provider == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown provider %q", req.ProviderID)})
		return
	}
	sess, err := session.Create(s.db, owner(c), provider.ID, provider.Kind, req.ModelID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := session.ListByOwner(s.db, owner(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// ownedSession loads a session and enforces ownership. A foreign session is
// indistinguishable from a missing one.
func (s *Server) ownedSession(c *gin.Context) (*models.Session, bool) {
	sess, err := session.Get(s.db, c.Param("id"))
	if err != nil || sess.OwnerID != owner(c) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	return sess, true
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	events, err := session.History(s.db, sess.ID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sess, "events": events})
}

type updateSessionRequest struct {
	Title   *string `json:"title"`
	Pinned  *bool   `json:"pinned"`
	Status  *string `json:"status"`
	Version int64   `json:"version" binding:"required"`
}

func (s *Server) handleUpdateSession(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	set := map[string]interface{}{}
	if req.Title != nil {
		set["title"] = *req.Title
	}
	if req.Pinned != nil {
		set["pinned"] = *req.Pinned
	}
	if req.Status != nil {
		if *req.Status != models.SessionActive && *req.Status != models.SessionArchived {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid status %q", *req.Status)})
			return
		}
		set["status"] = *req.Status
	}
	if len(set) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
		return
	}

	// The caller's version, not the freshly loaded one, drives the
	// optimistic check so concurrent edits are detected.
	sess.Version = req.Version
	if err := session.UpdateMeta(s.db, sess, set); err != nil {
		switch {
		case errors.Is(err, session.ErrVersionConflict):
			c.JSON(http.StatusConflict, gin.H{"error": "version conflict"})
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	if err := session.Delete(s.db, sess.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// Blob cleanup is best effort; the session rows are already gone.
	ctx := c.Request.Context()
	for _, prefix := range []string{
		"images/" + sess.ID,
		fmt.Sprintf("uploads/%s/%s", sess.OwnerID, sess.ID),
	} {
		if err := s.blobs.DeletePrefix(ctx, prefix); err != nil {
			log.Printf("server: delete blobs %s: %v", prefix, err)
		}
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req chat.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.SessionID = c.Param("id")
	req.OwnerID = owner(c)

	result, err := s.orchestrator.HandleTurn(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		case errors.Is(err, session.ErrTurnInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": "a turn is already in progress"})
		case errors.Is(err, chat.ErrInvalidAttachment):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleUpload(c *gin.Context) {
	sess, ok := s.ownedSession(c)
	if !ok {
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()
	if header.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := fmt.Sprintf("uploads/%s/%s/%s-%s", sess.OwnerID, sess.ID, uuid.NewString(), header.Filename)
	contentType := header.Header.Get("Content-Type")
	url, err := s.blobs.Put(c.Request.Context(), key, data, contentType)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"fileKey":  key,
		"fileName": header.Filename,
		"fileType": contentType,
		"fileSize": header.Size,
		"url":      url,
	})
}

func (s *Server) handleCatalog(c *gin.Context) {
	view, err := catalog.View(s.db, s.cfg.Providers, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": view})
}

// handleManualRefresh refreshes one provider synchronously, then probes it
// in the background so the response is not held for minutes.
func (s *Server) handleManualRefresh(c *gin.Context) {
	provider := s.cfg.Provider(c.Param("provider"))
	if provider == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider"})
		return
	}

	count, err := s.refresher.RefreshProvider(c.Request.Context(), *provider, models.RefreshManual)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	go func() {
		client, err := s.registry.ClientFor(*provider, s.creds)
		if err != nil {
			log.Printf("server: client for probe %s: %v", provider.ID, err)
			return
		}
		if err := s.prober.ProbeProvider(context.Background(), client, provider.ID); err != nil {
			log.Printf("server: probe %s: %v", provider.ID, err)
		}
	}()

	c.JSON(http.StatusOK, gin.H{"provider": provider.ID, "modelCount": count})
}

package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/session"
	"github.com/xpanvictor/xarvis-gateway/internal/events"
	"github.com/xpanvictor/xarvis-gateway/pkg/Logger"
)

const defaultEventLimit = 100

// EventLister reads the session audit log.
type EventLister interface {
	List(ctx context.Context, sessionID string, limit int) ([]events.Event, error)
}

// SessionHandler lets a user inspect and end their own live sessions.
type SessionHandler struct {
	sessions *session.Manager
	audit    EventLister
	tokens   TokenValidator
	logger   *Logger.Logger
}

// NewSessionHandler creates the handler. audit may be nil when no event
// store is configured.
func NewSessionHandler(sessions *session.Manager, audit EventLister, tokens TokenValidator, logger *Logger.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		audit:    audit,
		tokens:   tokens,
		logger:   logger,
	}
}

func (h *SessionHandler) RegisterRoutes(router gin.IRouter) {
	g := router.Group("/sessions", AuthMiddleware(h.tokens, h.logger))
	g.GET("", h.ListSessions)
	g.GET("/:id/events", h.ListEvents)
	g.DELETE("/:id", h.EndSession)
}

// ListSessions returns the caller's live sessions.
// @Summary List live sessions
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionsResponse
// @Failure 401 {object} ErrorResponse "User not authenticated"
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	userID, ok := ExtractUserID(c)
	if !ok {
		return
	}

	now := h.sessions.Now()
	out := []map[string]any{}
	for _, s := range h.sessions.List() {
		if s.UserID == userID {
			out = append(out, s.Project(nil, now))
		}
	}
	c.JSON(http.StatusOK, SessionsResponse{Sessions: out})
}

// EndSession force-evicts one of the caller's sessions. The socket stays
// open and sees SESSION_INVALID on its next request.
func (h *SessionHandler) EndSession(c *gin.Context) {
	userID, ok := ExtractUserID(c)
	if !ok {
		return
	}

	id := c.Param("id")
	s, found := h.sessions.Get(id)
	if !found || s.UserID != userID {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found"})
		return
	}
	h.sessions.Unregister(id, session.ReasonForced)
	h.logger.Infof("session %s ended by user %s", id, userID)
	c.JSON(http.StatusOK, SuccessResponse{Message: "Session ended"})
}

// ListEvents returns the audit trail of one of the caller's sessions.
func (h *SessionHandler) ListEvents(c *gin.Context) {
	userID, ok := ExtractUserID(c)
	if !ok {
		return
	}
	if h.audit == nil {
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: "Event store is disabled"})
		return
	}

	limit := defaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid limit"})
			return
		}
		limit = n
	}

	id := c.Param("id")
	evs, err := h.audit.List(c.Request.Context(), id, limit)
	if err != nil {
		h.logger.Errorf("list events for %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
		return
	}
	if !ownedBy(evs, userID) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Session not found"})
		return
	}
	c.JSON(http.StatusOK, SessionEventsResponse{SessionID: id, Events: evs})
}

// ownedBy reports whether a registration in evs belongs to userID.
// Eviction events carry no user.
func ownedBy(evs []events.Event, userID string) bool {
	for _, ev := range evs {
		if ev.Type == events.TypeRegistered && ev.UserID == userID {
			return true
		}
	}
	return false
}

package handlers

import (
	"net/http"

	"wainbox/internal/http/middleware"
	"wainbox/internal/services"
	"wainbox/pkg/models"

	"github.com/labstack/echo/v4"
)

// InboxHandler serves the agent-facing inbox
type InboxHandler struct {
	inbox   *services.InboxService
	replies *services.ReplyService
}

// NewInboxHandler creates a new inbox handler
func NewInboxHandler(inbox *services.InboxService, replies *services.ReplyService) *InboxHandler {
	return &InboxHandler{inbox: inbox, replies: replies}
}

// LockResponse reports a granted reply lock
type LockResponse struct {
	OK       bool  `json:"ok"`
	LockedBy *uint `json:"locked_by"`
	TTL      int   `json:"ttl,omitempty"`
}

// ReplyRequest is the body of a reply
type ReplyRequest struct {
	Text string `json:"text"`
}

// ReplyResponse carries the stored outbound message
type ReplyResponse struct {
	OK      bool            `json:"ok"`
	Message *models.Message `json:"message"`
}

// ListNumbers godoc
// @Summary List visible numbers
// @Description Active WhatsApp numbers the caller may work on
// @Tags inbox
// @Produce json
// @Success 200 {array} models.WhatsAppNumber
// @Failure 401 {object} ErrorResponse
// @Security BearerAuth
// @Router /inbox/numbers [get]
func (h *InboxHandler) ListNumbers(c echo.Context) error {
	numbers, err := h.inbox.ListVisibleNumbers(c.Request().Context(), middleware.GetPrincipal(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, numbers)
}

// ListConversations godoc
// @Summary List conversations of a number
// @Description Most recent first, annotated with the reply lock holder
// @Tags inbox
// @Produce json
// @Param id path int true "Number ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {array} models.ConversationWithLock
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /inbox/numbers/{id}/conversations [get]
func (h *InboxHandler) ListConversations(c echo.Context) error {
	numberID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid number ID")
	}
	limit, offset := parsePage(c)

	conversations, err := h.inbox.ListConversations(c.Request().Context(), numberID, middleware.GetPrincipal(c), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, conversations)
}

// ListMessages godoc
// @Summary List messages of a conversation
// @Tags inbox
// @Produce json
// @Param id path int true "Conversation ID"
// @Param limit query int false "Page size" default(50)
// @Param offset query int false "Offset" default(0)
// @Success 200 {array} models.Message
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Security BearerAuth
// @Router /inbox/conversations/{id}/messages [get]
func (h *InboxHandler) ListMessages(c echo.Context) error {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation ID")
	}
	limit, offset := parsePage(c)

	messages, err := h.inbox.ListMessages(c.Request().Context(), conversationID, middleware.GetPrincipal(c), limit, offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, messages)
}

// Stats godoc
// @Summary Inbox counters
// @Tags inbox
// @Produce json
// @Success 200 {object} models.DashboardStats
// @Security BearerAuth
// @Router /inbox/stats [get]
func (h *InboxHandler) Stats(c echo.Context) error {
	stats, err := h.inbox.DashboardStats(c.Request().Context(), middleware.GetPrincipal(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// AcquireLock godoc
// @Summary Lock a conversation for replying
// @Description Grants the caller the reply lock for ten minutes. The holder acquiring again refreshes it.
// @Tags inbox
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} LockResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /inbox/conversations/{id}/lock [post]
func (h *InboxHandler) AcquireLock(c echo.Context) error {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation ID")
	}

	status, err := h.inbox.AcquireLock(c.Request().Context(), conversationID, middleware.GetPrincipal(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, LockResponse{OK: true, LockedBy: status.LockedBy, TTL: status.TTL})
}

// ReleaseLock godoc
// @Summary Release a conversation lock
// @Tags inbox
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} LockResponse
// @Failure 409 {object} ErrorResponse
// @Security BearerAuth
// @Router /inbox/conversations/{id}/lock [delete]
func (h *InboxHandler) ReleaseLock(c echo.Context) error {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation ID")
	}

	if err := h.inbox.ReleaseLock(c.Request().Context(), conversationID, middleware.GetPrincipal(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, LockResponse{OK: true})
}

// GetLock godoc
// @Summary Current lock holder
// @Tags inbox
// @Produce json
// @Param id path int true "Conversation ID"
// @Success 200 {object} services.LockStatus
// @Security BearerAuth
// @Router /inbox/conversations/{id}/lock [get]
func (h *InboxHandler) GetLock(c echo.Context) error {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation ID")
	}

	status, err := h.inbox.LockOwner(c.Request().Context(), conversationID, middleware.GetPrincipal(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// Reply godoc
// @Summary Reply to a conversation
// @Description Sends a text through the Cloud API inside the 24-hour window and stores it
// @Tags inbox
// @Accept json
// @Produce json
// @Param id path int true "Conversation ID"
// @Param request body ReplyRequest true "Reply text"
// @Success 200 {object} ReplyResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Security BearerAuth
// @Router /inbox/conversations/{id}/reply [post]
func (h *InboxHandler) Reply(c echo.Context) error {
	conversationID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "Invalid conversation ID")
	}

	var req ReplyRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Invalid request")
	}

	message, err := h.replies.SendReply(c.Request().Context(), conversationID, req.Text, middleware.GetPrincipal(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, ReplyResponse{OK: true, Message: message})
}

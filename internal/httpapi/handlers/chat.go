package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/chat"
)

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

type createSessionReq struct {
	Provider      string `json:"provider"`
	Model         string `json:"model"`
	MaxConcurrent int    `json:"max_concurrent"`
	SystemPrompt  string `json:"system_prompt"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	var req createSessionReq
	_ = c.ShouldBindJSON(&req) // allow empty {}

	sess, err := h.Ctrl.CreateSession(c.Request.Context(), chat.SessionConfig{
		Provider:      req.Provider,
		Model:         req.Model,
		MaxConcurrent: req.MaxConcurrent,
		SystemPrompt:  req.SystemPrompt,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	ok(c, gin.H{"session_id": sess.ID()})
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	ok(c, gin.H{"session_ids": h.Ctrl.ListSessions()})
}

func (h *Handler) GetChatSession(c *gin.Context) {
	snap, err := h.Ctrl.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50002, "failed to load session")
		return
	}
	ok(c, snap)
}

func (h *Handler) DeleteChatSession(c *gin.Context) {
	force, _ := strconv.ParseBool(c.Query("force"))

	err := h.Ctrl.DeleteSession(c.Request.Context(), c.Param("session_id"), force)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		fail(c, http.StatusNotFound, 40004, "session not found")
	case errors.Is(err, chat.ErrBusy):
		fail(c, http.StatusConflict, 40901, "session has in-flight requests")
	case err != nil:
		fail(c, http.StatusInternalServerError, 50003, "failed to delete session")
	default:
		ok(c, gin.H{"deleted": true})
	}
}

type submitMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// SubmitChatMessage accepts the message and returns a request id right
// away; the reply shows up in the session log once generation resolves.
func (h *Handler) SubmitChatMessage(c *gin.Context) {
	var req submitMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	requestID, err := h.Ctrl.Submit(c.Request.Context(), req.SessionID, req.Message)
	switch {
	case errors.Is(err, chat.ErrNotFound):
		fail(c, http.StatusNotFound, 40004, "session not found")
	case errors.Is(err, chat.ErrBusy):
		fail(c, http.StatusConflict, 40902, "too many in-flight requests")
	case err != nil:
		fail(c, http.StatusInternalServerError, 50004, "failed to submit message")
	default:
		c.JSON(http.StatusAccepted, gin.H{
			"code":    0,
			"message": "accepted",
			"data": gin.H{
				"session_id": req.SessionID,
				"request_id": requestID,
			},
		})
	}
}

func (h *Handler) CancelChatRequest(c *gin.Context) {
	err := h.Ctrl.Cancel(c.Request.Context(), c.Param("request_id"))
	if err != nil {
		if errors.Is(err, chat.ErrNotFound) {
			fail(c, http.StatusNotFound, 40005, "request not found")
			return
		}
		fail(c, http.StatusInternalServerError, 50005, "failed to cancel request")
		return
	}
	ok(c, gin.H{"cancelled": true})
}

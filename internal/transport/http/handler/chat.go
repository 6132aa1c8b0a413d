package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"ragchat/internal/app"
	"ragchat/internal/transport/http/middleware"
	"ragchat/internal/transport/http/response"
)

type ChatHandler struct {
	chatService *app.ChatService
}

type CreateSessionRequest struct {
	SessionID    string `json:"session_id" binding:"required,max=64"`
	RoleName     string `json:"role_name" binding:"max=128"`
	SystemPrompt string `json:"system_prompt" binding:"max=4096"`
}

type StreamMessageRequest struct {
	SessionID       string `json:"session_id" binding:"required,max=64"`
	Content         string `json:"content" binding:"required"`
	RoleName        string `json:"role_name" binding:"max=128"`
	SystemPrompt    string `json:"system_prompt" binding:"max=4096"`
	WebSearch       bool   `json:"web_search"`
	KnowledgeBaseID string `json:"knowledge_base_id"`
	SessionTempDocs bool   `json:"session_temp_docs"`
}

func NewChatHandler(chatService *app.ChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

func (h *ChatHandler) CreateSession(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	session, err := h.chatService.CreateSession(app.CreateSessionInput{
		TenantID:     tenantID,
		SessionID:    req.SessionID,
		RoleName:     req.RoleName,
		SystemPrompt: req.SystemPrompt,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "create session failed")
		}
		return
	}

	response.OK(c, session)
}

func (h *ChatHandler) ListSessions(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	sessions, err := h.chatService.ListSessions(tenantID)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "list sessions failed")
		return
	}

	response.OK(c, sessions)
}

func (h *ChatHandler) DeleteSession(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	sessionID := c.Param("id")
	if err := h.chatService.DeleteSession(c.Request.Context(), tenantID, sessionID); err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "delete session failed")
		}
		return
	}

	response.OK(c, gin.H{"deleted_session_id": sessionID})
}

// StreamMessage runs one chat turn and relays its event stream as SSE. Event
// names mirror the orchestrator's event types; sources carry a JSON payload.
func (h *ChatHandler) StreamMessage(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	var req StreamMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	events, err := h.chatService.StreamChat(c.Request.Context(), app.StreamChatInput{
		TenantID:     tenantID,
		SessionID:    req.SessionID,
		Content:      req.Content,
		RoleName:     req.RoleName,
		SystemPrompt: req.SystemPrompt,
		Sources: app.RetrievalSources{
			Web:             req.WebSearch,
			KnowledgeBaseID: req.KnowledgeBaseID,
			SessionTempDocs: req.SessionTempDocs,
		},
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput), errors.Is(err, app.ErrMessageEmpty):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "start chat stream failed")
		}
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "stream not supported")
		return
	}

	for event := range events {
		if writeErr := writeSSEEvent(c, event); writeErr != nil {
			// client gone; the orchestrator finishes persistence on its own
			return
		}
		flusher.Flush()
	}
}

func writeSSEEvent(c *gin.Context, event app.ChatEvent) error {
	var payload string
	switch event.Type {
	case app.EventSources:
		raw, err := json.Marshal(event.Sources)
		if err != nil {
			return err
		}
		payload = string(raw)
	default:
		payload = sanitizeSSE(event.Text)
	}
	_, err := c.Writer.WriteString("event: " + string(event.Type) + "\ndata: " + payload + "\n\n")
	return err
}

func (h *ChatHandler) GetHistory(c *gin.Context) {
	tenantID, ok := getTenantIDFromContext(c)
	if !ok {
		response.Error(c, http.StatusUnauthorized, response.CodeUnauthorized, "missing client identity")
		return
	}

	sessionID := c.Query("session_id")
	if sessionID == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid session_id")
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, parseErr := strconv.Atoi(raw); parseErr == nil {
			limit = parsed
		}
	}

	history, err := h.chatService.GetHistory(tenantID, sessionID, limit)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		case errors.Is(err, app.ErrNotFound):
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "get history failed")
		}
		return
	}

	response.OK(c, history)
}

func getTenantIDFromContext(c *gin.Context) (string, bool) {
	tenantIDAny, exists := c.Get(middleware.ContextTenantIDKey)
	if !exists {
		return "", false
	}
	tenantID, ok := tenantIDAny.(string)
	return tenantID, ok && tenantID != ""
}

func sanitizeSSE(input string) string {
	replaced := strings.ReplaceAll(input, "\r\n", "\\n")
	replaced = strings.ReplaceAll(replaced, "\n", "\\n")
	return replaced
}

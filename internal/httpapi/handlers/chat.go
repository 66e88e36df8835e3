package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/elara-health/chat-service/internal/chat"
	"github.com/elara-health/chat-service/internal/common"
)

func (h *Handler) CreateChatSession(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	sid, err := common.NewULID()
	if err != nil {
		log.Printf("[CreateChatSession] ulid failed user_id=%s err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}
	sess := &chat.Session{SessionID: sid, UserID: uid}
	if err := h.ChatRepo.CreateSession(c.Request.Context(), sess); err != nil {
		log.Printf("[CreateChatSession] insert failed user_id=%s err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50001, "failed to create session")
		return
	}

	common.OK(c, gin.H{"session_id": sess.SessionID})
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	sessions, err := h.ChatRepo.ListSessions(c.Request.Context(), uid, limit)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list sessions")
		return
	}

	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")

	ctl, err := h.Manager.Acquire(c.Request.Context(), uid, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to load messages")
		return
	}
	defer h.Manager.Release(sessionID)

	common.OK(c, gin.H{
		"messages":   ctl.Messages(),
		"generating": ctl.Generating(),
	})
}

type sendMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) SendChatMessage(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctl, err := h.Manager.Acquire(c.Request.Context(), uid, req.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	defer h.Manager.Release(req.SessionID)

	// Submit never errors: failures surface as the in-conversation reply
	ctl.Submit(c.Request.Context(), req.Message)

	common.OK(c, gin.H{
		"session_id": req.SessionID,
		"messages":   ctl.Messages(),
	})
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx
	c.Status(http.StatusOK)
}

func sseWriter(c *gin.Context, flusher http.Flusher) func(event string, payload any) {
	return func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}
}

// SendChatMessageStream submits a message and relays the controller's view
// events over SSE while the reply streams in.
func (h *Handler) SendChatMessageStream(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	ctl, err := h.Manager.Acquire(c.Request.Context(), uid, req.SessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	defer h.Manager.Release(req.SessionID)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50003, "streaming unsupported")
		return
	}
	sseHeaders(c)
	writeJSON := sseWriter(c, flusher)

	events := ctl.Watch()
	defer ctl.Unwatch(events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctl.Submit(c.Request.Context(), req.Message)
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev := <-events:
			writeJSON(ev.Type, ev)

		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})

		case <-done:
			// flush whatever the cycle emitted before signalling done
			for {
				select {
				case ev := <-events:
					writeJSON(ev.Type, ev)
					continue
				default:
				}
				break
			}
			writeJSON("done", gin.H{"type": "done", "messages": ctl.Messages()})
			return

		case <-ctx.Done():
			return
		}
	}
}

// SessionEvents is the realtime channel to the browser: a long-lived SSE
// stream of the session's view events.
func (h *Handler) SessionEvents(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}
	sessionID := c.Param("session_id")

	ctl, err := h.Manager.Acquire(c.Request.Context(), uid, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40004, "session not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	defer h.Manager.Release(sessionID)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		common.Fail(c, http.StatusInternalServerError, 50003, "streaming unsupported")
		return
	}
	sseHeaders(c)
	writeJSON := sseWriter(c, flusher)

	events := ctl.Watch()
	defer ctl.Unwatch(events)

	// initial snapshot so the client renders without a separate fetch
	writeJSON("snapshot", gin.H{
		"type":       "snapshot",
		"messages":   ctl.Messages(),
		"generating": ctl.Generating(),
	})

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case ev := <-events:
			writeJSON(ev.Type, ev)
		case <-ticker.C:
			writeJSON("ping", gin.H{"type": "ping", "ts": time.Now().Unix()})
		case <-ctx.Done():
			return
		}
	}
}

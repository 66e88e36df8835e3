package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/elara-health/chat-service/internal/chat"
	"github.com/elara-health/chat-service/internal/common"
	"github.com/elara-health/chat-service/internal/config"
	"github.com/elara-health/chat-service/internal/httpapi/middleware"
	"github.com/elara-health/chat-service/internal/profile"
)

type Handler struct {
	Cfg      config.Config
	ChatRepo *chat.Repo
	Profiles *profile.Repo
	Manager  *chat.Manager
}

func NewHandler(cfg config.Config, repo *chat.Repo, profiles *profile.Repo, mgr *chat.Manager) *Handler {
	return &Handler{Cfg: cfg, ChatRepo: repo, Profiles: profiles, Manager: mgr}
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

func userIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

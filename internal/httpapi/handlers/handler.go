package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/config"
)

type Handler struct {
	Cfg  config.Config
	Ctrl *chat.Controller
}

func NewHandler(cfg config.Config, ctrl *chat.Controller) *Handler {
	return &Handler{Cfg: cfg, Ctrl: ctrl}
}

func (h *Handler) Ping(c *gin.Context) {
	ok(c, gin.H{"pong": true})
}

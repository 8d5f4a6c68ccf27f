package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/config"
	"github.com/suPer8Hu/chatcore/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatcore/internal/httpapi/middleware"
)

func NewRouter(cfg config.Config, ctrl *chat.Controller) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "route not found", "data": nil})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": 40500, "message": "method not allowed", "data": nil})
	})

	h := handlers.NewHandler(cfg, ctrl)

	r.GET("/ping", h.Ping)

	api := r.Group("/")
	if cfg.JWTSecret != "" {
		api.Use(middleware.AuthRequired(cfg.JWTSecret))
	}
	api.POST("/chat/sessions", h.CreateChatSession)
	api.GET("/chat/sessions", h.ListChatSessions)
	api.GET("/chat/sessions/:session_id", h.GetChatSession)
	api.DELETE("/chat/sessions/:session_id", h.DeleteChatSession)
	api.POST("/chat/messages", h.SubmitChatMessage)
	api.POST("/chat/requests/:request_id/cancel", h.CancelChatRequest)

	return r
}

package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"rentme-realtime/internal/config"
	"rentme-realtime/internal/infra/obs"
)

type Handlers struct {
	Chat           *ChatHandler
	Notifications  *NotificationHandler
	Me             *MeHandler
	WebSocket      gin.HandlerFunc
	Metrics        http.Handler
	AuthMiddleware gin.HandlerFunc
}

// NewRouter builds the gateway's gin engine. The websocket route sits
// outside the auth middleware because it authenticates the upgrade itself.
func NewRouter(cfg config.Gateway, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *gin.Engine {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.AccessLog())
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	if h.Metrics != nil {
		router.GET("/metrics", gin.WrapH(h.Metrics))
	}
	if h.WebSocket != nil {
		router.GET("/ws", h.WebSocket)
	}

	api := router.Group("/api/v1")
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.Me != nil {
		api.GET("/me", h.Me.Me)
	}
	if h.Chat != nil {
		api.GET("/conversations", h.Chat.ListConversations)
		api.GET("/conversations/:id/messages", h.Chat.ListMessages)
		api.POST("/conversations/:id/attachments", h.Chat.UploadAttachment)
	}
	if h.Notifications != nil {
		api.GET("/notifications", h.Notifications.List)
		api.POST("/notifications/read-all", h.Notifications.MarkAllRead)
		api.POST("/notifications/:id/read", h.Notifications.MarkRead)
	}
	return router
}

func NewServer(cfg config.Gateway, router http.Handler) *http.Server {
	return &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}

package handlers

import (
	"wainbox/internal/app"
	"wainbox/internal/http/middleware"
	"wainbox/internal/webhook"

	"github.com/labstack/echo/v4"
)

// SetupRoutes configures all API routes
func SetupRoutes(api *echo.Group, s *app.Services) {
	authHandler := NewAuthHandler(s.AuthService)
	inboxHandler := NewInboxHandler(s.InboxService, s.ReplyService)
	adminHandler := NewAdminHandler(s.UserRepo, s.NumberRepo)
	wsHandler := NewWebSocketHandler(s.Broadcaster, s.AuthService)
	webhookHandler := webhook.NewHandler(s.Config.MetaAppSecret, s.Config.WhatsAppVerifyToken, s.IngestionService)

	// Public routes
	api.POST("/auth/login", authHandler.Login)
	webhookHandler.Register(api.Group("/webhooks/whatsapp"))

	// WebSocket authenticates with the token query parameter
	api.GET("/ws", wsHandler.HandleWebSocket)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(s.AuthService))
	protected.GET("/auth/me", authHandler.Me)

	// Inbox routes
	inbox := protected.Group("/inbox")
	inbox.GET("/numbers", inboxHandler.ListNumbers)
	inbox.GET("/numbers/:id/conversations", inboxHandler.ListConversations)
	inbox.GET("/stats", inboxHandler.Stats)
	inbox.GET("/conversations/:id/messages", inboxHandler.ListMessages)
	inbox.GET("/conversations/:id/lock", inboxHandler.GetLock)
	inbox.POST("/conversations/:id/lock", inboxHandler.AcquireLock)
	inbox.DELETE("/conversations/:id/lock", inboxHandler.ReleaseLock)
	inbox.POST("/conversations/:id/reply", inboxHandler.Reply)

	// Admin routes
	admin := protected.Group("/admin", middleware.RequireAdmin())
	admin.GET("/users", adminHandler.ListUsers)
	admin.POST("/users", adminHandler.CreateUser)
	admin.POST("/users/:id/toggle", adminHandler.ToggleUser)
	admin.POST("/assign", adminHandler.Assign)
	admin.GET("/numbers", adminHandler.ListNumbers)
	admin.POST("/numbers", adminHandler.CreateNumber)
	admin.POST("/numbers/:id/toggle", adminHandler.ToggleNumber)
}

package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	handlers "panicdesk/internal/handlers/shared"
	"panicdesk/internal/middleware"
	"panicdesk/internal/utils"
	"panicdesk/pkg/websocket"
)

// Roles allowed on the dispatch console.
var consoleRoles = []string{"operator", "supervisor", "admin"}

// SetupConsoleRoutes sets up the operator console API
func SetupConsoleRoutes(r *gin.RouterGroup, consoleHandler *handlers.ConsoleHandler, jwtSecret string) {
	console := r.Group("/console")
	console.Use(middleware.AuthRequired(jwtSecret), middleware.RoleRequired(consoleRoles...))
	{
		// Channel session
		console.POST("/session", consoleHandler.OpenSession)
		console.GET("/session", consoleHandler.GetSession)
		console.DELETE("/session", consoleHandler.CloseSession)
		console.POST("/session/resync", consoleHandler.Resync)

		// Pending tray and prompts
		console.GET("/pending-alerts", consoleHandler.GetPendingAlerts)
		console.POST("/pending-alerts/:id/open", consoleHandler.OpenAlert)
		console.GET("/prompts", consoleHandler.GetPrompts)
		console.POST("/prompts/:id/dismiss", consoleHandler.DismissPrompt)

		// Officers
		console.GET("/officers", consoleHandler.GetOfficers)
		console.GET("/proximity", consoleHandler.GetProximity)
	}
}

// SetupWebSocketRoutes attaches the console UI socket
func SetupWebSocketRoutes(r *gin.Engine, path string, wsHandler *websocket.Handler, jwtSecret string) {
	r.GET(path, middleware.AuthRequired(jwtSecret), middleware.RoleRequired(consoleRoles...), wsHandler.HandleWebSocket)
}

// SetupHealthRoutes reports process liveness and channel state
func SetupHealthRoutes(r *gin.Engine, consoleHandler *handlers.ConsoleHandler, hub *websocket.Hub) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"version":    utils.AppVersion,
			"session":    consoleHandler.SessionStatus(),
			"ui_clients": hub.ClientCount(),
			"timestamp":  time.Now(),
		})
	})
}

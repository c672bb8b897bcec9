package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	handlers "panicdesk/internal/handlers/shared"
	"panicdesk/internal/repositories/memory"
	"panicdesk/internal/services"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/websocket"
)

const testSecret = "routes-secret"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	alerts := services.NewAlertLifecycleService(context.Background(), memory.NewPendingAlertRepository(), log, services.AlertLifecycleOptions{})
	officers := services.NewOfficerLocationService(log)
	proximity := services.NewProximityService(officers, nil, "", log)
	notifications := services.NewNotificationService(alerts, nil, services.NotificationOptions{Lifetime: time.Minute}, log)
	t.Cleanup(notifications.Close)

	channel := websocket.NewChannel(websocket.ChannelOptions{URL: "ws://127.0.0.1:1/events"}, log)
	session := services.NewConsoleSession(channel, nil, alerts, officers, services.SessionOptions{}, log)
	t.Cleanup(session.Close)

	hub := websocket.NewHub(log)
	consoleHandler := handlers.NewConsoleHandler(session, alerts, officers, proximity, notifications, handlers.ProximityConfig{}, log)

	r := gin.New()
	SetupConsoleRoutes(r.Group("/api/v1"), consoleHandler, testSecret)
	SetupWebSocketRoutes(r, "/api/v1/console/ws", websocket.NewHandler(hub, websocket.HandlerConfig{}), testSecret)
	SetupHealthRoutes(r, consoleHandler, hub)
	return r
}

func TestHealthRoute(t *testing.T) {
	r := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, utils.AppVersion, body["version"])
	assert.Equal(t, float64(0), body["ui_clients"])
	session, ok := body["session"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, session["connected"])
}

func TestConsoleRoutesRequireOperatorToken(t *testing.T) {
	r := newTestRouter(t)
	operator, err := utils.GenerateOperatorToken("op-1", "operator", "district-7", testSecret, time.Hour)
	require.NoError(t, err)
	officer, err := utils.GenerateOperatorToken("off-1", "officer", "district-7", testSecret, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"no token", "/api/v1/console/pending-alerts", "", http.StatusUnauthorized},
		{"operator", "/api/v1/console/pending-alerts", operator, http.StatusOK},
		{"officer role", "/api/v1/console/pending-alerts", officer, http.StatusForbidden},
		{"session status", "/api/v1/console/session", operator, http.StatusOK},
		{"proximity with default radius", "/api/v1/console/proximity?lat=-16.5&lng=-68.15", operator, http.StatusOK},
		{"proximity with negative radius", "/api/v1/console/proximity?lat=-16.5&lng=-68.15&radius_km=-1", operator, http.StatusBadRequest},
		{"socket without token", "/api/v1/console/ws", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

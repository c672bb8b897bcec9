package services

import (
	"context"

	"panicdesk/internal/models"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
)

// HubBroadcaster is satisfied by the UI websocket hub.
type HubBroadcaster interface {
	Broadcast(messageType string, data interface{}) error
}

// ConsoleBroadcaster mirrors every store change to the console UI so the map,
// list, tray and badge views render from the same state.
type ConsoleBroadcaster struct {
	hub    HubBroadcaster
	logger *logger.Logger
}

func NewConsoleBroadcaster(hub HubBroadcaster, log *logger.Logger) *ConsoleBroadcaster {
	return &ConsoleBroadcaster{
		hub:    hub,
		logger: log.WithComponent("console_broadcaster"),
	}
}

func (b *ConsoleBroadcaster) PromptRequested(_ context.Context, ticket models.NotificationTicket) error {
	return b.hub.Broadcast(utils.MessagePromptRequested, map[string]interface{}{
		"alertId":    ticket.AlertID,
		"renderData": ticket.RenderData,
		"expiresAt":  ticket.ExpiresAt,
	})
}

func (b *ConsoleBroadcaster) PromptDismissed(_ context.Context, alertID string, reason models.DismissReason) error {
	return b.hub.Broadcast(utils.MessagePromptDismissed, map[string]interface{}{
		"alertId": alertID,
		"reason":  reason,
	})
}

func (b *ConsoleBroadcaster) OnPendingAlertsChanged(change PendingChange) {
	b.send(utils.MessagePendingAlertsChanged, map[string]interface{}{
		"kind":    change.Kind,
		"alertId": change.Alert.AlertID,
		"pending": change.Pending,
		"count":   len(change.Pending),
	})
}

func (b *ConsoleBroadcaster) OnOfficerLocationChanged(officerID string, sample *models.OfficerLocationSample) {
	b.send(utils.MessageOfficerLocationChanged, map[string]interface{}{
		"officerId": officerID,
		"sample":    sample,
	})
}

func (b *ConsoleBroadcaster) OnConnectivityChanged(connected bool) {
	b.send(utils.MessageConnectivityChanged, map[string]interface{}{
		"connected": connected,
	})
}

func (b *ConsoleBroadcaster) send(messageType string, data interface{}) {
	if err := b.hub.Broadcast(messageType, data); err != nil {
		b.logger.WithError(err).WithField("type", messageType).Warn("Failed to broadcast to console")
	}
}

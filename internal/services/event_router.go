package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"panicdesk/internal/models"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
)

// EventRouter decodes channel events and applies them to the stores. Malformed
// payloads are dropped and never reach a store.
type EventRouter struct {
	alerts   AlertLifecycleService
	officers OfficerLocationService
	logger   *logger.Logger
}

func NewEventRouter(alerts AlertLifecycleService, officers OfficerLocationService, log *logger.Logger) *EventRouter {
	return &EventRouter{
		alerts:   alerts,
		officers: officers,
		logger:   log.WithComponent("event_router"),
	}
}

// Events lists the channel events the router understands.
func (r *EventRouter) Events() []string {
	return []string{
		utils.EventNewAlert,
		utils.EventCancellationRequestUpdate,
		utils.EventOfficerLocationUpdate,
		utils.EventOfficerDisconnected,
	}
}

func (r *EventRouter) HandleEvent(event string, data json.RawMessage) {
	if err := r.route(context.Background(), event, data); err != nil {
		log := r.logger.WithError(err).WithField("event", event)
		switch {
		case errors.Is(err, models.ErrStaleEvent):
			log.Debug("Stale event dropped")
		case errors.Is(err, models.ErrMalformedPayload):
			log.Warn("Malformed event dropped")
		default:
			log.Error("Failed to apply event")
		}
	}
}

func (r *EventRouter) route(ctx context.Context, event string, data json.RawMessage) error {
	switch event {
	case utils.EventNewAlert:
		var alert models.AlertEvent
		if err := decode(data, &alert); err != nil {
			return err
		}
		return r.alerts.OnAlertEvent(ctx, alert)

	case utils.EventCancellationRequestUpdate:
		var update models.CancellationRequestUpdate
		if err := decode(data, &update); err != nil {
			return err
		}
		if err := update.Validate(); err != nil {
			return err
		}
		return r.alerts.OnAlertEvent(ctx, update.AlertEvent())

	case utils.EventOfficerLocationUpdate:
		var update models.OfficerLocationUpdate
		if err := decode(data, &update); err != nil {
			return err
		}
		return r.officers.OnLocationEvent(update)

	case utils.EventOfficerDisconnected:
		var disconnected models.OfficerDisconnected
		if err := decode(data, &disconnected); err != nil {
			return err
		}
		if err := disconnected.Validate(); err != nil {
			return err
		}
		r.officers.OnOfficerDisconnected(disconnected.OfficerID)
		return nil

	default:
		r.logger.WithField("event", event).Debug("Ignoring unknown event")
		return nil
	}
}

func decode(data json.RawMessage, dest interface{}) error {
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("%w: empty payload", models.ErrMalformedPayload)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedPayload, err)
	}
	return nil
}

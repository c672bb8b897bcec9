package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
)

func newTestRouter(t *testing.T) (*EventRouter, AlertLifecycleService, OfficerLocationService) {
	t.Helper()
	alerts := newTestAlerts(t, nil)
	officers := NewOfficerLocationService(logger.NewNop())
	return NewEventRouter(alerts, officers, logger.NewNop()), alerts, officers
}

func TestEventRouter_NewAlert(t *testing.T) {
	router, alerts, _ := newTestRouter(t)

	router.HandleEvent(utils.EventNewAlert, json.RawMessage(`{
		"alertId": "A1",
		"state": "PENDING",
		"origin": "MOBILE_APP",
		"occurredAt": "2025-03-01T10:00:00Z",
		"victimLabel": "Ana"
	}`))

	alert, ok := alerts.Get("A1")
	require.True(t, ok)
	assert.Equal(t, "Ana", alert.VictimLabel)
}

func TestEventRouter_CancellationUpdateRemovesAlert(t *testing.T) {
	router, alerts, _ := newTestRouter(t)
	router.HandleEvent(utils.EventNewAlert, json.RawMessage(`{"alertId":"A1","state":"PENDING","occurredAt":"2025-03-01T10:00:00Z"}`))

	router.HandleEvent(utils.EventCancellationRequestUpdate, json.RawMessage(`{
		"requestId": "R1",
		"alertId": "A1",
		"state": "CANCELLED",
		"occurredAt": "2025-03-01T10:05:00Z"
	}`))

	assert.Empty(t, alerts.List())
}

func TestEventRouter_OfficerEvents(t *testing.T) {
	router, _, officers := newTestRouter(t)

	router.HandleEvent(utils.EventOfficerLocationUpdate, json.RawMessage(`{"officerId":"o1","latitude":-16.5,"longitude":-68.16}`))
	sample, ok := officers.Get("o1")
	require.True(t, ok)
	assert.True(t, sample.Available)

	router.HandleEvent(utils.EventOfficerDisconnected, json.RawMessage(`{"officerId":"o1"}`))
	_, ok = officers.Get("o1")
	assert.False(t, ok)
}

func TestEventRouter_MalformedPayloadsAreDropped(t *testing.T) {
	router, alerts, officers := newTestRouter(t)

	cases := []struct {
		name  string
		event string
		data  string
	}{
		{"empty", utils.EventNewAlert, ``},
		{"null", utils.EventNewAlert, `null`},
		{"not json", utils.EventNewAlert, `{"alertId":`},
		{"missing alert id", utils.EventNewAlert, `{"state":"PENDING"}`},
		{"unknown state", utils.EventNewAlert, `{"alertId":"A1","state":"LOST"}`},
		{"half coordinates", utils.EventNewAlert, `{"alertId":"A1","state":"PENDING","latitude":1}`},
		{"cancellation without request", utils.EventCancellationRequestUpdate, `{"alertId":"A1","state":"PENDING"}`},
		{"location without officer", utils.EventOfficerLocationUpdate, `{"latitude":1,"longitude":1}`},
		{"location out of range", utils.EventOfficerLocationUpdate, `{"officerId":"o1","latitude":91,"longitude":1}`},
		{"disconnect without officer", utils.EventOfficerDisconnected, `{}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				router.HandleEvent(tc.event, json.RawMessage(tc.data))
			})
		})
	}

	assert.Empty(t, alerts.List())
	assert.Empty(t, officers.SnapshotAll())
}

func TestEventRouter_UnknownEventIsIgnored(t *testing.T) {
	router, alerts, _ := newTestRouter(t)

	router.HandleEvent("somethingElse", json.RawMessage(`{"alertId":"A1","state":"PENDING"}`))

	assert.Empty(t, alerts.List())
}

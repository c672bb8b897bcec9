package services

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"
)

func locationUpdate(id string, lat, lng float64) models.OfficerLocationUpdate {
	return models.OfficerLocationUpdate{
		OfficerID:   id,
		DisplayName: "Officer " + id,
		Latitude:    lat,
		Longitude:   lng,
		OccurredAt:  baseTime,
	}
}

func officerIDs(samples []models.OfficerLocationSample) []string {
	out := make([]string, 0, len(samples))
	for _, sample := range samples {
		out = append(out, sample.OfficerID)
	}
	return out
}

func TestOfficerLocations_KeepsFirstSeenOrder(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())

	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", -16.5, -68.15)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o2", -16.5, -68.16)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", -16.51, -68.15)))

	all := officers.SnapshotAll()
	assert.Equal(t, []string{"o1", "o2"}, officerIDs(all))
	assert.Equal(t, -16.51, all[0].Latitude)
}

func TestOfficerLocations_LatestArrivalWins(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())

	newer := locationUpdate("o1", -16.5, -68.15)
	older := locationUpdate("o1", -16.6, -68.2)
	older.OccurredAt = baseTime.Add(-1)

	require.NoError(t, officers.OnLocationEvent(newer))
	require.NoError(t, officers.OnLocationEvent(older))

	sample, ok := officers.Get("o1")
	require.True(t, ok)
	assert.Equal(t, -16.6, sample.Latitude)
}

func TestOfficerLocations_RejectsInvalidUpdates(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())

	err := officers.OnLocationEvent(locationUpdate("", 1, 1))
	assert.True(t, errors.Is(err, models.ErrMalformedPayload))

	err = officers.OnLocationEvent(locationUpdate("o1", math.NaN(), 1))
	assert.True(t, errors.Is(err, models.ErrMalformedPayload))

	err = officers.OnLocationEvent(locationUpdate("o1", 10, 200))
	assert.True(t, errors.Is(err, models.ErrMalformedPayload))

	assert.Empty(t, officers.SnapshotAll())
}

func TestOfficerLocations_Available(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())
	busy := false

	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	update := locationUpdate("o2", 2, 2)
	update.Available = &busy
	require.NoError(t, officers.OnLocationEvent(update))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o3", 3, 3)))

	assert.Equal(t, []string{"o1", "o3"}, officerIDs(officers.Available()))
	assert.Len(t, officers.SnapshotAll(), 3)
}

func TestOfficerLocations_Disconnect(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())
	recorder := &officerRecorder{}
	officers.AddListener(recorder)

	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o2", 2, 2)))

	assert.True(t, officers.OnOfficerDisconnected("o1"))
	assert.False(t, officers.OnOfficerDisconnected("o1"))

	assert.Equal(t, []string{"o2"}, officerIDs(officers.SnapshotAll()))
	assert.Equal(t, []string{"o1", "o2", "o1"}, recorder.events)
	assert.Equal(t, 1, recorder.nils)

	// A returning officer goes to the back of the order.
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	assert.Equal(t, []string{"o2", "o1"}, officerIDs(officers.SnapshotAll()))
}

func TestOfficerLocations_ReplaceAll(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())
	recorder := &officerRecorder{}

	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o2", 2, 2)))
	officers.AddListener(recorder)

	officers.ReplaceAll([]models.OfficerLocationSample{
		{OfficerID: "o2", Latitude: 5, Longitude: 5, Available: true},
		{OfficerID: "o3", Latitude: 3, Longitude: 3, Available: true},
	}, officers.Revision())

	all := officers.SnapshotAll()
	assert.Equal(t, []string{"o2", "o3"}, officerIDs(all))
	assert.Equal(t, 5.0, all[0].Latitude)
	assert.Equal(t, []string{"o1", "o2", "o3"}, recorder.events)
	assert.Equal(t, 1, recorder.nils)
}

func TestOfficerLocations_ReplaceAllKeepsLiveUpdates(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o2", 2, 2)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o4", 4, 4)))
	since := officers.Revision()

	// Live traffic while the snapshot was being fetched.
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 9, 9)))
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o3", 3, 3)))
	assert.True(t, officers.OnOfficerDisconnected("o4"))

	officers.ReplaceAll([]models.OfficerLocationSample{
		{OfficerID: "o1", Latitude: 1, Longitude: 1, Available: true},
		{OfficerID: "o4", Latitude: 4, Longitude: 4, Available: true},
		{OfficerID: "o5", Latitude: 5, Longitude: 5, Available: true},
	}, since)

	all := officers.SnapshotAll()
	assert.Equal(t, []string{"o1", "o3", "o5"}, officerIDs(all))
	assert.Equal(t, 9.0, all[0].Latitude)

	// Once reconciled, the next snapshot replaces everything again.
	officers.ReplaceAll(nil, officers.Revision())
	assert.Empty(t, officers.SnapshotAll())
}

func TestOfficerLocations_ListenerRegistrationIsIdempotent(t *testing.T) {
	officers := NewOfficerLocationService(logger.NewNop())
	recorder := &officerRecorder{}
	officers.AddListener(recorder)
	officers.AddListener(recorder)

	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	assert.Len(t, recorder.events, 1)

	officers.RemoveListener(recorder)
	require.NoError(t, officers.OnLocationEvent(locationUpdate("o1", 1, 1)))
	assert.Len(t, recorder.events, 1)
}

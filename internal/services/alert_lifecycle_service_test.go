package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"
)

func TestAlertLifecycle_DuplicatePendingIsIgnored(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A2", baseTime.Add(time.Second))))

	assert.Equal(t, []string{"A1", "A2"}, ids(alerts.List()))
}

func TestAlertLifecycle_NonPendingRemoves(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateAssigned, baseTime.Add(time.Minute))))

	assert.Empty(t, alerts.List())
	assert.Equal(t, 0, alerts.Count())
}

func TestAlertLifecycle_NonPendingForUnknownAlertIsNoop(t *testing.T) {
	repo := &fakeRepo{}
	alerts := newTestAlerts(t, repo)

	require.NoError(t, alerts.OnAlertEvent(context.Background(), stateEvent("A9", models.AlertStateResolved, baseTime)))

	assert.Empty(t, alerts.List())
	assert.Equal(t, 0, repo.saveCount())
}

func TestAlertLifecycle_StaleReplayIsRejected(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateAssigned, baseTime.Add(time.Minute))))

	err := alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStaleEvent))
	assert.Empty(t, alerts.List())
}

func TestAlertLifecycle_EqualTimestampIsNotStale(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateCancelled, baseTime)))

	assert.Empty(t, alerts.List())
}

func TestAlertLifecycle_ZeroTimestampsAreAlwaysApplied(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateAssigned, baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", time.Time{})))
	assert.Equal(t, []string{"A1"}, ids(alerts.List()))

	fresh := newTestAlerts(t, nil)
	require.NoError(t, fresh.OnAlertEvent(ctx, pendingEvent("B1", time.Time{})))
	require.NoError(t, fresh.OnAlertEvent(ctx, stateEvent("B1", models.AlertStateResolved, time.Time{})))
	assert.Empty(t, fresh.List())
}

func TestAlertLifecycle_InvalidEventIsMalformed(t *testing.T) {
	alerts := newTestAlerts(t, nil)

	err := alerts.OnAlertEvent(context.Background(), models.AlertEvent{State: models.AlertStatePending})
	assert.True(t, errors.Is(err, models.ErrMalformedPayload))

	err = alerts.OnAlertEvent(context.Background(), models.AlertEvent{AlertID: "A1", State: "ESCALATED"})
	assert.True(t, errors.Is(err, models.ErrMalformedPayload))
	assert.Empty(t, alerts.List())
}

func TestAlertLifecycle_PersistsAndRehydrates(t *testing.T) {
	repo := &fakeRepo{}
	ctx := context.Background()

	first := newTestAlerts(t, repo)
	require.NoError(t, first.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, first.OnAlertEvent(ctx, pendingEvent("A2", baseTime.Add(time.Second))))
	require.NoError(t, first.OnAlertEvent(ctx, pendingEvent("A3", baseTime.Add(2*time.Second))))
	require.NoError(t, first.OnAlertEvent(ctx, stateEvent("A2", models.AlertStateAssigned, baseTime.Add(time.Minute))))

	assert.Equal(t, []string{"A1", "A3"}, ids(repo.saved()))

	restarted := newTestAlerts(t, repo)
	assert.Equal(t, []string{"A1", "A3"}, ids(restarted.List()))
	alert, ok := restarted.Get("A3")
	require.True(t, ok)
	assert.Equal(t, "Victim A3", alert.VictimLabel)
	assert.Equal(t, models.AlertStatePending, alert.State)
}

func TestAlertLifecycle_RehydratedWatermarksRejectOlderEvents(t *testing.T) {
	repo := &fakeRepo{stored: []models.PendingAlert{models.NewPendingAlert(pendingEvent("A1", baseTime))}}
	alerts := newTestAlerts(t, repo)

	err := alerts.OnAlertEvent(context.Background(), stateEvent("A1", models.AlertStateAssigned, baseTime.Add(-time.Minute)))
	assert.True(t, errors.Is(err, models.ErrStaleEvent))
	assert.Equal(t, []string{"A1"}, ids(alerts.List()))
}

func TestAlertLifecycle_RehydrateDoesNotNotify(t *testing.T) {
	repo := &fakeRepo{stored: []models.PendingAlert{models.NewPendingAlert(pendingEvent("A1", baseTime))}}
	alerts := newTestAlerts(t, repo)
	recorder := &changeRecorder{}
	alerts.AddListener(recorder)

	assert.Equal(t, 1, alerts.Count())
	assert.Empty(t, recorder.all())
}

func TestAlertLifecycle_LoadFailureStartsEmpty(t *testing.T) {
	repo := &fakeRepo{loadErr: errors.New("redis unavailable")}
	alerts := newTestAlerts(t, repo)

	assert.Empty(t, alerts.List())
	require.NoError(t, alerts.OnAlertEvent(context.Background(), pendingEvent("A1", baseTime)))
	assert.Equal(t, []string{"A1"}, ids(alerts.List()))
}

func TestAlertLifecycle_StorageFailureKeepsMemoryChange(t *testing.T) {
	repo := &fakeRepo{saveErr: errors.New("disk full")}
	alerts := newTestAlerts(t, repo)
	recorder := &changeRecorder{}
	alerts.AddListener(recorder)

	require.NoError(t, alerts.OnAlertEvent(context.Background(), pendingEvent("A1", baseTime)))

	assert.Equal(t, []string{"A1"}, ids(alerts.List()))
	assert.Equal(t, 1, repo.saveCount())
	require.Len(t, recorder.all(), 1)
	assert.Equal(t, ChangeAdded, recorder.all()[0].Kind)
}

func TestAlertLifecycle_RemoveReportsPresence(t *testing.T) {
	repo := &fakeRepo{}
	alerts := newTestAlerts(t, repo)
	ctx := context.Background()
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))

	assert.True(t, alerts.Remove(ctx, "A1"))
	assert.False(t, alerts.Remove(ctx, "A1"))
	assert.Empty(t, repo.saved())
	assert.Equal(t, 2, repo.saveCount())
}

func TestAlertLifecycle_ListenersReceiveChangesInOrder(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	recorder := &changeRecorder{}
	alerts.AddListener(recorder)
	alerts.AddListener(recorder)
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateResolved, baseTime.Add(time.Second))))

	changes := recorder.all()
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeAdded, changes[0].Kind)
	assert.Equal(t, []string{"A1"}, ids(changes[0].Pending))
	assert.Equal(t, ChangeRemoved, changes[1].Kind)
	assert.Empty(t, changes[1].Pending)

	alerts.RemoveListener(recorder)
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A2", baseTime)))
	assert.Len(t, recorder.all(), 2)
}

type panickingListener struct{}

func (panickingListener) OnPendingAlertsChanged(PendingChange) { panic("boom") }

func TestAlertLifecycle_PanickingListenerDoesNotBlockOthers(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	recorder := &changeRecorder{}
	alerts.AddListener(panickingListener{})
	alerts.AddListener(recorder)

	require.NoError(t, alerts.OnAlertEvent(context.Background(), pendingEvent("A1", baseTime)))
	assert.Len(t, recorder.all(), 1)
}

func TestAlertLifecycle_Reconcile(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	recorder := &changeRecorder{}
	ctx := context.Background()
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A2", baseTime)))
	alerts.AddListener(recorder)

	alerts.Reconcile(ctx, []models.AlertEvent{
		pendingEvent("A2", baseTime),
		pendingEvent("A3", baseTime.Add(time.Second)),
		stateEvent("A4", models.AlertStateAssigned, baseTime),
	}, alerts.Revision())

	assert.Equal(t, []string{"A2", "A3"}, ids(alerts.List()))
	changes := recorder.all()
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeRemoved, changes[0].Kind)
	assert.Equal(t, "A1", changes[0].Alert.AlertID)
	assert.Equal(t, ChangeAdded, changes[1].Kind)
	assert.Equal(t, "A3", changes[1].Alert.AlertID)
}

func TestAlertLifecycle_ReconcileSkipsStaleSnapshotEntries(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateAssigned, baseTime.Add(time.Minute))))

	alerts.Reconcile(ctx, []models.AlertEvent{pendingEvent("A1", baseTime)}, alerts.Revision())

	assert.Empty(t, alerts.List())
}

func TestAlertLifecycle_ReconcileWithoutChangesDoesNotPersist(t *testing.T) {
	repo := &fakeRepo{}
	alerts := newTestAlerts(t, repo)
	ctx := context.Background()
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))

	alerts.Reconcile(ctx, []models.AlertEvent{pendingEvent("A1", baseTime)}, alerts.Revision())

	assert.Equal(t, 1, repo.saveCount())
}

func TestAlertLifecycle_ReconcileKeepsAlertsTouchedAfterFetch(t *testing.T) {
	alerts := newTestAlerts(t, nil)
	ctx := context.Background()
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A2", baseTime)))
	since := alerts.Revision()

	// Applied while the snapshot was being fetched.
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A3", baseTime.Add(time.Second))))
	assert.True(t, alerts.Remove(ctx, "A2"))

	alerts.Reconcile(ctx, []models.AlertEvent{pendingEvent("A2", baseTime)}, since)

	assert.Equal(t, []string{"A3"}, ids(alerts.List()))
	assert.Greater(t, alerts.Revision(), since)
}

func TestAlertLifecycle_PruneWatermarks(t *testing.T) {
	now := baseTime
	alerts := NewAlertLifecycleService(context.Background(), &fakeRepo{}, logger.NewNop(), AlertLifecycleOptions{
		Now: func() time.Time { return now },
	})
	ctx := context.Background()

	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	require.NoError(t, alerts.OnAlertEvent(ctx, stateEvent("A1", models.AlertStateResolved, baseTime.Add(time.Minute))))
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A2", baseTime)))

	now = baseTime.Add(2 * time.Hour)
	assert.Equal(t, 1, alerts.PruneWatermarks(baseTime.Add(time.Hour)))
	assert.Equal(t, 0, alerts.PruneWatermarks(baseTime.Add(time.Hour)))

	// Once forgotten, an old replay for A1 is accepted again.
	require.NoError(t, alerts.OnAlertEvent(ctx, pendingEvent("A1", baseTime)))
	assert.Equal(t, []string{"A2", "A1"}, ids(alerts.List()))
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/maps"
	"panicdesk/pkg/websocket"
)

var baseTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func pendingEvent(id string, at time.Time) models.AlertEvent {
	return models.AlertEvent{
		AlertID:     id,
		State:       models.AlertStatePending,
		Origin:      models.AlertOriginPanicButton,
		OccurredAt:  at,
		VictimLabel: "Victim " + id,
	}
}

func stateEvent(id string, state models.AlertState, at time.Time) models.AlertEvent {
	event := pendingEvent(id, at)
	event.State = state
	return event
}

func ids(alerts []models.PendingAlert) []string {
	out := make([]string, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, alert.AlertID)
	}
	return out
}

// fakeRepo is an in-memory PendingAlertRepository that can be told to fail.
type fakeRepo struct {
	mu      sync.Mutex
	stored  []models.PendingAlert
	saves   int
	saveErr error
	loadErr error
}

func (r *fakeRepo) Save(_ context.Context, alerts []models.PendingAlert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.stored = append([]models.PendingAlert(nil), alerts...)
	return nil
}

func (r *fakeRepo) Load(_ context.Context) ([]models.PendingAlert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return append([]models.PendingAlert(nil), r.stored...), nil
}

func (r *fakeRepo) saved() []models.PendingAlert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.PendingAlert(nil), r.stored...)
}

func (r *fakeRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func newTestAlerts(t *testing.T, repo *fakeRepo) AlertLifecycleService {
	t.Helper()
	if repo == nil {
		repo = &fakeRepo{}
	}
	return NewAlertLifecycleService(context.Background(), repo, logger.NewNop(), AlertLifecycleOptions{
		PersistTimeout: time.Second,
	})
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []PendingChange
}

func (r *changeRecorder) OnPendingAlertsChanged(change PendingChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, change)
}

func (r *changeRecorder) all() []PendingChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PendingChange(nil), r.changes...)
}

type officerRecorder struct {
	mu     sync.Mutex
	events []string
	nils   int
}

func (r *officerRecorder) OnOfficerLocationChanged(officerID string, sample *models.OfficerLocationSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, officerID)
	if sample == nil {
		r.nils++
	}
}

type sinkCall struct {
	kind    string
	alertID string
	reason  models.DismissReason
}

type recordingSink struct {
	mu    sync.Mutex
	calls []sinkCall
	fail  bool
	fired chan sinkCall
}

func newRecordingSink() *recordingSink {
	return &recordingSink{fired: make(chan sinkCall, 32)}
}

func (s *recordingSink) PromptRequested(_ context.Context, ticket models.NotificationTicket) error {
	return s.record(sinkCall{kind: "requested", alertID: ticket.AlertID})
}

func (s *recordingSink) PromptDismissed(_ context.Context, alertID string, reason models.DismissReason) error {
	return s.record(sinkCall{kind: "dismissed", alertID: alertID, reason: reason})
}

func (s *recordingSink) record(call sinkCall) error {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	fail := s.fail
	s.mu.Unlock()
	s.fired <- call
	if fail {
		return errors.New("sink offline")
	}
	return nil
}

func (s *recordingSink) all() []sinkCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sinkCall(nil), s.calls...)
}

type fakeChannel struct {
	mu          sync.Mutex
	connected   bool
	connectErr  error
	inFlight    bool
	params      websocket.ConnectParams
	connects    []websocket.ConnectParams
	disconnects int
	handlers    map[string][]websocket.EventHandler
	listeners   []websocket.ConnectivityListener
	emitted     []string
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{handlers: make(map[string][]websocket.EventHandler)}
}

func (c *fakeChannel) Connect(_ context.Context, params websocket.ConnectParams) error {
	c.mu.Lock()
	c.connects = append(c.connects, params)
	if c.inFlight {
		c.mu.Unlock()
		return nil
	}
	c.params = params
	err := c.connectErr
	c.connected = err == nil
	c.mu.Unlock()
	c.notify(err == nil)
	return err
}

func (c *fakeChannel) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.disconnects++
	c.mu.Unlock()
	c.notify(false)
}

func (c *fakeChannel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeChannel) Params() websocket.ConnectParams {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

func (c *fakeChannel) Subscribe(event string, handler websocket.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.handlers[event] {
		if existing == handler {
			return
		}
	}
	c.handlers[event] = append(c.handlers[event], handler)
}

func (c *fakeChannel) Unsubscribe(event string, handler websocket.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	handlers := c.handlers[event]
	for i, existing := range handlers {
		if existing == handler {
			c.handlers[event] = append(handlers[:i:i], handlers[i+1:]...)
			return
		}
	}
}

func (c *fakeChannel) AddConnectivityListener(listener websocket.ConnectivityListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *fakeChannel) RemoveConnectivityListener(listener websocket.ConnectivityListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.listeners {
		if existing == listener {
			c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
			return
		}
	}
}

func (c *fakeChannel) Emit(event string, _ interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return models.ErrConnection
	}
	c.emitted = append(c.emitted, event)
	return nil
}

func (c *fakeChannel) notify(connected bool) {
	c.mu.Lock()
	listeners := append([]websocket.ConnectivityListener(nil), c.listeners...)
	c.mu.Unlock()
	for _, listener := range listeners {
		listener.OnConnectivityChanged(connected)
	}
}

func (c *fakeChannel) subscribedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, handlers := range c.handlers {
		count += len(handlers)
	}
	return count
}

type fakeSnapshots struct {
	alerts      []models.AlertEvent
	officers    []models.OfficerLocationSample
	alertsErr   error
	officersErr error
	calls       int
	// fetching, when set, is closed once the alert fetch starts and the fetch
	// then waits for release.
	fetching chan struct{}
	release  chan struct{}
}

func (f *fakeSnapshots) PendingAlerts(context.Context, string, string) ([]models.AlertEvent, error) {
	f.calls++
	if f.fetching != nil {
		close(f.fetching)
		<-f.release
	}
	return f.alerts, f.alertsErr
}

func (f *fakeSnapshots) OfficerLocations(context.Context, string, string) ([]models.OfficerLocationSample, error) {
	return f.officers, f.officersErr
}

type fakeMaps struct {
	seconds []int
	err     error
	calls   int
	origins int
}

func (f *fakeMaps) CalculateDistance(_ context.Context, request *maps.DistanceRequest) (*maps.DistanceResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	resp := &maps.DistanceResponse{}
	for range request.Origins {
		idx := f.origins
		f.origins++
		if idx >= len(f.seconds) || f.seconds[idx] < 0 {
			resp.Rows = append(resp.Rows, maps.DistanceRow{Elements: []maps.DistanceElement{{Status: "ZERO_RESULTS"}}})
			continue
		}
		resp.Rows = append(resp.Rows, maps.DistanceRow{Elements: []maps.DistanceElement{{
			Status:   maps.StatusOK,
			Distance: maps.Distance{Value: float64(f.seconds[idx] * 10)},
			Duration: maps.Duration{Value: f.seconds[idx]},
		}}})
	}
	return resp, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"panicdesk/internal/models"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/websocket"
)

// EventChannel is satisfied by *websocket.Channel.
type EventChannel interface {
	Connect(ctx context.Context, params websocket.ConnectParams) error
	Disconnect()
	IsConnected() bool
	// Params returns the session of the live connection or the attempt in flight.
	Params() websocket.ConnectParams
	Subscribe(event string, handler websocket.EventHandler)
	Unsubscribe(event string, handler websocket.EventHandler)
	AddConnectivityListener(listener websocket.ConnectivityListener)
	RemoveConnectivityListener(listener websocket.ConnectivityListener)
	Emit(event string, data interface{}) error
}

// SnapshotClient is satisfied by *snapshot.Client.
type SnapshotClient interface {
	PendingAlerts(ctx context.Context, token, districtID string) ([]models.AlertEvent, error)
	OfficerLocations(ctx context.Context, token, districtID string) ([]models.OfficerLocationSample, error)
}

type SessionOptions struct {
	ConnectTimeout     time.Duration
	SnapshotTimeout    time.Duration
	WatermarkRetention time.Duration
	PruneInterval      time.Duration
	Now                func() time.Time
}

type SessionStatus struct {
	Connected  bool       `json:"connected"`
	OperatorID string     `json:"operatorId,omitempty"`
	DistrictID string     `json:"districtId,omitempty"`
	Active     bool       `json:"active"`
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`
}

// ConsoleSession owns the operator's channel session: it wires the router to the
// channel, joins the district room and reconciles snapshots on every connect.
// Reconnecting after a drop is left to the caller.
type ConsoleSession struct {
	channel   EventChannel
	snapshots SnapshotClient
	alerts    AlertLifecycleService
	officers  OfficerLocationService
	router    *EventRouter
	opts      SessionOptions
	logger    *logger.Logger

	mu         sync.Mutex
	active     bool
	lastSyncAt time.Time

	resync    chan struct{}
	closeOnce sync.Once
}

// NewConsoleSession subscribes the router to channel. snapshots may be nil, in
// which case connects do not reconcile.
func NewConsoleSession(
	channel EventChannel,
	snapshots SnapshotClient,
	alerts AlertLifecycleService,
	officers OfficerLocationService,
	opts SessionOptions,
	log *logger.Logger,
) *ConsoleSession {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = utils.DefaultHandshakeTimeout
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = utils.DefaultSnapshotTimeout
	}
	if opts.WatermarkRetention <= 0 {
		opts.WatermarkRetention = utils.DefaultWatermarkRetention
	}
	if opts.PruneInterval <= 0 {
		opts.PruneInterval = utils.WatermarkPruneInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &ConsoleSession{
		channel:   channel,
		snapshots: snapshots,
		alerts:    alerts,
		officers:  officers,
		router:    NewEventRouter(alerts, officers, log),
		opts:      opts,
		logger:    log.WithComponent("console_session"),
		resync:    make(chan struct{}, 1),
	}

	for _, event := range s.router.Events() {
		channel.Subscribe(event, s.router)
	}
	channel.AddConnectivityListener(s)
	return s
}

// Run reconciles after connects and prunes alert watermarks until ctx is done.
func (s *ConsoleSession) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.resync:
			if err := s.Reconcile(ctx); err != nil {
				s.logger.WithError(err).Warn("Snapshot reconcile failed, keeping current state")
			}
		case <-ticker.C:
			s.alerts.PruneWatermarks(s.opts.Now().Add(-s.opts.WatermarkRetention))
		}
	}
}

// Connect opens the channel for the operator. Calling it again with the same
// operator and district while connected does nothing, and so does any call while
// an attempt is in flight. Status always reports the channel's own session.
func (s *ConsoleSession) Connect(ctx context.Context, params websocket.ConnectParams) error {
	s.mu.Lock()
	s.active = true
	s.mu.Unlock()

	connectCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()

	if err := s.channel.Connect(connectCtx, params); err != nil {
		return fmt.Errorf("failed to open event channel: %w", err)
	}
	return nil
}

// Disconnect ends the session. Subscriptions stay in place for the next Connect.
func (s *ConsoleSession) Disconnect() {
	s.mu.Lock()
	s.active = false
	s.mu.Unlock()

	s.channel.Disconnect()
}

// Close detaches from the channel and ends the session.
func (s *ConsoleSession) Close() {
	s.closeOnce.Do(func() {
		for _, event := range s.router.Events() {
			s.channel.Unsubscribe(event, s.router)
		}
		s.channel.RemoveConnectivityListener(s)
		s.Disconnect()
	})
}

func (s *ConsoleSession) Status() SessionStatus {
	params := s.channel.Params()
	connected := s.channel.IsConnected()

	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		Connected:  connected,
		OperatorID: params.OperatorID,
		DistrictID: params.DistrictID,
		Active:     s.active,
	}
	if !s.lastSyncAt.IsZero() {
		synced := s.lastSyncAt
		status.LastSyncAt = &synced
	}
	return status
}

// DistrictID returns the district of the active session, or "".
func (s *ConsoleSession) DistrictID() string {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return ""
	}
	return s.channel.Params().DistrictID
}

func (s *ConsoleSession) OnConnectivityChanged(connected bool) {
	if !connected {
		return
	}

	params := s.channel.Params()
	if err := s.channel.Emit(utils.EventJoinRoom, map[string]string{
		"operatorId": params.OperatorID,
		"districtId": params.DistrictID,
		"role":       params.Role,
	}); err != nil {
		s.logger.WithError(err).WithOperatorID(params.OperatorID).Warn("Failed to join district room")
	}

	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// Reconcile replaces local state with the backend snapshot. A failed fetch leaves
// its store untouched. Live events applied while the fetch runs win over the
// snapshot.
func (s *ConsoleSession) Reconcile(ctx context.Context) error {
	if s.snapshots == nil {
		return nil
	}

	params := s.channel.Params()
	alertsRevision := s.alerts.Revision()
	officersRevision := s.officers.Revision()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.SnapshotTimeout)
	defer cancel()

	alerts, alertsErr := s.snapshots.PendingAlerts(fetchCtx, params.AuthToken, params.DistrictID)
	officers, officersErr := s.snapshots.OfficerLocations(fetchCtx, params.AuthToken, params.DistrictID)

	if alertsErr == nil {
		s.alerts.Reconcile(ctx, alerts, alertsRevision)
	}
	if officersErr == nil {
		s.officers.ReplaceAll(officers, officersRevision)
	}
	if err := errors.Join(alertsErr, officersErr); err != nil {
		return err
	}

	s.mu.Lock()
	s.lastSyncAt = s.opts.Now()
	s.mu.Unlock()
	return nil
}

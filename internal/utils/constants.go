package utils

import "time"

// Application Constants
const (
	AppName    = "PanicDesk"
	AppVersion = "1.0.0"

	// Session
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultSnapshotTimeout  = 15 * time.Second
	DefaultPersistTimeout   = 2 * time.Second

	// Alerts
	DefaultPromptLifetime     = 5 * time.Minute
	DefaultWatermarkRetention = 24 * time.Hour
	WatermarkPruneInterval    = 10 * time.Minute

	// Proximity
	DefaultSearchRadius     = 5.0  // kilometers
	MaxSearchRadius         = 50.0 // kilometers
	DefaultResponseSpeedKMH = 40.0
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrNotFound         = "not found"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CachePendingAlertsPrefix = "panicdesk:pending_alerts:"
)

// Channel event names, inbound from the backend.
const (
	EventNewAlert                  = "newAlert"
	EventCancellationRequestUpdate = "cancellationRequestUpdate"
	EventOfficerLocationUpdate     = "officerLocationUpdate"
	EventOfficerDisconnected       = "officerDisconnected"
)

// Channel event names, outbound to the backend.
const (
	EventJoinRoom = "joinRoom"
)

// Console hub message types, outbound to the UI.
const (
	MessageConnectivityChanged    = "connectivityChanged"
	MessagePendingAlertsChanged   = "pendingAlertsChanged"
	MessagePromptRequested        = "promptRequested"
	MessagePromptDismissed        = "promptDismissed"
	MessageOfficerLocationChanged = "officerLocationChanged"
	MessageWelcome                = "welcome"
)

// Geographic Constants
const (
	EarthRadiusKM = 6371.0
)

package models

import "errors"

var (
	// ErrConnection marks a channel that failed to open or dropped.
	ErrConnection = errors.New("channel connection error")
	// ErrMalformedPayload marks an inbound event missing required fields.
	ErrMalformedPayload = errors.New("malformed event payload")
	// ErrStaleEvent marks an event older than the last one applied for the same alert.
	ErrStaleEvent = errors.New("stale or out-of-order event")
	// ErrStorageWrite marks a failed durable write of the pending tray.
	ErrStorageWrite = errors.New("pending alert storage write failed")
	// ErrSnapshotFetch marks a failed or timed out snapshot request.
	ErrSnapshotFetch = errors.New("snapshot fetch failed")
	// ErrNotFound marks an absent alert, ticket or officer.
	ErrNotFound = errors.New("not found")
)

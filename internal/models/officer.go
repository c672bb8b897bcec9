package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// OfficerLocationUpdate is the channel payload for one officer fix.
type OfficerLocationUpdate struct {
	OfficerID   string    `json:"officerId"`
	DisplayName string    `json:"displayName"`
	Unit        string    `json:"unit"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	OccurredAt  time.Time `json:"occurredAt"`
	Available   *bool     `json:"available,omitempty"`
}

func (u OfficerLocationUpdate) Validate() error {
	if strings.TrimSpace(u.OfficerID) == "" {
		return fmt.Errorf("%w: officerId is required", ErrMalformedPayload)
	}
	if math.IsNaN(u.Latitude) || math.IsInf(u.Latitude, 0) || u.Latitude < -90 || u.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrMalformedPayload, u.Latitude)
	}
	if math.IsNaN(u.Longitude) || math.IsInf(u.Longitude, 0) || u.Longitude < -180 || u.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrMalformedPayload, u.Longitude)
	}
	return nil
}

// Sample projects the update into the stored fix. Officers that do not report
// availability are treated as available.
func (u OfficerLocationUpdate) Sample() OfficerLocationSample {
	available := true
	if u.Available != nil {
		available = *u.Available
	}
	return OfficerLocationSample{
		OfficerID:   u.OfficerID,
		DisplayName: u.DisplayName,
		Unit:        u.Unit,
		Latitude:    u.Latitude,
		Longitude:   u.Longitude,
		CapturedAt:  u.OccurredAt,
		Available:   available,
	}
}

type OfficerDisconnected struct {
	OfficerID string `json:"officerId"`
}

func (d OfficerDisconnected) Validate() error {
	if strings.TrimSpace(d.OfficerID) == "" {
		return fmt.Errorf("%w: officerId is required", ErrMalformedPayload)
	}
	return nil
}

// OfficerLocationSample is the latest known fix for one officer.
type OfficerLocationSample struct {
	OfficerID   string    `json:"officerId"`
	DisplayName string    `json:"displayName,omitempty"`
	Unit        string    `json:"unit,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	CapturedAt  time.Time `json:"capturedAt"`
	Available   bool      `json:"available"`
}

// ProximityResult is derived on demand and never stored.
type ProximityResult struct {
	OfficerID      string  `json:"officerId"`
	DisplayName    string  `json:"displayName,omitempty"`
	Unit           string  `json:"unit,omitempty"`
	DistanceMeters float64 `json:"distanceMeters"`

	// Heading from the officer to the origin, clockwise from north.
	BearingDegrees   float64 `json:"bearingDegrees"`
	// Straight-line travel at the default response speed.
	EstimatedMinutes int     `json:"estimatedMinutes"`

	// Filled only when route enrichment answered for this officer.
	RoadDistanceMeters *float64 `json:"roadDistanceMeters,omitempty"`
	TravelSeconds      *int     `json:"travelSeconds,omitempty"`
}

package maps

import (
	"context"
	"fmt"
)

// MapsProvider answers road-network questions the straight-line ranking cannot.
type MapsProvider interface {
	CalculateDistance(ctx context.Context, request *DistanceRequest) (*DistanceResponse, error)
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) String() string {
	return fmt.Sprintf("%.6f,%.6f", l.Latitude, l.Longitude)
}

type Distance struct {
	Text  string  `json:"text"`
	Value float64 `json:"value"` // in meters
}

type Duration struct {
	Text  string `json:"text"`
	Value int    `json:"value"` // in seconds
}

type DistanceRequest struct {
	Origins      []Location `json:"origins"`
	Destinations []Location `json:"destinations"`
	Mode         string     `json:"mode"`  // driving, walking, bicycling
	Units        string     `json:"units"` // metric, imperial
	DepartNow    bool       `json:"departNow"`
}

// DistanceResponse has one row per origin and one element per destination.
type DistanceResponse struct {
	Rows []DistanceRow `json:"rows"`
}

type DistanceRow struct {
	Elements []DistanceElement `json:"elements"`
}

type DistanceElement struct {
	Distance Distance `json:"distance"`
	Duration Duration `json:"duration"`
	Status   string   `json:"status"`
}

// StatusOK is the element status for a resolved route.
const StatusOK = "OK"

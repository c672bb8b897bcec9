package maps

import (
	"context"
	"errors"
	"fmt"

	"googlemaps.github.io/maps"
)

// MaxOrigins is the number of origins a single distance matrix call accepts
// against one destination.
const MaxOrigins = 25

var ErrTooManyOrigins = errors.New("too many origins for one distance matrix request")

type GoogleMapsProvider struct {
	client *maps.Client
}

func NewGoogleMapsProvider(apiKey string, opts ...maps.ClientOption) (*GoogleMapsProvider, error) {
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return &GoogleMapsProvider{
		client: client,
	}, nil
}

// CalculateDistance asks the distance matrix for road distance and travel time
// from every origin to every destination. With DepartNow set, driving durations
// use current traffic when the API returns them.
func (g *GoogleMapsProvider) CalculateDistance(ctx context.Context, request *DistanceRequest) (*DistanceResponse, error) {
	if len(request.Origins) == 0 || len(request.Destinations) == 0 {
		return &DistanceResponse{}, nil
	}
	if len(request.Origins) > MaxOrigins {
		return nil, fmt.Errorf("%w: %d", ErrTooManyOrigins, len(request.Origins))
	}

	req := &maps.DistanceMatrixRequest{
		Origins:      locationStrings(request.Origins),
		Destinations: locationStrings(request.Destinations),
		Mode:         maps.Mode(request.Mode),
		Units:        maps.Units(request.Units),
	}
	if request.DepartNow && request.Mode == string(maps.TravelModeDriving) {
		req.DepartureTime = "now"
		req.TrafficModel = maps.TrafficModelBestGuess
	}

	resp, err := g.client.DistanceMatrix(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("distance matrix request failed: %w", err)
	}

	rows := make([]DistanceRow, len(resp.Rows))
	for i, row := range resp.Rows {
		elements := make([]DistanceElement, len(row.Elements))
		for j, element := range row.Elements {
			duration := element.Duration
			if element.DurationInTraffic > 0 {
				duration = element.DurationInTraffic
			}
			elements[j] = DistanceElement{
				Distance: Distance{
					Text:  element.Distance.HumanReadable,
					Value: float64(element.Distance.Meters),
				},
				Duration: Duration{
					Text:  duration.String(),
					Value: int(duration.Seconds()),
				},
				Status: element.Status,
			}
		}
		rows[i] = DistanceRow{Elements: elements}
	}

	return &DistanceResponse{Rows: rows}, nil
}

func locationStrings(locations []Location) []string {
	out := make([]string, len(locations))
	for i, location := range locations {
		out[i] = location.String()
	}
	return out
}

package maps

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	mapboxBaseURL = "https://api.mapbox.com"

	// The matrix API caps sources plus destinations per request, lower for the
	// traffic profile.
	mapboxMaxCoordinates        = 25
	mapboxMaxTrafficCoordinates = 10
)

type MapboxProvider struct {
	accessToken string
	httpClient  *resty.Client
}

// NewMapboxProvider talks to the Mapbox Matrix API. An empty baseURL uses the
// public endpoint.
func NewMapboxProvider(accessToken, baseURL string) *MapboxProvider {
	if baseURL == "" {
		baseURL = mapboxBaseURL
	}
	return &MapboxProvider{
		accessToken: accessToken,
		httpClient: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(30 * time.Second).
			SetHeader("Accept", "application/json"),
	}
}

type mapboxMatrixResponse struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	Durations [][]*float64 `json:"durations"`
	Distances [][]*float64 `json:"distances"`
}

// CalculateDistance fills the same matrix as the Google provider. Origins are
// split across requests so each stays within the coordinate cap.
func (m *MapboxProvider) CalculateDistance(ctx context.Context, request *DistanceRequest) (*DistanceResponse, error) {
	if len(request.Origins) == 0 || len(request.Destinations) == 0 {
		return &DistanceResponse{}, nil
	}
	if len(request.Origins) > MaxOrigins {
		return nil, fmt.Errorf("%w: %d", ErrTooManyOrigins, len(request.Origins))
	}

	profile := mapboxProfile(request.Mode, request.DepartNow)
	limit := mapboxMaxCoordinates
	if profile == "driving-traffic" {
		limit = mapboxMaxTrafficCoordinates
	}
	batch := limit - len(request.Destinations)
	if batch < 1 {
		return nil, fmt.Errorf("mapbox matrix accepts at most %d destinations for %s", limit-1, profile)
	}

	rows := make([]DistanceRow, 0, len(request.Origins))
	for start := 0; start < len(request.Origins); start += batch {
		end := min(start+batch, len(request.Origins))
		chunk, err := m.matrix(ctx, profile, request.Origins[start:end], request.Destinations)
		if err != nil {
			return nil, err
		}
		rows = append(rows, chunk...)
	}
	return &DistanceResponse{Rows: rows}, nil
}

func (m *MapboxProvider) matrix(ctx context.Context, profile string, origins, destinations []Location) ([]DistanceRow, error) {
	coordinates := make([]string, 0, len(origins)+len(destinations))
	sources := make([]string, 0, len(origins))
	targets := make([]string, 0, len(destinations))
	for _, origin := range origins {
		sources = append(sources, strconv.Itoa(len(coordinates)))
		coordinates = append(coordinates, lngLat(origin))
	}
	for _, destination := range destinations {
		targets = append(targets, strconv.Itoa(len(coordinates)))
		coordinates = append(coordinates, lngLat(destination))
	}

	var body mapboxMatrixResponse
	resp, err := m.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"sources":      strings.Join(sources, ";"),
			"destinations": strings.Join(targets, ";"),
			"annotations":  "duration,distance",
			"access_token": m.accessToken,
		}).
		SetResult(&body).
		SetError(&body).
		Get(fmt.Sprintf("/directions-matrix/v1/mapbox/%s/%s", profile, strings.Join(coordinates, ";")))
	if err != nil {
		return nil, fmt.Errorf("mapbox matrix request failed: %w", err)
	}
	if resp.IsError() || body.Code != "Ok" {
		return nil, fmt.Errorf("mapbox matrix error (status %d): %s %s", resp.StatusCode(), body.Code, body.Message)
	}
	if len(body.Durations) != len(origins) {
		return nil, fmt.Errorf("mapbox matrix returned %d rows for %d origins", len(body.Durations), len(origins))
	}

	rows := make([]DistanceRow, len(origins))
	for i, durations := range body.Durations {
		elements := make([]DistanceElement, len(destinations))
		for j := range elements {
			if j >= len(durations) || durations[j] == nil {
				elements[j] = DistanceElement{Status: "ZERO_RESULTS"}
				continue
			}
			seconds := *durations[j]
			element := DistanceElement{
				Duration: Duration{
					Text:  fmt.Sprintf("%.0f min", seconds/60),
					Value: int(seconds),
				},
				Status: StatusOK,
			}
			if i < len(body.Distances) && j < len(body.Distances[i]) && body.Distances[i][j] != nil {
				meters := *body.Distances[i][j]
				element.Distance = Distance{
					Text:  fmt.Sprintf("%.1f km", meters/1000),
					Value: meters,
				}
			}
			elements[j] = element
		}
		rows[i] = DistanceRow{Elements: elements}
	}
	return rows, nil
}

func mapboxProfile(mode string, departNow bool) string {
	switch mode {
	case "walking":
		return "walking"
	case "bicycling":
		return "cycling"
	default:
		if departNow {
			return "driving-traffic"
		}
		return "driving"
	}
}

// lngLat formats a location the way Mapbox expects it, longitude first.
func lngLat(l Location) string {
	return fmt.Sprintf("%.6f,%.6f", l.Longitude, l.Latitude)
}

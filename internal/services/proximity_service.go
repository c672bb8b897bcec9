package services

import (
	"context"
	"math"
	"sort"

	"panicdesk/internal/models"
	"panicdesk/internal/utils"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/maps"
)

type ProximityService interface {
	// NearestWithinRadius ranks officers by straight-line distance to point,
	// nearest first. Officers at equal distance keep store order; callers should
	// not depend on the order of ties.
	NearestWithinRadius(point utils.Point, radiusKM float64, onlyAvailable bool) []models.ProximityResult
	// Nearest returns the closest available officer, or nil.
	Nearest(point utils.Point, maxRadiusKM float64) *models.ProximityResult
	// RankWithTravelTime re-ranks the straight-line result by road travel time
	// when a maps provider is configured. Provider failures fall back to the
	// straight-line ranking.
	RankWithTravelTime(ctx context.Context, point utils.Point, radiusKM float64, onlyAvailable bool) []models.ProximityResult
	TravelTimeEnabled() bool
}

type proximityService struct {
	officers   OfficerLocationService
	provider   maps.MapsProvider
	travelMode string
	logger     *logger.Logger
}

// NewProximityService accepts a nil provider, in which case travel-time ranking
// returns the straight-line result.
func NewProximityService(officers OfficerLocationService, provider maps.MapsProvider, travelMode string, log *logger.Logger) ProximityService {
	if travelMode == "" {
		travelMode = "driving"
	}
	return &proximityService{
		officers:   officers,
		provider:   provider,
		travelMode: travelMode,
		logger:     log.WithComponent("proximity"),
	}
}

type rankedOfficer struct {
	result   models.ProximityResult
	location maps.Location
}

func (s *proximityService) NearestWithinRadius(point utils.Point, radiusKM float64, onlyAvailable bool) []models.ProximityResult {
	ranked := s.rank(point, radiusKM, onlyAvailable)
	results := make([]models.ProximityResult, len(ranked))
	for i, officer := range ranked {
		results[i] = officer.result
	}
	return results
}

func (s *proximityService) rank(point utils.Point, radiusKM float64, onlyAvailable bool) []rankedOfficer {
	var candidates []models.OfficerLocationSample
	if onlyAvailable {
		candidates = s.officers.Available()
	} else {
		candidates = s.officers.SnapshotAll()
	}

	ranked := make([]rankedOfficer, 0, len(candidates))
	if math.IsNaN(radiusKM) || radiusKM < 0 {
		return ranked
	}
	for _, officer := range candidates {
		d := utils.DistanceMeters(point, utils.Point{Lat: officer.Latitude, Lng: officer.Longitude})
		if math.IsNaN(d) || d/1000 > radiusKM {
			continue
		}
		ranked = append(ranked, rankedOfficer{
			result: models.ProximityResult{
				OfficerID:        officer.OfficerID,
				DisplayName:      officer.DisplayName,
				Unit:             officer.Unit,
				DistanceMeters:   d,
				BearingDegrees:   utils.CalculateBearing(officer.Latitude, officer.Longitude, point.Lat, point.Lng),
				EstimatedMinutes: utils.EstimateETAMinutes(d/1000, utils.DefaultResponseSpeedKMH),
			},
			location: maps.Location{Latitude: officer.Latitude, Longitude: officer.Longitude},
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].result.DistanceMeters < ranked[j].result.DistanceMeters
	})
	return ranked
}

func (s *proximityService) Nearest(point utils.Point, maxRadiusKM float64) *models.ProximityResult {
	results := s.NearestWithinRadius(point, maxRadiusKM, true)
	if len(results) == 0 {
		return nil
	}
	return &results[0]
}

func (s *proximityService) TravelTimeEnabled() bool {
	return s.provider != nil
}

func (s *proximityService) RankWithTravelTime(ctx context.Context, point utils.Point, radiusKM float64, onlyAvailable bool) []models.ProximityResult {
	ranked := s.rank(point, radiusKM, onlyAvailable)
	results := make([]models.ProximityResult, len(ranked))
	origins := make([]maps.Location, len(ranked))
	for i, officer := range ranked {
		results[i] = officer.result
		origins[i] = officer.location
	}
	if s.provider == nil || len(results) == 0 {
		return results
	}
	destination := []maps.Location{{Latitude: point.Lat, Longitude: point.Lng}}

	enriched := make([]models.ProximityResult, len(results))
	copy(enriched, results)

	for start := 0; start < len(origins); start += maps.MaxOrigins {
		end := start + maps.MaxOrigins
		if end > len(origins) {
			end = len(origins)
		}

		resp, err := s.provider.CalculateDistance(ctx, &maps.DistanceRequest{
			Origins:      origins[start:end],
			Destinations: destination,
			Mode:         s.travelMode,
			Units:        "metric",
			DepartNow:    true,
		})
		if err != nil {
			s.logger.WithError(err).Warn("Travel time lookup failed, using straight-line ranking")
			return results
		}

		for i, row := range resp.Rows {
			if start+i >= end || len(row.Elements) == 0 || row.Elements[0].Status != maps.StatusOK {
				continue
			}
			element := row.Elements[0]
			road := element.Distance.Value
			seconds := element.Duration.Value
			enriched[start+i].RoadDistanceMeters = &road
			enriched[start+i].TravelSeconds = &seconds
		}
	}

	// Officers without a route sort after those with one, keeping straight-line order.
	sort.SliceStable(enriched, func(i, j int) bool {
		a, b := enriched[i].TravelSeconds, enriched[j].TravelSeconds
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
	return enriched
}

package snapshot

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"panicdesk/internal/models"
	"panicdesk/pkg/logger"

	"github.com/go-resty/resty/v2"
)

// envelope mirrors the backend's {success, message, data} response wrapper.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    []T    `json:"data"`
}

// Client fetches current alert and officer state from the backend REST API.
type Client struct {
	httpClient *resty.Client
	logger     *logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		logger:     log.WithComponent("snapshot"),
	}
}

// PendingAlerts returns the alerts the backend currently holds in PENDING for the
// district. Entries that fail validation are skipped.
func (c *Client) PendingAlerts(ctx context.Context, token, districtID string) ([]models.AlertEvent, error) {
	var response envelope[models.AlertEvent]
	if err := c.get(ctx, token, "/alerts", map[string]string{
		"state":       string(models.AlertStatePending),
		"district_id": districtID,
	}, &response); err != nil {
		return nil, err
	}

	alerts := make([]models.AlertEvent, 0, len(response.Data))
	for _, event := range response.Data {
		if err := event.Validate(); err != nil {
			c.logger.WithError(err).Warn("Skipping malformed alert in snapshot")
			continue
		}
		alerts = append(alerts, event)
	}
	return alerts, nil
}

// OfficerLocations returns the last known fix of every connected officer.
func (c *Client) OfficerLocations(ctx context.Context, token, districtID string) ([]models.OfficerLocationSample, error) {
	var response envelope[models.OfficerLocationUpdate]
	if err := c.get(ctx, token, "/officers/locations", map[string]string{
		"district_id": districtID,
	}, &response); err != nil {
		return nil, err
	}

	samples := make([]models.OfficerLocationSample, 0, len(response.Data))
	for _, update := range response.Data {
		if err := update.Validate(); err != nil {
			c.logger.WithError(err).Warn("Skipping malformed officer location in snapshot")
			continue
		}
		samples = append(samples, update.Sample())
	}
	return samples, nil
}

func (c *Client) get(ctx context.Context, token, path string, query map[string]string, result interface{}) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(query).
		SetResult(result).
		Get(path)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", models.ErrSnapshotFetch, path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: GET %s returned %d", models.ErrSnapshotFetch, path, resp.StatusCode())
	}

	c.logger.WithFields(map[string]interface{}{
		"path":     path,
		"duration": resp.Time().String(),
	}).Debug("Snapshot fetched")
	return nil
}

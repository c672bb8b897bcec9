package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"panicdesk/internal/middleware"
	"panicdesk/internal/models"
	"panicdesk/internal/services"
	"panicdesk/internal/utils"
	"panicdesk/internal/validators"
	"panicdesk/pkg/logger"
	"panicdesk/pkg/websocket"
)

const commandTimeout = 5 * time.Second

// ConsoleSession is satisfied by *services.ConsoleSession.
type ConsoleSession interface {
	Connect(ctx context.Context, params websocket.ConnectParams) error
	Disconnect()
	Status() services.SessionStatus
	Reconcile(ctx context.Context) error
}

type ProximityConfig struct {
	DefaultRadiusKM float64
	MaxRadiusKM     float64
}

type ConsoleHandler struct {
	session       ConsoleSession
	alerts        services.AlertLifecycleService
	officers      services.OfficerLocationService
	proximity     services.ProximityService
	notifications services.NotificationService
	config        ProximityConfig
	logger        *logger.Logger
}

func NewConsoleHandler(
	session ConsoleSession,
	alerts services.AlertLifecycleService,
	officers services.OfficerLocationService,
	proximity services.ProximityService,
	notifications services.NotificationService,
	config ProximityConfig,
	log *logger.Logger,
) *ConsoleHandler {
	if config.DefaultRadiusKM <= 0 {
		config.DefaultRadiusKM = utils.DefaultSearchRadius
	}
	if config.MaxRadiusKM <= 0 {
		config.MaxRadiusKM = utils.MaxSearchRadius
	}
	return &ConsoleHandler{
		session:       session,
		alerts:        alerts,
		officers:      officers,
		proximity:     proximity,
		notifications: notifications,
		config:        config,
		logger:        log.WithComponent("console_handler"),
	}
}

// OpenSession connects the operator's event channel
func (h *ConsoleHandler) OpenSession(c *gin.Context) {
	var request validators.SessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			utils.BadRequestResponse(c, "Invalid request: "+err.Error())
			return
		}
	}
	if errs := validators.ValidateStruct(request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	params := websocket.ConnectParams{
		OperatorID: c.GetString(middleware.ContextOperatorID),
		Role:       c.GetString(middleware.ContextRole),
		DistrictID: c.GetString(middleware.ContextDistrictID),
		AuthToken:  c.GetString(middleware.ContextAuthToken),
	}
	if params.OperatorID == "" {
		utils.UnauthorizedResponse(c)
		return
	}
	if request.DistrictID != "" {
		params.DistrictID = request.DistrictID
	}
	if params.DistrictID == "" {
		utils.ValidationErrorResponse(c, map[string]string{"DistrictID": "DistrictID is required"})
		return
	}

	if err := h.session.Connect(c.Request.Context(), params); err != nil {
		h.logger.WithError(err).WithOperatorID(params.OperatorID).Warn("Failed to open console session")
		utils.ErrorResponse(c, http.StatusBadGateway, "CHANNEL_CONNECT_FAILED", "Failed to connect to event channel: "+err.Error())
		return
	}

	utils.SuccessResponse(c, "Session opened successfully", h.session.Status())
}

// CloseSession disconnects the event channel. Pending alerts stay stored.
func (h *ConsoleHandler) CloseSession(c *gin.Context) {
	h.session.Disconnect()
	utils.SuccessResponse(c, "Session closed successfully", h.session.Status())
}

func (h *ConsoleHandler) GetSession(c *gin.Context) {
	utils.SuccessResponse(c, "Session retrieved successfully", h.session.Status())
}

func (h *ConsoleHandler) SessionStatus() services.SessionStatus {
	return h.session.Status()
}

// Resync reconciles local state with the backend snapshot
func (h *ConsoleHandler) Resync(c *gin.Context) {
	if err := h.session.Reconcile(c.Request.Context()); err != nil {
		utils.ErrorResponse(c, http.StatusBadGateway, "SNAPSHOT_FETCH_FAILED", "Failed to reconcile with backend: "+err.Error())
		return
	}
	utils.SuccessResponse(c, "Console state reconciled", h.session.Status())
}

func (h *ConsoleHandler) GetPendingAlerts(c *gin.Context) {
	pending := h.alerts.List()
	utils.SuccessResponseWithMeta(c, "Pending alerts retrieved successfully", pending, &utils.Meta{Count: len(pending)})
}

// OpenAlert consumes a pending alert as the operator navigates to it
func (h *ConsoleHandler) OpenAlert(c *gin.Context) {
	alertID := c.Param("id")
	if !h.notifications.Navigate(c.Request.Context(), alertID) {
		utils.NotFoundResponse(c, "Pending alert")
		return
	}
	utils.SuccessResponse(c, "Alert opened successfully", gin.H{"alertId": alertID, "pending": h.alerts.Count()})
}

func (h *ConsoleHandler) GetPrompts(c *gin.Context) {
	prompts := h.notifications.Active()
	utils.SuccessResponseWithMeta(c, "Prompts retrieved successfully", prompts, &utils.Meta{Count: len(prompts)})
}

// DismissPrompt hides a prompt and keeps the alert pending
func (h *ConsoleHandler) DismissPrompt(c *gin.Context) {
	alertID := c.Param("id")
	if !h.notifications.Dismiss(c.Request.Context(), alertID) {
		utils.NotFoundResponse(c, "Prompt")
		return
	}
	utils.SuccessResponse(c, "Prompt dismissed successfully", gin.H{"alertId": alertID})
}

type officerView struct {
	Officers []models.OfficerLocationSample `json:"officers"`
	Center   *utils.Point                   `json:"center,omitempty"`
	Bounds   *utils.Bounds                  `json:"bounds,omitempty"`
}

// GetOfficers lists officer fixes with the map frame that covers them
func (h *ConsoleHandler) GetOfficers(c *gin.Context) {
	var officers []models.OfficerLocationSample
	if c.Query("available") == "true" {
		officers = h.officers.Available()
	} else {
		officers = h.officers.SnapshotAll()
	}

	view := officerView{Officers: officers}
	if len(officers) > 0 {
		points := make([]utils.Point, len(officers))
		for i, officer := range officers {
			points[i] = utils.Point{Lat: officer.Latitude, Lng: officer.Longitude}
		}
		center := utils.CalculateCenter(points)
		view.Center = &center
		view.Bounds = utils.CalculateBounds(points)
	}

	utils.SuccessResponseWithMeta(c, "Officers retrieved successfully", view, &utils.Meta{Count: len(officers)})
}

type proximityView struct {
	Origin     utils.Point              `json:"origin"`
	RadiusKM   float64                  `json:"radiusKm"`
	TravelTime bool                     `json:"travelTime"`
	Results    []models.ProximityResult `json:"results"`
}

// GetProximity ranks officers around a point or a pending alert
func (h *ConsoleHandler) GetProximity(c *gin.Context) {
	var query validators.ProximityQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "Invalid query: "+err.Error())
		return
	}
	if errs := validators.ValidateStruct(query); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	origin, err := h.resolveOrigin(query)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			utils.NotFoundResponse(c, "Pending alert")
			return
		}
		utils.BadRequestResponse(c, err.Error())
		return
	}

	radius := query.RadiusKM
	if radius == 0 {
		radius = h.config.DefaultRadiusKM
	}
	if radius > h.config.MaxRadiusKM {
		radius = h.config.MaxRadiusKM
	}
	onlyAvailable := true
	if query.OnlyAvailable != nil {
		onlyAvailable = *query.OnlyAvailable
	}

	view := proximityView{Origin: origin, RadiusKM: radius}
	if query.Travel && h.proximity.TravelTimeEnabled() {
		view.TravelTime = true
		view.Results = h.proximity.RankWithTravelTime(c.Request.Context(), origin, radius, onlyAvailable)
	} else {
		view.Results = h.proximity.NearestWithinRadius(origin, radius, onlyAvailable)
	}

	utils.SuccessResponseWithMeta(c, "Nearby officers retrieved successfully", view, &utils.Meta{Count: len(view.Results)})
}

func (h *ConsoleHandler) resolveOrigin(query validators.ProximityQuery) (utils.Point, error) {
	if query.Latitude != nil && query.Longitude != nil {
		return utils.Point{Lat: *query.Latitude, Lng: *query.Longitude}, nil
	}

	alert, ok := h.alerts.Get(query.AlertID)
	if !ok {
		return utils.Point{}, models.ErrNotFound
	}
	lat, lng, ok := alert.Position()
	if !ok {
		return utils.Point{}, validators.ErrInvalidCoordinates
	}
	return utils.Point{Lat: lat, Lng: lng}, nil
}

// HandleCommand applies operator actions sent over the UI socket.
func (h *ConsoleHandler) HandleCommand(operatorID, command string, data json.RawMessage) {
	log := h.logger.WithOperatorID(operatorID).WithField("command", command)

	var payload validators.AlertCommand
	if err := json.Unmarshal(data, &payload); err != nil {
		log.WithError(err).Warn("Malformed console command dropped")
		return
	}
	if errs := validators.ValidateStruct(payload); len(errs) > 0 {
		log.WithError(errs).Warn("Invalid console command dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	var applied bool
	switch command {
	case websocket.CommandDismissPrompt:
		applied = h.notifications.Dismiss(ctx, payload.AlertID)
	case websocket.CommandOpenAlert:
		applied = h.notifications.Navigate(ctx, payload.AlertID)
	default:
		log.Debug("Unknown console command ignored")
		return
	}
	log.WithAlertID(payload.AlertID).WithField("applied", applied).Info("Console command handled")
}

// Welcome is the state a UI client renders from when it joins.
func (h *ConsoleHandler) Welcome(operatorID string) interface{} {
	return gin.H{
		"operatorId": operatorID,
		"session":    h.session.Status(),
		"pending":    h.alerts.List(),
		"prompts":    h.notifications.Active(),
		"officers":   h.officers.SnapshotAll(),
		"travelTime": h.proximity.TravelTimeEnabled(),
	}
}

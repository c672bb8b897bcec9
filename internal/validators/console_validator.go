package validators

// SessionRequest opens the operator's channel session. DistrictID overrides the
// district from the operator token.
type SessionRequest struct {
	DistrictID string `json:"districtId" validate:"omitempty,district_id"`
}

// ProximityQuery asks for officers around a point or around a pending alert.
type ProximityQuery struct {
	Latitude      *float64 `form:"lat" validate:"required_without=AlertID,omitempty,finite,gte=-90,lte=90"`
	Longitude     *float64 `form:"lng" validate:"required_without=AlertID,omitempty,finite,gte=-180,lte=180"`
	AlertID       string   `form:"alert_id" validate:"omitempty,max=128"`
	RadiusKM      float64  `form:"radius_km" validate:"omitempty,finite,gt=0"`
	OnlyAvailable *bool    `form:"only_available"`
	Travel        bool     `form:"travel"`
}

// AlertCommand is the payload of operator commands sent over the UI socket.
type AlertCommand struct {
	AlertID string `json:"alertId" validate:"required,max=128"`
}

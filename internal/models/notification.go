package models

import (
	"time"
)

type PromptStatus string
type DismissReason string

const (
	PromptStatusShown PromptStatus = "shown"

	DismissReasonDismissed DismissReason = "dismissed"
	DismissReasonNavigated DismissReason = "navigated"
	DismissReasonExpired   DismissReason = "expired"
	DismissReasonWithdrawn DismissReason = "withdrawn"
)

// PromptRenderData is everything the toast layer needs to draw one prompt.
type PromptRenderData struct {
	Title       string      `json:"title"`
	VictimLabel string      `json:"victimLabel"`
	Origin      AlertOrigin `json:"origin"`
	OccurredAt  time.Time   `json:"occurredAt"`
	DeepLink    string      `json:"deepLink"`
}

// NotificationTicket binds one pending alert to one on-screen prompt.
type NotificationTicket struct {
	AlertID    string           `json:"alertId"`
	Status     PromptStatus     `json:"status"`
	RenderData PromptRenderData `json:"renderData"`
	CreatedAt  time.Time        `json:"createdAt"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

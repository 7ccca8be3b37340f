package models

import (
	"strings"
	"time"
)

// AlertCondition is the direction of a price alert.
type AlertCondition string

const (
	// AlertAbove fires when price reaches or exceeds the target.
	AlertAbove AlertCondition = "ABOVE"
	// AlertBelow fires when price reaches or falls under the target.
	AlertBelow AlertCondition = "BELOW"
)

// ParseAlertCondition parses a condition case-insensitively.
func ParseAlertCondition(s string) (AlertCondition, bool) {
	switch AlertCondition(strings.ToUpper(strings.TrimSpace(s))) {
	case AlertAbove:
		return AlertAbove, true
	case AlertBelow:
		return AlertBelow, true
	}
	return "", false
}

// AlertState is the lifecycle state of a price alert.
type AlertState string

const (
	AlertActive    AlertState = "ACTIVE"
	AlertTriggered AlertState = "TRIGGERED"
)

// PriceAlert represents a price alert. The backend sets TriggeredAt once the
// condition is met; it never goes back to nil.
type PriceAlert struct {
	ID          string         `json:"id"`
	Symbol      string         `json:"symbol"`
	Condition   AlertCondition `json:"condition"`
	TargetPrice float64        `json:"target_price"`
	TriggeredAt *time.Time     `json:"triggered_at"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
}

// State returns the lifecycle state of the alert.
func (a PriceAlert) State() AlertState {
	if a.TriggeredAt != nil {
		return AlertTriggered
	}
	return AlertActive
}

// IsTriggered reports whether the alert has fired.
func (a PriceAlert) IsTriggered() bool {
	return a.TriggeredAt != nil
}

// Crosses reports whether price satisfies the alert condition.
func (a PriceAlert) Crosses(price float64) bool {
	switch a.Condition {
	case AlertAbove:
		return price >= a.TargetPrice
	case AlertBelow:
		return price <= a.TargetPrice
	}
	return false
}

// CreateAlertRequest is the body posted when creating an alert.
type CreateAlertRequest struct {
	Symbol      string         `json:"symbol"`
	Condition   AlertCondition `json:"condition"`
	TargetPrice float64        `json:"target_price"`
}

package types

import (
	"math"
	"time"
)

// WidgetType identifies which position metric an alert watches.
type WidgetType string

const (
	WidgetHealthFactor WidgetType = "healthFactor"
	WidgetLTV          WidgetType = "ltv"
	WidgetNetAPY       WidgetType = "netAPY"
)

// Condition is the comparison applied between the live metric and the threshold.
type Condition string

const (
	ConditionGreaterThan Condition = "greater_than"
	ConditionLessThan    Condition = "less_than"
	ConditionEquals      Condition = "equals"
)

const (
	MaxAlertNameLen        = 64
	DefaultCooldownMinutes = 60
)

// Alert is a user-defined threshold alert over a position metric.
// lastFiredAt is written only by the monitor, everything else by the owner.
type Alert struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	AlertName       string     `json:"alert_name"`
	WidgetType      WidgetType `json:"widget_type"`
	Condition       Condition  `json:"condition"`
	Threshold       float64    `json:"threshold"`
	NotifyTarget    string     `json:"notify_target"`
	CustomMessage   string     `json:"custom_message,omitempty"`
	CooldownMinutes int        `json:"cooldown_minutes"`
	IsActive        bool       `json:"is_active"`
	LastFiredAt     *time.Time `json:"last_fired_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// ValidWidgetType reports whether w is a known widget type.
func ValidWidgetType(w WidgetType) bool {
	switch w {
	case WidgetHealthFactor, WidgetLTV, WidgetNetAPY:
		return true
	}
	return false
}

// ValidCondition reports whether c is a known condition.
func ValidCondition(c Condition) bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals:
		return true
	}
	return false
}

// Validate checks the user-settable fields of an alert before it is stored.
func (a *Alert) Validate() error {
	if a.OwnerID == "" {
		return NewValidationError("owner id is required")
	}
	if len(a.AlertName) == 0 || len(a.AlertName) > MaxAlertNameLen {
		return NewValidationError("alert name must be between 1 and 64 characters")
	}
	if !ValidWidgetType(a.WidgetType) {
		return NewValidationError("unknown widget type: " + string(a.WidgetType))
	}
	if !ValidCondition(a.Condition) {
		return NewValidationError("unknown condition: " + string(a.Condition))
	}
	if math.IsNaN(a.Threshold) || math.IsInf(a.Threshold, 0) {
		return NewValidationError("threshold must be a finite number")
	}
	if a.NotifyTarget == "" {
		return NewValidationError("notify target is required")
	}
	if a.CooldownMinutes < 0 {
		return NewValidationError("cooldown minutes must not be negative")
	}
	return nil
}

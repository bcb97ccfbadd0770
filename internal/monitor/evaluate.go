package monitor

import (
	"time"

	"defiwatch-telegram-bot/internal/types"
)

// Evaluate applies an alert condition to a live metric value. It is pure:
// no side effects, no clock. Equality is exact float comparison.
func Evaluate(value float64, condition types.Condition, threshold float64) (bool, error) {
	switch condition {
	case types.ConditionGreaterThan:
		return value > threshold, nil
	case types.ConditionLessThan:
		return value < threshold, nil
	case types.ConditionEquals:
		return value == threshold, nil
	}
	return false, types.NewValidationError("unknown condition: " + string(condition))
}

// CooldownElapsed reports whether an alert may fire again. A nil
// lastFiredAt counts as elapsed; the cooldown state itself lives on the
// Alert entity, not here.
func CooldownElapsed(lastFiredAt *time.Time, cooldownMinutes int, now time.Time) bool {
	if lastFiredAt == nil {
		return true
	}
	return now.Sub(*lastFiredAt) >= time.Duration(cooldownMinutes)*time.Minute
}

package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"defiwatch-telegram-bot/internal/types"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// AlertStore provides owner-scoped CRUD over alerts. Only the monitor calls
// UpdateLastFired; everything else is driven by the owner.
type AlertStore struct {
	db *sql.DB
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db}
}

// InsertAlert validates and saves a new alert. The id and created_at are
// assigned here; duplicates on (owner, widget, name) are rejected.
func (s *AlertStore) InsertAlert(alert *types.Alert) error {
	if alert.CooldownMinutes == 0 {
		alert.CooldownMinutes = types.DefaultCooldownMinutes
	}
	if err := alert.Validate(); err != nil {
		return err
	}

	alert.ID = uuid.NewString()
	alert.IsActive = true
	alert.LastFiredAt = nil
	alert.CreatedAt = time.Now().UTC()

	query := `
	INSERT INTO alerts (id, owner_id, alert_name, widget_type, condition, threshold,
		notify_target, custom_message, cooldown_minutes, is_active, last_fired_at, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, NULL, ?);`

	_, err := s.db.Exec(query, alert.ID, alert.OwnerID, alert.AlertName, string(alert.WidgetType),
		string(alert.Condition), alert.Threshold, alert.NotifyTarget, nullable(alert.CustomMessage),
		alert.CooldownMinutes, alert.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return types.NewValidationError(fmt.Sprintf(
				"alert %q already exists for widget %s", alert.AlertName, alert.WidgetType))
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// GetAlert fetches one alert scoped to its owner. A foreign-owned alert is
// indistinguishable from a missing one.
func (s *AlertStore) GetAlert(ownerID, alertID string) (*types.Alert, error) {
	row := s.db.QueryRow(selectColumns+` FROM alerts WHERE id = ? AND owner_id = ?;`, alertID, ownerID)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFoundError("alert", alertID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert %s: %w", alertID, err)
	}
	return alert, nil
}

// GetAlertsByOwner fetches all alerts belonging to one owner.
func (s *AlertStore) GetAlertsByOwner(ownerID string) ([]types.Alert, error) {
	rows, err := s.db.Query(selectColumns+` FROM alerts WHERE owner_id = ? ORDER BY created_at;`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for owner %s: %w", ownerID, err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// GetActiveAlerts fetches all alerts with is_active = 1, across owners.
// Called once per monitor cycle so toggles are observed on the next pass.
func (s *AlertStore) GetActiveAlerts() ([]types.Alert, error) {
	rows, err := s.db.Query(selectColumns + ` FROM alerts WHERE is_active = 1;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// SetAlertActive toggles an alert on or off for its owner.
func (s *AlertStore) SetAlertActive(ownerID, alertID string, active bool) error {
	res, err := s.db.Exec(`UPDATE alerts SET is_active = ? WHERE id = ? AND owner_id = ?;`,
		boolToInt(active), alertID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to update alert %s: %w", alertID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NewNotFoundError("alert", alertID)
	}
	return nil
}

// UpdateLastFired records a successful notification. Monitor-only.
func (s *AlertStore) UpdateLastFired(alertID string, firedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE alerts SET last_fired_at = ? WHERE id = ?;`,
		firedAt.UTC().Format(time.RFC3339), alertID)
	if err != nil {
		return fmt.Errorf("failed to update last fired for alert %s: %w", alertID, err)
	}
	return nil
}

// DeleteAlert removes an alert for its owner.
func (s *AlertStore) DeleteAlert(ownerID, alertID string) error {
	res, err := s.db.Exec(`DELETE FROM alerts WHERE id = ? AND owner_id = ?;`, alertID, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete alert %s: %w", alertID, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return types.NewNotFoundError("alert", alertID)
	}
	return nil
}

const selectColumns = `SELECT id, owner_id, alert_name, widget_type, condition, threshold,
	notify_target, custom_message, cooldown_minutes, is_active, last_fired_at, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var alert types.Alert
	var widget, condition string
	var customMessage, lastFired sql.NullString
	var isActive int
	var createdAt string

	err := row.Scan(&alert.ID, &alert.OwnerID, &alert.AlertName, &widget, &condition,
		&alert.Threshold, &alert.NotifyTarget, &customMessage, &alert.CooldownMinutes,
		&isActive, &lastFired, &createdAt)
	if err != nil {
		return nil, err
	}

	alert.WidgetType = types.WidgetType(widget)
	alert.Condition = types.Condition(condition)
	alert.CustomMessage = customMessage.String
	alert.IsActive = isActive != 0

	if lastFired.Valid && lastFired.String != "" {
		t, err := time.Parse(time.RFC3339, lastFired.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse last_fired_at: %w", err)
		}
		alert.LastFiredAt = &t
	}
	if createdAt != "" {
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		alert.CreatedAt = t
	}

	return &alert, nil
}

func collectAlerts(rows *sql.Rows) ([]types.Alert, error) {
	var alerts []types.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		alerts = append(alerts, *alert)
	}
	return alerts, rows.Err()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

package database

import (
	"database/sql"
	"testing"
	"time"

	"defiwatch-telegram-bot/internal/types"

	_ "modernc.org/sqlite"
)

func testStore(t *testing.T) *AlertStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schema := `
	CREATE TABLE alerts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		alert_name TEXT NOT NULL,
		widget_type TEXT NOT NULL,
		condition TEXT NOT NULL,
		threshold REAL NOT NULL,
		notify_target TEXT NOT NULL,
		custom_message TEXT DEFAULT NULL,
		cooldown_minutes INTEGER NOT NULL DEFAULT 60,
		is_active INTEGER NOT NULL DEFAULT 1,
		last_fired_at TIMESTAMP DEFAULT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (owner_id, widget_type, alert_name)
	);`
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return NewAlertStore(db)
}

func sampleAlert() *types.Alert {
	return &types.Alert{
		OwnerID:      "owner1",
		AlertName:    "hf watch",
		WidgetType:   types.WidgetHealthFactor,
		Condition:    types.ConditionLessThan,
		Threshold:    1.5,
		NotifyTarget: "12345",
	}
}

func TestInsertAlertAssignsDefaults(t *testing.T) {
	store := testStore(t)

	alert := sampleAlert()
	if err := store.InsertAlert(alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if alert.ID == "" {
		t.Fatalf("insert must assign an id")
	}
	if alert.CooldownMinutes != types.DefaultCooldownMinutes {
		t.Fatalf("expected default cooldown, got %d", alert.CooldownMinutes)
	}
	if !alert.IsActive || alert.LastFiredAt != nil {
		t.Fatalf("new alerts start active with no fire history")
	}

	loaded, err := store.GetAlert("owner1", alert.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.AlertName != "hf watch" || loaded.Threshold != 1.5 {
		t.Fatalf("loaded alert does not match inserted: %+v", loaded)
	}
}

func TestInsertDuplicateRejected(t *testing.T) {
	store := testStore(t)

	if err := store.InsertAlert(sampleAlert()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := store.InsertAlert(sampleAlert())
	if !types.IsValidation(err) {
		t.Fatalf("duplicate (owner, widget, name) must be rejected with validation error, got %v", err)
	}

	// Same name on a different widget is a distinct alert.
	other := sampleAlert()
	other.WidgetType = types.WidgetLTV
	other.Condition = types.ConditionGreaterThan
	if err := store.InsertAlert(other); err != nil {
		t.Fatalf("same name on another widget must be allowed: %v", err)
	}
}

func TestInsertRejectsBadEnums(t *testing.T) {
	store := testStore(t)

	alert := sampleAlert()
	alert.WidgetType = types.WidgetType("collateralRatio")
	if err := store.InsertAlert(alert); !types.IsValidation(err) {
		t.Fatalf("unknown widget type must be rejected, got %v", err)
	}

	alert = sampleAlert()
	alert.Condition = types.Condition("near")
	if err := store.InsertAlert(alert); !types.IsValidation(err) {
		t.Fatalf("unknown condition must be rejected, got %v", err)
	}

	alert = sampleAlert()
	alert.CooldownMinutes = -5
	if err := store.InsertAlert(alert); !types.IsValidation(err) {
		t.Fatalf("negative cooldown must be rejected, got %v", err)
	}
}

func TestGetAlertScopedByOwner(t *testing.T) {
	store := testStore(t)

	alert := sampleAlert()
	if err := store.InsertAlert(alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.GetAlert("someone-else", alert.ID); !types.IsNotFound(err) {
		t.Fatalf("foreign owner must see not found, got %v", err)
	}
	if _, err := store.GetAlert("owner1", "no-such-id"); !types.IsNotFound(err) {
		t.Fatalf("unknown id must be not found, got %v", err)
	}
}

func TestActiveToggleObservedByListing(t *testing.T) {
	store := testStore(t)

	alert := sampleAlert()
	if err := store.InsertAlert(alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	active, err := store.GetActiveAlerts()
	if err != nil || len(active) != 1 {
		t.Fatalf("expected one active alert, got %d (%v)", len(active), err)
	}

	if err := store.SetAlertActive("owner1", alert.ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, err = store.GetActiveAlerts()
	if err != nil || len(active) != 0 {
		t.Fatalf("disabled alert must vanish from the active set, got %d", len(active))
	}

	if err := store.SetAlertActive("owner1", "no-such-id", true); !types.IsNotFound(err) {
		t.Fatalf("toggling a missing alert must be not found, got %v", err)
	}
}

func TestUpdateLastFiredRoundTrips(t *testing.T) {
	store := testStore(t)

	alert := sampleAlert()
	if err := store.InsertAlert(alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	firedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := store.UpdateLastFired(alert.ID, firedAt); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := store.GetAlert("owner1", alert.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.LastFiredAt == nil || !loaded.LastFiredAt.Equal(firedAt) {
		t.Fatalf("lastFiredAt did not round trip: %v", loaded.LastFiredAt)
	}
}

func TestDeleteAlert(t *testing.T) {
	store := testStore(t)

	alert := sampleAlert()
	if err := store.InsertAlert(alert); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.DeleteAlert("someone-else", alert.ID); !types.IsNotFound(err) {
		t.Fatalf("foreign owner must not delete, got %v", err)
	}
	if err := store.DeleteAlert("owner1", alert.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.GetAlert("owner1", alert.ID); !types.IsNotFound(err) {
		t.Fatalf("deleted alert must be gone, got %v", err)
	}
}

func TestGetAlertsByOwner(t *testing.T) {
	store := testStore(t)

	first := sampleAlert()
	if err := store.InsertAlert(first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := sampleAlert()
	second.AlertName = "ltv watch"
	second.WidgetType = types.WidgetLTV
	if err := store.InsertAlert(second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foreign := sampleAlert()
	foreign.OwnerID = "owner2"
	if err := store.InsertAlert(foreign); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	alerts, err := store.GetAlertsByOwner("owner1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("expected two alerts for owner1, got %d", len(alerts))
	}
}

package database

import (
	"database/sql"
	"fmt"
	"log"
)

var DB *sql.DB

func InitDB(dbPath string) error {
	var err error
	DB, err = sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	createAlertsTable := `
	CREATE TABLE IF NOT EXISTS alerts (
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
	_, err = DB.Exec(createAlertsTable)
	if err != nil {
		return fmt.Errorf("failed to create alerts table: %w", err)
	}

	createMetricsTable := `
		CREATE TABLE IF NOT EXISTS metrics (
		metric_name TEXT NOT NULL,
		metric_value REAL NOT NULL,
		PRIMARY KEY (metric_name)
	);`
	_, err = DB.Exec(createMetricsTable)
	if err != nil {
		return fmt.Errorf("failed to create metrics table: %w", err)
	}

	log.Println("Database initialized successfully.")
	return nil
}

func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}

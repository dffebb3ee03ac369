package neighborhood

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates the neighbors and neighborhood_actions tables if they
// do not already exist.
func InitSchema(ctx context.Context, db *sql.DB) error {
	const createNeighbors = `
		CREATE TABLE IF NOT EXISTS neighbors (
			neighbor_id         BLOB PRIMARY KEY,
			ip_address          TEXT NOT NULL,
			primary_port        INTEGER NOT NULL,
			sr_neighbor_port    INTEGER,
			location_latitude   INTEGER NOT NULL,
			location_longitude  INTEGER NOT NULL,
			last_refresh_time   DATETIME
		)
	`
	const createActions = `
		CREATE TABLE IF NOT EXISTS neighborhood_actions (
			id                  TEXT PRIMARY KEY,
			server_id           BLOB NOT NULL,
			type                TEXT NOT NULL,
			timestamp           DATETIME NOT NULL,
			execute_after       DATETIME NOT NULL,
			target_identity_id  TEXT,
			additional_data     TEXT
		)
	`
	const createActionsIndex = `
		CREATE INDEX IF NOT EXISTS idx_neighborhood_actions_execute_after
		ON neighborhood_actions(execute_after)
	`

	if _, err := db.ExecContext(ctx, createNeighbors); err != nil {
		return fmt.Errorf("create neighbors table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createActions); err != nil {
		return fmt.Errorf("create neighborhood_actions table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createActionsIndex); err != nil {
		return fmt.Errorf("create neighborhood_actions index: %w", err)
	}
	return nil
}

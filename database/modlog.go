package database

import (
	"context"
	"database/sql"
	"fmt"
	"twok/models"
	"twok/utils"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// LogModAction records a moderator's action to the database.
func LogModAction(ctx context.Context, ex execer, moderator, action string, targetID int64, details string) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO mod_actions (timestamp, moderator, action, target_id, details) VALUES (?, ?, ?, ?, ?)",
		utils.GetSQLTime(), moderator, action, targetID, details)
	if err != nil {
		return fmt.Errorf("failed to execute mod action log: %w", err)
	}
	return nil
}

// LogModAction records an action on the service's own connection pool. A
// failure is logged, not returned: the action itself has already happened.
func (ds *DatabaseService) LogModAction(ctx context.Context, moderator, action string, targetID int64, details string) {
	if err := LogModAction(ctx, ds.DB, moderator, action, targetID, details); err != nil {
		ds.logger.Error("Failed to record moderation action", "action", action, "target_id", targetID, "error", err)
	}
}

// ModActions pages through the moderation log, newest first.
func (ds *DatabaseService) ModActions(ctx context.Context, skip, limit int) ([]models.ModAction, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := ds.DB.QueryContext(ctx,
		"SELECT id, timestamp, moderator, action, target_id, details FROM mod_actions ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list mod actions: %w", err)
	}
	defer closeRows(rows, ds.logger, "ModActions")

	actions := []models.ModAction{}
	for rows.Next() {
		var a models.ModAction
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.Moderator, &a.Action, &a.TargetID, &a.Details); err != nil {
			return nil, fmt.Errorf("scan mod action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"twok/models"
)

type BanTable struct {
	*Table[models.Ban]
}

func newBanTable(db *sql.DB, logger *slog.Logger) *BanTable {
	return &BanTable{&Table[models.Ban]{
		db:         db,
		logger:     logger,
		label:      "Ban",
		name:       "bans",
		selectFrom: "bans",
		columns:    "ban_id, reason, date, expiration, active, requester_id",
		idColumn:   "ban_id",
		mainColumn: "requester_id",
		scan: func(s scanner) (*models.Ban, error) {
			var b models.Ban
			if err := s.Scan(&b.ID, &b.Reason, &b.Date, &b.Expiration, &b.Active, &b.RequesterID); err != nil {
				return nil, err
			}
			return &b, nil
		},
	}}
}

// ForRequester returns the bans linked to a requester, oldest first.
func (t *BanTable) ForRequester(ctx context.Context, requesterID int64) ([]models.Ban, error) {
	return t.List(ctx, ListOpts{
		Where:   "requester_id = ?",
		Args:    []any{requesterID},
		OrderBy: "ban_id ASC",
	})
}

// ListWithRequester pages through all bans, newest first, each carrying the
// requester it applies to.
func (t *BanTable) ListWithRequester(ctx context.Context, skip, limit int) ([]models.Ban, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := t.db.QueryContext(ctx, `
        SELECT bn.ban_id, bn.reason, bn.date, bn.expiration, bn.active, bn.requester_id,
               r.ip_address, r.last_post_time
        FROM bans bn JOIN requesters r ON r.requester_id = bn.requester_id
        ORDER BY bn.date DESC, bn.ban_id DESC
        LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list bans: %w", err)
	}
	defer closeRows(rows, t.logger, "ListWithRequester")

	bans := []models.Ban{}
	for rows.Next() {
		var (
			b models.Ban
			r models.Requester
		)
		if err := rows.Scan(&b.ID, &b.Reason, &b.Date, &b.Expiration, &b.Active, &b.RequesterID, &r.IPAddress, &r.LastPostTime); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		r.ID = b.RequesterID
		b.Requester = &r
		bans = append(bans, b)
	}
	return bans, rows.Err()
}

package database

import (
	"database/sql"
	"log/slog"
	"twok/models"
)

func newRequesterTable(db *sql.DB, logger *slog.Logger) *Table[models.Requester] {
	return &Table[models.Requester]{
		db:         db,
		logger:     logger,
		label:      "Requester",
		name:       "requesters",
		selectFrom: "requesters",
		columns:    "requester_id, ip_address, last_post_time",
		idColumn:   "requester_id",
		mainColumn: "ip_address",
		scan: func(s scanner) (*models.Requester, error) {
			var r models.Requester
			if err := s.Scan(&r.ID, &r.IPAddress, &r.LastPostTime); err != nil {
				return nil, err
			}
			return &r, nil
		},
	}
}

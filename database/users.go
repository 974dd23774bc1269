package database

import (
	"context"
	"database/sql"
	"log/slog"
	"twok/models"
)

type UserTable struct {
	*Table[models.User]
}

func newUserTable(db *sql.DB, logger *slog.Logger) *UserTable {
	return &UserTable{&Table[models.User]{
		db:         db,
		logger:     logger,
		label:      "User",
		name:       "users",
		selectFrom: "users",
		columns:    "user_id, username, password_hash, user_role",
		idColumn:   "user_id",
		mainColumn: "username",
		conflict:   "User already registered",
		scan: func(s scanner) (*models.User, error) {
			var u models.User
			if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role); err != nil {
				return nil, err
			}
			return &u, nil
		},
	}}
}

// ByUsername is GetByMain with a typed argument.
func (t *UserTable) ByUsername(ctx context.Context, username string) (*models.User, error) {
	return t.GetByMain(ctx, username)
}

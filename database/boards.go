package database

import (
	"context"
	"database/sql"
	"log/slog"
	"twok/models"
)

type BoardTable struct {
	*Table[models.Board]
	pageSize int
}

func newBoardTable(db *sql.DB, logger *slog.Logger, pageSize int) *BoardTable {
	return &BoardTable{
		Table: &Table[models.Board]{
			db:         db,
			logger:     logger,
			label:      "Board",
			name:       "boards",
			selectFrom: "boards",
			columns:    "board_id, name",
			idColumn:   "board_id",
			mainColumn: "name",
			scan: func(s scanner) (*models.Board, error) {
				var b models.Board
				if err := s.Scan(&b.ID, &b.Name); err != nil {
					return nil, err
				}
				return &b, nil
			},
		},
		pageSize: pageSize,
	}
}

// PageSize is the configured number of threads per board page.
func (t *BoardTable) PageSize() int { return t.pageSize }

// All returns every board in creation order.
func (t *BoardTable) All(ctx context.Context) ([]models.Board, error) {
	return t.List(ctx, ListOpts{OrderBy: "board_id ASC"})
}

// ByName is GetByMain with a typed argument.
func (t *BoardTable) ByName(ctx context.Context, name string) (*models.Board, error) {
	return t.GetByMain(ctx, name)
}

// PageCount returns how many listing pages the board has. An empty board has
// zero pages; otherwise the count is rootPosts/pageSize + 1, which yields one
// trailing empty page when rootPosts is an exact multiple of the page size.
// Existing clients depend on that value.
func (t *BoardTable) PageCount(ctx context.Context, name string) (int, error) {
	board, err := t.ByName(ctx, name)
	if err != nil {
		return 0, err
	}
	var roots int
	err = t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts WHERE board_id = ? AND parent_id IS NULL", board.ID).Scan(&roots)
	if err != nil {
		return 0, err
	}
	return pageCount(roots, t.pageSize), nil
}

func pageCount(roots, pageSize int) int {
	if roots == 0 {
		return 0
	}
	return roots/pageSize + 1
}

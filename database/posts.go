package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"twok/models"
)

const postColumns = "p.post_id, p.title, p.message, p.date, p.board_id, b.name, p.user_id, p.requester_id, p.parent_id, p.latest_reply_date"

const postFrom = "posts p JOIN boards b ON b.board_id = p.board_id"

// PostTable stores posts. Reads join the owning board so every post carries
// its board name.
type PostTable struct {
	*Table[models.Post]
	boards *BoardTable
}

func newPostTable(db *sql.DB, logger *slog.Logger, boards *BoardTable) *PostTable {
	return &PostTable{
		Table: &Table[models.Post]{
			db:         db,
			logger:     logger,
			label:      "Post",
			name:       "posts",
			selectFrom: postFrom,
			alias:      "p.",
			columns:    postColumns,
			idColumn:   "post_id",
			mainColumn: "title",
			scan:       scanPost,
		},
		boards: boards,
	}
}

func scanPost(s scanner) (*models.Post, error) {
	var p models.Post
	err := s.Scan(&p.ID, &p.Title, &p.Message, &p.Date, &p.BoardID, &p.Board.Name,
		&p.UserID, &p.RequesterID, &p.ParentID, &p.LatestReplyDate)
	if err != nil {
		return nil, err
	}
	p.Children = []models.Post{}
	return &p, nil
}

// RootParent walks parent links up to the post that anchors the thread. The
// walk stops early at a parent that no longer exists, so replies orphaned by
// a deleted root resolve to themselves.
func (t *PostTable) RootParent(ctx context.Context, post *models.Post) (*models.Post, error) {
	seen := map[int64]bool{post.ID: true}
	current := post
	for current.ParentID != nil {
		if seen[*current.ParentID] {
			break
		}
		parent, err := t.GetByID(ctx, *current.ParentID)
		if err != nil {
			if isNotFound(err) {
				break
			}
			return nil, err
		}
		seen[parent.ID] = true
		current = parent
	}
	return current, nil
}

// BoardRoots lists a page of thread roots, most recently bumped first.
func (t *PostTable) BoardRoots(ctx context.Context, boardID int64, skip, limit int) ([]models.Post, error) {
	return t.List(ctx, ListOpts{
		Where:   "p.board_id = ? AND p.parent_id IS NULL",
		Args:    []any{boardID},
		OrderBy: "p.latest_reply_date DESC, p.post_id DESC",
		Skip:    skip,
		Limit:   limit,
	})
}

// Replies returns every direct reply to rootID in posting order.
func (t *PostTable) Replies(ctx context.Context, rootID int64) ([]models.Post, error) {
	return t.List(ctx, ListOpts{
		Where:   "p.parent_id = ?",
		Args:    []any{rootID},
		OrderBy: "p.post_id ASC",
	})
}

// RepliesAfter returns up to limit replies to rootID newer than afterID.
func (t *PostTable) RepliesAfter(ctx context.Context, rootID, afterID int64, limit int) ([]models.Post, error) {
	return t.List(ctx, ListOpts{
		Where:   "p.parent_id = ? AND p.post_id > ?",
		Args:    []any{rootID, afterID},
		OrderBy: "p.post_id ASC",
		Limit:   limit,
	})
}

// RecentReplies fetches the n most recent replies for each root in one query,
// keyed by root id.
func (t *PostTable) RecentReplies(ctx context.Context, rootIDs []int64, n int) (map[int64][]models.Post, error) {
	out := make(map[int64][]models.Post, len(rootIDs))
	if len(rootIDs) == 0 || n <= 0 {
		return out, nil
	}
	query := `
        WITH ranked AS (
            SELECT post_id, ROW_NUMBER() OVER (PARTITION BY parent_id ORDER BY latest_reply_date DESC, post_id DESC) AS rn
            FROM posts WHERE parent_id IN (` + placeholders(len(rootIDs)) + `)
        )
        SELECT ` + postColumns + ` FROM ` + postFrom + `
        JOIN ranked r ON r.post_id = p.post_id
        WHERE r.rn <= ?
        ORDER BY p.parent_id, p.latest_reply_date DESC, p.post_id DESC`
	args := append(int64Args(rootIDs), n)

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent replies: %w", err)
	}
	defer closeRows(rows, t.logger, "RecentReplies")

	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reply: %w", err)
		}
		out[*p.ParentID] = append(out[*p.ParentID], *p)
	}
	return out, rows.Err()
}

// ByUser lists a user's posts, newest first.
func (t *PostTable) ByUser(ctx context.Context, userID int64, skip, limit int) ([]models.Post, error) {
	return t.List(ctx, ListOpts{
		Where:   "p.user_id = ?",
		Args:    []any{userID},
		OrderBy: "p.date DESC, p.post_id DESC",
		Skip:    skip,
		Limit:   limit,
	})
}

// Search matches query as a case-insensitive substring of post titles. When
// boardName is set the search is scoped to that board, which must exist.
func (t *PostTable) Search(ctx context.Context, query, boardName string, skip, limit int) ([]models.Post, error) {
	where := `p.title LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if boardName != "" {
		board, err := t.boards.ByName(ctx, boardName)
		if err != nil {
			return nil, err
		}
		where += " AND p.board_id = ?"
		args = append(args, board.ID)
	}
	return t.List(ctx, ListOpts{
		Where:   where,
		Args:    args,
		OrderBy: "p.post_id ASC",
		Skip:    skip,
		Limit:   limit,
	})
}

// Bump records at as the newest activity in the thread rooted at rootID.
func (t *PostTable) Bump(ctx context.Context, rootID int64, at time.Time) error {
	_, err := t.Update(ctx, rootID, Fields{"latest_reply_date": at})
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

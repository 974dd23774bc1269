// Package posting runs every new post through the anti-abuse precheck,
// validation, persistence and the thread bump.
package posting

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"
	"twok/config"
	"twok/database"
	"twok/models"
	"twok/utils"
	"unicode/utf8"
)

// Pipeline holds what a post needs on its way into the database.
type Pipeline struct {
	db          *database.DatabaseService
	broker      *models.ReplyBroker
	minInterval time.Duration
	logger      *slog.Logger

	// Now is the clock for rate limiting and timestamps. Tests may replace it.
	Now func() time.Time
}

func New(db *database.DatabaseService, broker *models.ReplyBroker, minInterval time.Duration, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		db:          db,
		broker:      broker,
		minInterval: minInterval,
		logger:      logger,
		Now:         utils.GetTime,
	}
}

func (p *Pipeline) now() time.Time { return p.Now().UTC() }

// Precheck gates a post from ip. A banned requester is rejected whatever the
// ban's expiration or active flag say; a requester posting again within the
// minimum interval is throttled. The first post from an unknown ip creates
// its requester and always passes.
//
// The read and the update of last_post_time are not atomic, so two racing
// requests from one ip can both pass.
func (p *Pipeline) Precheck(ctx context.Context, ip string) (*models.Requester, error) {
	now := p.now()

	requester, err := p.db.Requesters.GetByMain(ctx, ip)
	if errors.Is(err, models.ErrNotFound) {
		requester, err = p.db.Requesters.InsertIfAbsent(ctx, database.Fields{
			"ip_address":     ip,
			"last_post_time": now,
		})
		if errors.Is(err, models.ErrConflict) {
			// Lost the race with a concurrent first post; fall through to the
			// regular checks against the row that won.
			requester, err = p.db.Requesters.GetByMain(ctx, ip)
		} else {
			return requester, err
		}
	}
	if err != nil {
		return nil, err
	}

	bans, err := p.db.Bans.ForRequester(ctx, requester.ID)
	if err != nil {
		return nil, err
	}
	if len(bans) > 0 {
		return nil, models.Forbidden("Banned: " + bans[0].Reason)
	}

	if now.Sub(requester.LastPostTime) < p.minInterval {
		return nil, models.TooManyRequests("Posting too fast")
	}

	return p.db.Requesters.Update(ctx, requester.ID, database.Fields{"last_post_time": now})
}

// Validate checks the shape of a post request before any lookups.
func Validate(in models.PostCreate) error {
	if strings.TrimSpace(in.BoardName) == "" {
		return models.Invalid("board_name is required")
	}
	if utf8.RuneCountInString(in.Title) > config.MaxTitleLen {
		return models.Invalid(fmt.Sprintf("Title must be at most %d characters", config.MaxTitleLen))
	}
	if utf8.RuneCountInString(in.Message) > config.MaxMessageLen {
		return models.Invalid(fmt.Sprintf("Message must be at most %d characters", config.MaxMessageLen))
	}
	return nil
}

// Create persists a post for requester, optionally owned by user, and bumps
// the thread it belongs to. parent_id is stored as given.
func (p *Pipeline) Create(ctx context.Context, requester *models.Requester, user *models.User, in models.PostCreate) (*models.Post, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	board, err := p.db.Boards.ByName(ctx, in.BoardName)
	if err != nil {
		return nil, err
	}
	var file *models.File
	if in.FileID != nil {
		if file, err = p.db.Files.GetByID(ctx, *in.FileID); err != nil {
			return nil, err
		}
	}

	now := p.now()
	fields := database.Fields{
		"title":             in.Title,
		"message":           html.EscapeString(in.Message),
		"date":              now,
		"latest_reply_date": now,
		"board_id":          board.ID,
	}
	if in.ParentID != nil {
		fields["parent_id"] = *in.ParentID
	}
	if user != nil {
		fields["user_id"] = user.ID
	}
	if requester != nil {
		fields["requester_id"] = requester.ID
	}

	post, err := p.db.Posts.InsertUnconditional(ctx, fields)
	if err != nil {
		return nil, err
	}

	if file != nil {
		if file, err = p.db.Files.Attach(ctx, file.ID, post.ID); err != nil {
			return nil, err
		}
		post.File = file
	}

	// Second write: a failure here leaves the post in place with a stale
	// thread timestamp.
	root, err := p.db.Posts.RootParent(ctx, post)
	if err != nil {
		p.logger.Error("Failed to resolve thread root", "post_id", post.ID, "error", err)
		return post, nil
	}
	if root.ID != post.ID {
		if err := p.db.Posts.Bump(ctx, root.ID, post.Date); err != nil {
			p.logger.Error("Failed to bump thread", "root_id", root.ID, "post_id", post.ID, "error", err)
			return post, nil
		}
		if p.broker != nil {
			p.broker.Publish(root.ID, post.ID)
		}
	}

	return post, nil
}

// Delete removes a post. Replies are left in place and the thread's
// latest_reply_date is not recomputed.
func (p *Pipeline) Delete(ctx context.Context, postID int64) error {
	return p.db.Posts.Delete(ctx, postID)
}

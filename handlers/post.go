package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
	"twok/config"
	"twok/models"
	"twok/posting"
	"twok/utils"
)

// HandleGetPost returns the thread containing the given post: its root with
// every direct reply under children.
func HandleGetPost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleGetPost")
	id, err := pathID(r, "postID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	thread, err := app.DB().Thread(r.Context(), id)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, thread, app)
}

// HandleCreatePost runs a new post through the posting pipeline. Posting
// anonymously is allowed; a valid bearer token attributes the post.
func HandleCreatePost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreatePost")
	ip := utils.GetIPAddress(r)

	var in models.PostCreate
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := posting.Validate(in); err != nil {
		respondError(w, err, app, logger)
		return
	}

	requester, err := app.Posting().Precheck(r.Context(), ip)
	if err != nil {
		logger.Warn("Post rejected by precheck", "ip", ip, "fingerprint", utils.Fingerprint(r), "reason", err.Error())
		respondError(w, err, app, logger)
		return
	}

	post, err := app.Posting().Create(r.Context(), requester, currentUser(r), in)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	logger.Info("Post created", "post_id", post.ID, "board", post.Board.Name, "ip", ip)
	respondJSON(w, http.StatusCreated, post, app)
}

// HandleDeletePost removes a single post. Replies stay behind.
func HandleDeletePost(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDeletePost")
	id, err := pathID(r, "postID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := app.Posting().Delete(r.Context(), id); err != nil {
		respondError(w, err, app, logger)
		return
	}
	admin := currentUser(r)
	app.DB().LogModAction(r.Context(), admin.Username, "delete_post", id, fmt.Sprintf("Post %d deleted", id))
	logger.Info("Post deleted", "post_id", id, "moderator", admin.Username)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStream pushes a thread over server-sent events: an init_post event
// with the whole thread, then an update_post event for every batch of new
// replies. New replies are announced by the reply broker; a ticker re-checks
// in case a notification was missed. The stream ends when the client goes
// away or the server shuts down.
func HandleStream(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleStream")
	ctx := r.Context()

	id, err := pathID(r, "postID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	thread, err := app.DB().Thread(ctx, id)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}

	sub := app.Broker().Subscribe(thread.ID)
	defer sub.Cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, rc, "init_post", thread); err != nil {
		logger.Warn("Failed to write initial event", "error", err)
		return
	}

	latest := thread.ID
	if n := len(thread.Children); n > 0 {
		latest = thread.Children[n-1].ID
	}

	interval := app.StreamPollInterval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Stream closed", "thread_id", thread.ID)
			return
		case <-sub.C:
		case <-ticker.C:
		}

		replies, err := app.DB().Posts.RepliesAfter(ctx, thread.ID, latest, config.StreamBatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to poll for replies", "thread_id", thread.ID, "error", err)
			continue
		}
		if len(replies) == 0 {
			continue
		}
		if err := app.DB().AttachFiles(ctx, replies); err != nil {
			logger.Error("Failed to load reply files", "thread_id", thread.ID, "error", err)
		}
		latest = replies[len(replies)-1].ID

		if err := writeEvent(w, rc, "update_post", replies); err != nil {
			logger.Debug("Stream write failed", "thread_id", thread.ID, "error", err)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, rc *http.ResponseController, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HandleSearchPosts matches the query against post titles, optionally
// within one board.
func HandleSearchPosts(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleSearchPosts")
	skip, limit := skipLimit(r, app)

	posts, err := app.DB().Posts.Search(r.Context(), chi.URLParam(r, "query"), chi.URLParam(r, "boardName"), skip, limit)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := app.DB().AttachFiles(r.Context(), posts); err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, posts, app)
}

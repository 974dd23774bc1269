package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"twok/config"
	"twok/database"
	"twok/models"
	"twok/utils"

	"github.com/go-chi/chi/v5"
)

// boardResponse is a freshly created board with its (empty) post list.
type boardResponse struct {
	models.Board
	Posts []models.Post `json:"posts"`
}

// HandleListBoards returns the name of every board.
func HandleListBoards(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleListBoards")
	boards, err := app.DB().Boards.All(r.Context())
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	names := make([]models.BoardRef, len(boards))
	for i, b := range boards {
		names[i] = models.BoardRef{Name: b.Name}
	}
	respondJSON(w, http.StatusOK, names, app)
}

// HandleCreateBoard creates a board; names are unique.
func HandleCreateBoard(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleCreateBoard")

	var in models.BoardCreate
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, err, app, logger)
		return
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > config.MaxBoardLen {
		respondError(w, models.Invalid(fmt.Sprintf("Board name must be between 1 and %d characters", config.MaxBoardLen)), app, logger)
		return
	}

	board, err := app.DB().Boards.InsertIfAbsent(r.Context(), database.Fields{"name": name})
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	logger.Info("Board created", "board", board.Name)
	respondJSON(w, http.StatusCreated, boardResponse{Board: *board, Posts: []models.Post{}}, app)
}

// HandleBoardPosts returns one page of a board's threads with reply previews.
func HandleBoardPosts(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleBoardPosts")
	page := utils.ParsePage(r.URL.Query().Get("page"))

	posts, err := app.DB().BoardPage(r.Context(), chi.URLParam(r, "boardName"), page)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, posts, app)
}

// HandlePageCount returns the number of listing pages of a board.
func HandlePageCount(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandlePageCount")
	count, err := app.DB().Boards.PageCount(r.Context(), chi.URLParam(r, "boardName"))
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, count, app)
}

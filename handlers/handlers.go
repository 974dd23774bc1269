// twok/handlers/handlers.go

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"
	"twok/auth"
	"twok/database"
	"twok/models"
	"twok/posting"
	"twok/utils"

	"github.com/go-chi/chi/v5"
)

// App is an interface that defines the dependencies our handlers need.
type App interface {
	DB() *database.DatabaseService
	Auth() *auth.Service
	Posting() *posting.Pipeline
	Broker() *models.ReplyBroker
	RateLimiter() *models.RateLimiter
	Storage() models.StorageService
	Logger() *slog.Logger
	UploadDir() string
	StreamPollInterval() time.Duration
	TrustProxyHeaders() bool
}

// errorBody is the shape of every error response.
type errorBody struct {
	Detail string `json:"detail"`
}

// respondJSON sends a JSON response with a given status code.
func respondJSON(w http.ResponseWriter, status int, payload interface{}, app App) {
	response, err := json.Marshal(payload)
	if err != nil {
		app.Logger().Error("Failed to marshal JSON payload", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		if _, werr := w.Write([]byte(`{"detail":"Failed to marshal JSON response"}`)); werr != nil {
			app.Logger().Error("Failed to write internal server error response", "error", werr)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		app.Logger().Error("Failed to write JSON response", "error", err)
	}
}

// respondDetail sends {"detail": msg}.
func respondDetail(w http.ResponseWriter, status int, msg string, app App) {
	respondJSON(w, status, errorBody{Detail: msg}, app)
}

// respondError maps an error kind to its status code. Errors without a
// known kind are logged and reported as a bare 500.
func respondError(w http.ResponseWriter, err error, app App, logger *slog.Logger) {
	var status int
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, models.ErrUnauthorized):
		w.Header().Set("WWW-Authenticate", "Bearer")
		status = http.StatusUnauthorized
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrTooManyRequests):
		status = http.StatusTooManyRequests
	case errors.Is(err, models.ErrValidation):
		status = http.StatusUnprocessableEntity
	default:
		logger.Error("Request failed", "error", err)
		respondDetail(w, http.StatusInternalServerError, "Internal server error", app)
		return
	}
	logger.Warn("Request rejected", "status", status, "reason", err.Error())
	respondDetail(w, status, models.Message(err, http.StatusText(status)), app)
}

// decodeJSON reads a JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return models.Invalid("Request body is required")
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		return models.Invalid("Malformed JSON body")
	}
	return nil
}

// pathID parses a numeric URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		return 0, models.Invalid(name + " must be an integer")
	}
	return id, nil
}

// skipLimit turns the ?page= query parameter into an offset and page size.
func skipLimit(r *http.Request, app App) (int, int) {
	pageSize := app.DB().Boards.PageSize()
	return utils.Skip(utils.ParsePage(r.URL.Query().Get("page")), pageSize), pageSize
}

// MakeHandler adapts a handler that needs the App to an http.HandlerFunc.
func MakeHandler(app App, fn func(http.ResponseWriter, *http.Request, App)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, app)
	}
}

// HandleHealth reports that the process is up.
func HandleHealth(w http.ResponseWriter, r *http.Request, app App) {
	respondJSON(w, http.StatusOK, models.HealthCheck{Status: "OK", Time: utils.GetSQLTime()}, app)
}

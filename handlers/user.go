package handlers

import (
	"fmt"
	"net/http"
	"twok/auth"
	"twok/config"
	"twok/database"
	"twok/models"
	"twok/utils"
)

// HandleRegister creates an account and returns it with a fresh token.
func HandleRegister(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleRegister")

	var in models.UserCreate
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, err, app, logger)
		return
	}
	user, err := app.Auth().Register(r.Context(), in.Username, in.PlaintextPassword)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	token, err := app.Auth().IssueToken(user)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	logger.Info("User registered", "user_id", user.ID, "username", user.Username)
	respondJSON(w, http.StatusCreated, models.UserAndToken{User: user, JWT: token}, app)
}

// HandleToken exchanges form-encoded credentials for a bearer token.
func HandleToken(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleToken")

	if err := r.ParseForm(); err != nil {
		respondError(w, models.Invalid("Expected a form body"), app, logger)
		return
	}
	username, password := r.PostFormValue("username"), r.PostFormValue("password")
	if username == "" || password == "" {
		respondError(w, models.Invalid("username and password are required"), app, logger)
		return
	}

	user, err := app.Auth().Authenticate(r.Context(), username, password)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	token, err := app.Auth().IssueToken(user)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, token, app)
}

// HandleMe returns the authenticated user.
func HandleMe(w http.ResponseWriter, r *http.Request, app App) {
	respondJSON(w, http.StatusOK, currentUser(r), app)
}

// HandleResetPassword changes the caller's own password.
func HandleResetPassword(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleResetPassword")

	var in models.PasswordReset
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, err, app, logger)
		return
	}
	if _, err := app.Auth().ResetPassword(r.Context(), currentUser(r), in.PlaintextPassword); err != nil {
		respondError(w, err, app, logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUserPosts lists a user's posts. Only the user and admins may look.
func HandleUserPosts(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleUserPosts")
	ctx := r.Context()

	id, err := pathID(r, "userID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	target, err := app.DB().Users.GetByID(ctx, id)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	actor := currentUser(r)
	if !auth.CanViewProfile(actor.Role, actor.ID, target.ID) {
		respondError(w, models.Forbidden("Not authorized"), app, logger)
		return
	}

	skip, limit := skipLimit(r, app)
	posts, err := app.DB().Posts.ByUser(ctx, target.ID, skip, limit)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := app.DB().AttachFiles(ctx, posts); err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, posts, app)
}

// HandleDeleteUser removes an account. Its posts remain, unowned.
func HandleDeleteUser(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDeleteUser")
	ctx := r.Context()

	id, err := pathID(r, "userID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	target, err := app.DB().Users.GetByID(ctx, id)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := app.DB().Users.Delete(ctx, target.ID); err != nil {
		respondError(w, err, app, logger)
		return
	}
	admin := currentUser(r)
	app.DB().LogModAction(ctx, admin.Username, "delete_user", target.ID, "User "+target.Username+" deleted")
	logger.Info("User deleted", "user_id", target.ID, "moderator", admin.Username)
	w.WriteHeader(http.StatusNoContent)
}

// HandleBan bans the requester (IP) behind a post for BanDuration.
func HandleBan(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleBan")
	ctx := r.Context()

	var in models.BanCreate
	if err := decodeJSON(w, r, &in); err != nil {
		respondError(w, err, app, logger)
		return
	}
	if in.Reason == "" {
		respondError(w, models.Invalid("reason is required"), app, logger)
		return
	}

	post, err := app.DB().Posts.GetByID(ctx, in.Post.PostID)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if post.RequesterID == nil {
		respondError(w, models.NotFound("Requester not found"), app, logger)
		return
	}
	requester, err := app.DB().Requesters.GetByID(ctx, *post.RequesterID)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}

	now := utils.GetSQLTime()
	ban, err := app.DB().Bans.InsertUnconditional(ctx, database.Fields{
		"reason":       in.Reason,
		"date":         now,
		"expiration":   now.Add(config.BanDuration),
		"active":       true,
		"requester_id": requester.ID,
	})
	if err != nil {
		respondError(w, err, app, logger)
		return
	}

	admin := currentUser(r)
	app.DB().LogModAction(ctx, admin.Username, "ban", ban.ID,
		fmt.Sprintf("IP %s banned via post %d. Reason: %s", requester.IPAddress, post.ID, in.Reason))
	logger.Info("Requester banned", "ban_id", ban.ID, "ip", requester.IPAddress, "moderator", admin.Username)
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnban deletes a ban.
func HandleUnban(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleUnban")
	id, err := pathID(r, "banID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := app.DB().Bans.Delete(r.Context(), id); err != nil {
		respondError(w, err, app, logger)
		return
	}
	app.DB().LogModAction(r.Context(), currentUser(r).Username, "unban", id, fmt.Sprintf("Ban %d lifted", id))
	w.WriteHeader(http.StatusNoContent)
}

// HandleListBans pages through bans, newest first.
func HandleListBans(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleListBans")
	skip, limit := skipLimit(r, app)
	bans, err := app.DB().Bans.ListWithRequester(r.Context(), skip, limit)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, bans, app)
}

// HandleModLog pages through the moderation log, newest first.
func HandleModLog(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleModLog")
	skip, limit := skipLimit(r, app)
	actions, err := app.DB().ModActions(r.Context(), skip, limit)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	respondJSON(w, http.StatusOK, actions, app)
}

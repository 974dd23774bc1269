package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"twok/config"
	"twok/database"
	"twok/models"
	"twok/utils"

	"github.com/google/uuid"
)

// HandleUpload stores an uploaded file. Files are content addressed: a
// second upload of identical bytes is a conflict. The file may name the post
// it belongs to, or be attached later when a post references it.
func HandleUpload(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleUpload")
	ctx := r.Context()
	ip := utils.GetIPAddress(r)

	if !app.RateLimiter().Allow(ip) {
		logger.Warn("Upload rate limit exceeded", "ip", ip)
		respondError(w, models.TooManyRequests("Uploading too fast"), app, logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, config.MaxFileSize+1<<20)
	if err := r.ParseMultipartForm(config.MaxFileSize + 1024); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File is larger than the %dMB limit", config.MaxFileSize/1024/1024), app)
			return
		}
		respondError(w, models.Invalid("Expected a multipart form"), app, logger)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, models.Invalid("file is required"), app, logger)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Error("Failed to close upload file", "error", err)
		}
	}()

	limitedReader := &io.LimitedReader{R: file, N: config.MaxFileSize + 1}
	data, err := io.ReadAll(limitedReader)
	if err != nil {
		logger.Error("Could not read upload", "error", err)
		respondDetail(w, http.StatusInternalServerError, "Could not read file", app)
		return
	}
	if limitedReader.N == 0 {
		respondDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File is larger than the %dMB limit", config.MaxFileSize/1024/1024), app)
		return
	}
	if len(data) == 0 {
		respondError(w, models.Invalid("File is empty"), app, logger)
		return
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	fields := database.Fields{
		"file_name": filepath.Base(header.Filename),
		"file_hash": hash,
	}

	if raw := r.FormValue("post_id"); raw != "" {
		postID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, models.Invalid("post_id must be an integer"), app, logger)
			return
		}
		if _, err := app.DB().Posts.GetByID(ctx, postID); err != nil {
			respondError(w, err, app, logger)
			return
		}
		fields["post_id"] = postID
	}

	if _, err := app.DB().Files.GetByMain(ctx, hash); err == nil {
		respondError(w, models.Conflict("File already exists"), app, logger)
		return
	} else if !errors.Is(err, models.ErrNotFound) {
		respondError(w, err, app, logger)
		return
	}

	sniffed := http.DetectContentType(data)
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = sniffed
	}
	fields["content_type"] = contentType

	key := uuid.NewString()
	storagePath, err := app.Storage().SaveFile(ctx, key+strings.ToLower(filepath.Ext(header.Filename)), data, contentType)
	if err != nil {
		logger.Error("Failed to store upload", "error", err)
		respondDetail(w, http.StatusInternalServerError, "Could not store file", app)
		return
	}
	fields["storage_path"] = storagePath
	stored := []string{storagePath}

	// Thumbnails are best effort; the upload succeeds without one.
	if utils.ImageTypes[sniffed] {
		thumb, err := utils.MakeThumbnail(data, config.ThumbnailWidth, config.ThumbnailHeight, config.MaxWidth, config.MaxHeight)
		if err != nil {
			logger.Warn("Could not create thumbnail", "hash", hash, "error", err)
		} else if thumbPath, err := app.Storage().SaveFile(ctx, key+"_thumb.jpg", thumb, "image/jpeg"); err != nil {
			logger.Error("Failed to store thumbnail", "error", err)
		} else {
			fields["thumbnail_path"] = thumbPath
			stored = append(stored, thumbPath)
		}
	}

	record, err := app.DB().Files.InsertIfAbsent(ctx, fields)
	if err != nil {
		for _, path := range stored {
			if derr := app.Storage().DeleteFile(ctx, path); derr != nil {
				logger.Error("Failed to remove orphaned upload", "path", path, "error", derr)
			}
		}
		respondError(w, err, app, logger)
		return
	}
	logger.Info("File uploaded", "file_id", record.ID, "hash", hash, "size", len(data), "ip", ip)
	respondJSON(w, http.StatusCreated, record, app)
}

// HandleDeleteFile removes a file record and its stored objects.
func HandleDeleteFile(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDeleteFile")
	ctx := r.Context()

	id, err := pathID(r, "fileID")
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	file, err := app.DB().Files.GetByID(ctx, id)
	if err != nil {
		respondError(w, err, app, logger)
		return
	}
	if err := app.DB().Files.Delete(ctx, id); err != nil {
		respondError(w, err, app, logger)
		return
	}

	paths := []string{file.StoragePath}
	if file.ThumbnailPath != nil {
		paths = append(paths, *file.ThumbnailPath)
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := app.Storage().DeleteFile(ctx, path); err != nil {
			logger.Error("Failed to remove stored file", "path", path, "error", err)
		}
	}

	admin := currentUser(r)
	app.DB().LogModAction(ctx, admin.Username, "delete_file", id, fmt.Sprintf("File %s (%s) deleted", file.Name, file.Hash))
	w.WriteHeader(http.StatusNoContent)
}

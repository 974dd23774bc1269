package handlers

import (
	"net/http"
	"path/filepath"
)

// HandleDatabaseBackup writes a consistent copy of the live database to the
// backup directory.
func HandleDatabaseBackup(w http.ResponseWriter, r *http.Request, app App) {
	logger := app.Logger().With("handler", "HandleDatabaseBackup")
	backupPath, err := app.DB().BackupDatabase(r.Context())
	if err != nil {
		logger.Error("Failed to create database backup", "error", err)
		respondDetail(w, http.StatusInternalServerError, "Failed to create database backup", app)
		return
	}
	logger.Info("Database backup created successfully", "path", backupPath)
	app.DB().LogModAction(r.Context(), currentUser(r).Username, "database_backup", 0, backupPath)
	respondJSON(w, http.StatusCreated, map[string]string{"backup": filepath.Base(backupPath)}, app)
}

package database

import (
	"context"
	"database/sql"
	"log/slog"
	"twok/models"
)

type FileTable struct {
	*Table[models.File]
}

func newFileTable(db *sql.DB, logger *slog.Logger) *FileTable {
	return &FileTable{&Table[models.File]{
		db:         db,
		logger:     logger,
		label:      "File",
		name:       "files",
		selectFrom: "files",
		columns:    "file_id, file_name, file_hash, content_type, post_id, storage_path, thumbnail_path",
		idColumn:   "file_id",
		mainColumn: "file_hash",
		scan:       scanFile,
	}}
}

func scanFile(s scanner) (*models.File, error) {
	var (
		f           models.File
		storagePath sql.NullString
	)
	if err := s.Scan(&f.ID, &f.Name, &f.Hash, &f.ContentType, &f.PostID, &storagePath, &f.ThumbnailPath); err != nil {
		return nil, err
	}
	f.StoragePath = storagePath.String
	return &f, nil
}

// ForPosts returns the attached file of each post that has one, keyed by post id.
func (t *FileTable) ForPosts(ctx context.Context, postIDs []int64) (map[int64]*models.File, error) {
	out := make(map[int64]*models.File)
	if len(postIDs) == 0 {
		return out, nil
	}
	files, err := t.List(ctx, ListOpts{
		Where:   "post_id IN (" + placeholders(len(postIDs)) + ")",
		Args:    int64Args(postIDs),
		OrderBy: "file_id ASC",
	})
	if err != nil {
		return nil, err
	}
	for i := range files {
		f := &files[i]
		if _, seen := out[*f.PostID]; !seen {
			out[*f.PostID] = f
		}
	}
	return out, nil
}

// Attach points a file at a post. A file keeps only its latest association.
func (t *FileTable) Attach(ctx context.Context, fileID, postID int64) (*models.File, error) {
	return t.Update(ctx, fileID, Fields{"post_id": postID})
}

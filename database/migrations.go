// twok/database/migrations.go
package database

// migration represents a single database schema migration.
type migration struct {
	Version uint
	Query   string
}

// allMigrations holds all schema changes in order.
var allMigrations = []migration{
	{
		Version: 1,
		Query: `
-- Where the upload body lives, and its thumbnail for images
ALTER TABLE files ADD COLUMN storage_path TEXT;
ALTER TABLE files ADD COLUMN thumbnail_path TEXT;
		`,
	},
}

// twok/database/database.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"twok/models"
	"twok/utils"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// seedBoards are created on first start when the boards table is empty.
var seedBoards = []string{"tech", "board2", "board3"}

// Options tunes connection handling and seeding. Zero values fall back to
// single-attempt connects and the default page size.
type Options struct {
	MaxOpenConns    int
	ConnectAttempts int
	ConnectDelay    time.Duration
	PageSize        int
	AdminUsername   string
	AdminPassword   string
}

// DatabaseService is the central struct for all database operations.
type DatabaseService struct {
	DB     *sql.DB
	logger *slog.Logger
	dsn    string

	Users      *UserTable
	Boards     *BoardTable
	Posts      *PostTable
	Files      *FileTable
	Requesters *Table[models.Requester]
	Bans       *BanTable
}

// NormalizeDSN accepts the sqlite:// URL forms used by other deployments of
// the service and reduces them to a go-sqlite3 data source name. Foreign keys
// are switched on unless the caller says otherwise.
func NormalizeDSN(dsn string) string {
	for _, prefix := range []string{"sqlite:///", "sqlite://"} {
		if strings.HasPrefix(dsn, prefix) {
			dsn = strings.TrimPrefix(dsn, prefix)
			break
		}
	}
	if !strings.Contains(dsn, "_foreign_keys") && !strings.Contains(dsn, "_fk=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}
	return dsn
}

// InitDB connects to the database, runs migrations, and seeds default data.
func InitDB(dataSourceName string, logger *slog.Logger, opts Options) (*DatabaseService, error) {
	dsn := NormalizeDSN(dataSourceName)
	db, err := connect(dsn, logger, opts)
	if err != nil {
		return nil, err
	}

	// Run the base schema to ensure all tables exist.
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute base schema: %w", err)
	}

	// Run versioned migrations
	if err := runMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 15
	}
	boards := newBoardTable(db, logger, pageSize)
	ds := &DatabaseService{
		DB:         db,
		logger:     logger,
		dsn:        dsn,
		Users:      newUserTable(db, logger),
		Boards:     boards,
		Posts:      newPostTable(db, logger, boards),
		Files:      newFileTable(db, logger),
		Requesters: newRequesterTable(db, logger),
		Bans:       newBanTable(db, logger),
	}

	if err := ds.seed(context.Background(), opts); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database initialized.")
	return ds, nil
}

// connect opens the pool and pings it until the engine answers or the
// attempt budget runs out.
func connect(dsn string, logger *slog.Logger, opts Options) (*sql.DB, error) {
	attempts := opts.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		db, err := sql.Open("sqlite3", dsn)
		if err == nil {
			if opts.MaxOpenConns > 0 {
				db.SetMaxOpenConns(opts.MaxOpenConns)
			}
			if err = db.Ping(); err == nil {
				return db, nil
			}
			db.Close()
		}
		lastErr = err
		if attempt < attempts {
			logger.Warn("Database not ready, retrying", "attempt", attempt, "of", attempts, "delay", opts.ConnectDelay.String(), "error", err)
			time.Sleep(opts.ConnectDelay)
		}
	}
	return nil, fmt.Errorf("could not connect to database after %d attempts: %w", attempts, lastErr)
}

func (ds *DatabaseService) seed(ctx context.Context, opts Options) error {
	boardCount, err := ds.Boards.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count boards: %w", err)
	}
	if boardCount == 0 {
		for _, name := range seedBoards {
			if _, err := ds.Boards.InsertUnconditional(ctx, Fields{"name": name}); err != nil {
				return fmt.Errorf("failed to seed board %q: %w", name, err)
			}
		}
		ds.logger.Info("Seeded default boards", "boards", seedBoards)
	}

	if opts.AdminUsername == "" || opts.AdminPassword == "" {
		return nil
	}
	userCount, err := ds.Users.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if userCount > 0 {
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	_, err = ds.Users.InsertIfAbsent(ctx, Fields{
		"username":      opts.AdminUsername,
		"password_hash": string(hash),
		"user_role":     models.RoleAdmin,
	})
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	ds.logger.Info("Seeded admin user", "username", opts.AdminUsername)
	return nil
}

// BackupDatabase performs an online backup of the live SQLite database using VACUUM INTO.
func (ds *DatabaseService) BackupDatabase(ctx context.Context) (string, error) {
	if utils.BackupDir == "" {
		return "", fmt.Errorf("backup directory is not configured")
	}
	if err := utils.EnsureDir(utils.BackupDir); err != nil {
		return "", fmt.Errorf("could not create backup directory %s: %w", utils.BackupDir, err)
	}

	timestamp := utils.GetSQLTime().Format("2006-01-02_15-04-05.000")
	backupPath := filepath.Join(utils.BackupDir, fmt.Sprintf("twok_backup_%s.db", timestamp))

	ds.logger.Info("Starting database backup", "destination", backupPath)

	if _, err := ds.DB.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		if removeErr := os.Remove(backupPath); removeErr != nil && !os.IsNotExist(removeErr) {
			ds.logger.Error("Failed to remove incomplete backup file", "path", backupPath, "error", removeErr)
		}
		return "", fmt.Errorf("VACUUM INTO command failed: %w", err)
	}

	return backupPath, nil
}

// runMigrations applies all un-applied migrations.
func runMigrations(db *sql.DB, logger *slog.Logger) error {
	var latestVersion uint
	err := db.QueryRow("SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1").Scan(&latestVersion)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("could not get db version: %w", err)
	}

	logger.Info("Current database schema version", "version", latestVersion)

	for _, m := range allMigrations {
		if m.Version <= latestVersion {
			continue
		}
		logger.Info("Applying migration", "version", m.Version)
		tx, err := db.Begin()
		if err != nil {
			return err
		}

		if _, err := tx.Exec(m.Query); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to apply migration v%d: %w", m.Version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)", m.Version, utils.GetSQLTime()); err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				logger.Error("Failed to rollback migration record", "version", m.Version, "error", rerr)
			}
			return fmt.Errorf("failed to record migration v%d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration v%d: %w", m.Version, err)
		}
		logger.Info("Successfully applied migration", "version", m.Version)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func isNotFound(err error) bool { return errors.Is(err, models.ErrNotFound) }

func closeRows(rows *sql.Rows, logger *slog.Logger, where string) {
	if err := rows.Close(); err != nil {
		logger.Error("Failed to close rows", "in", where, "error", err)
	}
}

// twok/database/database_test.go
package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
	"twok/models"
	"twok/utils"
)

// setupTestDB creates a fresh SQLite database in a temp dir for one test.
func setupTestDB(t *testing.T) *DatabaseService {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	dbPath := filepath.Join(t.TempDir(), "test.db?_journal_mode=WAL")
	ds, err := InitDB(dbPath, logger, Options{
		PageSize:      2,
		AdminUsername: "admin",
		AdminPassword: "admin-password",
	})
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { ds.DB.Close() })
	return ds
}

// insertPost writes a post directly, bypassing the posting pipeline.
func insertPost(t *testing.T, ds *DatabaseService, boardID int64, parentID *int64, title string, at time.Time) *models.Post {
	t.Helper()
	fields := Fields{
		"title":             title,
		"message":           "message for " + title,
		"date":              at,
		"latest_reply_date": at,
		"board_id":          boardID,
	}
	if parentID != nil {
		fields["parent_id"] = *parentID
	}
	post, err := ds.Posts.InsertUnconditional(context.Background(), fields)
	if err != nil {
		t.Fatalf("Failed to insert post %q: %v", title, err)
	}
	return post
}

func mustBoard(t *testing.T, ds *DatabaseService, name string) *models.Board {
	t.Helper()
	board, err := ds.Boards.ByName(context.Background(), name)
	if err != nil {
		t.Fatalf("Failed to get board %q: %v", name, err)
	}
	return board
}

// TestInitDB checks if the database is seeded with default data correctly.
func TestInitDB(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()

	boards, err := ds.Boards.All(ctx)
	if err != nil {
		t.Fatalf("Failed to list boards: %v", err)
	}
	if len(boards) != 3 || boards[0].Name != "tech" {
		t.Errorf("Expected seeded boards [tech board2 board3], got %+v", boards)
	}

	admin, err := ds.Users.ByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("Expected admin user to be seeded: %v", err)
	}
	if admin.Role != models.RoleAdmin {
		t.Errorf("Expected admin role, got %q", admin.Role)
	}
	if admin.PasswordHash == "admin-password" {
		t.Error("Admin password was stored in plain text")
	}
}

// TestInitDBIsIdempotent reopens an existing database file.
func TestInitDBIsIdempotent(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dbPath := filepath.Join(t.TempDir(), "twice.db")
	opts := Options{AdminUsername: "admin", AdminPassword: "pw"}

	first, err := InitDB(dbPath, logger, opts)
	if err != nil {
		t.Fatalf("first InitDB: %v", err)
	}
	first.DB.Close()

	second, err := InitDB(dbPath, logger, opts)
	if err != nil {
		t.Fatalf("second InitDB: %v", err)
	}
	defer second.DB.Close()

	n, err := second.Boards.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Expected 3 boards after reopening, got %d", n)
	}
}

// TestMigrations verifies that our schema migrations run successfully.
func TestMigrations(t *testing.T) {
	ds := setupTestDB(t)

	rows, err := ds.DB.Query("SELECT storage_path, thumbnail_path FROM files LIMIT 1")
	if err != nil {
		t.Fatalf("Could not query for migrated columns in 'files' table: %v", err)
	}
	rows.Close()

	var version int
	if err := ds.DB.QueryRow("SELECT version FROM schema_migrations WHERE version = 1").Scan(&version); err != nil {
		t.Fatalf("Migration version 1 was not recorded in schema_migrations table: %v", err)
	}
}

func TestNormalizeDSN(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"twok.db", "twok.db?_foreign_keys=on"},
		{"sqlite:///twok.db", "twok.db?_foreign_keys=on"},
		{"sqlite://data/twok.db", "data/twok.db?_foreign_keys=on"},
		{"file:twok.db?_journal_mode=WAL", "file:twok.db?_journal_mode=WAL&_foreign_keys=on"},
		{"file:twok.db?_foreign_keys=off", "file:twok.db?_foreign_keys=off"},
	}
	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			if got := NormalizeDSN(tc.in); got != tc.want {
				t.Errorf("NormalizeDSN(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestInsertIfAbsent(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()

	board, err := ds.Boards.InsertIfAbsent(ctx, Fields{"name": "fresh"})
	if err != nil {
		t.Fatalf("Expected new board to be created: %v", err)
	}
	if board.ID == 0 || board.Name != "fresh" {
		t.Errorf("Unexpected board returned: %+v", board)
	}

	_, err = ds.Boards.InsertIfAbsent(ctx, Fields{"name": "fresh"})
	if !errors.Is(err, models.ErrConflict) {
		t.Fatalf("Expected conflict for duplicate board, got %v", err)
	}
	if msg := models.Message(err, ""); msg != "Board already exists" {
		t.Errorf("Unexpected conflict message %q", msg)
	}

	_, err = ds.Users.InsertIfAbsent(ctx, Fields{"username": "admin", "password_hash": "x", "user_role": models.RoleNone})
	if models.Message(err, "") != "User already registered" {
		t.Errorf("Expected user conflict message, got %v", err)
	}

	// The UNIQUE constraint backs up a blind insert too.
	_, err = ds.Boards.InsertUnconditional(ctx, Fields{"name": "fresh"})
	if !errors.Is(err, models.ErrConflict) {
		t.Errorf("Expected blind duplicate insert to surface as conflict, got %v", err)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()

	user, err := ds.Users.InsertUnconditional(ctx, Fields{"username": "alice", "password_hash": "h1", "user_role": models.RoleNone})
	if err != nil {
		t.Fatal(err)
	}
	updated, err := ds.Users.Update(ctx, user.ID, Fields{"password_hash": "h2"})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.PasswordHash != "h2" || updated.Username != "alice" {
		t.Errorf("Unexpected user after update: %+v", updated)
	}

	if err := ds.Users.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := ds.Users.GetByID(ctx, user.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound after delete, got %v", err)
	}
	if err := ds.Users.Delete(ctx, user.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound deleting twice, got %v", err)
	}
	if _, err := ds.Users.Update(ctx, user.ID, Fields{"password_hash": "h3"}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound updating a deleted row, got %v", err)
	}
}

func TestPageCountFormula(t *testing.T) {
	testCases := []struct {
		roots, pageSize, want int
	}{
		{0, 15, 0},
		{1, 15, 1},
		{14, 15, 1},
		{15, 15, 2},
		{16, 15, 2},
		{30, 15, 3},
	}
	for _, tc := range testCases {
		if got := pageCount(tc.roots, tc.pageSize); got != tc.want {
			t.Errorf("pageCount(%d, %d) = %d, want %d", tc.roots, tc.pageSize, got, tc.want)
		}
	}
}

func TestBoardPageCount(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	board := mustBoard(t, ds, "tech")
	now := time.Now().UTC()

	count, err := ds.Boards.PageCount(ctx, "tech")
	if err != nil || count != 0 {
		t.Fatalf("Expected 0 pages for an empty board, got %d (%v)", count, err)
	}

	root := insertPost(t, ds, board.ID, nil, "root-1", now)
	// Replies never count towards pages.
	insertPost(t, ds, board.ID, &root.ID, "reply", now)
	insertPost(t, ds, board.ID, &root.ID, "reply", now)
	if count, _ = ds.Boards.PageCount(ctx, "tech"); count != 1 {
		t.Errorf("Expected 1 page for one root, got %d", count)
	}

	insertPost(t, ds, board.ID, nil, "root-2", now)
	if count, _ = ds.Boards.PageCount(ctx, "tech"); count != 2 {
		t.Errorf("Expected 2 pages for two roots with page size 2, got %d", count)
	}

	if _, err := ds.Boards.PageCount(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound for missing board, got %v", err)
	}
}

func TestRootParent(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	board := mustBoard(t, ds, "tech")
	now := time.Now().UTC()

	root := insertPost(t, ds, board.ID, nil, "root", now)
	reply := insertPost(t, ds, board.ID, &root.ID, "reply", now)
	nested := insertPost(t, ds, board.ID, &reply.ID, "nested", now)

	for _, p := range []*models.Post{root, reply, nested} {
		got, err := ds.Posts.RootParent(ctx, p)
		if err != nil {
			t.Fatalf("RootParent(%d): %v", p.ID, err)
		}
		if got.ID != root.ID {
			t.Errorf("RootParent(%d) = %d, want %d", p.ID, got.ID, root.ID)
		}
	}

	// Deleting the root leaves the reply with a dangling parent reference.
	if err := ds.Posts.Delete(ctx, root.ID); err != nil {
		t.Fatal(err)
	}
	orphan, err := ds.Posts.GetByID(ctx, reply.ID)
	if err != nil {
		t.Fatalf("Expected orphaned reply to remain retrievable: %v", err)
	}
	if orphan.ParentID == nil || *orphan.ParentID != root.ID {
		t.Errorf("Expected dangling parent reference %d, got %v", root.ID, orphan.ParentID)
	}
	got, err := ds.Posts.RootParent(ctx, nested)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != reply.ID {
		t.Errorf("Expected ascent to stop at %d, got %d", reply.ID, got.ID)
	}
}

func TestSearch(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	tech := mustBoard(t, ds, "tech")
	other := mustBoard(t, ds, "board2")
	now := time.Now().UTC()

	insertPost(t, ds, tech.ID, nil, "Golang tips", now)
	insertPost(t, ds, tech.ID, nil, "rust vs go", now)
	insertPost(t, ds, other.ID, nil, "GOPHERS", now)
	insertPost(t, ds, other.ID, nil, "100% real", now)

	testCases := []struct {
		name  string
		query string
		board string
		want  int
	}{
		{"case insensitive across boards", "go", "", 3},
		{"scoped to board", "go", "tech", 2},
		{"no match", "python", "", 0},
		{"percent is literal", "%", "", 1},
		{"underscore is literal", "_", "", 0},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			posts, err := ds.Posts.Search(ctx, tc.query, tc.board, 0, 15)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(posts) != tc.want {
				t.Errorf("Expected %d results, got %d", tc.want, len(posts))
			}
		})
	}

	if _, err := ds.Posts.Search(ctx, "go", "missing", 0, 15); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound for missing board, got %v", err)
	}
	page, err := ds.Posts.Search(ctx, "go", "", 2, 15)
	if err != nil || len(page) != 1 {
		t.Errorf("Expected skip to leave 1 result, got %d (%v)", len(page), err)
	}
}

func TestBoardPage(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	board := mustBoard(t, ds, "tech")
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	cold := insertPost(t, ds, board.ID, nil, "cold", base)
	hot := insertPost(t, ds, board.ID, nil, "hot", base.Add(time.Minute))
	oldest := insertPost(t, ds, board.ID, nil, "oldest", base.Add(-time.Hour))

	var replyIDs []int64
	for i := 1; i <= 5; i++ {
		r := insertPost(t, ds, board.ID, &cold.ID, "reply", base.Add(time.Duration(i)*time.Hour))
		replyIDs = append(replyIDs, r.ID)
	}
	if err := ds.Posts.Bump(ctx, cold.ID, base.Add(5*time.Hour)); err != nil {
		t.Fatal(err)
	}

	page1, err := ds.BoardPage(ctx, "tech", 1)
	if err != nil {
		t.Fatalf("BoardPage failed: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != cold.ID || page1[1].ID != hot.ID {
		t.Fatalf("Unexpected page 1 ordering: %+v", page1)
	}
	children := page1[0].Children
	if len(children) != 3 {
		t.Fatalf("Expected a 3 reply preview, got %d", len(children))
	}
	if children[0].ID != replyIDs[4] || children[2].ID != replyIDs[2] {
		t.Errorf("Expected newest replies first, got %d..%d", children[0].ID, children[2].ID)
	}
	if len(page1[1].Children) != 0 {
		t.Errorf("Expected no children on a thread without replies")
	}

	page2, err := ds.BoardPage(ctx, "tech", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 1 || page2[0].ID != oldest.ID {
		t.Errorf("Unexpected page 2: %+v", page2)
	}

	if _, err := ds.BoardPage(ctx, "nope", 1); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound for missing board, got %v", err)
	}
}

func TestThread(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	board := mustBoard(t, ds, "tech")
	now := time.Now().UTC()

	root := insertPost(t, ds, board.ID, nil, "root", now)
	var last *models.Post
	for i := 0; i < 5; i++ {
		last = insertPost(t, ds, board.ID, &root.ID, "reply", now)
	}
	file, err := ds.Files.InsertUnconditional(ctx, Fields{
		"file_name": "a.png", "file_hash": "abc", "content_type": "image/png", "storage_path": "/uploads/a.png",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ds.Files.Attach(ctx, file.ID, last.ID); err != nil {
		t.Fatal(err)
	}

	thread, err := ds.Thread(ctx, last.ID)
	if err != nil {
		t.Fatalf("Thread failed: %v", err)
	}
	if thread.ID != root.ID {
		t.Errorf("Expected thread to resolve to root %d, got %d", root.ID, thread.ID)
	}
	if len(thread.Children) != 5 {
		t.Fatalf("Expected all 5 replies, got %d", len(thread.Children))
	}
	if f := thread.Children[4].File; f == nil || f.Hash != "abc" {
		t.Errorf("Expected last reply to carry its file, got %+v", f)
	}
	if thread.Board.Name != "tech" {
		t.Errorf("Expected board name to be joined, got %q", thread.Board.Name)
	}

	if _, err := ds.Thread(ctx, 9999); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Expected NotFound for missing post, got %v", err)
	}
}

func TestRepliesAfter(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	board := mustBoard(t, ds, "tech")
	now := time.Now().UTC()

	root := insertPost(t, ds, board.ID, nil, "root", now)
	first := insertPost(t, ds, board.ID, &root.ID, "a", now)
	insertPost(t, ds, board.ID, &root.ID, "b", now)
	insertPost(t, ds, board.ID, &root.ID, "c", now)

	replies, err := ds.Posts.RepliesAfter(ctx, root.ID, first.ID, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(replies) != 2 || replies[0].Title != "b" {
		t.Errorf("Unexpected replies after %d: %+v", first.ID, replies)
	}
	limited, _ := ds.Posts.RepliesAfter(ctx, root.ID, 0, 1)
	if len(limited) != 1 {
		t.Errorf("Expected limit to apply, got %d", len(limited))
	}
}

func TestBansWithRequester(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	req, err := ds.Requesters.InsertIfAbsent(ctx, Fields{"ip_address": "10.0.0.1", "last_post_time": now})
	if err != nil {
		t.Fatal(err)
	}
	for _, reason := range []string{"spam", "flood"} {
		_, err := ds.Bans.InsertUnconditional(ctx, Fields{
			"reason": reason, "date": now, "expiration": now.Add(7 * 24 * time.Hour),
			"active": true, "requester_id": req.ID,
		})
		if err != nil {
			t.Fatal(err)
		}
		now = now.Add(time.Second)
	}

	own, err := ds.Bans.ForRequester(ctx, req.ID)
	if err != nil || len(own) != 2 || own[0].Reason != "spam" {
		t.Fatalf("Unexpected bans for requester: %+v (%v)", own, err)
	}

	listed, err := ds.Bans.ListWithRequester(ctx, 0, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(listed) != 2 || listed[0].Reason != "flood" {
		t.Fatalf("Expected newest ban first, got %+v", listed)
	}
	if listed[0].Requester == nil || listed[0].Requester.IPAddress != "10.0.0.1" {
		t.Errorf("Expected ban to carry its requester, got %+v", listed[0].Requester)
	}
	if !listed[0].Active {
		t.Error("Expected ban to be active")
	}
}

func TestModActions(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()

	ds.LogModAction(ctx, "admin", "delete_post", 7, "Post 7 deleted")
	ds.LogModAction(ctx, "admin", "ban", 3, "Reason: spam")

	actions, err := ds.ModActions(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 || actions[0].Action != "ban" {
		t.Fatalf("Expected newest action first, got %+v", actions)
	}
	if actions[0].TargetID == nil || *actions[0].TargetID != 3 {
		t.Errorf("Unexpected target id %v", actions[0].TargetID)
	}
}

// TestBackupDatabase verifies the VACUUM INTO backup method.
func TestBackupDatabase(t *testing.T) {
	ds := setupTestDB(t)
	ctx := context.Background()

	if _, err := ds.Boards.InsertUnconditional(ctx, Fields{"name": "backed-up"}); err != nil {
		t.Fatal(err)
	}

	backupDir := t.TempDir()
	previous := utils.BackupDir
	utils.BackupDir = backupDir
	t.Cleanup(func() { utils.BackupDir = previous })

	backupPath, err := ds.BackupDatabase(ctx)
	if err != nil {
		t.Fatalf("BackupDatabase failed: %v", err)
	}
	if filepath.Dir(backupPath) != backupDir {
		t.Errorf("Backup written to %s, expected it inside %s", backupPath, backupDir)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("Backup file does not exist: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	restored, err := InitDB(backupPath, logger, Options{})
	if err != nil {
		t.Fatalf("Failed to open backup: %v", err)
	}
	defer restored.DB.Close()
	if _, err := restored.Boards.ByName(ctx, "backed-up"); err != nil {
		t.Errorf("Expected backup to contain the inserted board: %v", err)
	}
}

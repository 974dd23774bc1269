package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"twok/auth"
	"twok/database"
	"twok/models"
	"twok/posting"
	"twok/utils"
)

// MockApplication holds dependencies for handler tests.
type MockApplication struct {
	db           *database.DatabaseService
	auth         *auth.Service
	posting      *posting.Pipeline
	broker       *models.ReplyBroker
	rateLimiter  *models.RateLimiter
	storage      models.StorageService
	uploadDir    string
	logger       *slog.Logger
	pollInterval time.Duration
	clock        *testClock
	trustProxy   bool
}

func (a *MockApplication) DB() *database.DatabaseService     { return a.db }
func (a *MockApplication) Auth() *auth.Service               { return a.auth }
func (a *MockApplication) Posting() *posting.Pipeline        { return a.posting }
func (a *MockApplication) Broker() *models.ReplyBroker       { return a.broker }
func (a *MockApplication) RateLimiter() *models.RateLimiter  { return a.rateLimiter }
func (a *MockApplication) Storage() models.StorageService    { return a.storage }
func (a *MockApplication) Logger() *slog.Logger              { return a.logger }
func (a *MockApplication) UploadDir() string                 { return a.uploadDir }
func (a *MockApplication) StreamPollInterval() time.Duration { return a.pollInterval }
func (a *MockApplication) TrustProxyHeaders() bool           { return a.trustProxy }

// testClock drives the posting pipeline's rate limiter.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

const (
	testAdminUsername = "admin"
	testAdminPassword = "admin-password"
)

// setupTestApp creates a full application stack with a test database for integration testing.
func setupTestApp(t *testing.T) *MockApplication {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	dir := t.TempDir()

	dbService, err := database.InitDB(filepath.Join(dir, "test.db?_journal_mode=WAL"), logger, database.Options{
		PageSize:      15,
		AdminUsername: testAdminUsername,
		AdminPassword: testAdminPassword,
	})
	if err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}

	uploadDir := filepath.Join(dir, "uploads")
	if err := utils.EnsureDir(uploadDir); err != nil {
		t.Fatalf("Failed to create temp upload dir: %v", err)
	}

	clock := &testClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	broker := models.NewReplyBroker()
	pipeline := posting.New(dbService, broker, time.Second, logger)
	pipeline.Now = clock.Now

	app := &MockApplication{
		db:           dbService,
		auth:         auth.NewService(dbService.Users, "test-secret"),
		posting:      pipeline,
		broker:       broker,
		rateLimiter:  models.NewRateLimiter(time.Minute, 3, time.Hour, 24*time.Hour),
		storage:      &utils.LocalStorage{UploadDir: uploadDir},
		uploadDir:    uploadDir,
		logger:       logger,
		pollInterval: 50 * time.Millisecond,
		clock:        clock,
	}

	t.Cleanup(func() {
		app.rateLimiter.Close()
		app.db.DB.Close()
	})

	return app
}

// request is one call against the router.
type request struct {
	method      string
	path        string
	body        string
	contentType string
	token       string
	ip          string
	headers     map[string]string
}

func do(t *testing.T, app *MockApplication, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if req.body != "" {
		body = strings.NewReader(req.body)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	if req.body != "" {
		ct := req.contentType
		if ct == "" {
			ct = "application/json"
		}
		r.Header.Set("Content-Type", ct)
	}
	for k, v := range req.headers {
		r.Header.Set(k, v)
	}
	if req.token != "" {
		r.Header.Set("Authorization", "Bearer "+req.token)
	}
	ip := req.ip
	if ip == "" {
		ip = "192.0.2.1"
	}
	r.RemoteAddr = ip + ":40000"

	rr := httptest.NewRecorder()
	SetupRouter(app).ServeHTTP(rr, r)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("Expected status %d, got %d. Body: %s", want, rr.Code, rr.Body.String())
	}
}

// loginAs returns a bearer token for an existing user.
func loginAs(t *testing.T, app *MockApplication, username, password string) string {
	t.Helper()
	user, err := app.auth.Authenticate(context.Background(), username, password)
	if err != nil {
		t.Fatalf("Failed to authenticate %s: %v", username, err)
	}
	token, err := app.auth.IssueToken(user)
	if err != nil {
		t.Fatal(err)
	}
	return token.AccessToken
}

func adminToken(t *testing.T, app *MockApplication) string {
	return loginAs(t, app, testAdminUsername, testAdminPassword)
}

// register creates a user through the API and returns it with its token.
func register(t *testing.T, app *MockApplication, username string) (models.User, string) {
	t.Helper()
	rr := do(t, app, request{method: "POST", path: "/user", body: `{"username":"` + username + `","plaintext_password":"secret-` + username + `"}`})
	expectStatus(t, rr, http.StatusCreated)
	resp := decode[models.UserAndToken](t, rr)
	return *resp.User, resp.JWT.AccessToken
}

// createPost posts through the API from ip and returns the created post.
func createPost(t *testing.T, app *MockApplication, ip, token, body string) models.Post {
	t.Helper()
	rr := do(t, app, request{method: "POST", path: "/post", body: body, ip: ip, token: token})
	expectStatus(t, rr, http.StatusCreated)
	return decode[models.Post](t, rr)
}

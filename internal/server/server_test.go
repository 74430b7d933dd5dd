package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"academy/internal/config"
	"academy/internal/models"
	"academy/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	s   *Server
	app *fiber.App
	db  *gorm.DB
	mr  *miniredis.Miniredis
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:             "test-secret-that-is-long-enough-for-hs256",
		JWTIssuer:             "academy-api",
		JWTAudience:           "academy-app",
		JWTTTLHours:           1,
		Env:                   "test",
		FeatureFlags:          "ai_assistant=on,chat_push=on",
		PushMode:              "log",
		ChatMaxConnsPerUser:   4,
		ChatMessagesPerSecond: 50,
	}
}

// newTestServer wires a full server on SQLite and miniredis with the relay
// subscribed, so published frames reach local sockets.
func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)
	mr, rdb := testutil.NewTestRedis(t)

	s, err := NewServerWithDeps(testConfig(), db, rdb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	require.NoError(t, s.StartRealtime(ctx))
	t.Cleanup(func() {
		cancel()
		_ = s.chatHub.Shutdown(context.Background())
	})

	return &testEnv{s: s, app: s.App(), db: db, mr: mr}
}

func (e *testEnv) token(t *testing.T, user *models.User) string {
	t.Helper()
	tok, _, err := e.s.tokens.Issue(user.ID, time.Now())
	require.NoError(t, err)
	return tok
}

// do sends a JSON request and decodes a JSON response into out when non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestServer(t)

	var live map[string]any
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/live", "", nil, &live))
	assert.Equal(t, "up", live["status"])

	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "", nil, &ready))
	assert.Equal(t, "healthy", ready.Status)
	assert.Equal(t, "healthy", ready.Checks["database"])
	assert.Equal(t, "healthy", ready.Checks["redis"])
}

func TestReadiness_WithoutRedis(t *testing.T) {
	s, err := NewServerWithDeps(testConfig(), testutil.NewTestDB(t), nil)
	require.NoError(t, err)
	env := &testEnv{s: s, app: s.App()}

	var ready struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "", nil, &ready))
	assert.Equal(t, "disabled", ready.Checks["redis"])
}

func TestUnknownRouteIs404(t *testing.T) {
	env := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/nope", "", nil, nil))
}

func TestAdmin_UpdateAccessAndFlags(t *testing.T) {
	env := newTestServer(t)
	admin := testutil.CreateUser(t, env.db, "root", testutil.WithRole(models.RoleAdmin))
	student := testutil.CreateUser(t, env.db, "olga")

	var updated models.User
	status := env.do(t, http.MethodPut, "/api/admin/users/"+itoa(student.ID)+"/access", env.token(t, admin),
		map[string]any{"access_level": "premium", "subscription_status": "active"}, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, models.AccessPremium, updated.AccessLevel)
	assert.Equal(t, models.SubscriptionActive, updated.SubscriptionStatus)

	var bad models.ErrorResponse
	status = env.do(t, http.MethodPut, "/api/admin/users/"+itoa(student.ID)+"/access", env.token(t, admin),
		map[string]any{"access_level": "gold"}, &bad)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, models.CodeValidation, bad.Code)

	var flags struct {
		Flags    map[string]string `json:"flags"`
		Resolved map[string]bool   `json:"resolved"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/admin/feature-flags", env.token(t, admin), nil, &flags))
	assert.True(t, flags.Resolved["ai_assistant"])

	assert.Equal(t, http.StatusForbidden,
		env.do(t, http.MethodGet, "/api/admin/users", env.token(t, student), nil, nil))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestCORS_PreflightAllowsDevOrigin(t *testing.T) {
	env := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/protocols", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSwaggerDocServed(t *testing.T) {
	env := newTestServer(t)

	resp, err := env.app.Test(httptest.NewRequest(http.MethodGet, "/api/swagger/doc.json", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Massage Academy API", doc.Info.Title)
	assert.Equal(t, "/api", doc.BasePath)
	assert.Contains(t, doc.Paths["/conversations/{id}/messages"], "get")
	assert.Contains(t, doc.Paths["/conversations/{id}"], "delete")
}

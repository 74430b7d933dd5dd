package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"academy/internal/cache"
	"academy/internal/models"
	"academy/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	env := newTestServer(t)

	var registered authResponse
	status := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "mihai",
		"email":    "mihai@academy.test",
		"password": testutil.TestPassword,
		"language": "ro",
	}, &registered)
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, registered.Token)
	require.NotNil(t, registered.User)
	assert.Equal(t, models.AccessFree, registered.User.EffectiveTier)
	assert.False(t, registered.User.CanUseChat)

	var dup models.ErrorResponse
	status = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "mihai2",
		"email":    "MIHAI@academy.test",
		"password": testutil.TestPassword,
	}, &dup)
	assert.Equal(t, http.StatusConflict, status)

	var login authResponse
	status = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "mihai@academy.test",
		"password": testutil.TestPassword,
	}, &login)
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, login.Token)

	status = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "mihai@academy.test",
		"password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestAuthRequired(t *testing.T) {
	env := newTestServer(t)
	user := testutil.CreateUser(t, env.db, "irina", testutil.WithAccess(models.AccessBasic))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Token abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + env.token(t, user), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := env.app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuthRequired_ForeignIssuer(t *testing.T) {
	env := newTestServer(t)
	user := testutil.CreateUser(t, env.db, "ion")

	other := testConfig()
	other.JWTIssuer = "someone-else"
	s, err := NewServerWithDeps(other, env.db, nil)
	require.NoError(t, err)
	tok, _, err := s.tokens.Issue(user.ID, time.Now())
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me", tok, nil, nil))
}

func TestMe_ReportsEffectiveTier(t *testing.T) {
	env := newTestServer(t)
	expired := testutil.CreateUser(t, env.db, "vera",
		testutil.WithAccess(models.AccessPremium),
		testutil.WithSubscription(models.SubscriptionActive, time.Now().Add(-time.Hour)))

	var profile struct {
		AccessLevel   models.AccessLevel `json:"access_level"`
		EffectiveTier models.AccessLevel `json:"effective_tier"`
		CanUseChat    bool               `json:"can_use_chat"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/me", env.token(t, expired), nil, &profile))
	assert.Equal(t, models.AccessPremium, profile.AccessLevel)
	assert.Equal(t, models.AccessFree, profile.EffectiveTier)
	assert.False(t, profile.CanUseChat)
}

func TestLogout_RevokesToken(t *testing.T) {
	env := newTestServer(t)
	user := testutil.CreateUser(t, env.db, "dan")
	tok := env.token(t, user)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/me", tok, nil, nil))
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/api/auth/logout", tok, nil, nil))

	var body models.ErrorResponse
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me", tok, nil, &body))
	assert.Equal(t, "Token has been revoked", body.Error)

	claims, err := env.s.tokens.Parse(tok)
	require.NoError(t, err)
	assert.True(t, env.mr.Exists(cache.RevokedTokenKey(claims.TokenID)))
	assert.Greater(t, env.mr.TTL(cache.RevokedTokenKey(claims.TokenID)), time.Duration(0))
}

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestServer(t)
	user := testutil.CreateUser(t, env.db, "ana", testutil.WithAccess(models.AccessBasic))

	var issued struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/ws/ticket", env.token(t, user), nil, &issued))
	require.NotEmpty(t, issued.Ticket)
	assert.Equal(t, int(cache.WSTicketTTL.Seconds()), issued.ExpiresIn)

	stored, err := env.mr.Get(cache.WSTicketKey(issued.Ticket))
	require.NoError(t, err)
	assert.Equal(t, itoa(user.ID), stored)

	// A plain request may authenticate with the ticket once; it is gone afterwards.
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/auth/me?ticket="+issued.Ticket, "", nil, nil))
	assert.False(t, env.mr.Exists(cache.WSTicketKey(issued.Ticket)))
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me?ticket="+issued.Ticket, "", nil, nil))
}

func TestWSTicket_Expires(t *testing.T) {
	env := newTestServer(t)
	user := testutil.CreateUser(t, env.db, "petru")

	var issued struct {
		Ticket string `json:"ticket"`
	}
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/ws/ticket", env.token(t, user), nil, &issued))

	env.mr.FastForward(cache.WSTicketTTL + time.Second)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/auth/me?ticket="+issued.Ticket, "", nil, nil))
}

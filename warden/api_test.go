package warden

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// testAPIWarden builds just enough of a Warden to exercise the API
// handlers without a gateway connection.
func testAPIWarden(t testing.TB) (*Warden, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := DefaultConfig()
	cfg.API.Secret = "test-secret"

	hashed, err := HashPassword("correct-password")
	require.NoError(t, err)
	runtimeConfig := DefaultRuntimeConfig()
	runtimeConfig.AdminUsername = "admin"
	runtimeConfig.AdminPassword = hashed

	w := &Warden{
		config:        cfg,
		logger:        slog.Default(),
		runtimeConfig: &runtimeConfig,
	}
	handlers := NewAPIHandlers(w)
	w.api = &API{
		config:              cfg.API,
		store:               handlers.store,
		handlers:            handlers,
		requestMetrics:      map[string]int{},
		loginRequestLimiter: rate.NewLimiter(rate.Inf, 1),
		logger:              slog.Default(),
	}

	r := gin.New()
	r.Use(sessions.Sessions(sessionVarName, handlers.store))
	r.Use(requestIDMiddleware())
	r.POST(apiPathLogin, handlers.loginHandler)
	protected := r.Group(apiPrefix)
	protected.Use(authMiddleware(w))
	protected.GET(apiPathLoggedIn, handlers.loggedIn)
	return w, r
}

func postLogin(r *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(
		http.MethodPost, apiPathLogin, strings.NewReader(body),
	)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLoginHandler(t *testing.T) {
	_, r := testAPIWarden(t)

	rec := postLogin(r, `{"username":"admin","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postLogin(r, `{"username":"nobody","password":"correct-password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postLogin(r, `{"username":"admin","password":"correct-password"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin")
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestLoginDisabledWithoutAdminCredentials(t *testing.T) {
	w, r := testAPIWarden(t)
	w.runtimeConfig.AdminUsername = ""
	w.runtimeConfig.AdminPassword = ""

	rec := postLogin(r, `{"username":"admin","password":"anything"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware(t *testing.T) {
	_, r := testAPIWarden(t)

	// No session cookie.
	req := httptest.NewRequest(http.MethodGet, apiPrefix+apiPathLoggedIn, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Log in, then reuse the session cookie.
	loginRec := postLogin(r, `{"username":"admin","password":"correct-password"}`)
	require.Equal(t, http.StatusOK, loginRec.Code)

	req = httptest.NewRequest(http.MethodGet, apiPrefix+apiPathLoggedIn, nil)
	for _, cookie := range loginRec.Result().Cookies() {
		req.AddCookie(cookie)
	}
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin")
}

func TestRequestIDMiddleware(t *testing.T) {
	_, r := testAPIWarden(t)
	rec := postLogin(r, `{"username":"admin","password":"wrong"}`)
	assert.NotEmpty(t, rec.Header().Get(xRequestIDHeader))
}

func TestGuildConfigUpdateApply(t *testing.T) {
	t.Parallel()
	cfg := defaultGuildConfig("g")

	threshold := 0.5
	strict := true
	words := "florb"
	update := guildConfigUpdate{
		ToxicityThreshold:           &threshold,
		Severity2DeleteFirstOffense: &strict,
		BlockedWords:                &words,
	}
	update.apply(&cfg)

	assert.Equal(t, 0.5, cfg.ToxicityThreshold)
	assert.True(t, cfg.Severity2DeleteFirstOffense)
	assert.Equal(t, "florb", cfg.BlockedWords)

	// Unprovided fields are untouched.
	assert.True(t, cfg.RulesEnabled)
	assert.Equal(t, DefaultSpamMentionLimit, cfg.SpamMentionLimit)
}

func TestQueryIntDefault(t *testing.T) {
	t.Parallel()
	gin.SetMode(gin.TestMode)
	testCases := []struct {
		query    string
		expected int
	}{
		{"", 100},
		{"limit=25", 25},
		{"limit=0", 100},
		{"limit=-5", 100},
		{"limit=abc", 100},
	}
	for _, tc := range testCases {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(
			http.MethodGet, "/?"+tc.query, nil,
		)
		assert.Equal(t, tc.expected, queryIntDefault(c, "limit", 100))
	}
}

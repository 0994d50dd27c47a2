package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jwalitptl/dispatch-api/internal/model"
	"github.com/jwalitptl/dispatch-api/internal/service/account"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth struct {
	sessions map[string]*model.AuthSession
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (*model.AuthSession, error) {
	if sess, ok := s.sessions[token]; ok {
		return sess, nil
	}
	return nil, account.ErrSessionExpired
}

func newAuthEngine() *gin.Engine {
	user := &model.Account{ID: uuid.New(), Role: model.RoleUser}
	op := &model.Account{ID: uuid.New(), Role: model.RoleOperator}
	auth := NewAuthMiddleware(&stubAuth{sessions: map[string]*model.AuthSession{
		"user-token": {Account: user},
		"op-token":   {Account: op, Hospital: &model.Hospital{ID: uuid.New()}},
		"op-no-hosp": {Account: op},
	}})

	r := gin.New()
	r.Use(auth.Authenticate())
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, string(CurrentAccount(c).Role))
	})
	r.GET("/operator", auth.RequireRole(model.RoleOperator), func(c *gin.Context) {
		id, _ := HospitalID(c)
		c.String(http.StatusOK, id.String())
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	r := newAuthEngine()

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"missing header", "/me", "", http.StatusUnauthorized},
		{"malformed header", "/me", "Token abc", http.StatusUnauthorized},
		{"expired session", "/me", "Bearer nope", http.StatusUnauthorized},
		{"user", "/me", "Bearer user-token", http.StatusOK},
		{"query token", "/me?access_token=user-token", "", http.StatusOK},
		{"user on operator route", "/operator", "Bearer user-token", http.StatusForbidden},
		{"operator", "/operator", "Bearer op-token", http.StatusOK},
		{"operator without hospital", "/operator", "Bearer op-no-hosp", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2}).RateLimit())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2"))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"https://dispatch.example.com"})))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://dispatch.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dispatch.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", w.Header().Get("Access-Control-Max-Age"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(SizeLimit(SizeLimitConfig{MaxBodySize: 8, MaxUploadSize: 64}))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"too long"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"too long"}`))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDAndRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(HeaderXRequestID, "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderXRequestID))
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

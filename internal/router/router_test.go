package router

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	authhandler "github.com/jwalitptl/dispatch-api/internal/handler/auth"
	"github.com/jwalitptl/dispatch-api/internal/handler/health"
	"github.com/jwalitptl/dispatch-api/internal/handler/operator"
	reporthandler "github.com/jwalitptl/dispatch-api/internal/handler/report"
	"github.com/jwalitptl/dispatch-api/internal/middleware"
	"github.com/jwalitptl/dispatch-api/internal/repository/memory"
	"github.com/jwalitptl/dispatch-api/internal/service/account"
	"github.com/jwalitptl/dispatch-api/internal/service/analysis"
	"github.com/jwalitptl/dispatch-api/internal/service/fleet"
	"github.com/jwalitptl/dispatch-api/internal/service/report"
	"github.com/jwalitptl/dispatch-api/pkg/auth"
	"github.com/jwalitptl/dispatch-api/pkg/geo"
	"github.com/jwalitptl/dispatch-api/pkg/logger"
	"github.com/jwalitptl/dispatch-api/pkg/metrics"
	"github.com/jwalitptl/dispatch-api/pkg/security"
)

type cannedProvider struct{}

func (cannedProvider) Name() string { return "canned" }

func (cannedProvider) Generate(_ context.Context, prompt string, _ *analysis.Image) (string, error) {
	switch {
	case strings.Contains(prompt, "reply in JSON"):
		return `{"imageDescription":"Car crash","triageLevel":"Red","justification":"Trapped driver","isFakeAlarm":false,"accidentType":"Vehicle Collision","injuredCount":2,"confidence":90}`, nil
	case strings.Contains(prompt, "false alarm or a joke"):
		return "false", nil
	default:
		return "Two vehicles collided, one person trapped.", nil
	}
}

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type testAPI struct {
	*testing.T
	srv *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.New()
	repos := store.Repositories()
	log := logger.Nop()
	m := metrics.NewNop()
	resolver := geo.NewResolver(nil, time.Second, log)

	accounts := account.NewService(repos.Accounts, repos.Hospitals, repos.Sessions,
		security.NewBcryptHasher(bcrypt.MinCost), auth.NewJWTService("secret", "dispatch-test"), resolver,
		account.Config{SessionTTL: time.Hour}, log)
	fleetSvc := fleet.NewService(repos.Ambulances, repos.Drivers, log)
	analyzer := analysis.NewAnalyzer(cannedProvider{}, analysis.Config{Timeout: time.Second, CacheTTL: time.Minute}, log, m)
	reports := report.NewService(repos.Reports, fleetSvc, accounts, analyzer, resolver, log, m)
	feed := report.NewFeed(reports, fleetSvc, log)

	reg := prometheus.NewRegistry()
	authMW := middleware.NewAuthMiddleware(accounts)

	r, err := NewRouter(RouterConfig{
		RateLimitEnabled: false,
		MetricsPrefix:    "test",
		Registerer:       reg,
	},
		health.NewHandler(map[string]health.Check{"storage": func(context.Context) error { return nil }}, reg),
		authhandler.NewHandler(accounts, authMW),
		reporthandler.NewHandler(reports, authMW),
		operator.NewHandler(reports, fleetSvc, feed, 20*time.Millisecond, authMW),
	)
	require.NoError(t, err)
	r.Setup()

	srv := httptest.NewServer(r.Engine())
	t.Cleanup(srv.Close)
	return &testAPI{T: t, srv: srv}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testAPI) do(method, path, token string, body io.Reader, contentType string) (int, envelope) {
	a.Helper()
	req, err := http.NewRequest(method, a.srv.URL+APIPrefix+path, body)
	require.NoError(a, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.srv.Client().Do(req)
	require.NoError(a, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent && strings.Contains(resp.Header.Get("Content-Type"), "json") {
		require.NoError(a, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func (a *testAPI) json(method, path, token string, payload interface{}) (int, envelope) {
	a.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(a, err)
		body = bytes.NewReader(b)
	}
	return a.do(method, path, token, body, "application/json")
}

func (a *testAPI) upload(path, token, filename string, fields map[string]string) (int, envelope) {
	a.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(a, w.WriteField(k, v))
	}
	part, err := w.CreateFormFile("image", filename)
	require.NoError(a, err)
	_, err = part.Write(append(pngHeader, []byte(filename)...))
	require.NoError(a, err)
	require.NoError(a, w.Close())
	return a.do(http.MethodPost, path, token, &buf, w.FormDataContentType())
}

type session struct {
	Token   string `json:"token"`
	Account struct {
		ID   string `json:"id"`
		Role string `json:"role"`
	} `json:"account"`
	Hospital *struct {
		ID string `json:"id"`
	} `json:"hospital"`
}

func (a *testAPI) register(path string, payload interface{}) session {
	a.Helper()
	status, env := a.json(http.MethodPost, path, "", payload)
	require.Equal(a, http.StatusCreated, status, env.Message)
	var s session
	require.NoError(a, json.Unmarshal(env.Data, &s))
	return s
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

func userPayload(email, phone string) map[string]string {
	return map[string]string{"email": email, "password": "secret1", "phone": phone, "ci": "7654321SC"}
}

func operatorPayload(email, phone string) map[string]string {
	return map[string]string{
		"email": email, "password": "secret1", "hospital_name": "Hospital " + phone,
		"admin_phone": phone, "entity_id": "ENT-" + phone,
	}
}

func TestDispatchFlowOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	user := api.register("/auth/register", userPayload("ana@example.com", "71234567"))
	op := api.register("/auth/register/operator", operatorPayload("ops@clinic.bo", "70000001"))
	assert.Equal(t, "user", user.Account.Role)
	require.NotNil(t, op.Hospital)

	status, env := api.json(http.MethodPost, "/operator/ambulances", op.Token, map[string]string{"plate_number": "abc-123"})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var amb struct {
		ID          string `json:"id"`
		PlateNumber string `json:"plate_number"`
		Status      string `json:"status"`
	}
	decode(t, env.Data, &amb)
	assert.Equal(t, "ABC-123", amb.PlateNumber)
	assert.Equal(t, "available", amb.Status)

	status, env = api.upload("/reports", user.Token, "IMG_2041.png", map[string]string{
		"latitude": "-17.79", "longitude": "-63.18",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)
	var rep struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		Description string `json:"description"`
		AIAnalysis  struct {
			TriageLevel string `json:"triage_level"`
		} `json:"ai_analysis"`
	}
	decode(t, env.Data, &rep)
	assert.Equal(t, "pending", rep.Status)
	assert.Equal(t, "Red", rep.AIAnalysis.TriageLevel)
	assert.Equal(t, "Two vehicles collided, one person trapped.", rep.Description)

	status, env = api.json(http.MethodGet, "/operator/reports/pending", op.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var pending []struct{ ID string }
	decode(t, env.Data, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, rep.ID, pending[0].ID)

	status, env = api.json(http.MethodPost, "/operator/reports/"+rep.ID+"/dispatch", op.Token, map[string]string{"ambulance_id": amb.ID})
	require.Equal(t, http.StatusOK, status, env.Message)

	status, env = api.json(http.MethodPost, "/operator/reports/"+rep.ID+"/dispatch", op.Token, map[string]string{"ambulance_id": amb.ID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "report is no longer pending", env.Message)

	status, env = api.json(http.MethodPost, "/operator/reports/"+rep.ID+"/false-alarm", op.Token, nil)
	assert.Equal(t, http.StatusConflict, status)

	status, env = api.json(http.MethodGet, "/operator/fleet/summary", op.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var sum struct {
		InUse        int  `json:"in_use_ambulances"`
		HasAvailable bool `json:"has_available"`
	}
	decode(t, env.Data, &sum)
	assert.Equal(t, 1, sum.InUse)
	assert.False(t, sum.HasAvailable)

	status, env = api.json(http.MethodGet, "/reports/mine", user.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var mine []struct{ Status string }
	decode(t, env.Data, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, "dispatched", mine[0].Status)
}

func TestAccessControl(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("/auth/register", userPayload("ana@example.com", "71234567"))
	op := api.register("/auth/register/operator", operatorPayload("ops@clinic.bo", "70000001"))

	status, _ := api.json(http.MethodGet, "/operator/reports", user.Token, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = api.upload("/reports", op.Token, "IMG_1.png", nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = api.json(http.MethodGet, "/reports/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := api.json(http.MethodGet, "/operator/reports/not-a-uuid", op.Token, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid id", env.Message)

	status, _ = api.json(http.MethodPost, "/auth/logout", user.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, env = api.json(http.MethodGet, "/auth/me", user.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "session expired", env.Message)
}

func TestLogout_Idempotent(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("/auth/register", userPayload("ana@example.com", "71234567"))

	status, _ := api.json(http.MethodPost, "/auth/logout", user.Token, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.json(http.MethodPost, "/auth/logout", user.Token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = api.json(http.MethodPost, "/auth/logout", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = api.json(http.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegistrationValidation(t *testing.T) {
	api := newTestAPI(t)

	status, env := api.json(http.MethodPost, "/auth/register", "", userPayload("ana@example.com", "123"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "phone must be 8 digits", env.Message)

	api.register("/auth/register", userPayload("ana@example.com", "71234567"))
	status, env = api.json(http.MethodPost, "/auth/register", "", userPayload("ANA@example.com", "79999999"))
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "email or phone already registered", env.Message)

	status, _ = api.json(http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "wrong1"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestFakeAlarmBlocksAccount(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("/auth/register", userPayload("ana@example.com", "71234567"))

	status, env := api.upload("/reports", user.Token, "funny_meme.png", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Contains(t, env.Message, "false alarm")

	status, _ = api.json(http.MethodGet, "/reports/mine", user.Token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = api.json(http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "account is blocked", env.Message)
}

func TestAnalyzePreview(t *testing.T) {
	api := newTestAPI(t)
	user := api.register("/auth/register", userPayload("ana@example.com", "71234567"))

	status, env := api.upload("/reports/analyze", user.Token, "IMG_7.png", nil)
	require.Equal(t, http.StatusOK, status, env.Message)
	var preview struct {
		Analysis struct {
			TriageLevel  string `json:"triage_level"`
			InjuredCount int    `json:"injured_count"`
		} `json:"analysis"`
		Degraded bool `json:"degraded"`
	}
	decode(t, env.Data, &preview)
	assert.Equal(t, "Red", preview.Analysis.TriageLevel)
	assert.Equal(t, 2, preview.Analysis.InjuredCount)
	assert.False(t, preview.Degraded)

	status, env = api.do(http.MethodPost, "/reports/analyze", user.Token, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "an image is required", env.Message)
}

func TestOperatorFeed(t *testing.T) {
	api := newTestAPI(t)
	op := api.register("/auth/register/operator", operatorPayload("ops@clinic.bo", "70000001"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api.srv.URL+APIPrefix+"/operator/feed?access_token="+op.Token, nil)
	require.NoError(t, err)
	resp, err := api.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	events := 0
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() && events < 2 {
		line := scanner.Text()
		if line == "event:snapshot" {
			events++
		}
		if strings.HasPrefix(line, "data:") {
			assert.Contains(t, line, `"has_available":false`)
		}
	}
	assert.Equal(t, 2, events)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	status, _ := api.json(http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, env := api.json(http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"storage":"UP"}`, string(env.Data))

	resp, err := api.srv.Client().Get(api.srv.URL + APIPrefix + "/health/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_http_requests_total")
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mortgage-rate-alerts/internal/monitor"
	"mortgage-rate-alerts/internal/ratealerts"
	"mortgage-rate-alerts/internal/ratefeed"
	"mortgage-rate-alerts/internal/ratelimit"
	"mortgage-rate-alerts/internal/storage"
)

const adminKey = "s3cret"

type env struct {
	handler http.Handler
	store   *storage.MemoryStore
}

type envOption func(*Options)

func newEnv(t *testing.T, table map[string]string, opts ...envOption) *env {
	t.Helper()
	store := storage.NewMemoryStore()
	logger := zerolog.Nop()

	rates := make(map[string]decimal.Decimal, len(table))
	for k, v := range table {
		rates[k] = decimal.RequireFromString(v)
	}

	options := Options{
		Service:  ratealerts.NewService(store, logger),
		Checker:  monitor.New(nil, ratefeed.NewStaticFromTable(rates), store, nil, 0, logger),
		Ready:    store,
		AdminKey: adminKey,
		Logger:   logger,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &env{handler: NewRouter(options), store: store}
}

func (e *env) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewReader([]byte(b))
		default:
			payload, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, rec)
	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok, rec.Body.String())
	return envelope["code"].(string)
}

func createBody(rate float64) map[string]any {
	return map[string]any{
		"email":      "a@x.com",
		"loanType":   "30-Year Fixed",
		"targetRate": rate,
		"timeframe":  "90 days",
	}
}

func TestTriggerScenarioEndToEnd(t *testing.T) {
	e := newEnv(t, map[string]string{"30-Year Fixed": "6.10"})

	rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6.25), map[string]string{"Idempotency-Key": "k-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, true, created["success"])
	assert.Equal(t, 6.25, created["targetRate"])
	id := created["alertId"].(string)

	rec = e.do(t, http.MethodPost, "/admin/rate-alerts/run-check", nil, map[string]string{"X-Admin-Key": adminKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decode(t, rec)
	assert.EqualValues(t, 1, summary["checked"])
	assert.EqualValues(t, 1, summary["triggered"])

	rec = e.do(t, http.MethodGet, "/rate-alerts/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	alert := decode(t, rec)["alert"].(map[string]any)
	assert.Equal(t, "TRIGGERED", alert["status"])
	assert.EqualValues(t, 1, alert["notificationsSent"])
	notes := alert["notifications"].([]any)
	require.Len(t, notes, 1)
	assert.Equal(t, 6.1, notes[0].(map[string]any)["currentRate"])

	rec = e.do(t, http.MethodGet, "/rate-alerts?email=a@x.com", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.EqualValues(t, 0, list["total"])
	assert.Empty(t, list["alerts"])

	rec = e.do(t, http.MethodGet, "/rate-alerts?email=a@x.com&includeAll=true", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list = decode(t, rec)
	assert.EqualValues(t, 1, list["total"])
}

func TestCreateErrors(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "IDEMPOTENCY_KEY_REQUIRED", errorCode(t, rec))

	rec = e.do(t, http.MethodPost, "/rate-alerts", createBody(25), map[string]string{"Idempotency-Key": "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	envelope := body["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_ERROR", envelope["code"])
	details := envelope["details"].([]any)
	assert.Equal(t, "targetRate", details[0].(map[string]any)["field"])

	rec = e.do(t, http.MethodPost, "/rate-alerts", "{not json", map[string]string{"Idempotency-Key": "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
}

func TestCreateReplayReturnsOriginal(t *testing.T) {
	e := newEnv(t, nil)
	headers := map[string]string{"Idempotency-Key": "same", "X-Broker-Id": "broker-1"}

	first := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), headers)
	require.Equal(t, http.StatusCreated, first.Code)
	second := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), headers)
	require.Equal(t, http.StatusOK, second.Code)

	a, b := decode(t, first), decode(t, second)
	assert.Equal(t, a["alertId"], b["alertId"])
	assert.Equal(t, "Rate alert already exists", b["message"])

	stored, err := e.store.GetAlert(context.Background(), a["alertId"].(string))
	require.NoError(t, err)
	require.NotNil(t, stored.BrokerID)
	assert.Equal(t, "broker-1", *stored.BrokerID)
}

func TestActiveCapOverHTTP(t *testing.T) {
	e := newEnv(t, nil)
	for i := 0; i < 5; i++ {
		rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), map[string]string{"Idempotency-Key": string(rune('a' + i))})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), map[string]string{"Idempotency-Key": "f"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MAX_ACTIVE_ALERTS_EXCEEDED", errorCode(t, rec))
}

func TestGetUpdateDelete(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), map[string]string{"Idempotency-Key": "k"})
	id := decode(t, rec)["alertId"].(string)

	rec = e.do(t, http.MethodPut, "/rate-alerts/"+id, map[string]any{"targetRate": 5.5, "timeframe": "180 days"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alert := decode(t, rec)["alert"].(map[string]any)
	assert.Equal(t, 5.5, alert["targetRate"])
	assert.Equal(t, "180 days", alert["timeframe"])
	assert.Equal(t, "30-Year Fixed", alert["loanType"])

	rec = e.do(t, http.MethodPut, "/rate-alerts/"+id, map[string]any{"loanType": "Balloon"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = e.do(t, http.MethodDelete, "/rate-alerts/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = e.do(t, http.MethodGet, "/rate-alerts/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "INACTIVE", decode(t, rec)["alert"].(map[string]any)["status"])
}

func TestNotFound(t *testing.T) {
	e := newEnv(t, nil)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/rate-alerts/0d8f6c32-5a7b-4d2e-8f1a-1c2b3d4e5f60"},
		{http.MethodGet, "/rate-alerts/not-a-uuid"},
		{http.MethodDelete, "/rate-alerts/0d8f6c32-5a7b-4d2e-8f1a-1c2b3d4e5f60"},
	} {
		rec := e.do(t, tc.method, tc.path, nil, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.path)
		assert.Equal(t, "ALERT_NOT_FOUND", errorCode(t, rec), tc.path)
	}

	rec := e.do(t, http.MethodPut, "/rate-alerts/0d8f6c32-5a7b-4d2e-8f1a-1c2b3d4e5f60", map[string]any{"status": "ACTIVE"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = e.do(t, http.MethodGet, "/nowhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestListValidation(t *testing.T) {
	e := newEnv(t, nil)
	rec := e.do(t, http.MethodGet, "/rate-alerts", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))

	rec = e.do(t, http.MethodGet, "/rate-alerts?email=a@x.com&includeAll=yes", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminAuth(t *testing.T) {
	e := newEnv(t, nil)

	rec := e.do(t, http.MethodGet, "/admin/rate-alerts", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))

	rec = e.do(t, http.MethodGet, "/admin/rate-alerts", nil, map[string]string{"X-Admin-Key": adminKey + "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do(t, http.MethodGet, "/admin/rate-alerts", nil, map[string]string{"X-Admin-Key": strings.ToUpper(adminKey)})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	unconfigured := newEnv(t, nil, func(o *Options) { o.AdminKey = "" })
	rec = unconfigured.do(t, http.MethodGet, "/admin/rate-alerts", nil, map[string]string{"X-Admin-Key": "anything"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "ADMIN_CONFIG_ERROR", errorCode(t, rec))
}

func TestAdminList(t *testing.T) {
	e := newEnv(t, nil)
	for i := 0; i < 3; i++ {
		body := createBody(6)
		body["email"] = string(rune('a'+i)) + "@x.com"
		rec := e.do(t, http.MethodPost, "/rate-alerts", body, map[string]string{"Idempotency-Key": string(rune('a' + i))})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := e.do(t, http.MethodGet, "/admin/rate-alerts?page=1&limit=2", nil, map[string]string{"X-Admin-Key": adminKey})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Len(t, body["alerts"], 2)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 3, pagination["total"])
	assert.EqualValues(t, 2, pagination["totalPages"])
	stats := body["stats"].(map[string]any)
	assert.EqualValues(t, 3, stats["active"])

	rec = e.do(t, http.MethodGet, "/admin/rate-alerts?limit=500", nil, map[string]string{"X-Admin-Key": adminKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodGet, "/admin/rate-alerts?page=abc", nil, map[string]string{"X-Admin-Key": adminKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = e.do(t, http.MethodGet, "/admin/rate-alerts?page=922337203685477580&limit=20", nil, map[string]string{"X-Admin-Key": adminKey})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

type stubChecker struct {
	err   error
	panic bool
}

func (s stubChecker) RunCheck(context.Context) (monitor.Summary, error) {
	if s.panic {
		panic("boom")
	}
	return monitor.Summary{}, s.err
}

func TestRunCheckErrors(t *testing.T) {
	admin := map[string]string{"X-Admin-Key": adminKey}

	busy := newEnv(t, nil, func(o *Options) { o.Checker = stubChecker{err: monitor.ErrPassInProgress} })
	rec := busy.do(t, http.MethodPost, "/admin/rate-alerts/run-check", nil, admin)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CHECK_IN_PROGRESS", errorCode(t, rec))

	failing := newEnv(t, nil, func(o *Options) { o.Checker = stubChecker{err: errors.New("db exploded")} })
	rec = failing.do(t, http.MethodPost, "/admin/rate-alerts/run-check", nil, admin)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "db exploded")

	panicking := newEnv(t, nil, func(o *Options) { o.Checker = stubChecker{panic: true} })
	rec = panicking.do(t, http.MethodPost, "/admin/rate-alerts/run-check", nil, admin)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}

func TestRateLimitPerRoute(t *testing.T) {
	limiter := ratelimit.NewMemory()
	e := newEnv(t, nil, func(o *Options) {
		o.Limiter = limiter
		o.Policies = Policies{
			Create: ratelimit.Policy{Name: "create", Limit: 1, Window: time.Minute},
			Read:   ratelimit.Policy{Name: "read", Limit: 5, Window: time.Minute},
			Mutate: ratelimit.Policy{Name: "mutate", Limit: 5, Window: time.Minute},
			Admin:  ratelimit.Policy{Name: "admin", Limit: 5, Window: time.Minute},
		}
	})

	rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), map[string]string{"Idempotency-Key": "1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = e.do(t, http.MethodPost, "/rate-alerts", createBody(6), map[string]string{"Idempotency-Key": "2"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Reads have their own budget.
	rec = e.do(t, http.MethodGet, "/rate-alerts?email=a@x.com", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string, ratelimit.Policy) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimiterFailsOpen(t *testing.T) {
	e := newEnv(t, nil, func(o *Options) {
		o.Limiter = brokenLimiter{}
		o.Policies.Create = ratelimit.Policy{Name: "create", Limit: 1, Window: time.Minute}
	})
	rec := e.do(t, http.MethodPost, "/rate-alerts", createBody(6), map[string]string{"Idempotency-Key": "1"})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("unreachable") }

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t, nil)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/readyz", nil, nil).Code)

	rec := e.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ratealerts_http_requests_total")

	down := newEnv(t, nil, func(o *Options) { o.Ready = downPinger{} })
	assert.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/readyz", nil, nil).Code)
}

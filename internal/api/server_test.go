package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bikeservice/internal/auth"
	"bikeservice/internal/config"
	"bikeservice/internal/database"
	"bikeservice/internal/domain"
	"bikeservice/internal/events"
	"bikeservice/internal/models"
	"bikeservice/internal/repository"
	"bikeservice/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type discardNotifier struct{}

func (discardNotifier) Emit(context.Context, string, string, models.NotificationPayload) {}

func newTestServer(t *testing.T, cfg config.APIConfig) *HTTPServer {
	t.Helper()
	return newTestServerWithLogger(t, cfg, zerolog.Nop())
}

func newTestServerWithLogger(t *testing.T, cfg config.APIConfig, logger zerolog.Logger) *HTTPServer {
	t.Helper()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	bus := events.NewEventBus(&logger)
	services := Services{
		Bookings: service.NewBookingService(db, discardNotifier{}, bus, service.BookingOptions{}, &logger),
		Catalog:  service.NewCatalogService(db, bus, &logger),
		Users: service.NewUserService(db, auth.NewBcryptHasher(4), auth.NewJWTManager("test-secret", time.Hour),
			repository.NewMemoryThrottleRepository(), discardNotifier{}, bus,
			config.AuthConfig{LoginAttempts: 5, LoginWindowSeconds: 60}, &logger),
		Ready: db.Ready,
	}
	return NewHTTPServer(cfg, services, &logger)
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func register(t *testing.T, h http.Handler, email string, role models.Role) string {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":    email,
		"password": "Secret123",
		"name":     "Test User",
		"phone":    "+1 555 123 4567",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	result := decode[domain.AuthResult](t, rec)
	require.NotEmpty(t, result.AccessToken)
	return result.AccessToken
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, config.APIConfig{}).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzNotReady(t *testing.T) {
	logger := zerolog.Nop()
	srv := NewHTTPServer(config.APIConfig{}, Services{
		Ready: func(context.Context) error { return errors.New("db down") },
	}, &logger)

	rec := do(t, srv.Handler(), http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBookingFlowOverHTTP(t *testing.T) {
	h := newTestServer(t, config.APIConfig{}).Handler()

	owner := register(t, h, "owner@example.com", models.RoleOwner)
	customer := register(t, h, "rider@example.com", models.RoleCustomer)

	rec := do(t, h, http.MethodPost, "/api/v1/services", owner, map[string]any{
		"name": "Brake tune", "description": "Adjust both brakes", "price": "30", "estimated_time": 45,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	brakes := decode[serviceResponse](t, rec)
	assert.Equal(t, "30.00", brakes.Price)
	assert.Equal(t, "45m", brakes.DurationDisplay)

	rec = do(t, h, http.MethodPost, "/api/v1/services", owner, map[string]any{
		"name": "Wheel true", "price": 45.5, "estimated_time": 90,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wheel := decode[serviceResponse](t, rec)
	assert.Equal(t, "1h 30m", wheel.DurationDisplay)

	rec = do(t, h, http.MethodPost, "/api/v1/services", customer, map[string]any{
		"name": "Nope", "price": 1, "estimated_time": 10,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/services?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[serviceListResponse](t, rec)
	assert.Equal(t, 2, list.Total)
	assert.Len(t, list.Services, 1)

	bookingDate := time.Now().UTC().AddDate(0, 0, 7).Format(models.DateLayout)
	rec = do(t, h, http.MethodPost, "/api/v1/bookings", customer, map[string]any{
		"service_ids":  []string{brakes.ID, wheel.ID},
		"booking_date": bookingDate,
		"notes":        "squeaky rear brake",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	booking := decode[bookingResponse](t, rec)
	assert.Equal(t, "75.50", booking.TotalPrice)
	assert.Equal(t, bookingDate, booking.BookingDate)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, "Pending", booking.StatusDisplay)
	require.Len(t, booking.Services, 2)
	assert.Equal(t, "30.00", booking.Services[0].ServicePrice)

	rec = do(t, h, http.MethodGet, "/api/v1/bookings/"+booking.ID, customer, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/bookings?page_size=10", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[bookingListResponse](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 10, page.PageSize)

	rec = do(t, h, http.MethodPut, "/api/v1/bookings/"+booking.ID+"/status", customer, map[string]any{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/bookings/"+booking.ID+"/status", owner, map[string]any{"status": "ready_for_delivery"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[bookingResponse](t, rec)
	assert.Equal(t, models.StatusReadyForDelivery, updated.Status)
	assert.Greater(t, updated.Version, booking.Version)

	rec = do(t, h, http.MethodDelete, "/api/v1/bookings/"+booking.ID, customer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/bookings/"+booking.ID, owner, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/bookings/export?status=cancelled", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	rows, err := f.GetRows("Bookings")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, booking.ID, rows[1][0])

	rec = do(t, h, http.MethodGet, "/api/v1/bookings/export", customer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthEndpoints(t *testing.T) {
	h := newTestServer(t, config.APIConfig{}).Handler()
	token := register(t, h, "rider@example.com", models.RoleCustomer)

	rec := do(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[models.User](t, rec)
	assert.Equal(t, "rider@example.com", me.Email)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "RIDER@example.com", "password": "Secret123"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "rider@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "rider@example.com", "password": "Secret123", "name": "Dup", "phone": "5551234567",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/verify-email?token=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/auth/resend-verification", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already verified")
}

func TestRequiresBearerToken(t *testing.T) {
	h := newTestServer(t, config.APIConfig{}).Handler()

	rec := do(t, h, http.MethodGet, "/api/v1/bookings", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	rec = do(t, h, http.MethodGet, "/api/v1/bookings", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "invalid or expired token", body["error"])
}

func TestInvalidRequests(t *testing.T) {
	h := newTestServer(t, config.APIConfig{}).Handler()
	token := register(t, h, "rider@example.com", models.RoleCustomer)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"unknown field", http.MethodPost, "/api/v1/bookings", map[string]any{"service_ids": []string{"x"}, "extra": 1}},
		{"missing date", http.MethodPost, "/api/v1/bookings", map[string]any{"service_ids": []string{"x"}}},
		{"bad date", http.MethodPost, "/api/v1/bookings", map[string]any{"service_ids": []string{"x"}, "booking_date": "15/01/2030"}},
		{"empty body", http.MethodPost, "/api/v1/bookings", nil},
		{"bad page", http.MethodGet, "/api/v1/bookings?page=abc", nil},
		{"bad status filter", http.MethodGet, "/api/v1/bookings?status=lost", nil},
		{"bad limit", http.MethodGet, "/api/v1/services?limit=ten", nil},
		{"bad active_only", http.MethodGet, "/api/v1/services?active_only=maybe", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.path, token, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, rec)["error"])
		})
	}

	rec := do(t, h, http.MethodGet, "/api/v1/bookings/does-not-exist", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/services/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, config.APIConfig{}).Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(requestIDHeader))
}

func TestAccessLogRecordsUser(t *testing.T) {
	var logs bytes.Buffer
	h := newTestServerWithLogger(t, config.APIConfig{}, zerolog.New(&logs)).Handler()
	token := register(t, h, "rider@example.com", models.RoleCustomer)

	logs.Reset()
	rec := do(t, h, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[models.User](t, rec)
	require.NotEmpty(t, me.ID)

	entry := lastAccessLog(t, &logs)
	assert.Equal(t, me.ID, entry["user_id"])
	assert.Equal(t, "GET /api/v1/auth/me", entry["route"])

	logs.Reset()
	do(t, h, http.MethodGet, "/healthz", "", nil)
	entry = lastAccessLog(t, &logs)
	assert.Equal(t, "", entry["user_id"])
}

func lastAccessLog(t *testing.T, logs *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	for _, line := range bytes.Split(bytes.TrimSpace(logs.Bytes()), []byte("\n")) {
		var v map[string]any
		require.NoError(t, json.Unmarshal(line, &v), string(line))
		if v["message"] == "http request" {
			entry = v
		}
	}
	require.NotNil(t, entry, "no access log line in %q", logs.String())
	return entry
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, config.APIConfig{CORSOrigins: []string{"http://localhost:3000"}}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bookings", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}}).Handler()

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	rec := do(t, h, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limit exceeded", decode[map[string]string](t, rec)["error"])
}

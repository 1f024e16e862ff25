package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/config"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/domain/booking/bookingtest"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/metrics"
	"github.com/TabarBaptiste/masseuse/internal/middleware"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/payment/paymenttest"
	"github.com/TabarBaptiste/masseuse/internal/report"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
	"github.com/TabarBaptiste/masseuse/internal/validators"
)

const (
	secret   = "routes-secret"
	tomorrow = "2026-10-16"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := validators.RegisterGin(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type server struct {
	engine   *gin.Engine
	repo     *bookingtest.MemoryRepository
	provider *paymenttest.Provider
}

func newServer(t *testing.T) *server {
	t.Helper()

	loc := timezone.Location("Europe/Paris")
	clock := timezone.FixedClock{At: time.Date(2026, 10, 15, 8, 0, 0, 0, loc)}

	repo := bookingtest.NewMemoryRepository()
	repo.Now = clock.Now
	repo.AddService(models.Service{ID: 1, Name: "Massage californien", DurationMin: 60, Price: decimal.RequireFromString("90.00"), Active: true})
	repo.AddAvailability(5, "09:00", "12:00")

	cfg := &config.Config{
		JWTSecret: secret,
		Booking: config.BookingConfig{
			SlotGranularityMinutes:  30,
			CreationMode:            config.CreationDirect,
			RacePolicy:              config.RaceSlotHold,
			AdminBypassAvailability: true,
		},
		Site: config.SiteDefaults{AdvanceMaxDays: 365, DepositAmount: decimal.Zero},
	}

	reg := prometheus.NewRegistry()
	provider := &paymenttest.Provider{}

	r := gin.New()
	RegisterRoutes(r, Deps{
		Config:   cfg,
		Repo:     repo,
		Provider: provider,
		Metrics:  metrics.New("test", reg),
		Gatherer: reg,
		Clock:    clock,
		Log:      zap.NewNop(),
	})
	return &server{engine: r, repo: repo, provider: provider}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (s *server) do(method, path, tok string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body httperr.HTTPError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func slots(t *testing.T, s *server) []string {
	t.Helper()
	w := s.do(http.MethodGet, "/api/services/1/slots?date="+tomorrow, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		Slots []string `json:"slots"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Slots
}

func createBooking(t *testing.T, s *server, tok, start string) models.Booking {
	t.Helper()
	w := s.do(http.MethodPost, "/api/bookings", tok, gin.H{
		"serviceId": 1,
		"date":      tomorrow,
		"startTime": start,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Booking models.Booking `json:"booking"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.Booking
}

// ======================================================
// OPS
// ======================================================

func TestHealthAndReady(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)

	w := s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"ready"`)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	createBooking(t, s, token(t, "user-1", "client"), "09:00")

	w := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_bookings_created_total")
}

// ======================================================
// SLOTS
// ======================================================

func TestSlots(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00"}, slots(t, s))

	w := s.do(http.MethodGet, "/api/services/1/slots", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "missing_date", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/services/abc/slots?date="+tomorrow, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_service_id", errorCode(t, w))

	w = s.do(http.MethodGet, "/api/services/9/slots?date="+tomorrow, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "service_not_found", errorCode(t, w))
}

// ======================================================
// BOOKINGS
// ======================================================

func TestCreateBookingRequiresAuth(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodPost, "/api/bookings", "", gin.H{"serviceId": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing_authorization_header", errorCode(t, w))
}

func TestCreateBookingBindingErrors(t *testing.T) {
	s := newServer(t)
	tok := token(t, "user-1", "client")

	cases := map[string]gin.H{
		"bad time":   {"serviceId": 1, "date": tomorrow, "startTime": "9h"},
		"bad date":   {"serviceId": 1, "date": "16/10/2026", "startTime": "09:00"},
		"no service": {"date": tomorrow, "startTime": "09:00"},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/bookings", tok, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "invalid_request", errorCode(t, w))
		})
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newServer(t)
	clientTok := token(t, "user-1", "client")
	adminTok := token(t, "admin-1", "admin")

	b := createBooking(t, s, clientTok, "10:00")
	assert.Equal(t, string(domain.StatusPending), b.Status)
	assert.Equal(t, "11:00", b.EndTime)
	assert.NotContains(t, slots(t, s), "10:00")
	assert.NotContains(t, slots(t, s), "09:30")

	w := s.do(http.MethodPost, "/api/bookings", token(t, "user-2", "client"), gin.H{
		"serviceId": 1, "date": tomorrow, "startTime": "10:30",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "slot_unavailable", errorCode(t, w))

	w = s.do(http.MethodPatch, "/api/bookings/"+b.ID, adminTok, gin.H{"status": "CONFIRMED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, _ := s.repo.Snapshot(b.ID)
	assert.Equal(t, string(domain.StatusConfirmed), stored.Status)

	w = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/cancel", token(t, "user-2", "client"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/bookings/"+b.ID+"/cancel", clientTok, gin.H{"reason": "sick"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stored, _ = s.repo.Snapshot(b.ID)
	assert.Equal(t, string(domain.StatusCancelled), stored.Status)
	assert.Contains(t, slots(t, s), "10:00")
}

func TestCancelAcceptsEmptyBody(t *testing.T) {
	s := newServer(t)
	tok := token(t, "user-1", "client")
	b := createBooking(t, s, tok, "09:00")

	req := httptest.NewRequest(http.MethodPost, "/api/bookings/"+b.ID+"/cancel", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestUpdateUnknownBooking(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodPatch, "/api/bookings/missing", token(t, "admin-1", "admin"), gin.H{"status": "CONFIRMED"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "booking_not_found", errorCode(t, w))
}

// ======================================================
// PAYMENTS
// ======================================================

func TestDepositPaidThroughWebhook(t *testing.T) {
	s := newServer(t)
	s.repo.Settings = &models.SiteSettings{ID: 1, BookingAdvanceMaxDays: 365, DepositAmount: decimal.RequireFromString("20.00")}

	w := s.do(http.MethodPost, "/api/bookings", token(t, "user-1", "client"), gin.H{
		"serviceId": 1, "date": tomorrow, "startTime": "09:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out struct {
		Booking  models.Booking          `json:"booking"`
		Checkout payment.CheckoutSession `json:"checkout"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, string(domain.StatusPendingPayment), out.Booking.Status)
	require.NotEmpty(t, out.Checkout.URL)

	s.provider.Event = payment.CheckoutCompleted{
		SessionID:  out.Checkout.ID,
		IntentID:   "pi_1",
		AmountPaid: decimal.RequireFromString("20.00"),
		Metadata:   payment.Metadata{BookingID: out.Booking.ID},
	}
	w = s.do(http.MethodPost, "/api/webhooks/payment", "", gin.H{"type": "checkout.session.completed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	stored, _ := s.repo.Snapshot(out.Booking.ID)
	assert.Equal(t, string(domain.StatusPending), stored.Status)
	assert.True(t, stored.IsDepositPaid)
}

func TestWebhookBadSignature(t *testing.T) {
	s := newServer(t)
	s.provider.ParseErr = httperr.InvalidSignature("signature mismatch")

	w := s.do(http.MethodPost, "/api/webhooks/payment", "", gin.H{"type": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhookIgnoredEventIsAcknowledged(t *testing.T) {
	s := newServer(t)
	s.provider.Event = payment.Ignored{Type: "charge.refunded"}

	w := s.do(http.MethodPost, "/api/webhooks/payment", "", gin.H{"type": "charge.refunded"})
	assert.Equal(t, http.StatusOK, w.Code)
}

// ======================================================
// CONFLICTS
// ======================================================

func TestConflictsAreAdminOnly(t *testing.T) {
	s := newServer(t)
	w := s.do(http.MethodGet, "/api/admin/conflicts", token(t, "user-1", "client"), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "admin_only", errorCode(t, w))
}

func TestConflictReportSummaryAndExport(t *testing.T) {
	s := newServer(t)
	adminTok := token(t, "admin-1", "admin")

	s.repo.AddBooking(models.Booking{ID: "a", UserID: "u1", ServiceID: 1, Date: tomorrow, StartTime: "09:00", EndTime: "10:00", Status: string(domain.StatusConfirmed)})
	s.repo.AddBooking(models.Booking{ID: "b", UserID: "u2", ServiceID: 1, Date: tomorrow, StartTime: "09:30", EndTime: "10:30", Status: string(domain.StatusPending)})

	w := s.do(http.MethodGet, "/api/admin/conflicts?from="+tomorrow+"&to="+tomorrow, adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rep struct {
		Total     int `json:"total"`
		Conflicts []struct {
			Type     string `json:"type"`
			Severity string `json:"severity"`
		} `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
	require.Equal(t, 1, rep.Total)
	assert.Equal(t, "BOOKING_OVERLAP", rep.Conflicts[0].Type)
	assert.Equal(t, "HIGH", rep.Conflicts[0].Severity)

	w = s.do(http.MethodGet, "/api/admin/conflicts/summary", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"BOOKING_OVERLAP":1`)

	w = s.do(http.MethodGet, "/api/admin/conflicts/export?from="+tomorrow, adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, report.ContentTypeXLSX, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, w.Body.Len())

	w = s.do(http.MethodGet, "/api/admin/conflicts?from=2026-10-20&to=2026-10-01", adminTok, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_range", errorCode(t, w))
}

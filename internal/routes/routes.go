package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TabarBaptiste/masseuse/internal/config"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/handlers"
	"github.com/TabarBaptiste/masseuse/internal/metrics"
	"github.com/TabarBaptiste/masseuse/internal/middleware"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
	ucbooking "github.com/TabarBaptiste/masseuse/internal/usecase/booking"
	"github.com/TabarBaptiste/masseuse/internal/usecase/conflict"
	"github.com/TabarBaptiste/masseuse/internal/usecase/reconcile"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

// Deps are the process singletons the HTTP surface is built from. DB and
// Redis back the admin schedule and audit endpoints plus readiness probes;
// the booking core goes through Repo. Holds, Claims and Provider may be nil.
type Deps struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Repo     domain.Repository
	Holds    domain.HoldStore
	Claims   reconcile.Claimer
	Provider payment.Provider

	Audit    ucbooking.AuditRecorder
	Notifier ucbooking.Notifier
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	Clock timezone.Clock
	Log   *zap.Logger
}

// SitePolicy turns the configured site defaults into a domain policy.
func SitePolicy(cfg *config.Config) domain.Policy {
	return domain.Policy{
		AdvanceMinDays:            cfg.Site.AdvanceMinDays,
		AdvanceMaxDays:            cfg.Site.AdvanceMaxDays,
		CancellationDeadlineHours: cfg.Site.CancellationDeadlineHours,
		DepositAmount:             cfg.Site.DepositAmount,
	}
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	log := d.Log

	// ======================================================
	// MIDDLEWARE GLOBAL
	// ======================================================
	r.Use(middleware.Recover(log))
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORSMiddleware())

	// ======================================================
	// COMPONENTS
	// ======================================================
	resolver := schedule.NewAvailabilityResolver(d.Repo, log)
	collector := schedule.NewOccupancyCollector(d.Repo, d.Holds, cfg.Booking.PendingPaymentOccupies, log)

	bookingDeps := ucbooking.Deps{
		Repo:     d.Repo,
		Holds:    d.Holds,
		Clock:    d.Clock,
		Defaults: SitePolicy(cfg),
		Audit:    d.Audit,
		Notifier: d.Notifier,
		Metrics:  d.Metrics,
		Log:      log,
	}

	// ======================================================
	// USE CASES
	// ======================================================
	getSlotsUC := schedule.NewGetSlots(
		d.Repo,
		resolver,
		collector,
		d.Clock,
		SitePolicy(cfg),
		cfg.Booking.SlotGranularityMinutes,
		log,
	)

	createBookingUC := ucbooking.NewCreateBooking(
		bookingDeps,
		resolver,
		collector,
		d.Provider,
		ucbooking.CreateOptions{
			Mode:                    cfg.Booking.CreationMode,
			RacePolicy:              cfg.Booking.RacePolicy,
			AdminBypassAvailability: cfg.Booking.AdminBypassAvailability,
			CheckoutTTL:             time.Duration(cfg.Booking.CheckoutTTLMinutes) * time.Minute,
		},
	)
	updateBookingUC := ucbooking.NewUpdateBooking(bookingDeps)
	cancelBookingUC := ucbooking.NewCancelBooking(bookingDeps)

	reconcileUC := reconcile.NewReconcilePayment(
		reconcile.Deps{
			Repo:      d.Repo,
			Provider:  d.Provider,
			Collector: collector,
			Holds:     d.Holds,
			Claims:    d.Claims,
			Clock:     d.Clock,
			Audit:     d.Audit,
			Notifier:  d.Notifier,
			Metrics:   d.Metrics,
			Log:       log,
		},
		reconcile.Options{
			RacePolicy:     cfg.Booking.RacePolicy,
			IdempotencyTTL: time.Duration(cfg.Booking.IdempotencyTTLHours) * time.Hour,
		},
	)

	auditConflictsUC := conflict.NewAuditConflicts(d.Repo, d.Metrics, log)

	// ======================================================
	// HANDLERS
	// ======================================================
	slotHandler := handlers.NewSlotHandler(getSlotsUC, log)
	bookingHandler := handlers.NewBookingHandler(createBookingUC, updateBookingUC, cancelBookingUC, log)
	webhookHandler := handlers.NewWebhookHandler(reconcileUC, log)
	conflictHandler := handlers.NewConflictHandler(auditConflictsUC, log)
	healthHandler := handlers.NewHealthHandler(readinessChecks(d), log)

	// ======================================================
	// OPS
	// ======================================================
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	// ======================================================
	// API (JSON)
	// ======================================================
	api := r.Group("/api")
	{
		// ------------------------------
		// PUBLIC
		// ------------------------------
		api.GET("/services/:id/slots", slotHandler.List)
		api.POST("/webhooks/payment", webhookHandler.Handle)

		// ------------------------------
		// AUTHENTICATED
		// ------------------------------
		secured := api.Group("/")
		secured.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			secured.POST("/bookings", bookingHandler.Create)
			secured.PATCH("/bookings/:id", bookingHandler.Update)
			secured.POST("/bookings/:id/cancel", bookingHandler.Cancel)
		}

		// ------------------------------
		// ADMIN
		// ------------------------------
		admin := api.Group("/admin")
		admin.Use(middleware.AuthMiddleware(cfg.JWTSecret), middleware.AdminOnly())
		{
			admin.GET("/conflicts", conflictHandler.Report)
			admin.GET("/conflicts/summary", conflictHandler.Summary)
			admin.GET("/conflicts/export", conflictHandler.Export)

			if d.DB != nil {
				auditLogsHandler := handlers.NewAuditLogsHandler(d.DB, d.Clock.Location(), log)
				workingHoursHandler := handlers.NewWorkingHoursHandler(d.DB, log)

				admin.GET("/audit-logs", auditLogsHandler.List)

				admin.GET("/availability", workingHoursHandler.GetAvailability)
				admin.PUT("/availability", workingHoursHandler.UpdateAvailability)
				admin.GET("/blocked-slots", workingHoursHandler.ListBlocked)
				admin.POST("/blocked-slots", workingHoursHandler.CreateBlocked)
				admin.DELETE("/blocked-slots/:id", workingHoursHandler.DeleteBlocked)
			}
		}
	}
}

func readinessChecks(d Deps) map[string]handlers.Check {
	checks := map[string]handlers.Check{}
	if d.DB != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := d.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if d.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return d.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/metrics"
	"github.com/TabarBaptiste/masseuse/internal/notify"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/routes"
	"github.com/TabarBaptiste/masseuse/internal/slothold"
	ucbooking "github.com/TabarBaptiste/masseuse/internal/usecase/booking"
	"github.com/TabarBaptiste/masseuse/internal/validators"
)

const janitorInterval = 5 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, log := a.cfg, a.log

	provider, err := payment.NewProvider(cfg.Payment)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.Metrics.Namespace, reg)

	notifier := notify.NewDispatcher(notify.NewLogSender(log), 128, m, log)
	defer notifier.Close()

	if err := validators.RegisterGin(); err != nil {
		return err
	}
	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := routes.Deps{
		Config:   cfg,
		DB:       a.db,
		Redis:    a.rdb,
		Repo:     a.repo,
		Provider: provider,
		Audit:    a.audit,
		Notifier: notifier,
		Metrics:  m,
		Gatherer: reg,
		Clock:    a.clock,
		Log:      log,
	}
	if a.rdb != nil {
		store := slothold.New(a.rdb)
		deps.Holds = store
		deps.Claims = store
	}

	r := gin.New()
	routes.RegisterRoutes(r, deps)

	if provider != nil {
		janitor := ucbooking.NewCleanupPendingPayment(ucbooking.Deps{
			Repo:     a.repo,
			Holds:    deps.Holds,
			Clock:    a.clock,
			Defaults: routes.SitePolicy(cfg),
			Audit:    a.audit,
			Notifier: notifier,
			Metrics:  m,
			Log:      log,
		}, time.Duration(cfg.Booking.PendingPaymentMaxAgeMinutes)*time.Minute)
		go runJanitor(ctx, janitor, log)
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server running",
			zap.String("addr", cfg.Addr()),
			zap.String("creation_mode", string(cfg.Booking.CreationMode)),
			zap.String("payment_provider", cfg.Payment.Provider),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runJanitor(ctx context.Context, uc *ucbooking.CleanupPendingPayment, log *zap.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := uc.Execute(ctx); err != nil {
				log.Error("pending payment cleanup failed", zap.Error(err))
			}
		}
	}
}

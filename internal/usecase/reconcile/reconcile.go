package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	"github.com/TabarBaptiste/masseuse/internal/config"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/metrics"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
	ucbooking "github.com/TabarBaptiste/masseuse/internal/usecase/booking"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

// Outcome says what a delivery did. Every outcome is acknowledged to the
// provider; only errors make it retry.
type Outcome string

const (
	OutcomeApplied         Outcome = "applied"
	OutcomeCreated         Outcome = "created"
	OutcomeOverlap         Outcome = "created_overlap"
	OutcomeAppliedOverlap  Outcome = "applied_overlap"
	OutcomePaidAfterCancel Outcome = "paid_after_cancel"
	OutcomeDuplicate       Outcome = "duplicate"
	OutcomeReleased        Outcome = "released"
	OutcomeIgnored         Outcome = "ignored"
	OutcomeOrphan          Outcome = "orphan"
)

// Claimer marks a session as being processed. Claim reports false when
// another delivery got there first.
type Claimer interface {
	Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	Forget(ctx context.Context, sessionID string) error
}

type Options struct {
	RacePolicy     config.RacePolicy
	IdempotencyTTL time.Duration
}

type Deps struct {
	Repo      domain.Repository
	Provider  payment.Provider
	Collector *schedule.OccupancyCollector
	Holds     domain.HoldStore
	Claims    Claimer
	Clock     timezone.Clock
	Audit     ucbooking.AuditRecorder
	Notifier  ucbooking.Notifier
	Metrics   *metrics.Metrics
	Log       *zap.Logger
}

// ReconcilePayment applies verified payment webhooks to bookings.
type ReconcilePayment struct {
	Deps
	opts Options
	log  *zap.Logger
}

func NewReconcilePayment(deps Deps, opts Options) *ReconcilePayment {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 7 * 24 * time.Hour
	}
	return &ReconcilePayment{
		Deps: deps,
		opts: opts,
		log:  deps.Log.With(zap.String("usecase", "reconcile_payment")),
	}
}

// ======================================================
// EXECUTE
// ======================================================

// Execute verifies the delivery and dispatches on the event variant.
// Signature failures come back as InvalidSignature errors.
func (uc *ReconcilePayment) Execute(ctx context.Context, req payment.WebhookRequest) (Outcome, error) {
	if uc.Provider == nil {
		return "", httperr.NotFoundErr("payments_disabled", "no payment provider is configured")
	}

	ev, err := uc.Provider.ParseWebhook(ctx, req)
	if err != nil {
		if httperr.IsKind(err, httperr.KindInvalidSignature) {
			uc.log.Warn("webhook rejected", zap.String("provider", uc.Provider.Name()), zap.Error(err))
			uc.Metrics.IncWebhookEvent("unknown", "invalid_signature")
		}
		return "", err
	}

	switch e := ev.(type) {
	case payment.CheckoutCompleted:
		return uc.completed(ctx, e)
	case payment.CheckoutExpired:
		return uc.expired(ctx, e), nil
	case payment.Ignored:
		uc.log.Info("webhook event ignored", zap.String("type", e.Type))
		uc.Metrics.IncWebhookEvent("ignored", string(OutcomeIgnored))
		return OutcomeIgnored, nil
	default:
		uc.log.Warn("unhandled webhook event", zap.String("type", fmt.Sprintf("%T", ev)))
		return OutcomeIgnored, nil
	}
}

// ======================================================
// COMPLETED
// ======================================================

func (uc *ReconcilePayment) completed(ctx context.Context, e payment.CheckoutCompleted) (Outcome, error) {
	const kind = "checkout_completed"
	log := uc.log.With(zap.String("session_id", e.SessionID))

	claimed := false
	if uc.Claims != nil {
		ok, err := uc.Claims.Claim(ctx, e.SessionID, uc.opts.IdempotencyTTL)
		switch {
		case err != nil:
			// The database guards below still hold without the marker.
			log.Warn("idempotency marker unavailable", zap.Error(err))
		case !ok:
			log.Info("duplicate webhook delivery")
			uc.Metrics.IncWebhookEvent(kind, string(OutcomeDuplicate))
			return OutcomeDuplicate, nil
		default:
			claimed = true
		}
	}

	var (
		outcome Outcome
		err     error
	)
	if e.Metadata.Deferred() {
		outcome, err = uc.createPaid(ctx, log, e)
	} else {
		outcome, err = uc.markPaid(ctx, log, e)
	}

	if err != nil {
		if claimed {
			if ferr := uc.Claims.Forget(ctx, e.SessionID); ferr != nil {
				log.Warn("cannot release idempotency marker", zap.Error(ferr))
			}
		}
		uc.Metrics.IncWebhookEvent(kind, "error")
		log.Error("webhook processing failed", zap.Error(err))
		return "", err
	}

	uc.Metrics.IncWebhookEvent(kind, string(outcome))
	return outcome, nil
}

var errAlreadyPaid = errors.New("deposit already recorded")

// markPaid handles checkouts opened for an existing booking row. The row is
// promoted under the date lock against a fresh occupancy snapshot, so a
// PENDING_PAYMENT row that lost its slot is reported instead of silently
// double-booked.
func (uc *ReconcilePayment) markPaid(ctx context.Context, log *zap.Logger, e payment.CheckoutCompleted) (Outcome, error) {
	log = log.With(zap.String("booking_id", e.Metadata.BookingID))

	current, err := uc.Repo.GetBooking(ctx, e.Metadata.BookingID)
	if err != nil {
		return "", err
	}
	if current == nil {
		log.Error("payment for unknown booking")
		return OutcomeOrphan, nil
	}
	if current.IsDepositPaid {
		log.Info("deposit already recorded")
		return OutcomeDuplicate, nil
	}

	now := uc.Clock.Now()
	var (
		b       *models.Booking
		outcome Outcome
		blocker schedule.Blocker
		overlap bool
	)
	err = uc.Repo.WithDateLock(ctx, current.Date, func(tx domain.Repository) error {
		occ, err := uc.Collector.WithRepo(tx).Collect(ctx, current.Date)
		if err != nil {
			return err
		}

		b, err = tx.UpdateBookingLocked(ctx, current.ID, func(b *models.Booking) error {
			if b.IsDepositPaid {
				return errAlreadyPaid
			}

			domain.MarkDepositPaid(b, e.SessionID, e.IntentID, now)
			if !e.AmountPaid.IsZero() {
				b.DepositAmount = e.AmountPaid
			}

			outcome = OutcomeApplied
			switch domain.StatusOf(b) {
			case domain.StatusPendingPayment:
				iv, err := domain.IntervalOf(b)
				if err != nil {
					return err
				}
				blocker, overlap = occ.Conflict(iv, b.ID)
				if overlap {
					outcome = OutcomeAppliedOverlap
				}
				return domain.Transition(b, domain.StatusPending)
			case domain.StatusCancelled:
				// Keep the cancellation; the salon refunds by hand.
				outcome = OutcomePaidAfterCancel
			}
			return nil
		})
		return err
	})
	if errors.Is(err, errAlreadyPaid) {
		log.Info("deposit already recorded")
		return OutcomeDuplicate, nil
	}
	if err != nil {
		return "", err
	}
	if b == nil {
		log.Error("payment for unknown booking")
		return OutcomeOrphan, nil
	}

	uc.releaseBookingHold(ctx, log, b)

	uc.dispatch(audit.Event{
		ActorID:  audit.ActorSystem,
		Action:   audit.ActionPaymentReceived,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"session_id": e.SessionID, "status": b.Status},
	})

	switch outcome {
	case OutcomePaidAfterCancel:
		log.Warn("deposit paid for a cancelled booking")
		uc.notify(notify.KindPaymentAnomaly, b, "deposit paid after the booking was cancelled, refund required")
	case OutcomeAppliedOverlap:
		uc.reportOverlap(log, b, blocker)
	default:
		uc.notify(notify.KindBookingCreated, b, "new booking request, deposit paid")
	}

	log.Info("deposit recorded", zap.String("status", b.Status))
	return outcome, nil
}

// createPaid inserts the booking of a deferred checkout. The payment is
// already captured, so an occupied slot never blocks the insert; it is
// reported instead.
func (uc *ReconcilePayment) createPaid(ctx context.Context, log *zap.Logger, e payment.CheckoutCompleted) (Outcome, error) {
	md := e.Metadata
	log = log.With(zap.String("date", md.Date), zap.String("start", md.StartTime))

	if err := md.Validate(); err != nil {
		log.Error("cannot create paid booking", zap.Error(err))
		return OutcomeOrphan, nil
	}
	iv, err := domain.ParseInterval(md.StartTime, md.EndTime)
	if err != nil {
		log.Error("cannot create paid booking", zap.Error(err))
		return OutcomeOrphan, nil
	}

	existing, err := uc.Repo.FindBookingBySession(ctx, e.SessionID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		log.Info("booking already created for session", zap.String("booking_id", existing.ID))
		uc.releaseHold(ctx, log, md, iv)
		return OutcomeDuplicate, nil
	}

	// The price is re-read; metadata only says which service was booked.
	svc, err := uc.Repo.GetService(ctx, md.ServiceID)
	if err != nil {
		return "", err
	}
	if svc == nil {
		log.Error("paid booking references a missing service", zap.Uint("service_id", md.ServiceID))
		return OutcomeOrphan, nil
	}

	now := uc.Clock.Now()
	b := &models.Booking{
		ID:             uuid.NewString(),
		UserID:         md.UserID,
		ServiceID:      svc.ID,
		Date:           md.Date,
		StartTime:      iv.Start.String(),
		EndTime:        iv.End.String(),
		Status:         string(domain.StatusPending),
		PriceAtBooking: svc.Price,
		Notes:          md.Notes,
		DepositAmount:  e.AmountPaid,
	}
	domain.MarkDepositPaid(b, e.SessionID, e.IntentID, now)

	var (
		duplicate bool
		blocker   schedule.Blocker
		overlap   bool
	)
	err = uc.Repo.WithDateLock(ctx, md.Date, func(tx domain.Repository) error {
		dup, err := tx.FindBookingBySession(ctx, e.SessionID)
		if err != nil {
			return err
		}
		if dup != nil {
			duplicate = true
			return nil
		}

		occ, err := uc.Collector.WithRepo(tx).Collect(ctx, md.Date)
		if err != nil {
			return err
		}
		blocker, overlap = occ.Conflict(iv, md.CheckoutRef)

		return tx.CreateBooking(ctx, b)
	})
	if httperr.IsUniqueViolation(err) {
		duplicate, err = true, nil
	}
	if err != nil {
		return "", err
	}

	uc.releaseHold(ctx, log, md, iv)

	if duplicate {
		log.Info("booking already created for session")
		return OutcomeDuplicate, nil
	}

	uc.Metrics.IncBookingCreated(string(config.CreationDeferred), b.Status)
	uc.dispatch(audit.Event{
		ActorID:  md.UserID,
		Action:   audit.ActionBookingCreated,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"status": b.Status, "path": string(config.CreationDeferred)},
	})
	uc.dispatch(audit.Event{
		ActorID:  audit.ActorSystem,
		Action:   audit.ActionPaymentReceived,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"session_id": e.SessionID},
	})

	if overlap {
		uc.reportOverlap(log, b, blocker)
		return OutcomeOverlap, nil
	}

	uc.notify(notify.KindBookingCreated, b, "new booking request, deposit paid")
	log.Info("paid booking created", zap.String("booking_id", b.ID))
	return OutcomeCreated, nil
}

// ======================================================
// EXPIRED
// ======================================================

// expired never touches booking status: a late expiry may follow a
// successful payment for the same booking. Stale rows are the janitor's job.
func (uc *ReconcilePayment) expired(ctx context.Context, e payment.CheckoutExpired) Outcome {
	log := uc.log.With(zap.String("session_id", e.SessionID))

	md := e.Metadata
	if md.Deferred() {
		if iv, err := domain.ParseInterval(md.StartTime, md.EndTime); err == nil {
			uc.releaseHold(ctx, log, md, iv)
		}
	} else if md.BookingID != "" {
		b, err := uc.Repo.GetBooking(ctx, md.BookingID)
		switch {
		case err != nil:
			log.Warn("cannot load booking of expired checkout", zap.Error(err))
		case b != nil:
			uc.releaseBookingHold(ctx, log, b)
		}
	}

	log.Info("checkout expired", zap.String("booking_id", e.Metadata.BookingID))
	uc.Metrics.IncWebhookEvent("checkout_expired", string(OutcomeReleased))
	return OutcomeReleased
}

// ======================================================
// HELPERS
// ======================================================

func (uc *ReconcilePayment) releaseHold(ctx context.Context, log *zap.Logger, md payment.Metadata, iv domain.Interval) {
	if uc.Holds == nil || md.CheckoutRef == "" {
		return
	}
	h := domain.Hold{Token: md.CheckoutRef, Date: md.Date, Interval: iv}
	if err := uc.Holds.Release(ctx, h); err != nil {
		log.Warn("cannot release slot hold", zap.String("token", md.CheckoutRef), zap.Error(err))
	}
}

// releaseBookingHold drops the hold taken for a PENDING_PAYMENT row.
func (uc *ReconcilePayment) releaseBookingHold(ctx context.Context, log *zap.Logger, b *models.Booking) {
	if uc.Holds == nil {
		return
	}
	h, err := domain.HoldFor(b)
	if err == nil {
		err = uc.Holds.Release(ctx, h)
	}
	if err != nil {
		log.Warn("cannot release slot hold", zap.String("token", b.ID), zap.Error(err))
	}
}

// reportOverlap raises a paid booking that landed on an occupied slot. The
// deposit is captured, so the booking stays and the salon resolves it.
func (uc *ReconcilePayment) reportOverlap(log *zap.Logger, b *models.Booking, blocker schedule.Blocker) {
	uc.Metrics.IncDeferredOverlap()
	log.Error("paid booking overlaps an occupied slot",
		zap.String("booking_id", b.ID),
		zap.String("race_policy", string(uc.opts.RacePolicy)),
		zap.String("conflict", blocker.Describe()),
	)
	uc.dispatch(audit.Event{
		ActorID:  audit.ActorSystem,
		Action:   audit.ActionDeferredOverlap,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"conflict": blocker.Describe(), "conflict_ref": blocker.Ref},
	})
	uc.notify(notify.KindPaymentAnomaly, b, "paid booking overlaps "+blocker.Describe())
}

func (uc *ReconcilePayment) dispatch(ev audit.Event) {
	if uc.Audit != nil {
		uc.Audit.Dispatch(ev)
	}
}

func (uc *ReconcilePayment) notify(kind notify.Kind, b *models.Booking, msg string) {
	if uc.Notifier == nil {
		return
	}
	uc.Notifier.Notify(notify.Notification{
		Kind:      kind,
		Audience:  notify.AudienceAdmin,
		BookingID: b.ID,
		UserID:    b.UserID,
		Date:      b.Date,
		StartTime: b.StartTime,
		Message:   msg,
	})
}

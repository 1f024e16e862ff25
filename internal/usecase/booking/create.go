package booking

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	"github.com/TabarBaptiste/masseuse/internal/config"
	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/notify"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

// ======================================================
// INPUT / OUTPUT
// ======================================================

type CreateInput struct {
	Caller domain.Caller
	// UserID lets an admin book on behalf of a client. Empty means the
	// caller.
	UserID    string
	ServiceID uint
	Date      string
	StartTime string
	Notes     string
}

// CreateOutput carries the booking row, the checkout to pay, or both.
// A deferred create has no booking yet.
type CreateOutput struct {
	Booking  *models.Booking          `json:"booking,omitempty"`
	Checkout *payment.CheckoutSession `json:"checkout,omitempty"`
}

func (o CreateOutput) Deferred() bool {
	return o.Booking == nil && o.Checkout != nil
}

// holdGrace keeps a hold alive past the provider's session expiry, long
// enough for the last webhook to arrive.
const holdGrace = time.Minute

type CreateOptions struct {
	Mode                    config.CreationMode
	RacePolicy              config.RacePolicy
	AdminBypassAvailability bool
	CheckoutTTL             time.Duration
}

// ======================================================
// USE CASE
// ======================================================

type CreateBooking struct {
	Deps
	resolver  *schedule.AvailabilityResolver
	collector *schedule.OccupancyCollector
	provider  payment.Provider
	opts      CreateOptions
	log       *zap.Logger
}

// NewCreateBooking wires the write path. deps.Holds and provider may be nil:
// no slot holds are taken without a store and no deposit is collected
// without a provider.
func NewCreateBooking(
	deps Deps,
	resolver *schedule.AvailabilityResolver,
	collector *schedule.OccupancyCollector,
	provider payment.Provider,
	opts CreateOptions,
) *CreateBooking {
	if opts.CheckoutTTL <= 0 {
		opts.CheckoutTTL = 30 * time.Minute
	}
	return &CreateBooking{
		Deps:      deps,
		resolver:  resolver,
		collector: collector,
		provider:  provider,
		opts:      opts,
		log:       deps.Log.With(zap.String("usecase", "create_booking")),
	}
}

// request is a validated CreateInput.
type request struct {
	owner    string
	service  *models.Service
	date     time.Time
	interval domain.Interval
	policy   domain.Policy
	now      time.Time
}

func (r request) dateKey() string {
	return r.date.Format(domain.DateLayout)
}

// ======================================================
// EXECUTE
// ======================================================

func (uc *CreateBooking) Execute(ctx context.Context, in CreateInput) (*CreateOutput, error) {
	out, err := uc.execute(ctx, in)
	if be, ok := httperr.AsBusiness(err); ok {
		uc.Metrics.IncBookingRejected(be.Code)
		uc.log.Info("booking rejected",
			zap.String("code", be.Code),
			zap.String("date", in.Date),
			zap.String("start", in.StartTime),
			zap.String("caller", in.Caller.ID),
		)
	}
	return out, err
}

func (uc *CreateBooking) execute(ctx context.Context, in CreateInput) (*CreateOutput, error) {
	req, err := uc.validate(ctx, in)
	if err != nil {
		return nil, err
	}

	if uc.opts.Mode == config.CreationDeferred && req.policy.RequiresDeposit() && uc.provider != nil {
		return uc.openDeferredCheckout(ctx, in, req)
	}
	return uc.insertDirect(ctx, in, req)
}

// validate runs every check that does not depend on the current occupancy.
func (uc *CreateBooking) validate(ctx context.Context, in CreateInput) (request, error) {
	loc := uc.Clock.Location()
	now := uc.Clock.Now().In(loc)

	// --------------------------------------------------
	// Input
	// --------------------------------------------------
	date, err := domain.ParseDate(in.Date, loc)
	if err != nil {
		return request{}, httperr.Invalid("invalid_date", "%v", err)
	}
	start, err := domain.ParseClock(in.StartTime)
	if err != nil {
		return request{}, httperr.Invalid("invalid_time", "%v", err)
	}
	if n := utf8.RuneCountInString(in.Notes); n > MaxNotesLength {
		return request{}, httperr.Invalid("notes_too_long", "notes are limited to %d characters, got %d", MaxNotesLength, n)
	}

	// --------------------------------------------------
	// Ownership
	// --------------------------------------------------
	if err := domain.CanCreateFor(in.Caller, in.UserID); err != nil {
		return request{}, err
	}
	owner := in.UserID
	if owner == "" {
		owner = in.Caller.ID
	}
	if owner == "" {
		return request{}, httperr.Invalid("missing_user", "a booking needs a user")
	}

	// --------------------------------------------------
	// Service
	// --------------------------------------------------
	svc, err := uc.Repo.GetService(ctx, in.ServiceID)
	if err != nil {
		return request{}, err
	}
	if svc == nil {
		return request{}, httperr.NotFoundErr("service_not_found", "service %d does not exist", in.ServiceID)
	}
	if !svc.Active {
		return request{}, httperr.PolicyViolation("service_inactive", "service %q is not bookable", svc.Name)
	}
	if svc.DurationMin <= 0 {
		return request{}, httperr.PolicyViolation("service_invalid_duration", "service %q has no duration", svc.Name)
	}

	end := start + domain.Minute(svc.DurationMin)
	if end > domain.DayEnd {
		return request{}, httperr.PolicyViolation("past_midnight", "a %d minute service cannot start at %s", svc.DurationMin, start)
	}
	iv := domain.Interval{Start: start, End: end}

	// --------------------------------------------------
	// Advance window
	// --------------------------------------------------
	policy, err := uc.loadPolicy(ctx)
	if err != nil {
		return request{}, err
	}
	if err := policy.CheckAdvance(now, date); err != nil {
		return request{}, err
	}
	if !domain.At(date, start, loc).After(now) {
		return request{}, httperr.PolicyViolation("slot_in_past", "%s %s has already started", in.Date, start)
	}

	// --------------------------------------------------
	// Weekly availability
	// --------------------------------------------------
	if !(in.Caller.Privileged() && uc.opts.AdminBypassAvailability) {
		windows, err := uc.resolver.Resolve(ctx, date)
		if err != nil {
			return request{}, err
		}
		if !schedule.Covers(windows, iv) {
			return request{}, httperr.PolicyViolation(
				"outside_availability",
				"%s on %s is outside opening hours",
				iv, in.Date,
			)
		}
	}

	return request{
		owner:    owner,
		service:  svc,
		date:     date,
		interval: iv,
		policy:   policy,
		now:      now,
	}, nil
}

// checkFree re-derives occupancy through tx. Callers hold the date lock.
func (uc *CreateBooking) checkFree(ctx context.Context, tx domain.Repository, date string, iv domain.Interval) error {
	occ, err := uc.collector.WithRepo(tx).Collect(ctx, date)
	if err != nil {
		return err
	}
	if blocker, busy := occ.Conflict(iv, ""); busy {
		return httperr.SlotUnavailable(
			"slot_unavailable",
			"%s on %s overlaps %s",
			iv, date, blocker.Describe(),
		)
	}
	return nil
}

// ======================================================
// DIRECT
// ======================================================

func (uc *CreateBooking) insertDirect(ctx context.Context, in CreateInput, req request) (*CreateOutput, error) {
	collectDeposit := req.policy.RequiresDeposit() && uc.provider != nil

	b := &models.Booking{
		ID:             uuid.NewString(),
		UserID:         req.owner,
		ServiceID:      req.service.ID,
		Date:           req.dateKey(),
		StartTime:      req.interval.Start.String(),
		EndTime:        req.interval.End.String(),
		Status:         string(domain.StatusPending),
		PriceAtBooking: req.service.Price,
		Notes:          in.Notes,
	}
	if collectDeposit {
		b.Status = string(domain.StatusPendingPayment)
		b.DepositAmount = req.policy.DepositAmount
	}

	// PENDING_PAYMENT rows may not occupy the slot, so the hold is what
	// keeps a second client off it until the deposit is paid.
	hold := domain.Hold{Token: b.ID, Date: b.Date, Interval: req.interval}
	holding := collectDeposit && uc.Holds != nil

	err := uc.Repo.WithDateLock(ctx, b.Date, func(tx domain.Repository) error {
		if err := uc.checkFree(ctx, tx, b.Date, req.interval); err != nil {
			return err
		}
		if holding {
			if err := uc.Holds.Acquire(ctx, hold, uc.opts.CheckoutTTL); err != nil {
				return err
			}
		}
		return tx.CreateBooking(ctx, b)
	})
	if err != nil && holding {
		uc.releaseHold(ctx, uc.log, b)
	}
	if httperr.IsExclusionConflict(err) {
		return nil, httperr.SlotUnavailable("slot_unavailable", "%s on %s was just taken", req.interval, b.Date)
	}
	if err != nil {
		return nil, err
	}

	out := &CreateOutput{Booking: b}

	if collectDeposit {
		session, err := uc.openLegacyCheckout(ctx, req, b)
		if err != nil {
			uc.abandon(ctx, b, req.now)
			return nil, err
		}
		if holding {
			uc.extendHold(ctx, hold, session, req.now)
		}
		out.Checkout = session
	}

	uc.Metrics.IncBookingCreated(string(config.CreationDirect), b.Status)
	uc.log.Info("booking created",
		zap.String("booking_id", b.ID),
		zap.String("user_id", b.UserID),
		zap.String("date", b.Date),
		zap.String("start", b.StartTime),
		zap.String("status", b.Status),
	)
	uc.dispatch(audit.Event{
		ActorID:  in.Caller.ID,
		Action:   audit.ActionBookingCreated,
		Entity:   audit.EntityBooking,
		EntityID: b.ID,
		Metadata: map[string]string{"status": b.Status, "path": string(config.CreationDirect)},
	})
	uc.notify(notify.KindBookingCreated, notify.AudienceAdmin, b, "new booking request")

	return out, nil
}

// openLegacyCheckout opens a deposit checkout for an existing row and stores
// the session id on it.
func (uc *CreateBooking) openLegacyCheckout(ctx context.Context, req request, b *models.Booking) (*payment.CheckoutSession, error) {
	session, err := uc.provider.CreateCheckout(ctx, payment.CheckoutRequest{
		Reference:   b.ID,
		Description: describe(req),
		Amount:      req.policy.DepositAmount,
		CustomerID:  b.UserID,
		ExpiresAt:   req.now.Add(uc.opts.CheckoutTTL),
		Metadata:    payment.Metadata{BookingID: b.ID, CheckoutRef: b.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout: %w", err)
	}

	stored, err := uc.Repo.UpdateBookingLocked(ctx, b.ID, func(row *models.Booking) error {
		row.ExternalPaymentSessionID = &session.ID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store checkout session: %w", err)
	}
	if stored != nil {
		*b = *stored
	}
	return session, nil
}

// abandon cancels a PENDING_PAYMENT row whose checkout could not be opened.
func (uc *CreateBooking) abandon(ctx context.Context, b *models.Booking, now time.Time) {
	uc.releaseHold(ctx, uc.log, b)

	stored, err := uc.Repo.UpdateBookingLocked(ctx, b.ID, func(row *models.Booking) error {
		row.ExternalPaymentSessionID = nil
		return domain.Cancel(row, "checkout_failed", now)
	})
	if err != nil {
		uc.log.Error("cannot cancel booking after checkout failure", zap.String("booking_id", b.ID), zap.Error(err))
		return
	}
	if stored != nil {
		*b = *stored
	}
}

// extendHold keeps hold alive until the provider's session is really gone.
// Providers may stretch the requested expiry (Stripe refuses anything under
// 30 minutes).
func (uc *CreateBooking) extendHold(ctx context.Context, hold domain.Hold, session *payment.CheckoutSession, now time.Time) {
	if session.ExpiresAt.IsZero() {
		return
	}
	ttl := session.ExpiresAt.Sub(now) + holdGrace
	if ttl <= uc.opts.CheckoutTTL {
		return
	}
	if err := uc.Holds.Acquire(ctx, hold, ttl); err != nil {
		uc.log.Warn("cannot extend slot hold",
			zap.String("token", hold.Token),
			zap.Duration("ttl", ttl),
			zap.Error(err),
		)
	}
}

// ======================================================
// DEFERRED
// ======================================================

// openDeferredCheckout writes nothing to the database. The booking is
// inserted by the payment reconciler once the deposit is captured.
func (uc *CreateBooking) openDeferredCheckout(ctx context.Context, in CreateInput, req request) (*CreateOutput, error) {
	ref := uuid.NewString()
	date := req.dateKey()
	hold := domain.Hold{Token: ref, Date: date, Interval: req.interval}
	holding := uc.opts.RacePolicy == config.RaceSlotHold && uc.Holds != nil

	err := uc.Repo.WithDateLock(ctx, date, func(tx domain.Repository) error {
		if err := uc.checkFree(ctx, tx, date, req.interval); err != nil {
			return err
		}
		if holding {
			return uc.Holds.Acquire(ctx, hold, uc.opts.CheckoutTTL)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	session, err := uc.provider.CreateCheckout(ctx, payment.CheckoutRequest{
		Reference:   ref,
		Description: describe(req),
		Amount:      req.policy.DepositAmount,
		CustomerID:  req.owner,
		ExpiresAt:   req.now.Add(uc.opts.CheckoutTTL),
		Metadata: payment.Metadata{
			UserID:      req.owner,
			ServiceID:   req.service.ID,
			Date:        date,
			StartTime:   req.interval.Start.String(),
			EndTime:     req.interval.End.String(),
			Notes:       in.Notes,
			CheckoutRef: ref,
		},
	})
	if err != nil {
		if holding {
			if rerr := uc.Holds.Release(ctx, hold); rerr != nil {
				uc.log.Warn("cannot release slot hold", zap.String("token", ref), zap.Error(rerr))
			}
		}
		return nil, fmt.Errorf("create checkout: %w", err)
	}
	if holding {
		uc.extendHold(ctx, hold, session, req.now)
	}

	uc.log.Info("deferred checkout opened",
		zap.String("session_id", session.ID),
		zap.String("ref", ref),
		zap.String("user_id", req.owner),
		zap.String("date", date),
		zap.String("start", hold.Interval.Start.String()),
		zap.Bool("slot_held", holding),
	)

	return &CreateOutput{Checkout: session}, nil
}

func describe(req request) string {
	return fmt.Sprintf("%s, %s %s", req.service.Name, req.dateKey(), req.interval.Start)
}

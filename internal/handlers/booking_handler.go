package handlers

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/httpresp"
	"github.com/TabarBaptiste/masseuse/internal/middleware"
	ucbooking "github.com/TabarBaptiste/masseuse/internal/usecase/booking"
	"github.com/TabarBaptiste/masseuse/internal/validators"
)

// ======================================================
// HANDLER
// ======================================================

type BookingHandler struct {
	create *ucbooking.CreateBooking
	update *ucbooking.UpdateBooking
	cancel *ucbooking.CancelBooking
	log    *zap.Logger
}

func NewBookingHandler(
	create *ucbooking.CreateBooking,
	update *ucbooking.UpdateBooking,
	cancel *ucbooking.CancelBooking,
	log *zap.Logger,
) *BookingHandler {
	return &BookingHandler{
		create: create,
		update: update,
		cancel: cancel,
		log:    log.With(zap.String("handler", "bookings")),
	}
}

// ======================================================
// REQUESTS
// ======================================================

type CreateBookingRequest struct {
	ServiceID uint   `json:"serviceId" binding:"required"`
	Date      string `json:"date" binding:"required,isodate"`
	StartTime string `json:"startTime" binding:"required,hhmm"`
	Notes     string `json:"notes" binding:"max=500"`
	// UserID is honoured for admins only.
	UserID string `json:"userId" binding:"max=64"`
}

type UpdateBookingRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes" binding:"omitempty,max=500"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

func requireCaller(c *gin.Context) (domain.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		httperr.Unauthorized(c, "unauthenticated", "Authentication required.")
	}
	return caller, ok
}

// ======================================================
// CREATE
// ======================================================

func (h *BookingHandler) Create(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", validators.Describe(err))
		return
	}

	out, err := h.create.Execute(c.Request.Context(), ucbooking.CreateInput{
		Caller:    caller,
		UserID:    req.UserID,
		ServiceID: req.ServiceID,
		Date:      req.Date,
		StartTime: req.StartTime,
		Notes:     req.Notes,
	})
	if err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	if out.Deferred() {
		httpresp.OK(c, out.Checkout)
		return
	}
	httpresp.Created(c, out)
}

// ======================================================
// UPDATE
// ======================================================

func (h *BookingHandler) Update(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req UpdateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", validators.Describe(err))
		return
	}

	patch := domain.Patch{Notes: req.Notes}
	if req.Status != nil {
		s := domain.Status(*req.Status)
		patch.Status = &s
	}

	b, err := h.update.Execute(c.Request.Context(), ucbooking.UpdateInput{
		Caller:    caller,
		BookingID: c.Param("id"),
		Patch:     patch,
	})
	if err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	httpresp.OK(c, b)
}

// ======================================================
// CANCEL
// ======================================================

// Cancel accepts an empty body.
func (h *BookingHandler) Cancel(c *gin.Context) {
	caller, ok := requireCaller(c)
	if !ok {
		return
	}

	var req CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		httperr.BadRequest(c, "invalid_request", validators.Describe(err))
		return
	}

	b, err := h.cancel.Execute(c.Request.Context(), ucbooking.CancelInput{
		Caller:    caller,
		BookingID: c.Param("id"),
		Reason:    req.Reason,
	})
	if err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	httpresp.OK(c, b)
}

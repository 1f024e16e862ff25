package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/httpresp"
	"github.com/TabarBaptiste/masseuse/internal/usecase/schedule"
)

type SlotHandler struct {
	getSlots *schedule.GetSlots
	log      *zap.Logger
}

func NewSlotHandler(getSlots *schedule.GetSlots, log *zap.Logger) *SlotHandler {
	return &SlotHandler{
		getSlots: getSlots,
		log:      log.With(zap.String("handler", "slots")),
	}
}

// List handles GET /api/services/:id/slots?date=YYYY-MM-DD.
func (h *SlotHandler) List(c *gin.Context) {
	serviceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || serviceID == 0 {
		httperr.BadRequest(c, "invalid_service_id", "Service id must be a positive integer.")
		return
	}

	date := c.Query("date")
	if date == "" {
		httperr.BadRequest(c, "missing_date", "Query parameter date is required.")
		return
	}

	out, err := h.getSlots.Execute(c.Request.Context(), schedule.SlotsInput{
		ServiceID: uint(serviceID),
		Date:      date,
	})
	if err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	httpresp.OK(c, out)
}

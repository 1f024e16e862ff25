package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	domain "github.com/TabarBaptiste/masseuse/internal/domain/booking"
	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/httpresp"
	"github.com/TabarBaptiste/masseuse/internal/models"
	"github.com/TabarBaptiste/masseuse/internal/validators"
)

// WorkingHoursHandler lets the salon edit its weekly windows and one-off
// blocked periods. Both feed slot generation and the conflict auditor.
type WorkingHoursHandler struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewWorkingHoursHandler(db *gorm.DB, log *zap.Logger) *WorkingHoursHandler {
	return &WorkingHoursHandler{
		db:  db,
		log: log.With(zap.String("handler", "working_hours")),
	}
}

type WindowConfig struct {
	DayOfWeek *int   `json:"dayOfWeek" binding:"required,min=0,max=6"`
	StartTime string `json:"startTime" binding:"required,hhmm"`
	EndTime   string `json:"endTime" binding:"required,hhmm"`
	Active    bool   `json:"active"`
}

type AvailabilityUpdateRequest struct {
	Windows []WindowConfig `json:"windows" binding:"dive"`
}

type BlockedSlotRequest struct {
	Date      string `json:"date" binding:"required,isodate"`
	StartTime string `json:"startTime" binding:"required,hhmm"`
	EndTime   string `json:"endTime" binding:"required,hhmm"`
	Reason    string `json:"reason" binding:"max=255"`
}

// ======================================================
// WEEKLY AVAILABILITY
// ======================================================

func (h *WorkingHoursHandler) GetAvailability(c *gin.Context) {
	var rows []models.WeeklyAvailability
	if err := h.db.WithContext(c.Request.Context()).
		Order("day_of_week ASC").
		Order("start_time ASC").
		Find(&rows).Error; err != nil {
		h.log.Error("list availability", zap.Error(err))
		httperr.Internal(c, "availability_list_failed", "Cannot list availability.")
		return
	}
	if rows == nil {
		rows = []models.WeeklyAvailability{}
	}
	httpresp.OK(c, rows)
}

// UpdateAvailability replaces the whole weekly schedule.
func (h *WorkingHoursHandler) UpdateAvailability(c *gin.Context) {
	var req AvailabilityUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", validators.Describe(err))
		return
	}

	rows := make([]models.WeeklyAvailability, 0, len(req.Windows))
	for _, w := range req.Windows {
		rows = append(rows, models.WeeklyAvailability{
			DayOfWeek: *w.DayOfWeek,
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
			Active:    w.Active,
		})
	}
	if err := checkWindows(rows); err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.WeeklyAvailability{}).Error; err != nil {
			return fmt.Errorf("clear availability: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		// Active has a column default; select it so false is written.
		return tx.Select("DayOfWeek", "StartTime", "EndTime", "Active").Create(&rows).Error
	})
	if err != nil {
		h.log.Error("replace availability", zap.Error(err))
		httperr.Internal(c, "availability_save_failed", "Cannot save availability.")
		return
	}

	h.log.Info("weekly availability replaced", zap.Int("windows", len(rows)))
	httpresp.OK(c, rows)
}

// checkWindows rejects inverted windows and active windows overlapping on
// the same weekday.
func checkWindows(rows []models.WeeklyAvailability) error {
	byDay := map[int][]domain.Interval{}
	for _, r := range rows {
		iv, err := domain.ParseInterval(r.StartTime, r.EndTime)
		if err != nil {
			return httperr.Invalid("invalid_window", "day %d %s-%s: %v", r.DayOfWeek, r.StartTime, r.EndTime, err)
		}
		if r.Active {
			byDay[r.DayOfWeek] = append(byDay[r.DayOfWeek], iv)
		}
	}
	for day, ivs := range byDay {
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].Start < ivs[j].Start })
		for i := 1; i < len(ivs); i++ {
			if ivs[i].Overlaps(ivs[i-1]) {
				return httperr.Invalid("overlapping_windows", "day %d: %s overlaps %s", day, ivs[i], ivs[i-1])
			}
		}
	}
	return nil
}

// ======================================================
// BLOCKED SLOTS
// ======================================================

func (h *WorkingHoursHandler) ListBlocked(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Model(&models.BlockedSlot{})
	if from := c.Query("from"); from != "" {
		q = q.Where("date >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		q = q.Where("date <= ?", to)
	}

	var rows []models.BlockedSlot
	if err := q.Order("date ASC").Order("start_time ASC").Find(&rows).Error; err != nil {
		h.log.Error("list blocked slots", zap.Error(err))
		httperr.Internal(c, "blocked_list_failed", "Cannot list blocked slots.")
		return
	}
	if rows == nil {
		rows = []models.BlockedSlot{}
	}
	httpresp.OK(c, rows)
}

// CreateBlocked never touches existing bookings; the conflict auditor
// reports any booking the new block now covers.
func (h *WorkingHoursHandler) CreateBlocked(c *gin.Context) {
	var req BlockedSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", validators.Describe(err))
		return
	}
	if _, err := domain.ParseInterval(req.StartTime, req.EndTime); err != nil {
		httperr.BadRequest(c, "invalid_interval", "startTime must be before endTime.")
		return
	}

	row := models.BlockedSlot{
		Date:      req.Date,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Reason:    req.Reason,
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&row).Error; err != nil {
		h.log.Error("create blocked slot", zap.Error(err))
		httperr.Internal(c, "blocked_save_failed", "Cannot save blocked slot.")
		return
	}

	h.log.Info("blocked slot created", zap.Uint("id", row.ID), zap.String("date", row.Date))
	httpresp.Created(c, row)
}

func (h *WorkingHoursHandler) DeleteBlocked(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		httperr.BadRequest(c, "invalid_id", "Blocked slot id must be a positive integer.")
		return
	}

	res := h.db.WithContext(c.Request.Context()).Delete(&models.BlockedSlot{}, id)
	if res.Error != nil {
		h.log.Error("delete blocked slot", zap.Error(res.Error))
		httperr.Internal(c, "blocked_delete_failed", "Cannot delete blocked slot.")
		return
	}
	if res.RowsAffected == 0 {
		httperr.NotFound(c, "blocked_not_found", "Blocked slot not found.")
		return
	}
	c.Status(http.StatusNoContent)
}

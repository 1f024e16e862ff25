package handlers

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/httpresp"
	"github.com/TabarBaptiste/masseuse/internal/report"
	"github.com/TabarBaptiste/masseuse/internal/usecase/conflict"
)

type ConflictHandler struct {
	audit *conflict.AuditConflicts
	log   *zap.Logger
}

func NewConflictHandler(audit *conflict.AuditConflicts, log *zap.Logger) *ConflictHandler {
	return &ConflictHandler{
		audit: audit,
		log:   log.With(zap.String("handler", "conflicts")),
	}
}

func (h *ConflictHandler) run(c *gin.Context) (*conflict.Report, bool) {
	r, err := h.audit.Execute(c.Request.Context(), conflict.Range{
		From: c.Query("from"),
		To:   c.Query("to"),
	})
	if err != nil {
		httperr.Respond(c, h.log, err)
		return nil, false
	}
	return r, true
}

// Report handles GET /api/admin/conflicts.
func (h *ConflictHandler) Report(c *gin.Context) {
	if r, ok := h.run(c); ok {
		httpresp.OK(c, r)
	}
}

// Summary handles GET /api/admin/conflicts/summary.
func (h *ConflictHandler) Summary(c *gin.Context) {
	if r, ok := h.run(c); ok {
		httpresp.OK(c, conflict.Summarize(r))
	}
}

// Export handles GET /api/admin/conflicts/export.
func (h *ConflictHandler) Export(c *gin.Context) {
	r, ok := h.run(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteConflicts(&buf, r); err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+report.FileName(r)+`"`)
	c.Data(http.StatusOK, report.ContentTypeXLSX, buf.Bytes())
}

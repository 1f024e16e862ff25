package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/httperr"
	"github.com/TabarBaptiste/masseuse/internal/payment"
	"github.com/TabarBaptiste/masseuse/internal/usecase/reconcile"
)

const maxWebhookBody = 1 << 20

type WebhookHandler struct {
	reconcile *reconcile.ReconcilePayment
	log       *zap.Logger
}

func NewWebhookHandler(uc *reconcile.ReconcilePayment, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconcile: uc,
		log:       log.With(zap.String("handler", "payment_webhook")),
	}
}

// Handle passes the raw body through untouched; the signature covers the
// exact bytes. Any verified delivery is acknowledged, acted upon or not.
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		httperr.BadRequest(c, "unreadable_body", "Cannot read request body.")
		return
	}

	outcome, err := h.reconcile.Execute(c.Request.Context(), payment.WebhookRequest{
		Payload: body,
		Header:  c.Request.Header,
		Query:   c.Request.URL.Query(),
	})
	if err != nil {
		httperr.Respond(c, h.log, err)
		return
	}

	h.log.Debug("webhook acknowledged", zap.String("outcome", string(outcome)))
	c.JSON(http.StatusOK, gin.H{"received": true})
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	paymentapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/domain/payment"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

// Maximum webhook payload size; provider notifications are a few hundred bytes
const maxWebhookPayloadSize = 65536

// WebhookProcessor applies a payment notification
type WebhookProcessor interface {
	Process(ctx context.Context, n payment.Notification, raw []byte) (*paymentapp.WebhookResult, error)
}

// PaymentWebhookHandler receives payment provider notifications.
// The provider calls it without credentials.
type PaymentWebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(processor WebhookProcessor) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{processor: processor}
}

// Handle godoc
// @Summary      Receive a payment notification
// @Description  Called by the payment provider. The payment is fetched back from the provider before the local status changes, and an approved payment settles its debt once.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        request body payment.Notification true "Provider notification"
// @Success      200 {object} dto.Response{data=paymentapp.WebhookResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      405 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /functions/v1/payment-webhook [post]
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "Payload too large")
			return
		}
		h.BadRequest(c, dto.ErrCodeBadRequest, "Failed to read request body")
		return
	}
	if len(payload) > maxWebhookPayloadSize {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "Payload too large")
		return
	}

	var n payment.Notification
	if err := json.Unmarshal(payload, &n); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidJSON, "Invalid JSON body")
		return
	}

	result, err := h.processor.Process(c.Request.Context(), n, payload)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

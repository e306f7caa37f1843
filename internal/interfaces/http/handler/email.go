package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	emailapp "github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/application/email"
	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/interfaces/http/dto"
)

// EmailSender sends a templated email
type EmailSender interface {
	Send(ctx context.Context, req emailapp.SendRequest) (*emailapp.SendResult, error)
}

// EmailHandler relays transactional email for the web app
type EmailHandler struct {
	BaseHandler
	sender EmailSender
}

// NewEmailHandler creates a new EmailHandler
func NewEmailHandler(sender EmailSender) *EmailHandler {
	return &EmailHandler{sender: sender}
}

// Send godoc
// @Summary      Send an email
// @Description  Sends a transactional email, either from a named template or from a subject with optional html and text bodies
// @Tags         email
// @Accept       json
// @Produce      json
// @Param        request body emailapp.SendRequest true "Email to send"
// @Success      200 {object} dto.Response{data=emailapp.SendResult}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      405 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /functions/v1/send-email [post]
func (h *EmailHandler) Send(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeTooLarge, "Request body exceeds maximum allowed size")
		return
	}

	var req emailapp.SendRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.BadRequest(c, dto.ErrCodeInvalidJSON, "Invalid JSON body")
		return
	}

	result, err := h.sender.Send(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

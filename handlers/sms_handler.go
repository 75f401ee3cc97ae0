package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
	"github.com/onurcolak/bulk-dispatch-service/pkg/sms"
	"github.com/onurcolak/bulk-dispatch-service/pkg/validator"
)

type smsSender interface {
	SendBulk(ctx context.Context, req domain.SMSBulkRequest) (*domain.BatchSummary, error)
	SendSingle(ctx context.Context, req domain.SMSSingleRequest) (*domain.MessageLog, error)
	GetCredits(ctx context.Context) (*sms.Credits, error)
}

type SMSHandler struct {
	sms smsSender
}

func NewSMSHandler(sender smsSender) *SMSHandler {
	return &SMSHandler{sms: sender}
}

// SendBulk godoc
// @Summary Send a text message to many recipients
// @Description Personalizes the message per recipient and sends one SMS each. Returns final counts.
// @Tags sms
// @Accept json
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param request body domain.SMSBulkRequest true "SMS submission"
// @Success 200 {object} response.SuccessResponse{data=domain.BatchSummary}
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/send-bulk [post]
func (h *SMSHandler) SendBulk(c echo.Context) error {
	var req domain.SMSBulkRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	summary, err := h.sms.SendBulk(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, "SMS batch processed", summary)
}

// Send godoc
// @Summary Send one text message
// @Description Sends the message unchanged to one phone number and records it. A failed send is recorded and answered with 400.
// @Tags sms
// @Accept json
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param request body domain.SMSSingleRequest true "Single SMS"
// @Success 200 {object} response.SuccessResponse{data=domain.MessageLog}
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/sms/send [post]
func (h *SMSHandler) Send(c echo.Context) error {
	var req domain.SMSSingleRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	row, err := h.sms.SendSingle(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, "SMS sent", row)
}

// GetCredits godoc
// @Summary SMS account balance
// @Tags sms
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Success 200 {object} response.SuccessResponse{data=sms.Credits}
// @Failure 502 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/sms/credits [get]
func (h *SMSHandler) GetCredits(c echo.Context) error {
	credits, err := h.sms.GetCredits(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}

	return response.Ok(c, credits)
}

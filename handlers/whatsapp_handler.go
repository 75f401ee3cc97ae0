package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/internal/service"
	"github.com/onurcolak/bulk-dispatch-service/internal/templating"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
	"github.com/onurcolak/bulk-dispatch-service/pkg/validator"
)

const defaultTemplateStatus = "APPROVED"

type templateSender interface {
	ListTemplates(ctx context.Context, status string) ([]templating.TemplateView, error)
	ConfigStatus() service.ConfigStatus
	SendTemplateBulk(ctx context.Context, req domain.TemplateBulkRequest) (*domain.BatchSummary, error)
	SendTemplateSingle(ctx context.Context, req domain.TemplateSingleRequest) (*domain.MessageLog, error)
}

type WhatsAppHandler struct {
	templates templateSender
}

func NewWhatsAppHandler(templates templateSender) *WhatsAppHandler {
	return &WhatsAppHandler{templates: templates}
}

// ListTemplates godoc
// @Summary List WhatsApp templates
// @Description Returns the business account templates with their header/body/footer, buttons and variable names
// @Tags whatsapp
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param status query string false "Template status filter (default: APPROVED)"
// @Success 200 {object} response.SuccessResponse{data=[]templating.TemplateView}
// @Failure 502 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/whatsapp/templates [get]
func (h *WhatsAppHandler) ListTemplates(c echo.Context) error {
	status := c.QueryParam("status")
	if status == "" {
		status = defaultTemplateStatus
	}

	views, err := h.templates.ListTemplates(c.Request().Context(), status)
	if err != nil {
		return respondError(c, err)
	}

	return response.Ok(c, views)
}

// SendTemplate godoc
// @Summary Send a WhatsApp template to many recipients
// @Description Binds template variables per recipient from the variable mapping and sends one message per recipient. Returns final counts.
// @Tags whatsapp
// @Accept json
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param request body domain.TemplateBulkRequest true "Template send"
// @Success 200 {object} response.SuccessResponse{data=domain.BatchSummary}
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/whatsapp/send-template [post]
func (h *WhatsAppHandler) SendTemplate(c echo.Context) error {
	var req domain.TemplateBulkRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	summary, err := h.templates.SendTemplateBulk(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, "Template batch processed", summary)
}

// SendSingle godoc
// @Summary Send a WhatsApp template to one recipient
// @Description Sends the template with the given named variables and records it. A failed send is recorded and answered with 400.
// @Tags whatsapp
// @Accept json
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param request body domain.TemplateSingleRequest true "Single template send"
// @Success 200 {object} response.SuccessResponse{data=domain.MessageLog}
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/whatsapp/send-single [post]
func (h *WhatsAppHandler) SendSingle(c echo.Context) error {
	var req domain.TemplateSingleRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	row, err := h.templates.SendTemplateSingle(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, "Template sent", row)
}

// ConfigStatus godoc
// @Summary WhatsApp API configuration status
// @Tags whatsapp
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Success 200 {object} response.SuccessResponse{data=service.ConfigStatus}
// @Router /api/v1/whatsapp/config-status [get]
func (h *WhatsAppHandler) ConfigStatus(c echo.Context) error {
	return response.Ok(c, h.templates.ConfigStatus())
}

package handlers

import (
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/dispatcher"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
)

type statusReporter interface {
	GetStatus() dispatcher.Status
}

type DispatcherHandler struct {
	dispatcher statusReporter
}

func NewDispatcherHandler(d statusReporter) *DispatcherHandler {
	return &DispatcherHandler{dispatcher: d}
}

// GetDispatcherStatus godoc
// @Summary Get dispatcher status
// @Description Returns worker pool state, queue depth and task counters of the delivery dispatcher
// @Tags dispatcher
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for dispatcher"
// @Success 200 {object} response.SuccessResponse{data=dispatcher.Status}
// @Router /api/v1/dispatcher/status [get]
func (h *DispatcherHandler) GetDispatcherStatus(c echo.Context) error {
	return response.Ok(c, h.dispatcher.GetStatus())
}

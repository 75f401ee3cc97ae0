package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
)

type historyReader interface {
	List(ctx context.Context, filter domain.HistoryFilter) ([]domain.MessageLog, int64, error)
	Stats(ctx context.Context, days int) (*domain.Stats, error)
	Batch(ctx context.Context, batchID string) ([]domain.MessageLog, error)
	Count(ctx context.Context, filter domain.HistoryFilter) (int64, error)
	Delete(ctx context.Context, filter domain.HistoryFilter) (int64, error)
}

type countResponse struct {
	Count int64 `json:"count"`
}

type deleteResponse struct {
	Deleted int64 `json:"deleted"`
}

type HistoryHandler struct {
	history historyReader
}

func NewHistoryHandler(history historyReader) *HistoryHandler {
	return &HistoryHandler{history: history}
}

// ListHistory godoc
// @Summary Get message history
// @Description Retrieves a paginated list of log rows, newest first, with optional filters
// @Tags history
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Param status query string false "Filter by status (pending, sent, failed)"
// @Param channel query string false "Filter by channel (whatsapp, email, sms, both)"
// @Param search query string false "Matches recipient name, phone or email"
// @Param batchId query string false "Filter by batch id"
// @Param dateFrom query string false "Rows sent at or after (YYYY-MM-DD or RFC 3339)"
// @Param dateTo query string false "Rows sent at or before (YYYY-MM-DD or RFC 3339)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/history [get]
func (h *HistoryHandler) ListHistory(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	filter, err := parseHistoryFilter(c)
	if err != nil {
		return response.BadRequest(c, err)
	}
	filter.Page = page
	filter.PageSize = pageSize

	rows, total, err := h.history.List(c.Request().Context(), filter)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, rows, page, pageSize, total)
}

// CountHistory godoc
// @Summary Count message history rows
// @Description Counts rows matching the filters. A dateTo without a time of day covers the whole day.
// @Tags history
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param status query string false "Filter by status (pending, sent, failed)"
// @Param channel query string false "Filter by channel (whatsapp, email, sms, both)"
// @Param dateFrom query string false "Rows sent at or after (YYYY-MM-DD or RFC 3339)"
// @Param dateTo query string false "Rows sent at or before (YYYY-MM-DD or RFC 3339)"
// @Success 200 {object} response.SuccessResponse{data=countResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/history/count [get]
func (h *HistoryHandler) CountHistory(c echo.Context) error {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	count, err := h.history.Count(c.Request().Context(), filter)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, countResponse{Count: count})
}

// DeleteHistory godoc
// @Summary Delete message history rows
// @Description Deletes the rows matching the filters. At least one filter is required.
// @Tags history
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param search query string false "Matches recipient name, phone or email"
// @Param status query string false "Filter by status (pending, sent, failed)"
// @Param channel query string false "Filter by channel (whatsapp, email, sms, both)"
// @Param dateFrom query string false "Rows sent at or after (YYYY-MM-DD or RFC 3339)"
// @Param dateTo query string false "Rows sent at or before (YYYY-MM-DD or RFC 3339)"
// @Success 200 {object} response.SuccessResponse{data=deleteResponse}
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/history [delete]
func (h *HistoryHandler) DeleteHistory(c echo.Context) error {
	filter, err := parseHistoryFilter(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	deleted, err := h.history.Delete(c.Request().Context(), filter)
	if err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, fmt.Sprintf("Deleted %d records", deleted), deleteResponse{Deleted: deleted})
}

// GetStats godoc
// @Summary Get message statistics
// @Description Returns counts by status and channel and the success rate over the last days
// @Tags history
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param days query int false "Window in days (default: 30)"
// @Success 200 {object} response.SuccessResponse{data=domain.Stats}
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/history/stats [get]
func (h *HistoryHandler) GetStats(c echo.Context) error {
	days := 0
	if raw := c.QueryParam("days"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d <= 0 {
			return response.BadRequest(c, fmt.Errorf("days must be a positive integer"))
		}
		days = d
	}

	stats, err := h.history.Stats(c.Request().Context(), days)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, stats)
}

// GetBatch godoc
// @Summary Get the rows of one batch
// @Tags history
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param batchId path string true "Batch id"
// @Success 200 {object} response.SuccessResponse{data=[]domain.MessageLog}
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/history/batches/{batchId} [get]
func (h *HistoryHandler) GetBatch(c echo.Context) error {
	batchID := c.Param("batchId")

	rows, err := h.history.Batch(c.Request().Context(), batchID)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if len(rows) == 0 {
		return response.NotFound(c, "batch not found")
	}

	return response.Ok(c, rows)
}

func parseHistoryFilter(c echo.Context) (domain.HistoryFilter, error) {
	filter := domain.HistoryFilter{
		Search:  c.QueryParam("search"),
		BatchID: c.QueryParam("batchId"),
	}

	if v := c.QueryParam("status"); v != "" {
		status := domain.MessageStatus(v)
		if !status.IsValid() {
			return filter, fmt.Errorf("status must be one of pending, sent, failed")
		}
		filter.Status = &status
	}

	if v := c.QueryParam("channel"); v != "" {
		channel := domain.Channel(v)
		if !channel.IsValid() {
			return filter, fmt.Errorf("channel must be one of whatsapp, email, sms, both")
		}
		filter.Channel = &channel
	}

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"dateFrom", &filter.DateFrom}, {"dateTo", &filter.DateTo}} {
		v := c.QueryParam(p.name)
		if v == "" {
			continue
		}
		t, err := parseDate(v)
		if err != nil {
			return filter, fmt.Errorf("%s must be a date (YYYY-MM-DD) or an RFC 3339 timestamp", p.name)
		}
		*p.dst = &t
	}

	return filter, nil
}

func parseDate(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	// Page
	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	// Page size
	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}

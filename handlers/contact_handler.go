package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
)

type contactLister interface {
	List(ctx context.Context, filter domain.ContactFilter) (*domain.ContactPage, error)
	Departments() []string
	RefreshToken(ctx context.Context) error
}

type ContactHandler struct {
	contacts contactLister
}

func NewContactHandler(contacts contactLister) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// ListContacts godoc
// @Summary List directory contacts
// @Description Reads contacts from the upstream directory (cached) with optional search, department filter and paging
// @Tags contacts
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param search query string false "Matches name, email or phone"
// @Param department query string false "Apostador, Operacional or Inactivo"
// @Param limit query int false "Page size (default: 5000)"
// @Param offset query int false "Offset (default: 0)"
// @Success 200 {object} response.SuccessResponse{data=domain.ContactPage}
// @Failure 400 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/contacts [get]
func (h *ContactHandler) ListContacts(c echo.Context) error {
	limit, err := optionalNonNegative(c, "limit")
	if err != nil {
		return response.BadRequest(c, err)
	}
	offset, err := optionalNonNegative(c, "offset")
	if err != nil {
		return response.BadRequest(c, err)
	}

	page, err := h.contacts.List(c.Request().Context(), domain.ContactFilter{
		Search:     c.QueryParam("search"),
		Department: c.QueryParam("department"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return respondError(c, err)
	}

	return response.Ok(c, page)
}

// Departments godoc
// @Summary List contact departments
// @Tags contacts
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Success 200 {object} response.SuccessResponse{data=[]string}
// @Router /api/v1/contacts/departments [get]
func (h *ContactHandler) Departments(c echo.Context) error {
	return response.Ok(c, h.contacts.Departments())
}

// RefreshToken godoc
// @Summary Force a directory login
// @Description Drops the cached directory token and contact list and logs in again
// @Tags contacts
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Success 200 {object} response.SuccessResponse
// @Failure 502 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse
// @Router /api/v1/contacts/refresh-token [post]
func (h *ContactHandler) RefreshToken(c echo.Context) error {
	if err := h.contacts.RefreshToken(c.Request().Context()); err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, "Directory token refreshed", nil)
}

func optionalNonNegative(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

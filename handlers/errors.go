package handlers

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/gateway"
	"github.com/onurcolak/bulk-dispatch-service/internal/service"
	"github.com/onurcolak/bulk-dispatch-service/pkg/directory"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
	"github.com/onurcolak/bulk-dispatch-service/pkg/sms"
	"github.com/onurcolak/bulk-dispatch-service/pkg/storage"
	"github.com/onurcolak/bulk-dispatch-service/pkg/whatsapp"
)

// respondError maps service and client sentinel errors to HTTP responses.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidChannel),
		errors.Is(err, service.ErrNoRecipients),
		errors.Is(err, service.ErrMissingBatchID),
		errors.Is(err, service.ErrNotDelivered),
		errors.Is(err, service.ErrUnfilteredDelete),
		errors.Is(err, storage.ErrInvalidName),
		errors.Is(err, storage.ErrExtensionRejected),
		errors.Is(err, storage.ErrTooLarge):
		return response.BadRequest(c, err)

	case errors.Is(err, storage.ErrNotFound):
		return response.NotFound(c, err.Error())

	case errors.Is(err, directory.ErrNotConfigured),
		errors.Is(err, sms.ErrNotConfigured),
		errors.Is(err, whatsapp.ErrNotConfigured),
		errors.Is(err, gateway.ErrNotConfigured):
		return response.ServiceUnavailable(c, err)

	case errors.Is(err, directory.ErrAuthentication),
		errors.Is(err, directory.ErrAuthExpired),
		errors.Is(err, directory.ErrUnavailable),
		errors.Is(err, directory.ErrRejected),
		errors.Is(err, directory.ErrMalformed):
		return response.BadGateway(c, err)
	}

	return response.InternalServerError(c, err)
}

package handlers

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/internal/service"
	"github.com/onurcolak/bulk-dispatch-service/pkg/response"
	"github.com/onurcolak/bulk-dispatch-service/pkg/validator"
)

const uploadField = "files"

type bulkDispatcher interface {
	SendBulk(ctx context.Context, req domain.BulkRequest) (*domain.BatchSummary, error)
	Reconcile(ctx context.Context, cb domain.Callback) (*domain.ReconcileResult, error)
}

type attachmentUploader interface {
	Upload(sources []service.UploadSource) ([]service.UploadedFile, []service.UploadFailure)
	Delete(name string) error
}

type MessageHandler struct {
	dispatch bulkDispatcher
	uploads  attachmentUploader
}

func NewMessageHandler(dispatch bulkDispatcher, uploads attachmentUploader) *MessageHandler {
	return &MessageHandler{dispatch: dispatch, uploads: uploads}
}

type UploadResult struct {
	Files  []service.UploadedFile  `json:"files"`
	Failed []service.UploadFailure `json:"failed,omitempty"`
}

// SendBulk godoc
// @Summary Send a message to many recipients
// @Description Records one pending row per recipient and queues delivery through the WhatsApp and/or email relay. Outcomes arrive later through the relay callback.
// @Tags messages
// @Accept json
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param request body domain.BulkRequest true "Bulk submission"
// @Success 202 {object} response.SuccessResponse{data=domain.BatchSummary}
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/send-bulk [post]
func (h *MessageHandler) SendBulk(c echo.Context) error {
	var req domain.BulkRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	summary, err := h.dispatch.SendBulk(c.Request().Context(), req)
	if err != nil {
		return respondError(c, err)
	}

	return response.Accepted(c, "Batch queued for delivery", summary)
}

// WebhookCallback godoc
// @Summary Relay delivery callback
// @Description Applies per-recipient outcomes reported by a relay to the pending rows of one batch. Replaying a callback changes nothing.
// @Tags messages
// @Accept json
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for relay callbacks"
// @Param request body domain.Callback true "Delivery results"
// @Success 200 {object} domain.ReconcileResult
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} validator.ValidationErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/webhook-callback [post]
func (h *MessageHandler) WebhookCallback(c echo.Context) error {
	var cb domain.Callback
	if err := c.Bind(&cb); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&cb); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.dispatch.Reconcile(c.Request().Context(), cb)
	if err != nil {
		return respondError(c, err)
	}

	// Relays read the bare result, not the response envelope.
	return c.JSON(http.StatusOK, result)
}

// UploadFiles godoc
// @Summary Upload attachments
// @Description Stores attachments for a later bulk send. Returns the stored names to reference in send-bulk.
// @Tags messages
// @Accept multipart/form-data
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param files formData file true "Files to upload"
// @Success 201 {object} response.SuccessResponse{data=UploadResult}
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/messages/upload-files [post]
func (h *MessageHandler) UploadFiles(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return response.BadRequest(c, err)
	}

	headers := form.File[uploadField]
	if len(headers) == 0 {
		return response.BadRequestWithMessage(c, "no files provided")
	}

	sources := make([]service.UploadSource, 0, len(headers))
	for _, fh := range headers {
		sources = append(sources, service.UploadSource{
			Name: fh.Filename,
			Open: func() (io.ReadCloser, error) { return fh.Open() },
		})
	}

	saved, failed := h.uploads.Upload(sources)
	result := UploadResult{Files: saved, Failed: failed}

	if len(saved) == 0 {
		reasons := make([]string, 0, len(failed))
		for _, f := range failed {
			reasons = append(reasons, f.OriginalName+": "+f.Error)
		}
		return response.BadRequestWithMessage(c, strings.Join(reasons, "; "))
	}

	return response.Created(c, "Files uploaded", result)
}

// DeleteFile godoc
// @Summary Delete an uploaded attachment
// @Tags messages
// @Produce json
// @Param x-dispatch-auth-key header string true "API key for messages"
// @Param filename path string true "Stored file name"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/messages/files/{filename} [delete]
func (h *MessageHandler) DeleteFile(c echo.Context) error {
	name := c.Param("filename")

	if err := h.uploads.Delete(name); err != nil {
		return respondError(c, err)
	}

	return response.OkWithMessage(c, "File deleted", map[string]string{"filename": name})
}

package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/handlers"
	"github.com/onurcolak/bulk-dispatch-service/internal/middlewares"
)

// Handlers groups every HTTP handler served by the API.
type Handlers struct {
	Health     *handlers.HealthHandler
	Messages   *handlers.MessageHandler
	WhatsApp   *handlers.WhatsAppHandler
	SMS        *handlers.SMSHandler
	Contacts   *handlers.ContactHandler
	History    *handlers.HistoryHandler
	Dispatcher *handlers.DispatcherHandler
}

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(e *echo.Echo, h Handlers, cfg *environments.Config) {
	e.GET("/health", h.Health.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Relay callbacks carry their own key, separate from the operator key.
	v1.POST("/messages/webhook-callback", h.Messages.WebhookCallback,
		middlewares.APIKeyAuth(cfg.Auth.CallbackAPIKey))

	operator := middlewares.APIKeyAuth(cfg.Auth.MessagesAPIKey)

	messages := v1.Group("/messages", operator)
	messages.POST("/send-bulk", h.Messages.SendBulk)
	messages.POST("/upload-files", h.Messages.UploadFiles)
	messages.DELETE("/files/:filename", h.Messages.DeleteFile)

	whatsapp := v1.Group("/whatsapp", operator)
	whatsapp.GET("/templates", h.WhatsApp.ListTemplates)
	whatsapp.POST("/send-template", h.WhatsApp.SendTemplate)
	whatsapp.POST("/send-single", h.WhatsApp.SendSingle)
	whatsapp.GET("/config-status", h.WhatsApp.ConfigStatus)

	sms := v1.Group("/sms", operator)
	sms.POST("/send", h.SMS.Send)
	sms.POST("/send-bulk", h.SMS.SendBulk)
	sms.GET("/credits", h.SMS.GetCredits)

	contacts := v1.Group("/contacts", operator)
	contacts.GET("", h.Contacts.ListContacts)
	contacts.GET("/departments", h.Contacts.Departments)
	contacts.POST("/refresh-token", h.Contacts.RefreshToken)

	history := v1.Group("/history", operator)
	history.GET("", h.History.ListHistory)
	history.DELETE("", h.History.DeleteHistory)
	history.GET("/count", h.History.CountHistory)
	history.GET("/stats", h.History.GetStats)
	history.GET("/batches/:batchId", h.History.GetBatch)

	// Dispatcher routes with their own API key
	dispatcherGroup := v1.Group("/dispatcher", middlewares.APIKeyAuth(cfg.Auth.DispatcherAPIKey))
	dispatcherGroup.GET("/status", h.Dispatcher.GetDispatcherStatus)
}

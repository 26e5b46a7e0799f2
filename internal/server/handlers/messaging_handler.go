package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmtrace/internal/domain/models"
	service "github.com/mamadbah2/farmtrace/internal/service/whatsapp"
)

// MessagingHandler handles inbound and outbound WhatsApp HTTP events.
type MessagingHandler struct {
	svc    service.MessagingService
	logger *zap.Logger
}

// NewMessagingHandler constructs the HTTP handler adapter.
func NewMessagingHandler(svc service.MessagingService, logger *zap.Logger) *MessagingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessagingHandler{svc: svc, logger: logger}
}

// Register mounts the webhook and outbound routes.
func (h *MessagingHandler) Register(r gin.IRoutes) {
	r.GET("/webhook", h.Verify)
	r.POST("/webhook", h.Receive)
	r.POST("/send-message", h.SendMessage)
}

// Verify responds to Meta's webhook verification challenge.
func (h *MessagingHandler) Verify(c *gin.Context) {
	resp, err := h.svc.VerifyWebhookToken(
		c.Query("hub.mode"),
		c.Query("hub.verify_token"),
		c.Query("hub.challenge"),
	)
	if err != nil {
		h.logger.Warn("webhook verification failed", zap.Error(err))
		c.String(http.StatusForbidden, "verification failed")
		return
	}

	c.String(http.StatusOK, resp)
}

// Receive ingests webhook POST callbacks from Meta. Per-message failures are
// logged and acknowledged so Meta does not redeliver the whole batch.
func (h *MessagingHandler) Receive(c *gin.Context) {
	var payload models.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("invalid webhook payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if err := h.svc.HandleWebhook(c.Request.Context(), payload); err != nil {
		h.logger.Error("webhook processed with errors", zap.Error(err), zap.String("request_id", c.GetString(RequestIDKey)))
	}

	c.Status(http.StatusOK)
}

// SendMessage allows operators to push a manual message.
func (h *MessagingHandler) SendMessage(c *gin.Context) {
	var req models.OutboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid outbound payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.svc.SendOutbound(c.Request.Context(), req); err != nil {
		h.logger.Error("failed sending outbound", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "unable to send message"})
		return
	}

	c.Status(http.StatusAccepted)
}

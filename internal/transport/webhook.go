package transport

import (
	"encoding/json"
	"log/slog"

	"whatsapp-campaign-launcher/internal/app"

	"github.com/gofiber/fiber/v2"
)

// WebhookHandler receives provider notifications.
type WebhookHandler struct {
	svc         *app.StatusService
	verifyToken string
	log         *slog.Logger
}

// NewWebhookHandler wires up a WebhookHandler. verifyToken answers the
// subscription handshake.
func NewWebhookHandler(svc *app.StatusService, verifyToken string, log *slog.Logger) *WebhookHandler {
	return &WebhookHandler{svc: svc, verifyToken: verifyToken, log: log}
}

// Register mounts the webhook routes.
func (h *WebhookHandler) Register(router fiber.Router) {
	router.Get("/webhooks/whatsapp", h.Verify)
	router.Post("/webhooks/whatsapp", h.Receive)
}

// Verify answers the provider's subscription handshake.
//
// GET /webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=...&hub.challenge=...
func (h *WebhookHandler) Verify(c *fiber.Ctx) error {
	if h.verifyToken == "" || c.Query("hub.mode") != "subscribe" || c.Query("hub.verify_token") != h.verifyToken {
		return c.SendStatus(fiber.StatusForbidden)
	}
	return c.SendString(c.Query("hub.challenge"))
}

// Receive applies message statuses and account health updates.
//
// POST /webhooks/whatsapp
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var p app.WebhookPayload
	if err := json.Unmarshal(c.Body(), &p); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.svc.HandleWebhook(c.UserContext(), p); err != nil {
		h.log.Error("handle webhook", "object", p.Object, "err", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}
	return c.SendStatus(fiber.StatusOK)
}

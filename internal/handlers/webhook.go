package handlers

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"

	"github.com/benaresclub/feedback-backend/internal/services"
)

// WebhookHandler terminates the WhatsApp Cloud API webhook
type WebhookHandler struct {
	conversation *services.ConversationService
	verifyToken  string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(conversation *services.ConversationService) *WebhookHandler {
	return &WebhookHandler{
		conversation: conversation,
		verifyToken:  os.Getenv("WHATSAPP_WEBHOOK_SECRET"),
	}
}

// VerifySubscription answers Meta's GET handshake: echo hub.challenge with
// 200 only when the verify token matches, 403 otherwise.
func (h *WebhookHandler) VerifySubscription(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		log.Println("✅ Webhook verified by Meta")
		return c.Status(fiber.StatusOK).SendString(challenge)
	}

	log.Printf("Webhook verification failed (mode=%s)", mode)
	return c.SendStatus(fiber.StatusForbidden)
}

// WebhookEnvelope is the slice of the Cloud API notification we consume.
type WebhookEnvelope struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []WebhookMessage `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// WebhookMessage is one inbound message inside the envelope.
type WebhookMessage struct {
	From   string `json:"from"`
	FromMe bool   `json:"from_me"`
	Type   string `json:"type"`
	Text   *struct {
		Body string `json:"body"`
	} `json:"text"`
	Image *struct {
		ID      string `json:"id"`
		Caption string `json:"caption"`
	} `json:"image"`
	Button *struct {
		Payload string `json:"payload"`
		Text    string `json:"text"`
	} `json:"button"`
}

// HandleWebhook processes incoming WhatsApp notifications. The provider is
// always ACKed with 200 once the payload is parsed - engine failures are
// logged, never echoed back, so Meta does not storm us with redeliveries.
func (h *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	var envelope WebhookEnvelope
	if err := c.BodyParser(&envelope); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.SendStatus(fiber.StatusOK)
	}

	msg := extractMessage(&envelope)
	if msg == nil {
		// Status updates and other non-message notifications.
		return c.SendStatus(fiber.StatusOK)
	}

	log.Printf("📱 WhatsApp %s message from %s", msg.Type, msg.From)

	if err := h.conversation.HandleMessage(msg); err != nil {
		log.Printf("Error processing message from %s: %v", msg.From, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

// extractMessage unwraps entry[0].changes[0].value.messages[0] into the
// engine's normalized event.
func extractMessage(envelope *WebhookEnvelope) *services.IncomingMessage {
	if len(envelope.Entry) == 0 || len(envelope.Entry[0].Changes) == 0 {
		return nil
	}
	value := envelope.Entry[0].Changes[0].Value
	if len(value.Messages) == 0 {
		return nil
	}
	raw := value.Messages[0]

	msg := &services.IncomingMessage{
		From:   raw.From,
		Type:   raw.Type,
		FromMe: raw.FromMe,
	}
	if raw.Text != nil {
		msg.Text = raw.Text.Body
	}
	if raw.Image != nil {
		msg.MediaID = raw.Image.ID
		msg.Caption = raw.Image.Caption
	}
	if raw.Button != nil {
		msg.ButtonPayload = raw.Button.Payload
	}
	return msg
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cfg "whatsapp-campaign-launcher/internal/config"
	"whatsapp-campaign-launcher/internal/domain"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// mockSendRequest is the part of a template send the mock looks at.
type mockSendRequest struct {
	MessagingProduct string `json:"messaging_product"`
	To               string `json:"to"`
	Type             string `json:"type"`
	Template         struct {
		Name string `json:"name"`
	} `json:"template"`
}

type mockContact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

type mockMessage struct {
	ID string `json:"id"`
}

type mockSendResponse struct {
	MessagingProduct string        `json:"messaging_product"`
	Contacts         []mockContact `json:"contacts"`
	Messages         []mockMessage `json:"messages"`
}

func main() {
	conf := cfg.FromEnv()
	log := conf.Logger()

	addr := getenv("MOCK_PROVIDER_ADDR", ":9090")
	hook := conf.StatusWebhookURL

	fiberApp := fiber.New(fiber.Config{AppName: "mock-whatsapp"})

	// POST /:version/:phone_number_id/messages accepts a template send and
	// answers with a generated wamid. Recipients ending in 000 are rejected.
	fiberApp.Post("/:version/:phone_number_id/messages", func(c *fiber.Ctx) error {
		var req mockSendRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fiber.Map{"message": "invalid body"}})
		}
		if req.Type != "template" || req.Template.Name == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fiber.Map{"message": "(#100) template is required", "code": 100}})
		}

		waID := domain.Digits(req.To)
		if strings.HasSuffix(waID, "000") {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": fiber.Map{"message": "(#131026) Message undeliverable", "code": 131026}})
		}

		wamid := "wamid." + uuid.NewString()
		log.Info("mock provider received message",
			"phone_number_id", c.Params("phone_number_id"),
			"to", req.To,
			"template", req.Template.Name,
			"wamid", wamid,
		)

		go simulateStatuses(hook, c.Params("phone_number_id"), waID, wamid, log)

		return c.JSON(mockSendResponse{
			MessagingProduct: "whatsapp",
			Contacts:         []mockContact{{Input: req.To, WaID: waID}},
			Messages:         []mockMessage{{ID: wamid}},
		})
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("mock-whatsapp listening", "addr", addr)
		if err := fiberApp.Listen(addr); err != nil {
			log.Error("fiber listen", "err", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down mock-whatsapp")
	_ = fiberApp.Shutdown()
}

// simulateStatuses posts sent and then delivered for wamid to the status webhook.
func simulateStatuses(hookURL, phoneNumberID, waID, wamid string, log *slog.Logger) {
	for _, status := range []string{"sent", "delivered"} {
		time.Sleep(500 * time.Millisecond)

		payload := map[string]any{
			"object": "whatsapp_business_account",
			"entry": []map[string]any{{
				"id": "mock-waba",
				"changes": []map[string]any{{
					"field": "messages",
					"value": map[string]any{
						"messaging_product": "whatsapp",
						"metadata":          map[string]string{"phone_number_id": phoneNumberID},
						"statuses": []map[string]any{{
							"id":           wamid,
							"status":       status,
							"recipient_id": waID,
							"timestamp":    time.Now().Unix(),
						}},
					},
				}},
			}},
		}
		body, _ := json.Marshal(payload)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, hookURL, bytes.NewReader(body))
		if err != nil {
			cancel()
			log.Error("create status request", "err", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			cancel()
			log.Error("status webhook call failed", "wamid", wamid, "err", err)
			return
		}
		resp.Body.Close()
		cancel()
		log.Info("status webhook called", "wamid", wamid, "status", status, "code", resp.StatusCode)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

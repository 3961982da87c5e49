package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"

	"whatsapp-campaign-launcher/internal/app"
	"whatsapp-campaign-launcher/internal/domain"

	"github.com/gofiber/fiber/v2"
)

// stream runs the launch inside the response body writer. Each event is one
// "data:" frame flushed immediately; a failed flush means the client went
// away and ends the launch.
func (h *Handler) stream(c *fiber.Ctx, launch *app.Launch) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	log := h.log.With("launch_id", launch.ID)

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		_, err := launch.Run(ctx, func(ev domain.DispatchEvent) error {
			return writeEvent(w, ev)
		})
		if err != nil {
			log.Warn("launch stream ended early", "err", err)
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, ev domain.DispatchEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

package ports

import (
	"context"

	"whatsapp-campaign-launcher/internal/domain"
)

// TemplateRenderer resolves a template payload to the provider wire format.
type TemplateRenderer interface {
	// Render returns domain.ErrTemplateUnresolvable when the channel has no usable template.
	Render(ctx context.Context, ch *domain.Channel, payload domain.TemplatePayload) (domain.RenderedTemplate, error)
}

// TemplateSender abstracts the provider's templated-message endpoint.
type TemplateSender interface {
	// SendTemplate submits a templated message and returns the provider's message ID.
	// An empty ID means the provider queued the message without assigning one.
	SendTemplate(ctx context.Context, ch *domain.Channel, to string, tpl domain.RenderedTemplate) (string, error)
}

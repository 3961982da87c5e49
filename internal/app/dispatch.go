package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"whatsapp-campaign-launcher/internal/domain"
	"whatsapp-campaign-launcher/internal/ports"

	"github.com/google/uuid"
)

const maxDetailLen = 200

// Emit forwards one event to the consumer. A non-nil error means nobody is
// listening anymore and the dispatch must stop.
type Emit func(domain.DispatchEvent) error

// Batch is one launch worth of rows plus everything needed to send them.
type Batch struct {
	TenantID uuid.UUID
	SenderID uuid.UUID
	Channel  *domain.Channel
	Request  domain.LaunchRequest
	Rows     []domain.Row
}

// RowResult is the outcome of a row that did not fail.
type RowResult struct {
	Outcome domain.Outcome
	Phone   string
	Detail  string
}

// Dispatcher sends one templated message per staged row, strictly in order.
type Dispatcher struct {
	contacts ports.ContactResolver
	messages ports.MessageLog
	renderer ports.TemplateRenderer
	sender   ports.TemplateSender
	log      *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewDispatcher wires the dispatcher with its collaborators.
func NewDispatcher(
	contacts ports.ContactResolver,
	messages ports.MessageLog,
	renderer ports.TemplateRenderer,
	sender ports.TemplateSender,
	log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		contacts: contacts,
		messages: messages,
		renderer: renderer,
		sender:   sender,
		log:      log,
		sleep:    sleepContext,
	}
}

// Run processes every row, emitting one row event per row and a final done
// event. Row failures are counted and reported, never returned. Run returns
// early only when emit fails or ctx is cancelled; rows already sent stay sent.
func (d *Dispatcher) Run(ctx context.Context, b *Batch, emit Emit) (domain.Counters, error) {
	var c domain.Counters
	total := len(b.Rows)
	base := domain.NewTemplatePayload(b.Request.Template)

	for i, row := range b.Rows {
		if err := ctx.Err(); err != nil {
			return c, err
		}

		ev := d.step(ctx, b, base, row, i, total, &c)
		if err := emit(ev); err != nil {
			return c, fmt.Errorf("%w: %v", domain.ErrStreamClosed, err)
		}

		if err := d.sleep(ctx, b.Request.Delay); err != nil {
			return c, err
		}
	}

	if err := emit(domain.DoneEvent(c, total)); err != nil {
		return c, fmt.Errorf("%w: %v", domain.ErrStreamClosed, err)
	}
	return c, nil
}

// step turns one row into counters and its event.
func (d *Dispatcher) step(ctx context.Context, b *Batch, base domain.TemplatePayload, row domain.Row, idx, total int, c *domain.Counters) domain.DispatchEvent {
	res, err := d.ProcessRow(ctx, b, base, row)
	if err != nil {
		c.Failed++
		phoneRaw := strings.TrimSpace(row[b.Request.PhoneColumn])
		d.log.Error("campaign row failed", "index", idx, "phone", phoneRaw, "err", err)
		return domain.RowEvent(*c, idx, total, phoneRaw, domain.OutcomeError, truncate(err.Error(), maxDetailLen))
	}

	switch res.Outcome {
	case domain.OutcomeSkipped:
		c.Skipped++
	case domain.OutcomeSent:
		c.Sent++
	}
	return domain.RowEvent(*c, idx, total, res.Phone, res.Outcome, res.Detail)
}

// ProcessRow performs every side effect of one row. It is the only recovery
// point: errors and panics from collaborators come back as err.
func (d *Dispatcher) ProcessRow(ctx context.Context, b *Batch, base domain.TemplatePayload, row domain.Row) (res RowResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	phoneRaw := strings.TrimSpace(row[b.Request.PhoneColumn])
	if phoneRaw == "" {
		return RowResult{Outcome: domain.OutcomeSkipped, Phone: "EMPTY", Detail: "No phone"}, nil
	}

	phone := domain.NormalizePhone(phoneRaw)
	id, err := d.sendToContact(ctx, b, base, row, phone)
	if err != nil {
		return RowResult{}, err
	}

	if id == "" {
		id = "queued"
	}
	return RowResult{Outcome: domain.OutcomeSent, Phone: phone, Detail: "WhatsApp ID: " + id}, nil
}

func (d *Dispatcher) sendToContact(ctx context.Context, b *Batch, base domain.TemplatePayload, row domain.Row, phone string) (string, error) {
	name := ""
	if b.Request.NameColumn != "" {
		name = strings.TrimSpace(row[b.Request.NameColumn])
	}

	contact, err := d.contacts.FindOrCreateContact(ctx, b.TenantID, phone, name)
	if err != nil {
		return "", fmt.Errorf("resolve contact: %w", err)
	}
	link, err := d.contacts.FindOrCreateContactChannel(ctx, contact, b.Channel.ID, domain.ShortID(phone))
	if err != nil {
		return "", fmt.Errorf("resolve contact channel: %w", err)
	}
	conv, err := d.contacts.FindOrCreateConversation(ctx, b.TenantID, b.Channel.ID, contact, link)
	if err != nil {
		return "", fmt.Errorf("resolve conversation: %w", err)
	}

	payload := BuildTemplatePayload(base, b.Request.Mappings, row)
	rendered, err := d.renderer.Render(ctx, b.Channel, payload)
	if err != nil {
		return "", err
	}
	if rendered.Name == "" {
		return "", domain.ErrTemplateUnresolvable
	}

	msgID, err := d.sender.SendTemplate(ctx, b.Channel, phone, rendered)
	if err != nil {
		return "", fmt.Errorf("send template: %w", err)
	}

	err = d.messages.LogOutgoingMessage(ctx, domain.OutgoingMessage{
		ConversationID:    conv.ID,
		SenderID:          b.SenderID,
		Content:           RenderBody(b.Request.BodyText, payload),
		ProviderMessageID: msgID,
		Metadata:          map[string]any{"template_params": payload},
	})
	if err != nil {
		// The provider already accepted the message; only the local record is missing.
		return "", fmt.Errorf("log message %s: %w", msgID, err)
	}

	return msgID, nil
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max-3]) + "..."
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

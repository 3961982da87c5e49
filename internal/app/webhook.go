package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"whatsapp-campaign-launcher/internal/domain"
	"whatsapp-campaign-launcher/internal/ports"

	"github.com/google/uuid"
)

// WebhookPayload is the envelope the provider posts to the status webhook.
type WebhookPayload struct {
	Object string         `json:"object"`
	Entry  []WebhookEntry `json:"entry"`
}

// WebhookEntry groups changes for one business account.
type WebhookEntry struct {
	ID      string          `json:"id"`
	Changes []WebhookChange `json:"changes"`
}

// WebhookChange is one notification; Field selects how Value is read.
type WebhookChange struct {
	Field string       `json:"field"`
	Value WebhookValue `json:"value"`
}

// WebhookValue is the union of the fields this service reads.
type WebhookValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Statuses []struct {
		ID          string `json:"id"`
		Status      string `json:"status"`
		RecipientID string `json:"recipient_id"`
		Errors      []struct {
			Code  int    `json:"code"`
			Title string `json:"title"`
		} `json:"errors"`
	} `json:"statuses"`

	Event         string `json:"event"`
	PhoneNumber   string `json:"phone_number"`
	CurrentLimit  string `json:"current_limit"`
	ViolationInfo struct {
		ViolationType string `json:"violation_type"`
	} `json:"violation_info"`
	RestrictionInfo []struct {
		RestrictionType string `json:"restriction_type"`
		Expiration      int64  `json:"expiration"`
	} `json:"restriction_info"`
}

// StatusService applies provider webhooks: message delivery statuses and
// account health changes.
type StatusService struct {
	messages ports.MessageLog
	channels ports.ChannelRepository
	log      *slog.Logger
	now      func() time.Time
}

// NewStatusService wires the service with its dependencies.
func NewStatusService(messages ports.MessageLog, channels ports.ChannelRepository, log *slog.Logger) *StatusService {
	return &StatusService{
		messages: messages,
		channels: channels,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook processes every change in the payload. Unknown fields are
// ignored; the first storage failure is returned so the provider retries.
func (s *StatusService) HandleWebhook(ctx context.Context, p WebhookPayload) error {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			var err error
			switch change.Field {
			case "messages":
				err = s.handleStatuses(ctx, change.Value)
			case "account_update":
				err = s.handleAccountUpdate(ctx, entry.ID, change.Value)
			case "phone_number_quality_update":
				err = s.handleQualityUpdate(ctx, entry.ID, change.Value)
			default:
				s.log.Debug("webhook field ignored", "field", change.Field)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *StatusService) handleStatuses(ctx context.Context, v WebhookValue) error {
	for _, st := range v.Statuses {
		status, ok := domain.ParseMessageStatus(st.Status)
		if !ok || st.ID == "" {
			s.log.Debug("message status ignored", "provider_id", st.ID, "status", st.Status)
			continue
		}

		err := s.messages.UpdateMessageStatusBySourceID(ctx, st.ID, status)
		if errors.Is(err, domain.ErrMessageNotFound) {
			s.log.Warn("status for unknown message", "provider_id", st.ID, "status", status)
			continue
		}
		if err != nil {
			return fmt.Errorf("update message status: %w", err)
		}

		if status == domain.MessageStatusFailed && len(st.Errors) > 0 {
			s.log.Warn("message failed", "provider_id", st.ID, "code", st.Errors[0].Code, "reason", st.Errors[0].Title)
		} else {
			s.log.Info("message status received", "provider_id", st.ID, "status", status)
		}
	}
	return nil
}

// healthChange is one mutation of a channel's health plus the event type recorded for it.
type healthChange struct {
	eventType string
	status    string // new account status, "" to leave unchanged
	quality   string // new quality rating, "" to leave unchanged
	value     string
	data      map[string]any
}

func (s *StatusService) handleAccountUpdate(ctx context.Context, wabaID string, v WebhookValue) error {
	var change healthChange
	switch v.Event {
	case "DISABLED_UPDATE":
		change = healthChange{eventType: domain.EventStatusChange, status: domain.AccountBanned, value: domain.AccountBanned}
	case "ACCOUNT_RESTRICTION":
		restriction := ""
		if len(v.RestrictionInfo) > 0 {
			restriction = v.RestrictionInfo[0].RestrictionType
		}
		change = healthChange{
			eventType: domain.EventRestriction,
			status:    domain.AccountRestricted,
			value:     restriction,
			data:      map[string]any{"restriction_info": v.RestrictionInfo},
		}
	case "ACCOUNT_VIOLATION":
		change = healthChange{
			eventType: domain.EventViolation,
			value:     v.ViolationInfo.ViolationType,
			data:      map[string]any{"violation_type": v.ViolationInfo.ViolationType},
		}
	case "REINSTATED_UPDATE", "ACCOUNT_REINSTATED":
		change = healthChange{eventType: domain.EventStatusChange, status: domain.AccountActive, value: domain.AccountActive}
	default:
		s.log.Debug("account update ignored", "event", v.Event)
		return nil
	}

	ch, err := s.channels.GetChannelByBusinessAccountID(ctx, wabaID)
	if err != nil {
		return s.unknownChannel(err, "business_account_id", wabaID)
	}
	return s.applyHealth(ctx, ch, change)
}

func (s *StatusService) handleQualityUpdate(ctx context.Context, wabaID string, v WebhookValue) error {
	var rating string
	switch v.Event {
	case "FLAGGED":
		rating = "RED"
	case "DOWNGRADE":
		rating = "YELLOW"
	case "UNFLAGGED", "UPGRADE", "ONBOARDING":
		rating = "GREEN"
	default:
		s.log.Debug("quality update ignored", "event", v.Event)
		return nil
	}

	ch, err := s.channels.GetChannelByBusinessAccountID(ctx, wabaID)
	if err != nil {
		return s.unknownChannel(err, "business_account_id", wabaID)
	}
	return s.applyHealth(ctx, ch, healthChange{
		eventType: domain.EventQualityChange,
		quality:   rating,
		value:     rating,
		data:      map[string]any{"event": v.Event, "current_limit": v.CurrentLimit},
	})
}

func (s *StatusService) unknownChannel(err error, by, id string) error {
	if errors.Is(err, domain.ErrChannelNotFound) {
		s.log.Warn("webhook for unknown channel", by, id)
		return nil
	}
	return fmt.Errorf("find channel: %w", err)
}

// applyHealth updates the channel and records the event. Status and quality
// changes that repeat the current value are dropped.
func (s *StatusService) applyHealth(ctx context.Context, ch *domain.Channel, c healthChange) error {
	var previous string
	switch {
	case c.eventType == domain.EventQualityChange:
		if ch.QualityRating == c.quality {
			return nil
		}
		previous = ch.QualityRating
		ch.QualityRating = c.quality
	case c.status != "":
		if c.eventType == domain.EventStatusChange && ch.AccountStatus == c.status {
			return nil
		}
		previous = ch.AccountStatus
		ch.AccountStatus = c.status
	}

	now := s.now()
	ch.StatusSyncedAt = &now

	ev := domain.AccountStatusEvent{
		ID:             uuid.New(),
		ChannelID:      ch.ID,
		TenantID:       ch.TenantID,
		EventType:      c.eventType,
		PreviousValue:  previous,
		NewValue:       c.value,
		EventData:      c.data,
		Source:         domain.SourceWebhook,
		EventTimestamp: now,
	}
	if err := s.channels.SaveChannelHealth(ctx, ch, ev); err != nil {
		return fmt.Errorf("save channel health: %w", err)
	}

	attrs := []any{"channel_id", ch.ID, "event_type", ev.EventType, "previous", ev.PreviousValue, "new", ev.NewValue}
	if ev.Critical() {
		s.log.Warn("channel health degraded", attrs...)
	} else {
		s.log.Info("channel health changed", attrs...)
	}
	return nil
}

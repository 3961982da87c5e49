package ports

import (
	"context"

	"whatsapp-campaign-launcher/internal/domain"

	"github.com/google/uuid"
)

// ContactResolver finds or creates the identity records a send is logged against.
type ContactResolver interface {
	// FindOrCreateContact is idempotent on (tenant, phone).
	FindOrCreateContact(ctx context.Context, tenantID uuid.UUID, phone, name string) (*domain.Contact, error)

	// FindOrCreateContactChannel links a contact to a channel under sourceID.
	FindOrCreateContactChannel(ctx context.Context, contact *domain.Contact, channelID uuid.UUID, sourceID string) (*domain.ContactChannel, error)

	// FindOrCreateConversation reuses the newest thread for (tenant, channel, contact).
	FindOrCreateConversation(ctx context.Context, tenantID, channelID uuid.UUID, contact *domain.Contact, link *domain.ContactChannel) (*domain.Conversation, error)
}

// MessageLog records outgoing messages and their provider status.
type MessageLog interface {
	// LogOutgoingMessage persists a sent message against its conversation.
	LogOutgoingMessage(ctx context.Context, msg domain.OutgoingMessage) error

	// UpdateMessageStatusBySourceID transitions a message by the provider's external ID.
	UpdateMessageStatusBySourceID(ctx context.Context, sourceID string, status domain.MessageStatus) error
}

// ChannelRepository reads and updates tenant channels.
type ChannelRepository interface {
	GetChannel(ctx context.Context, tenantID, channelID uuid.UUID) (*domain.Channel, error)
	ListChannels(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error)
	GetChannelByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.Channel, error)
	GetChannelByBusinessAccountID(ctx context.Context, businessAccountID string) (*domain.Channel, error)

	// SaveChannelHealth persists the channel's status fields together with the event describing the change.
	SaveChannelHealth(ctx context.Context, ch *domain.Channel, ev domain.AccountStatusEvent) error
}

// LaunchRunRepository persists finished launch summaries.
type LaunchRunRepository interface {
	SaveLaunchRun(ctx context.Context, run domain.LaunchRun) error
}

package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus tracks an outgoing message through the provider lifecycle.
type MessageStatus string

const (
	MessageStatusQueued    MessageStatus = "queued"    // Logged, provider gave no id yet
	MessageStatusSent      MessageStatus = "sent"      // Accepted by the provider
	MessageStatusDelivered MessageStatus = "delivered" // Delivered to the handset
	MessageStatusRead      MessageStatus = "read"      // Read receipt received
	MessageStatusFailed    MessageStatus = "failed"    // Permanently failed
)

// ParseMessageStatus maps a provider status string onto a MessageStatus.
func ParseMessageStatus(s string) (MessageStatus, bool) {
	switch st := MessageStatus(s); st {
	case MessageStatusSent, MessageStatusDelivered, MessageStatusRead, MessageStatusFailed:
		return st, true
	}
	return "", false
}

// Contact is a recipient identity, unique per (tenant, phone).
type Contact struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contacts_tenant_phone"`
	PhoneNumber string    `gorm:"not null;uniqueIndex:idx_contacts_tenant_phone"`
	Name        string
	ContactType string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContactChannel links a contact to a channel under a provider source id.
type ContactChannel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	ContactID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contact_channels_link"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_contact_channels_link"`
	SourceID  string    `gorm:"not null;uniqueIndex:idx_contact_channels_link"`
	CreatedAt time.Time
}

// Conversation is a thread between a tenant channel and a contact.
type Conversation struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID         uuid.UUID `gorm:"type:uuid;not null;index:idx_conversations_lookup"`
	ChannelID        uuid.UUID `gorm:"type:uuid;not null;index:idx_conversations_lookup"`
	ContactID        uuid.UUID `gorm:"type:uuid;not null;index:idx_conversations_lookup"`
	ContactChannelID uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt        time.Time `gorm:"index:idx_conversations_lookup"`
	UpdatedAt        time.Time
}

// Message is a logged outgoing message.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID      `gorm:"type:uuid"`
	Direction      string         `gorm:"not null"`
	Content        string
	SourceID       string         `gorm:"index"` // External id returned by the provider
	Status         MessageStatus  `gorm:"not null"`
	Metadata       map[string]any `gorm:"type:jsonb;serializer:json"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OutgoingMessage is what the dispatcher asks the message log to record.
type OutgoingMessage struct {
	ConversationID    uuid.UUID
	SenderID          uuid.UUID
	Content           string
	ProviderMessageID string
	Metadata          map[string]any
}

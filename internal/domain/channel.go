package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Account health values reported by the provider.
const (
	AccountActive     = "ACTIVE"
	AccountRestricted = "RESTRICTED"
	AccountBanned     = "BANNED"
	AccountFlagged    = "FLAGGED"
)

// Account status event types and sources.
const (
	EventStatusChange  = "STATUS_CHANGE"
	EventQualityChange = "QUALITY_CHANGE"
	EventRestriction   = "RESTRICTION"
	EventViolation     = "VIOLATION"

	SourceWebhook = "WEBHOOK"
)

// ProviderConfig holds the provider credentials of a channel.
type ProviderConfig struct {
	PhoneNumberID     string `json:"phone_number_id"`
	BusinessAccountID string `json:"business_account_id"`
	APIKey            string `json:"api_key"`
}

// TemplateComponent is one header/body/footer/buttons block of a template.
type TemplateComponent struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
	Text   string `json:"text,omitempty"`
}

// ChannelTemplate is a template as synced from the provider onto a channel.
type ChannelTemplate struct {
	Name            string              `json:"name"`
	Language        string              `json:"language"`
	Category        string              `json:"category"`
	Status          string              `json:"status"`
	ParameterFormat string              `json:"parameter_format"`
	Components      []TemplateComponent `json:"components"`
}

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Approved reports whether the provider approved the template.
func (t ChannelTemplate) Approved() bool {
	return strings.EqualFold(t.Status, "approved")
}

// Body returns the BODY component text, or "" when absent.
func (t ChannelTemplate) Body() string {
	for _, c := range t.Components {
		if strings.EqualFold(c.Type, "BODY") {
			return c.Text
		}
	}
	return ""
}

// BodyVariables lists the unique {{word}} placeholders in the body, in order of first appearance.
func (t ChannelTemplate) BodyVariables() []string {
	seen := map[string]bool{}
	vars := []string{}
	for _, m := range placeholderRe.FindAllStringSubmatch(t.Body(), -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			vars = append(vars, m[1])
		}
	}
	return vars
}

// Channel is a tenant's messaging number on the provider.
type Channel struct {
	ID             uuid.UUID         `gorm:"type:uuid;primaryKey"`
	TenantID       uuid.UUID         `gorm:"type:uuid;not null;index"`
	Name           string            `gorm:"not null"`
	PhoneNumber    string            `gorm:"not null;uniqueIndex"`
	ProviderConfig ProviderConfig    `gorm:"type:jsonb;serializer:json"`
	Templates      []ChannelTemplate `gorm:"type:jsonb;serializer:json"`
	AccountStatus  string            `gorm:"default:ACTIVE;index"`
	QualityRating  string            `gorm:"index"`
	StatusSyncedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ApprovedTemplates filters the channel templates down to approved ones.
func (c *Channel) ApprovedTemplates() []ChannelTemplate {
	out := []ChannelTemplate{}
	for _, t := range c.Templates {
		if t.Approved() {
			out = append(out, t)
		}
	}
	return out
}

// AccountStatusEvent is one recorded change of channel health.
type AccountStatusEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ChannelID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_status_events_channel_type"`
	TenantID       uuid.UUID      `gorm:"type:uuid;not null"`
	EventType      string         `gorm:"not null;index:idx_status_events_channel_type"`
	PreviousValue  string
	NewValue       string
	EventData      map[string]any `gorm:"type:jsonb;serializer:json"`
	Source         string
	EventTimestamp time.Time
	CreatedAt      time.Time
}

// Critical reports whether the event signals a ban, restriction or violation.
func (e AccountStatusEvent) Critical() bool {
	switch e.EventType {
	case EventStatusChange:
		return e.NewValue == AccountBanned || e.NewValue == AccountRestricted || e.NewValue == AccountFlagged
	case EventRestriction, EventViolation:
		return true
	case EventQualityChange:
		return e.NewValue == "RED"
	}
	return false
}

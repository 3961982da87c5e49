package domain

import (
	"time"

	"github.com/google/uuid"
)

// LaunchEvent is a dispatch event tagged with the launch it belongs to.
type LaunchEvent struct {
	LaunchID   uuid.UUID     `json:"launch_id"`
	TenantID   uuid.UUID     `json:"tenant_id"`
	OperatorID uuid.UUID     `json:"operator_id"`
	ChannelID  uuid.UUID     `json:"channel_id"`
	Template   string        `json:"template"`
	Event      DispatchEvent `json:"event"`
	EmittedAt  time.Time     `json:"emitted_at"`
}

// LaunchRun is the persisted summary of a finished or aborted launch.
type LaunchRun struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	TenantID   uuid.UUID `gorm:"type:uuid;not null;index"`
	OperatorID uuid.UUID `gorm:"type:uuid;not null"`
	ChannelID  uuid.UUID `gorm:"type:uuid;not null"`
	Template   string
	Sent       int
	Failed     int
	Skipped    int
	Total      int
	Aborted    bool
	Reason     string
	FinishedAt time.Time
	CreatedAt  time.Time
}

// NewLaunchRun summarises a done or aborted event.
func NewLaunchRun(ev LaunchEvent) LaunchRun {
	return LaunchRun{
		ID:         ev.LaunchID,
		TenantID:   ev.TenantID,
		OperatorID: ev.OperatorID,
		ChannelID:  ev.ChannelID,
		Template:   ev.Template,
		Sent:       ev.Event.Sent,
		Failed:     ev.Event.Failed,
		Skipped:    ev.Event.Skipped,
		Total:      ev.Event.Total,
		Aborted:    ev.Event.Type == EventAborted,
		Reason:     ev.Event.Detail,
		FinishedAt: ev.EmittedAt,
	}
}

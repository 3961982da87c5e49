package app

import (
	"context"
	"fmt"
	"log/slog"

	"whatsapp-campaign-launcher/internal/domain"
	"whatsapp-campaign-launcher/internal/ports"
)

// AuditService consumes launch events off the queue and persists launch summaries.
type AuditService struct {
	runs ports.LaunchRunRepository
	log  *slog.Logger
}

// NewAuditService wires the service with its dependencies.
func NewAuditService(runs ports.LaunchRunRepository, log *slog.Logger) *AuditService {
	return &AuditService{runs: runs, log: log}
}

// HandleLaunchEvent records the summary on done and aborted events and logs
// row failures.
func (s *AuditService) HandleLaunchEvent(ctx context.Context, ev domain.LaunchEvent) error {
	switch ev.Event.Type {
	case domain.EventDone, domain.EventAborted:
		if err := s.runs.SaveLaunchRun(ctx, domain.NewLaunchRun(ev)); err != nil {
			return fmt.Errorf("save launch run: %w", err)
		}
		s.log.Info("launch recorded", "launch_id", ev.LaunchID, "aborted", ev.Event.Type == domain.EventAborted,
			"sent", ev.Event.Sent, "failed", ev.Event.Failed, "skipped", ev.Event.Skipped, "total", ev.Event.Total)

	case domain.EventRow:
		if ev.Event.Status == domain.OutcomeError {
			s.log.Warn("launch row failed", "launch_id", ev.LaunchID, "phone", ev.Event.Phone, "detail", ev.Event.Detail)
		}

	default:
		s.log.Warn("unknown launch event type", "launch_id", ev.LaunchID, "type", ev.Event.Type)
	}
	return nil
}

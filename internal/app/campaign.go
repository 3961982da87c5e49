package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"whatsapp-campaign-launcher/internal/domain"
	"whatsapp-campaign-launcher/internal/ports"

	"github.com/google/uuid"
)

// Options tunes the campaign service.
type Options struct {
	StagingTTL   time.Duration
	DefaultDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		StagingTTL:   time.Hour,
		DefaultDelay: time.Second,
		MaxDelay:     time.Minute,
	}
}

// lockBudgetPerRow bounds how long a single row may take when sizing the launch lock.
const lockBudgetPerRow = 30 * time.Second

// CampaignService is the application service behind upload, validate and launch.
type CampaignService struct {
	staging    ports.StagingStore
	channels   ports.ChannelRepository
	dispatcher *Dispatcher
	publisher  ports.EventPublisher
	opts       Options
	log        *slog.Logger
	now        func() time.Time
}

// NewCampaignService wires the service. publisher may be nil.
func NewCampaignService(
	staging ports.StagingStore,
	channels ports.ChannelRepository,
	dispatcher *Dispatcher,
	publisher ports.EventPublisher,
	opts Options,
	log *slog.Logger,
) *CampaignService {
	return &CampaignService{
		staging:    staging,
		channels:   channels,
		dispatcher: dispatcher,
		publisher:  publisher,
		opts:       opts,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// UploadResult echoes a staged upload back to the operator.
type UploadResult struct {
	Headers  []string     `json:"headers"`
	RowCount int          `json:"row_count"`
	Preview  []domain.Row `json:"preview"`
}

// Upload parses the CSV and stages it for key, replacing any earlier upload.
func (s *CampaignService) Upload(ctx context.Context, key domain.StagingKey, data []byte, charset string) (UploadResult, error) {
	parsed, err := ParseCSV(data, charset)
	if err != nil {
		return UploadResult{}, err
	}

	imp := domain.StagedImport{
		TenantID:   key.TenantID,
		OperatorID: key.OperatorID,
		Headers:    parsed.Headers,
		Rows:       parsed.Rows,
	}
	if err := s.staging.Put(ctx, key, imp, s.opts.StagingTTL); err != nil {
		return UploadResult{}, fmt.Errorf("stage upload: %w", err)
	}

	s.log.Info("csv staged", "tenant_id", key.TenantID, "operator_id", key.OperatorID, "rows", len(imp.Rows))
	return UploadResult{
		Headers:  imp.Headers,
		RowCount: len(imp.Rows),
		Preview:  imp.Preview(PreviewRows),
	}, nil
}

// Validate checks the column selection against the staged rows.
func (s *CampaignService) Validate(ctx context.Context, key domain.StagingKey, in ValidateInput) (ValidationResult, error) {
	imp, err := s.staging.Get(ctx, key)
	if err != nil && !errors.Is(err, domain.ErrNoStagedImport) {
		return ValidationResult{}, fmt.Errorf("load staged import: %w", err)
	}
	return Validate(imp, in), nil
}

// LaunchInput is the operator's launch request as received by the API.
type LaunchInput struct {
	ChannelID         uuid.UUID
	PhoneColumn       string
	NameColumn        string
	Mappings          []domain.VariableMapping
	DelayMS           *int
	TemplateName      string
	TemplateNamespace string
	TemplateLanguage  string
	TemplateBodyText  string
}

// Launch is a prepared dispatch. Every input error has already been reported
// by PrepareLaunch; from here on failures travel inside the event stream.
type Launch struct {
	ID   uuid.UUID
	key  domain.StagingKey
	svc  *CampaignService
	b    *Batch
	once sync.Once
	rel  func()
}

// PrepareLaunch loads the staged rows and the channel, takes the launch lock
// and returns a Launch ready to run. The staged rows are left in place.
func (s *CampaignService) PrepareLaunch(ctx context.Context, key domain.StagingKey, in LaunchInput) (*Launch, error) {
	if strings.TrimSpace(in.PhoneColumn) == "" {
		return nil, fmt.Errorf("%w: phone column is required", domain.ErrInvalidLaunch)
	}
	if strings.TrimSpace(in.TemplateName) == "" {
		return nil, fmt.Errorf("%w: template name is required", domain.ErrInvalidLaunch)
	}

	imp, err := s.staging.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	ch, err := s.channels.GetChannel(ctx, key.TenantID, in.ChannelID)
	if err != nil {
		return nil, err
	}

	delay := s.delay(in.DelayMS)
	release, err := s.staging.AcquireLaunch(ctx, key, time.Duration(len(imp.Rows))*(delay+lockBudgetPerRow)+time.Minute)
	if err != nil {
		return nil, err
	}

	return &Launch{
		ID:  uuid.New(),
		key: key,
		svc: s,
		rel: release,
		b: &Batch{
			TenantID: key.TenantID,
			SenderID: key.OperatorID,
			Channel:  ch,
			Rows:     imp.Rows,
			Request: domain.LaunchRequest{
				ChannelID:   ch.ID,
				PhoneColumn: in.PhoneColumn,
				NameColumn:  in.NameColumn,
				Mappings:    in.Mappings,
				Delay:       delay,
				Template: domain.TemplateIdentity{
					Name:      in.TemplateName,
					Namespace: in.TemplateNamespace,
					Language:  in.TemplateLanguage,
				},
				BodyText: in.TemplateBodyText,
			},
		},
	}, nil
}

func (s *CampaignService) delay(ms *int) time.Duration {
	if ms == nil {
		return s.opts.DefaultDelay
	}
	d := time.Duration(*ms) * time.Millisecond
	if d < 0 {
		return 0
	}
	if s.opts.MaxDelay > 0 && d > s.opts.MaxDelay {
		return s.opts.MaxDelay
	}
	return d
}

// Total is the number of rows the launch will process.
func (l *Launch) Total() int {
	return len(l.b.Rows)
}

// Run dispatches every row, forwarding each event to emit and then, best
// effort, to the event publisher. It releases the launch lock when done.
func (l *Launch) Run(ctx context.Context, emit Emit) (domain.Counters, error) {
	defer l.Close()

	log := l.svc.log.With("launch_id", l.ID, "tenant_id", l.key.TenantID, "channel_id", l.b.Channel.ID)
	log.Info("campaign launch started", "rows", len(l.b.Rows), "template", l.b.Request.Template.Name, "delay", l.b.Request.Delay)

	counters, err := l.svc.dispatcher.Run(ctx, l.b, func(ev domain.DispatchEvent) error {
		if err := emit(ev); err != nil {
			return err
		}
		l.publish(ctx, log, ev)
		return nil
	})
	if err != nil {
		log.Warn("campaign launch aborted", "err", err, "sent", counters.Sent, "failed", counters.Failed, "skipped", counters.Skipped)
		l.publish(context.WithoutCancel(ctx), log, domain.AbortedEvent(counters, len(l.b.Rows), err.Error()))
		return counters, err
	}

	log.Info("campaign launch finished", "sent", counters.Sent, "failed", counters.Failed, "skipped", counters.Skipped)
	return counters, nil
}

// Close releases the launch lock. It is safe to call more than once.
func (l *Launch) Close() {
	l.once.Do(func() {
		if l.rel != nil {
			l.rel()
		}
	})
}

func (l *Launch) publish(ctx context.Context, log *slog.Logger, ev domain.DispatchEvent) {
	if l.svc.publisher == nil {
		return
	}
	err := l.svc.publisher.Publish(ctx, domain.LaunchEvent{
		LaunchID:   l.ID,
		TenantID:   l.key.TenantID,
		OperatorID: l.key.OperatorID,
		ChannelID:  l.b.Channel.ID,
		Template:   l.b.Request.Template.Name,
		Event:      ev,
		EmittedAt:  l.svc.now(),
	})
	if err != nil {
		log.Error("publish launch event", "err", err)
	}
}

// ChannelTemplateSummary is an approved template as offered to the operator.
type ChannelTemplateSummary struct {
	Name            string                     `json:"name"`
	Language        string                     `json:"language"`
	Category        string                     `json:"category"`
	Status          string                     `json:"status"`
	BodyText        string                     `json:"body_text"`
	BodyVariables   []string                   `json:"body_variables"`
	Components      []domain.TemplateComponent `json:"components"`
	ParameterFormat string                     `json:"parameter_format"`
}

// ChannelSummary is a launchable channel with its approved templates.
type ChannelSummary struct {
	ID            uuid.UUID                `json:"id"`
	Name          string                   `json:"name"`
	AccountStatus string                   `json:"account_status"`
	QualityRating string                   `json:"quality_rating"`
	Templates     []ChannelTemplateSummary `json:"templates"`
}

// ListChannels returns the tenant's channels with approved templates only.
func (s *CampaignService) ListChannels(ctx context.Context, tenantID uuid.UUID) ([]ChannelSummary, error) {
	chs, err := s.channels.ListChannels(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make([]ChannelSummary, 0, len(chs))
	for i := range chs {
		sum := ChannelSummary{
			ID:            chs[i].ID,
			Name:          chs[i].Name,
			AccountStatus: chs[i].AccountStatus,
			QualityRating: chs[i].QualityRating,
			Templates:     []ChannelTemplateSummary{},
		}
		for _, t := range chs[i].ApprovedTemplates() {
			components := t.Components
			if components == nil {
				components = []domain.TemplateComponent{}
			}
			sum.Templates = append(sum.Templates, ChannelTemplateSummary{
				Name:            t.Name,
				Language:        t.Language,
				Category:        t.Category,
				Status:          t.Status,
				BodyText:        t.Body(),
				BodyVariables:   t.BodyVariables(),
				Components:      components,
				ParameterFormat: t.ParameterFormat,
			})
		}
		out = append(out, sum)
	}
	return out, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatsapp-campaign-launcher/internal/domain"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Repository implements the contact, message, channel and launch-run ports on PostgreSQL.
type Repository struct {
	db *gorm.DB
}

// New opens a PostgreSQL connection and returns a Repository.
func New(dsn string) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewWithDB wraps an already opened gorm handle.
func NewWithDB(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Models lists every table AutoMigrate manages.
func Models() []any {
	return []any{
		&domain.Channel{},
		&domain.Contact{},
		&domain.ContactChannel{},
		&domain.Conversation{},
		&domain.Message{},
		&domain.AccountStatusEvent{},
		&domain.LaunchRun{},
	}
}

// Migrate creates or updates all tables.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(Models()...)
}

// Close closes the underlying database connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ── Contacts ──────────────────────────────────────────────────────────────────

// FindOrCreateContact looks the contact up by phone and creates a lead when missing.
func (r *Repository) FindOrCreateContact(ctx context.Context, tenantID uuid.UUID, phone, name string) (*domain.Contact, error) {
	var c domain.Contact
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND phone_number = ?", tenantID, phone).
		First(&c).Error
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find contact: %w", err)
	}

	if name == "" {
		name = phone
	}
	c = domain.Contact{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PhoneNumber: phone,
		Name:        name,
		ContactType: "lead",
	}
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return &c, nil
}

// FindOrCreateContactChannel returns the link for (contact, channel, sourceID).
func (r *Repository) FindOrCreateContactChannel(ctx context.Context, contact *domain.Contact, channelID uuid.UUID, sourceID string) (*domain.ContactChannel, error) {
	var link domain.ContactChannel
	err := r.db.WithContext(ctx).
		Where("contact_id = ? AND channel_id = ? AND source_id = ?", contact.ID, channelID, sourceID).
		First(&link).Error
	if err == nil {
		return &link, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find contact channel: %w", err)
	}

	link = domain.ContactChannel{
		ID:        uuid.New(),
		ContactID: contact.ID,
		ChannelID: channelID,
		SourceID:  sourceID,
	}
	if err := r.db.WithContext(ctx).Create(&link).Error; err != nil {
		return nil, fmt.Errorf("create contact channel: %w", err)
	}
	return &link, nil
}

// FindOrCreateConversation reuses the most recently created conversation.
func (r *Repository) FindOrCreateConversation(ctx context.Context, tenantID, channelID uuid.UUID, contact *domain.Contact, link *domain.ContactChannel) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND channel_id = ? AND contact_id = ?", tenantID, channelID, contact.ID).
		Order("created_at DESC").
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find conversation: %w", err)
	}

	conv = domain.Conversation{
		ID:               uuid.New(),
		TenantID:         tenantID,
		ChannelID:        channelID,
		ContactID:        contact.ID,
		ContactChannelID: link.ID,
	}
	if err := r.db.WithContext(ctx).Create(&conv).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conv, nil
}

// ── Messages ──────────────────────────────────────────────────────────────────

// LogOutgoingMessage inserts an outgoing message row.
func (r *Repository) LogOutgoingMessage(ctx context.Context, msg domain.OutgoingMessage) error {
	status := domain.MessageStatusSent
	if msg.ProviderMessageID == "" {
		status = domain.MessageStatusQueued
	}

	row := domain.Message{
		ID:             uuid.New(),
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Direction:      "outgoing",
		Content:        msg.Content,
		SourceID:       msg.ProviderMessageID,
		Status:         status,
		Metadata:       msg.Metadata,
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateMessageStatusBySourceID transitions a message by the provider's external ID.
func (r *Repository) UpdateMessageStatusBySourceID(ctx context.Context, sourceID string, status domain.MessageStatus) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("source_id = ?", sourceID).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return fmt.Errorf("update status by source id: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrMessageNotFound
	}
	return nil
}

// ── Channels ──────────────────────────────────────────────────────────────────

// GetChannel returns a channel owned by tenantID.
func (r *Repository) GetChannel(ctx context.Context, tenantID, channelID uuid.UUID) (*domain.Channel, error) {
	return r.firstChannel(ctx, "tenant_id = ? AND id = ?", tenantID, channelID)
}

// GetChannelByPhoneNumberID finds the channel a provider phone number id belongs to.
func (r *Repository) GetChannelByPhoneNumberID(ctx context.Context, phoneNumberID string) (*domain.Channel, error) {
	return r.firstChannel(ctx, "provider_config->>'phone_number_id' = ?", phoneNumberID)
}

// GetChannelByBusinessAccountID finds the channel of a provider business account.
func (r *Repository) GetChannelByBusinessAccountID(ctx context.Context, businessAccountID string) (*domain.Channel, error) {
	return r.firstChannel(ctx, "provider_config->>'business_account_id' = ?", businessAccountID)
}

func (r *Repository) firstChannel(ctx context.Context, query string, args ...any) (*domain.Channel, error) {
	var ch domain.Channel
	err := r.db.WithContext(ctx).Where(query, args...).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &ch, nil
}

// ListChannels returns every channel of a tenant ordered by name.
func (r *Repository) ListChannels(ctx context.Context, tenantID uuid.UUID) ([]domain.Channel, error) {
	var chs []domain.Channel
	if err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name").Find(&chs).Error; err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return chs, nil
}

// SaveChannelHealth updates the channel status columns and appends the event in one transaction.
func (r *Repository) SaveChannelHealth(ctx context.Context, ch *domain.Channel, ev domain.AccountStatusEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Channel{}).
			Where("id = ?", ch.ID).
			Updates(map[string]any{
				"account_status":   ch.AccountStatus,
				"quality_rating":   ch.QualityRating,
				"status_synced_at": ch.StatusSyncedAt,
				"updated_at":       time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("update channel health: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrChannelNotFound
		}

		if err := tx.Create(&ev).Error; err != nil {
			return fmt.Errorf("insert status event: %w", err)
		}
		return nil
	})
}

// ── Launch runs ───────────────────────────────────────────────────────────────

// SaveLaunchRun upserts a launch summary; redelivered terminal events overwrite it.
func (r *Repository) SaveLaunchRun(ctx context.Context, run domain.LaunchRun) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"sent", "failed", "skipped", "total", "aborted", "reason", "finished_at"}),
	}).Create(&run).Error
	if err != nil {
		return fmt.Errorf("save launch run: %w", err)
	}
	return nil
}

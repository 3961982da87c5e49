package ports

import (
	"context"
	"time"

	"whatsapp-campaign-launcher/internal/domain"
)

// StagingStore holds uploaded recipient lists between upload and launch.
type StagingStore interface {
	// Put stores the import under key, replacing any previous one, for ttl.
	Put(ctx context.Context, key domain.StagingKey, imp domain.StagedImport, ttl time.Duration) error

	// Get returns the staged import or domain.ErrNoStagedImport when absent or expired.
	Get(ctx context.Context, key domain.StagingKey) (*domain.StagedImport, error)

	// AcquireLaunch takes the per-key launch lock. It returns
	// domain.ErrLaunchInProgress when another launch holds it.
	AcquireLaunch(ctx context.Context, key domain.StagingKey, ttl time.Duration) (release func(), err error)
}

package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"whatsapp-campaign-launcher/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "campaign_launcher"

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// StagingStore implements ports.StagingStore on Redis. The rows of an import
// are stored as a JSON array under the base key, its headers as a JSON array
// under a sibling key, both written with the same expiry.
type StagingStore struct {
	rdb *redis.Client
}

// New parses a redis:// URL and returns a connected StagingStore.
func New(ctx context.Context, url string) (*StagingStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &StagingStore{rdb: rdb}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(rdb *redis.Client) *StagingStore {
	return &StagingStore{rdb: rdb}
}

// Close closes the underlying client.
func (s *StagingStore) Close() error {
	return s.rdb.Close()
}

func rowsKey(k domain.StagingKey) string    { return fmt.Sprintf("%s:%s", keyPrefix, k) }
func headersKey(k domain.StagingKey) string { return rowsKey(k) + ":headers" }
func lockKey(k domain.StagingKey) string    { return rowsKey(k) + ":launch" }

// Put overwrites the staged import for key.
func (s *StagingStore) Put(ctx context.Context, key domain.StagingKey, imp domain.StagedImport, ttl time.Duration) error {
	rows, err := json.Marshal(imp.Rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	headers, err := json.Marshal(imp.Headers)
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, rowsKey(key), rows, ttl)
		p.Set(ctx, headersKey(key), headers, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("stage import: %w", err)
	}
	return nil
}

// Get returns domain.ErrNoStagedImport when nothing was staged or the entry expired.
func (s *StagingStore) Get(ctx context.Context, key domain.StagingKey) (*domain.StagedImport, error) {
	vals, err := s.rdb.MGet(ctx, rowsKey(key), headersKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("load staged import: %w", err)
	}

	rowsRaw, ok := vals[0].(string)
	if !ok || rowsRaw == "" {
		return nil, domain.ErrNoStagedImport
	}

	imp := &domain.StagedImport{TenantID: key.TenantID, OperatorID: key.OperatorID}
	if err := json.Unmarshal([]byte(rowsRaw), &imp.Rows); err != nil {
		return nil, fmt.Errorf("decode staged rows: %w", err)
	}
	if len(imp.Rows) == 0 {
		return nil, domain.ErrNoStagedImport
	}

	if headersRaw, ok := vals[1].(string); ok && headersRaw != "" {
		if err := json.Unmarshal([]byte(headersRaw), &imp.Headers); err != nil {
			return nil, fmt.Errorf("decode staged headers: %w", err)
		}
	} else {
		for h := range imp.Rows[0] {
			imp.Headers = append(imp.Headers, h)
		}
		sort.Strings(imp.Headers)
	}

	return imp, nil
}

// AcquireLaunch sets the launch lock with a random token; release removes it
// only while the token is still ours.
func (s *StagingStore) AcquireLaunch(ctx context.Context, key domain.StagingKey, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	ok, err := s.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire launch lock: %w", err)
	}
	if !ok {
		return nil, domain.ErrLaunchInProgress
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(ctx, s.rdb, []string{lockKey(key)}, token).Err()
	}
	return release, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"whatsapp-campaign-launcher/internal/domain"
)

type entry struct {
	imp       domain.StagedImport
	expiresAt time.Time
}

// StagingStore is an in-process ports.StagingStore for single-node setups and tests.
type StagingStore struct {
	mu      sync.Mutex
	entries map[domain.StagingKey]entry
	locks   map[domain.StagingKey]time.Time
	now     func() time.Time
}

// New returns an empty store using the wall clock.
func New() *StagingStore {
	return NewWithClock(time.Now)
}

// NewWithClock returns an empty store reading time from now.
func NewWithClock(now func() time.Time) *StagingStore {
	return &StagingStore{
		entries: make(map[domain.StagingKey]entry),
		locks:   make(map[domain.StagingKey]time.Time),
		now:     now,
	}
}

// Put overwrites the staged import for key. The store keeps its own copy of
// the rows; Get hands out copies too.
func (s *StagingStore) Put(_ context.Context, key domain.StagingKey, imp domain.StagedImport, ttl time.Duration) error {
	cp := clone(imp)
	cp.TenantID, cp.OperatorID = key.TenantID, key.OperatorID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{imp: cp, expiresAt: s.now().Add(ttl)}
	return nil
}

// Get returns domain.ErrNoStagedImport for unknown or expired keys.
func (s *StagingStore) Get(_ context.Context, key domain.StagingKey) (*domain.StagedImport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, domain.ErrNoStagedImport
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil, domain.ErrNoStagedImport
	}

	imp := clone(e.imp)
	return &imp, nil
}

func clone(imp domain.StagedImport) domain.StagedImport {
	cp := domain.StagedImport{
		TenantID:   imp.TenantID,
		OperatorID: imp.OperatorID,
		Headers:    append([]string(nil), imp.Headers...),
		Rows:       make([]domain.Row, len(imp.Rows)),
	}
	for i, r := range imp.Rows {
		row := make(domain.Row, len(r))
		for k, v := range r {
			row[k] = v
		}
		cp.Rows[i] = row
	}
	return cp
}

// AcquireLaunch takes the launch lock for key until ttl passes or the
// returned release func runs. A held lock yields domain.ErrLaunchInProgress.
func (s *StagingStore) AcquireLaunch(_ context.Context, key domain.StagingKey, ttl time.Duration) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, held := s.locks[key]; held && now.Before(until) {
		return nil, domain.ErrLaunchInProgress
	}
	until := now.Add(ttl)
	s.locks[key] = until

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.locks[key] == until {
			delete(s.locks, key)
		}
	}, nil
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/assessment-pipeline/internal/domain"
	"github.com/cuongbtq/assessment-pipeline/internal/storage"
)

// QuotaStore keeps quota records in a map and serializes updates per tenant
type QuotaStore struct {
	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	records map[string]domain.QuotaRecord
}

// NewQuotaStore creates an empty QuotaStore
func NewQuotaStore() *QuotaStore {
	return &QuotaStore{
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]domain.QuotaRecord),
	}
}

func (s *QuotaStore) tenantLock(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[tenantID] = l
	}
	return l
}

// GetQuota returns the stored record for tenantID
func (s *QuotaStore) GetQuota(_ context.Context, tenantID string) (domain.QuotaRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[tenantID]
	return rec, ok, nil
}

// UpdateQuota runs fn under the tenant's lock and stores its result
func (s *QuotaStore) UpdateQuota(_ context.Context, tenantID string, fn storage.QuotaUpdateFunc) (domain.QuotaRecord, error) {
	l := s.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	current, found := s.records[tenantID]
	s.mu.Unlock()

	next := fn(current, found)
	next.TenantID = tenantID
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.records[tenantID] = next
	s.mu.Unlock()

	return next, nil
}

// DeleteQuota removes the tenant's record entirely
func (s *QuotaStore) DeleteQuota(_ context.Context, tenantID string) error {
	l := s.tenantLock(tenantID)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	delete(s.records, tenantID)
	s.mu.Unlock()
	return nil
}

// Package memory provides in-memory repository implementations for unit
// tests across the service and worker packages. Predicates are evaluated
// with segmentation.Predicate.Match.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/segmentation"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// ContactRepo implements contacts.Repository in memory.
type ContactRepo struct {
	mu       sync.RWMutex
	contacts map[string]*domain.Contact
	now      func() time.Time
	writes   int
}

// NewContactRepo creates an empty contact store.
func NewContactRepo() *ContactRepo {
	return &ContactRepo{contacts: make(map[string]*domain.Contact), now: time.Now}
}

func clone(c *domain.Contact) *domain.Contact {
	cp := *c
	cp.Attributes = c.Attributes.Clone()
	if c.ExistingContactID != nil {
		id := *c.ExistingContactID
		cp.ExistingContactID = &id
	}
	if c.DeletionReason != nil {
		r := *c.DeletionReason
		r.Filters = append([]domain.SelectionCriterion(nil), c.DeletionReason.Filters...)
		cp.DeletionReason = &r
	}
	return &cp
}

// Writes counts mutating calls that changed at least one contact.
func (m *ContactRepo) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Get returns a copy of any contact regardless of status.
func (m *ContactRepo) Get(id string) (*domain.Contact, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.contacts[id]
	if !ok {
		return nil, false
	}
	return clone(c), true
}

// All returns copies of every contact of the tenant, oldest first.
func (m *ContactRepo) All(tenantID string) []*domain.Contact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(tenantID, func(*domain.Contact) bool { return true })
}

func (m *ContactRepo) selectLocked(tenantID string, keep func(*domain.Contact) bool) []*domain.Contact {
	var out []*domain.Contact
	for _, c := range m.contacts {
		if c.TenantID == tenantID && keep(c) {
			out = append(out, clone(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *ContactRepo) Insert(_ context.Context, batch []*domain.Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, c := range batch {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		if c.Status == "" {
			c.Status = domain.ContactActive
		}
		m.contacts[c.ID] = clone(c)
	}
	if len(batch) > 0 {
		m.writes++
	}
	return nil
}

func (m *ContactRepo) ListActive(_ context.Context, tenantID string) ([]*domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(tenantID, (*domain.Contact).IsActive), nil
}

func (m *ContactRepo) CountActive(ctx context.Context, tenantID string, p segmentation.Predicate) (int64, error) {
	found, err := m.FindActive(ctx, tenantID, p, 0, 0)
	return int64(len(found)), err
}

func (m *ContactRepo) FindActive(_ context.Context, tenantID string, p segmentation.Predicate, limit, offset int) ([]*domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := m.selectLocked(tenantID, func(c *domain.Contact) bool {
		return c.IsActive() && p.Match(c.Attributes)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *ContactRepo) ApplyDedup(_ context.Context, tenantID string, updates []domain.DedupUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range updates {
		c, ok := m.contacts[u.ContactID]
		if !ok || c.TenantID != tenantID {
			return contacts.ErrNotFound
		}
	}
	now := m.now()
	for _, u := range updates {
		c := m.contacts[u.ContactID]
		switch u.Action {
		case domain.DedupLink:
			id := u.CanonicalID
			c.ExistingContactID = &id
		case domain.DedupUnlink:
			c.ExistingContactID = nil
		case domain.DedupSuppress:
			c.Status = domain.ContactDeleted
			c.ExistingContactID = nil
			c.DeletionReason = &domain.DeletionReason{Action: domain.DeletionPrimaryKey, PrimaryKey: u.PrimaryKey}
		}
		c.UpdatedAt = now
	}
	if len(updates) > 0 {
		m.writes++
	}
	return nil
}

func (m *ContactRepo) ListDuplicates(_ context.Context, tenantID string) ([]*domain.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.selectLocked(tenantID, func(c *domain.Contact) bool {
		if !c.IsActive() || c.ExistingContactID == nil {
			return false
		}
		target, ok := m.contacts[*c.ExistingContactID]
		return ok && target.TenantID == tenantID && target.IsActive()
	}), nil
}

// mutate applies fn to every tenant contact selected by keep and returns
// the number changed.
func (m *ContactRepo) mutate(tenantID string, keep func(*domain.Contact) bool, fn func(*domain.Contact)) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for _, c := range m.contacts {
		if c.TenantID != tenantID || !keep(c) {
			continue
		}
		fn(c)
		c.UpdatedAt = now
		n++
	}
	if n > 0 {
		m.writes++
	}
	return n
}

func softDelete(reason domain.DeletionReason) func(*domain.Contact) {
	return func(c *domain.Contact) {
		r := reason
		c.Status = domain.ContactDeleted
		c.ExistingContactID = nil
		c.DeletionReason = &r
	}
}

func reactivate(c *domain.Contact) {
	c.Status = domain.ContactActive
	c.DeletionReason = nil
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func (m *ContactRepo) DeleteByIDs(_ context.Context, tenantID string, ids []string, reason domain.DeletionReason) (int64, error) {
	set := idSet(ids)
	return m.mutate(tenantID, func(c *domain.Contact) bool {
		return set[c.ID] && c.IsActive()
	}, softDelete(reason)), nil
}

func (m *ContactRepo) DeleteWhere(_ context.Context, tenantID string, p segmentation.Predicate, reason domain.DeletionReason) (int64, error) {
	return m.mutate(tenantID, func(c *domain.Contact) bool {
		return c.IsActive() && c.DeletionReason == nil && p.Match(c.Attributes)
	}, softDelete(reason)), nil
}

func deletedWith(c *domain.Contact, action domain.DeletionAction) bool {
	return c.Status == domain.ContactDeleted && c.DeletionReason != nil && c.DeletionReason.Action == action
}

func (m *ContactRepo) RestoreByIDs(_ context.Context, tenantID string, ids []string, action domain.DeletionAction) (int64, error) {
	set := idSet(ids)
	return m.mutate(tenantID, func(c *domain.Contact) bool {
		return set[c.ID] && deletedWith(c, action)
	}, reactivate), nil
}

func (m *ContactRepo) RestoreFiltered(_ context.Context, tenantID string, criteria []domain.SelectionCriterion) (int64, error) {
	return m.mutate(tenantID, func(c *domain.Contact) bool {
		if !deletedWith(c, domain.DeletionFilter) {
			return false
		}
		if criteria == nil {
			return true
		}
		for _, stored := range c.DeletionReason.Filters {
			for _, given := range criteria {
				if stored.Overlaps(given) {
					return true
				}
			}
		}
		return false
	}, reactivate), nil
}

func (m *ContactRepo) RestoreByPrimaryKey(_ context.Context, tenantID, primaryKey string) (int64, error) {
	return m.mutate(tenantID, func(c *domain.Contact) bool {
		return deletedWith(c, domain.DeletionPrimaryKey) && c.DeletionReason.PrimaryKey == primaryKey
	}, reactivate), nil
}

func (m *ContactRepo) ClearDuplicateLinks(_ context.Context, tenantID string) (int64, error) {
	return m.mutate(tenantID, func(c *domain.Contact) bool {
		return c.ExistingContactID != nil
	}, func(c *domain.Contact) { c.ExistingContactID = nil }), nil
}

func (m *ContactRepo) UpdateAttributes(_ context.Context, tenantID, id string, attrs domain.Attributes) error {
	n := m.mutate(tenantID, func(c *domain.Contact) bool {
		return c.ID == id && c.IsActive()
	}, func(c *domain.Contact) {
		for k, v := range attrs {
			c.Attributes[k] = v
		}
		c.ExistingContactID = nil
	})
	if n == 0 {
		return contacts.ErrNotFound
	}
	return nil
}

var _ contacts.Repository = (*ContactRepo)(nil)

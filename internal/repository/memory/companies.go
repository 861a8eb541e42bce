package memory

import (
	"context"
	"sync"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// CompanyRepo implements contacts.CompanyRepository in memory.
type CompanyRepo struct {
	mu        sync.RWMutex
	companies map[string]*domain.Company
}

// NewCompanyRepo creates a company store seeded with the given companies.
func NewCompanyRepo(seed ...*domain.Company) *CompanyRepo {
	r := &CompanyRepo{companies: make(map[string]*domain.Company)}
	for _, c := range seed {
		cp := *c
		r.companies[c.ID] = &cp
	}
	return r
}

// Put inserts or replaces a company.
func (r *CompanyRepo) Put(c *domain.Company) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.companies[c.ID] = &cp
}

func (r *CompanyRepo) Get(_ context.Context, id string) (*domain.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, contacts.ErrCompanyNotFound
	}
	cp := *c
	if c.ContactsPrimaryKey != nil {
		key := *c.ContactsPrimaryKey
		cp.ContactsPrimaryKey = &key
	}
	cp.ContactSelectionCriteria = append([]domain.SelectionCriterion(nil), c.ContactSelectionCriteria...)
	return &cp, nil
}

func (r *CompanyRepo) update(id string, fn func(*domain.Company)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return contacts.ErrCompanyNotFound
	}
	fn(c)
	return nil
}

func (r *CompanyRepo) SetPrimaryKey(_ context.Context, id string, key *string) error {
	return r.update(id, func(c *domain.Company) {
		if key == nil {
			c.ContactsPrimaryKey = nil
			return
		}
		k := *key
		c.ContactsPrimaryKey = &k
	})
}

func (r *CompanyRepo) SetContactFinalize(_ context.Context, id string, finalized bool) error {
	return r.update(id, func(c *domain.Company) { c.IsContactFinalize = finalized })
}

func (r *CompanyRepo) SetSelectionCriteria(_ context.Context, id string, criteria []domain.SelectionCriterion) error {
	return r.update(id, func(c *domain.Company) {
		c.ContactSelectionCriteria = append([]domain.SelectionCriterion(nil), criteria...)
	})
}

func (r *CompanyRepo) SetMarkingDuplicates(_ context.Context, id string, marking bool) error {
	return r.update(id, func(c *domain.Company) { c.IsMarkingDuplicates = marking })
}

var _ contacts.CompanyRepository = (*CompanyRepo)(nil)

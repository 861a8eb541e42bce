package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/audience"
)

// SegmentRepo implements audience.SegmentRepository in memory.
type SegmentRepo struct {
	mu       sync.RWMutex
	segments map[string]*domain.Segment
}

// NewSegmentRepo creates an empty segment store.
func NewSegmentRepo() *SegmentRepo {
	return &SegmentRepo{segments: make(map[string]*domain.Segment)}
}

func (r *SegmentRepo) Create(_ context.Context, s *domain.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	s.CreatedAt, s.UpdatedAt = now, now
	cp := *s
	r.segments[s.ID] = &cp
	return nil
}

func (r *SegmentRepo) Get(_ context.Context, tenantID, id string) (*domain.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.segments[id]
	if !ok || s.CompanyID != tenantID {
		return nil, audience.ErrSegmentNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *SegmentRepo) List(_ context.Context, tenantID string) ([]*domain.Segment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Segment
	for _, s := range r.segments {
		if s.CompanyID == tenantID {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *SegmentRepo) Update(_ context.Context, s *domain.Segment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.segments[s.ID]
	if !ok || cur.CompanyID != s.CompanyID {
		return audience.ErrSegmentNotFound
	}
	s.UpdatedAt = time.Now()
	cp := *s
	r.segments[s.ID] = &cp
	return nil
}

func (r *SegmentRepo) Delete(_ context.Context, tenantID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.segments[id]
	if !ok || s.CompanyID != tenantID {
		return audience.ErrSegmentNotFound
	}
	delete(r.segments, id)
	return nil
}

var _ audience.SegmentRepository = (*SegmentRepo)(nil)

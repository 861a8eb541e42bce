package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/requests"
)

// RequestRepo implements requests.Repository in memory.
type RequestRepo struct {
	mu       sync.RWMutex
	requests map[string]*domain.CustomerRequest
}

// NewRequestRepo creates an empty request store.
func NewRequestRepo() *RequestRepo {
	return &RequestRepo{requests: make(map[string]*domain.CustomerRequest)}
}

func (r *RequestRepo) FindOutstanding(_ context.Context, tenantID string, t domain.RequestType) (*domain.CustomerRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.requests {
		if req.TenantID == tenantID && req.Type == t && req.Status.IsOutstanding() {
			cp := *req
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *RequestRepo) Create(_ context.Context, req *domain.CustomerRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	req.CreatedAt, req.UpdatedAt = now, now
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *RequestRepo) UpdateStatus(_ context.Context, tenantID, id string, status domain.RequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok || req.TenantID != tenantID {
		return requests.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now()
	return nil
}

var _ requests.Repository = (*RequestRepo)(nil)

package audience

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/segmentation"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// Service computes audience sizes and manages segments. All counts are
// point-in-time snapshots over ACTIVE contacts; nothing is cached.
type Service struct {
	contacts  ContactCounter
	companies CompanyReader
	segments  SegmentRepository
}

// NewService creates an audience service.
func NewService(c ContactCounter, companies CompanyReader, segments SegmentRepository) *Service {
	return &Service{contacts: c, companies: companies, segments: segments}
}

// CountFilters returns one count per filter, in order, followed by the
// combined segment count keyed "segmentCount".
func (s *Service) CountFilters(ctx context.Context, tenantID string, filters []domain.FilterSpec) ([]domain.FilterCount, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	if err := segmentation.ValidateFilters(filters); err != nil {
		return nil, err
	}
	warnUnknown(tenantID, filters)

	out := make([]domain.FilterCount, 0, len(filters)+1)
	for _, f := range filters {
		n, err := s.contacts.CountActive(ctx, tenantID, segmentation.Build(f))
		if err != nil {
			return nil, fmt.Errorf("count filter %q: %w", f.Key, err)
		}
		out = append(out, domain.FilterCount{Key: f.Key, Count: n})
	}

	combined, err := s.contacts.CountActive(ctx, tenantID, segmentation.Combine(filters))
	if err != nil {
		return nil, fmt.Errorf("count segment: %w", err)
	}
	out = append(out, domain.FilterCount{Key: domain.SegmentCountKey, Count: combined})
	return out, nil
}

// Members pages through the contacts a filter combination selects.
func (s *Service) Members(ctx context.Context, tenantID string, filters []domain.FilterSpec, limit, offset int) ([]*domain.Contact, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	if err := segmentation.ValidateFilters(filters); err != nil {
		return nil, err
	}
	return s.contacts.FindActive(ctx, tenantID, segmentation.Combine(filters), limit, offset)
}

// CreateSegment saves a named filter combination. The tenant's contacts must
// be finalized first.
func (s *Service) CreateSegment(ctx context.Context, tenantID, name string, filters []domain.FilterSpec) (*domain.Segment, error) {
	tenantID, err := s.checkSegmentWrite(ctx, tenantID, name, filters)
	if err != nil {
		return nil, err
	}

	seg := &domain.Segment{
		ID:        uuid.New().String(),
		CompanyID: tenantID,
		Name:      strings.TrimSpace(name),
		Filters:   filters,
	}
	if err := s.segments.Create(ctx, seg); err != nil {
		return nil, err
	}
	log.Printf("[audience.Service] created segment %s for company %s", seg.ID, tenantID)
	return s.withCount(ctx, seg)
}

// UpdateSegment replaces a segment's name and filters.
func (s *Service) UpdateSegment(ctx context.Context, tenantID, id, name string, filters []domain.FilterSpec) (*domain.Segment, error) {
	tenantID, err := s.checkSegmentWrite(ctx, tenantID, name, filters)
	if err != nil {
		return nil, err
	}
	seg, err := s.segments.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	seg.Name = strings.TrimSpace(name)
	seg.Filters = filters
	if err := s.segments.Update(ctx, seg); err != nil {
		return nil, err
	}
	return s.withCount(ctx, seg)
}

// GetSegment loads a segment and computes its current audience size.
func (s *Service) GetSegment(ctx context.Context, tenantID, id string) (*domain.Segment, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	seg, err := s.segments.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return s.withCount(ctx, seg)
}

// ListSegments returns the tenant's segments with fresh counts.
func (s *Service) ListSegments(ctx context.Context, tenantID string) ([]*domain.Segment, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	segs, err := s.segments.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		if _, err := s.withCount(ctx, seg); err != nil {
			return nil, err
		}
	}
	return segs, nil
}

// DeleteSegment removes a segment.
func (s *Service) DeleteSegment(ctx context.Context, tenantID, id string) error {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return err
	}
	return s.segments.Delete(ctx, tenantID, id)
}

func (s *Service) checkSegmentWrite(ctx context.Context, tenantID, name string, filters []domain.FilterSpec) (string, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(name) == "" {
		return "", ErrNameRequired
	}
	if err := segmentation.ValidateFilters(filters); err != nil {
		return "", err
	}
	company, err := s.companies.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !company.IsContactFinalize {
		return "", ErrContactsNotFinalized
	}
	warnUnknown(tenantID, filters)
	return tenantID, nil
}

func (s *Service) withCount(ctx context.Context, seg *domain.Segment) (*domain.Segment, error) {
	n, err := s.contacts.CountActive(ctx, seg.CompanyID, segmentation.Combine(seg.Filters))
	if err != nil {
		return nil, fmt.Errorf("count segment %s: %w", seg.ID, err)
	}
	seg.UsersCount = n
	return seg, nil
}

func warnUnknown(tenantID string, filters []domain.FilterSpec) {
	if unknown := segmentation.UnknownConditions(filters); len(unknown) > 0 {
		log.Printf("[audience.Service] company %s: unknown condition types %v match every contact", tenantID, unknown)
	}
}

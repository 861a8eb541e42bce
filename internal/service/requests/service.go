package requests

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// Config holds the notification addresses.
type Config struct {
	From      string
	SupportTo string
}

// Service implements the single-slot customer request gate.
type Service struct {
	repo      Repository
	companies CompanyReader
	mail      Mailer
	templates Renderer
	cfg       Config
}

// NewService creates a requests service.
func NewService(repo Repository, companies CompanyReader, mail Mailer, templates Renderer, cfg Config) *Service {
	return &Service{repo: repo, companies: companies, mail: mail, templates: templates, cfg: cfg}
}

// CreateRevertFinalize opens a request to undo a contact finalize.
func (s *Service) CreateRevertFinalize(ctx context.Context, tenantID, reason string) (*domain.CustomerRequest, error) {
	return s.create(ctx, tenantID, domain.RequestRevertFinalize, reason)
}

// CreateDedicatedIP opens a request to enable or disable a dedicated IP.
func (s *Service) CreateDedicatedIP(ctx context.Context, tenantID string, enable bool, reason string) (*domain.CustomerRequest, error) {
	t := domain.RequestDedicatedIPDisabled
	if enable {
		t = domain.RequestDedicatedIPEnabled
	}
	return s.create(ctx, tenantID, t, reason)
}

func (s *Service) create(ctx context.Context, tenantID string, t domain.RequestType, reason string) (*domain.CustomerRequest, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	company, err := s.companies.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOutstanding(ctx, tenantID, t)
	if err != nil {
		return nil, fmt.Errorf("find outstanding %s: %w", t, err)
	}
	if existing != nil {
		return nil, ErrRequestPending
	}

	req := &domain.CustomerRequest{
		ID:       uuid.New().String(),
		TenantID: tenantID,
		Type:     t,
		Status:   domain.RequestPending,
		Reason:   reason,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}
	log.Printf("[requests.Service] company %s opened %s request %s", tenantID, t, req.ID)

	if err := s.notify(ctx, company, req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	return req, nil
}

func (s *Service) notify(ctx context.Context, company *domain.Company, req *domain.CustomerRequest) error {
	to := s.cfg.SupportTo
	if company.SupportEmail != "" {
		to = company.SupportEmail
	}
	subject, body, err := s.templates.Render(string(req.Type), map[string]any{
		"company": map[string]any{"id": company.ID, "name": company.Name},
		"request": map[string]any{
			"id":     req.ID,
			"type":   string(req.Type),
			"status": string(req.Status),
			"reason": req.Reason,
		},
	})
	if err != nil {
		return fmt.Errorf("render %s: %w", req.Type, err)
	}
	return s.mail.SendEmail(ctx, s.cfg.From, to, subject, body, "html")
}

// Cancel closes the outstanding request of type t.
func (s *Service) Cancel(ctx context.Context, tenantID string, t domain.RequestType) error {
	cancelled, err := s.CancelIfPending(ctx, tenantID, t)
	if err != nil {
		return err
	}
	if !cancelled {
		return ErrNotFound
	}
	return nil
}

// CancelIfPending cancels the outstanding request of type t if there is one.
func (s *Service) CancelIfPending(ctx context.Context, tenantID string, t domain.RequestType) (bool, error) {
	return s.transition(ctx, tenantID, t, domain.RequestCancelled)
}

// MarkInProgress records that support has picked up the request.
func (s *Service) MarkInProgress(ctx context.Context, tenantID string, t domain.RequestType) error {
	ok, err := s.transition(ctx, tenantID, t, domain.RequestInProgress)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) transition(ctx context.Context, tenantID string, t domain.RequestType, to domain.RequestStatus) (bool, error) {
	if !t.Valid() {
		return false, ErrInvalidType
	}
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return false, err
	}
	req, err := s.repo.FindOutstanding(ctx, tenantID, t)
	if err != nil {
		return false, fmt.Errorf("find outstanding %s: %w", t, err)
	}
	if req == nil {
		return false, nil
	}
	if err := s.repo.UpdateStatus(ctx, tenantID, req.ID, to); err != nil {
		return false, err
	}
	log.Printf("[requests.Service] company %s request %s -> %s", tenantID, req.ID, to)
	return true, nil
}

// RevertFinalizePending reports whether a revert-finalize request is
// PENDING or IN_PROGRESS.
func (s *Service) RevertFinalizePending(ctx context.Context, tenantID string) (bool, error) {
	req, err := s.repo.FindOutstanding(ctx, tenantID, domain.RequestRevertFinalize)
	if err != nil {
		return false, err
	}
	return req != nil, nil
}

// CancelRevertFinalize cancels a pending revert-finalize request, if any.
func (s *Service) CancelRevertFinalize(ctx context.Context, tenantID string) error {
	_, err := s.CancelIfPending(ctx, tenantID, domain.RequestRevertFinalize)
	return err
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/segmentation"
	"github.com/ignite/audience-core/internal/service/contacts"
)

// Service moves contacts between lifecycle states.
type Service struct {
	contacts  contacts.Repository
	companies contacts.CompanyRepository
	gate      Gate
	billing   Charger
	jobs      JobSubmitter
}

// NewService creates a lifecycle service.
func NewService(c contacts.Repository, companies contacts.CompanyRepository, gate Gate, billing Charger, jobs JobSubmitter) *Service {
	return &Service{contacts: c, companies: companies, gate: gate, billing: billing, jobs: jobs}
}

// Delete soft-deletes the listed contacts. It fails with ErrAlreadyDeleted
// when none of them was ACTIVE.
func (s *Service) Delete(ctx context.Context, tenantID string, ids []string) (int64, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return 0, err
	}
	n, err := s.contacts.DeleteByIDs(ctx, tenantID, ids, domain.DeletionReason{Action: domain.DeletionManual})
	if err != nil {
		return 0, fmt.Errorf("delete contacts: %w", err)
	}
	if n == 0 {
		return 0, ErrAlreadyDeleted
	}
	return n, nil
}

// DeleteAll soft-deletes every ACTIVE contact of the tenant. Only the
// tenant's primary user may do this.
func (s *Service) DeleteAll(ctx context.Context, tenantID string, actor domain.Actor) (int64, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return 0, err
	}
	if !actor.IsPrimary() {
		return 0, ErrForbidden
	}
	n, err := s.contacts.DeleteWhere(ctx, tenantID, segmentation.All{}, domain.DeletionReason{Action: domain.DeletionManual})
	if err != nil {
		return 0, fmt.Errorf("delete all contacts: %w", err)
	}
	log.Printf("[lifecycle.Service] company %s: user %s deleted %d contacts", tenantID, actor.UserID, n)
	return n, nil
}

// RestoreContacts reactivates manually deleted contacts.
func (s *Service) RestoreContacts(ctx context.Context, tenantID string, ids []string) (int64, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return 0, err
	}
	n, err := s.contacts.RestoreByIDs(ctx, tenantID, ids, domain.DeletionManual)
	if err != nil {
		return 0, fmt.Errorf("restore contacts: %w", err)
	}
	if n == 0 {
		return 0, ErrAlreadyDeleted
	}
	return n, nil
}

// FilterDelete soft-deletes every ACTIVE, reason-less contact that does not
// satisfy all criteria and stores the criteria as the tenant's import
// selection criteria.
func (s *Service) FilterDelete(ctx context.Context, tenantID string, criteria []domain.SelectionCriterion) (int64, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return 0, err
	}
	if err := segmentation.ValidateCriteria(criteria); err != nil {
		return 0, err
	}
	if err := s.checkGate(ctx, tenantID); err != nil {
		return 0, err
	}

	reason := domain.DeletionReason{Action: domain.DeletionFilter, Filters: criteria}
	n, err := s.contacts.DeleteWhere(ctx, tenantID, segmentation.Not{P: segmentation.Criteria(criteria)}, reason)
	if err != nil {
		return 0, fmt.Errorf("filter delete: %w", err)
	}
	if err := s.companies.SetSelectionCriteria(ctx, tenantID, criteria); err != nil {
		return n, fmt.Errorf("save selection criteria: %w", err)
	}
	log.Printf("[lifecycle.Service] company %s: filter delete removed %d contacts", tenantID, n)
	return n, nil
}

// RevertFilterDelete reactivates FILTER-deleted contacts whose stored
// criteria overlap criteria. Nil criteria reverts every filter delete and
// clears the tenant's selection criteria.
func (s *Service) RevertFilterDelete(ctx context.Context, tenantID string, criteria []domain.SelectionCriterion) (int64, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return 0, err
	}
	if err := segmentation.ValidateCriteria(criteria); err != nil {
		return 0, err
	}
	if len(criteria) == 0 {
		criteria = nil
	}

	n, err := s.contacts.RestoreFiltered(ctx, tenantID, criteria)
	if err != nil {
		return 0, fmt.Errorf("revert filter delete: %w", err)
	}
	if criteria == nil {
		if err := s.companies.SetSelectionCriteria(ctx, tenantID, nil); err != nil {
			return n, fmt.Errorf("clear selection criteria: %w", err)
		}
	}
	return n, nil
}

// ReadDuplicates returns the contacts pending duplicate resolution.
func (s *Service) ReadDuplicates(ctx context.Context, tenantID string) ([]*domain.Contact, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	return s.contacts.ListDuplicates(ctx, tenantID)
}

// ResolveDuplicates settles pending duplicates.
//
// With contacts supplied, each one is kept: every other ACTIVE contact with
// the same primary-key value is deleted, then the supplied fields are saved
// and its duplicate link cleared. Without contacts, every pending pair is
// resolved at once, keeping the newer contact when isSaveNewContact is set
// and the canonical one otherwise; remaining links are cleared.
func (s *Service) ResolveDuplicates(ctx context.Context, tenantID string, isSaveNewContact bool, keep []domain.ContactInput) (int64, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return 0, err
	}
	if len(keep) > 0 {
		return s.saveContacts(ctx, tenantID, keep)
	}

	dups, err := s.contacts.ListDuplicates(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list duplicates: %w", err)
	}
	ids := make([]string, 0, len(dups))
	for _, d := range dups {
		if isSaveNewContact {
			ids = append(ids, *d.ExistingContactID)
		} else {
			ids = append(ids, d.ID)
		}
	}

	var n int64
	if len(ids) > 0 {
		n, err = s.contacts.DeleteByIDs(ctx, tenantID, ids, domain.DeletionReason{Action: domain.DeletionDuplicationResolve})
		if err != nil {
			return 0, fmt.Errorf("resolve duplicates: %w", err)
		}
	}
	if _, err := s.contacts.ClearDuplicateLinks(ctx, tenantID); err != nil {
		return n, fmt.Errorf("clear duplicate links: %w", err)
	}
	log.Printf("[lifecycle.Service] company %s: resolved %d duplicates (keep new=%t)", tenantID, n, isSaveNewContact)
	return n, nil
}

func (s *Service) saveContacts(ctx context.Context, tenantID string, keep []domain.ContactInput) (int64, error) {
	company, err := s.companies.Get(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	primaryKey := company.PrimaryKey()
	if primaryKey == "" {
		return 0, ErrPrimaryKeyMissing
	}

	active, err := s.contacts.ListActive(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list active contacts: %w", err)
	}
	byID := make(map[string]*domain.Contact, len(active))
	byKey := make(map[string][]string)
	for _, c := range active {
		byID[c.ID] = c
		if v, ok := c.Attributes.Get(primaryKey); ok && c.DeletionReason == nil {
			byKey[v.String()] = append(byKey[v.String()], c.ID)
		}
	}

	var deleted int64
	for _, in := range keep {
		current, ok := byID[in.ID]
		if !ok {
			return deleted, ErrAlreadyDeleted
		}
		value, ok := in.Attributes.Get(primaryKey)
		if !ok {
			value, ok = current.Attributes.Get(primaryKey)
		}

		if ok {
			var others []string
			for _, id := range byKey[value.String()] {
				if id != in.ID {
					others = append(others, id)
				}
			}
			if len(others) > 0 {
				n, err := s.contacts.DeleteByIDs(ctx, tenantID, others, domain.DeletionReason{Action: domain.DeletionDuplicationResolve})
				if err != nil {
					return deleted, fmt.Errorf("delete duplicates of %s: %w", in.ID, err)
				}
				deleted += n
			}
		}

		if err := s.contacts.UpdateAttributes(ctx, tenantID, in.ID, in.Attributes); err != nil {
			if errors.Is(err, contacts.ErrNotFound) {
				return deleted, ErrAlreadyDeleted
			}
			return deleted, fmt.Errorf("save contact %s: %w", in.ID, err)
		}
	}
	return deleted, nil
}

// UpdatePrimaryKey sets the tenant's primary key. Contacts suppressed under
// the old key are restored, links are cleared and deduplication on the new
// key is queued for userID.
func (s *Service) UpdatePrimaryKey(ctx context.Context, tenantID, userID, key string) error {
	if key == "" {
		return ErrPrimaryKeyMissing
	}
	tenantID, err := s.resetPrimaryKey(ctx, tenantID, &key)
	if err != nil {
		return err
	}
	if err := s.jobs.SubmitDedup(ctx, tenantID, userID, key); err != nil {
		return fmt.Errorf("submit dedup: %w", err)
	}
	return nil
}

// DeletePrimaryKey removes the tenant's primary key and restores the
// contacts deduplication suppressed under it.
func (s *Service) DeletePrimaryKey(ctx context.Context, tenantID string) error {
	_, err := s.resetPrimaryKey(ctx, tenantID, nil)
	return err
}

func (s *Service) resetPrimaryKey(ctx context.Context, tenantID string, key *string) (string, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return "", err
	}
	if err := s.checkGate(ctx, tenantID); err != nil {
		return "", err
	}
	company, err := s.companies.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}

	if old := company.PrimaryKey(); old != "" {
		n, err := s.contacts.RestoreByPrimaryKey(ctx, tenantID, old)
		if err != nil {
			return "", fmt.Errorf("restore contacts deduplicated on %q: %w", old, err)
		}
		if n > 0 {
			log.Printf("[lifecycle.Service] company %s: restored %d contacts deduplicated on %q", tenantID, n, old)
		}
	}
	if _, err := s.contacts.ClearDuplicateLinks(ctx, tenantID); err != nil {
		return "", fmt.Errorf("clear duplicate links: %w", err)
	}
	if err := s.companies.SetPrimaryKey(ctx, tenantID, key); err != nil {
		return "", fmt.Errorf("save primary key: %w", err)
	}
	return tenantID, nil
}

// Finalize locks in the tenant's contact set: it requires a primary key and
// no pending duplicates, charges overage for the ACTIVE contacts, cancels a
// pending revert-finalize request and sets the finalize flag.
func (s *Service) Finalize(ctx context.Context, tenantID string) error {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return err
	}
	company, err := s.companies.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if company.PrimaryKey() == "" {
		return ErrPrimaryKeyMissing
	}
	if err := s.checkNoDuplicates(ctx, tenantID); err != nil {
		return err
	}

	active, err := s.contacts.CountActive(ctx, tenantID, segmentation.All{})
	if err != nil {
		return fmt.Errorf("count active contacts: %w", err)
	}
	if err := s.billing.ChargeContactOverage(ctx, tenantID, company.BillingCustomerID, int(active), 0); err != nil {
		return fmt.Errorf("charge overage: %w", err)
	}
	if err := s.gate.CancelRevertFinalize(ctx, tenantID); err != nil {
		return fmt.Errorf("cancel revert request: %w", err)
	}
	if err := s.companies.SetContactFinalize(ctx, tenantID, true); err != nil {
		return fmt.Errorf("set finalize: %w", err)
	}
	log.Printf("[lifecycle.Service] company %s finalized with %d contacts", tenantID, active)
	return nil
}

// CreateContact adds a single contact. When its primary-key value is already
// taken, the new contact is linked to the canonical one as a duplicate.
func (s *Service) CreateContact(ctx context.Context, tenantID string, attrs domain.Attributes) (*domain.Contact, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return nil, err
	}
	company, err := s.companies.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c := &domain.Contact{TenantID: tenantID, Status: domain.ContactActive, Attributes: attrs}
	if key := company.PrimaryKey(); key != "" {
		if v, ok := attrs.Get(key); ok && v.String() != "" {
			canonical, err := s.canonical(ctx, tenantID, key, v.String())
			if err != nil {
				return nil, err
			}
			if canonical != "" {
				c.ExistingContactID = &canonical
			}
		}
	}
	if err := s.contacts.Insert(ctx, []*domain.Contact{c}); err != nil {
		return nil, fmt.Errorf("insert contact: %w", err)
	}
	return c, nil
}

// canonical returns the oldest unlinked ACTIVE contact with the key value.
func (s *Service) canonical(ctx context.Context, tenantID, key, value string) (string, error) {
	found, err := s.contacts.FindActive(ctx, tenantID, segmentation.In{Key: key, Values: []string{value}}, 0, 0)
	if err != nil {
		return "", fmt.Errorf("find canonical contact: %w", err)
	}
	for _, c := range found {
		if c.ExistingContactID == nil {
			return c.ID, nil
		}
	}
	return "", nil
}

// SubmitImport queues a CSV import for the tenant. Imports are refused while
// duplicates are pending.
func (s *Service) SubmitImport(ctx context.Context, tenantID, userID, objectKey string) error {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return err
	}
	if objectKey == "" {
		return ErrObjectKeyRequired
	}
	if err := s.checkNoDuplicates(ctx, tenantID); err != nil {
		return err
	}
	return s.jobs.SubmitImport(ctx, tenantID, userID, objectKey)
}

func (s *Service) checkGate(ctx context.Context, tenantID string) error {
	pending, err := s.gate.RevertFinalizePending(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("check revert request: %w", err)
	}
	if pending {
		return ErrRevertRequestPending
	}
	return nil
}

func (s *Service) checkNoDuplicates(ctx context.Context, tenantID string) error {
	dups, err := s.contacts.ListDuplicates(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("list duplicates: %w", err)
	}
	if len(dups) > 0 {
		return ErrDuplicatesPending
	}
	return nil
}

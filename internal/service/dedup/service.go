package dedup

import (
	"context"
	"fmt"
	"sort"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/pkg/logger"
	"github.com/ignite/audience-core/internal/service/contacts"
)

var log = logger.Named("dedup")

// Result reports a deduplication pass. Duplicates counts every non-canonical
// member of a group; Applied counts the writes made (zero on a dry run or
// when the tenant is already deduplicated).
type Result struct {
	Duplicates int `json:"duplicates"`
	Applied    int `json:"applied"`
}

// Plan computes the writes that deduplicate contacts on primaryKey. Contacts
// without a value for the key are left alone. Only changes are emitted, so
// planning an already deduplicated set yields no updates.
func Plan(active []*domain.Contact, primaryKey string) ([]domain.DedupUpdate, int) {
	groups := make(map[string][]*domain.Contact)
	var order []string
	for _, c := range active {
		v, ok := c.Attributes.Get(primaryKey)
		if !ok || v.String() == "" {
			continue
		}
		key := v.String()
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	var updates []domain.DedupUpdate
	duplicates := 0
	for _, key := range order {
		group := groups[key]
		// Ties on createdAt keep input order; which contact wins is unspecified.
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})

		canonical := group[0]
		if canonical.ExistingContactID != nil {
			updates = append(updates, domain.DedupUpdate{ContactID: canonical.ID, Action: domain.DedupUnlink})
		}
		if len(group) < 2 {
			continue
		}
		duplicates += len(group) - 1

		next := group[1]
		if next.ExistingContactID == nil || *next.ExistingContactID != canonical.ID {
			updates = append(updates, domain.DedupUpdate{
				ContactID:   next.ID,
				Action:      domain.DedupLink,
				CanonicalID: canonical.ID,
			})
		}
		for _, c := range group[2:] {
			updates = append(updates, domain.DedupUpdate{
				ContactID:  c.ID,
				Action:     domain.DedupSuppress,
				PrimaryKey: primaryKey,
			})
		}
	}
	return updates, duplicates
}

// Service runs deduplication against the contact store.
type Service struct {
	repo Repository
}

// NewService creates a dedup service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// MarkDuplicates deduplicates the tenant's ACTIVE contacts on primaryKey.
// On failure nothing is guaranteed about partial state; callers rerun.
func (s *Service) MarkDuplicates(ctx context.Context, tenantID, primaryKey string, dryRun bool) (Result, error) {
	tenantID, err := contacts.ParseTenantID(tenantID)
	if err != nil {
		return Result{}, err
	}
	if primaryKey == "" {
		return Result{}, ErrPrimaryKeyRequired
	}

	active, err := s.repo.ListActive(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("list active contacts: %w", err)
	}

	updates, duplicates := Plan(active, primaryKey)
	res := Result{Duplicates: duplicates}
	if dryRun || len(updates) == 0 {
		log.Info("dedup planned", "company_id", tenantID, "primary_key", primaryKey,
			"duplicates", duplicates, "dry_run", dryRun)
		return res, nil
	}

	if err := s.repo.ApplyDedup(ctx, tenantID, updates); err != nil {
		return Result{}, fmt.Errorf("apply dedup: %w", err)
	}
	res.Applied = len(updates)
	log.Info("dedup applied", "company_id", tenantID, "primary_key", primaryKey,
		"duplicates", duplicates, "updates", res.Applied)
	return res, nil
}

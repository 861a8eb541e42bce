package campaign

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// Service re-runs ongoing campaigns.
type Service struct {
	repo   Repository
	runner Runner
}

// NewService creates a campaign service backed by the given repository.
func NewService(repo Repository, runner Runner) *Service {
	return &Service{repo: repo, runner: runner}
}

// RerunOngoing runs every ACTIVE ongoing campaign of the tenant. A failing
// campaign does not stop the rest; all failures are returned joined.
// Returns the number of campaigns started.
func (s *Service) RerunOngoing(ctx context.Context, tenantID string) (int, error) {
	campaigns, err := s.repo.ListRerunnable(ctx, tenantID)
	if err != nil {
		return 0, fmt.Errorf("list campaigns: %w", err)
	}

	var (
		started int
		errs    []error
	)
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.runner.RunCampaign(ctx, c); err != nil {
			log.Printf("[campaign.Service] rerun %s failed: %v", c.ID, err)
			errs = append(errs, fmt.Errorf("campaign %s: %w", c.ID, err))
			continue
		}
		started++
	}
	if started > 0 {
		log.Printf("[campaign.Service] Company %s: re-ran %d campaigns", tenantID, started)
	}
	return started, errors.Join(errs...)
}

package lifecycle

import "context"

// Gate reports and clears the tenant's outstanding revert-finalize request.
type Gate interface {
	RevertFinalizePending(ctx context.Context, tenantID string) (bool, error)
	CancelRevertFinalize(ctx context.Context, tenantID string) error
}

// Charger bills contacts beyond the tenant's plan quota.
type Charger interface {
	ChargeContactOverage(ctx context.Context, tenantID, customerID string, imported, existing int) error
}

// JobSubmitter hands long-running work to the background worker.
type JobSubmitter interface {
	SubmitDedup(ctx context.Context, tenantID, userID, primaryKey string) error
	SubmitImport(ctx context.Context, tenantID, userID, objectKey string) error
}

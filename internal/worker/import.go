package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/notify"
	"github.com/ignite/audience-core/internal/segmentation"
	"github.com/ignite/audience-core/internal/service/contacts"
	"github.com/ignite/audience-core/internal/service/lifecycle"
	"github.com/ignite/audience-core/internal/storage"
)

// DefaultImportWays is the number of batches an import is split into.
const DefaultImportWays = 10

// ErrBillingFailed wraps an overage charge failure after the contacts were
// imported.
var ErrBillingFailed = errors.New("overage billing failed")

// CompanyReader loads tenant settings.
type CompanyReader interface {
	Get(ctx context.Context, id string) (*domain.Company, error)
}

// CampaignRerunner re-runs ongoing campaigns after an import.
type CampaignRerunner interface {
	RerunOngoing(ctx context.Context, tenantID string) (int, error)
}

// ImportResult summarises an import.
type ImportResult struct {
	Rows              int `json:"rows"`
	Imported          int `json:"imported"`
	Linked            int `json:"linked"`
	SkippedDuplicates int `json:"skippedDuplicates"`
	SkippedByCriteria int `json:"skippedByCriteria"`
}

// Importer loads an uploaded CSV into the tenant's contacts.
type Importer struct {
	contacts  contacts.Repository
	companies CompanyReader
	files     storage.Opener
	billing   lifecycle.Charger
	campaigns CampaignRerunner
	sink      notify.Sink
	ways      int
}

// NewImporter wires an importer. ways <= 0 uses DefaultImportWays.
func NewImporter(c contacts.Repository, companies CompanyReader, files storage.Opener,
	billing lifecycle.Charger, campaigns CampaignRerunner, sink notify.Sink, ways int) *Importer {
	if ways <= 0 {
		ways = DefaultImportWays
	}
	return &Importer{
		contacts:  c,
		companies: companies,
		files:     files,
		billing:   billing,
		campaigns: campaigns,
		sink:      sink,
		ways:      ways,
	}
}

// Run imports job.ObjectKey for job.TenantID. Batches that were inserted
// before a failing batch stay committed.
func (im *Importer) Run(ctx context.Context, job Job) (ImportResult, error) {
	var res ImportResult
	tenantID, err := contacts.ParseTenantID(job.TenantID)
	if err != nil {
		return res, err
	}
	company, err := im.companies.Get(ctx, tenantID)
	if err != nil {
		return res, err
	}

	dups, err := im.contacts.ListDuplicates(ctx, tenantID)
	if err != nil {
		return res, fmt.Errorf("list duplicates: %w", err)
	}
	if len(dups) > 0 {
		return res, lifecycle.ErrDuplicatesPending
	}
	existing, err := im.contacts.CountActive(ctx, tenantID, segmentation.All{})
	if err != nil {
		return res, fmt.Errorf("count contacts: %w", err)
	}

	rows, err := im.read(ctx, job.ObjectKey)
	if err != nil {
		return res, err
	}
	res.Rows = len(rows)

	batch, err := im.prepare(ctx, company, rows, &res)
	if err != nil {
		return res, err
	}

	imported, err := im.insert(ctx, job.UserID, batch)
	res.Imported = imported
	if err != nil {
		return res, err
	}
	log.Info("import finished", "company_id", tenantID, "rows", res.Rows, "imported", res.Imported,
		"linked", res.Linked, "skipped_duplicates", res.SkippedDuplicates, "skipped_by_criteria", res.SkippedByCriteria)

	billErr := im.billing.ChargeContactOverage(ctx, tenantID, company.BillingCustomerID, imported, int(existing))

	if _, err := im.campaigns.RerunOngoing(ctx, tenantID); err != nil {
		log.Warn("campaign rerun failed", "company_id", tenantID, "error", err)
	}

	if billErr != nil {
		return res, fmt.Errorf("%w: %v", ErrBillingFailed, billErr)
	}
	return res, nil
}

func (im *Importer) read(ctx context.Context, key string) ([]domain.Attributes, error) {
	rc, err := im.files.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close()
	return ReadContacts(rc)
}

// prepare drops in-file duplicates and rows outside the selection criteria,
// and links rows whose primary-key value is already taken to the canonical
// contact.
func (im *Importer) prepare(ctx context.Context, company *domain.Company, rows []domain.Attributes, res *ImportResult) ([]*domain.Contact, error) {
	key := company.PrimaryKey()
	canonical := map[string]string{}
	if key != "" {
		active, err := im.contacts.ListActive(ctx, company.ID)
		if err != nil {
			return nil, fmt.Errorf("list contacts: %w", err)
		}
		for _, c := range active {
			v, ok := c.Attributes.Get(key)
			if !ok || c.ExistingContactID != nil {
				continue
			}
			if _, taken := canonical[v.String()]; !taken {
				canonical[v.String()] = c.ID
			}
		}
	}

	seen := make(map[string]bool)
	batch := make([]*domain.Contact, 0, len(rows))
	for _, attrs := range rows {
		c := &domain.Contact{TenantID: company.ID, Status: domain.ContactActive, Attributes: attrs}
		if key != "" {
			if v, ok := attrs.Get(key); ok && v.String() != "" {
				if seen[v.String()] {
					res.SkippedDuplicates++
					continue
				}
				seen[v.String()] = true
				if id, ok := canonical[v.String()]; ok {
					c.ExistingContactID = &id
				}
			}
		}
		if !domain.MatchesAll(company.ContactSelectionCriteria, attrs) {
			res.SkippedByCriteria++
			continue
		}
		if c.ExistingContactID != nil {
			res.Linked++
		}
		batch = append(batch, c)
	}
	return batch, nil
}

// insert writes batch in im.ways concurrent chunks, reporting progress after
// each one. Returns the number of contacts committed.
func (im *Importer) insert(ctx context.Context, userID string, batch []*domain.Contact) (int, error) {
	total := len(batch)
	if total == 0 {
		im.emit(ctx, userID, 100)
		return 0, nil
	}

	size := (total + im.ways - 1) / im.ways
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.ways)

	var (
		mu   sync.Mutex
		done int
		last float64 = -1
	)
	for start := 0; start < total; start += size {
		chunk := batch[start:min(start+size, total)]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := im.contacts.Insert(gctx, chunk); err != nil {
				return fmt.Errorf("insert contacts: %w", err)
			}
			mu.Lock()
			defer mu.Unlock()
			done += len(chunk)
			if pct := float64(done) / float64(total) * 100; pct > last {
				last = pct
				im.emit(ctx, userID, pct)
			}
			return nil
		})
	}
	err := g.Wait()

	mu.Lock()
	defer mu.Unlock()
	return done, err
}

func (im *Importer) emit(ctx context.Context, userID string, pct float64) {
	if err := im.sink.Emit(ctx, userID, domain.Progress(domain.ChannelUploadProgress, pct)); err != nil {
		log.Warn("progress emit failed", "user_id", userID, "error", err)
	}
}

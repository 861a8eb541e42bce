package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/repository/memory"
	"github.com/ignite/audience-core/internal/service/campaign"
	"github.com/ignite/audience-core/internal/service/lifecycle"
	"github.com/ignite/audience-core/internal/storage"
)

const tenantID = "3f1e2d4c-5b6a-4789-8abc-def012345678"

type recordingSink struct {
	mu   sync.Mutex
	msgs []domain.ProgressMessage
}

func (s *recordingSink) Emit(_ context.Context, _ string, msg domain.ProgressMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) progress() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []float64
	for _, m := range s.msgs {
		if m.Progress != nil {
			out = append(out, *m.Progress)
		}
	}
	return out
}

func (s *recordingSink) errors() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.msgs {
		if m.Error != "" {
			out = append(out, m.Error)
		}
	}
	return out
}

type fakeCharger struct {
	mu    sync.Mutex
	calls [][2]int
	err   error
}

func (c *fakeCharger) ChargeContactOverage(_ context.Context, _, _ string, imported, existing int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, [2]int{imported, existing})
	return c.err
}

type recordingRunner struct {
	mu  sync.Mutex
	ran []string
}

func (r *recordingRunner) RunCampaign(_ context.Context, c *domain.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, c.ID)
	return nil
}

// failingContacts fails any insert whose chunk holds the email failOn.
type failingContacts struct {
	*memory.ContactRepo
	failOn string
}

func (f *failingContacts) Insert(ctx context.Context, batch []*domain.Contact) error {
	for _, c := range batch {
		if v, ok := c.Attributes.Get("email"); ok && v.String() == f.failOn {
			return errors.New("disk full")
		}
	}
	return f.ContactRepo.Insert(ctx, batch)
}

type importFixture struct {
	contacts *memory.ContactRepo
	sink     *recordingSink
	charger  *fakeCharger
	runner   *recordingRunner
	files    *storage.Local
}

func newImportFixture(t *testing.T) *importFixture {
	t.Helper()
	files, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	return &importFixture{
		contacts: memory.NewContactRepo(),
		sink:     &recordingSink{},
		charger:  &fakeCharger{},
		runner:   &recordingRunner{},
		files:    files,
	}
}

func (f *importFixture) importer(company *domain.Company, ways int) *Importer {
	campaigns := campaign.NewService(memory.NewCampaignRepo(
		&domain.Campaign{ID: "c1", CompanyID: company.ID, Status: domain.CampaignActive, IsOngoing: true},
		&domain.Campaign{ID: "c2", CompanyID: company.ID, Status: domain.CampaignPaused, IsOngoing: true},
	), f.runner)
	return NewImporter(f.contacts, memory.NewCompanyRepo(company), f.files, f.charger, campaigns, f.sink, ways)
}

func (f *importFixture) upload(t *testing.T, csv string) string {
	t.Helper()
	key := storage.UploadKey(tenantID, "contacts.csv")
	require.NoError(t, f.files.Put(context.Background(), key, strings.NewReader(csv)))
	return key
}

func (f *importFixture) seed(t *testing.T, cs ...*domain.Contact) {
	t.Helper()
	require.NoError(t, f.contacts.Insert(context.Background(), cs))
}

func emailKey() *string {
	k := "email"
	return &k
}

func findByEmail(t *testing.T, repo *memory.ContactRepo, email string) []*domain.Contact {
	t.Helper()
	var out []*domain.Contact
	for _, c := range repo.All(tenantID) {
		if v, ok := c.Attributes.Get("email"); ok && v.String() == email {
			out = append(out, c)
		}
	}
	return out
}

func TestImporter_Run(t *testing.T) {
	company := &domain.Company{
		ID:                 tenantID,
		ContactsPrimaryKey: emailKey(),
		ContactSelectionCriteria: []domain.SelectionCriterion{
			{FilterKey: "country", FilterValues: []string{"US", "CA"}},
		},
		BillingCustomerID: "cus_1",
	}
	f := newImportFixture(t)
	existing := &domain.Contact{
		TenantID:   tenantID,
		Attributes: domain.Attributes{"email": domain.String("a@x.com"), "country": domain.String("US")},
		CreatedAt:  time.Now().Add(-time.Hour),
	}
	f.seed(t, existing)

	key := f.upload(t, "email,country\n"+
		"a@x.com,US\n"+
		"b@x.com,US\n"+
		"b@x.com,CA\n"+
		"c@x.com,FR\n"+
		",US\n"+
		"d@x.com,CA\n")

	res, err := f.importer(company, 2).Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: key})
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Rows: 6, Imported: 4, Linked: 1, SkippedDuplicates: 1, SkippedByCriteria: 1}, res)

	active, err := f.contacts.ListActive(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Len(t, active, 5)

	dups := findByEmail(t, f.contacts, "a@x.com")
	require.Len(t, dups, 2)
	linked := dups[1]
	require.NotNil(t, linked.ExistingContactID)
	assert.Equal(t, existing.ID, *linked.ExistingContactID)
	assert.Len(t, findByEmail(t, f.contacts, "b@x.com"), 1)
	assert.Empty(t, findByEmail(t, f.contacts, "c@x.com"))

	progress := f.sink.progress()
	require.NotEmpty(t, progress)
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
	assert.Equal(t, 100.0, progress[len(progress)-1])
	assert.Empty(t, f.sink.errors())

	assert.Equal(t, [][2]int{{4, 1}}, f.charger.calls)
	assert.Equal(t, []string{"c1"}, f.runner.ran)
}

func TestImporter_RejectsPendingDuplicates(t *testing.T) {
	company := &domain.Company{ID: tenantID, ContactsPrimaryKey: emailKey()}
	f := newImportFixture(t)
	canon := &domain.Contact{TenantID: tenantID, Attributes: domain.Attributes{"email": domain.String("a@x.com")}}
	f.seed(t, canon)
	f.seed(t, &domain.Contact{TenantID: tenantID, ExistingContactID: &canon.ID, Attributes: domain.Attributes{"email": domain.String("a@x.com")}})

	key := f.upload(t, "email\nz@x.com\n")
	_, err := f.importer(company, 0).Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: key})
	assert.ErrorIs(t, err, lifecycle.ErrDuplicatesPending)
	assert.Len(t, f.contacts.All(tenantID), 2)
	assert.Empty(t, f.charger.calls)
	assert.Empty(t, f.runner.ran)
}

func TestImporter_NoPrimaryKeyKeepsRepeats(t *testing.T) {
	company := &domain.Company{ID: tenantID}
	f := newImportFixture(t)
	key := f.upload(t, "email\na@x.com\na@x.com\n")

	res, err := f.importer(company, 0).Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: key})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Zero(t, res.SkippedDuplicates)
	assert.Equal(t, [][2]int{{2, 0}}, f.charger.calls)
}

func TestImporter_PartialBatchesStayCommitted(t *testing.T) {
	company := &domain.Company{ID: tenantID}
	f := newImportFixture(t)
	var csv strings.Builder
	csv.WriteString("email\n")
	for _, e := range []string{"a", "b", "c", "d", "bad", "f", "g", "h", "i", "j"} {
		csv.WriteString(e + "@x.com\n")
	}
	key := f.upload(t, csv.String())

	im := f.importer(company, 10)
	im.contacts = &failingContacts{ContactRepo: f.contacts, failOn: "bad@x.com"}

	res, err := im.Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: key})
	assert.ErrorContains(t, err, "disk full")
	assert.Less(t, res.Imported, 10)
	assert.Len(t, f.contacts.All(tenantID), res.Imported)
	assert.Empty(t, f.charger.calls)
	assert.Empty(t, f.runner.ran)
}

func TestImporter_BillingFailureIsReported(t *testing.T) {
	company := &domain.Company{ID: tenantID, BillingCustomerID: "cus_1"}
	f := newImportFixture(t)
	f.charger.err = errors.New("stripe down")
	key := f.upload(t, "email\na@x.com\n")

	res, err := f.importer(company, 0).Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: key})
	assert.ErrorIs(t, err, ErrBillingFailed)
	assert.ErrorContains(t, err, "stripe down")
	assert.Equal(t, 1, res.Imported)
	assert.Len(t, f.contacts.All(tenantID), 1)
	assert.Equal(t, []string{"c1"}, f.runner.ran)
}

func TestImporter_EmptyFileReportsDone(t *testing.T) {
	company := &domain.Company{ID: tenantID}
	f := newImportFixture(t)
	key := f.upload(t, "email\n\n")

	res, err := f.importer(company, 0).Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, UserID: "u1", ObjectKey: key})
	require.NoError(t, err)
	assert.Zero(t, res.Imported)
	assert.Equal(t, []float64{100}, f.sink.progress())
}

func TestImporter_Errors(t *testing.T) {
	company := &domain.Company{ID: tenantID}
	f := newImportFixture(t)
	im := f.importer(company, 0)

	_, err := im.Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, ObjectKey: "uploads/missing.csv"})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	key := f.upload(t, "email,email\n")
	_, err = im.Run(context.Background(), Job{Kind: JobImport, TenantID: tenantID, ObjectKey: key})
	assert.ErrorIs(t, err, ErrInvalidCSV)

	_, err = im.Run(context.Background(), Job{Kind: JobImport, TenantID: "nope", ObjectKey: key})
	assert.Error(t, err)
}

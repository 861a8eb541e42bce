package lifecycle_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-core/internal/domain"
	"github.com/ignite/audience-core/internal/repository/memory"
	"github.com/ignite/audience-core/internal/service/lifecycle"
)

const tenant = "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"

var t0 = time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)

type fakeGate struct {
	pending   bool
	cancelled int
}

func (g *fakeGate) RevertFinalizePending(context.Context, string) (bool, error) { return g.pending, nil }

func (g *fakeGate) CancelRevertFinalize(context.Context, string) error {
	g.pending = false
	g.cancelled++
	return nil
}

type charge struct {
	customer           string
	imported, existing int
}

type fakeCharger struct {
	mu      sync.Mutex
	charges []charge
	err     error
}

func (c *fakeCharger) ChargeContactOverage(_ context.Context, _, customer string, imported, existing int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.charges = append(c.charges, charge{customer, imported, existing})
	return nil
}

type fakeJobs struct {
	dedups  []string
	imports []string
}

func (j *fakeJobs) SubmitDedup(_ context.Context, _, _, key string) error {
	j.dedups = append(j.dedups, key)
	return nil
}

func (j *fakeJobs) SubmitImport(_ context.Context, _, _, key string) error {
	j.imports = append(j.imports, key)
	return nil
}

type fixture struct {
	svc       *lifecycle.Service
	contacts  *memory.ContactRepo
	companies *memory.CompanyRepo
	gate      *fakeGate
	billing   *fakeCharger
	jobs      *fakeJobs
}

func newFixture(t *testing.T, primaryKey string, seed ...*domain.Contact) *fixture {
	t.Helper()
	company := &domain.Company{ID: tenant, Name: "Acme", BillingCustomerID: "cus_123"}
	if primaryKey != "" {
		company.ContactsPrimaryKey = &primaryKey
	}
	f := &fixture{
		contacts:  memory.NewContactRepo(),
		companies: memory.NewCompanyRepo(company),
		gate:      &fakeGate{},
		billing:   &fakeCharger{},
		jobs:      &fakeJobs{},
	}
	require.NoError(t, f.contacts.Insert(context.Background(), seed))
	f.svc = lifecycle.NewService(f.contacts, f.companies, f.gate, f.billing, f.jobs)
	return f
}

func person(id, email, plan string, created time.Time) *domain.Contact {
	return &domain.Contact{
		ID:       id,
		TenantID: tenant,
		Status:   domain.ContactActive,
		Attributes: domain.Attributes{
			"email": domain.String(email),
			"plan":  domain.String(plan),
		},
		CreatedAt: created,
	}
}

func linked(c *domain.Contact, to string) *domain.Contact {
	c.ExistingContactID = &to
	return c
}

func (f *fixture) contact(t *testing.T, id string) *domain.Contact {
	t.Helper()
	c, ok := f.contacts.Get(id)
	require.True(t, ok, id)
	return c
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", person("a", "a@x.com", "pro", t0), person("b", "b@x.com", "pro", t0))

	n, err := f.svc.Delete(ctx, tenant, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	a := f.contact(t, "a")
	assert.Equal(t, domain.ContactDeleted, a.Status)
	assert.Equal(t, domain.DeletionManual, a.DeletionReason.Action)

	_, err = f.svc.Delete(ctx, tenant, []string{"a"})
	assert.ErrorIs(t, err, lifecycle.ErrAlreadyDeleted)

	n, err = f.svc.RestoreContacts(ctx, tenant, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Nil(t, f.contact(t, "a").DeletionReason)
}

func TestDelete_ClearsDuplicateLink(t *testing.T) {
	f := newFixture(t, "email",
		person("a", "a@x.com", "pro", t0),
		linked(person("b", "a@x.com", "pro", t0.Add(time.Hour)), "a"),
	)

	_, err := f.svc.Delete(context.Background(), tenant, []string{"b"})
	require.NoError(t, err)
	assert.Nil(t, f.contact(t, "b").ExistingContactID)
}

func TestDeleteAll_RequiresPrimaryUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", person("a", "a@x.com", "pro", t0), person("b", "b@x.com", "free", t0))

	_, err := f.svc.DeleteAll(ctx, tenant, domain.Actor{UserID: "u2", Role: domain.RoleMember})
	assert.ErrorIs(t, err, lifecycle.ErrForbidden)
	assert.True(t, f.contact(t, "a").IsActive())

	n, err := f.svc.DeleteAll(ctx, tenant, domain.Actor{UserID: "u1", Role: domain.RolePrimary})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestFilterDelete_KeepsMatchingContacts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "",
		person("pro", "a@x.com", "pro", t0),
		person("free", "b@x.com", "free", t0),
		person("trial", "c@x.com", "trial", t0),
	)
	criteria := []domain.SelectionCriterion{{FilterKey: "plan", FilterValues: []string{"pro", "trial"}}}

	n, err := f.svc.FilterDelete(ctx, tenant, criteria)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	free := f.contact(t, "free")
	assert.Equal(t, domain.ContactDeleted, free.Status)
	assert.Equal(t, domain.DeletionFilter, free.DeletionReason.Action)
	assert.Equal(t, criteria, free.DeletionReason.Filters)

	company, err := f.companies.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, criteria, company.ContactSelectionCriteria)
}

func TestFilterDelete_DoesNotTouchOtherDeletions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "", person("a", "a@x.com", "free", t0))
	_, err := f.svc.Delete(ctx, tenant, []string{"a"})
	require.NoError(t, err)

	n, err := f.svc.FilterDelete(ctx, tenant, []domain.SelectionCriterion{{FilterKey: "plan", FilterValues: []string{"pro"}}})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, domain.DeletionManual, f.contact(t, "a").DeletionReason.Action)
}

func TestFilterDelete_BlockedByRevertRequest(t *testing.T) {
	f := newFixture(t, "", person("a", "a@x.com", "free", t0))
	f.gate.pending = true

	_, err := f.svc.FilterDelete(context.Background(), tenant, []domain.SelectionCriterion{{FilterKey: "plan", FilterValues: []string{"pro"}}})
	assert.ErrorIs(t, err, lifecycle.ErrRevertRequestPending)
	assert.True(t, f.contact(t, "a").IsActive())
}

func TestRevertFilterDelete_OverlapAndAll(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "",
		person("a", "a@x.com", "free", t0),
		person("b", "b@x.com", "trial", t0),
	)
	_, err := f.svc.FilterDelete(ctx, tenant, []domain.SelectionCriterion{{FilterKey: "plan", FilterValues: []string{"pro"}}})
	require.NoError(t, err)

	n, err := f.svc.RevertFilterDelete(ctx, tenant, []domain.SelectionCriterion{{FilterKey: "country", FilterValues: []string{"pro"}}})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = f.svc.RevertFilterDelete(ctx, tenant, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	company, err := f.companies.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, company.ContactSelectionCriteria)
}

func TestProperty_FilterDeleteIsReversible(t *testing.T) {
	plans := []string{"free", "pro", "trial", "team"}
	properties := gopter.NewProperties(nil)

	properties.Property("revert with the same criteria restores exactly the deleted set", prop.ForAll(
		func(assigned []int, kept []int) bool {
			ctx := context.Background()
			var seed []*domain.Contact
			for i, p := range assigned {
				seed = append(seed, person(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d@x.com", i), plans[p], t0))
			}
			f := newFixture(t, "", seed...)

			var values []string
			for _, k := range kept {
				values = append(values, plans[k])
			}
			criteria := []domain.SelectionCriterion{{FilterKey: "plan", FilterValues: values}}

			deleted, err := f.svc.FilterDelete(ctx, tenant, criteria)
			if err != nil {
				return false
			}
			restored, err := f.svc.RevertFilterDelete(ctx, tenant, criteria)
			if err != nil || restored != deleted {
				return false
			}
			for _, c := range f.contacts.All(tenant) {
				if !c.IsActive() || c.DeletionReason != nil {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(0, 3)),
		gen.SliceOfN(2, gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}

func duplicatePair() []*domain.Contact {
	return []*domain.Contact{
		person("old", "a@x.com", "free", t0),
		linked(person("new", "a@x.com", "pro", t0.Add(time.Hour)), "old"),
		person("other", "b@x.com", "free", t0),
	}
}

func TestResolveDuplicates_KeepCanonical(t *testing.T) {
	f := newFixture(t, "email", duplicatePair()...)

	n, err := f.svc.ResolveDuplicates(context.Background(), tenant, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.True(t, f.contact(t, "old").IsActive())
	fresh := f.contact(t, "new")
	assert.Equal(t, domain.ContactDeleted, fresh.Status)
	assert.Equal(t, domain.DeletionDuplicationResolve, fresh.DeletionReason.Action)
}

func TestResolveDuplicates_KeepNew(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "email", duplicatePair()...)

	_, err := f.svc.ResolveDuplicates(ctx, tenant, true, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.ContactDeleted, f.contact(t, "old").Status)
	fresh := f.contact(t, "new")
	assert.True(t, fresh.IsActive())
	assert.Nil(t, fresh.ExistingContactID)

	dups, err := f.svc.ReadDuplicates(ctx, tenant)
	require.NoError(t, err)
	assert.Empty(t, dups)
}

func TestResolveDuplicates_SaveSuppliedContact(t *testing.T) {
	f := newFixture(t, "email", duplicatePair()...)

	n, err := f.svc.ResolveDuplicates(context.Background(), tenant, false, []domain.ContactInput{
		{ID: "new", Attributes: domain.Attributes{"plan": domain.String("team")}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, domain.DeletionDuplicationResolve, f.contact(t, "old").DeletionReason.Action)
	kept := f.contact(t, "new")
	assert.Nil(t, kept.ExistingContactID)
	assert.Equal(t, "team", kept.Attributes["plan"].String())
	assert.True(t, f.contact(t, "other").IsActive())
}

func TestResolveDuplicates_SaveRequiresPrimaryKey(t *testing.T) {
	f := newFixture(t, "", duplicatePair()...)

	_, err := f.svc.ResolveDuplicates(context.Background(), tenant, false, []domain.ContactInput{{ID: "new"}})
	assert.ErrorIs(t, err, lifecycle.ErrPrimaryKeyMissing)
}

func TestUpdatePrimaryKey_RestoresOldKeyAndQueuesDedup(t *testing.T) {
	ctx := context.Background()
	suppressed := person("s", "a@x.com", "free", t0.Add(2*time.Hour))
	suppressed.Status = domain.ContactDeleted
	suppressed.DeletionReason = &domain.DeletionReason{Action: domain.DeletionPrimaryKey, PrimaryKey: "email"}
	f := newFixture(t, "email", append(duplicatePair(), suppressed)...)

	require.NoError(t, f.svc.UpdatePrimaryKey(ctx, tenant, "u1", "plan"))

	assert.True(t, f.contact(t, "s").IsActive())
	assert.Nil(t, f.contact(t, "new").ExistingContactID)
	assert.Equal(t, []string{"plan"}, f.jobs.dedups)

	company, err := f.companies.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Equal(t, "plan", company.PrimaryKey())
}

func TestPrimaryKeyChangesBlockedByRevertRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "email")
	f.gate.pending = true

	assert.ErrorIs(t, f.svc.UpdatePrimaryKey(ctx, tenant, "u1", "plan"), lifecycle.ErrRevertRequestPending)
	assert.ErrorIs(t, f.svc.DeletePrimaryKey(ctx, tenant), lifecycle.ErrRevertRequestPending)
	assert.Empty(t, f.jobs.dedups)
}

func TestDeletePrimaryKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "email")

	require.NoError(t, f.svc.DeletePrimaryKey(ctx, tenant))
	company, err := f.companies.Get(ctx, tenant)
	require.NoError(t, err)
	assert.Nil(t, company.ContactsPrimaryKey)
	assert.Empty(t, f.jobs.dedups)
}

func TestFinalize_Gating(t *testing.T) {
	ctx := context.Background()

	noKey := newFixture(t, "", person("a", "a@x.com", "free", t0))
	assert.ErrorIs(t, noKey.svc.Finalize(ctx, tenant), lifecycle.ErrPrimaryKeyMissing)

	dups := newFixture(t, "email", duplicatePair()...)
	assert.ErrorIs(t, dups.svc.Finalize(ctx, tenant), lifecycle.ErrDuplicatesPending)
	assert.Empty(t, dups.billing.charges)
}

func TestFinalize_IgnoresDanglingLinks(t *testing.T) {
	f := newFixture(t, "email", linked(person("a", "a@x.com", "free", t0), "gone"))
	assert.NoError(t, f.svc.Finalize(context.Background(), tenant))
}

func TestFinalize_ChargesAndCancelsRevertRequest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "email", person("a", "a@x.com", "free", t0), person("b", "b@x.com", "free", t0))
	f.gate.pending = true

	require.NoError(t, f.svc.Finalize(ctx, tenant))
	assert.Equal(t, []charge{{customer: "cus_123", imported: 2}}, f.billing.charges)
	assert.Equal(t, 1, f.gate.cancelled)

	company, err := f.companies.Get(ctx, tenant)
	require.NoError(t, err)
	assert.True(t, company.IsContactFinalize)
}

func TestFinalize_BillingFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "email", person("a", "a@x.com", "free", t0))
	f.billing.err = errors.New("card declined")

	err := f.svc.Finalize(ctx, tenant)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "card declined")

	company, err := f.companies.Get(ctx, tenant)
	require.NoError(t, err)
	assert.False(t, company.IsContactFinalize)
}

func TestCreateContact_LinksToCanonical(t *testing.T) {
	f := newFixture(t, "email", duplicatePair()...)

	c, err := f.svc.CreateContact(context.Background(), tenant, domain.Attributes{"email": domain.String("a@x.com")})
	require.NoError(t, err)
	require.NotNil(t, c.ExistingContactID)
	assert.Equal(t, "old", *c.ExistingContactID)

	solo, err := f.svc.CreateContact(context.Background(), tenant, domain.Attributes{"email": domain.String("z@x.com")})
	require.NoError(t, err)
	assert.Nil(t, solo.ExistingContactID)
}

func TestSubmitImport(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, "email", duplicatePair()...)
	assert.ErrorIs(t, f.svc.SubmitImport(ctx, tenant, "u1", "uploads/a.csv"), lifecycle.ErrDuplicatesPending)

	clean := newFixture(t, "email", person("a", "a@x.com", "free", t0))
	assert.ErrorIs(t, clean.svc.SubmitImport(ctx, tenant, "u1", ""), lifecycle.ErrObjectKeyRequired)
	require.NoError(t, clean.svc.SubmitImport(ctx, tenant, "u1", "uploads/a.csv"))
	assert.Equal(t, []string{"uploads/a.csv"}, clean.jobs.imports)
}

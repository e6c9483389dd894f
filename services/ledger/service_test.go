package ledger

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arbiterlabs/arbiter/models"
	"github.com/arbiterlabs/arbiter/repositories"
	"github.com/arbiterlabs/arbiter/services"
)

// In-memory repositories backing the ledger under a controllable clock.

type fakeModelRepo struct {
	models map[string]*models.Model
}

func newFakeModelRepo() *fakeModelRepo {
	return &fakeModelRepo{models: make(map[string]*models.Model)}
}

func (r *fakeModelRepo) Upsert(_ context.Context, m *models.Model) error {
	if existing, ok := r.models[m.Name]; ok {
		// Configuration is overwritten; counters survive.
		updated := *m
		updated.SuccessfulTasks = existing.SuccessfulTasks
		updated.FailedTasks = existing.FailedTasks
		updated.CreatedAt = existing.CreatedAt
		r.models[m.Name] = &updated
		return nil
	}
	clone := *m
	r.models[m.Name] = &clone
	return nil
}

func (r *fakeModelRepo) GetByName(_ context.Context, name string) (*models.Model, error) {
	m, ok := r.models[name]
	if !ok {
		return nil, errors.New("model not found: " + name)
	}
	clone := *m
	return &clone, nil
}

func (r *fakeModelRepo) ListEnabled(_ context.Context) ([]*models.Model, error) {
	var result []*models.Model
	for _, m := range r.models {
		if m.Enabled {
			clone := *m
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Rank != result[j].Rank {
			return result[i].Rank < result[j].Rank
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func (r *fakeModelRepo) IncrementOutcome(_ context.Context, name string, success bool) error {
	m, ok := r.models[name]
	if !ok {
		return errors.New("model not found: " + name)
	}
	if success {
		m.SuccessfulTasks++
	} else {
		m.FailedTasks++
	}
	return nil
}

type fakeUsageRepo struct {
	events []models.UsageEvent
	err    error
}

func (r *fakeUsageRepo) Insert(_ context.Context, event *models.UsageEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeUsageRepo) SumSince(_ context.Context, model string, since time.Time) (int, int, error) {
	if r.err != nil {
		return 0, 0, r.err
	}
	var requests, tokens int
	for _, e := range r.events {
		if e.Model == model && !e.Timestamp.Before(since) {
			requests += e.Requests
			tokens += e.Tokens
		}
	}
	return requests, tokens, nil
}

func (r *fakeUsageRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []models.UsageEvent
	var deleted int64
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

type fakeOutcomeRepo struct {
	events []models.OutcomeEvent
	err    error
}

func (r *fakeOutcomeRepo) Insert(_ context.Context, event *models.OutcomeEvent) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, *event)
	return nil
}

func (r *fakeOutcomeRepo) CountSince(_ context.Context, model string, since time.Time) (int, int, error) {
	var total, failed int
	for _, e := range r.events {
		if e.Model == model && !e.Timestamp.Before(since) {
			total++
			if !e.Success {
				failed++
			}
		}
	}
	return total, failed, nil
}

func (r *fakeOutcomeRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []models.OutcomeEvent
	var deleted int64
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return deleted, nil
}

// fakeTxManager runs the function directly; commit/rollback semantics are
// covered by the postgres transaction tests.
type fakeTxManager struct {
	failOn error
}

func (m *fakeTxManager) Begin(ctx context.Context) (repositories.Transaction, error) {
	return nil, errors.New("not used in tests")
}

func (m *fakeTxManager) InTransaction(ctx context.Context, fn func(ctx context.Context, tx repositories.Transaction) error) error {
	if m.failOn != nil {
		return m.failOn
	}
	return fn(ctx, nil)
}

type fixture struct {
	service  *Service
	modelsR  *fakeModelRepo
	usageR   *fakeUsageRepo
	outcomes *fakeOutcomeRepo
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		modelsR:  newFakeModelRepo(),
		usageR:   &fakeUsageRepo{},
		outcomes: &fakeOutcomeRepo{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	repos := &repositories.Repositories{
		TxManager: &fakeTxManager{},
		Models:    f.modelsR,
		Usage:     f.usageR,
		Outcomes:  f.outcomes,
	}

	f.service = NewService(repos, zap.NewNop())
	f.service.now = func() time.Time { return f.now }

	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func testModel(name string) models.Model {
	return models.Model{
		Name:       name,
		Provider:   "openai",
		Rank:       1,
		Enabled:    true,
		RPMAllowed: 10,
		TPMTotal:   10000,
		RPDTotal:   100,
		TPDTotal:   100000,
	}
}

func TestService_UpsertModels(t *testing.T) {
	ctx := context.Background()

	t.Run("seeds the catalog", func(t *testing.T) {
		f := newFixture(t)

		err := f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o"), testModel("gpt-4o-mini")})
		require.NoError(t, err)

		m, err := f.service.GetModel(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, "openai", m.Provider)
	})

	t.Run("re-seeding preserves history", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))
		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 100, ""))

		// Same catalog applied again with a new rank
		updated := testModel("gpt-4o")
		updated.Rank = 5
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{updated}))

		m, err := f.service.GetModel(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, 5, m.Rank)
		assert.Equal(t, 1, m.SuccessfulTasks, "counters must survive re-seeding")
	})

	t.Run("rejects negative quota ceilings", func(t *testing.T) {
		f := newFixture(t)

		bad := testModel("broken")
		bad.TPMTotal = -1

		err := f.service.UpsertModels(ctx, []models.Model{bad})
		assert.ErrorIs(t, err, services.ErrInvalidInput)
	})
}

func TestService_GetUsage_SlidingWindows(t *testing.T) {
	ctx := context.Background()

	t.Run("usage leaves the minute window as time passes", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		require.NoError(t, f.service.RecordUsage(ctx, "gpt-4o", 1, 500))

		usage, err := f.service.GetUsage(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, 1, usage.RequestsLastMinute)
		assert.Equal(t, 500, usage.TokensLastMinute)

		// 61 seconds later the event has left the minute window but not the day window
		f.advance(61 * time.Second)

		usage, err = f.service.GetUsage(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Zero(t, usage.RequestsLastMinute)
		assert.Zero(t, usage.TokensLastMinute)
		assert.Equal(t, 1, usage.RequestsToday)
		assert.Equal(t, 500, usage.TokensToday)

		// past the day window everything is gone
		f.advance(24 * time.Hour)

		usage, err = f.service.GetUsage(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Zero(t, usage.RequestsToday)
		assert.Zero(t, usage.TokensToday)
	})

	t.Run("usage accumulates inside the window", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		require.NoError(t, f.service.RecordUsage(ctx, "gpt-4o", 1, 300))
		f.advance(20 * time.Second)
		require.NoError(t, f.service.RecordUsage(ctx, "gpt-4o", 1, 200))

		usage, err := f.service.GetUsage(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, 2, usage.RequestsLastMinute)
		assert.Equal(t, 500, usage.TokensLastMinute)
	})
}

func TestService_HasCapacity(t *testing.T) {
	ctx := context.Background()

	t.Run("headroom on all four quotas", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		ok, err := f.service.HasCapacity(ctx, "gpt-4o", 1000)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("minute quota exhausted", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		for i := 0; i < 10; i++ {
			require.NoError(t, f.service.RecordUsage(ctx, "gpt-4o", 1, 10))
		}

		ok, err := f.service.HasCapacity(ctx, "gpt-4o", 10)
		require.NoError(t, err)
		assert.False(t, ok)

		// capacity returns once the events age out of the minute window
		f.advance(61 * time.Second)
		ok, err = f.service.HasCapacity(ctx, "gpt-4o", 10)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("unknown model", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.HasCapacity(ctx, "ghost", 10)
		assert.ErrorIs(t, err, services.ErrModelNotFound)
	})
}

func TestService_ListAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("filters models without token headroom", func(t *testing.T) {
		f := newFixture(t)

		big := testModel("big")
		big.Rank = 1
		small := testModel("small")
		small.Rank = 2
		small.TPMTotal = 100

		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{big, small}))

		available, err := f.service.ListAvailable(ctx, 500)
		require.NoError(t, err)
		require.Len(t, available, 1)
		assert.Equal(t, "big", available[0].Name)
	})

	t.Run("excludes disabled models", func(t *testing.T) {
		f := newFixture(t)

		off := testModel("off")
		off.Enabled = false
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("on"), off}))

		available, err := f.service.ListAvailable(ctx, 10)
		require.NoError(t, err)
		require.Len(t, available, 1)
		assert.Equal(t, "on", available[0].Name)
	})

	t.Run("orders by rank ascending", func(t *testing.T) {
		f := newFixture(t)

		first := testModel("alpha")
		first.Rank = 2
		second := testModel("beta")
		second.Rank = 1
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{first, second}))

		available, err := f.service.ListAvailable(ctx, 10)
		require.NoError(t, err)
		require.Len(t, available, 2)
		assert.Equal(t, "beta", available[0].Name)
		assert.Equal(t, "alpha", available[1].Name)
	})
}

func TestService_RecordOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("appends event and bumps counter together", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 1200, ""))
		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", false, 0, "provider timed out"))

		m, err := f.service.GetModel(ctx, "gpt-4o")
		require.NoError(t, err)
		assert.Equal(t, 1, m.SuccessfulTasks)
		assert.Equal(t, 1, m.FailedTasks)

		require.Len(t, f.outcomes.events, 2)
		assert.Nil(t, f.outcomes.events[0].ErrorMessage)
		require.NotNil(t, f.outcomes.events[1].ErrorMessage)
		assert.Equal(t, "provider timed out", *f.outcomes.events[1].ErrorMessage)
	})

	t.Run("transaction failure surfaces", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		repos := &repositories.Repositories{
			TxManager: &fakeTxManager{failOn: errors.New("deadlock detected")},
			Models:    f.modelsR,
			Usage:     f.usageR,
			Outcomes:  f.outcomes,
		}
		svc := NewService(repos, zap.NewNop())

		err := svc.RecordOutcome(ctx, "gpt-4o", "general", true, 100, "")
		assert.Error(t, err)
	})
}

func TestService_GetFailureRate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty window is zero, not an error", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		rate, err := f.service.GetFailureRate(ctx, "gpt-4o", 10*time.Minute)
		require.NoError(t, err)
		assert.Zero(t, rate)
	})

	t.Run("rate over the window", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", false, 0, "boom"))
		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 100, ""))
		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 100, ""))
		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 100, ""))

		rate, err := f.service.GetFailureRate(ctx, "gpt-4o", 10*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 25.0, rate)
	})

	t.Run("old failures age out of the window", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", false, 0, "boom"))
		f.advance(11 * time.Minute)
		require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 100, ""))

		rate, err := f.service.GetFailureRate(ctx, "gpt-4o", 10*time.Minute)
		require.NoError(t, err)
		assert.Zero(t, rate)
	})
}

func TestService_PruneExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.service.UpsertModels(ctx, []models.Model{testModel("gpt-4o")}))

	require.NoError(t, f.service.RecordUsage(ctx, "gpt-4o", 1, 100))
	require.NoError(t, f.service.RecordOutcome(ctx, "gpt-4o", "general", true, 100, ""))

	// Usage retention is 24h, outcome retention is 7d: after 25h only the
	// usage event is prunable.
	f.advance(25 * time.Hour)
	require.NoError(t, f.service.PruneExpired(ctx))
	assert.Empty(t, f.usageR.events)
	assert.Len(t, f.outcomes.events, 1)

	// Past the outcome retention horizon everything goes.
	f.advance(7 * 24 * time.Hour)
	require.NoError(t, f.service.PruneExpired(ctx))
	assert.Empty(t, f.outcomes.events)
}

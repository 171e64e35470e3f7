package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/repositories"
	"github.com/upb/tenant-rules-admin/services"
	"go.uber.org/zap"
)

func newRule(tenantID, id, name string, priority int) *models.TenantRule {
	return &models.TenantRule{
		ID:            id,
		TenantID:      tenantID,
		SchemaVersion: models.SchemaVersion,
		Name:          name,
		Priority:      priority,
		Enabled:       true,
		Version:       1,
		Conditions: models.NewConditions(models.HardBlockCondition{
			Keywords: []string{"secret"},
		}),
	}
}

func TestStoreListOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(zap.NewNop())

	require.NoError(t, s.Create(ctx, newRule("t1", "a", "A", 20)))
	require.NoError(t, s.Create(ctx, newRule("t1", "b", "B", 10)))
	require.NoError(t, s.Create(ctx, newRule("t1", "c", "C", 10)))
	require.NoError(t, s.Create(ctx, newRule("t2", "d", "D", 0)))

	rules, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "b", rules[0].ID)
	assert.Equal(t, "c", rules[1].ID)
	assert.Equal(t, "a", rules[2].ID)

	empty, err := s.List(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStoreTenantScoping(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Create(ctx, newRule("t1", "a", "A", 0)))

	_, err := s.GetByID(ctx, "t2", "a")
	assert.True(t, services.IsNotFoundError(err))

	got, err := s.GetByID(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)

	err = s.Create(ctx, newRule("t1", "a", "dup", 0))
	assert.Error(t, err)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	r := newRule("t1", "a", "A", 0)
	require.NoError(t, s.Create(ctx, r))

	r.Name = "mutated"
	got, err := s.GetByID(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)

	got.Tags = append(got.Tags, "x")
	again, err := s.GetByID(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Empty(t, again.Tags)
}

func TestStoreGetByName(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Create(ctx, newRule("t1", "a", "Block secrets", 0)))

	got, err := s.GetByName(ctx, "t1", "Block secrets")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)

	_, err = s.GetByName(ctx, "t1", "block secrets")
	assert.True(t, services.IsNotFoundError(err))
}

func TestStoreUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Create(ctx, newRule("t1", "a", "A", 0)))

	r, err := s.GetByID(ctx, "t1", "a")
	require.NoError(t, err)
	r.Version = 2
	require.NoError(t, s.Update(ctx, r))

	got, err := s.GetByID(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)

	require.NoError(t, s.Delete(ctx, "t1", "a"))
	assert.True(t, services.IsNotFoundError(s.Delete(ctx, "t1", "a")))
	assert.True(t, services.IsNotFoundError(s.Update(ctx, r)))
}

func TestStoreVersions(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	r := newRule("t1", "a", "A", 0)
	require.NoError(t, s.Create(ctx, r))

	for v := 1; v <= 3; v++ {
		snap := r.Clone()
		snap.Version = v
		require.NoError(t, s.AppendVersion(ctx, "t1", &models.RuleVersion{
			Version:   v,
			RuleID:    "a",
			Snapshot:  snap,
			ChangedBy: "tester",
			ChangedAt: time.Now(),
		}))
	}

	versions, err := s.ListVersions(ctx, "t1", "a")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Version)
	assert.Equal(t, 1, versions[2].Version)

	err = s.AppendVersion(ctx, "t1", &models.RuleVersion{Version: 1, RuleID: "missing"})
	assert.True(t, services.IsNotFoundError(err))

	require.NoError(t, s.Delete(ctx, "t1", "a"))
	_, err = s.ListVersions(ctx, "t1", "a")
	assert.True(t, services.IsNotFoundError(err))
}

func TestStoreTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	require.NoError(t, s.Create(ctx, newRule("t1", "a", "A", 0)))

	boom := errors.New("boom")
	err := s.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		r, err := s.GetByID(ctx, "t1", "a")
		if err != nil {
			return err
		}
		r.Name = "changed"
		if err := s.Update(ctx, r); err != nil {
			return err
		}
		if err := s.Create(ctx, newRule("t1", "b", "B", 0)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetByID(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Name)

	_, err = s.GetByID(ctx, "t1", "b")
	assert.True(t, services.IsNotFoundError(err))
}

func TestStoreTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	err := s.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		return s.Create(ctx, newRule("t1", "a", "A", 0))
	})
	require.NoError(t, err)

	_, err = s.GetByID(ctx, "t1", "a")
	assert.NoError(t, err)
}

func TestStoreNestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	boom := errors.New("boom")

	err := s.InTransaction(ctx, func(ctx context.Context, outer repositories.Transaction) error {
		inner := s.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			assert.Same(t, outer, tx)
			return s.Create(ctx, newRule("t1", "a", "A", 0))
		})
		require.NoError(t, inner)

		_, err := s.GetByID(ctx, "t1", "a")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetByID(ctx, "t1", "a")
	assert.True(t, services.IsNotFoundError(err))
}

func TestStoreTransactionPanicReleasesLock(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	assert.Panics(t, func() {
		_ = s.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			_ = s.Create(ctx, newRule("t1", "a", "A", 0))
			panic("boom")
		})
	})

	rules, err := s.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestStoreBeginHonoursContext(t *testing.T) {
	s := NewStore(nil)
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.List(ctx, "t1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Commit())
	require.NoError(t, tx.Rollback())

	_, err = s.List(context.Background(), "t1")
	assert.NoError(t, err)
}

func TestStorePing(t *testing.T) {
	s := NewStore(nil)
	require.NoError(t, s.Ping(context.Background()))

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, s.Ping(ctx))

	require.NoError(t, tx.Commit())
	assert.NoError(t, s.Ping(context.Background()))
}

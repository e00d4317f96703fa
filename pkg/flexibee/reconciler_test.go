package flexibee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/ledger"
)

func seedStore(t *testing.T, entries ...ledger.Entry) ledger.Store {
	t.Helper()
	store := ledger.NewMemoryStore()
	require.NoError(t, store.SaveEntries(entries))
	return store
}

func bySource(t *testing.T, store ledger.Store) map[string]ledger.Entry {
	t.Helper()
	entries, err := store.LoadEntries()
	require.NoError(t, err)
	m := make(map[string]ledger.Entry, len(entries))
	for _, e := range entries {
		m[e.Source] = e
	}
	return m
}

func TestApplyFullReplacesRemoteSubset(t *testing.T) {
	store := seedStore(t,
		ledger.Entry{ID: "m1", Source: ledger.SourceManual, Amount: 10},
		ledger.Entry{ID: "r1", Source: "flexibee:OLD-001", Amount: 100},
		ledger.Entry{ID: "r2", Source: "flexibee:OLD-002", Amount: 200},
	)

	written, err := NewReconciler(store, zap.NewNop()).Apply(ModeFull, []ledger.Entry{
		{Source: "flexibee:NEW-001", Amount: 300},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	m := bySource(t, store)
	require.Len(t, m, 2)
	assert.Equal(t, "m1", m[ledger.SourceManual].ID)
	assert.NotContains(t, m, "flexibee:OLD-001")

	fresh := m["flexibee:NEW-001"]
	assert.NotEmpty(t, fresh.ID)
	assert.False(t, fresh.CreatedAt.IsZero())
}

func TestApplyIncrementalUpsertPreservesIdentity(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := seedStore(t,
		ledger.Entry{ID: "keep-me", Source: "flexibee:FAV-001", Amount: 100, CreatedAt: created},
		ledger.Entry{ID: "m1", Source: ledger.SourceManual, Amount: 10},
	)

	written, err := NewReconciler(store, zap.NewNop()).Apply(ModeIncremental, []ledger.Entry{
		{Source: "flexibee:FAV-001", Amount: 150},
		{Source: "flexibee:FAV-002", Amount: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	m := bySource(t, store)
	require.Len(t, m, 3)

	updated := m["flexibee:FAV-001"]
	assert.Equal(t, "keep-me", updated.ID)
	assert.Equal(t, created, updated.CreatedAt)
	assert.Equal(t, 150.0, updated.Amount)

	added := m["flexibee:FAV-002"]
	assert.NotEmpty(t, added.ID)
	assert.NotEqual(t, "keep-me", added.ID)

	assert.Equal(t, "m1", m[ledger.SourceManual].ID)
}

func TestApplyDedupesLaterWins(t *testing.T) {
	store := ledger.NewMemoryStore()

	written, err := NewReconciler(store, zap.NewNop()).Apply(ModeFull, []ledger.Entry{
		{Source: "flexibee:FAV-001", Amount: 100},
		{Source: "flexibee:FAV-001", Amount: 175},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	m := bySource(t, store)
	assert.Equal(t, 175.0, m["flexibee:FAV-001"].Amount)
}

func TestApplyEmptyIncomingFullClearsRemote(t *testing.T) {
	store := seedStore(t,
		ledger.Entry{ID: "r1", Source: "flexibee:FAV-001", Amount: 100},
		ledger.Entry{ID: "m1", Source: ledger.SourceManual, Amount: 10},
	)

	written, err := NewReconciler(store, zap.NewNop()).Apply(ModeFull, nil)
	require.NoError(t, err)
	assert.Zero(t, written)

	entries, err := store.LoadEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "m1", entries[0].ID)
}

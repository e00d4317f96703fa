package flexibee

import (
	"time"

	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/ledger"
)

// Reconciler merges mapped remote entries into the ledger. Entries are
// joined on the remote key in Source; manually entered and imported
// entries are never touched.
type Reconciler struct {
	store  ledger.Store
	logger *zap.Logger
}

// NewReconciler returns a reconciler over the given ledger store.
func NewReconciler(store ledger.Store, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger.With(zap.String("component", "reconciler")),
	}
}

// Apply merges incoming entries per the mode and returns how many entries
// were written. Full mode replaces the whole remote-sourced subset;
// incremental mode upserts by remote key, preserving the local ID and
// creation time of updated entries.
func (r *Reconciler) Apply(mode Mode, incoming []ledger.Entry) (int, error) {
	existing, err := r.store.LoadEntries()
	if err != nil {
		return 0, err
	}

	incoming = dedupe(incoming)
	now := time.Now().UTC()

	var result []ledger.Entry
	var written int

	switch mode {
	case ModeFull:
		for _, e := range existing {
			if !e.HasSource(SourcePrefix) {
				result = append(result, e)
			}
		}
		preserved := len(result)
		for _, e := range incoming {
			e.ID = ledger.NewID()
			e.CreatedAt = now
			result = append(result, e)
		}
		written = len(incoming)
		r.logger.Info("full reconciliation",
			zap.Int("removed", len(existing)-preserved),
			zap.Int("written", written),
			zap.Int("preserved", preserved))

	case ModeIncremental:
		index := make(map[string]int, len(existing))
		for i, e := range existing {
			if e.HasSource(SourcePrefix) {
				index[e.Source] = i
			}
		}
		result = existing
		var updated, created int
		for _, e := range incoming {
			if i, ok := index[e.Source]; ok {
				e.ID = result[i].ID
				e.CreatedAt = result[i].CreatedAt
				result[i] = e
				updated++
			} else {
				e.ID = ledger.NewID()
				e.CreatedAt = now
				result = append(result, e)
				created++
			}
		}
		written = updated + created
		r.logger.Info("incremental reconciliation",
			zap.Int("updated", updated),
			zap.Int("created", created))
	}

	if err := r.store.SaveEntries(result); err != nil {
		return 0, err
	}
	return written, nil
}

// dedupe keeps the last occurrence per remote key, so a record that moved
// between pages during the fetch wins with its freshest version.
func dedupe(entries []ledger.Entry) []ledger.Entry {
	seen := make(map[string]int, len(entries))
	out := entries[:0]
	for _, e := range entries {
		if i, ok := seen[e.Source]; ok {
			out[i] = e
			continue
		}
		seen[e.Source] = len(out)
		out = append(out, e)
	}
	return out
}

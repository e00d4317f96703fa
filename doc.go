// Package ledgersync synchronizes a local financial-transaction ledger with
// invoice records held in an ABRA FlexiBee accounting server, reachable only
// over an unreliable, rate-limited HTTP API.
//
// The engine reconciles two invoice directions (issued invoices become income
// entries, received invoices become expense entries) into a flat local ledger
// keyed by a stable remote key of the form "flexibee:<code>". Runs are either
// full (replace the whole remote-tagged subset of the ledger) or incremental
// (upsert only records changed since the lastSync watermark).
//
// # Architecture
//
// The packages layer leaf-first:
//
//   - pkg/vault: credential encryption at rest (age X25519, local key file)
//   - pkg/clients: sliding-window rate limiter, adaptive inter-request
//     pacing, and the retry executor with exponential backoff
//   - pkg/dates: best-effort normalization of FlexiBee date encodings
//   - pkg/ledger: the ledger entry model and stores (SQLite, in-memory)
//   - pkg/config: operator settings and the persisted sync document
//   - pkg/flexibee: the FlexiBee HTTP client, paginated fetcher, field
//     mapper, reconciler, and the sync orchestrator (Connector)
//   - internal/scheduler: serialized periodic and manual sync triggers
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/cashflowhq/ledgersync/pkg/config"
//	    "github.com/cashflowhq/ledgersync/pkg/flexibee"
//	    "github.com/cashflowhq/ledgersync/pkg/ledger"
//	    "github.com/cashflowhq/ledgersync/pkg/vault"
//	)
//
//	settings := config.DefaultSettings()
//	v, _ := vault.Open(settings.KeyFile())
//	store := config.NewStore(settings.ConfigFile(), v)
//	entries, _ := ledger.OpenSQLite(settings.LedgerFile())
//
//	conn := flexibee.NewConnector(settings, store, entries)
//	result, err := conn.RunSync(context.Background())
//
// All HTTP traffic flows through one shared rate limiter and one adaptive
// delay, so concurrent fetches never exceed the server's request budget.
package ledgersync

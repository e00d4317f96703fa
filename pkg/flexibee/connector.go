package flexibee

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/clients"
	"github.com/cashflowhq/ledgersync/pkg/config"
	"github.com/cashflowhq/ledgersync/pkg/ledger"
	"github.com/cashflowhq/ledgersync/pkg/logger"
	"github.com/cashflowhq/ledgersync/pkg/metrics"
	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// importDateLayout is the wire format of the import_from_date setting.
const importDateLayout = "2006-01-02"

// SyncResult summarizes one completed run.
type SyncResult struct {
	Mode        Mode          `json:"mode"`
	Issued      int           `json:"issued"`
	Received    int           `json:"received"`
	TotalSynced int           `json:"total_synced"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
}

// Connector orchestrates synchronization runs: it loads the sync
// document, builds the throttled client stack, fetches both invoice
// resources, reconciles them into the ledger and advances the watermark.
type Connector struct {
	settings *config.Settings
	store    *config.Store
	entries  ledger.Store
	logger   *zap.Logger

	// newClient is swapped in tests to point at a local server.
	newClient func(cfg *config.SyncConfig, executor *clients.RetryExecutor) *Client
}

// NewConnector wires a connector from the settings, the sync-document
// store and the ledger store.
func NewConnector(settings *config.Settings, store *config.Store, entries ledger.Store) *Connector {
	c := &Connector{
		settings: settings,
		store:    store,
		entries:  entries,
		logger:   logger.Get().With(zap.String("component", "connector")),
	}
	c.newClient = func(cfg *config.SyncConfig, executor *clients.RetryExecutor) *Client {
		return NewClient(cfg.Host, cfg.Company, cfg.User, cfg.Password, executor, c.logger)
	}
	return c
}

// TestConnection checks the stored credentials against the server and
// returns the server version.
func (c *Connector) TestConnection(ctx context.Context) (string, error) {
	cfg, err := c.store.Load()
	if err != nil {
		return "", err
	}
	if !cfg.Configured() {
		return "", syncerrors.New(syncerrors.ErrorTypeConfig, "synchronization is not configured")
	}

	client := c.newClient(cfg, c.buildExecutor())
	return client.TestConnection(ctx)
}

// RunSync executes one synchronization run. The mode is chosen from the
// stored watermark and the ledger: a missing or unparseable watermark
// forces a full run, and so does a ledger holding no remote-sourced
// entries, so a wiped or restored ledger re-imports itself even though a
// watermark survived. The watermark is the run start time and is
// committed only after the ledger write succeeds.
func (c *Connector) RunSync(ctx context.Context) (*SyncResult, error) {
	cfg, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, syncerrors.New(syncerrors.ErrorTypeConfig, "synchronization is not configured")
	}
	if !cfg.Enabled {
		return nil, syncerrors.New(syncerrors.ErrorTypeConfig, "synchronization is disabled")
	}

	remoteCount, err := c.countRemoteEntries()
	if err != nil {
		return nil, err
	}
	mode := c.chooseMode(cfg, remoteCount)
	startedAt := time.Now()
	log := c.logger.With(zap.String("mode", string(mode)))
	log.Info("starting sync run",
		zap.String("company", cfg.Company),
		zap.String("last_sync", cfg.LastSync))

	executor := c.buildExecutor()
	client := c.newClient(cfg, executor)
	fetcher := NewFetcher(c.settings.Fetch.PageSize, c.settings.Fetch.MaxPages, c.logger)
	filter := c.buildFilter(mode, cfg)

	result := &SyncResult{Mode: mode, StartedAt: startedAt}

	var entries []ledger.Entry
	for _, resource := range []string{ResourceIssued, ResourceReceived} {
		invoices, err := fetcher.FetchAll(ctx, func(ctx context.Context, offset, limit int) ([]Invoice, error) {
			return client.FetchPage(ctx, resource, filter, offset, limit)
		})
		if err != nil {
			metrics.SyncRuns.WithLabelValues(string(mode), "error").Inc()
			return nil, fmt.Errorf("failed to fetch %s: %w", resource, err)
		}

		if resource == ResourceIssued {
			result.Issued = len(invoices)
		} else {
			result.Received = len(invoices)
		}
		entries = append(entries, MapInvoices(resource, invoices)...)
	}

	written, err := NewReconciler(c.entries, c.logger).Apply(mode, entries)
	if err != nil {
		metrics.SyncRuns.WithLabelValues(string(mode), "error").Inc()
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	result.TotalSynced = written

	// The watermark moves even when nothing changed, so quiet periods do
	// not re-scan the same window on every run.
	if err := c.store.SetLastSync(startedAt.Format(config.LastSyncLayout)); err != nil {
		metrics.SyncRuns.WithLabelValues(string(mode), "error").Inc()
		return nil, fmt.Errorf("failed to advance watermark: %w", err)
	}

	result.Duration = time.Since(startedAt)
	metrics.SyncRuns.WithLabelValues(string(mode), "success").Inc()
	metrics.RecordsSynced.WithLabelValues("issued").Add(float64(result.Issued))
	metrics.RecordsSynced.WithLabelValues("received").Add(float64(result.Received))

	log.Info("sync run complete",
		zap.Int("issued", result.Issued),
		zap.Int("received", result.Received),
		zap.Int("total_synced", result.TotalSynced),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// countRemoteEntries reports how many ledger entries carry a remote key.
func (c *Connector) countRemoteEntries() (int, error) {
	entries, err := c.entries.LoadEntries()
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range entries {
		if entries[i].HasSource(SourcePrefix) {
			count++
		}
	}
	return count, nil
}

// chooseMode picks incremental only when a valid watermark exists and the
// ledger still holds remote-sourced entries to update.
func (c *Connector) chooseMode(cfg *config.SyncConfig, remoteCount int) Mode {
	if cfg.LastSync == "" {
		return ModeFull
	}
	if remoteCount == 0 {
		c.logger.Warn("watermark present but no remote entries in ledger, forcing full sync",
			zap.String("last_sync", cfg.LastSync))
		return ModeFull
	}
	if _, err := time.Parse(config.LastSyncLayout, cfg.LastSync); err != nil {
		c.logger.Warn("invalid sync watermark, falling back to full sync",
			zap.String("last_sync", cfg.LastSync))
		return ModeFull
	}
	return ModeIncremental
}

// buildFilter returns the winstrom filter expression for the run, or an
// empty string for an unbounded full fetch. The import window starts one
// day before import_from_date because the server's gt comparison is
// exclusive.
func (c *Connector) buildFilter(mode Mode, cfg *config.SyncConfig) string {
	if mode == ModeIncremental {
		return fmt.Sprintf("lastUpdate gt '%s'", cfg.LastSync)
	}
	if cfg.ImportFromDate == "" {
		return ""
	}
	from, err := time.Parse(importDateLayout, cfg.ImportFromDate)
	if err != nil {
		c.logger.Warn("invalid import_from_date, fetching everything",
			zap.String("import_from_date", cfg.ImportFromDate))
		return ""
	}
	return fmt.Sprintf("datSplat gt '%s'", from.AddDate(0, 0, -1).Format(importDateLayout))
}

// buildExecutor assembles the rate limiter, adaptive pacing and retry
// stack from the settings.
func (c *Connector) buildExecutor() *clients.RetryExecutor {
	limiter := clients.NewRateLimiter(
		c.settings.RateLimit.MaxRequests,
		c.settings.RateLimit.Window())
	delay := clients.NewAdaptiveDelay(
		c.settings.Pacing.MinDelay(),
		c.settings.Pacing.MaxDelay(),
		c.settings.Pacing.IncreaseFactor,
		c.settings.Pacing.DecreaseFactor)
	return clients.NewRetryExecutor(limiter, delay,
		c.settings.Retry.MaxRetries,
		c.settings.Retry.BackoffFactor,
		c.settings.Retry.RequestTimeout())
}

package flexibee

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/config"
	"github.com/cashflowhq/ledgersync/pkg/ledger"
	"github.com/cashflowhq/ledgersync/pkg/vault"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func signBody(secret, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func testSettings(dir string) *config.Settings {
	s := config.DefaultSettings()
	s.DataDir = dir
	s.Pacing.MinDelayMs = 0
	s.Pacing.MaxDelayMs = 1
	s.Retry.MaxRetries = 1
	s.Retry.RequestTimeoutSeconds = 5
	s.Fetch.PageSize = 2
	return s
}

// fakeERP serves paginated invoice fixtures and records the filters it
// was queried with.
type fakeERP struct {
	issued   []Invoice
	received []Invoice
	status   int

	mu      sync.Mutex
	filters []string
}

func (f *fakeERP) seenFilters() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filters...)
}

func (f *fakeERP) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = nil
}

func (f *fakeERP) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}

		parts := strings.Split(strings.TrimSuffix(r.URL.Path, ".json"), "/")
		resource := parts[3]
		f.mu.Lock()
		if len(parts) > 4 {
			f.filters = append(f.filters, parts[4])
		} else {
			f.filters = append(f.filters, "")
		}
		f.mu.Unlock()

		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		source := f.issued
		if resource == ResourceReceived {
			source = f.received
		}
		end := start + limit
		if start > len(source) {
			start = len(source)
		}
		if end > len(source) {
			end = len(source)
		}

		w.Header().Set("Content-Type", "application/json")
		payload := map[string]any{"winstrom": map[string]any{resource: source[start:end]}}
		json.NewEncoder(w).Encode(payload)
	})
}

func newTestConnector(t *testing.T, serverURL string, cfg *config.SyncConfig) (*Connector, *config.Store, ledger.Store) {
	t.Helper()
	dir := t.TempDir()
	settings := testSettings(dir)

	v, err := vault.Open(settings.KeyFile())
	require.NoError(t, err)
	store := config.NewStore(settings.ConfigFile(), v)

	cfg.Host = serverURL
	if cfg.Company == "" {
		cfg.Company = "demo"
	}
	if cfg.User == "" {
		cfg.User = "winstrom"
	}
	cfg.Password = "secret"
	require.NoError(t, store.Save(cfg))

	entries := ledger.NewMemoryStore()
	return NewConnector(settings, store, entries), store, entries
}

func TestRunSyncFullThenIncremental(t *testing.T) {
	erp := &fakeERP{
		issued: []Invoice{
			{Code: "FAV-001", DueDate: "2024-05-11", Total: 100},
			{Code: "FAV-002", DueDate: "2024-05-12", Total: 200},
			{Code: "FAV-003", DueDate: "2024-05-13", Total: 300},
		},
		received: []Invoice{
			{Code: "FAP-001", DueDate: "2024-05-14", Total: 50},
		},
	}
	server := httptest.NewServer(erp.handler())
	defer server.Close()

	conn, store, entries := newTestConnector(t, server.URL, &config.SyncConfig{Enabled: true})

	result, err := conn.RunSync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ModeFull, result.Mode)
	assert.Equal(t, 3, result.Issued)
	assert.Equal(t, 1, result.Received)
	assert.Equal(t, 4, result.TotalSynced)

	// an unbounded full run carries no filter
	for _, f := range erp.seenFilters() {
		assert.Empty(t, f)
	}

	saved, err := entries.LoadEntries()
	require.NoError(t, err)
	require.Len(t, saved, 4)

	cfg, err := store.Load()
	require.NoError(t, err)
	require.NotEmpty(t, cfg.LastSync)
	_, err = time.Parse(config.LastSyncLayout, cfg.LastSync)
	require.NoError(t, err)

	// second run picks up the watermark and goes incremental
	erp.reset()
	result, err = conn.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeIncremental, result.Mode)
	for _, f := range erp.seenFilters() {
		assert.Equal(t, "(lastUpdate gt '"+cfg.LastSync+"')", f)
	}
}

func TestRunSyncFullWithImportFromDate(t *testing.T) {
	erp := &fakeERP{}
	server := httptest.NewServer(erp.handler())
	defer server.Close()

	conn, _, _ := newTestConnector(t, server.URL, &config.SyncConfig{
		Enabled:        true,
		ImportFromDate: "2024-05-11",
	})

	_, err := conn.RunSync(context.Background())
	require.NoError(t, err)

	// gt is exclusive, so the window opens one day earlier
	require.NotEmpty(t, erp.seenFilters())
	for _, f := range erp.seenFilters() {
		assert.Equal(t, "(datSplat gt '2024-05-10')", f)
	}
}

func TestRunSyncMapsDirections(t *testing.T) {
	erp := &fakeERP{
		issued:   []Invoice{{Code: "FAV-001", Total: 100, Company: "ACME", Paid: true}},
		received: []Invoice{{Code: "FAP-001", Total: 75, Company: "Supplier"}},
	}
	server := httptest.NewServer(erp.handler())
	defer server.Close()

	conn, _, entries := newTestConnector(t, server.URL, &config.SyncConfig{Enabled: true})

	_, err := conn.RunSync(context.Background())
	require.NoError(t, err)

	saved, err := entries.LoadEntries()
	require.NoError(t, err)
	require.Len(t, saved, 2)

	byKey := map[string]ledger.Entry{}
	for _, e := range saved {
		byKey[e.Source] = e
	}

	income := byKey["flexibee:FAV-001"]
	assert.Equal(t, ledger.DirectionIncome, income.Direction)
	assert.Equal(t, 100.0, income.Amount)
	assert.Equal(t, "ACME", income.Customer)
	assert.Equal(t, ledger.StatusPaid, income.PaymentStatus)

	expense := byKey["flexibee:FAP-001"]
	assert.Equal(t, ledger.DirectionExpense, expense.Direction)
	assert.Equal(t, -75.0, expense.Amount)
	assert.Equal(t, "Supplier", expense.Supplier)
}

func TestRunSyncFailureKeepsWatermark(t *testing.T) {
	erp := &fakeERP{status: http.StatusBadRequest}
	server := httptest.NewServer(erp.handler())
	defer server.Close()

	conn, store, _ := newTestConnector(t, server.URL, &config.SyncConfig{
		Enabled:  true,
		LastSync: "2024-05-11T10:00:00",
	})

	_, err := conn.RunSync(context.Background())
	require.Error(t, err)

	cfg, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "2024-05-11T10:00:00", cfg.LastSync)
}

func TestRunSyncRequiresConfiguration(t *testing.T) {
	dir := t.TempDir()
	settings := testSettings(dir)
	v, err := vault.Open(settings.KeyFile())
	require.NoError(t, err)
	store := config.NewStore(settings.ConfigFile(), v)

	conn := NewConnector(settings, store, ledger.NewMemoryStore())
	_, err = conn.RunSync(context.Background())
	assert.Error(t, err)
}

func TestRunSyncRequiresEnabled(t *testing.T) {
	server := httptest.NewServer((&fakeERP{}).handler())
	defer server.Close()

	conn, _, _ := newTestConnector(t, server.URL, &config.SyncConfig{Enabled: false})
	_, err := conn.RunSync(context.Background())
	assert.Error(t, err)
}

func TestRunSyncSelfHealsEmptyLedger(t *testing.T) {
	erp := &fakeERP{
		issued: []Invoice{{Code: "FAV-001", Total: 100}},
	}
	server := httptest.NewServer(erp.handler())
	defer server.Close()

	// a valid watermark survives, but the ledger lost its remote entries
	conn, _, entries := newTestConnector(t, server.URL, &config.SyncConfig{
		Enabled:  true,
		LastSync: "2024-05-11T10:00:00",
	})
	require.NoError(t, entries.SaveEntries([]ledger.Entry{
		{ID: "m1", Source: ledger.SourceManual, Amount: 10},
	}))

	result, err := conn.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeFull, result.Mode)

	saved, err := entries.LoadEntries()
	require.NoError(t, err)
	assert.Len(t, saved, 2)
}

func TestRunSyncIdempotent(t *testing.T) {
	erp := &fakeERP{
		issued:   []Invoice{{Code: "FAV-001", Total: 100, Company: "ACME"}},
		received: []Invoice{{Code: "FAP-001", Total: 50}},
	}
	server := httptest.NewServer(erp.handler())
	defer server.Close()

	conn, _, entries := newTestConnector(t, server.URL, &config.SyncConfig{Enabled: true})

	_, err := conn.RunSync(context.Background())
	require.NoError(t, err)
	first, err := entries.LoadEntries()
	require.NoError(t, err)

	_, err = conn.RunSync(context.Background())
	require.NoError(t, err)
	second, err := entries.LoadEntries()
	require.NoError(t, err)

	require.Len(t, second, len(first))
	firstByKey := map[string]ledger.Entry{}
	for _, e := range first {
		firstByKey[e.Source] = e
	}
	for _, e := range second {
		assert.Equal(t, firstByKey[e.Source], e)
	}
}

func TestChooseModeHealsBadWatermark(t *testing.T) {
	server := httptest.NewServer((&fakeERP{}).handler())
	defer server.Close()

	conn, _, _ := newTestConnector(t, server.URL, &config.SyncConfig{
		Enabled:  true,
		LastSync: "definitely-not-a-timestamp",
	})

	result, err := conn.RunSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ModeFull, result.Mode)
}

func TestConnectorTestConnection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"winstrom": {"@version": "1.0"}}`))
	}))
	defer server.Close()

	conn, _, _ := newTestConnector(t, server.URL, &config.SyncConfig{Enabled: true})

	version, err := conn.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", version)
}

func TestWebhookTriggersSync(t *testing.T) {
	var triggered bool
	handler := NewWebhookHandler("hook-secret", func() { triggered = true }, testLogger())

	body := `{"winstrom": {"changes": [{"@evidence": "faktura-vydana", "@operation": "update", "id": "123"}]}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set(signatureHeader, signBody("hook-secret", body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, triggered)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	var triggered bool
	handler := NewWebhookHandler("hook-secret", func() { triggered = true }, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	req.Header.Set(signatureHeader, "deadbeef")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, triggered)
}

func TestWebhookRejectsGet(t *testing.T) {
	handler := NewWebhookHandler("hook-secret", func() {}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegisterWebhookPending(t *testing.T) {
	status := RegisterWebhook("https://example.com/webhook")
	assert.Equal(t, "pending", status.Status)
	assert.Equal(t, "https://example.com/webhook", status.CallbackURL)
}

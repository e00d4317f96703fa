package flexibee

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cashflowhq/ledgersync/pkg/clients"
	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

func newTestExecutor() *clients.RetryExecutor {
	limiter := clients.NewRateLimiter(100, time.Minute)
	delay := clients.NewAdaptiveDelay(time.Millisecond, 2*time.Millisecond, 1.5, 0.9)
	return clients.NewRetryExecutor(limiter, delay, 1, 2, 5*time.Second)
}

func newTestClient(serverURL string) *Client {
	return NewClient(serverURL, "demo", "winstrom", "secret", newTestExecutor(), zap.NewNop())
}

func TestFetchPageRequestShape(t *testing.T) {
	var gotPath, gotDetail, gotLimit, gotStart string
	var gotUser, gotPass string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotDetail = r.URL.Query().Get("detail")
		gotLimit = r.URL.Query().Get("limit")
		gotStart = r.URL.Query().Get("start")
		gotUser, gotPass, _ = r.BasicAuth()
		w.Write([]byte(`{"winstrom": {"faktura-vydana": [{"code": "FAV-001", "sumCelkem": 100}]}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	records, err := client.FetchPage(context.Background(), ResourceIssued,
		"lastUpdate gt '2024-05-11T10:00:00'", 200, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "FAV-001", records[0].Code)

	assert.Equal(t, "/c/demo/faktura-vydana/(lastUpdate gt '2024-05-11T10:00:00').json", gotPath)
	assert.Equal(t, detailFields, gotDetail)
	assert.Equal(t, "100", gotLimit)
	assert.Equal(t, "200", gotStart)
	assert.Equal(t, "winstrom", gotUser)
	assert.Equal(t, "secret", gotPass)
}

func TestFetchPageNoFilter(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"winstrom": {}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), ResourceReceived, "", 0, 50)
	require.NoError(t, err)
	assert.Equal(t, "/c/demo/faktura-prijata.json", gotPath)
}

func TestTestConnectionReturnsVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"winstrom": {"@version": "1.0", "faktura-vydana": []}}`))
	}))
	defer server.Close()

	version, err := newTestClient(server.URL).TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1.0", version)
}

func TestBadCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).TestConnection(context.Background())
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeAuthentication))
	assert.Equal(t, http.StatusUnauthorized, syncerrors.HTTPStatus(err))
}

func TestServerErrorDetailFromWinstromMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"winstrom": {"success": "false", "message": "Firma neexistuje"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchPage(context.Background(), ResourceIssued, "", 0, 10)
	require.Error(t, err)
	assert.True(t, syncerrors.IsType(err, syncerrors.ErrorTypeHTTPClient))
	assert.Contains(t, err.Error(), "Firma neexistuje")
}

func TestClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	limiter := clients.NewRateLimiter(100, time.Minute)
	delay := clients.NewAdaptiveDelay(time.Millisecond, 2*time.Millisecond, 1.5, 0.9)
	executor := clients.NewRetryExecutor(limiter, delay, 3, 2, 5*time.Second)
	client := NewClient(server.URL, "demo", "winstrom", "secret", executor, zap.NewNop())

	_, err := client.FetchPage(context.Background(), ResourceIssued, "", 0, 10)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"demo.flexibee.eu", "https://demo.flexibee.eu"},
		{"demo.flexibee.eu/", "https://demo.flexibee.eu"},
		{"https://demo.flexibee.eu/", "https://demo.flexibee.eu"},
		{"http://localhost:5434", "http://localhost:5434"},
		{"  demo.flexibee.eu  ", "https://demo.flexibee.eu"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeHost(tt.in), tt.in)
	}
}

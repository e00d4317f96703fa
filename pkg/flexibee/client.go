package flexibee

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/cashflowhq/ledgersync/pkg/clients"
	"github.com/cashflowhq/ledgersync/pkg/metrics"
	"github.com/cashflowhq/ledgersync/pkg/syncerrors"
)

// detailFields limits every fetch to the columns the ledger mapping
// actually reads. Fetching full detail roughly triples response size.
const detailFields = "custom:id,code,datSplat,sumCelkem,firma,varSym,popis,lastUpdate,uhrazeno"

// Client is an authenticated HTTP client for one FlexiBee company. Every
// call goes through the retry executor, which also enforces rate limiting
// and adaptive pacing.
type Client struct {
	baseURL    string
	company    string
	user       string
	password   string
	executor   *clients.RetryExecutor
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a client for the given server and company. The host
// may omit the scheme; https is assumed.
func NewClient(host, company, user, password string, executor *clients.RetryExecutor, logger *zap.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		logger.Warn("failed to configure HTTP/2, falling back to HTTP/1.1", zap.Error(err))
	}

	return &Client{
		baseURL:  normalizeHost(host),
		company:  company,
		user:     user,
		password: password,
		executor: executor,
		httpClient: &http.Client{
			Transport: transport,
		},
		logger: logger.With(zap.String("component", "flexibee_client")),
	}
}

// FetchPage retrieves one page of invoice records for a resource. An
// empty filter fetches everything; otherwise filter is a winstrom
// expression like "lastUpdate gt '2024-05-11T10:00:00'".
func (c *Client) FetchPage(ctx context.Context, resource, filter string, offset, limit int) ([]Invoice, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("start", strconv.Itoa(offset))
	query.Set("detail", detailFields)

	envelope, err := c.getJSON(ctx, resource, filter, query)
	if err != nil {
		return nil, err
	}
	return envelope.Winstrom.Records(resource), nil
}

// TestConnection verifies the credentials and company against the server
// with a single minimal request and returns the server version string.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("limit", "1")

	envelope, err := c.getJSON(ctx, ResourceIssued, "", query)
	if err != nil {
		return "", err
	}
	return envelope.Winstrom.Version, nil
}

// getJSON performs one GET against the company endpoint through the retry
// executor and decodes the winstrom envelope.
func (c *Client) getJSON(ctx context.Context, resource, filter string, query url.Values) (*Envelope, error) {
	endpoint := c.endpointURL(resource, filter, query)

	var envelope *Envelope
	err := c.executor.Do(ctx, func(ctx context.Context) error {
		var err error
		envelope, err = c.doRequest(ctx, resource, endpoint)
		return err
	})
	if err != nil {
		return nil, err
	}
	return envelope, nil
}

func (c *Client) doRequest(ctx context.Context, resource, endpoint string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeInternal, "failed to build request")
	}
	req.SetBasicAuth(c.user, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ledgersync/1.0")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.HTTPRequests.WithLabelValues(resource, "error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	metrics.RequestLatency.WithLabelValues(resource).Observe(time.Since(start).Seconds())
	metrics.HTTPRequests.WithLabelValues(resource, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeConnection, "failed to read response body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resource, resp.StatusCode, body)
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, syncerrors.Wrap(err, syncerrors.ErrorTypeData, "failed to decode winstrom envelope")
	}
	return &envelope, nil
}

// statusError maps an HTTP failure to a structured error, pulling the
// server's winstrom message into the detail when one is present.
func (c *Client) statusError(resource string, status int, body []byte) error {
	detail := winstromMessage(body)

	switch status {
	case http.StatusUnauthorized:
		if detail == "" {
			detail = "invalid username or password"
		}
	case http.StatusForbidden:
		if detail == "" {
			detail = "access denied, check that the REST API is enabled for this account"
		}
	case http.StatusNotFound:
		if detail == "" {
			detail = fmt.Sprintf("company or resource %s not found", resource)
		}
	default:
		if detail == "" {
			detail = fmt.Sprintf("request for %s failed", resource)
		}
	}

	c.logger.Warn("API request failed",
		zap.String("resource", resource),
		zap.Int("status", status),
		zap.String("detail", detail))

	return syncerrors.FromStatus(status, detail)
}

// winstromMessage extracts the error message from a winstrom error body,
// tolerating bodies that are not JSON at all.
func winstromMessage(body []byte) string {
	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Winstrom.Message
}

// endpointURL builds /c/{company}/{resource}[/(filter)].json with the
// query string appended. The filter is a path segment in this API, not a
// query parameter.
func (c *Client) endpointURL(resource, filter string, query url.Values) string {
	var sb strings.Builder
	sb.WriteString(c.baseURL)
	sb.WriteString("/c/")
	sb.WriteString(url.PathEscape(c.company))
	sb.WriteString("/")
	sb.WriteString(resource)
	if filter != "" {
		sb.WriteString("/")
		sb.WriteString(url.PathEscape("(" + filter + ")"))
	}
	sb.WriteString(".json")
	if len(query) > 0 {
		sb.WriteString("?")
		sb.WriteString(query.Encode())
	}
	return sb.String()
}

// normalizeHost prefixes https when no scheme is given and trims any
// trailing slash.
func normalizeHost(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}
	return host
}

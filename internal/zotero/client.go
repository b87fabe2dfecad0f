// Package zotero fetches bibliographic records: a paginated Web API client
// with retry, backoff and rate limiting, and a local JSON file source for
// pre-fetched exports.
package zotero

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ch-sander/zotero-rdf-server/api/schemas"
	"github.com/ch-sander/zotero-rdf-server/internal/config"
	"github.com/ch-sander/zotero-rdf-server/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// retryableStatus is the transient status set worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client reads one library through the Zotero Web API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	cfg        config.ZoteroConfig
	lib        config.LibraryConfig
	// backoffBase is the first retry delay; doubled per attempt.
	backoffBase time.Duration
	log         *zap.Logger
}

var _ schemas.RecordSource = (*Client)(nil)

// NewClient builds an API client for one library. The connect and request
// timeouts and the page rate limit come from the shared Zotero settings.
func NewClient(cfg config.ZoteroConfig, lib config.LibraryConfig) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
	}
	limit := rate.Limit(cfg.RateLimit)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		httpClient:  &http.Client{Transport: transport, Timeout: cfg.RequestTimeout},
		limiter:     rate.NewLimiter(limit, 1),
		cfg:         cfg,
		lib:         lib,
		backoffBase: time.Second,
		log:         observability.GetLogger().Named("zotero").With(zap.String("library", lib.Name)),
	}
}

// WithHTTPClient swaps the underlying HTTP client; tests point it at a local
// server.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// baseURL is {api}/{type}/{id}, e.g. https://api.zotero.org/groups/12345.
func (c *Client) baseURL() string {
	return strings.TrimRight(c.lib.BaseAPIURL, "/") + "/" + c.lib.LibraryType + "/" + c.lib.LibraryID
}

// Items returns every item record in the library.
func (c *Client) Items(ctx context.Context) ([]schemas.Record, error) {
	return c.fetchPaginated(ctx, "items")
}

// Collections returns every collection record in the library.
func (c *Client) Collections(ctx context.Context) ([]schemas.Record, error) {
	return c.fetchPaginated(ctx, "collections")
}

// fetchPaginated walks the endpoint with the start cursor until an empty page.
func (c *Client) fetchPaginated(ctx context.Context, endpoint string) ([]schemas.Record, error) {
	var out []schemas.Record
	start := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter interrupted: %w", err)
		}
		page, err := c.fetchPage(ctx, endpoint, start)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			c.log.Debug("No more data", zap.String("endpoint", endpoint), zap.Int("start", start))
			break
		}
		out = append(out, page...)
		c.log.Info("Fetched page",
			zap.String("endpoint", endpoint),
			zap.Int("count", len(page)),
			zap.Int("start", start))
		start += c.cfg.PageLimit
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, endpoint string, start int) ([]schemas.Record, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	params.Set("start", strconv.Itoa(start))
	for k, v := range c.lib.Query {
		params.Set(k, v)
	}

	body, err := c.getWithRetry(ctx, c.baseURL()+"/"+endpoint, params)
	if err != nil {
		return nil, err
	}
	var page []schemas.Record
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode %s page at start=%d: %w", endpoint, start, err)
	}
	return page, nil
}

// FetchRDFExport downloads the library's items as a serialized RDF export and
// returns the raw bytes.
func (c *Client) FetchRDFExport(ctx context.Context) ([]byte, error) {
	params := url.Values{}
	params.Set("format", c.lib.RDFExportFormat)
	params.Set("limit", strconv.Itoa(c.cfg.PageLimit))
	for k, v := range c.lib.Query {
		params.Set(k, v)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter interrupted: %w", err)
	}
	return c.getWithRetry(ctx, c.baseURL()+"/items", params)
}

// getWithRetry performs one GET with the configured retry budget, retrying
// transport errors and the transient status set with exponential backoff.
func (c *Client) getWithRetry(ctx context.Context, rawURL string, params url.Values) ([]byte, error) {
	fullURL := rawURL + "?" + params.Encode()
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.backoffBase << (attempt - 1)
			c.log.Warn("Retrying request",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", backoff),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, retryable, err := c.get(ctx, fullURL)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("request to %s failed after %d retries: %w", rawURL, c.cfg.MaxRetries, lastErr)
}

func (c *Client) get(ctx context.Context, fullURL string) (body []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build request: %w", err)
	}
	if c.lib.APIKey != "" {
		req.Header.Set("Zotero-API-Key", c.lib.APIKey)
	}
	c.log.Debug("Sending API request", zap.String("url", fullURL))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %d from %s", resp.StatusCode, fullURL)
		return nil, retryableStatus[resp.StatusCode], err
	}
	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, false, nil
}

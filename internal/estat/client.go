// Package estat talks to the e-Stat statistical catalog: table search and
// selection, metadata and classification-map retrieval, and price lookup.
// All caches live for the process lifetime and are replaced whole-value,
// never mutated field by field.
package estat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hmurakami/dealcheck/internal/common"
	"github.com/hmurakami/dealcheck/internal/rules"
)

// ClassificationMaps is the per-table set of category-group-scoped
// name-to-code dictionaries.
type ClassificationMaps map[string]map[string]string

// Config carries the catalog credential and selection policy.
type Config struct {
	AppID             string
	BaseURL           string
	SearchPhrase      string
	ProbeKeywords     []string
	ScoreWeights      []rules.ScoreWeight
	ClassSearchOrder  []string
	RequestsPerSecond float64
}

// DefaultBaseURL is the public JSON endpoint of the catalog.
const DefaultBaseURL = "https://api.e-stat.go.jp/rest/3.0/app/json"

const (
	maxAttempts    = 3
	retryBaseDelay = time.Second

	// Metadata payloads can be several megabytes, so the overall request
	// timeout is much longer than the connect timeout.
	connectTimeout = 5 * time.Second
	requestTimeout = 90 * time.Second
)

// Client is the catalog client. It owns three caches: the selected table
// id, per-table metadata, and per-table classification maps.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
	cfg        Config

	retryBase time.Duration

	mu         sync.RWMutex
	tableID    string
	metaCache  map[string]*Metadata
	classCache map[string]ClassificationMaps
}

// NewClient creates a catalog client. The credential is checked per call,
// not here, so a client can be constructed before configuration is final.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(cfg.RequestsPerSecond)),
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		retryBase:  retryBaseDelay,
		metaCache:  make(map[string]*Metadata),
		classCache: make(map[string]ClassificationMaps),
	}
}

// ClearCache drops the selected table id and all per-table caches. The next
// call repopulates them from the upstream.
func (c *Client) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tableID = ""
	c.metaCache = make(map[string]*Metadata)
	c.classCache = make(map[string]ClassificationMaps)
}

// get performs one catalog call with the retry policy: up to three attempts
// on transport failure with linearly increasing backoff; an error status or
// a non-JSON body is final. The decoded document is written into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if c.cfg.AppID == "" {
		return fmt.Errorf("%w: catalog app id is not set", common.ErrMissingConfig)
	}

	query := url.Values{}
	query.Set("appId", c.cfg.AppID)
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.cfg.BaseURL, path, query.Encode())

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("catalog request failed: %w", err), Retryable: true}
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to read catalog response: %w", err), Retryable: true}
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return common.NewUpstreamError(common.ErrUpstreamHTTP,
				fmt.Sprintf("%s returned status %d", path, resp.StatusCode), nil)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return common.NewUpstreamError(common.ErrUpstreamFormat, path, err)
		}

		return nil
	}

	return common.WithRetry(ctx, operation, common.RetryOptions{
		MaxAttempts: maxAttempts,
		BaseDelay:   c.retryBase,
	})
}

package rmcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Storage endpoints, relative to the discovered storage host. Exact paths
// matter for compatibility.
const (
	docsEndpoint          = "/document-storage/json/2/docs"
	uploadRequestEndpoint = "/document-storage/json/2/upload/request"
	updateStatusEndpoint  = "/document-storage/json/2/upload/update-status"
	deleteEndpoint        = "/document-storage/json/2/delete"
)

// Timeouts. Blob transfers move file content and get a materially longer
// timeout than metadata round trips.
const (
	DefaultMetaTimeout = 30 * time.Second
	DefaultBlobTimeout = 5 * time.Minute
)

// TokenSource provides bearer tokens for storage requests. Defined at the
// consumer per Go convention "accept interfaces, return structs"; Session is
// the real implementation. Token may perform network I/O (a refresh), hence
// the context.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// ClientOptions tunes a Client. Zero values select defaults.
type ClientOptions struct {
	// HTTPClient serves metadata operations. Defaults to a client with
	// DefaultMetaTimeout.
	HTTPClient *http.Client

	// BlobClient serves content uploads and downloads. Defaults to a client
	// with DefaultBlobTimeout.
	BlobClient *http.Client

	// DiscoveryURL overrides the service-discovery endpoint (tests).
	DiscoveryURL string

	// FallbackHost overrides the hardcoded discovery fallback (tests).
	FallbackHost string

	// StorageHost pins the storage host, skipping discovery entirely.
	// Accepts a bare host ("storage.example.com") or a full base URL.
	StorageHost string
}

// Client executes item CRUD against the storage backend. It obtains a live
// token from its TokenSource before every network operation, caches the
// discovered storage host for its lifetime, and keeps an advisory item cache
// that every mutation invalidates. A Client is safe for concurrent use.
type Client struct {
	token      TokenSource
	httpClient *http.Client
	blobClient *http.Client
	logger     *slog.Logger

	discoveryURL string
	fallbackHost string
	pinnedHost   string

	// OnOrphan is invoked when the second phase of a two-phase create or
	// upload fails after the reservation succeeded, leaving an orphaned
	// identifier on the backend (the protocol has no un-reserve call).
	// Defaults to a log warning.
	OnOrphan func(id string, kind Kind)

	mu          sync.Mutex
	storageBase string

	cache *itemCache
}

// NewClient creates a storage client authenticated by token.
func NewClient(token TokenSource, logger *slog.Logger, opts ClientOptions) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		token:        token,
		httpClient:   opts.HTTPClient,
		blobClient:   opts.BlobClient,
		logger:       logger,
		discoveryURL: defaultDiscoveryURL,
		fallbackHost: DefaultStorageHost,
		pinnedHost:   opts.StorageHost,
		cache:        newItemCache(),
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: DefaultMetaTimeout}
	}

	if c.blobClient == nil {
		c.blobClient = &http.Client{Timeout: DefaultBlobTimeout}
	}

	if opts.DiscoveryURL != "" {
		c.discoveryURL = opts.DiscoveryURL
	}

	if opts.FallbackHost != "" {
		c.fallbackHost = opts.FallbackHost
	}

	c.OnOrphan = func(id string, kind Kind) {
		logger.Warn("orphaned reservation: metadata commit failed after identifier was reserved",
			slog.String("item_id", id),
			slog.String("kind", string(kind)),
		)
	}

	return c
}

// CacheGeneration exposes the item cache's generation counter so the
// invalidation contract is observable in tests and diagnostics.
func (c *Client) CacheGeneration() uint64 {
	return c.cache.generation()
}

// baseURL turns a host into a request base. A bare host gets https.
func baseURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}

	return "https://" + host
}

// storageURL resolves the storage base (discovering the host on first use)
// and appends the endpoint.
func (c *Client) storageURL(ctx context.Context, endpoint string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.storageBase == "" {
		if c.pinnedHost != "" {
			c.storageBase = baseURL(c.pinnedHost)
		} else {
			host, err := c.discoverHost(ctx)
			if err != nil {
				return "", err
			}

			c.storageBase = baseURL(host)
		}
	}

	return c.storageBase + endpoint, nil
}

// ResetHost clears the cached storage host; the next operation re-resolves.
func (c *Client) ResetHost() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storageBase = ""
}

// do executes one authenticated request against the storage backend.
// A non-nil body is JSON-encoded. The caller closes the response body.
// No retry: any network or protocol failure surfaces immediately.
func (c *Client) do(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	url, err := c.storageURL(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		data, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			return nil, fmt.Errorf("rmcloud: encoding request: %w", marshalErr)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("rmcloud: creating request: %w", err)
	}

	tok, err := c.token.Token(ctx)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+tok)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// readBody drains and returns a response body, capping nothing; storage
// metadata responses are small.
func readBody(resp *http.Response) []byte {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte("(failed to read response body)")
	}

	return data
}

// orphaned reports a reservation left behind by a failed second phase.
func (c *Client) orphaned(id string, kind Kind) {
	if c.OnOrphan != nil {
		c.OnOrphan(id, kind)
	}
}

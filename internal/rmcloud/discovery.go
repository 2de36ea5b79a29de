package rmcloud

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
)

// defaultDiscoveryURL locates the document-storage service. The lookup is
// unauthenticated.
const defaultDiscoveryURL = "https://service-manager-production-dot-remarkable-production.appspot.com" +
	"/service/json/1/document-storage?environment=production&apiVer=2"

// DefaultStorageHost is used whenever discovery fails. Discovery failure is
// never surfaced to callers; the fallback host is always usable.
const DefaultStorageHost = "document-storage-production-dot-remarkable-production.appspot.com"

// discoverHost resolves the storage backend's host via the service manager.
// Network errors, non-200 statuses, and non-OK status fields all fall back to
// the default host silently. Only a malformed body on an otherwise successful
// response is an error; that indicates a contract change, not an outage.
// Callers hold c.mu; the result is cached by storageURL.
func (c *Client) discoverHost(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.discoveryURL, nil)
	if err != nil {
		return "", apiError("discover", ErrDiscovery, 0, err.Error())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("service discovery unreachable, using default host",
			slog.String("error", err.Error()),
		)

		return c.fallbackHost, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("service discovery returned non-OK status, using default host",
			slog.Int("status", resp.StatusCode),
		)

		return c.fallbackHost, nil
	}

	var dr discoveryResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return "", apiError("discover", ErrDiscovery, resp.StatusCode, "decoding response: "+err.Error())
	}

	if dr.Status != "OK" {
		c.logger.Warn("service discovery reported failure, using default host",
			slog.String("status", dr.Status),
		)

		return c.fallbackHost, nil
	}

	c.logger.Debug("discovered storage host", slog.String("host", dr.Host))

	return dr.Host, nil
}

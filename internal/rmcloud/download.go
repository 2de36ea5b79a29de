package rmcloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// destFilePerms is the mode for downloaded document files.
const destFilePerms = 0o644

// DownloadDocument fetches a document's content and writes it to destPath,
// returning the written path. The content arrives as an archive; the first
// entry ending in the document payload extension is extracted, and when no
// such entry exists the retrieved bytes are persisted unmodified. A malformed
// archive is a download error.
func (c *Client) DownloadDocument(ctx context.Context, id, destPath string) (string, error) {
	item, err := c.GetItem(ctx, id, true)
	if err != nil {
		return "", err
	}

	if item.BlobURLGet == "" {
		return "", apiError("download", ErrDownload, 0, "no download URL for item "+id)
	}

	c.logger.Info("downloading document",
		slog.String("item_id", id),
		slog.String("dest", destPath),
	)

	data, err := c.getBlob(ctx, item.BlobURLGet)
	if err != nil {
		return "", err
	}

	payload, found, err := extractPayload(data, payloadExt)
	if err != nil {
		return "", apiError("download", ErrDownload, 0, err.Error())
	}

	if !found {
		// No payload entry; persist the retrieved bytes verbatim.
		c.logger.Warn("archive has no payload entry, saving raw content",
			slog.String("item_id", id),
		)

		payload = data
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("rmcloud: creating destination directory: %w", err)
	}

	if err := os.WriteFile(destPath, payload, destFilePerms); err != nil {
		return "", fmt.Errorf("rmcloud: writing %s: %w", destPath, err)
	}

	c.logger.Debug("download complete",
		slog.String("item_id", id),
		slog.Int("bytes", len(payload)),
	)

	return destPath, nil
}

// getBlob retrieves content from a signed download URL. The URL embeds its
// own auth, so no Authorization header is sent; it is never logged.
func (c *Client) getBlob(ctx context.Context, downloadURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, fmt.Errorf("rmcloud: creating blob download request: %w", err)
	}

	resp, err := c.blobClient.Do(req)
	if err != nil {
		return nil, apiError("download", ErrDownload, 0, "blob download: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("download", ErrDownload, resp.StatusCode, trimBody(readBody(resp)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apiError("download", ErrDownload, resp.StatusCode, "reading content: "+err.Error())
	}

	return data, nil
}

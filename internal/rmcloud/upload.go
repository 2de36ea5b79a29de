package rmcloud

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// UploadDocument uploads a PDF as a new document under parentID. name == ""
// defaults to the file's base name without extension. The source file is
// checked before any network call; a missing file fails with fs.ErrNotExist
// without touching the backend.
//
// Three steps: reserve a DOCUMENT identifier (obtaining the signed upload
// URL), PUT the packaged archive to that URL, then commit metadata. A failure
// after a successful reservation leaves an orphaned identifier; the orphan
// hook is invoked.
func (c *Client) UploadDocument(ctx context.Context, filePath, name, parentID string) (*Item, error) {
	if _, err := os.Stat(filePath); err != nil {
		return nil, fmt.Errorf("rmcloud: upload: %w", err)
	}

	if name == "" {
		base := filepath.Base(filePath)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	docID := uuid.NewString()

	c.logger.Info("uploading document",
		slog.String("doc_id", docID),
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	reservation, err := c.reserve(ctx, docID, KindDocument, "upload", ErrUpload)
	if err != nil {
		return nil, err
	}

	if reservation.BlobURLPut == "" {
		c.orphaned(docID, KindDocument)
		return nil, apiError("upload", ErrUpload, 0, "no upload URL in reservation")
	}

	archive, err := packDocument(filePath)
	if err != nil {
		c.orphaned(docID, KindDocument)
		return nil, err
	}

	if err := c.putBlob(ctx, reservation.BlobURLPut, archive); err != nil {
		c.orphaned(docID, KindDocument)
		return nil, err
	}

	result, err := c.commit(ctx, updateRequest{
		ID:             docID,
		Version:        1,
		Parent:         parentID,
		VissibleName:   name,
		Type:           KindDocument,
		ModifiedClient: nowTimestamp(),
	}, "upload", ErrUpload)
	if err != nil {
		c.orphaned(docID, KindDocument)
		return nil, err
	}

	c.cache.invalidate()

	item := result.toItem()

	c.logger.Debug("upload complete",
		slog.String("doc_id", docID),
		slog.Int("archive_bytes", len(archive)),
	)

	return &item, nil
}

// putBlob PUTs packaged bytes to a signed upload URL. The URL embeds its own
// auth, so no Authorization header is sent, and the backend requires that no
// Content-Type header be set. The URL itself is never logged.
func (c *Client) putBlob(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("rmcloud: creating blob upload request: %w", err)
	}

	resp, err := c.blobClient.Do(req)
	if err != nil {
		return apiError("upload", ErrUpload, 0, "blob upload: "+err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return apiError("upload", ErrUpload, resp.StatusCode, trimBody(readBody(resp)))
	}

	return nil
}

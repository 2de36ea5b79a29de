package rmcloud

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// payloadExt is the content extension documents are stored under.
const payloadExt = ".pdf"

// contentFileName is the metadata entry's name inside the archive.
const contentFileName = ".content"

// contentMetadata is the fixed-shape metadata record the backend requires in
// every uploaded archive. The key set must be preserved exactly for the
// backend to accept the upload.
type contentMetadata struct {
	ExtraMetadata  map[string]any `json:"extraMetadata"`
	FileType       string         `json:"fileType"`
	LastOpenedPage int            `json:"lastOpenedPage"`
	LineHeight     int            `json:"lineHeight"`
	Margins        int            `json:"margins"`
	PageCount      int            `json:"pageCount"`
	TextScale      int            `json:"textScale"`
	Transform      map[string]any `json:"transform"`
}

// defaultContentMetadata returns the minimal record for a fresh PDF upload.
func defaultContentMetadata() contentMetadata {
	return contentMetadata{
		ExtraMetadata: map[string]any{},
		FileType:      "pdf",
		LineHeight:    -1,
		Margins:       100,
		TextScale:     1,
		Transform:     map[string]any{},
	}
}

// packDocument serializes the PDF at path plus the minimal metadata record
// into the ZIP archive the backend expects for document content. The PDF is
// stored under its base name.
func packDocument(path string) ([]byte, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rmcloud: reading payload %s: %w", path, err)
	}

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	entry, err := zw.Create(filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("rmcloud: creating payload entry: %w", err)
	}

	if _, err := entry.Write(payload); err != nil {
		return nil, fmt.Errorf("rmcloud: writing payload entry: %w", err)
	}

	meta, err := json.Marshal(defaultContentMetadata())
	if err != nil {
		return nil, fmt.Errorf("rmcloud: encoding content metadata: %w", err)
	}

	metaEntry, err := zw.Create(contentFileName)
	if err != nil {
		return nil, fmt.Errorf("rmcloud: creating metadata entry: %w", err)
	}

	if _, err := metaEntry.Write(meta); err != nil {
		return nil, fmt.Errorf("rmcloud: writing metadata entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("rmcloud: finalizing archive: %w", err)
	}

	return buf.Bytes(), nil
}

// extractPayload returns the first archive entry whose name ends in ext.
// found is false when the archive has no such entry; the caller falls back
// to verbatim byte passthrough. A malformed archive is an error.
func extractPayload(data []byte, ext string) (payload []byte, found bool, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, false, fmt.Errorf("rmcloud: opening archive: %w", err)
	}

	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ext) {
			continue
		}

		rc, openErr := f.Open()
		if openErr != nil {
			return nil, false, fmt.Errorf("rmcloud: opening archive entry %s: %w", f.Name, openErr)
		}

		payload, err = io.ReadAll(rc)
		rc.Close()

		if err != nil {
			return nil, false, fmt.Errorf("rmcloud: reading archive entry %s: %w", f.Name, err)
		}

		return payload, true, nil
	}

	return nil, false, nil
}

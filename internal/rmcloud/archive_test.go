package rmcloud

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildArchive zips the given entries into an in-memory archive.
func buildArchive(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)

	for name, data := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)

		_, err = w.Write(data)
		require.NoError(t, err)
	}

	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func TestPackDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 body"), 0o644))

	archive, err := packDocument(path)
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	assert.ElementsMatch(t, []string{"notes.pdf", ".content"}, names)
}

func TestPackDocument_MetadataShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.pdf")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	archive, err := packDocument(path)
	require.NoError(t, err)

	meta, found, err := extractPayload(archive, contentFileName)
	require.NoError(t, err)
	require.True(t, found)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(meta, &decoded))

	// The backend requires exactly this key set.
	for _, key := range []string{
		"extraMetadata", "fileType", "lastOpenedPage", "lineHeight",
		"margins", "pageCount", "textScale", "transform",
	} {
		assert.Contains(t, decoded, key)
	}

	assert.Len(t, decoded, 8)
	assert.Equal(t, "pdf", decoded["fileType"])
	assert.Equal(t, float64(-1), decoded["lineHeight"])
	assert.Equal(t, float64(100), decoded["margins"])
	assert.Equal(t, float64(1), decoded["textScale"])
}

func TestPackDocument_MissingFile(t *testing.T) {
	_, err := packDocument(filepath.Join(t.TempDir(), "nope.pdf"))
	assert.Error(t, err)
}

func TestExtractPayload(t *testing.T) {
	archive := buildArchive(t, map[string][]byte{
		".content":  []byte("{}"),
		"notes.pdf": []byte("payload bytes"),
	})

	payload, found, err := extractPayload(archive, ".pdf")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("payload bytes"), payload)
}

func TestExtractPayload_NoMatchingEntry(t *testing.T) {
	archive := buildArchive(t, map[string][]byte{".content": []byte("{}")})

	payload, found, err := extractPayload(archive, ".pdf")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, payload)
}

func TestExtractPayload_MalformedArchive(t *testing.T) {
	_, _, err := extractPayload([]byte("garbage"), ".pdf")
	assert.Error(t, err)
}

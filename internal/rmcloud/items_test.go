package rmcloud

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStorage is a minimal in-memory stand-in for the document-storage
// backend, implementing the listing, reservation, metadata, and delete
// endpoints plus signed blob URLs.
type fakeStorage struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	items    map[string]wireItem
	blobs    map[string][]byte
	requests int

	// failCommit makes the next update-status call report failure.
	failCommit bool
}

func newFakeStorage(t *testing.T) *fakeStorage {
	t.Helper()

	f := &fakeStorage{
		t:     t,
		items: make(map[string]wireItem),
		blobs: make(map[string][]byte),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(docsEndpoint, f.handleDocs)
	mux.HandleFunc(uploadRequestEndpoint, f.handleReserve)
	mux.HandleFunc(updateStatusEndpoint, f.handleCommit)
	mux.HandleFunc(deleteEndpoint, f.handleDelete)
	mux.HandleFunc("/blob/", f.handleBlob)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeStorage) client(t *testing.T) *Client {
	t.Helper()

	return newTestClient(t, f.srv.URL)
}

// add seeds an item directly into the fake's store.
func (f *fakeStorage) add(id, name, parent string, kind Kind, version int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.items[id] = wireItem{
		ID:           id,
		Version:      version,
		Type:         kind,
		VissibleName: name,
		Parent:       parent,
	}
}

func (f *fakeStorage) get(id string) (wireItem, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[id]

	return item, ok
}

func (f *fakeStorage) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.requests
}

func (f *fakeStorage) count(r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests++

	if !strings.HasPrefix(r.URL.Path, "/blob/") {
		require.Equal(f.t, "Bearer test-token", r.Header.Get("Authorization"))
	}
}

func (f *fakeStorage) handleDocs(w http.ResponseWriter, r *http.Request) {
	f.count(r)

	f.mu.Lock()
	defer f.mu.Unlock()

	if id := r.URL.Query().Get("doc"); id != "" {
		item, ok := f.items[id]
		if !ok {
			http.Error(w, "[]", http.StatusNotFound)
			return
		}

		if r.URL.Query().Get("withBlob") == "true" {
			item.BlobURLGet = f.srv.URL + "/blob/" + id
		}

		json.NewEncoder(w).Encode([]wireItem{item})

		return
	}

	all := make([]wireItem, 0, len(f.items))
	for _, item := range f.items {
		all = append(all, item)
	}

	json.NewEncoder(w).Encode(all)
}

func (f *fakeStorage) handleReserve(w http.ResponseWriter, r *http.Request) {
	f.count(r)

	var reqs []uploadRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&reqs))
	require.Len(f.t, reqs, 1, "reservation bodies are single-element arrays")
	require.Equal(f.t, 1, reqs[0].Version)

	f.mu.Lock()
	defer f.mu.Unlock()

	resp := uploadResponse{ID: reqs[0].ID, Version: 1}
	if reqs[0].Type == KindDocument {
		resp.BlobURLPut = f.srv.URL + "/blob/" + reqs[0].ID
	}

	json.NewEncoder(w).Encode([]uploadResponse{resp})
}

func (f *fakeStorage) handleCommit(w http.ResponseWriter, r *http.Request) {
	f.count(r)

	var reqs []updateRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&reqs))
	require.Len(f.t, reqs, 1, "metadata bodies are single-element arrays")

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCommit {
		f.failCommit = false

		failed := false
		json.NewEncoder(w).Encode([]wireItem{{
			ID:      reqs[0].ID,
			Success: &failed,
			Message: "simulated commit failure",
		}})

		return
	}

	up := reqs[0]

	if existing, ok := f.items[up.ID]; ok {
		require.Equal(f.t, existing.Version+1, up.Version, "mutations must increment the version by one")
	}

	item := wireItem{
		ID:             up.ID,
		Version:        up.Version,
		Parent:         up.Parent,
		VissibleName:   up.VissibleName,
		Type:           up.Type,
		ModifiedClient: up.ModifiedClient,
		Bookmarked:     up.Bookmarked,
	}
	f.items[up.ID] = item

	json.NewEncoder(w).Encode([]wireItem{item})
}

func (f *fakeStorage) handleDelete(w http.ResponseWriter, r *http.Request) {
	f.count(r)

	var reqs []deleteRequest
	require.NoError(f.t, json.NewDecoder(r.Body).Decode(&reqs))
	require.Len(f.t, reqs, 1)

	f.mu.Lock()
	defer f.mu.Unlock()

	item, ok := f.items[reqs[0].ID]
	if !ok || item.Version != reqs[0].Version {
		failed := false
		json.NewEncoder(w).Encode([]wireItem{{
			ID:      reqs[0].ID,
			Success: &failed,
			Message: "wrong version",
		}})

		return
	}

	delete(f.items, reqs[0].ID)

	json.NewEncoder(w).Encode([]wireItem{{ID: reqs[0].ID}})
}

func (f *fakeStorage) handleBlob(w http.ResponseWriter, r *http.Request) {
	f.count(r)

	id := strings.TrimPrefix(r.URL.Path, "/blob/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		// Signed upload URLs must receive neither auth nor a content type.
		require.Empty(f.t, r.Header.Get("Authorization"))
		require.Empty(f.t, r.Header.Get("Content-Type"))

		data, err := io.ReadAll(r.Body)
		require.NoError(f.t, err)

		f.blobs[id] = data
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		require.Empty(f.t, r.Header.Get("Authorization"))
		w.Write(f.blobs[id])
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func TestListItems_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	items, err := c.ListItems(context.Background(), false)
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestListItems_NormalizesWireItems(t *testing.T) {
	f := newFakeStorage(t)
	f.add("doc-1", "Quarterly Report", RootFolder, KindDocument, 3)

	c := f.client(t)

	items, err := c.ListItems(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, "doc-1", items[0].ID)
	assert.Equal(t, "Quarterly Report", items[0].Name)
	assert.Equal(t, 3, items[0].Version)
	assert.True(t, items[0].IsDocument())
	assert.Equal(t, RootFolder, items[0].ParentID)
}

func TestListItems_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	_, err := c.ListItems(context.Background(), false)
	assert.ErrorIs(t, err, ErrList)
}

func TestGetItem_NotFound(t *testing.T) {
	f := newFakeStorage(t)
	c := f.client(t)

	_, err := c.GetItem(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetItem_EmptyArrayIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("[]"))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	_, err := c.GetItem(context.Background(), "missing", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByPath(t *testing.T) {
	f := newFakeStorage(t)
	f.add("folder-1", "Projects", RootFolder, KindCollection, 1)
	f.add("doc-1", "Notes", "folder-1", KindDocument, 1)
	f.add("doc-2", "Notes", RootFolder, KindDocument, 1)

	c := f.client(t)
	ctx := context.Background()

	t.Run("nested document", func(t *testing.T) {
		item, err := c.FindByPath(ctx, "/Projects/Notes")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, "doc-1", item.ID)
	})

	t.Run("leading and trailing slashes ignored", func(t *testing.T) {
		item, err := c.FindByPath(ctx, "Projects/Notes/")
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, "doc-1", item.ID)
	})

	t.Run("root is not an item", func(t *testing.T) {
		for _, p := range []string{"", "/", "//"} {
			item, err := c.FindByPath(ctx, p)
			require.NoError(t, err)
			assert.Nil(t, item)
		}
	})

	t.Run("absent path is nil without error", func(t *testing.T) {
		item, err := c.FindByPath(ctx, "/Projects/Nope")
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("document cannot be traversed", func(t *testing.T) {
		item, err := c.FindByPath(ctx, "/Projects/Notes/Deeper")
		require.NoError(t, err)
		assert.Nil(t, item)
	})

	t.Run("matching is case sensitive", func(t *testing.T) {
		item, err := c.FindByPath(ctx, "/projects/Notes")
		require.NoError(t, err)
		assert.Nil(t, item)
	})
}

func TestFindByPath_DuplicateSiblingsFirstListedWins(t *testing.T) {
	// A fixed-order listing, not the map-backed fake: the tie-break policy is
	// defined by listing order, so the fixture must pin that order.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			{"ID":"first","Version":1,"Type":"DocumentType","VissibleName":"Twin","Parent":""},
			{"ID":"second","Version":1,"Type":"DocumentType","VissibleName":"Twin","Parent":""}
		]`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	item, err := c.FindByPath(context.Background(), "/Twin")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "first", item.ID, "the first item in listing order wins among same-named siblings")
}

func TestFindByPath_DuplicateFolderShadowsSecond(t *testing.T) {
	// Two same-named sibling folders; only the second holds the target. The
	// walk descends into the first in listing order, so the target is shadowed.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[
			{"ID":"f-1","Version":1,"Type":"CollectionType","VissibleName":"Dup","Parent":""},
			{"ID":"f-2","Version":1,"Type":"CollectionType","VissibleName":"Dup","Parent":""},
			{"ID":"doc-1","Version":1,"Type":"DocumentType","VissibleName":"Hidden","Parent":"f-2"}
		]`))
	}))
	t.Cleanup(srv.Close)

	c := newTestClient(t, srv.URL)

	item, err := c.FindByPath(context.Background(), "/Dup/Hidden")
	require.NoError(t, err)
	assert.Nil(t, item, "descent follows the first-listed folder, shadowing the second's children")
}

func TestItemPath_RoundTripsWithFindByPath(t *testing.T) {
	f := newFakeStorage(t)
	f.add("folder-1", "Projects", RootFolder, KindCollection, 1)
	f.add("folder-2", "2026", "folder-1", KindCollection, 1)
	f.add("doc-1", "Roadmap", "folder-2", KindDocument, 1)

	c := f.client(t)
	ctx := context.Background()

	item, err := c.FindByPath(ctx, "/Projects/2026/Roadmap")
	require.NoError(t, err)
	require.NotNil(t, item)

	path, err := c.ItemPath(ctx, *item)
	require.NoError(t, err)
	assert.Equal(t, "/Projects/2026/Roadmap", path)
}

func TestItemPath_MissingAncestor(t *testing.T) {
	f := newFakeStorage(t)
	f.add("doc-1", "Stranded", "ghost-folder", KindDocument, 1)

	c := f.client(t)

	items, err := c.ListItems(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, items, 1)

	_, err = c.ItemPath(context.Background(), items[0])
	require.Error(t, err)

	var partialErr *PartialPathError
	require.ErrorAs(t, err, &partialErr)
	assert.Equal(t, "doc-1", partialErr.ItemID)
	assert.Equal(t, "ghost-folder", partialErr.MissingAncestor)
	assert.Equal(t, "/Stranded", partialErr.Partial)
}

func TestCreateFolder(t *testing.T) {
	f := newFakeStorage(t)
	f.add("folder-1", "Projects", RootFolder, KindCollection, 1)

	c := f.client(t)

	folder, err := c.CreateFolder(context.Background(), "Archive", "folder-1")
	require.NoError(t, err)

	assert.NotEmpty(t, folder.ID)
	assert.Equal(t, "Archive", folder.Name)
	assert.Equal(t, "folder-1", folder.ParentID)
	assert.True(t, folder.IsFolder())
	assert.Equal(t, 1, folder.Version)

	stored, ok := f.get(folder.ID)
	require.True(t, ok)
	assert.Equal(t, KindCollection, stored.Type)
	assert.NotEmpty(t, stored.ModifiedClient)
}

func TestCreateFolder_CommitFailureInvokesOrphanHook(t *testing.T) {
	f := newFakeStorage(t)
	f.failCommit = true

	c := f.client(t)

	var orphanID string
	var orphanKind Kind

	c.OnOrphan = func(id string, kind Kind) {
		orphanID = id
		orphanKind = kind
	}

	_, err := c.CreateFolder(context.Background(), "Doomed", RootFolder)
	require.ErrorIs(t, err, ErrCreate)

	assert.NotEmpty(t, orphanID, "orphan hook must fire when the commit phase fails")
	assert.Equal(t, KindCollection, orphanKind)
}

func TestMove_IncrementsVersionAndReparents(t *testing.T) {
	f := newFakeStorage(t)
	f.add("folder-1", "Projects", RootFolder, KindCollection, 1)
	f.add("doc-1", "Notes", RootFolder, KindDocument, 4)

	c := f.client(t)

	moved, err := c.Move(context.Background(), "doc-1", "folder-1", "")
	require.NoError(t, err)

	assert.Equal(t, 5, moved.Version, "move resubmits with version incremented by one")
	assert.Equal(t, "folder-1", moved.ParentID)
	assert.Equal(t, "Notes", moved.Name, "empty new name keeps the current one")
}

func TestMove_WithRename(t *testing.T) {
	f := newFakeStorage(t)
	f.add("doc-1", "Old Name", RootFolder, KindDocument, 1)

	c := f.client(t)

	moved, err := c.Move(context.Background(), "doc-1", RootFolder, "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", moved.Name)
	assert.Equal(t, 2, moved.Version)
}

func TestRename_KeepsParent(t *testing.T) {
	f := newFakeStorage(t)
	f.add("folder-1", "Projects", RootFolder, KindCollection, 1)
	f.add("doc-1", "Draft", "folder-1", KindDocument, 2)

	c := f.client(t)

	renamed, err := c.Rename(context.Background(), "doc-1", "Final")
	require.NoError(t, err)
	assert.Equal(t, "Final", renamed.Name)
	assert.Equal(t, "folder-1", renamed.ParentID)
}

func TestMove_MissingItem(t *testing.T) {
	f := newFakeStorage(t)
	c := f.client(t)

	_, err := c.Move(context.Background(), "missing", RootFolder, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_UsesCurrentVersion(t *testing.T) {
	f := newFakeStorage(t)
	f.add("doc-1", "Ephemeral", RootFolder, KindDocument, 7)

	c := f.client(t)

	require.NoError(t, c.Delete(context.Background(), "doc-1"))

	_, ok := f.get("doc-1")
	assert.False(t, ok)
}

func TestDelete_RefetchesVersion(t *testing.T) {
	f := newFakeStorage(t)
	f.add("doc-1", "Ephemeral", RootFolder, KindDocument, 1)

	c := f.client(t)
	ctx := context.Background()

	// A listing observes version 1.
	_, err := c.ListItems(ctx, false)
	require.NoError(t, err)

	// Another client bumps the version behind our back. Delete must key off a
	// fresh fetch, not the stale listing.
	f.add("doc-1", "Ephemeral", RootFolder, KindDocument, 5)

	require.NoError(t, c.Delete(ctx, "doc-1"))

	_, ok := f.get("doc-1")
	assert.False(t, ok)
}

func TestDelete_MissingItem(t *testing.T) {
	f := newFakeStorage(t)
	c := f.client(t)

	err := c.Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCacheGeneration_BumpsOnListAndMutate(t *testing.T) {
	f := newFakeStorage(t)
	f.add("doc-1", "Notes", RootFolder, KindDocument, 1)

	c := f.client(t)
	ctx := context.Background()

	gen0 := c.CacheGeneration()

	_, err := c.ListItems(ctx, false)
	require.NoError(t, err)

	gen1 := c.CacheGeneration()
	assert.Greater(t, gen1, gen0, "a listing installs a new cache generation")

	_, err = c.CreateFolder(ctx, "New", RootFolder)
	require.NoError(t, err)

	gen2 := c.CacheGeneration()
	assert.Greater(t, gen2, gen1, "a mutation invalidates the cache")

	require.NoError(t, c.Delete(ctx, "doc-1"))
	assert.Greater(t, c.CacheGeneration(), gen2)
}

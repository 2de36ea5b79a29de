package rmcloud

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ListItems fetches the full flat item set, populates the cache, and returns
// it. An empty backend response yields an empty slice, not an error.
func (c *Client) ListItems(ctx context.Context, withBlob bool) ([]Item, error) {
	endpoint := docsEndpoint
	if withBlob {
		endpoint += "?withBlob=true"
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, wrapOp("list", ErrList, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("list", ErrList, resp.StatusCode, trimBody(readBody(resp)))
	}

	body := readBody(resp)
	if len(strings.TrimSpace(string(body))) == 0 {
		c.cache.replace(nil)
		return []Item{}, nil
	}

	var wire []wireItem
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, apiError("list", ErrList, resp.StatusCode, "decoding response: "+err.Error())
	}

	items := make([]Item, 0, len(wire))
	for i := range wire {
		items = append(items, wire[i].toItem())
	}

	c.cache.replace(items)

	c.logger.Debug("listed items",
		slog.Int("count", len(items)),
		slog.Bool("with_blob", withBlob),
	)

	return items, nil
}

// GetItem fetches a single item by ID. withBlob requests a signed content URL.
func (c *Client) GetItem(ctx context.Context, id string, withBlob bool) (*Item, error) {
	endpoint := docsEndpoint + "?doc=" + id
	if withBlob {
		endpoint += "&withBlob=true"
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, wrapOp("get item", ErrList, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apiError("get item", ErrNotFound, resp.StatusCode, id)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError("get item", ErrList, resp.StatusCode, trimBody(readBody(resp)))
	}

	var wire []wireItem
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, apiError("get item", ErrList, resp.StatusCode, "decoding response: "+err.Error())
	}

	// The backend returns an array even for a single-item query.
	if len(wire) == 0 {
		return nil, apiError("get item", ErrNotFound, resp.StatusCode, id)
	}

	item := wire[0].toItem()

	return &item, nil
}

// FindByPath resolves a slash-separated path against the live item graph and
// returns (nil, nil) when no item matches. The empty path and "/" always
// resolve to absent; the root is not an item. Matching is case-sensitive and
// exact; when siblings share a display name the first one in listing order
// wins. That tie-break is a documented limitation of the protocol, not a
// guarantee.
func (c *Client) FindByPath(ctx context.Context, path string) (*Item, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, nil //nolint:nilnil // sentinel for "absent"
	}

	items, err := c.ListItems(ctx, false)
	if err != nil {
		return nil, err
	}

	byParent := make(map[string][]Item)
	for _, item := range items {
		byParent[item.ParentID] = append(byParent[item.ParentID], item)
	}

	parent := RootFolder

	var current *Item

	for _, segment := range strings.Split(path, "/") {
		var found *Item

		for i := range byParent[parent] {
			if byParent[parent][i].Name == segment {
				found = &byParent[parent][i]
				break
			}
		}

		if found == nil {
			return nil, nil //nolint:nilnil // sentinel for "absent"
		}

		current = found
		parent = found.ID
	}

	result := *current

	return &result, nil
}

// ItemPath computes the slash-separated path of an item by walking parent
// links through the cache, triggering one listing if the cache is empty.
// When an ancestor is missing from the cache the walk cannot complete and a
// *PartialPathError carrying the resolved suffix is returned alongside it.
func (c *Client) ItemPath(ctx context.Context, item Item) (string, error) {
	if !c.cache.isValid() {
		if _, err := c.ListItems(ctx, false); err != nil {
			return "", err
		}
	}

	parts := []string{item.Name}
	current := item

	for current.ParentID != RootFolder {
		parent, ok := c.cache.get(current.ParentID)
		if !ok {
			partial := "/" + strings.Join(parts, "/")

			return "", &PartialPathError{
				ItemID:          item.ID,
				MissingAncestor: current.ParentID,
				Partial:         partial,
			}
		}

		parts = append([]string{parent.Name}, parts...)
		current = parent
	}

	return "/" + strings.Join(parts, "/"), nil
}

// reserve performs phase one of the two-phase create/upload protocol:
// it registers a fresh identifier with the backend at version 1 and returns
// the reservation response (which carries the signed upload URL for
// documents).
func (c *Client) reserve(ctx context.Context, id string, kind Kind, op string, sentinel error) (*uploadResponse, error) {
	resp, err := c.do(ctx, http.MethodPut, uploadRequestEndpoint, []uploadRequest{{
		ID:      id,
		Version: 1,
		Type:    kind,
	}})
	if err != nil {
		return nil, wrapOp(op, sentinel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(op, sentinel, resp.StatusCode, trimBody(readBody(resp)))
	}

	var results []uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, apiError(op, sentinel, resp.StatusCode, "decoding reservation response: "+err.Error())
	}

	if len(results) == 0 {
		return nil, apiError(op, sentinel, resp.StatusCode, "empty reservation response")
	}

	if !results[0].ok() {
		return nil, apiError(op, sentinel, resp.StatusCode, orMessage(results[0].Message))
	}

	return &results[0], nil
}

// commit performs phase two: it submits the item's metadata record.
func (c *Client) commit(ctx context.Context, update updateRequest, op string, sentinel error) (*wireItem, error) {
	resp, err := c.do(ctx, http.MethodPut, updateStatusEndpoint, []updateRequest{update})
	if err != nil {
		return nil, wrapOp(op, sentinel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(op, sentinel, resp.StatusCode, trimBody(readBody(resp)))
	}

	var results []wireItem
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, apiError(op, sentinel, resp.StatusCode, "decoding metadata response: "+err.Error())
	}

	if len(results) == 0 {
		return nil, apiError(op, sentinel, resp.StatusCode, "empty metadata response")
	}

	return &results[0], nil
}

// CreateFolder creates a folder under parentID (RootFolder for top level).
// Two-phase: reserve the identifier, then commit name, parent, and timestamp.
// A commit failure after a successful reservation leaves an orphaned
// identifier on the backend; the orphan hook is invoked and the error
// returned.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*Item, error) {
	folderID := uuid.NewString()

	c.logger.Info("creating folder",
		slog.String("folder_id", folderID),
		slog.String("name", name),
		slog.String("parent_id", parentID),
	)

	if _, err := c.reserve(ctx, folderID, KindCollection, "create folder", ErrCreate); err != nil {
		return nil, err
	}

	result, err := c.commit(ctx, updateRequest{
		ID:             folderID,
		Version:        1,
		Parent:         parentID,
		VissibleName:   name,
		Type:           KindCollection,
		ModifiedClient: nowTimestamp(),
	}, "create folder", ErrCreate)
	if err != nil {
		c.orphaned(folderID, KindCollection)
		return nil, err
	}

	c.cache.invalidate()

	item := result.toItem()

	return &item, nil
}

// Move reparents and/or renames an item. It fetches the current state,
// resubmits the metadata with the version incremented by one, the requested
// parent, and either the supplied name or the unchanged current name,
// preserving the bookmarked flag. newName == "" keeps the current name.
func (c *Client) Move(ctx context.Context, id, newParentID, newName string) (*Item, error) {
	current, err := c.GetItem(ctx, id, false)
	if err != nil {
		return nil, err
	}

	name := current.Name
	if newName != "" {
		name = newName
	}

	c.logger.Info("moving item",
		slog.String("item_id", id),
		slog.String("new_parent_id", newParentID),
		slog.String("name", name),
	)

	result, err := c.commit(ctx, updateRequest{
		ID:             id,
		Version:        current.Version + 1,
		Parent:         newParentID,
		VissibleName:   name,
		Type:           current.Kind,
		ModifiedClient: nowTimestamp(),
		Bookmarked:     current.Bookmarked,
	}, "move", ErrMove)
	if err != nil {
		return nil, err
	}

	if !result.ok() {
		return nil, apiError("move", ErrMove, 0, orMessage(result.Message))
	}

	c.cache.invalidate()

	item := result.toItem()

	return &item, nil
}

// Rename changes an item's display name in place, keeping its current parent.
func (c *Client) Rename(ctx context.Context, id, newName string) (*Item, error) {
	current, err := c.GetItem(ctx, id, false)
	if err != nil {
		return nil, err
	}

	return c.Move(ctx, id, current.ParentID, newName)
}

// Delete removes an item. The deletion is keyed by the item's current
// version, which is fetched immediately before the delete request; the
// backend rejects a stale version.
func (c *Client) Delete(ctx context.Context, id string) error {
	current, err := c.GetItem(ctx, id, false)
	if err != nil {
		return err
	}

	c.logger.Info("deleting item",
		slog.String("item_id", id),
		slog.Int("version", current.Version),
	)

	resp, err := c.do(ctx, http.MethodPut, deleteEndpoint, []deleteRequest{{
		ID:      id,
		Version: current.Version,
	}})
	if err != nil {
		return wrapOp("delete", ErrDelete, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError("delete", ErrDelete, resp.StatusCode, trimBody(readBody(resp)))
	}

	var results []wireItem
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return apiError("delete", ErrDelete, resp.StatusCode, "decoding response: "+err.Error())
	}

	if len(results) == 0 {
		return apiError("delete", ErrDelete, resp.StatusCode, "empty response")
	}

	if !results[0].ok() {
		return apiError("delete", ErrDelete, resp.StatusCode, orMessage(results[0].Message))
	}

	c.cache.invalidate()

	return nil
}

// wrapOp attaches an operation sentinel to a transport-level failure, unless
// the error is already one of ours (token, discovery) and passes through.
func wrapOp(op string, sentinel error, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return err
	}

	return apiError(op, sentinel, 0, err.Error())
}

// orMessage substitutes a placeholder for an empty service message.
func orMessage(msg string) string {
	if msg == "" {
		return "unknown error"
	}

	return msg
}

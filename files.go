package main

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vkorhonen/remarkable-go/internal/rmcloud"
)

// resolveItem looks up a cloud path and errors when no item matches.
func resolveItem(ctx context.Context, client *rmcloud.Client, cloudPath string) (*rmcloud.Item, error) {
	item, err := client.FindByPath(ctx, cloudPath)
	if err != nil {
		return nil, err
	}

	if item == nil {
		return nil, fmt.Errorf("%s: no such item", cloudPath)
	}

	return item, nil
}

// resolveFolder looks up a cloud path that must be a folder. The empty path
// and "/" resolve to the root.
func resolveFolder(ctx context.Context, client *rmcloud.Client, cloudPath string) (string, error) {
	if strings.Trim(cloudPath, "/") == "" {
		return rmcloud.RootFolder, nil
	}

	item, err := resolveItem(ctx, client, cloudPath)
	if err != nil {
		return "", err
	}

	if !item.IsFolder() {
		return "", fmt.Errorf("%s: not a folder", cloudPath)
	}

	return item.ID, nil
}

// newLsCmd lists the children of a folder (the root when no path is given).
func newLsCmd() *cobra.Command {
	var long bool

	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List documents and folders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()

			cloudPath := ""
			if len(args) == 1 {
				cloudPath = args[0]
			}

			parentID, err := resolveFolder(cmd.Context(), client, cloudPath)
			if err != nil {
				return err
			}

			items, err := client.ListItems(cmd.Context(), false)
			if err != nil {
				return err
			}

			var children []rmcloud.Item
			for _, item := range items {
				if item.ParentID == parentID {
					children = append(children, item)
				}
			}

			// Folders first, then documents, each alphabetically.
			sort.Slice(children, func(i, j int) bool {
				if children[i].IsFolder() != children[j].IsFolder() {
					return children[i].IsFolder()
				}

				return children[i].Name < children[j].Name
			})

			if long {
				printItems(children)
				return nil
			}

			for _, item := range children {
				name := item.Name
				if item.IsFolder() {
					name += "/"
				}

				fmt.Println(name)
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&long, "long", "l", false, "long listing with type and modification time")

	return cmd
}

// newStatCmd prints one item's full metadata.
func newStatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show item metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()

			item, err := resolveItem(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			printItemDetail(*item)

			return nil
		},
	}
}

// newMkdirCmd creates a folder. Only the final path segment is created; the
// parent must already exist.
func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()

			parentPath, name := splitCloudPath(args[0])
			if name == "" {
				return fmt.Errorf("%s: empty folder name", args[0])
			}

			parentID, err := resolveFolder(cmd.Context(), client, parentPath)
			if err != nil {
				return err
			}

			folder, err := client.CreateFolder(cmd.Context(), name, parentID)
			if err != nil {
				return err
			}

			statusf("Created folder %s\n", folder.Name)

			return nil
		},
	}
}

// newPutCmd uploads a local PDF into a cloud folder.
func newPutCmd() *cobra.Command {
	var docName string

	cmd := &cobra.Command{
		Use:   "put <local-file> [remote-folder]",
		Short: "Upload a PDF document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()

			folderPath := ""
			if len(args) == 2 {
				folderPath = args[1]
			}

			parentID, err := resolveFolder(cmd.Context(), client, folderPath)
			if err != nil {
				return err
			}

			statusf("Uploading %s...\n", args[0])

			item, err := client.UploadDocument(cmd.Context(), args[0], docName, parentID)
			if err != nil {
				return err
			}

			statusf("Uploaded as %s\n", item.Name)

			return nil
		},
	}

	cmd.Flags().StringVarP(&docName, "name", "n", "", "display name (default: file name without extension)")

	return cmd
}

// newGetCmd downloads a document's content to a local file.
func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <remote-path> [local-file]",
		Short: "Download a document",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()

			item, err := resolveItem(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			if !item.IsDocument() {
				return fmt.Errorf("%s: not a document", args[0])
			}

			dest := item.Name + ".pdf"
			if len(args) == 2 {
				dest = args[1]
			}

			statusf("Downloading %s...\n", item.Name)

			written, err := client.DownloadDocument(cmd.Context(), item.ID, dest)
			if err != nil {
				return err
			}

			statusf("Saved to %s\n", written)

			return nil
		},
	}
}

// newMvCmd moves and/or renames an item. When the destination resolves to an
// existing folder the item moves into it keeping its name; otherwise the
// destination's final segment becomes the new name under its parent.
func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <src> <dst>",
		Short: "Move or rename an item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()
			ctx := cmd.Context()

			src, err := resolveItem(ctx, client, args[0])
			if err != nil {
				return err
			}

			dst, err := client.FindByPath(ctx, args[1])
			if err != nil {
				return err
			}

			if dst != nil && dst.IsFolder() {
				_, err = client.Move(ctx, src.ID, dst.ID, "")
				return err
			}

			if dst != nil {
				return fmt.Errorf("%s: destination exists", args[1])
			}

			parentPath, name := splitCloudPath(args[1])

			parentID, err := resolveFolder(ctx, client, parentPath)
			if err != nil {
				return err
			}

			_, err = client.Move(ctx, src.ID, parentID, name)

			return err
		},
	}
}

// newRmCmd deletes an item by path.
func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a document or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newCloudClient()

			item, err := resolveItem(cmd.Context(), client, args[0])
			if err != nil {
				return err
			}

			if err := client.Delete(cmd.Context(), item.ID); err != nil {
				return err
			}

			statusf("Deleted %s\n", item.Name)

			return nil
		},
	}
}

// newFindCmd lists the full paths of all items whose name contains the given
// substring (case-insensitive).
func newFindCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "find <name>",
		Short: "Find items by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, logger := newCloudClient()
			ctx := cmd.Context()

			items, err := client.ListItems(ctx, false)
			if err != nil {
				return err
			}

			needle := strings.ToLower(args[0])

			for _, item := range items {
				if !strings.Contains(strings.ToLower(item.Name), needle) {
					continue
				}

				fullPath, err := client.ItemPath(ctx, item)
				if err != nil {
					var partialErr *rmcloud.PartialPathError
					if errors.As(err, &partialErr) {
						// Print what could be resolved and keep going.
						logger.Warn("incomplete path",
							"item_id", partialErr.ItemID,
							"missing_ancestor", partialErr.MissingAncestor,
						)

						fmt.Printf("%s (incomplete)\n", partialErr.Partial)

						continue
					}

					return err
				}

				fmt.Println(fullPath)
			}

			return nil
		},
	}
}

// splitCloudPath splits a cloud path into its parent path and final segment.
func splitCloudPath(cloudPath string) (parent, name string) {
	trimmed := strings.Trim(cloudPath, "/")

	dir, base := path.Split(trimmed)

	return strings.Trim(dir, "/"), base
}

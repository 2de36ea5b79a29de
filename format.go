package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/vkorhonen/remarkable-go/internal/rmcloud"
)

// statusOut receives progress chatter. It stays off stdout so command results
// remain clean for piping, and is discarded entirely when stderr is not an
// interactive terminal.
var statusOut io.Writer = io.Discard

func init() {
	fd := os.Stderr.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		statusOut = os.Stderr
	}
}

// statusf prints an informational message to stderr, unless --quiet is set.
// Command results themselves always print to stdout unconditionally.
func statusf(format string, args ...any) {
	if flagQuiet {
		return
	}

	fmt.Fprintf(statusOut, format, args...)
}

// kindLabel maps an item kind to its single-character listing marker.
func kindLabel(item rmcloud.Item) string {
	if item.IsFolder() {
		return "d"
	}

	return "-"
}

// formatTime renders a timestamp for listings; the zero time renders as a
// placeholder.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	return t.Local().Format("2006-01-02 15:04")
}

// printItems renders items as an aligned table on stdout.
func printItems(items []rmcloud.Item) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	for _, item := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", kindLabel(item), formatTime(item.ModifiedAt), item.Name)
	}

	w.Flush()
}

// printItemDetail renders a single item's full metadata on stdout.
func printItemDetail(item rmcloud.Item) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintf(w, "Name:\t%s\n", item.Name)
	fmt.Fprintf(w, "ID:\t%s\n", item.ID)
	fmt.Fprintf(w, "Type:\t%s\n", item.Kind)
	fmt.Fprintf(w, "Version:\t%d\n", item.Version)

	parent := item.ParentID
	if parent == rmcloud.RootFolder {
		parent = "(root)"
	}

	fmt.Fprintf(w, "Parent:\t%s\n", parent)
	fmt.Fprintf(w, "Modified:\t%s\n", formatTime(item.ModifiedAt))
	fmt.Fprintf(w, "Bookmarked:\t%t\n", item.Bookmarked)

	w.Flush()
}

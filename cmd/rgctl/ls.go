package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rgkit/gfs/dir"
	"github.com/joshuapare/rgkit/gfs/mount"
	"github.com/joshuapare/rgkit/internal/format"
)

var (
	lsCursor uint64
	lsLimit  int
)

func init() {
	cmd := newLsCmd()
	cmd.Flags().Uint64Var(&lsCursor, "cursor", 0, "Resume listing at this cursor")
	cmd.Flags().IntVar(&lsLimit, "limit", 0, "Maximum entries to list (0 = all)")
	rootCmd.AddCommand(cmd)
}

func newLsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List a directory",
		Long: `The ls command lists a directory in cursor order. With --limit it stops
early and prints the cursor to pass back with --cursor.

Example:
  rgctl ls disk.img
  rgctl ls disk.img projects/src --limit 100
  rgctl ls disk.img projects/src --cursor 1048576 --json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(cmd.Context(), args)
		},
	}
	return cmd
}

// Listing is one entry as printed by ls.
type Listing struct {
	Name   string `json:"name"`
	Inode  uint64 `json:"inode"`
	Type   string `json:"type"`
	Cursor uint64 `json:"cursor"`
}

func typeName(t uint16) string {
	switch t {
	case format.FileReg:
		return "file"
	case format.FileDir:
		return "dir"
	case format.FileLnk:
		return "link"
	default:
		return fmt.Sprintf("type(%d)", t)
	}
}

func parseType(s string) (uint16, error) {
	switch s {
	case "file", "reg":
		return format.FileReg, nil
	case "dir":
		return format.FileDir, nil
	}
	return 0, fmt.Errorf("unknown entry type %q (want file or dir)", s)
}

// list reads up to limit entries (0 for all) starting at cursor. A Read
// may stop short to keep entries sharing a cursor together, so it keeps
// reading while there is room and the last call made progress.
func list(ctx context.Context, d *dir.Dir, cursor uint64, limit int) ([]Listing, uint64, error) {
	var out []Listing
	for cursor < dir.EndCursor && (limit == 0 || len(out) < limit) {
		n := 0
		next, err := d.Read(ctx, cursor, func(e dir.Entry) bool {
			if limit > 0 && len(out) == limit {
				return false
			}
			out = append(out, Listing{Name: e.Name, Inode: e.Inum.Addr, Type: typeName(e.Type), Cursor: e.Cursor()})
			n++
			return true
		})
		if err != nil {
			return out, cursor, err
		}
		cursor = next
		if n == 0 {
			break
		}
	}
	return out, cursor, nil
}

func runLs(ctx context.Context, args []string) error {
	fs, done, err := openFS(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer done()

	var path string
	if len(args) > 1 {
		path = entryName(args[1])
	}
	d, err := fs.OpenPath(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to open %q: %w", "/"+path, err)
	}
	defer mount.CloseDir(d)

	entries, next, err := list(ctx, d, lsCursor, lsLimit)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}
	more := next < dir.EndCursor

	if jsonOut {
		result := map[string]any{
			"image":   args[0],
			"path":    "/" + path,
			"kind":    d.Kind().String(),
			"entries": entries,
			"count":   len(entries),
		}
		if more {
			result["next_cursor"] = next
		}
		return printJSON(result)
	}

	printInfo("\nEntries in /%s (%s):\n", path, d.Kind())
	for _, e := range entries {
		printInfo("  %-5s %10d  %s\n", e.Type, e.Inode, e.Name)
		printVerbose("        cursor %d\n", e.Cursor)
	}
	printInfo("\nTotal: %d entries\n", len(entries))
	if more {
		printInfo("More entries follow; resume with --cursor %d\n", next)
	}
	return nil
}

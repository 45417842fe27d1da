package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rgkit/gfs/mount"
)

var addType string

func init() {
	add := newAddCmd()
	add.Flags().StringVar(&addType, "type", "file", "Entry type: file or dir")
	rootCmd.AddCommand(add, newRmCmd(), newMvCmd())
}

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <image> <path>",
		Short: "Create a file or directory",
		Long: `The add command allocates a dinode and links it into its parent
directory. The parent must exist.

Example:
  rgctl add disk.img notes.txt
  rgctl add disk.img projects --type dir
  rgctl add disk.img projects/src --type dir`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), args)
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <image> <path>",
		Short: "Remove a file or empty directory",
		Long: `The rm command unlinks an entry and frees its dinode. A directory must be
empty; its leaves and hash table are freed with it.

Example:
  rgctl rm disk.img notes.txt
  rgctl rm disk.img projects/src`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRm(cmd.Context(), args)
		},
	}
}

func newMvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <image> <from> <to>",
		Short: "Rename or move an entry",
		Long: `The mv command links an entry under its new name and unlinks the old
one. The destination must not exist.

Example:
  rgctl mv disk.img notes.txt notes-old.txt
  rgctl mv disk.img projects/src archive/src`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMv(cmd.Context(), args)
		},
	}
}

func runAdd(ctx context.Context, args []string) error {
	typ, err := parseType(addType)
	if err != nil {
		return err
	}
	fs, done, err := openFS(ctx, args[0], true)
	if err != nil {
		return err
	}
	defer done()

	d, name, err := openParent(ctx, fs, args[1])
	if err != nil {
		return err
	}
	defer mount.CloseDir(d)

	num, err := fs.Create(ctx, d, name, typ)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", args[1], err)
	}
	if jsonOut {
		return printJSON(map[string]any{"name": name, "inode": num.Addr, "type": typeName(typ)})
	}
	printInfo("✓ Created %s %s (inode %d)\n", typeName(typ), args[1], num.Addr)
	return nil
}

func runRm(ctx context.Context, args []string) error {
	fs, done, err := openFS(ctx, args[0], true)
	if err != nil {
		return err
	}
	defer done()

	d, name, err := openParent(ctx, fs, args[1])
	if err != nil {
		return err
	}
	defer mount.CloseDir(d)

	if err := fs.Remove(ctx, d, name); err != nil {
		return fmt.Errorf("failed to remove %q: %w", args[1], err)
	}
	printInfo("✓ Removed %s\n", args[1])
	return nil
}

func runMv(ctx context.Context, args []string) error {
	fs, done, err := openFS(ctx, args[0], true)
	if err != nil {
		return err
	}
	defer done()

	src, from, err := openParent(ctx, fs, args[1])
	if err != nil {
		return err
	}
	defer mount.CloseDir(src)

	// Both names in one directory must share a single open Dir, or the
	// second dinode copy would overwrite the first one's edits.
	dst, to := src, ""
	if parentOf(args[1]) == parentOf(args[2]) {
		_, to = splitPath(entryName(args[2]))
	} else {
		if dst, to, err = openParent(ctx, fs, args[2]); err != nil {
			return err
		}
		defer mount.CloseDir(dst)
	}
	if to == "" {
		return fmt.Errorf("%q does not name an entry", args[2])
	}

	if err := fs.Rename(ctx, src, from, dst, to); err != nil {
		return fmt.Errorf("failed to move %q to %q: %w", args[1], args[2], err)
	}
	printInfo("✓ Moved %s to %s\n", args[1], args[2])
	return nil
}

func parentOf(p string) string {
	parent, _ := splitPath(entryName(p))
	return parent
}

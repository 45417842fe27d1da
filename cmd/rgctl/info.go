package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Show the superblock and block geometry",
		Long: `The info command mounts an image and prints its superblock fields and
the geometry derived from the block size.

Example:
  rgctl info disk.img
  rgctl info disk.img --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), args)
		},
	}
	return cmd
}

func runInfo(ctx context.Context, args []string) error {
	fs, done, err := openFS(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer done()

	sb := fs.Superblock()
	geo := fs.Geometry()

	if jsonOut {
		return printJSON(map[string]any{
			"image":         args[0],
			"block_size":    sb.BlockSize,
			"lock_proto":    sb.LockProto,
			"lock_table":    sb.LockTable,
			"root":          sb.RootDi.Addr,
			"rindex":        sb.RindexDi.Addr,
			"regions":       fs.Catalog().Len(),
			"dinode_ptrs":   geo.DiPtrs,
			"jdata_payload": geo.JBlockSize,
			"hash_ptrs":     geo.HashPtrs,
		})
	}

	printInfo("\nImage Information:\n")
	printInfo("  File: %s\n", args[0])
	printInfo("  Block size: %d\n", sb.BlockSize)
	printInfo("  Lock protocol: %s\n", sb.LockProto)
	printInfo("  Lock table: %s\n", sb.LockTable)
	printInfo("  Root dinode: %d\n", sb.RootDi.Addr)
	printInfo("  Region index dinode: %d\n", sb.RindexDi.Addr)
	printInfo("  Regions: %d\n", fs.Catalog().Len())
	printInfo("\nGeometry:\n")
	printInfo("  Dinode pointers: %d\n", geo.DiPtrs)
	printInfo("  Journaled data payload: %d\n", geo.JBlockSize)
	printInfo("  Hash pointers per block: %d\n", geo.HashPtrs)
	return nil
}

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newBlockTypeCmd())
}

func newBlockTypeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocktype <image> <block>",
		Short: "Show the allocation state of a block",
		Long: `The blocktype command looks a block up in its resource group bitmap and
prints its state: free, used, free-meta or used-meta.

Example:
  rgctl blocktype disk.img 1042`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlockType(cmd.Context(), args)
		},
	}
	return cmd
}

func runBlockType(ctx context.Context, args []string) error {
	blk, err := strconv.ParseUint(args[1], 0, 64)
	if err != nil {
		return fmt.Errorf("invalid block number %q: %w", args[1], err)
	}
	fs, done, err := openFS(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer done()

	st, err := fs.BlockType(ctx, blk)
	if err != nil {
		return fmt.Errorf("block %d: %w", blk, err)
	}
	if jsonOut {
		return printJSON(map[string]any{"block": blk, "state": st.String()})
	}
	printInfo("%d: %s\n", blk, st)
	return nil
}

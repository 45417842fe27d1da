package main

import (
	"context"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <image>",
		Short: "Check resource group counters against their bitmaps",
		Long: `The verify command recounts every bitmap and compares the totals with
the counters in each resource group header.

Example:
  rgctl verify disk.img`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd.Context(), args)
		},
	}
	return cmd
}

func runVerify(ctx context.Context, args []string) error {
	fs, done, err := openFS(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer done()

	verr := fs.VerifyAll(ctx)
	if jsonOut {
		result := map[string]any{
			"image":   args[0],
			"regions": fs.Catalog().Len(),
			"valid":   verr == nil,
		}
		if verr != nil {
			result["error"] = verr.Error()
		}
		if err := printJSON(result); err != nil {
			return err
		}
		return verr
	}
	if verr != nil {
		printInfo("\n✗ %v\n", verr)
		return verr
	}
	printInfo("\n✓ %d resource groups consistent\n", fs.Catalog().Len())
	return nil
}

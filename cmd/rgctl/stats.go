package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/mount"
	"github.com/joshuapare/rgkit/internal/format"
)

var statsRegions bool

func init() {
	cmd := newStatsCmd()
	cmd.Flags().BoolVar(&statsRegions, "regions", false, "Show counters for every resource group")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <image>",
		Short: "Show block usage",
		Long: `The stats command totals the resource group header counters: free data
blocks, free and used metadata blocks, and dinodes.

Example:
  rgctl stats disk.img
  rgctl stats disk.img --regions
  rgctl stats disk.img --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context(), args)
		},
	}
	return cmd
}

// RegionStats is one resource group's header counters.
type RegionStats struct {
	Addr        uint64 `json:"addr"`
	Data        uint32 `json:"data"`
	Free        uint32 `json:"free"`
	FreeMeta    uint32 `json:"free_meta"`
	UsedMeta    uint32 `json:"used_meta"`
	UsedDinodes uint32 `json:"used_dinodes"`
	FreeDinodes uint32 `json:"free_dinodes"`
}

func regionStats(ctx context.Context, fs *mount.FS) ([]RegionStats, error) {
	cat := fs.Catalog()
	out := make([]RegionStats, 0, cat.Len())
	for _, r := range cat.Regions() {
		l, err := cat.Lock(ctx, r, glock.Shared, 0)
		if err != nil {
			return nil, err
		}
		h := l.Header()
		l.Unlock()
		out = append(out, headerStats(r.RI, h))
	}
	return out, nil
}

func headerStats(ri format.Rindex, h format.RgrpHeader) RegionStats {
	return RegionStats{
		Addr:        ri.Addr,
		Data:        ri.Data,
		Free:        h.Free,
		FreeMeta:    h.FreeMeta,
		UsedMeta:    h.UsedMeta,
		UsedDinodes: h.UsedDinodes,
		FreeDinodes: h.FreeDinodes,
	}
}

func runStats(ctx context.Context, args []string) error {
	fs, done, err := openFS(ctx, args[0], false)
	if err != nil {
		return err
	}
	defer done()

	st, err := fs.Statfs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read counters: %w", err)
	}
	var regions []RegionStats
	if statsRegions {
		if regions, err = regionStats(ctx, fs); err != nil {
			return fmt.Errorf("failed to read region headers: %w", err)
		}
	}

	if jsonOut {
		result := map[string]any{
			"image":        args[0],
			"regions":      st.Regions,
			"total":        st.Total,
			"free":         st.Free,
			"free_meta":    st.FreeMeta,
			"used_meta":    st.UsedMeta,
			"used_dinodes": st.UsedDinodes,
			"free_dinodes": st.FreeDinodes,
		}
		if statsRegions {
			result["groups"] = regions
		}
		return printJSON(result)
	}

	printInfo("\nBlock Usage:\n")
	printInfo("  Regions: %d\n", st.Regions)
	printInfo("  Total: %d\n", st.Total)
	printInfo("  Free: %d (%.1f%%)\n", st.Free, percent(st.Free, st.Total))
	printInfo("  Free metadata: %d\n", st.FreeMeta)
	printInfo("  Used metadata: %d\n", st.UsedMeta)
	printInfo("  Dinodes: %d used, %d free\n", st.UsedDinodes, st.FreeDinodes)

	if statsRegions {
		printInfo("\n  %-10s %8s %8s %8s %8s %8s\n", "ADDR", "DATA", "FREE", "FMETA", "UMETA", "DINODES")
		for _, r := range regions {
			printInfo("  %-10d %8d %8d %8d %8d %8d\n",
				r.Addr, r.Data, r.Free, r.FreeMeta, r.UsedMeta, r.UsedDinodes)
		}
	}
	return nil
}

func percent(n, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) * 100 / float64(total)
}

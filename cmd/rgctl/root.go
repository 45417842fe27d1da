package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/dir"
	"github.com/joshuapare/rgkit/gfs/dirty"
	"github.com/joshuapare/rgkit/gfs/mount"
	"github.com/joshuapare/rgkit/internal/config"
	"github.com/joshuapare/rgkit/internal/logger"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	noColor    bool
	rawNames   bool
	configPath string

	cfg config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "rgctl",
	Short: "Format, inspect and edit resource-group filesystem images",
	Long: `rgctl works on filesystem images made of resource groups: bitmap
allocated regions of blocks holding dinodes and directory metadata. It can
format an image, report region usage, check bitmap counters and edit
directories in place.`,
	Version: "0.1.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
	SilenceUsage: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().
		BoolVar(&rawNames, "raw", false, "Use entry names as given, without NFC normalization")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default ./rgkit.yaml)")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the config and builds the logger once per process.
func setup() error {
	if log != nil {
		return nil
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	l, err := logger.New(logger.Config{
		Debug:  c.Debug,
		Format: c.LogFormat,
		File:   c.LogFile,
		Quiet:  quiet || !(verbose || c.Debug),
		Plain:  noColor,
	})
	if err != nil {
		return err
	}
	cfg, log = c, l
	return nil
}

// openFS maps the image at path and mounts it. Unless writable is set the
// mapping is a private snapshot, so nothing reaches the file. done
// unmounts and closes the device.
func openFS(ctx context.Context, path string, writable bool) (fs *mount.FS, done func(), err error) {
	if err := setup(); err != nil {
		return nil, nil, err
	}
	printVerbose("Opening image: %s\n", path)
	open := gfs.OpenSnapshot
	if writable {
		open = gfs.Open
	}
	dev, err := open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image: %w", err)
	}
	fs, err = mount.Mount(ctx, dev, mount.Options{
		Tunables:  cfg.Tunables(),
		Logger:    log,
		FlushMode: dirty.ParseFlushMode(cfg.Flush.Mode),
	})
	if err != nil {
		_ = dev.Close()
		return nil, nil, fmt.Errorf("failed to mount image: %w", err)
	}
	return fs, func() {
		if err := fs.Unmount(); err != nil {
			printError("%v\n", err)
		}
		_ = dev.Close()
	}, nil
}

// entryName applies NFC normalization unless --raw is set, so names typed
// on different platforms hash to the same bucket.
func entryName(s string) string {
	if rawNames {
		return s
	}
	return norm.NFC.String(s)
}

// splitPath separates the parent directory and the last component.
func splitPath(p string) (parent, name string) {
	p = strings.Trim(p, "/")
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[:i], p[i+1:]
	}
	return "", p
}

// openParent opens the directory holding the last component of p.
func openParent(ctx context.Context, fs *mount.FS, p string) (*dir.Dir, string, error) {
	parent, name := splitPath(entryName(p))
	if name == "" {
		return nil, "", fmt.Errorf("%q does not name an entry", p)
	}
	d, err := fs.OpenPath(ctx, parent)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %q: %w", "/"+parent, err)
	}
	return d, name, nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

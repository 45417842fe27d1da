package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newTestImage formats a small image in a temp dir and returns its path.
func newTestImage(t *testing.T) string {
	t.Helper()
	resetFlags()
	path := filepath.Join(t.TempDir(), "disk.img")
	mkfsSizeMiB = 1
	mkfsBlockSize = 512
	mkfsRgrpBlocks = 256
	quiet = true
	if err := runMkfs([]string{path}); err != nil {
		t.Fatalf("mkfs: %v", err)
	}
	resetFlags()
	return path
}

// resetFlags restores every command flag to its default.
func resetFlags() {
	quiet, verbose, jsonOut, rawNames = false, false, false, false
	mkfsSizeMiB, mkfsBlockSize, mkfsRgrpBlocks, mkfsLockTable = 64, 0, 0, ""
	statsRegions = false
	lsCursor, lsLimit = 0, 0
	addType = "file"
}

// captureOutput captures stdout while running a function
func captureOutput(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	// Save original stdout
	origStdout := os.Stdout

	// Create a pipe to capture output
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}

	// Redirect stdout to pipe
	os.Stdout = w

	// Run function
	fnErr := fn()

	// Close write end and restore stdout
	w.Close()
	os.Stdout = origStdout

	// Read captured output
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		t.Fatalf("failed to read output: %v", err)
	}

	return buf.String(), fnErr
}

// decodeJSON unmarshals output into a map
func decodeJSON(t *testing.T, output string) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\nOutput: %s", err, output)
	}
	return result
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}

// assertNotContains checks that output doesn't contain unwanted strings
func assertNotContains(t *testing.T, output string, unwanted []string) {
	t.Helper()
	for _, dont := range unwanted {
		if strings.Contains(output, dont) {
			t.Errorf("output contains unwanted string %q\nGot: %s", dont, output)
		}
	}
}

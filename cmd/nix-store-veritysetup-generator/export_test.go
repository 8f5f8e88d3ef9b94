package main

import (
	"os"
	"path/filepath"
	"testing"
)

var (
	Run = run
)

// MockEscapeBinary writes a fake systemd-escape and returns its path.
func MockEscapeBinary(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fake-systemd-escape")
	/* #nosec G306 */
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

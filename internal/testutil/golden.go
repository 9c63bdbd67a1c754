package testutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// GoldenUpdateEnv names the environment variable that rewrites golden files.
const GoldenUpdateEnv = "TASKSYNC_GOLDEN_UPDATE"

// Golden compares rendered output with testdata/<name>.golden.
// With TASKSYNC_GOLDEN_UPDATE set, the file is rewritten instead.
func Golden(t *testing.T, name string, got []byte) {
	t.Helper()

	path := filepath.Join("testdata", name+".golden")
	if os.Getenv(GoldenUpdateEnv) != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create testdata: %v", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			t.Fatalf("update %s: %v", path, err)
		}
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v (set %s=1 to create it)\ngot:\n%s", path, err, GoldenUpdateEnv, got)
	}
	// Checkouts with autocrlf must not fail the comparison.
	want = bytes.ReplaceAll(want, []byte("\r\n"), []byte("\n"))

	if !bytes.Equal(got, want) {
		t.Errorf("%s: %s\nwant:\n%s\ngot:\n%s", name, firstDiff(want, got), want, got)
	}
}

// firstDiff reports the first line where want and got differ.
func firstDiff(want, got []byte) string {
	wl := bytes.Split(want, []byte("\n"))
	gl := bytes.Split(got, []byte("\n"))
	for i := 0; i < len(wl) || i < len(gl); i++ {
		var w, g []byte
		if i < len(wl) {
			w = wl[i]
		}
		if i < len(gl) {
			g = gl[i]
		}
		if !bytes.Equal(w, g) {
			return fmt.Sprintf("line %d: want %q, got %q", i+1, w, g)
		}
	}
	return "identical lines, different bytes"
}

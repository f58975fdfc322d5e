package compare

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFilesEqual(t *testing.T) {
	dir := t.TempDir()
	data := []byte("1 2\n3\n")
	exp := writeFile(t, dir, "expected.out", data)
	act := writeFile(t, dir, "actual.out", data)

	equal, diag, err := Files(exp, act)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if !equal {
		t.Fatal("expected files to compare equal")
	}
	if diag.MismatchPos != nil {
		t.Fatalf("MismatchPos = %d, want nil", *diag.MismatchPos)
	}
}

func TestFilesMismatchAtStart(t *testing.T) {
	dir := t.TempDir()
	exp := writeFile(t, dir, "expected.out", []byte("abc"))
	act := writeFile(t, dir, "actual.out", []byte("xbc"))

	equal, diag, err := Files(exp, act)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if equal {
		t.Fatal("expected mismatch")
	}
	if diag.MismatchPos == nil || *diag.MismatchPos != 0 {
		t.Fatalf("MismatchPos = %v, want 0", diag.MismatchPos)
	}
	if diag.ExpectedPreview != "abc" || diag.ActualPreview != "xbc" {
		t.Fatalf("previews = %q / %q", diag.ExpectedPreview, diag.ActualPreview)
	}
}

func TestFilesMismatchAcrossChunks(t *testing.T) {
	dir := t.TempDir()
	// Differ beyond the first 64 KiB chunk so the offset has to survive the
	// chunk boundary.
	const diffAt = 100_000
	base := bytes.Repeat([]byte("a"), diffAt+10)
	other := append([]byte(nil), base...)
	other[diffAt] = 'b'
	exp := writeFile(t, dir, "expected.out", base)
	act := writeFile(t, dir, "actual.out", other)

	equal, diag, err := Files(exp, act)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if equal {
		t.Fatal("expected mismatch")
	}
	if diag.MismatchPos == nil || *diag.MismatchPos != diffAt {
		t.Fatalf("MismatchPos = %v, want %d", diag.MismatchPos, diffAt)
	}
}

func TestFilesLengthMismatch(t *testing.T) {
	dir := t.TempDir()
	exp := writeFile(t, dir, "expected.out", []byte("hello\nworld\n"))
	act := writeFile(t, dir, "actual.out", []byte("hello\n"))

	equal, diag, err := Files(exp, act)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if equal {
		t.Fatal("expected mismatch")
	}
	if diag.MismatchPos == nil || *diag.MismatchPos != 6 {
		t.Fatalf("MismatchPos = %v, want 6", diag.MismatchPos)
	}
}

func TestPreviewBounded(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.out", []byte(strings.Repeat("x", 1000)))

	got, err := Preview(path, 200)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(got) != 200 {
		t.Fatalf("preview length = %d, want 200", len(got))
	}
}

func TestLossyUTF8(t *testing.T) {
	got := LossyUTF8([]byte{'o', 'k', 0xff, 0xfe})
	if !strings.HasPrefix(got, "ok") {
		t.Fatalf("lossy conversion lost valid prefix: %q", got)
	}
	if !strings.Contains(got, "�") {
		t.Fatalf("invalid bytes not replaced: %q", got)
	}
}

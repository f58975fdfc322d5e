package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appErr "intcode/pkg/errors"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"two-sum", "two-sum"},
		{"Two Sum!", "Two_Sum_"},
		{"a/b\\c", "a_b_c"},
		{"..", ".."},
		{"", "unknown"},
		{"///", "___"},
	}
	for _, tt := range tests {
		if got := SanitizeKey(tt.in); got != tt.want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolveStaysUnderRoot(t *testing.T) {
	store := newTestStore(t)

	abs, err := store.Resolve("two-sum/1.in")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(abs, store.Root()+string(filepath.Separator)) {
		t.Fatalf("resolved path %q escapes root %q", abs, store.Root())
	}

	for _, bad := range []string{"../evil", "a/../../evil", "/etc/passwd", ""} {
		if _, err := store.Resolve(bad); err == nil {
			t.Errorf("Resolve(%q) succeeded, want error", bad)
		}
	}
}

func TestSaveSingleRecordsSizeAndDigest(t *testing.T) {
	store := newTestStore(t)
	in := "4\n2 7 11 15\n9\n"
	out := "0 1\n"

	meta, err := store.SaveSingle(context.Background(), "two-sum", 1,
		strings.NewReader(in), strings.NewReader(out))
	if err != nil {
		t.Fatalf("SaveSingle: %v", err)
	}
	if meta.CaseNo != 1 || meta.InPath != filepath.Join("two-sum", "1.in") {
		t.Fatalf("meta = %+v", meta)
	}

	checkSide := func(rel string, wantContent string, wantSize int64, wantSHA string) {
		t.Helper()
		abs, err := store.Resolve(rel)
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			t.Fatalf("read %s: %v", rel, err)
		}
		if string(data) != wantContent {
			t.Fatalf("%s content = %q", rel, data)
		}
		if int64(len(data)) != wantSize {
			t.Fatalf("%s size = %d, recorded %d", rel, len(data), wantSize)
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != wantSHA {
			t.Fatalf("%s sha mismatch", rel)
		}
	}
	checkSide(meta.InPath, in, meta.InSizeBytes, meta.InSHA256)
	checkSide(meta.OutPath, out, meta.OutSizeBytes, meta.OutSHA256)

	if err := store.VerifyCase(meta); err != nil {
		t.Fatalf("VerifyCase: %v", err)
	}
}

func TestSaveSingleRejectsBadCaseNo(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveSingle(context.Background(), "p", 0,
		strings.NewReader("a"), strings.NewReader("b"))
	if !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("error = %v, want ValidationFailed", err)
	}
}

func TestReplaceRenameOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	meta, err := store.SaveSingle(ctx, "p", 1, strings.NewReader("in1"), strings.NewReader("out1"))
	if err != nil {
		t.Fatalf("SaveSingle: %v", err)
	}

	moved, err := store.Replace(ctx, ReplaceRequest{ProblemKey: "p", Existing: meta, NewCaseNo: 5})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if moved.CaseNo != 5 || moved.InPath != filepath.Join("p", "5.in") {
		t.Fatalf("meta = %+v", moved)
	}
	// Contents and integrity metadata survive the rename.
	if moved.InSHA256 != meta.InSHA256 || moved.OutSizeBytes != meta.OutSizeBytes {
		t.Fatalf("metadata changed on rename: %+v vs %+v", moved, meta)
	}
	if err := store.VerifyCase(moved); err != nil {
		t.Fatalf("VerifyCase after rename: %v", err)
	}
	oldAbs, _ := store.Resolve(meta.InPath)
	if _, err := os.Stat(oldAbs); !os.IsNotExist(err) {
		t.Fatalf("old file still present: %v", err)
	}
}

func TestReplaceSameCaseNoIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	meta, err := store.SaveSingle(ctx, "p", 1, strings.NewReader("in1"), strings.NewReader("out1"))
	if err != nil {
		t.Fatalf("SaveSingle: %v", err)
	}

	same, err := store.Replace(ctx, ReplaceRequest{ProblemKey: "p", Existing: meta})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if same != meta {
		t.Fatalf("no-op replace changed metadata: %+v vs %+v", same, meta)
	}
	abs, _ := store.Resolve(meta.InPath)
	data, err := os.ReadFile(abs)
	if err != nil || string(data) != "in1" {
		t.Fatalf("content changed: %q %v", data, err)
	}
}

func TestReplaceOneSide(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	meta, err := store.SaveSingle(ctx, "p", 1, strings.NewReader("in1"), strings.NewReader("out1"))
	if err != nil {
		t.Fatalf("SaveSingle: %v", err)
	}

	updated, err := store.Replace(ctx, ReplaceRequest{
		ProblemKey: "p", Existing: meta, Out: strings.NewReader("out-v2"),
	})
	if err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if updated.InSHA256 != meta.InSHA256 {
		t.Fatal("input side metadata should be untouched")
	}
	if updated.OutSizeBytes != int64(len("out-v2")) || updated.OutSHA256 == meta.OutSHA256 {
		t.Fatalf("output side not replaced: %+v", updated)
	}
	if err := store.VerifyCase(updated); err != nil {
		t.Fatalf("VerifyCase: %v", err)
	}
}

func TestVerifyCaseDetectsTampering(t *testing.T) {
	store := newTestStore(t)
	meta, err := store.SaveSingle(context.Background(), "p", 1,
		strings.NewReader("in1"), strings.NewReader("out1"))
	if err != nil {
		t.Fatalf("SaveSingle: %v", err)
	}
	abs, _ := store.Resolve(meta.InPath)
	if err := os.WriteFile(abs, []byte("IN1"), 0644); err != nil {
		t.Fatalf("tamper: %v", err)
	}
	if err := store.VerifyCase(meta); !appErr.Is(err, appErr.IntegrityError) {
		t.Fatalf("error = %v, want IntegrityError", err)
	}
}

func TestDeleteBestEffort(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	meta, err := store.SaveSingle(ctx, "p", 1, strings.NewReader("a"), strings.NewReader("b"))
	if err != nil {
		t.Fatalf("SaveSingle: %v", err)
	}
	// Deleting existing, missing and unresolvable paths never panics or errors.
	store.Delete(ctx, meta.InPath, meta.OutPath, "p/404.in", "../escape", "")
	abs, _ := store.Resolve(meta.InPath)
	if _, err := os.Stat(abs); !os.IsNotExist(err) {
		t.Fatalf("file survived delete: %v", err)
	}
}

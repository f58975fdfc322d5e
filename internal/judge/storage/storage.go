// Package storage owns the on-disk test-data layout under a single root:
// <root>/<sanitized-problem-key>/<case_no>.in and .out. All paths handed out
// or accepted are relative to the root and must resolve inside it.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	appErr "intcode/pkg/errors"
	"intcode/pkg/utils/logger"
)

const chunkSize = 64 * 1024

const defaultMaxExtractBytes = 200 * 1024 * 1024

// Store manages test-case files under a storage root.
type Store struct {
	root            string
	maxExtractBytes int64
}

// Option customizes a Store.
type Option func(*Store)

// WithMaxExtractBytes caps the cumulative uncompressed size of one archive import.
func WithMaxExtractBytes(n int64) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxExtractBytes = n
		}
	}
}

// NewStore creates the storage root if needed and returns a Store.
func NewStore(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, appErr.ValidationError("storage_root", "required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidPath, "resolve storage root failed")
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageIoError, "create storage root failed")
	}
	s := &Store{root: abs, maxExtractBytes: defaultMaxExtractBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute storage root.
func (s *Store) Root() string {
	return s.root
}

// CaseMeta is the integrity metadata returned by every write.
type CaseMeta struct {
	CaseNo       int    `json:"case_no"`
	InPath       string `json:"in_path"`
	OutPath      string `json:"out_path"`
	InSizeBytes  int64  `json:"in_size_bytes"`
	OutSizeBytes int64  `json:"out_size_bytes"`
	InSHA256     string `json:"in_sha256"`
	OutSHA256    string `json:"out_sha256"`
}

// SanitizeKey maps an arbitrary problem key onto [A-Za-z0-9._-]. Every other
// byte becomes '_'; an empty result becomes "unknown".
func SanitizeKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// Resolve joins a stored relative path under the root and rejects anything
// that escapes it.
func (s *Store) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", appErr.ValidationError("path", "required")
	}
	if filepath.IsAbs(rel) {
		return "", appErr.Newf(appErr.InvalidPath, "absolute path not allowed: %s", rel)
	}
	full := filepath.Join(s.root, filepath.Clean(rel))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.InvalidPath, "path escapes storage root: %s", rel)
	}
	return full, nil
}

// CasePaths returns the relative in/out paths for a case.
func (s *Store) CasePaths(problemKey string, caseNo int) (string, string) {
	dir := SanitizeKey(problemKey)
	return filepath.Join(dir, fmt.Sprintf("%d.in", caseNo)),
		filepath.Join(dir, fmt.Sprintf("%d.out", caseNo))
}

// SaveSingle streams one input/output pair to disk and returns its metadata.
// On any write failure both partial files are removed before the error is
// surfaced.
func (s *Store) SaveSingle(ctx context.Context, problemKey string, caseNo int, in, out io.Reader) (CaseMeta, error) {
	if caseNo < 1 {
		return CaseMeta{}, appErr.ValidationError("case_no", "must be >= 1")
	}
	if in == nil || out == nil {
		return CaseMeta{}, appErr.ValidationError("streams", "required")
	}
	inRel, outRel := s.CasePaths(problemKey, caseNo)
	inAbs := filepath.Join(s.root, inRel)
	outAbs := filepath.Join(s.root, outRel)
	if err := os.MkdirAll(filepath.Dir(inAbs), 0755); err != nil {
		return CaseMeta{}, appErr.Wrapf(err, appErr.StorageIoError, "create problem dir failed")
	}

	inSize, inSHA, err := writeStream(in, inAbs)
	if err == nil {
		var outSize int64
		var outSHA string
		outSize, outSHA, err = writeStream(out, outAbs)
		if err == nil {
			return CaseMeta{
				CaseNo:       caseNo,
				InPath:       inRel,
				OutPath:      outRel,
				InSizeBytes:  inSize,
				OutSizeBytes: outSize,
				InSHA256:     inSHA,
				OutSHA256:    outSHA,
			}, nil
		}
	}
	logger.Error(ctx, "write testcase failed, cleaning partial files",
		zap.String("problem_key", problemKey), zap.Int("case_no", caseNo), zap.Error(err))
	s.Delete(ctx, inRel, outRel)
	return CaseMeta{}, appErr.Wrapf(err, appErr.StorageIoError, "save testcase %d failed", caseNo)
}

// ReplaceRequest describes a test-case replacement. A nil stream keeps the
// existing file; NewCaseNo 0 keeps the existing number. With both streams nil
// and a new case number set, the on-disk files are renamed.
type ReplaceRequest struct {
	ProblemKey string
	Existing   CaseMeta
	NewCaseNo  int
	In         io.Reader
	Out        io.Reader
}

// Replace renames and/or rewrites the files of an existing case and returns
// the refreshed metadata. Metadata for an untouched side is preserved.
func (s *Store) Replace(ctx context.Context, req ReplaceRequest) (CaseMeta, error) {
	caseNo := req.Existing.CaseNo
	if req.NewCaseNo > 0 {
		caseNo = req.NewCaseNo
	}
	inRel, outRel := s.CasePaths(req.ProblemKey, caseNo)
	inAbs := filepath.Join(s.root, inRel)
	outAbs := filepath.Join(s.root, outRel)
	if err := os.MkdirAll(filepath.Dir(inAbs), 0755); err != nil {
		return CaseMeta{}, appErr.Wrapf(err, appErr.StorageIoError, "create problem dir failed")
	}

	meta := req.Existing
	meta.CaseNo = caseNo

	// Rename-only path: moving the untouched side along with the number.
	renamed := req.NewCaseNo > 0 && req.NewCaseNo != req.Existing.CaseNo
	if renamed && req.In == nil && req.Existing.InPath != "" {
		if err := s.renameCaseFile(req.Existing.InPath, inAbs); err != nil {
			return CaseMeta{}, err
		}
		meta.InPath = inRel
	}
	if renamed && req.Out == nil && req.Existing.OutPath != "" {
		if err := s.renameCaseFile(req.Existing.OutPath, outAbs); err != nil {
			return CaseMeta{}, err
		}
		meta.OutPath = outRel
	}

	if req.In != nil {
		size, sha, err := writeStream(req.In, inAbs)
		if err != nil {
			s.Delete(ctx, inRel)
			return CaseMeta{}, appErr.Wrapf(err, appErr.StorageIoError, "replace input failed")
		}
		meta.InPath, meta.InSizeBytes, meta.InSHA256 = inRel, size, sha
	}
	if req.Out != nil {
		size, sha, err := writeStream(req.Out, outAbs)
		if err != nil {
			s.Delete(ctx, outRel)
			return CaseMeta{}, appErr.Wrapf(err, appErr.StorageIoError, "replace output failed")
		}
		meta.OutPath, meta.OutSizeBytes, meta.OutSHA256 = outRel, size, sha
	}
	return meta, nil
}

func (s *Store) renameCaseFile(oldRel string, newAbs string) error {
	oldAbs, err := s.Resolve(oldRel)
	if err != nil {
		return err
	}
	if oldAbs == newAbs {
		return nil
	}
	if _, err := os.Stat(oldAbs); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return appErr.Wrapf(err, appErr.StorageIoError, "stat %s failed", oldRel)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return appErr.Wrapf(err, appErr.StorageIoError, "rename %s failed", oldRel)
	}
	return nil
}

// Delete removes the given relative paths best-effort. Failures are logged
// and never returned.
func (s *Store) Delete(ctx context.Context, rels ...string) {
	for _, rel := range rels {
		if rel == "" {
			continue
		}
		abs, err := s.Resolve(rel)
		if err != nil {
			logger.Warn(ctx, "skip delete of unresolvable path", zap.String("path", rel), zap.Error(err))
			continue
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			logger.Warn(ctx, "delete testcase file failed", zap.String("path", rel), zap.Error(err))
		}
	}
}

// VerifyCase re-checks recorded size and digest for both sides of a case
// against the files on disk. Zero/empty recorded values are not checked.
func (s *Store) VerifyCase(tc CaseMeta) error {
	if err := s.verifySide(tc.InPath, tc.InSizeBytes, tc.InSHA256); err != nil {
		return err
	}
	return s.verifySide(tc.OutPath, tc.OutSizeBytes, tc.OutSHA256)
}

func (s *Store) verifySide(rel string, size int64, sha string) error {
	if rel == "" {
		return nil
	}
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return appErr.Wrapf(err, appErr.IntegrityError, "missing file %s", rel)
	}
	if size > 0 && info.Size() != size {
		return appErr.Newf(appErr.IntegrityError, "size mismatch for %s: recorded %d, on disk %d", rel, size, info.Size())
	}
	if sha != "" {
		actual, err := fileSHA256(abs)
		if err != nil {
			return appErr.Wrapf(err, appErr.StorageIoError, "hash %s failed", rel)
		}
		if !strings.EqualFold(actual, sha) {
			return appErr.Newf(appErr.IntegrityError, "sha256 mismatch for %s", rel)
		}
	}
	return nil
}

// writeStream copies src to target in 64 KiB chunks through a running
// SHA-256 and returns (size, hex digest).
func writeStream(src io.Reader, target string) (int64, string, error) {
	file, err := os.Create(target)
	if err != nil {
		return 0, "", err
	}
	hasher := sha256.New()
	size, err := io.CopyBuffer(io.MultiWriter(file, hasher), src, make([]byte, chunkSize))
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", err
	}
	return size, hex.EncodeToString(hasher.Sum(nil)), nil
}

func fileSHA256(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hasher := sha256.New()
	if _, err := io.CopyBuffer(hasher, file, make([]byte, chunkSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

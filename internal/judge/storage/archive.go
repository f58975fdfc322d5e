package storage

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	appErr "intcode/pkg/errors"
	"intcode/pkg/utils/logger"
)

// ImportStrategy controls how an archive import treats cases that already
// exist on disk.
type ImportStrategy string

const (
	StrategySkip      ImportStrategy = "skip"
	StrategyOverwrite ImportStrategy = "overwrite"
)

// FailedCase records why one case from an archive was not imported.
type FailedCase struct {
	CaseNo int    `json:"case_no"`
	Reason string `json:"reason"`
}

// ImportResult lists the cases written and the ones rejected per-entry.
type ImportResult struct {
	Imported []CaseMeta   `json:"imported"`
	Failed   []FailedCase `json:"failed"`
}

// ImportArchive ingests a zip archive of <case_no>.in / <case_no>.out entries
// (matched by basename, case-insensitive suffix). Unsafe entry names and an
// oversized archive reject the whole call; per-case write failures are
// recorded in Failed and do not stop the remaining cases.
func (s *Store) ImportArchive(ctx context.Context, problemKey string, r io.ReaderAt, size int64, strategy ImportStrategy) (ImportResult, error) {
	switch strategy {
	case StrategySkip, StrategyOverwrite:
	case "":
		strategy = StrategyOverwrite
	default:
		return ImportResult{}, appErr.Newf(appErr.InvalidParams, "unknown import strategy: %s", strategy)
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return ImportResult{}, appErr.Wrapf(err, appErr.MalformedArchive, "open archive failed")
	}

	type pair struct {
		in  *zip.File
		out *zip.File
		dup bool
	}
	pairs := make(map[int]*pair)
	var totalUncompressed int64

	for _, f := range zr.File {
		if err := validateEntryName(f.Name); err != nil {
			return ImportResult{}, err
		}
		totalUncompressed += int64(f.UncompressedSize64)
		if totalUncompressed > s.maxExtractBytes {
			return ImportResult{}, appErr.Newf(appErr.ArchiveTooLarge,
				"archive exceeds extraction limit of %d bytes", s.maxExtractBytes)
		}
		if f.FileInfo().IsDir() {
			continue
		}
		caseNo, side, ok := parseCaseName(path.Base(f.Name))
		if !ok {
			continue
		}
		p := pairs[caseNo]
		if p == nil {
			p = &pair{}
			pairs[caseNo] = p
		}
		switch side {
		case ".in":
			if p.in != nil {
				p.dup = true
			}
			p.in = f
		case ".out":
			if p.out != nil {
				p.dup = true
			}
			p.out = f
		}
	}

	caseNos := make([]int, 0, len(pairs))
	for n := range pairs {
		caseNos = append(caseNos, n)
	}
	sort.Ints(caseNos)

	var result ImportResult
	for _, caseNo := range caseNos {
		p := pairs[caseNo]
		if p.dup {
			result.Failed = append(result.Failed, FailedCase{CaseNo: caseNo, Reason: "duplicate"})
			continue
		}
		if p.in == nil || p.out == nil {
			result.Failed = append(result.Failed, FailedCase{CaseNo: caseNo, Reason: "missing pair"})
			continue
		}
		inRel, outRel := s.CasePaths(problemKey, caseNo)
		if strategy == StrategySkip && s.caseExists(inRel, outRel) {
			continue
		}
		meta, err := s.importPair(ctx, problemKey, caseNo, p.in, p.out)
		if err != nil {
			logger.Error(ctx, "import archive case failed",
				zap.String("problem_key", problemKey), zap.Int("case_no", caseNo), zap.Error(err))
			result.Failed = append(result.Failed, FailedCase{CaseNo: caseNo, Reason: err.Error()})
			continue
		}
		result.Imported = append(result.Imported, meta)
	}
	return result, nil
}

func (s *Store) importPair(ctx context.Context, problemKey string, caseNo int, in, out *zip.File) (CaseMeta, error) {
	inSrc, err := in.Open()
	if err != nil {
		return CaseMeta{}, err
	}
	defer inSrc.Close()
	outSrc, err := out.Open()
	if err != nil {
		return CaseMeta{}, err
	}
	defer outSrc.Close()
	return s.SaveSingle(ctx, problemKey, caseNo, inSrc, outSrc)
}

func (s *Store) caseExists(rels ...string) bool {
	for _, rel := range rels {
		abs, err := s.Resolve(rel)
		if err != nil {
			return false
		}
		if _, err := os.Stat(abs); err != nil {
			return false
		}
	}
	return true
}

func validateEntryName(name string) error {
	if strings.Contains(name, "..") ||
		strings.HasPrefix(name, "/") || strings.HasPrefix(name, "\\") ||
		filepath.IsAbs(name) || (len(name) > 1 && name[1] == ':') {
		return appErr.Newf(appErr.InvalidPath, "unsafe archive entry: %s", name)
	}
	return nil
}

// parseCaseName matches "<int>.in" / "<int>.out" basenames, suffix
// case-insensitive. Anything else is ignored by the importer.
func parseCaseName(base string) (int, string, bool) {
	ext := strings.ToLower(path.Ext(base))
	if ext != ".in" && ext != ".out" {
		return 0, "", false
	}
	stem := base[:len(base)-len(path.Ext(base))]
	caseNo, err := strconv.Atoi(stem)
	if err != nil || caseNo < 1 {
		return 0, "", false
	}
	return caseNo, ext, true
}

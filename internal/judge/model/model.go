// Package model defines the data types shared by the judge core.
package model

import (
	"sort"
	"strconv"
)

// Verdict is the status of a case or a whole submission.
type Verdict string

const (
	VerdictAC       Verdict = "AC"
	VerdictWA       Verdict = "WA"
	VerdictTLE      Verdict = "TLE"
	VerdictMLE      Verdict = "MLE"
	VerdictRE       Verdict = "RE"
	VerdictOLE      Verdict = "OLE"
	VerdictCE       Verdict = "CE"
	VerdictOK       Verdict = "OK"
	VerdictCustom   Verdict = "CUSTOM"
	VerdictNotFound Verdict = "NOT_FOUND"
)

// Difficulty is the problem difficulty classification.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Mode selects which cases a submission is judged against.
type Mode string

const (
	ModeSubmit    Mode = "submit"
	ModeRunSample Mode = "run_sample"
	ModeCustom    Mode = "custom"
)

// Supported language identifiers.
const (
	LangCpp17   = "cpp17"
	LangPython3 = "python3"
)

// Problem is the judge-side view of a problem. It is owned by admin flows;
// the judge only reads it.
type Problem struct {
	ID            int64
	Slug          string
	Title         string
	Difficulty    Difficulty
	Tags          []string
	IsSPJ         bool
	CheckerSource string
	TestCases     []TestCase
}

// Key returns the storage key for the problem: slug when present,
// otherwise the numeric id.
func (p *Problem) Key() string {
	if p.Slug != "" {
		return p.Slug
	}
	return strconv.FormatInt(p.ID, 10)
}

// TestCase is one (input, expected output) pair. Paths are relative to the
// storage root; sizes and digests are recorded at ingestion time.
type TestCase struct {
	ID           int64
	ProblemID    int64
	CaseNo       int
	InPath       string
	OutPath      string
	InSizeBytes  int64
	OutSizeBytes int64
	InSHA256     string
	OutSHA256    string
	IsSample     bool
	ScoreWeight  int
}

// SortCases orders cases by ascending case_no, ties broken by id.
func SortCases(cases []TestCase) {
	sort.SliceStable(cases, func(i, j int) bool {
		if cases[i].CaseNo != cases[j].CaseNo {
			return cases[i].CaseNo < cases[j].CaseNo
		}
		return cases[i].ID < cases[j].ID
	})
}

// SubmissionRequest is one atomic judging request.
type SubmissionRequest struct {
	ProblemID   int64
	Language    string
	Code        string
	Mode        Mode
	CustomInput string
	UserID      int64
}

// CaseResult carries per-case diagnostics. The JSON shape is what gets
// serialized into the submission detail column.
type CaseResult struct {
	CaseID          int64   `json:"case_id"`
	Status          Verdict `json:"status"`
	InputPreview    string  `json:"input_preview,omitempty"`
	ExpectedPreview string  `json:"expected_preview,omitempty"`
	OutputPreview   string  `json:"output_preview,omitempty"`
	RuntimeMS       int64   `json:"runtime_ms"`
	Error           string  `json:"error,omitempty"`
	FullOutput      string  `json:"full_output,omitempty"`
}

// SubmissionResult is the aggregated outcome of one judging request.
type SubmissionResult struct {
	Status       Verdict      `json:"status"`
	RuntimeMS    int64        `json:"runtime_ms"`
	CompileError string       `json:"compile_error,omitempty"`
	RuntimeError string       `json:"runtime_error,omitempty"`
	Cases        []CaseResult `json:"cases"`
	SubmissionID int64        `json:"submission_id,omitempty"`
}

// SubmissionRecord is what gets persisted for a submit-mode run.
type SubmissionRecord struct {
	ProblemID  int64
	UserID     int64
	Language   string
	Code       string
	Status     Verdict
	Score      int
	RuntimeMS  int64
	DetailJSON string
}

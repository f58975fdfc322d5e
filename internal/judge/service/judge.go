// Package service drives the judging pipeline: compile once, run every
// selected case under the sandbox, compare or delegate to a checker, and
// aggregate the per-case verdicts into one submission result.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"intcode/internal/judge/checker"
	"intcode/internal/judge/compare"
	"intcode/internal/judge/lang"
	"intcode/internal/judge/model"
	"intcode/internal/judge/sandbox"
	"intcode/internal/judge/storage"
	appErr "intcode/pkg/errors"
	"intcode/pkg/utils/logger"
)

const (
	previewBytes      = 200
	customOutputBytes = 1024

	outputLimitMarker = "output limit exceeded"
)

// ProblemStore loads problems with their test cases.
type ProblemStore interface {
	GetProblem(ctx context.Context, problemID int64) (*model.Problem, error)
}

// SubmissionSink persists one judged submission and returns its id.
// Durability and transactionality are the sink's concern.
type SubmissionSink interface {
	SaveSubmission(ctx context.Context, rec model.SubmissionRecord) (int64, error)
}

// Config carries the judging limits. Zero values fall back to defaults.
type Config struct {
	WorkDir           string
	CaseTimeoutSec    int
	CompileTimeoutSec int
	// OutputLimitBytes caps in-memory stdout for custom runs and compiles.
	OutputLimitBytes int64
	// MaxOutputBytes caps streamed per-case stdout; beyond it the case is OLE.
	MaxOutputBytes int64
	MemoryLimitMB  int64
	// Concurrency caps submissions judged in parallel.
	Concurrency        int
	CheckerTimeoutSec  int
	CppCompileTemplate string
	PythonBin          string
	SeccompProfile     string
}

func (c Config) withDefaults() Config {
	if c.CaseTimeoutSec <= 0 {
		c.CaseTimeoutSec = 2
	}
	if c.CompileTimeoutSec <= 0 {
		c.CompileTimeoutSec = 15
	}
	if c.OutputLimitBytes <= 0 {
		c.OutputLimitBytes = 20000
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = 16 * 1024 * 1024
	}
	if c.MemoryLimitMB <= 0 {
		c.MemoryLimitMB = 256
	}
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.CheckerTimeoutSec <= 0 {
		c.CheckerTimeoutSec = 2
	}
	return c
}

// Service is the judge orchestrator.
type Service struct {
	cfg      Config
	runner   sandbox.Runner
	store    *storage.Store
	problems ProblemStore
	sink     SubmissionSink
	sem      chan struct{}
}

// New wires the orchestrator. sink may be nil when nothing should persist.
func New(cfg Config, runner sandbox.Runner, store *storage.Store, problems ProblemStore, sink SubmissionSink) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		runner:   runner,
		store:    store,
		problems: problems,
		sink:     sink,
		sem:      make(chan struct{}, cfg.Concurrency),
	}
}

// Judge evaluates one submission end to end. Candidate misbehavior lands in
// the result; only infrastructure failures and cancellation return an error.
func (s *Service) Judge(ctx context.Context, req model.SubmissionRequest) (model.SubmissionResult, error) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return model.SubmissionResult{}, appErr.Wrapf(ctx.Err(), appErr.Timeout, "judge queue wait canceled")
	}

	adapter, err := lang.ForLanguage(req.Language, lang.Config{
		CompileTimeoutSec:  s.cfg.CompileTimeoutSec,
		CppCompileTemplate: s.cfg.CppCompileTemplate,
		PythonBin:          s.cfg.PythonBin,
	})
	if err != nil {
		return model.SubmissionResult{}, err
	}

	problem, err := s.problems.GetProblem(ctx, req.ProblemID)
	if err != nil {
		if appErr.Is(err, appErr.ProblemNotFound) || appErr.Is(err, appErr.RecordNotFound) {
			return model.SubmissionResult{Status: model.VerdictNotFound}, nil
		}
		return model.SubmissionResult{}, err
	}

	scratch := filepath.Join(s.cfg.WorkDir, uuid.NewString())
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return model.SubmissionResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create scratch dir failed")
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			logger.Warn(ctx, "remove scratch dir failed", zap.String("dir", scratch), zap.Error(err))
		}
	}()

	compiled, err := adapter.Prepare(ctx, s.runner, scratch, req.Code)
	if err != nil {
		return model.SubmissionResult{}, err
	}
	if !compiled.OK {
		return model.SubmissionResult{Status: model.VerdictCE, CompileError: compiled.Message}, nil
	}

	if req.Mode == model.ModeCustom {
		return s.judgeCustom(ctx, adapter, scratch, req)
	}

	cases := selectCases(problem, req.Mode)
	var chk checker.Checker
	if problem.IsSPJ {
		chk, err = checker.New(problem.CheckerSource, s.runner, checker.Config{
			TimeoutSec: s.cfg.CheckerTimeoutSec,
			PythonBin:  s.cfg.PythonBin,
		})
		if err != nil {
			// A malformed problem-authored checker must not take down the
			// judge call; every case degrades to WA with the diagnostic.
			logger.Error(ctx, "checker construction failed",
				zap.Int64("problem_id", problem.ID), zap.Error(err))
			chk = failedChecker{err: err}
		}
	}

	result := model.SubmissionResult{Status: model.VerdictAC}
	for _, tc := range cases {
		if ctx.Err() != nil {
			return model.SubmissionResult{}, appErr.Wrapf(ctx.Err(), appErr.Timeout, "judge canceled")
		}
		cr := s.judgeCase(ctx, adapter, chk, scratch, tc)
		result.Cases = append(result.Cases, cr)
		if cr.RuntimeMS > result.RuntimeMS {
			result.RuntimeMS = cr.RuntimeMS
		}
	}
	result.Status = aggregate(result.Cases)
	result.RuntimeError = runtimeErrorSummary(result.Cases)

	if req.Mode == model.ModeSubmit {
		if ctx.Err() != nil {
			return model.SubmissionResult{}, appErr.Wrapf(ctx.Err(), appErr.Timeout, "judge canceled")
		}
		id, err := s.persist(ctx, req, result)
		if err != nil {
			return model.SubmissionResult{}, err
		}
		result.SubmissionID = id
	}
	return result, nil
}

func selectCases(problem *model.Problem, mode model.Mode) []model.TestCase {
	cases := make([]model.TestCase, 0, len(problem.TestCases))
	for _, tc := range problem.TestCases {
		if mode == model.ModeRunSample && !tc.IsSample {
			continue
		}
		cases = append(cases, tc)
	}
	model.SortCases(cases)
	return cases
}

// judgeCustom runs the candidate once against the submitted input with
// captured stdio. Nothing is persisted.
func (s *Service) judgeCustom(ctx context.Context, adapter lang.Adapter, scratch string, req model.SubmissionRequest) (model.SubmissionResult, error) {
	res, err := s.runner.Run(ctx, sandbox.Spec{
		WorkDir:        scratch,
		Cmd:            adapter.RunCmd(),
		Stdin:          req.CustomInput,
		TimeoutSec:     s.cfg.CaseTimeoutSec,
		MemoryMB:       s.cfg.MemoryLimitMB,
		MaxOutputBytes: s.cfg.OutputLimitBytes,
		SeccompProfile: s.cfg.SeccompProfile,
	})
	if err != nil {
		return model.SubmissionResult{}, err
	}

	status, errMsg := classifyRun(res)
	if status == model.VerdictAC {
		status = model.VerdictOK
	}
	if res.StdoutTruncated {
		if errMsg != "" {
			errMsg += "; "
		}
		errMsg += outputLimitMarker
	}
	cr := model.CaseResult{
		Status:        status,
		OutputPreview: truncateString(res.Stdout, previewBytes),
		FullOutput:    truncateString(res.Stdout, customOutputBytes),
		RuntimeMS:     res.WallTimeMS,
		Error:         errMsg,
	}
	return model.SubmissionResult{
		Status:    model.VerdictCustom,
		RuntimeMS: cr.RuntimeMS,
		Cases:     []model.CaseResult{cr},
	}, nil
}

// judgeCase runs one graded case with file-streamed stdio. Any failure is a
// verdict on the case, never an abort of the remaining cases.
func (s *Service) judgeCase(ctx context.Context, adapter lang.Adapter, chk checker.Checker, scratch string, tc model.TestCase) model.CaseResult {
	cr := model.CaseResult{CaseID: tc.ID, Status: model.VerdictRE}

	inAbs, outAbs, err := s.resolveCaseFiles(tc)
	if err != nil {
		cr.Error = "missing testdata"
		logger.Error(ctx, "testdata unavailable",
			zap.Int64("case_id", tc.ID), zap.Int("case_no", tc.CaseNo), zap.Error(err))
		return cr
	}
	cr.InputPreview, _ = compare.Preview(inAbs, previewBytes)

	stdoutPath := filepath.Join(scratch, fmt.Sprintf("case_%d.out", tc.CaseNo))
	defer os.Remove(stdoutPath)

	res, err := s.runner.RunStream(ctx, sandbox.Spec{
		WorkDir:    scratch,
		Cmd:        adapter.RunCmd(),
		StdinPath:  inAbs,
		StdoutPath: stdoutPath,
		TimeoutSec: s.cfg.CaseTimeoutSec,
		MemoryMB:   s.cfg.MemoryLimitMB,
		// The rlimit sits above the OLE threshold so an oversized run still
		// terminates normally and gets classified by file size.
		FSizeBytes:     s.cfg.MaxOutputBytes + 64*1024,
		SeccompProfile: s.cfg.SeccompProfile,
	})
	if err != nil {
		cr.Error = err.Error()
		return cr
	}
	cr.RuntimeMS = res.WallTimeMS
	cr.OutputPreview, _ = compare.Preview(stdoutPath, previewBytes)

	cr.Status, cr.Error = classifyRun(res)
	if cr.Status != model.VerdictAC {
		return cr
	}

	if info, err := os.Stat(stdoutPath); err == nil && info.Size() > s.cfg.MaxOutputBytes {
		cr.Status = model.VerdictOLE
		cr.Error = outputLimitMarker
		return cr
	}

	if chk != nil {
		outcome, err := chk.Check(ctx, checker.Input{
			InputPath:    inAbs,
			ExpectedPath: outAbs,
			ActualPath:   stdoutPath,
		})
		if err != nil {
			cr.Status = model.VerdictWA
			cr.Error = err.Error()
			return cr
		}
		if !outcome.Accepted {
			cr.Status = model.VerdictWA
			cr.Error = outcome.Message
			return cr
		}
		cr.Status = model.VerdictAC
		return cr
	}

	equal, diag, err := compare.Files(outAbs, stdoutPath)
	if err != nil {
		cr.Status = model.VerdictRE
		cr.Error = err.Error()
		return cr
	}
	cr.ExpectedPreview = diag.ExpectedPreview
	cr.OutputPreview = diag.ActualPreview
	if !equal {
		cr.Status = model.VerdictWA
		if diag.MismatchPos != nil {
			cr.Error = fmt.Sprintf("mismatch at offset %d", *diag.MismatchPos)
		}
		return cr
	}
	cr.Status = model.VerdictAC
	return cr
}

func (s *Service) resolveCaseFiles(tc model.TestCase) (string, string, error) {
	if tc.InPath == "" || tc.OutPath == "" {
		return "", "", appErr.New(appErr.MissingTestData)
	}
	inAbs, err := s.store.Resolve(tc.InPath)
	if err != nil {
		return "", "", err
	}
	outAbs, err := s.store.Resolve(tc.OutPath)
	if err != nil {
		return "", "", err
	}
	if _, err := os.Stat(inAbs); err != nil {
		return "", "", appErr.Wrap(err, appErr.MissingTestData)
	}
	if _, err := os.Stat(outAbs); err != nil {
		return "", "", appErr.Wrap(err, appErr.MissingTestData)
	}
	return inAbs, outAbs, nil
}

// classifyRun maps a sandbox result onto a verdict. AC here means "ran
// cleanly"; output correctness is decided afterwards.
func classifyRun(res sandbox.Result) (model.Verdict, string) {
	stderr := strings.TrimSpace(res.Stderr)
	if res.TimedOut {
		return model.VerdictTLE, stderr
	}
	if res.FileSizeExceeded {
		return model.VerdictOLE, outputLimitMarker
	}
	if res.ExitCode != 0 || res.Signal != "" {
		if hasMemorySignature(stderr) {
			return model.VerdictMLE, stderr
		}
		if stderr == "" && res.Signal != "" {
			stderr = res.Signal
		}
		return model.VerdictRE, stderr
	}
	return model.VerdictAC, ""
}

func hasMemorySignature(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "memory") || strings.Contains(lower, "cannot allocate memory")
}

// aggregate folds per-case verdicts into the submission verdict using the
// fixed severity order.
func aggregate(cases []model.CaseResult) model.Verdict {
	seen := make(map[model.Verdict]bool, len(cases))
	for _, cr := range cases {
		seen[cr.Status] = true
	}
	for _, v := range []model.Verdict{model.VerdictRE, model.VerdictMLE, model.VerdictOLE, model.VerdictTLE, model.VerdictWA} {
		if seen[v] {
			return v
		}
	}
	return model.VerdictAC
}

func runtimeErrorSummary(cases []model.CaseResult) string {
	for _, cr := range cases {
		if cr.Status == model.VerdictAC || cr.Status == model.VerdictWA {
			continue
		}
		if cr.Error != "" {
			return cr.Error
		}
		return string(cr.Status)
	}
	return ""
}

func (s *Service) persist(ctx context.Context, req model.SubmissionRequest, result model.SubmissionResult) (int64, error) {
	if s.sink == nil {
		return 0, nil
	}
	detail, err := json.Marshal(result.Cases)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.JudgeSystemError, "encode case results failed")
	}
	score := 0
	if result.Status == model.VerdictAC {
		score = 100
	}
	id, err := s.sink.SaveSubmission(ctx, model.SubmissionRecord{
		ProblemID:  req.ProblemID,
		UserID:     req.UserID,
		Language:   req.Language,
		Code:       req.Code,
		Status:     result.Status,
		Score:      score,
		RuntimeMS:  result.RuntimeMS,
		DetailJSON: string(detail),
	})
	if err != nil {
		return 0, appErr.Wrap(err, appErr.DatabaseError)
	}
	return id, nil
}

// failedChecker rejects every case with its construction error.
type failedChecker struct {
	err error
}

func (c failedChecker) Check(context.Context, checker.Input) (checker.Outcome, error) {
	return checker.Outcome{}, c.err
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return compare.LossyUTF8([]byte(s))
	}
	return compare.LossyUTF8([]byte(s[:n]))
}

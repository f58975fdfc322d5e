// Package controller exposes the judge and test-data administration over
// HTTP. Handlers are thin: parse, delegate, respond.
package controller

import (
	"context"
	"mime/multipart"
	"strconv"

	"github.com/gin-gonic/gin"

	"intcode/internal/judge/model"
	"intcode/internal/judge/storage"
	appErr "intcode/pkg/errors"
	"intcode/pkg/utils/response"
)

// Judger runs one submission through the judging pipeline.
type Judger interface {
	Judge(ctx context.Context, req model.SubmissionRequest) (model.SubmissionResult, error)
}

// ProblemReader loads problems and invalidates their cached copies.
type ProblemReader interface {
	GetProblem(ctx context.Context, problemID int64) (*model.Problem, error)
	Invalidate(ctx context.Context, problemID int64) error
}

// TestCaseStore owns the test-case rows.
type TestCaseStore interface {
	Insert(ctx context.Context, tc model.TestCase) (int64, error)
	Upsert(ctx context.Context, tc model.TestCase) error
	Get(ctx context.Context, id int64) (*model.TestCase, error)
	Update(ctx context.Context, tc model.TestCase) error
	Delete(ctx context.Context, id int64) error
}

// Controller wires the HTTP surface to the judge core.
type Controller struct {
	judge    Judger
	problems ProblemReader
	cases    TestCaseStore
	store    *storage.Store
}

func New(judge Judger, problems ProblemReader, cases TestCaseStore, store *storage.Store) *Controller {
	return &Controller{judge: judge, problems: problems, cases: cases, store: store}
}

// Register mounts the routes on the router group.
func (ctl *Controller) Register(api *gin.RouterGroup) {
	api.POST("/judge", ctl.Judge)
	api.POST("/problems/:id/testcases", ctl.UploadTestCase)
	api.POST("/problems/:id/testcases/import", ctl.ImportArchive)
	api.PUT("/testcases/:id", ctl.ReplaceTestCase)
	api.DELETE("/testcases/:id", ctl.DeleteTestCase)
}

type judgeRequest struct {
	ProblemID   int64  `json:"problem_id" binding:"required"`
	Language    string `json:"language" binding:"required"`
	Code        string `json:"code" binding:"required"`
	Mode        string `json:"mode"`
	CustomInput string `json:"custom_input"`
	UserID      int64  `json:"user_id"`
}

// Judge handles POST /judge.
func (ctl *Controller) Judge(c *gin.Context) {
	var req judgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	mode := model.Mode(req.Mode)
	if mode == "" {
		mode = model.ModeSubmit
	}
	switch mode {
	case model.ModeSubmit, model.ModeRunSample, model.ModeCustom:
	default:
		response.BadRequest(c, "unknown mode: "+req.Mode)
		return
	}

	result, err := ctl.judge.Judge(c.Request.Context(), model.SubmissionRequest{
		ProblemID:   req.ProblemID,
		Language:    req.Language,
		Code:        req.Code,
		Mode:        mode,
		CustomInput: req.CustomInput,
		UserID:      req.UserID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

type testcaseResponse struct {
	ID   int64            `json:"id"`
	Meta storage.CaseMeta `json:"meta"`
}

// UploadTestCase handles POST /problems/:id/testcases with multipart fields
// "in", "out", "case_no", optional "is_sample" and "score_weight".
func (ctl *Controller) UploadTestCase(c *gin.Context) {
	problem, ok := ctl.problemFromPath(c)
	if !ok {
		return
	}
	caseNo, err := strconv.Atoi(c.PostForm("case_no"))
	if err != nil || caseNo < 1 {
		response.BadRequest(c, "case_no must be a positive integer")
		return
	}
	inFile, ok := ctl.openFormFile(c, "in")
	if !ok {
		return
	}
	defer inFile.Close()
	outFile, ok := ctl.openFormFile(c, "out")
	if !ok {
		return
	}
	defer outFile.Close()

	ctx := c.Request.Context()
	meta, err := ctl.store.SaveSingle(ctx, problem.Key(), caseNo, inFile, outFile)
	if err != nil {
		response.Error(c, err)
		return
	}

	tc := testCaseFromMeta(problem.ID, meta)
	tc.IsSample = c.PostForm("is_sample") == "true"
	if weight, err := strconv.Atoi(c.PostForm("score_weight")); err == nil && weight > 0 {
		tc.ScoreWeight = weight
	}
	id, err := ctl.cases.Insert(ctx, tc)
	if err != nil {
		ctl.store.Delete(ctx, meta.InPath, meta.OutPath)
		response.Error(c, err)
		return
	}
	_ = ctl.problems.Invalidate(ctx, problem.ID)
	response.Success(c, testcaseResponse{ID: id, Meta: meta})
}

// ImportArchive handles POST /problems/:id/testcases/import with multipart
// field "archive" and optional "strategy" (skip|overwrite).
func (ctl *Controller) ImportArchive(c *gin.Context) {
	problem, ok := ctl.problemFromPath(c)
	if !ok {
		return
	}
	header, err := c.FormFile("archive")
	if err != nil {
		response.BadRequest(c, "archive file is required")
		return
	}
	archive, err := header.Open()
	if err != nil {
		response.Error(c, appErr.Wrapf(err, appErr.StorageIoError, "open uploaded archive failed"))
		return
	}
	defer archive.Close()

	ctx := c.Request.Context()
	strategy := storage.ImportStrategy(c.DefaultPostForm("strategy", string(storage.StrategyOverwrite)))
	result, err := ctl.store.ImportArchive(ctx, problem.Key(), archive, header.Size, strategy)
	if err != nil {
		response.Error(c, err)
		return
	}
	for _, meta := range result.Imported {
		if err := ctl.cases.Upsert(ctx, testCaseFromMeta(problem.ID, meta)); err != nil {
			response.Error(c, err)
			return
		}
	}
	_ = ctl.problems.Invalidate(ctx, problem.ID)
	response.Success(c, result)
}

// ReplaceTestCase handles PUT /testcases/:id. All parts are optional: a new
// case number and either side's file; renaming alone moves the files.
func (ctl *Controller) ReplaceTestCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	tc, err := ctl.cases.Get(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	problem, err := ctl.problems.GetProblem(ctx, tc.ProblemID)
	if err != nil {
		response.Error(c, err)
		return
	}

	req := storage.ReplaceRequest{
		ProblemKey: problem.Key(),
		Existing: storage.CaseMeta{
			CaseNo:       tc.CaseNo,
			InPath:       tc.InPath,
			OutPath:      tc.OutPath,
			InSizeBytes:  tc.InSizeBytes,
			OutSizeBytes: tc.OutSizeBytes,
			InSHA256:     tc.InSHA256,
			OutSHA256:    tc.OutSHA256,
		},
	}
	if raw := c.PostForm("new_case_no"); raw != "" {
		newCaseNo, err := strconv.Atoi(raw)
		if err != nil || newCaseNo < 1 {
			response.BadRequest(c, "new_case_no must be a positive integer")
			return
		}
		req.NewCaseNo = newCaseNo
	}
	if file, opened := ctl.optionalFormFile(c, "in"); opened {
		defer file.Close()
		req.In = file
	}
	if file, opened := ctl.optionalFormFile(c, "out"); opened {
		defer file.Close()
		req.Out = file
	}

	meta, err := ctl.store.Replace(ctx, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	updated := testCaseFromMeta(tc.ProblemID, meta)
	updated.ID = tc.ID
	updated.IsSample = tc.IsSample
	updated.ScoreWeight = tc.ScoreWeight
	if err := ctl.cases.Update(ctx, updated); err != nil {
		response.Error(c, err)
		return
	}
	_ = ctl.problems.Invalidate(ctx, tc.ProblemID)
	response.Success(c, testcaseResponse{ID: tc.ID, Meta: meta})
}

// DeleteTestCase handles DELETE /testcases/:id. Files go first, best-effort,
// then the row.
func (ctl *Controller) DeleteTestCase(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	tc, err := ctl.cases.Get(ctx, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	ctl.store.Delete(ctx, tc.InPath, tc.OutPath)
	if err := ctl.cases.Delete(ctx, id); err != nil {
		response.Error(c, err)
		return
	}
	_ = ctl.problems.Invalidate(ctx, tc.ProblemID)
	response.Success(c, nil)
}

func (ctl *Controller) problemFromPath(c *gin.Context) (*model.Problem, bool) {
	id, ok := pathID(c)
	if !ok {
		return nil, false
	}
	problem, err := ctl.problems.GetProblem(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return problem, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		response.BadRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

func (ctl *Controller) openFormFile(c *gin.Context, field string) (multipart.File, bool) {
	file, opened := ctl.optionalFormFile(c, field)
	if !opened {
		response.BadRequest(c, field+" file is required")
		return nil, false
	}
	return file, true
}

func (ctl *Controller) optionalFormFile(c *gin.Context, field string) (multipart.File, bool) {
	header, err := c.FormFile(field)
	if err != nil {
		return nil, false
	}
	file, err := header.Open()
	if err != nil {
		return nil, false
	}
	return file, true
}

func testCaseFromMeta(problemID int64, meta storage.CaseMeta) model.TestCase {
	return model.TestCase{
		ProblemID:    problemID,
		CaseNo:       meta.CaseNo,
		InPath:       meta.InPath,
		OutPath:      meta.OutPath,
		InSizeBytes:  meta.InSizeBytes,
		OutSizeBytes: meta.OutSizeBytes,
		InSHA256:     meta.InSHA256,
		OutSHA256:    meta.OutSHA256,
		ScoreWeight:  1,
	}
}

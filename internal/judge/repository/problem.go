// Package repository implements the judge's persistence contracts on MySQL,
// with a read-through cache for problem metadata.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"intcode/internal/common/cache"
	"intcode/internal/common/db"
	"intcode/internal/judge/model"
	appErr "intcode/pkg/errors"
)

const (
	problemCacheTTL      = 10 * time.Minute
	problemCacheEmptyTTL = time.Minute
)

func problemCacheKey(id int64) string {
	return fmt.Sprintf("judge:problem:%d", id)
}

// ProblemRepo loads problems and their test cases. A nil cache disables the
// read-through layer.
type ProblemRepo struct {
	database db.Database
	cache    cache.Cache
}

func NewProblemRepo(database db.Database, c cache.Cache) *ProblemRepo {
	return &ProblemRepo{database: database, cache: c}
}

// GetProblem returns the problem with its cases in (case_no, id) order.
func (r *ProblemRepo) GetProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	if r.cache == nil {
		problem, err := r.loadProblem(ctx, problemID)
		if err != nil {
			return nil, err
		}
		if problem == nil {
			return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
		}
		return problem, nil
	}

	problem, err := cache.GetWithCached(ctx, r.cache, problemCacheKey(problemID),
		problemCacheTTL, problemCacheEmptyTTL,
		func(p *model.Problem) bool { return p == nil },
		func(p *model.Problem) string {
			data, _ := json.Marshal(p)
			return string(data)
		},
		func(s string) (*model.Problem, error) {
			var p model.Problem
			if err := json.Unmarshal([]byte(s), &p); err != nil {
				return nil, err
			}
			return &p, nil
		},
		func(ctx context.Context) (*model.Problem, error) {
			return r.loadProblem(ctx, problemID)
		},
	)
	if err != nil {
		return nil, err
	}
	if problem == nil {
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %d not found", problemID)
	}
	return problem, nil
}

// Invalidate drops the cached copy; admin flows call it after mutating a
// problem or its test cases.
func (r *ProblemRepo) Invalidate(ctx context.Context, problemID int64) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Del(ctx, problemCacheKey(problemID)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "invalidate problem %d failed", problemID)
	}
	return nil
}

// loadProblem returns (nil, nil) when the row does not exist so absence is
// cacheable.
func (r *ProblemRepo) loadProblem(ctx context.Context, problemID int64) (*model.Problem, error) {
	const query = `
		SELECT id, slug, title, difficulty, tags, is_spj, checker_source
		FROM problems
		WHERE id = ?`

	var p model.Problem
	var tagsJSON string
	err := r.database.QueryRow(ctx, query, problemID).Scan(
		&p.ID, &p.Slug, &p.Title, &p.Difficulty, &tagsJSON, &p.IsSPJ, &p.CheckerSource)
	if db.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query problem %d failed", problemID)
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "decode tags of problem %d failed", problemID)
		}
	}

	cases, err := r.loadTestCases(ctx, problemID)
	if err != nil {
		return nil, err
	}
	p.TestCases = cases
	return &p, nil
}

func (r *ProblemRepo) loadTestCases(ctx context.Context, problemID int64) ([]model.TestCase, error) {
	const query = `
		SELECT id, problem_id, case_no, in_path, out_path,
		       in_size_bytes, out_size_bytes, in_sha256, out_sha256,
		       is_sample, score_weight
		FROM problem_testcases
		WHERE problem_id = ?
		ORDER BY case_no ASC, id ASC`

	rows, err := r.database.Query(ctx, query, problemID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query testcases of problem %d failed", problemID)
	}
	defer rows.Close()

	var cases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.CaseNo, &tc.InPath, &tc.OutPath,
			&tc.InSizeBytes, &tc.OutSizeBytes, &tc.InSHA256, &tc.OutSHA256,
			&tc.IsSample, &tc.ScoreWeight); err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan testcase failed")
		}
		cases = append(cases, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate testcases failed")
	}
	return cases, nil
}

package repository

import (
	"context"

	"intcode/internal/common/db"
	"intcode/internal/judge/model"
	appErr "intcode/pkg/errors"
)

// TestCaseRepo owns the problem_testcases rows backing the storage files.
type TestCaseRepo struct {
	database db.Database
}

func NewTestCaseRepo(database db.Database) *TestCaseRepo {
	return &TestCaseRepo{database: database}
}

func (r *TestCaseRepo) Insert(ctx context.Context, tc model.TestCase) (int64, error) {
	const query = `
		INSERT INTO problem_testcases
			(problem_id, case_no, in_path, out_path,
			 in_size_bytes, out_size_bytes, in_sha256, out_sha256,
			 is_sample, score_weight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	weight := tc.ScoreWeight
	if weight <= 0 {
		weight = 1
	}
	res, err := r.database.Exec(ctx, query, tc.ProblemID, tc.CaseNo, tc.InPath, tc.OutPath,
		tc.InSizeBytes, tc.OutSizeBytes, tc.InSHA256, tc.OutSHA256, tc.IsSample, weight)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "insert testcase failed")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "read testcase id failed")
	}
	return id, nil
}

// Upsert inserts the row or, when (problem_id, case_no) already exists,
// refreshes its paths and integrity metadata. Used by archive import with the
// overwrite strategy.
func (r *TestCaseRepo) Upsert(ctx context.Context, tc model.TestCase) error {
	const query = `
		INSERT INTO problem_testcases
			(problem_id, case_no, in_path, out_path,
			 in_size_bytes, out_size_bytes, in_sha256, out_sha256,
			 is_sample, score_weight)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			in_path = VALUES(in_path), out_path = VALUES(out_path),
			in_size_bytes = VALUES(in_size_bytes), out_size_bytes = VALUES(out_size_bytes),
			in_sha256 = VALUES(in_sha256), out_sha256 = VALUES(out_sha256)`

	weight := tc.ScoreWeight
	if weight <= 0 {
		weight = 1
	}
	_, err := r.database.Exec(ctx, query, tc.ProblemID, tc.CaseNo, tc.InPath, tc.OutPath,
		tc.InSizeBytes, tc.OutSizeBytes, tc.InSHA256, tc.OutSHA256, tc.IsSample, weight)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "upsert testcase failed")
	}
	return nil
}

func (r *TestCaseRepo) Get(ctx context.Context, id int64) (*model.TestCase, error) {
	const query = `
		SELECT id, problem_id, case_no, in_path, out_path,
		       in_size_bytes, out_size_bytes, in_sha256, out_sha256,
		       is_sample, score_weight
		FROM problem_testcases
		WHERE id = ?`

	var tc model.TestCase
	err := r.database.QueryRow(ctx, query, id).Scan(&tc.ID, &tc.ProblemID, &tc.CaseNo,
		&tc.InPath, &tc.OutPath, &tc.InSizeBytes, &tc.OutSizeBytes,
		&tc.InSHA256, &tc.OutSHA256, &tc.IsSample, &tc.ScoreWeight)
	if db.IsNoRows(err) {
		return nil, appErr.Newf(appErr.CaseNotFound, "testcase %d not found", id)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query testcase %d failed", id)
	}
	return &tc, nil
}

func (r *TestCaseRepo) Update(ctx context.Context, tc model.TestCase) error {
	const query = `
		UPDATE problem_testcases
		SET case_no = ?, in_path = ?, out_path = ?,
		    in_size_bytes = ?, out_size_bytes = ?, in_sha256 = ?, out_sha256 = ?,
		    is_sample = ?, score_weight = ?
		WHERE id = ?`

	res, err := r.database.Exec(ctx, query, tc.CaseNo, tc.InPath, tc.OutPath,
		tc.InSizeBytes, tc.OutSizeBytes, tc.InSHA256, tc.OutSHA256,
		tc.IsSample, tc.ScoreWeight, tc.ID)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "update testcase %d failed", tc.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErr.Newf(appErr.CaseNotFound, "testcase %d not found", tc.ID)
	}
	return nil
}

func (r *TestCaseRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.database.Exec(ctx, `DELETE FROM problem_testcases WHERE id = ?`, id)
	if err != nil {
		return appErr.Wrapf(err, appErr.DatabaseError, "delete testcase %d failed", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErr.Newf(appErr.CaseNotFound, "testcase %d not found", id)
	}
	return nil
}

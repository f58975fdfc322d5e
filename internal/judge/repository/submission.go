package repository

import (
	"context"

	"intcode/internal/common/db"
	"intcode/internal/judge/model"
	appErr "intcode/pkg/errors"
)

// SubmissionRepo records judged submissions. It implements the orchestrator's
// SubmissionSink contract.
type SubmissionRepo struct {
	database db.Database
}

func NewSubmissionRepo(database db.Database) *SubmissionRepo {
	return &SubmissionRepo{database: database}
}

func (r *SubmissionRepo) SaveSubmission(ctx context.Context, rec model.SubmissionRecord) (int64, error) {
	const query = `
		INSERT INTO submissions
			(problem_id, user_id, language, code, status, score, runtime_ms, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NOW())`

	res, err := r.database.Exec(ctx, query, rec.ProblemID, rec.UserID, rec.Language,
		rec.Code, string(rec.Status), rec.Score, rec.RuntimeMS, rec.DetailJSON)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "insert submission failed")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.DatabaseError, "read submission id failed")
	}
	return id, nil
}

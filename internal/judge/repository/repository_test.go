package repository

import (
	"context"
	"database/sql"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"intcode/internal/common/cache"
	"intcode/internal/common/db"
	"intcode/internal/judge/model"
	appErr "intcode/pkg/errors"
)

// fakeDB replays canned rows and records exec calls. Scans assign values via
// reflection so the tests stay close to the real column shapes.
type fakeDB struct {
	problemRow   []interface{}
	testcaseRows [][]interface{}
	queries      int
	execQueries  []string
	execArgs     [][]interface{}
	lastInsertID int64
	affected     int64
}

type fakeResult struct {
	id       int64
	affected int64
}

func (r fakeResult) LastInsertId() (int64, error) { return r.id, nil }
func (r fakeResult) RowsAffected() (int64, error) { return r.affected, nil }

type fakeRow struct {
	values []interface{}
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.values == nil {
		return sql.ErrNoRows
	}
	return scanInto(dest, r.values)
}

type fakeRows struct {
	rows [][]interface{}
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...interface{}) error { return scanInto(dest, r.rows[r.idx-1]) }
func (r *fakeRows) Close() error                   { return nil }
func (r *fakeRows) Err() error                     { return nil }

func scanInto(dest, src []interface{}) error {
	for i := range dest {
		target := reflect.ValueOf(dest[i]).Elem()
		target.Set(reflect.ValueOf(src[i]).Convert(target.Type()))
	}
	return nil
}

func (f *fakeDB) Query(_ context.Context, _ string, _ ...interface{}) (db.Rows, error) {
	f.queries++
	return &fakeRows{rows: f.testcaseRows}, nil
}

func (f *fakeDB) QueryRow(_ context.Context, _ string, _ ...interface{}) db.Row {
	f.queries++
	return fakeRow{values: f.problemRow}
}

func (f *fakeDB) Exec(_ context.Context, query string, args ...interface{}) (db.Result, error) {
	f.execQueries = append(f.execQueries, query)
	f.execArgs = append(f.execArgs, args)
	return fakeResult{id: f.lastInsertID, affected: f.affected}, nil
}

func (f *fakeDB) Transaction(_ context.Context, fn func(tx db.Transaction) error) error {
	return fn(nil)
}

func (f *fakeDB) Ping(context.Context) error { return nil }
func (f *fakeDB) Close() error               { return nil }

func newTestCache(t *testing.T) cache.Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("NewRedisCache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func twoSumRows() ([]interface{}, [][]interface{}) {
	problem := []interface{}{
		int64(1), "two-sum", "Two Sum", "EASY", `["array","hash"]`, false, "",
	}
	cases := [][]interface{}{
		{int64(1), int64(1), 1, "two-sum/1.in", "two-sum/1.out", int64(16), int64(4), "aa", "bb", true, 1},
		{int64(2), int64(1), 2, "two-sum/2.in", "two-sum/2.out", int64(12), int64(4), "cc", "dd", false, 1},
	}
	return problem, cases
}

func TestGetProblemLoadsCases(t *testing.T) {
	problemRow, caseRows := twoSumRows()
	database := &fakeDB{problemRow: problemRow, testcaseRows: caseRows}
	repo := NewProblemRepo(database, nil)

	p, err := repo.GetProblem(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if p.Slug != "two-sum" || p.Title != "Two Sum" || p.Difficulty != model.DifficultyEasy {
		t.Fatalf("problem = %+v", p)
	}
	if len(p.Tags) != 2 || p.Tags[0] != "array" {
		t.Fatalf("tags = %v", p.Tags)
	}
	if len(p.TestCases) != 2 || p.TestCases[0].InPath != "two-sum/1.in" || !p.TestCases[0].IsSample {
		t.Fatalf("cases = %+v", p.TestCases)
	}
}

func TestGetProblemNotFound(t *testing.T) {
	database := &fakeDB{}
	repo := NewProblemRepo(database, nil)

	_, err := repo.GetProblem(context.Background(), 9)
	if !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("error = %v, want ProblemNotFound", err)
	}
}

func TestGetProblemReadThroughCache(t *testing.T) {
	problemRow, caseRows := twoSumRows()
	database := &fakeDB{problemRow: problemRow, testcaseRows: caseRows}
	repo := NewProblemRepo(database, newTestCache(t))

	first, err := repo.GetProblem(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	hitsAfterFirst := database.queries

	second, err := repo.GetProblem(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetProblem (cached): %v", err)
	}
	if database.queries != hitsAfterFirst {
		t.Fatalf("second lookup hit the database (%d -> %d)", hitsAfterFirst, database.queries)
	}
	if second.Slug != first.Slug || len(second.TestCases) != len(first.TestCases) {
		t.Fatalf("cached copy differs: %+v vs %+v", second, first)
	}
}

func TestGetProblemCachesAbsence(t *testing.T) {
	database := &fakeDB{}
	repo := NewProblemRepo(database, newTestCache(t))

	if _, err := repo.GetProblem(context.Background(), 9); !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("error = %v, want ProblemNotFound", err)
	}
	hitsAfterFirst := database.queries
	if _, err := repo.GetProblem(context.Background(), 9); !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("error = %v, want ProblemNotFound", err)
	}
	if database.queries != hitsAfterFirst {
		t.Fatal("absence was not cached")
	}
}

func TestInvalidateDropsCachedProblem(t *testing.T) {
	problemRow, caseRows := twoSumRows()
	database := &fakeDB{problemRow: problemRow, testcaseRows: caseRows}
	repo := NewProblemRepo(database, newTestCache(t))

	if _, err := repo.GetProblem(context.Background(), 1); err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if err := repo.Invalidate(context.Background(), 1); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	hits := database.queries
	if _, err := repo.GetProblem(context.Background(), 1); err != nil {
		t.Fatalf("GetProblem: %v", err)
	}
	if database.queries == hits {
		t.Fatal("lookup after invalidation should hit the database")
	}
}

func TestSaveSubmission(t *testing.T) {
	database := &fakeDB{lastInsertID: 7}
	repo := NewSubmissionRepo(database)

	id, err := repo.SaveSubmission(context.Background(), model.SubmissionRecord{
		ProblemID: 1, UserID: 3, Language: model.LangCpp17, Code: "int main() {}",
		Status: model.VerdictAC, Score: 100, RuntimeMS: 40, DetailJSON: "[]",
	})
	if err != nil {
		t.Fatalf("SaveSubmission: %v", err)
	}
	if id != 7 {
		t.Fatalf("id = %d, want 7", id)
	}
	if len(database.execArgs) != 1 {
		t.Fatalf("execs = %d", len(database.execArgs))
	}
	args := database.execArgs[0]
	if args[0] != int64(1) || args[4] != "AC" || args[5] != 100 {
		t.Fatalf("args = %v", args)
	}
}

func TestTestCaseInsertDefaultsWeight(t *testing.T) {
	database := &fakeDB{lastInsertID: 11, affected: 1}
	repo := NewTestCaseRepo(database)

	id, err := repo.Insert(context.Background(), model.TestCase{
		ProblemID: 1, CaseNo: 3, InPath: "p/3.in", OutPath: "p/3.out",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 11 {
		t.Fatalf("id = %d", id)
	}
	args := database.execArgs[0]
	if args[len(args)-1] != 1 {
		t.Fatalf("score_weight = %v, want default 1", args[len(args)-1])
	}
}

func TestTestCaseUpdateMissingRow(t *testing.T) {
	database := &fakeDB{affected: 0}
	repo := NewTestCaseRepo(database)

	err := repo.Update(context.Background(), model.TestCase{ID: 5, CaseNo: 1})
	if !appErr.Is(err, appErr.CaseNotFound) {
		t.Fatalf("error = %v, want CaseNotFound", err)
	}
}

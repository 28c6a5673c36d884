package stats

import (
	"context"
	"reflect"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/quizbot/bot/quiz"
)

func newMockStore(t *testing.T, exporter Exporter) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "sqlmock"), exporter), mock
}

func userColumns() []string {
	return []string{"user_id", "first_name", "last_name", "scores"}
}

func TestPostgresStoreLoadHydratesOnce(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("1", "Anna", "Lee", "{1,0}"))

	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rec, ok := users["1"]
	if !ok {
		t.Fatalf("users = %v", users)
	}
	if want := []int{1, 0}; !reflect.DeepEqual(rec.Scores, want) {
		t.Fatalf("scores = %v, want %v", rec.Scores, want)
	}

	// Second Load serves the cache; no second SELECT is expected.
	if _, err := store.Load(ctx); err != nil {
		t.Fatalf("cached load: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreRecordAttemptInserts(t *testing.T) {
	exp := &captureExporter{}
	store, mock := newMockStore(t, exp)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()))
	mock.ExpectQuery("INSERT INTO quiz_users").
		WithArgs("42", "Anna", "Lee", pq.Int64Array{1, 0}).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("42", "Anna", "Lee", "{1,0}"))

	reg := quiz.Registration{FirstName: "Anna", LastName: "Lee"}
	if err := store.RecordAttempt(ctx, "42", reg, []int{1, 0}); err != nil {
		t.Fatalf("record: %v", err)
	}

	calls, last := exp.snapshot()
	if calls != 1 {
		t.Fatalf("export calls = %d, want 1", calls)
	}
	if rec, ok := last["42"]; !ok || rec.Total() != 1 {
		t.Fatalf("exported snapshot = %v", last)
	}

	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := []int{1, 0}; !reflect.DeepEqual(users["42"].Scores, want) {
		t.Fatalf("cached scores = %v, want %v", users["42"].Scores, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreRecordAttemptAppends(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("42", "Anna", "Lee", "{1}"))
	mock.ExpectQuery("INSERT INTO quiz_users").
		WithArgs("42", "Anna", "Lee", pq.Int64Array{0, 1}).
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("42", "Anna", "Lee", "{1,0,1}"))

	reg := quiz.Registration{FirstName: "Anna", LastName: "Lee"}
	if err := store.RecordAttempt(ctx, "42", reg, []int{0, 1}); err != nil {
		t.Fatalf("record: %v", err)
	}

	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := []int{1, 0, 1}; !reflect.DeepEqual(users["42"].Scores, want) {
		t.Fatalf("scores = %v, want %v", users["42"].Scores, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreSaveNoop(t *testing.T) {
	exp := &captureExporter{}
	store, mock := newMockStore(t, exp)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("1", "Anna", "Lee", "{1}"))

	same := map[string]quiz.UserRecord{
		"1": {FirstName: "Anna", LastName: "Lee", Scores: []int{1}},
	}
	if err := store.Save(ctx, same); err != nil {
		t.Fatalf("save: %v", err)
	}
	if calls, _ := exp.snapshot(); calls != 0 {
		t.Fatalf("identical save triggered export: calls = %d", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreSaveUpsertsAndDeletes(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("1", "Anna", "Lee", "{1}"))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO quiz_users").
		WithArgs("2", "Boris", "Young", pq.Int64Array{1, 1}).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM quiz_users").
		WithArgs("1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	next := map[string]quiz.UserRecord{
		"2": {FirstName: "Boris", LastName: "Young", Scores: []int{1, 1}},
	}
	if err := store.Save(ctx, next); err != nil {
		t.Fatalf("save: %v", err)
	}

	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := users["1"]; ok {
		t.Fatal("deleted user survived in cache")
	}
	if _, ok := users["2"]; !ok {
		t.Fatalf("users = %v", users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestPostgresStoreReload(t *testing.T) {
	store, mock := newMockStore(t, nil)
	ctx := context.Background()

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("1", "Anna", "Lee", "{1}"))
	if _, err := store.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	mock.ExpectQuery("SELECT user_id, first_name, last_name, scores FROM quiz_users").
		WillReturnRows(sqlmock.NewRows(userColumns()).
			AddRow("2", "Boris", "Young", "{1,1}"))
	if err := store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}

	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load after reload: %v", err)
	}
	if _, ok := users["1"]; ok {
		t.Fatal("stale record survived reload")
	}
	if rec, ok := users["2"]; !ok || rec.Total() != 2 {
		t.Fatalf("users after reload = %v", users)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

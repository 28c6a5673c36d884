package stats

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/m3rciful/quizbot/bot/quiz"
)

type captureExporter struct {
	mu    sync.Mutex
	calls int
	last  map[string]quiz.UserRecord
}

func (e *captureExporter) Export(_ context.Context, users map[string]quiz.UserRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = quiz.CloneUsers(users)
	return nil
}

func (e *captureExporter) snapshot() (int, map[string]quiz.UserRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls, e.last
}

func readDoc(t *testing.T, path string) statsDocument {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read stats: %v", err)
	}
	var doc statsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return doc
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "stats.json"), nil)
	users, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("users = %v, want empty", users)
	}
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewFileStore(path, nil)
	users, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("users = %v, want empty", users)
	}
}

func TestFileStoreRecordAttemptAccumulates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	store := NewFileStore(path, nil)
	ctx := context.Background()
	reg := quiz.Registration{FirstName: "Anna", LastName: "Lee"}

	if err := store.RecordAttempt(ctx, "42", reg, []int{1, 0}); err != nil {
		t.Fatalf("first attempt: %v", err)
	}
	if err := store.RecordAttempt(ctx, "42", reg, []int{0, 1}); err != nil {
		t.Fatalf("second attempt: %v", err)
	}

	doc := readDoc(t, path)
	rec, ok := doc.Users["42"]
	if !ok {
		t.Fatalf("user missing from document: %v", doc.Users)
	}
	if want := []int{1, 0, 0, 1}; !reflect.DeepEqual(rec.Scores, want) {
		t.Fatalf("scores = %v, want %v", rec.Scores, want)
	}
	if rec.Total() != 2 {
		t.Fatalf("total = %d, want 2", rec.Total())
	}
	if rec.FirstName != "Anna" || rec.LastName != "Lee" {
		t.Fatalf("names = %q %q", rec.FirstName, rec.LastName)
	}
}

func TestFileStoreSaveNoopSkipsWriteAndExport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	exp := &captureExporter{}
	store := NewFileStore(path, exp)
	ctx := context.Background()

	users := map[string]quiz.UserRecord{
		"1": {FirstName: "Anna", LastName: "Lee", Scores: []int{1}},
	}
	if err := store.Save(ctx, users); err != nil {
		t.Fatalf("save: %v", err)
	}
	callsAfterFirst, _ := exp.snapshot()
	if callsAfterFirst != 1 {
		t.Fatalf("export calls = %d, want 1", callsAfterFirst)
	}

	if err := store.Save(ctx, quiz.CloneUsers(users)); err != nil {
		t.Fatalf("identical save: %v", err)
	}
	calls, _ := exp.snapshot()
	if calls != 1 {
		t.Fatalf("identical save triggered export: calls = %d", calls)
	}
}

func TestFileStoreExportSeesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	exp := &captureExporter{}
	store := NewFileStore(path, exp)
	ctx := context.Background()

	reg := quiz.Registration{FirstName: "Anna", LastName: "Lee"}
	if err := store.RecordAttempt(ctx, "42", reg, []int{1}); err != nil {
		t.Fatalf("record: %v", err)
	}

	_, last := exp.snapshot()
	if rec, ok := last["42"]; !ok || rec.Total() != 1 {
		t.Fatalf("exported snapshot = %v", last)
	}
}

func TestFileStoreReloadPicksUpExternalEdit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	store := NewFileStore(path, nil)
	ctx := context.Background()

	if err := store.RecordAttempt(ctx, "1", quiz.Registration{FirstName: "Anna"}, []int{1}); err != nil {
		t.Fatalf("record: %v", err)
	}

	edited := statsDocument{Users: map[string]quiz.UserRecord{
		"2": {FirstName: "Boris", Scores: []int{1, 1}},
	}}
	data, err := json.Marshal(edited)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := store.Reload(ctx); err != nil {
		t.Fatalf("reload: %v", err)
	}
	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := users["1"]; ok {
		t.Fatal("stale record survived reload")
	}
	if rec, ok := users["2"]; !ok || rec.Total() != 2 {
		t.Fatalf("reloaded users = %v", users)
	}
}

func TestFileStoreConcurrentRecordAttempts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	store := NewFileStore(path, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('1' + i))
			reg := quiz.Registration{FirstName: "User", LastName: id}
			if err := store.RecordAttempt(ctx, id, reg, []int{1}); err != nil {
				t.Errorf("record %s: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	doc := readDoc(t, path)
	if len(doc.Users) != 2 {
		t.Fatalf("users = %v, want both submissions recorded", doc.Users)
	}
}

func TestFileStoreLoadReturnsIsolatedSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	store := NewFileStore(path, nil)
	ctx := context.Background()

	if err := store.RecordAttempt(ctx, "1", quiz.Registration{FirstName: "Anna"}, []int{1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	users, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	users["1"].Scores[0] = 9

	again, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if again["1"].Scores[0] != 1 {
		t.Fatal("Load snapshot shares memory with the cache")
	}
}

package answerkey

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadMissingFileRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	store := New(path)
	ctx := context.Background()

	if key := store.Load(ctx); len(key) != 0 {
		t.Fatalf("missing file key = %v, want empty", key)
	}

	// A failed load must not be memoized: once the document appears,
	// the next access picks it up without a restart.
	writeDoc(t, path, `{"answers":["a","b"]}`)
	if key := store.Load(ctx); !reflect.DeepEqual(key, []string{"a", "b"}) {
		t.Fatalf("key after file appears = %v", key)
	}
}

func TestLoadCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	writeDoc(t, path, `{"answers": [`)
	store := New(path)

	if key := store.Load(context.Background()); len(key) != 0 {
		t.Fatalf("corrupt document key = %v, want empty", key)
	}
}

func TestLoadEmptyKeyNotCached(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	writeDoc(t, path, `{"answers": []}`)
	store := New(path)
	ctx := context.Background()

	if key := store.Load(ctx); len(key) != 0 {
		t.Fatalf("empty document key = %v, want empty", key)
	}

	writeDoc(t, path, `{"answers":["c"]}`)
	if key := store.Load(ctx); !reflect.DeepEqual(key, []string{"c"}) {
		t.Fatalf("key after repair = %v", key)
	}
}

func TestLoadMemoizesNonEmptyKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	writeDoc(t, path, `{"answers":["a","b","c"]}`)
	store := New(path)
	ctx := context.Background()

	first := store.Load(ctx)
	if !reflect.DeepEqual(first, []string{"a", "b", "c"}) {
		t.Fatalf("first load = %v", first)
	}

	// Later edits are invisible until restart.
	writeDoc(t, path, `{"answers":["x"]}`)
	if second := store.Load(ctx); !reflect.DeepEqual(second, first) {
		t.Fatalf("second load = %v, want cached %v", second, first)
	}
}

func TestLoadConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	writeDoc(t, path, `{"answers":["a","b"]}`)
	store := New(path)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = store.Load(ctx)
		}(i)
	}
	wg.Wait()

	want := []string{"a", "b"}
	for i, got := range results {
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("goroutine %d key = %v, want %v", i, got, want)
		}
	}
}

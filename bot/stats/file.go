package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/m3rciful/quizbot/bot/quiz"
	"github.com/m3rciful/quizbot/core/logger"
)

// statsDocument is the on-disk layout of the statistics store.
type statsDocument struct {
	Users map[string]quiz.UserRecord `json:"users"`
}

// FileStore keeps the statistics mapping in a single JSON document with an
// in-memory cache. All mutation runs under one mutex so concurrent
// submissions from different users cannot lose updates.
type FileStore struct {
	path     string
	exporter Exporter

	mu    sync.Mutex
	cache map[string]quiz.UserRecord // nil until hydrated
}

// NewFileStore creates a store over the given stats document path. exporter
// may be nil to disable the tabular export.
func NewFileStore(path string, exporter Exporter) *FileStore {
	return &FileStore{path: path, exporter: exporter}
}

// Load hydrates the cache from disk on first call and returns a snapshot.
func (s *FileStore) Load(ctx context.Context) (map[string]quiz.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(ctx)
	return quiz.CloneUsers(s.cache), nil
}

// Save replaces the stored mapping. A structurally identical state is a
// no-op; otherwise the document is rewritten atomically and the export
// regenerated.
func (s *FileStore) Save(ctx context.Context, users map[string]quiz.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(ctx)
	return s.saveLocked(ctx, users)
}

// RecordAttempt inserts or appends a score vector as one critical section.
func (s *FileStore) RecordAttempt(ctx context.Context, userID string, reg quiz.Registration, vector []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(ctx)

	next := quiz.CloneUsers(s.cache)
	if next == nil {
		next = make(map[string]quiz.UserRecord)
	}
	if rec, ok := next[userID]; ok {
		rec.Scores = append(rec.Scores, vector...)
		next[userID] = rec
	} else {
		next[userID] = quiz.UserRecord{
			FirstName: reg.FirstName,
			LastName:  reg.LastName,
			Scores:    append([]int(nil), vector...),
		}
	}
	return s.saveLocked(ctx, next)
}

// Reload drops the cache and re-hydrates from disk.
func (s *FileStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.hydrateLocked(ctx)
	logger.Info(ctx, "service.stats", "cache.refresh",
		slog.String("status", "ok"),
		slog.String("cache", "refresh"),
		slog.Int("users", len(s.cache)),
	)
	return nil
}

// Export regenerates the tabular export from the current state.
func (s *FileStore) Export(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrateLocked(ctx)
	return s.export(ctx, s.cache)
}

// hydrateLocked fills the cache from disk when it is empty. A missing
// document yields an empty mapping; a corrupt one is logged and also yields
// an empty mapping, matching the answer path's degrade-don't-crash policy.
func (s *FileStore) hydrateLocked(ctx context.Context) {
	if s.cache != nil {
		return
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Error(ctx, "service.stats", "load.fail",
				slog.String("status", "fail"),
				slog.String("path", s.path),
				slog.String("err", fmt.Errorf("%w: %v", quiz.ErrStorageUnavailable, err).Error()),
			)
		}
		s.cache = make(map[string]quiz.UserRecord)
		return
	}

	var doc statsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Error(ctx, "service.stats", "load.fail",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", fmt.Errorf("%w: %v", quiz.ErrStorageCorrupt, err).Error()),
		)
		s.cache = make(map[string]quiz.UserRecord)
		return
	}

	if doc.Users == nil {
		doc.Users = make(map[string]quiz.UserRecord)
	}
	s.cache = doc.Users
	logger.Debug(ctx, "service.stats", "load.ok",
		slog.String("status", "ok"),
		slog.String("cache", "miss"),
		slog.String("path", s.path),
		slog.Int("users", len(doc.Users)),
	)
}

func (s *FileStore) saveLocked(ctx context.Context, users map[string]quiz.UserRecord) error {
	if reflect.DeepEqual(s.cache, users) {
		logger.Debug(ctx, "service.stats", "save.noop",
			slog.String("status", "skip"),
			slog.Int("users", len(users)),
		)
		return nil
	}

	data, err := json.Marshal(statsDocument{Users: users})
	if err != nil {
		return fmt.Errorf("encode statistics: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		logger.Error(ctx, "service.stats", "save.fail",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("write statistics: %w", err)
	}

	s.cache = quiz.CloneUsers(users)
	logger.Info(ctx, "service.stats", "save.ok",
		slog.String("status", "ok"),
		slog.String("path", s.path),
		slog.Int("users", len(users)),
	)
	return s.export(ctx, s.cache)
}

func (s *FileStore) export(ctx context.Context, users map[string]quiz.UserRecord) error {
	if s.exporter == nil {
		return nil
	}
	if err := s.exporter.Export(ctx, users); err != nil {
		return fmt.Errorf("regenerate export: %w", err)
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never observe
// a partially written document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

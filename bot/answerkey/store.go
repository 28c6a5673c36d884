// Package answerkey loads and caches the ordered list of correct answers.
package answerkey

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/m3rciful/quizbot/bot/quiz"
	"github.com/m3rciful/quizbot/core/logger"
)

type document struct {
	Answers []string `json:"answers"`
}

// Store memoizes the answer key after the first successful non-empty load.
// A failed or empty load returns an empty key and is retried on the next
// access. The cached key is immutable; callers must not modify it.
type Store struct {
	path string

	mu  sync.RWMutex
	key []string

	group singleflight.Group
}

// New creates a store reading from the given answers document path.
func New(path string) *Store {
	return &Store{path: path}
}

// Load returns the answer key, reading the backing document at most once
// after a successful non-empty load. Concurrent first loads are collapsed
// into a single read.
func (s *Store) Load(ctx context.Context) []string {
	s.mu.RLock()
	cached := s.key
	s.mu.RUnlock()
	if cached != nil {
		return cached
	}

	v, _, _ := s.group.Do("load", func() (interface{}, error) {
		return s.load(ctx), nil
	})
	key, _ := v.([]string)
	return key
}

func (s *Store) load(ctx context.Context) []string {
	// Another caller may have populated the cache while this one waited.
	s.mu.RLock()
	cached := s.key
	s.mu.RUnlock()
	if cached != nil {
		return cached
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		logger.Error(ctx, "service.answer_key", "load.fail",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", fmt.Errorf("%w: %v", quiz.ErrStorageUnavailable, err).Error()),
		)
		return []string{}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Error(ctx, "service.answer_key", "load.fail",
			slog.String("status", "fail"),
			slog.String("path", s.path),
			slog.String("err", fmt.Errorf("%w: %v", quiz.ErrStorageCorrupt, err).Error()),
		)
		return []string{}
	}

	if len(doc.Answers) == 0 {
		logger.Error(ctx, "service.answer_key", "load.empty",
			slog.String("status", "fail"),
			slog.String("path", s.path),
		)
		return []string{}
	}

	s.mu.Lock()
	s.key = doc.Answers
	s.mu.Unlock()

	logger.Info(ctx, "service.answer_key", "load.ok",
		slog.String("status", "ok"),
		slog.String("path", s.path),
		slog.Int("questions", len(doc.Answers)),
	)
	return doc.Answers
}

package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/quizbot/bot/quiz"
	"github.com/m3rciful/quizbot/core/logger"
)

// PostgresStore keeps the statistics mapping in the quiz_users table while
// mirroring the file store's caching contract. Appends are pushed down to the
// database (scores || EXCLUDED.scores), so a lost update cannot occur even
// across processes; the mutex keeps the cache and export consistent within
// this one.
type PostgresStore struct {
	db       *sqlx.DB
	exporter Exporter

	mu       sync.Mutex
	cache    map[string]quiz.UserRecord
	hydrated bool
}

type userRow struct {
	UserID    string        `db:"user_id"`
	FirstName string        `db:"first_name"`
	LastName  string        `db:"last_name"`
	Scores    pq.Int64Array `db:"scores"`
}

// NewPostgresStore creates a store over an established connection. exporter
// may be nil to disable the tabular export.
func NewPostgresStore(db *sqlx.DB, exporter Exporter) *PostgresStore {
	return &PostgresStore{db: db, exporter: exporter}
}

// Load hydrates the cache from the database on first call and returns a
// snapshot.
func (s *PostgresStore) Load(ctx context.Context) (map[string]quiz.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hydrateLocked(ctx); err != nil {
		return nil, err
	}
	return quiz.CloneUsers(s.cache), nil
}

// Save replaces the stored mapping: changed rows are upserted, missing rows
// deleted. Structurally identical state is a no-op.
func (s *PostgresStore) Save(ctx context.Context, users map[string]quiz.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hydrateLocked(ctx); err != nil {
		return err
	}
	if reflect.DeepEqual(s.cache, users) {
		logger.Debug(ctx, "service.stats", "save.noop",
			slog.String("status", "skip"),
			slog.Int("users", len(users)),
		)
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for id, rec := range users {
		if cached, ok := s.cache[id]; ok && reflect.DeepEqual(cached, rec) {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO quiz_users (user_id, first_name, last_name, scores)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE
			SET first_name = EXCLUDED.first_name,
			    last_name  = EXCLUDED.last_name,
			    scores     = EXCLUDED.scores`,
			id, rec.FirstName, rec.LastName, toInt64Array(rec.Scores)); err != nil {
			return fmt.Errorf("upsert user %s: %w", id, err)
		}
	}
	for id := range s.cache {
		if _, ok := users[id]; ok {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM quiz_users WHERE user_id = $1`, id); err != nil {
			return fmt.Errorf("delete user %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}

	s.cache = quiz.CloneUsers(users)
	logger.Info(ctx, "service.stats", "save.ok",
		slog.String("status", "ok"),
		slog.String("driver", "postgres"),
		slog.Int("users", len(users)),
	)
	return s.export(ctx, s.cache)
}

// RecordAttempt inserts a new row or appends the score vector to an existing
// one in a single statement, then refreshes the cache entry and the export.
func (s *PostgresStore) RecordAttempt(ctx context.Context, userID string, reg quiz.Registration, vector []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hydrateLocked(ctx); err != nil {
		return err
	}

	var row userRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO quiz_users (user_id, first_name, last_name, scores)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET scores = quiz_users.scores || EXCLUDED.scores
		RETURNING user_id, first_name, last_name, scores`,
		userID, reg.FirstName, reg.LastName, toInt64Array(vector))
	if err != nil {
		logger.Error(ctx, "service.stats", "record.fail",
			slog.String("status", "fail"),
			slog.String("driver", "postgres"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("record attempt: %w", err)
	}

	s.cache[row.UserID] = row.record()
	logger.Info(ctx, "service.stats", "record.ok",
		slog.String("status", "ok"),
		slog.String("driver", "postgres"),
		slog.Int("answers", len(vector)),
	)
	return s.export(ctx, s.cache)
}

// Reload drops the cache and re-hydrates from the database.
func (s *PostgresStore) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = nil
	s.hydrated = false
	if err := s.hydrateLocked(ctx); err != nil {
		return err
	}
	logger.Info(ctx, "service.stats", "cache.refresh",
		slog.String("status", "ok"),
		slog.String("cache", "refresh"),
		slog.Int("users", len(s.cache)),
	)
	return nil
}

// Export regenerates the tabular export from the current state.
func (s *PostgresStore) Export(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hydrateLocked(ctx); err != nil {
		return err
	}
	return s.export(ctx, s.cache)
}

func (s *PostgresStore) hydrateLocked(ctx context.Context) error {
	if s.hydrated {
		return nil
	}

	var rows []userRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, first_name, last_name, scores FROM quiz_users`)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Error(ctx, "service.stats", "load.fail",
			slog.String("status", "fail"),
			slog.String("driver", "postgres"),
			slog.String("err", fmt.Errorf("%w: %v", quiz.ErrStorageUnavailable, err).Error()),
		)
		return fmt.Errorf("load statistics: %w", err)
	}

	users := make(map[string]quiz.UserRecord, len(rows))
	for _, row := range rows {
		users[row.UserID] = row.record()
	}
	s.cache = users
	s.hydrated = true
	logger.Debug(ctx, "service.stats", "load.ok",
		slog.String("status", "ok"),
		slog.String("cache", "miss"),
		slog.String("driver", "postgres"),
		slog.Int("users", len(users)),
	)
	return nil
}

func (s *PostgresStore) export(ctx context.Context, users map[string]quiz.UserRecord) error {
	if s.exporter == nil {
		return nil
	}
	if err := s.exporter.Export(ctx, users); err != nil {
		return fmt.Errorf("regenerate export: %w", err)
	}
	return nil
}

func (r userRow) record() quiz.UserRecord {
	scores := make([]int, len(r.Scores))
	for i, v := range r.Scores {
		scores[i] = int(v)
	}
	return quiz.UserRecord{FirstName: r.FirstName, LastName: r.LastName, Scores: scores}
}

func toInt64Array(scores []int) pq.Int64Array {
	out := make(pq.Int64Array, len(scores))
	for i, v := range scores {
		out[i] = int64(v)
	}
	return out
}

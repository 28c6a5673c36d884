package bot

import (
	"context"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/quizbot/bot/answerkey"
	"github.com/m3rciful/quizbot/bot/handlers"
	"github.com/m3rciful/quizbot/bot/quiz"
	"github.com/m3rciful/quizbot/bot/stats"
	"github.com/m3rciful/quizbot/core/bootstrap"
	coredatabase "github.com/m3rciful/quizbot/core/database"
	coretelegram "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/router"
	"github.com/m3rciful/quizbot/core/telegram/state"
	"github.com/m3rciful/quizbot/core/telegram/ui"
)

// App wires the quiz domain services onto the bot core.
type App struct {
	cfg *Config
	db  *sqlx.DB

	sessions  state.Manager
	store     quiz.StatsStore
	svc       *quiz.Service
	handlers  *handlers.Handlers
	registry  *coretelegram.Registry
	fallbacks ui.FallbackProvider
}

// Bootstrap initializes infrastructure, builds the domain services, and
// registers all bot handlers.
func Bootstrap(cfg *Config) (*App, error) {
	var dbCfg *coredatabase.Config
	if cfg.Storage.Driver == DriverPostgres {
		dbCfg = &cfg.Database
	}

	key := answerkey.New(cfg.AnswersPath())

	res, err := bootstrap.Run(context.Background(), bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: dbCfg,
		Seeders: []bootstrap.Seeder{
			bootstrap.SeederFunc(func(ctx context.Context, _ *sqlx.DB) error {
				if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
					return fmt.Errorf("storage dir: %w", err)
				}
				return nil
			}),
		},
	})
	if err != nil {
		return nil, err
	}

	exporter := stats.NewXLSXExporter(cfg.ExportPath())
	var store quiz.StatsStore
	if cfg.Storage.Driver == DriverPostgres {
		store = stats.NewPostgresStore(res.DB, exporter)
	} else {
		store = stats.NewFileStore(cfg.StatsPath(), exporter)
	}

	// Warm caches so the first update does not pay the load cost and so
	// missing or corrupt documents surface in the startup logs.
	warmCtx := context.Background()
	key.Load(warmCtx)
	if _, err := store.Load(warmCtx); err != nil {
		if res.DB != nil {
			_ = res.DB.Close()
		}
		return nil, fmt.Errorf("stats warmup: %w", err)
	}

	sessions := state.NewMemoryManager()
	svc := quiz.NewService(sessions, key, store, cfg.Quiz.Assets)

	h := handlers.New(svc, store)
	registry := coretelegram.NewRegistry()
	h.Register(registry)

	return &App{
		cfg:       cfg,
		db:        res.DB,
		sessions:  sessions,
		store:     store,
		svc:       svc,
		handlers:  h,
		registry:  registry,
		fallbacks: h,
	}, nil
}

// TelegramRunOptions assembles routes and middlewares for the bot runtime.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: a.cfg.Core.Telegram.AdminID,
	})
	routes = append(routes, router.TextRoutes(a.sessions, a.registry, router.TextOptions{
		UnknownText:     a.fallbacks.UnknownText(),
		UnknownDocument: a.fallbacks.UnknownDocument(),
	})...)
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{
		NotFound: a.fallbacks.UnknownCallback(),
	}))

	return coretelegram.RunOptions{
		Config:      a.cfg.CoreConfig(),
		Registry:    a.registry,
		Middlewares: coretelegram.DefaultMiddlewares(a.cfg.CoreConfig(), nil),
		Routes:      routes,
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}, nil
}

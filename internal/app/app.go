package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/eventlog"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/httpapi"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/jobs"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/notifications"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/store"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	store    *store.Store
	eventLog *eventlog.Logger
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s := store.New(db)
	el := eventlog.New(db)

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    s,
		eventLog: el,
	}, nil
}

func (a *App) Router(registry *httpapi.SessionRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		OpenAIAPIKey:      a.cfg.OpenAIAPIKey,
		QuestionCount:     a.cfg.QuestionCount,
		Language:          a.cfg.Language,
		LiveKitURL:        a.cfg.LiveKitURL,
		LiveKitAPIKey:     a.cfg.LiveKitAPIKey,
		LiveKitAPISecret:  a.cfg.LiveKitAPISecret,
		JWTSecret:         a.cfg.JWTSecret,
		JWTExpiry:         a.cfg.JWTExpiry,
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, registry)
}

// Reaper builds the stale session reaper wired to the registry so reaped
// sessions release their drain slots.
func (a *App) Reaper(registry *httpapi.SessionRegistry) *jobs.SessionReaper {
	discord := notifications.NewDiscord(a.cfg.DiscordWebhookURL, a.logger)
	return jobs.NewSessionReaper(a.store, a.eventLog, discord, a.logger,
		a.cfg.ReaperInterval, a.cfg.SessionIdleFor, registry.Done)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

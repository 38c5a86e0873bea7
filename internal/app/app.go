// Package app wires configuration into the stores, parsers and session
// registry shared by the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/foxxcyber/voicecart/internal/config"
	"github.com/foxxcyber/voicecart/internal/database"
	"github.com/foxxcyber/voicecart/internal/localstore"
	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/pubsub"
	"github.com/foxxcyber/voicecart/internal/services"
	"github.com/foxxcyber/voicecart/internal/session"
)

// App holds long-lived dependencies
type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Local    *localstore.Store
	DB       *database.DB
	Notifier *pubsub.RedisNotifier
	Remote   *database.RemoteStore
	Objects  *services.ArchiveStorage
	Parser   services.Parser
	Suggest  *services.SuggestionService
	Sessions *session.Registry
}

// Build connects every configured backend. Optional backends that fail to
// connect are logged and left out so the list keeps working offline.
func Build(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	log = logger.OrNop(log)
	a := &App{Config: cfg, Log: log}

	local, err := localstore.New(localstore.Config{DataDir: cfg.DataDir})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	a.Local = local

	var primary services.Parser
	var suggester services.Suggester
	if cfg.AIEnabled() {
		claude := services.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, log)
		primary = services.NewGenerativeParser(claude)
		if cfg.AISuggestEnabled {
			suggester = services.NewClaudeSuggester(claude, nil)
		}
		log.Info("generative parsing enabled", "model", cfg.AnthropicModel, "suggestions", cfg.AISuggestEnabled)
	}
	a.Parser = services.NewFallbackParser(primary, cfg.AIParseTimeout, log)
	a.Suggest = services.NewSuggestionService(services.NewSuggestionEngine(nil), suggester, cfg.AISuggestTimeout, log)

	if cfg.RemoteSyncEnabled {
		a.connectRemote(ctx)
	}
	if cfg.S3Enabled {
		a.connectObjects(ctx)
	}

	a.Sessions = session.NewRegistry(a.sessionConfig)
	a.Sessions.StartJanitor(cfg.SessionIdleTTL)
	return a, nil
}

func (a *App) connectRemote(ctx context.Context) {
	db, err := database.Connect(ctx, a.Config.DatabaseURL, a.Log)
	if err != nil {
		a.Log.Warn("remote store unavailable, sync disabled", "error", err)
		return
	}
	if err := database.RunMigrations(ctx, db); err != nil {
		a.Log.Warn("remote migrations failed, sync disabled", "error", err)
		db.Close()
		return
	}
	a.DB = db

	var notifier pubsub.Notifier
	if a.Config.RedisAddr != "" {
		n, err := pubsub.NewRedisNotifier(ctx, a.Config.RedisAddr, a.Config.RedisChannelPrefix, a.Log)
		if err != nil {
			a.Log.Warn("change notifications unavailable, polling instead", "error", err)
		} else {
			a.Notifier = n
			notifier = n
		}
	}
	a.Remote = database.NewRemoteStore(db, notifier, a.Log)
}

func (a *App) connectObjects(ctx context.Context) {
	cfg := a.Config
	if cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "" {
		a.Log.Warn("S3 credentials not configured, archive upload disabled")
		return
	}
	storage, err := services.NewArchiveStorage(cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3Region, cfg.S3UseSSL)
	if err != nil {
		a.Log.Warn("failed to initialize archive storage", "error", err)
		return
	}
	if err := storage.EnsureBucket(ctx); err != nil {
		a.Log.Warn("failed to ensure archive bucket", "error", err)
	}
	a.Objects = storage
}

func (a *App) sessionConfig(userID string) (session.Config, error) {
	cfg := session.Config{
		UserID:        userID,
		Locale:        a.Config.DefaultLocale,
		Parser:        a.Parser,
		Suggestions:   a.Suggest,
		Cache:         a.Local,
		History:       a.Local.History(userID),
		Archives:      a.Local,
		SyncDebounce:  a.Config.SyncDebounce,
		SuggestionCap: a.Config.SuggestionCap,
		Logger:        a.Log,
	}
	if a.Remote != nil {
		cfg.Remote = a.Remote
	}
	if a.Objects != nil {
		cfg.Objects = a.Objects
	}
	return cfg, nil
}

// Close shuts sessions down and releases every backend
func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Notifier != nil {
		_ = a.Notifier.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Local != nil {
		_ = a.Local.Close()
	}
}

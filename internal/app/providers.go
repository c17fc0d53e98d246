package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"voxmeter/internal/app/api/deepgram"
	"voxmeter/internal/app/api/elevenlabs"
	"voxmeter/internal/app/api/google"
	"voxmeter/internal/app/api/openai/chat"
	"voxmeter/internal/app/api/openai/whisper"
	"voxmeter/internal/app/api/provider"
	"voxmeter/internal/app/audio"
	"voxmeter/internal/app/files"
	"voxmeter/internal/app/ledger"
	"voxmeter/internal/app/metrics"
	"voxmeter/internal/app/pipeline"
	"voxmeter/internal/app/queue"
	"voxmeter/internal/app/repository"
	"voxmeter/internal/app/repository/migrate"
	"voxmeter/internal/app/repository/pg"
	"voxmeter/internal/app/repository/sqlite"
	"voxmeter/internal/app/status"
	"voxmeter/internal/app/storage/objectstore"
	"voxmeter/internal/config"
)

// App is everything a command needs after wiring.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Pipeline *pipeline.Pipeline
	Ledger   *ledger.Ledger
	Files    *files.Service
	Store    objectstore.Store
	Queue    *queue.Queue
	Metrics  *metrics.Metrics
}

func provideRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, func(), error) {
	var (
		store *repository.SQLStore
		err   error
	)
	switch cfg.Database.Driver {
	case pg.DriverName:
		store, err = pg.New(cfg.Database.DSN)
	case sqlite.DriverName:
		store, err = sqlite.New(cfg.Database.DSN)
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close database", zap.Error(err))
		}
	}

	if cfg.Database.Migrate {
		if err := migrate.Apply(ctx, store.DB(), store.DriverName()); err != nil {
			cleanup()
			return nil, nil, err
		}
		logger.Info("database schema applied", zap.String("driver", store.DriverName()))
	}
	return store, cleanup, nil
}

func provideObjectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (objectstore.Store, error) {
	return objectstore.New(ctx, cfg.Storage, logger)
}

func provideTool(cfg *config.Config, logger *zap.Logger) *audio.Tool {
	return audio.NewTool(cfg.Pipeline, audio.ExecRunner{}, logger)
}

// provideRegistry registers every adapter whose credentials are set.
// Adapters without credentials are skipped, so a deployment only needs
// keys for the providers its routing uses.
func provideRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*provider.Registry, error) {
	logger = logger.Named("providers")
	registry := provider.NewRegistry()
	client := &http.Client{}

	register := func(name string, enabled bool, fn func() error) error {
		if !enabled {
			logger.Debug("provider not configured", zap.String("provider", name))
			return nil
		}
		if err := fn(); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
		return nil
	}

	steps := []struct {
		name    string
		enabled bool
		fn      func() error
	}{
		{"openai-whisper", cfg.OpenAI.APIKey != "", func() error {
			return registry.RegisterTranscriber(whisper.NewRemoteTranscriber(cfg.OpenAI))
		}},
		{"openai-chat", cfg.OpenAI.APIKey != "", func() error {
			return registry.RegisterTranslator(chat.NewTranslator(cfg.OpenAI))
		}},
		{"google-speech", cfg.Google.APIKey != "", func() error {
			staging, err := objectstore.NewStaging(ctx, cfg.Google, logger)
			if err != nil {
				return err
			}
			return registry.RegisterTranscriber(google.NewSpeechTranscriber(cfg.Google, staging, client, logger))
		}},
		{"google-gemini", cfg.Google.GeminiAPIKey != "", func() error {
			t, err := google.NewGeminiTranslator(ctx, cfg.Google, client)
			if err != nil {
				return err
			}
			return registry.RegisterTranslator(t)
		}},
		{"deepgram", cfg.Deepgram.APIKey != "", func() error {
			return registry.RegisterDetector(deepgram.NewDetector(cfg.Deepgram, client))
		}},
		{"elevenlabs", cfg.ElevenLabs.APIKey != "", func() error {
			return registry.RegisterTranscriber(elevenlabs.NewSTTProvider(cfg.ElevenLabs, client))
		}},
	}
	for _, step := range steps {
		if err := register(step.name, step.enabled, step.fn); err != nil {
			return nil, err
		}
	}

	logger.Info("providers registered",
		zap.Strings("transcribers", registry.List(provider.CapabilityTranscribe)),
		zap.Strings("translators", registry.List(provider.CapabilityTranslate)),
		zap.Strings("detectors", registry.List(provider.CapabilityDetectLanguage)))
	return registry, nil
}

// provideFiles lists every registered transcriber and translator so a
// delete reaches the artifacts of each.
func provideFiles(cfg *config.Config, repo repository.Store, store objectstore.Store, registry *provider.Registry, logger *zap.Logger) *files.Service {
	names := append(registry.List(provider.CapabilityTranscribe), registry.List(provider.CapabilityTranslate)...)
	return files.New(repo, store, cfg.Storage.Bucket, lo.Uniq(names), logger)
}

func provideLedger(repo repository.Store, m *metrics.Metrics, logger *zap.Logger) *ledger.Ledger {
	return ledger.New(repo, m, logger)
}

func provideTracker(repo repository.Store, logger *zap.Logger) *status.Tracker {
	return status.New(repo, logger)
}

func provideRedis(cfg *config.Config, logger *zap.Logger) (*redis.Client, func()) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
}

func provideQueue(client *redis.Client, logger *zap.Logger) *queue.Queue {
	return queue.New(client, queue.Options{}, logger)
}

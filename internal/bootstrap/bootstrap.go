// Package bootstrap builds the pieces shared by the server and worker binaries.
package bootstrap

import (
	"context"
	"time"

	"github.com/ducktype/ducktype/internal/ai"
	"github.com/ducktype/ducktype/internal/config"
	"github.com/ducktype/ducktype/internal/conversation"
	"github.com/ducktype/ducktype/internal/db"
	"github.com/ducktype/ducktype/internal/socratic"
	"github.com/ducktype/ducktype/internal/store/mongostore"
	"go.uber.org/zap"
)

// OpenStore picks the backend from DB_DSN. The returned func releases it.
func OpenStore(ctx context.Context, cfg config.Config) (conversation.Store, func(), error) {
	if cfg.StoreKind() == config.StoreMongo {
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongostore.Connect(cctx, cfg.DBDSN, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close(context.Background()) }, nil
	}

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	return conversation.NewRepo(gdb), func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}, nil
}

func ProviderSettings(cfg config.Config) ai.Settings {
	return ai.Settings{
		Timeout:           cfg.GenerationTimeout,
		GeminiAPIKey:      cfg.GeminiAPIKey,
		GeminiBaseURL:     cfg.GeminiBaseURL,
		OpenAIAPIKey:      cfg.OpenAIAPIKey,
		OpenAIBaseURL:     cfg.OpenAIBaseURL,
		OpenRouterAPIKey:  cfg.OpenRouterAPIKey,
		OpenRouterBaseURL: cfg.OpenRouterBaseURL,
		OllamaBaseURL:     cfg.OllamaBaseURL,
	}
}

// NewCoach registers the built-in providers and binds the configured one. The registry is
// returned for logging.
func NewCoach(cfg config.Config, log *zap.Logger) (*socratic.Coach, *ai.Registry) {
	reg := ai.NewRegistry()
	ai.RegisterDefaults(reg, ProviderSettings(cfg))
	provider := ai.Selected{Registry: reg, Name: cfg.GenerationProvider, Model: cfg.GenerationModel}
	return socratic.NewCoach(socratic.NewClient(provider, log.Named("generation"))), reg
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/agropal/agropal/internal"
	"github.com/agropal/agropal/internal/ai"
	"github.com/agropal/agropal/internal/ai/anthropic"
	"github.com/agropal/agropal/internal/ai/mock"
	"github.com/agropal/agropal/internal/ai/remote"
	"github.com/agropal/agropal/internal/cache"
	"github.com/agropal/agropal/internal/events"
	"github.com/agropal/agropal/internal/storage"
	"github.com/agropal/agropal/internal/store"
	"github.com/agropal/agropal/internal/store/mongostore"
	"github.com/agropal/agropal/internal/store/pgstore"
)

// openStore connects the record store selected by DB_DRIVER. The returned
// func releases the connection.
func openStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (store.Store, func(), error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DatabaseUrl)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("database ping failed: %w", err)
		}
		if err := internal.RunMigrations(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migration failed: %w", err)
		}
		return pgstore.New(db), func() { db.Close() }, nil

	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s, err := mongostore.Connect(connectCtx, cfg.MongoURI, cfg.MongoDB, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("database connection failed: %w", err)
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				logger.Warn("mongo disconnect failed", "error", err)
			}
		}, nil
	}
}

func newStorage(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
			Region:          "auto",
		}, logger)
	case storage.ProviderMinIO:
		return storage.NewMinIOStorage(ctx, storage.MinIOConfig{
			Endpoint:        cfg.MinIOEndpoint,
			AccessKeyID:     cfg.MinIOAccessKeyID,
			SecretAccessKey: cfg.MinIOSecretAccessKey,
			BucketName:      cfg.MinIOBucketName,
			UseSSL:          cfg.MinIOUseSSL,
			PublicURL:       cfg.MinIOPublicURL,
		}, logger)
	default:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	}
}

func newClassifier(cfg *internal.Config, logger *slog.Logger) (ai.Classifier, error) {
	providerCfg := ai.ProviderConfig{
		MaxRetries:     cfg.AIMaxRetries,
		RetryBaseDelay: cfg.AIRetryBaseDelay,
		RequestTimeout: cfg.ClassifierTimeout,
	}

	switch cfg.AIProvider {
	case "anthropic":
		return anthropic.New(anthropic.Config{
			APIKey:         cfg.AnthropicAPIKey,
			Model:          cfg.AnthropicModel,
			ProviderConfig: providerCfg,
		}, logger)
	case "remote":
		return remote.New(remote.Config{
			BaseURL:        cfg.ClassifierURL,
			ProviderConfig: providerCfg,
		}, logger)
	default:
		logger.Warn("using mock classifier, diagnoses are canned")
		return mock.New(logger), nil
	}
}

func newPublisher(cfg *internal.Config) events.Publisher {
	switch cfg.EventsProvider {
	case "kafka":
		return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case "sqs":
		return events.NewSQSPublisher(events.SQSConfig{
			QueueURL:        cfg.SQSQueueURL,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
	default:
		return events.Nop{}
	}
}

// newStatsCache returns the Redis cache when REDIS_URL is set.
func newStatsCache(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (cache.StatsCache, error) {
	if cfg.RedisURL == "" {
		return cache.Nop{}, nil
	}
	c, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.StatsCacheTTL)
	if err != nil {
		return nil, err
	}
	logger.Info("statistics cache enabled", "ttl", cfg.StatsCacheTTL)
	return c, nil
}

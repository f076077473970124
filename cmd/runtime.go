package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zpam/comment-moderator/pkg/config"
	"github.com/zpam/comment-moderator/pkg/learning"
	"github.com/zpam/comment-moderator/pkg/logging"
	"github.com/zpam/comment-moderator/pkg/moderator"
	"github.com/zpam/comment-moderator/pkg/store"
)

// runtime wires the configured database, word statistics backend,
// classifier and moderator together
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *store.DB
	words      learning.WordStatsStore
	classifier *learning.Classifier
	moderator  *moderator.Moderator

	closers []func() error
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, logger: logger}
	rt.closers = append(rt.closers, closeLog)

	rt.db, err = store.Open(ctx, cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.db.Close)

	if err := rt.db.Migrate(); err != nil {
		rt.Close()
		return nil, err
	}

	rt.words, err = learning.DefaultRegistry().Open(ctx, learning.Backend(cfg.Moderator.Classifier), learning.Deps{
		DB:    rt.db.X(),
		Redis: redisConfig(cfg),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open %s classifier backend: %w", cfg.Moderator.Classifier, err)
	}
	rt.closers = append(rt.closers, rt.words.Close)

	rt.classifier, err = learning.NewClassifier(ctx, rt.words, learningConfig(cfg))
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.moderator = moderator.New(rt.db, rt.classifier, moderator.Config{
		HamCutoff:          cfg.Moderator.HamCutoff,
		SpamCutoff:         cfg.Moderator.SpamCutoff,
		AbuseCutoff:        cfg.Moderator.AbuseCutoff,
		Realtime:           cfg.Moderator.RealtimeClassification,
		ReplyBeforeComment: cfg.Moderator.ReplyBeforeComment,
	}, logger)

	logger.Debug("runtime ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("classifier", cfg.Moderator.Classifier),
	)
	return rt, nil
}

// Close releases resources in reverse order of acquisition
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
	rt.closers = nil
}

func redisConfig(cfg *config.Config) *learning.RedisConfig {
	return &learning.RedisConfig{
		RedisURL:    cfg.Redis.RedisURL,
		KeyPrefix:   cfg.Redis.KeyPrefix,
		DatabaseNum: cfg.Redis.DatabaseNum,
		BatchSize:   cfg.Redis.BatchSize,
	}
}

func learningConfig(cfg *config.Config) *learning.Config {
	return &learning.Config{
		Tokenizer: learning.Tokenizer{
			MinTokenLength: cfg.Learning.MinTokenLength,
			MaxTokenLength: cfg.Learning.MaxTokenLength,
		},
		UnknownWordProb:     cfg.Learning.UnknownWordProb,
		UnknownWordStrength: cfg.Learning.UnknownWordStrength,
		MinimumProbStrength: cfg.Learning.MinimumProbStrength,
		MaxDiscriminators:   cfg.Learning.MaxDiscriminators,
	}
}

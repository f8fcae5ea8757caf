package main

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/guardian-genomics/guardian-cli/internal/inference"
	"github.com/guardian-genomics/guardian-cli/internal/ingest"
	"github.com/guardian-genomics/guardian-cli/internal/pipeline"
	"github.com/guardian-genomics/guardian-cli/internal/report"
	"github.com/guardian-genomics/guardian-cli/internal/resilience"
	"github.com/guardian-genomics/guardian-cli/internal/rules"
	"github.com/guardian-genomics/guardian-cli/internal/store"
	"github.com/guardian-genomics/guardian-cli/pkg/litsearch"
	"github.com/guardian-genomics/guardian-cli/pkg/ollama"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "guardian.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// loadRuleSet loads the exclusion rule set from the configured file, falling
// back to the inline comma-separated list. An empty configuration yields an
// empty rule set, not an error.
func loadRuleSet() (*rules.RuleSet, error) {
	if cfg.Rules.Path != "" {
		rs, err := rules.Load(cfg.Rules.Path)
		if err != nil {
			return nil, eris.Wrap(err, "load rule set")
		}
		return rs, nil
	}
	return rules.FromList("inline", strings.Split(cfg.Rules.Exclusions, ",")), nil
}

func initBackend() (inference.Backend, error) {
	switch cfg.Inference.Backend {
	case "ollama", "":
		client := ollama.NewClient(
			ollama.WithBaseURL(cfg.Ollama.BaseURL),
			ollama.WithModel(cfg.Ollama.Model),
		)
		return inference.NewOllamaBackend(client, cfg.Ollama.Model, cfg.Inference.Temperature), nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic API key is required (GUARDIAN_ANTHROPIC_KEY)")
		}
		return inference.NewAnthropicBackend(cfg.Anthropic.Key, cfg.Anthropic.Model, cfg.Inference.Temperature), nil
	default:
		return nil, eris.Errorf("unsupported inference backend: %s", cfg.Inference.Backend)
	}
}

func initIngestor(st store.Store) *ingest.Ingestor {
	client := litsearch.NewClient(cfg.Litsearch.Key,
		litsearch.WithBaseURL(cfg.Litsearch.BaseURL),
		litsearch.WithPageSize(cfg.Litsearch.PageSize),
	)
	return ingest.New(client, st, ingest.Config{
		RequestsPerMinute: cfg.Litsearch.RequestsPerMinute,
		MaxConcurrent:     cfg.Litsearch.MaxConcurrent,
		Retry:             resilience.RetryConfig{MaxAttempts: cfg.Litsearch.MaxAttempts},
	})
}

// pipelineEnv bundles everything a pipeline-running command needs.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

func (e *pipelineEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	rs, err := loadRuleSet()
	if err != nil {
		st.Close()
		return nil, err
	}

	backend, err := initBackend()
	if err != nil {
		st.Close()
		return nil, err
	}
	engine := inference.NewEngine(backend,
		inference.WithTimeout(time.Duration(cfg.Inference.TimeoutSecs)*time.Second),
		inference.WithMaxConcurrent(cfg.Inference.MaxConcurrent),
	)

	sink := report.NewFileSink(cfg.Report.OutputDir)

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(st, initIngestor(st), engine, rs, sink),
	}, nil
}

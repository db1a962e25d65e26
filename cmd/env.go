package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/qna-cli/internal/answer"
	"github.com/sells-group/qna-cli/internal/batch"
	"github.com/sells-group/qna-cli/internal/kbsync"
	"github.com/sells-group/qna-cli/internal/prompt"
	"github.com/sells-group/qna-cli/internal/ranker"
	"github.com/sells-group/qna-cli/internal/store"
	"github.com/sells-group/qna-cli/internal/synchealth"
	anthropicpkg "github.com/sells-group/qna-cli/pkg/anthropic"
	"github.com/sells-group/qna-cli/pkg/notion"
)

// appEnv holds the initialized store and collaborators shared by the
// answer/batch/serve/sync commands.
type appEnv struct {
	Store     store.Store
	Ranker    ranker.Ranker
	Generator *answer.Generator
	Tracker   *synchealth.Tracker
	Sections  []prompt.Section
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured backend.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initEnv sets up the store, the Anthropic client, and the answer
// collaborators. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (QNA_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	var genOpts []answer.Option
	if cfg.Answer.Temperature > 0 {
		genOpts = append(genOpts, answer.WithTemperature(cfg.Answer.Temperature))
	}

	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	generator := answer.NewGenerator(
		client,
		cfg.Anthropic.Model,
		cfg.Answer.MaxTokens,
		time.Duration(cfg.Answer.TimeoutSecs)*time.Second,
		genOpts...,
	)

	return &appEnv{
		Store:     st,
		Ranker:    ranker.NewKeyword(),
		Generator: generator,
		Tracker:   synchealth.NewTracker(st),
		Sections:  promptSections(),
	}, nil
}

// promptSections builds the ordered system-prompt sections from config.
func promptSections() []prompt.Section {
	return []prompt.Section{
		{ID: "role", Title: "Role", Enabled: true, Text: cfg.Answer.SystemPrompt},
	}
}

// initSyncer wires a knowledge syncer on top of an existing environment.
func initSyncer(env *appEnv) (*kbsync.Syncer, error) {
	if cfg.Notion.Token == "" {
		return nil, eris.New("notion token is required (QNA_NOTION_TOKEN)")
	}
	if cfg.Notion.KnowledgeDB == "" {
		return nil, eris.New("notion knowledge DB ID is required (QNA_NOTION_KNOWLEDGE_DB)")
	}

	notionClient := notion.NewClient(cfg.Notion.Token)
	return kbsync.NewSyncer(env.Store, notionClient, env.Tracker, cfg.Notion.KnowledgeDB), nil
}

// newPipeline builds the row processor used by the batch command.
func newPipeline(env *appEnv) *batch.Pipeline {
	return batch.NewPipeline(env.Store, env.Ranker, env.Generator, batch.PipelineConfig{
		Sections:     env.Sections,
		FallbackText: cfg.Answer.FallbackText,
		MaxSkills:    cfg.Answer.MaxSkills,
	})
}

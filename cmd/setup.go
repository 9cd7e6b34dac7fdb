package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/printdesk/printdesk/internal/ai"
	"github.com/printdesk/printdesk/internal/bot"
	"github.com/printdesk/printdesk/internal/chunk"
	"github.com/printdesk/printdesk/internal/config"
	"github.com/printdesk/printdesk/internal/database"
	"github.com/printdesk/printdesk/internal/guard"
	"github.com/printdesk/printdesk/internal/ingest"
	"github.com/printdesk/printdesk/internal/knowledge"
	"github.com/printdesk/printdesk/internal/log"
	"github.com/printdesk/printdesk/internal/retrieve"
	"github.com/printdesk/printdesk/internal/settings"
)

// app bundles the wired components commands work with.
type app struct {
	cfg      *config.Config
	logger   log.Logger
	pool     *pgxpool.Pool
	client   *ai.Client
	store    *knowledge.Store
	settings *settings.Store
	users    *bot.Users
}

// newApp loads configuration, migrates the schema and connects
// everything. Callers must close() when done.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	client, err := ai.NewClient(ctx, cfg, logger, ai.WithSequentialEmbedding(1))
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating AI client: %w", err)
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		pool:     pool,
		client:   client,
		store:    knowledge.New(knowledge.NewQueries(pool), logger),
		settings: settings.New(settings.NewQueries(pool), logger),
		users:    bot.NewUsers(pool),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}

func (a *app) chunker() *chunk.Chunker {
	return chunk.New(
		chunk.WithSize(a.cfg.ChunkSize),
		chunk.WithOverlap(a.cfg.ChunkOverlap),
		chunk.WithMinText(a.cfg.ChunkMinText),
	)
}

func (a *app) pipeline() *ingest.Pipeline {
	extractor := ingest.NewExtractor(ingest.ExecRunner{}, a.logger,
		ingest.WithPDFToText(a.cfg.PDFToTextPath))
	return ingest.NewPipeline(extractor, a.chunker(), a.client, a.store, a.logger)
}

func (a *app) retrievers() bot.Retrievers {
	return bot.Retrievers{
		General:   retrieve.NewGeneral(a.client, a.store, a.settings, a.logger),
		Technical: retrieve.NewTechnical(a.client, a.store, a.settings, a.logger),
		Legal:     retrieve.NewLegal(a.client, a.store, a.settings, a.logger),
	}
}

func (a *app) flow() *bot.Flow {
	gate := guard.New(a.client, a.users, a.settings, a.logger)
	return bot.NewFlow(a.client, gate, a.users, a.settings,
		a.retrievers(), retrieve.NoResults, a.logger)
}

package cmd

import (
	"context"
	"log/slog"

	"github.com/askfolder/askfolder/internal/config"
	"github.com/askfolder/askfolder/internal/embed"
	"github.com/askfolder/askfolder/internal/indexer"
	"github.com/askfolder/askfolder/internal/rag"
	"github.com/askfolder/askfolder/internal/retrieval"
	"github.com/askfolder/askfolder/internal/store"
)

// app holds the wired pipeline shared by the commands.
type app struct {
	Config    *config.Config
	Store     *store.SQLiteStore
	Index     *store.NamespacedIndex
	Embedders map[string]embed.Embedder
	Scheduler *indexer.Scheduler
	Assembler *retrieval.Assembler
	Service   *rag.Service
	Generator *rag.OllamaGenerator

	logger *slog.Logger
}

// openApp loads config and wires storage, index, embedders, scheduler, and
// the ask service. Graphs are loaded from disk or rebuilt from SQLite, then
// reconciled against the chunk rows.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	logger := slog.Default()

	fs, err := store.NewSQLiteStore(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}

	idx := store.NewNamespacedIndex(cfg.VectorsDir(), logger)
	if err := idx.LoadOrRebuild(ctx, fs); err != nil {
		_ = fs.Close()
		return nil, err
	}
	if err := store.RepairConsistency(ctx, fs, idx, logger); err != nil {
		_ = idx.Close()
		_ = fs.Close()
		return nil, err
	}

	embedders, err := embed.BuildAll(ctx, cfg.Providers, logger)
	if err != nil {
		_ = idx.Close()
		_ = fs.Close()
		return nil, err
	}

	scheduler, err := indexer.NewScheduler(indexer.Deps{
		Config:    cfg,
		Store:     fs,
		Index:     idx,
		Embedders: embedders,
		Logger:    logger,
	})
	if err != nil {
		_ = idx.Close()
		_ = fs.Close()
		return nil, err
	}

	assembler := retrieval.NewAssembler(cfg, fs, idx, embedders, logger)
	generator := rag.NewOllamaGenerator(rag.OllamaGeneratorConfig{
		Host:    cfg.Generation.BaseURL,
		Model:   cfg.Generation.Model,
		Timeout: cfg.Generation.TimeoutDuration(),
	})

	return &app{
		Config:    cfg,
		Store:     fs,
		Index:     idx,
		Embedders: embedders,
		Scheduler: scheduler,
		Assembler: assembler,
		Service:   rag.NewService(assembler, generator, logger),
		Generator: generator,
		logger:    logger,
	}, nil
}

// Close releases every resource the app holds.
func (a *app) Close() {
	for _, e := range a.Embedders {
		_ = e.Close()
	}
	_ = a.Generator.Close()
	_ = a.Index.Close()
	_ = a.Store.Close()
}

// Command podwised runs the Podwise pipelines: "ingest" walks the transcript
// store into the vector index, "ask" answers one query through the retrieval
// cascade.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/podwise/podwise/internal/config"
	"github.com/podwise/podwise/internal/embedder"
	"github.com/podwise/podwise/internal/ingestion"
	"github.com/podwise/podwise/internal/llm"
	"github.com/podwise/podwise/internal/metadata"
	"github.com/podwise/podwise/internal/rag"
	"github.com/podwise/podwise/internal/taxonomy"
	"github.com/podwise/podwise/internal/transcripts"
	"github.com/podwise/podwise/internal/vectorstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		slog.Error("failed to run", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  podwised ingest [-all] [-limit N]   process transcript collections
  podwised ask -query "..." [-category C] [-podcast ID] [-language L]
                [-hybrid=false] [-deadline MS] [-session S] [-user U]
  podwised eval -queries FILE         compare the hybrid generator against
                                      the general model alone`)
}

func run(command string, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	setupLogging(cfg.LogLevel)

	pipeline, err := config.LoadPipeline(cfg.PipelineConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load pipeline config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "ingest":
		return runIngest(ctx, cfg, pipeline, args)
	case "ask":
		return runAsk(ctx, cfg, pipeline, args)
	case "eval":
		return runEval(ctx, cfg, pipeline, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func setupLogging(level string) {
	logLevel := slog.LevelInfo
	if level == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

func runIngest(ctx context.Context, cfg *config.Config, pipeline config.Pipeline, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	all := fs.Bool("all", false, "process every remaining collection instead of one cycle")
	limit := fs.Int("limit", pipeline.CollectionChunkLimit, "per-collection chunk limit (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	slog.Info("starting ingestion",
		"environment", cfg.Environment, "one_shot", *all, "cycle_size", pipeline.CycleSize)

	registry, err := taxonomy.Load(cfg.TagTablePath)
	if err != nil {
		return fmt.Errorf("failed to load tag table: %w", err)
	}
	slog.Info("loaded tag vocabulary", "tags", registry.Len())

	source, err := metadata.NewPostgresSource(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer source.Close()
	slog.Info("connected to PostgreSQL")

	store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()
	if err := store.EnsureCollection(ctx, pipeline.EmbeddingDim); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	slog.Info("connected to Qdrant")

	docs, err := transcripts.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer docs.Close(context.Background())
	slog.Info("connected to MongoDB")

	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:       cfg.OllamaURL,
		Model:         cfg.OllamaEmbeddingModel,
		RetryAttempts: pipeline.RetryAttempts,
		CallTimeout:   pipeline.CallTimeout,
	})
	batcher := embedder.NewBatcher(embed, pipeline.EmbedQueueSize, pipeline.EmbedQueueWindow)
	defer batcher.Close()
	slog.Info("initialized embedder", "model", cfg.OllamaEmbeddingModel)

	progress, err := ingestion.LoadProgress(cfg.ProgressPath)
	if err != nil {
		return err
	}
	journal, err := ingestion.NewJournal(cfg.ErrorJournalDir)
	if err != nil {
		return fmt.Errorf("failed to open error journal: %w", err)
	}

	resolver := metadata.NewResolver(source, cfg.MetadataTimeout)
	processor := ingestion.NewDocumentProcessor(
		ingestion.NewCleaner(nil),
		ingestion.NewChunker(pipeline.ChunkSize),
		registry, batcher, resolver, store, journal, pipeline.BatchSize)

	orch := ingestion.NewOrchestrator(docs, processor, progress, journal, ingestion.Options{
		Workers:       pipeline.ConcurrentWorkers,
		CycleSize:     pipeline.CycleSize,
		OneShot:       *all,
		RetryAttempts: pipeline.RetryAttempts,
		ChunkLimit:    *limit,
		StatsDir:      cfg.StatsDir,
	})

	stats, err := orch.Run(ctx)
	if stats != nil {
		slog.Info("ingestion summary",
			"cycle", stats.Cycle, "chunks", stats.TotalChunks(), "errors", journal.Records())
	}
	return err
}

func runAsk(ctx context.Context, cfg *config.Config, pipeline config.Pipeline, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	query := fs.String("query", "", "the question to answer")
	category := fs.String("category", "", "restrict to one podcast category")
	podcastID := fs.Int64("podcast", 0, "restrict to one podcast ID")
	language := fs.String("language", "", "restrict to one language")
	hybrid := fs.Bool("hybrid", true, "fan retrieval out across every search strategy")
	deadline := fs.Int("deadline", 0, "per-request deadline in milliseconds (0 = configured default)")
	session := fs.String("session", "", "session identifier for request logs")
	user := fs.String("user", "", "user identifier for request logs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	registry, err := taxonomy.Load(cfg.TagTablePath)
	if err != nil {
		return fmt.Errorf("failed to load tag table: %w", err)
	}

	store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:     cfg.OllamaURL,
		Model:       cfg.OllamaEmbeddingModel,
		CallTimeout: pipeline.CallTimeout,
	})
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithCallTimeout(pipeline.CallTimeout),
	)

	levels := rag.BuildLevels(pipeline, llmClient,
		cfg.OllamaGeneralModel, cfg.OllamaDomainModel, embed, store)
	engine := rag.NewEngine(registry, levels, pipeline.RequestDeadline())

	resp, err := engine.Ask(ctx, rag.Request{
		Query:           *query,
		UserID:          *user,
		SessionID:       *session,
		Category:        *category,
		PodcastID:       *podcastID,
		Language:        *language,
		UseHybridSearch: *hybrid,
		DeadlineMS:      *deadline,
	})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render response: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// runEval compares the hybrid generator pair against the general model alone
// over a file of queries, one per line.
func runEval(ctx context.Context, cfg *config.Config, pipeline config.Pipeline, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	queriesPath := fs.String("queries", "", "file with one query per line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *queriesPath == "" {
		return fmt.Errorf("eval requires -queries")
	}

	raw, err := os.ReadFile(*queriesPath)
	if err != nil {
		return fmt.Errorf("failed to read queries: %w", err)
	}
	var queries []string
	for _, line := range strings.Split(string(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			queries = append(queries, line)
		}
	}
	if len(queries) == 0 {
		return fmt.Errorf("no queries in %s", *queriesPath)
	}

	registry, err := taxonomy.Load(cfg.TagTablePath)
	if err != nil {
		return fmt.Errorf("failed to load tag table: %w", err)
	}

	store, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer store.Close()

	embed := embedder.NewOllamaEmbedder(embedder.OllamaConfig{
		BaseURL:     cfg.OllamaURL,
		Model:       cfg.OllamaEmbeddingModel,
		CallTimeout: pipeline.CallTimeout,
	})
	llmClient := llm.NewOllamaClient(
		llm.WithBaseURL(cfg.OllamaURL),
		llm.WithCallTimeout(pipeline.CallTimeout),
	)

	hybrid := rag.NewEngine(registry,
		rag.BuildLevels(pipeline, llmClient,
			cfg.OllamaGeneralModel, cfg.OllamaDomainModel, embed, store),
		pipeline.RequestDeadline())
	generalOnly := rag.NewEngine(registry,
		rag.BuildLevels(pipeline, llmClient,
			cfg.OllamaGeneralModel, cfg.OllamaGeneralModel, embed, store),
		pipeline.RequestDeadline())

	ask := func(engine *rag.Engine) rag.AskFunc {
		return func(ctx context.Context, query string) (*rag.Response, error) {
			return engine.Ask(ctx, rag.Request{Query: query, UseHybridSearch: true})
		}
	}

	result, err := rag.NewEvaluator().Benchmark(ctx, queries, ask(hybrid), ask(generalOnly))
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to render benchmark: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// Ensure interfaces are satisfied at compile time.
var (
	_ vectorstore.Store = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder = (*embedder.OllamaEmbedder)(nil)
	_ embedder.Embedder = (*embedder.Batcher)(nil)
	_ metadata.Source   = (*metadata.PostgresSource)(nil)
	_ transcripts.Store = (*transcripts.MongoStore)(nil)
	_ llm.LLM           = (*llm.OllamaClient)(nil)
)

// cmd/clinsearch is the command-line interface to the retrieval pipeline.
//
// Subcommands:
//
//	search    run a query through the full pipeline and print ranked results
//	feedback  record an upvote, downvote or flag for a result chunk
//
// Configuration comes from CLINSEARCH_ environment variables, optionally
// layered over a YAML file named by -config or CLINSEARCH_CONFIG.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medscribe/clinsearch/internal/config"
	"github.com/medscribe/clinsearch/internal/embedding"
	"github.com/medscribe/clinsearch/internal/engine"
	"github.com/medscribe/clinsearch/internal/feedback"
	"github.com/medscribe/clinsearch/internal/logging"
	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/internal/storage/postgres"
	"github.com/medscribe/clinsearch/internal/storage/sqlite"
	"github.com/medscribe/clinsearch/internal/temporal"
	"github.com/medscribe/clinsearch/pkg/types"
)

// searchStore is the full backend surface the CLI needs; both storage engines
// implement it.
type searchStore interface {
	storage.ChunkStore
	storage.KeywordSearcher
	storage.VectorSearcher
	storage.ChunkEmbeddingStore
	storage.FeedbackStore
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("clinsearch: ")
	log.SetFlags(0)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "search":
		runSearch(os.Args[2:])
	case "feedback":
		runFeedback(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  clinsearch search [-k N] [-json] [-config FILE] QUERY...
  clinsearch feedback -doc ID -chunk N -vote upvote|downvote|flag [-reason TEXT] [-config FILE]`)
}

func runSearch(args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.Int("k", 10, "maximum number of results")
	asJSON := fs.Bool("json", false, "print results as JSON")
	configPath := fs.String("config", os.Getenv("CLINSEARCH_CONFIG"), "YAML config file path")
	_ = fs.Parse(args)

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		usage()
		os.Exit(2)
	}

	cfg, logger := mustLoad(*configPath)
	defer func() { _ = logger.Sync() }()

	ctx := signalContext()

	embedder := buildEmbedder(ctx, cfg, logger)
	store := mustOpenStore(cfg, logger, embedder)
	defer store.Close()

	manager := feedback.NewManager(store, feedback.Config{
		MinVotesForBoost: cfg.Feedback.MinVotesForBoost,
		FlagPenalty:      cfg.Feedback.FlagPenalty,
		MaxBoost:         cfg.Feedback.MaxBoost,
	}, logger)

	service := engine.NewSearchService(store,
		engine.WithVectorSearcher(store),
		engine.WithFeedback(manager),
		engine.WithTemporalConfig(temporal.Config{
			HalfLifeDays: cfg.Temporal.HalfLifeDays,
			Floor:        cfg.Temporal.DecayFloor,
			Ceiling:      cfg.Temporal.DecayCeiling,
		}),
		engine.WithLogger(logger))

	resp, err := service.Search(ctx, engine.SearchRequest{Query: query, TopK: *topK})
	if err != nil {
		log.Fatalf("search failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			log.Fatalf("encode results: %v", err)
		}
		return
	}

	if len(resp.Results) == 0 {
		fmt.Println("no results")
		return
	}
	for i, res := range resp.Results {
		fmt.Printf("%2d. %.3f  %s#%d", i+1, res.Score, res.DocumentID, res.ChunkIndex)
		if !res.CreatedAt.IsZero() {
			fmt.Printf("  (%s)", res.CreatedAt.Format("2006-01-02"))
		}
		fmt.Printf("\n    %s\n", snippet(res.Text, 120))
	}
}

func runFeedback(args []string) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	docID := fs.String("doc", "", "document ID")
	chunkIndex := fs.Int("chunk", 0, "chunk index")
	vote := fs.String("vote", "", "feedback type: upvote, downvote or flag")
	reason := fs.String("reason", "", "optional explanation (used with flags)")
	queryText := fs.String("query", "", "query that produced the result")
	configPath := fs.String("config", os.Getenv("CLINSEARCH_CONFIG"), "YAML config file path")
	_ = fs.Parse(args)

	if *docID == "" || *vote == "" {
		usage()
		os.Exit(2)
	}

	cfg, logger := mustLoad(*configPath)
	defer func() { _ = logger.Sync() }()

	store := mustOpenStore(cfg, logger, nil)
	defer store.Close()

	manager := feedback.NewManager(store, feedback.Config{
		MinVotesForBoost: cfg.Feedback.MinVotesForBoost,
		FlagPenalty:      cfg.Feedback.FlagPenalty,
		MaxBoost:         cfg.Feedback.MaxBoost,
	}, logger)

	ctx := signalContext()
	err := manager.RecordFeedback(ctx, &types.FeedbackRecord{
		DocumentID: *docID,
		ChunkIndex: *chunkIndex,
		Type:       types.FeedbackType(*vote),
		Reason:     *reason,
		QueryText:  *queryText,
	})
	if err != nil {
		log.Fatalf("record feedback: %v", err)
	}

	boost := manager.GetBoost(ctx, *docID, *chunkIndex)
	fmt.Printf("recorded %s for %s#%d (boost %.3f, confidence %.2f)\n",
		*vote, *docID, *chunkIndex, boost.BoostFactor, boost.Confidence)
}

func mustLoad(configPath string) (*config.Config, *zap.Logger) {
	cfg, err := config.LoadConfigFile(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	return cfg, logger
}

// buildEmbedder assembles the embedding stack: HTTP client behind a circuit
// breaker, local LRU cache, optional Redis cache, optional rate limiter.
func buildEmbedder(ctx context.Context, cfg *config.Config, logger *zap.Logger) embedding.Provider {
	client := embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.Embedding.OllamaURL,
		Model:   cfg.Embedding.Model,
		Timeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
		Breaker: embedding.BreakerConfig{
			MaxFailures: uint32(cfg.Embedding.BreakerMaxFailures),
			Timeout:     time.Duration(cfg.Embedding.BreakerTimeoutSeconds) * time.Second,
		},
	})

	var caches []embedding.Cache
	local, err := embedding.NewLocalCache(cfg.Embedding.LocalCacheSize)
	if err != nil {
		log.Fatalf("create embedding cache: %v", err)
	}
	caches = append(caches, local)

	if cfg.Embedding.RedisAddr != "" {
		redis, err := embedding.NewRedisCache(ctx, embedding.RedisCacheConfig{
			Addr: cfg.Embedding.RedisAddr,
			TTL:  time.Duration(cfg.Embedding.RedisTTLHours) * time.Hour,
		})
		if err != nil {
			logger.Warn("redis cache unavailable, continuing with local cache only", zap.Error(err))
		} else {
			caches = append(caches, redis)
		}
	}

	var limiter *rate.Limiter
	if cfg.Embedding.RateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Embedding.RateLimitPerSecond), cfg.Embedding.RateLimitPerSecond)
	}

	return embedding.NewCachedProvider(client, caches, limiter, logger)
}

func mustOpenStore(cfg *config.Config, logger *zap.Logger, embedder embedding.Provider) searchStore {
	switch cfg.Storage.Engine {
	case "postgres":
		var opts []postgres.Option
		opts = append(opts, postgres.WithRankMultiplier(cfg.Storage.RankMultiplier))
		if embedder != nil {
			opts = append(opts, postgres.WithEmbedder(embedder))
		}
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, logger, opts...)
		if err != nil {
			log.Fatalf("open postgres store: %v", err)
		}
		return store
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o700); err != nil {
			log.Fatalf("create data directory: %v", err)
		}
		var opts []sqlite.Option
		if embedder != nil {
			opts = append(opts, sqlite.WithEmbedder(embedder))
		}
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath, logger, opts...)
		if err != nil {
			log.Fatalf("open sqlite store: %v", err)
		}
		return store
	}
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func snippet(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "…"
}

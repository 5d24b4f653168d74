// cmd/clinsearch-setup initializes a clinsearch backend and optionally loads
// documents into it.
//
//	clinsearch-setup [-config FILE]              create the schema and exit
//	clinsearch-setup -check                      also probe the embedding server
//	clinsearch-setup -ingest DIR                 index .txt/.md files from DIR
//
// Ingestion splits each file on blank lines into paragraph chunks, stores
// them, and embeds them when the embedding server is reachable. The file
// modification time becomes the chunk timestamp used by temporal ranking.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/medscribe/clinsearch/internal/config"
	"github.com/medscribe/clinsearch/internal/embedding"
	"github.com/medscribe/clinsearch/internal/entity"
	"github.com/medscribe/clinsearch/internal/logging"
	"github.com/medscribe/clinsearch/internal/storage"
	"github.com/medscribe/clinsearch/internal/storage/postgres"
	"github.com/medscribe/clinsearch/internal/storage/sqlite"
	"github.com/medscribe/clinsearch/pkg/types"
)

// maxChunkChars bounds paragraph merging during ingestion.
const maxChunkChars = 1200

type setupStore interface {
	storage.ChunkStore
	storage.ChunkEmbeddingStore
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("clinsearch-setup: ")
	log.SetFlags(0)

	configPath := flag.String("config", os.Getenv("CLINSEARCH_CONFIG"), "YAML config file path")
	ingestDir := flag.String("ingest", "", "directory of .txt/.md files to index")
	check := flag.Bool("check", false, "probe the embedding server")
	withEntities := flag.Bool("entities", false, "classify and deduplicate known abbreviations during ingestion")
	flag.Parse()

	cfg, err := config.LoadConfigFile(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	client := embedding.NewClient(embedding.ClientConfig{
		BaseURL: cfg.Embedding.OllamaURL,
		Model:   cfg.Embedding.Model,
		Timeout: time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second,
	})

	embeddingsAvailable := true
	if err := client.HealthCheck(ctx); err != nil {
		embeddingsAvailable = false
		if *check {
			log.Fatalf("embedding server check failed: %v", err)
		}
		logger.Warn("embedding server unreachable, ingesting without embeddings", zap.Error(err))
	} else if *check {
		fmt.Printf("embedding server ok (%s, model %s)\n", cfg.Embedding.OllamaURL, cfg.Embedding.Model)
	}

	store := openStore(cfg, logger)
	defer store.Close()
	fmt.Printf("schema ready (%s engine)\n", cfg.Storage.Engine)

	if *ingestDir == "" {
		return
	}

	var embedder embedding.Provider
	if embeddingsAvailable {
		local, err := embedding.NewLocalCache(cfg.Embedding.LocalCacheSize)
		if err != nil {
			log.Fatalf("create embedding cache: %v", err)
		}
		var limiter *rate.Limiter
		if cfg.Embedding.RateLimitPerSecond > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.Embedding.RateLimitPerSecond), cfg.Embedding.RateLimitPerSecond)
		}
		embedder = embedding.NewCachedProvider(client, []embedding.Cache{local}, limiter, logger)
	}

	var entities *entityIndexer
	if *withEntities {
		entities = newEntityIndexer(cfg, embedder, logger)
	}

	stored, embedded, err := ingestDirectory(ctx, store, embedder, entities, *ingestDir, logger)
	if err != nil {
		log.Fatalf("ingest %s: %v", *ingestDir, err)
	}
	fmt.Printf("indexed %d chunks (%d embedded)\n", stored, embedded)
	if entities != nil {
		fmt.Printf("classified %d entity mentions into %d clusters\n",
			entities.mentions, len(entities.dedup.Clusters()))
	}
}

// entityIndexer spots known abbreviations in chunk text and folds them into
// canonical clusters.
type entityIndexer struct {
	classifier *entity.Classifier
	dedup      *entity.Deduplicator
	logger     *zap.Logger
	mentions   int
}

func newEntityIndexer(cfg *config.Config, embedder embedding.Provider, logger *zap.Logger) *entityIndexer {
	classifierOpts := []entity.ClassifierOption{entity.WithClassifierLogger(logger)}
	dedupOpts := []entity.DeduplicatorOption{
		entity.WithDedupLogger(logger),
		entity.WithFuzzyMatchThreshold(cfg.Entity.FuzzyMatchThreshold),
		entity.WithEmbeddingMatchThreshold(cfg.Entity.EmbeddingMatchThreshold),
	}
	if embedder != nil {
		prototypes, err := entity.BuildPrototypes(context.Background(), embedder, logger)
		if err != nil {
			logger.Warn("prototype build failed, classifying by keywords only", zap.Error(err))
		} else {
			classifierOpts = append(classifierOpts, entity.WithEmbeddingBlend(embedder, prototypes))
		}
		dedupOpts = append(dedupOpts, entity.WithDedupEmbeddings(embedder))
	}
	return &entityIndexer{
		classifier: entity.NewClassifier(classifierOpts...),
		dedup:      entity.NewDeduplicator(dedupOpts...),
		logger:     logger,
	}
}

func (ix *entityIndexer) index(ctx context.Context, docID, text string) {
	for _, mention := range entity.SpotAbbreviations(text) {
		result := ix.classifier.Classify(ctx, mention, text)
		if _, err := ix.dedup.Deduplicate(ctx, mention, result.PredictedType, docID, result.Confidence); err != nil {
			ix.logger.Warn("entity dedup failed", zap.String("mention", mention), zap.Error(err))
			continue
		}
		ix.mentions++
	}
}

func openStore(cfg *config.Config, logger *zap.Logger) setupStore {
	switch cfg.Storage.Engine {
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN, logger,
			postgres.WithRankMultiplier(cfg.Storage.RankMultiplier))
		if err != nil {
			log.Fatalf("open postgres store: %v", err)
		}
		return store
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o700); err != nil {
			log.Fatalf("create data directory: %v", err)
		}
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath, logger)
		if err != nil {
			log.Fatalf("open sqlite store: %v", err)
		}
		return store
	}
}

// ingestDirectory indexes every .txt and .md file under dir, one document per
// file. A chunk that fails to embed is still stored and searchable by keyword.
func ingestDirectory(ctx context.Context, store setupStore, embedder embedding.Provider, entities *entityIndexer, dir string, logger *zap.Logger) (stored, embedded int, err error) {
	walkErr := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".txt" && ext != ".md" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		docID := strings.TrimSuffix(filepath.Base(path), ext)
		docType := "txt"
		for i, text := range splitChunks(string(data)) {
			chunk := &types.DocumentChunk{
				DocumentID:   docID,
				ChunkIndex:   i,
				Text:         text,
				DocumentType: docType,
				CreatedAt:    info.ModTime(),
				Metadata:     map[string]interface{}{"source_path": path},
			}
			if err := store.StoreChunk(ctx, chunk); err != nil {
				return fmt.Errorf("store %s#%d: %w", docID, i, err)
			}
			stored++

			if entities != nil {
				entities.index(ctx, docID, text)
			}

			if embedder == nil {
				continue
			}
			vector, err := embedder.Embed(ctx, text)
			if err != nil {
				logger.Warn("embedding failed, chunk stored without vector",
					zap.String("document_id", docID), zap.Int("chunk_index", i), zap.Error(err))
				continue
			}
			if err := store.StoreChunkEmbedding(ctx, docID, i, vector, embedder.Model()); err != nil {
				return fmt.Errorf("store embedding %s#%d: %w", docID, i, err)
			}
			embedded++
		}
		return nil
	})
	return stored, embedded, walkErr
}

// splitChunks breaks text on blank lines and merges paragraphs up to
// maxChunkChars so tiny fragments do not become standalone chunks.
func splitChunks(text string) []string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxChunkChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

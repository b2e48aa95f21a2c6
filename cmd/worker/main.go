/**
 * ErrorScope Analysis Worker - Main Entry Point
 *
 * Go worker for error screenshot analysis.
 *
 * Architecture:
 * - Asynq consumer for Redis-backed job queue
 * - Image preprocessing pipeline (deskew, CLAHE, adaptive threshold)
 * - Multi-engine OCR ensemble: Tesseract, Google Cloud Vision, vision LLM
 * - Rule-based + LLM error classification
 * - Hybrid knowledge base search: Postgres lexical + Qdrant semantic
 * - Web search for community solutions
 * - Redis cache of completed analyses
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/errorscope/analysis-worker/internal/analyzer"
	"github.com/errorscope/analysis-worker/internal/cache"
	"github.com/errorscope/analysis-worker/internal/classify"
	"github.com/errorscope/analysis-worker/internal/config"
	"github.com/errorscope/analysis-worker/internal/kb"
	"github.com/errorscope/analysis-worker/internal/logging"
	"github.com/errorscope/analysis-worker/internal/ocr"
	"github.com/errorscope/analysis-worker/internal/preprocess"
	"github.com/errorscope/analysis-worker/internal/queue"
	"github.com/errorscope/analysis-worker/internal/websearch"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(".env.errorscope"); err != nil {
		log.Printf("Warning: .env.errorscope not found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.SetLevel(logging.ParseLevel(cfg.LogLevel))

	log.Printf("ErrorScope Analysis Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, Qdrant=%s, Workers=%d",
		cfg.RedisURL, cfg.QdrantURL, cfg.WorkerConcurrency)

	// Initialize the solution store (also backs the history audit trail)
	log.Printf("Connecting to PostgreSQL...")
	store, err := kb.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize solution store: %v", err)
	}
	defer store.Close()
	log.Printf("Solution store initialized")

	// Semantic search needs both the vector index and the embedder; without
	// a Voyage key the knowledge base runs lexical-only.
	var index kb.VectorIndex
	var embedder kb.Embedder
	if cfg.VoyageAPIKey != "" {
		log.Printf("Connecting to Qdrant at %s...", cfg.QdrantURL)
		qdrantIndex, err := kb.NewQdrantIndex(cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			log.Fatalf("Failed to initialize vector index: %v", err)
		}
		defer qdrantIndex.Close()

		embeddingClient, err := kb.NewEmbeddingClient(cfg.VoyageAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize embedding client: %v", err)
		}

		index = qdrantIndex
		embedder = embeddingClient
		log.Printf("Semantic search enabled (collection=%s)", cfg.QdrantCollection)
	} else {
		log.Printf("VOYAGE_API_KEY not set, knowledge base runs lexical search only")
	}

	knowledgeBase, err := kb.NewKnowledgeBase(store, index, embedder)
	if err != nil {
		log.Fatalf("Failed to initialize knowledge base: %v", err)
	}

	// Assemble the OCR ensemble
	engines, cleanup := buildEngines(cfg)
	defer cleanup()
	if len(engines) == 0 {
		log.Fatalf("No OCR engines available")
	}
	extractor := ocr.NewExtractor(engines, time.Duration(cfg.EngineTimeoutMs)*time.Millisecond)

	// Classifier: LLM when a key is configured, rules otherwise
	var llm classify.LLMClassifier
	if cfg.OpenRouterAPIKey != "" {
		llmClient, err := classify.NewLLMClient("", cfg.OpenRouterModel, cfg.OpenRouterAPIKey)
		if err != nil {
			log.Fatalf("Failed to initialize LLM classifier: %v", err)
		}
		llm = llmClient
		log.Printf("LLM classification enabled (model=%s)", cfg.OpenRouterModel)
	} else {
		log.Printf("OPENROUTER_API_KEY not set, using rule-based classification only")
	}
	classifier := classify.NewClassifier(llm)

	// Result cache shares the queue's Redis; losing it is not fatal
	var analysisCache *cache.AnalysisCache
	if c, err := cache.NewAnalysisCache(cfg.RedisURL, time.Duration(cfg.CacheTTLSec)*time.Second); err != nil {
		log.Printf("Warning: analysis cache unavailable, every job runs the full pipeline: %v", err)
	} else {
		analysisCache = c
		defer analysisCache.Close()
		log.Printf("Analysis cache initialized (TTL=%ds)", cfg.CacheTTLSec)
	}

	// Wire the pipeline
	a, err := analyzer.NewAnalyzer(analyzer.Config{
		Preprocessor:  preprocess.NewPreprocessor(cfg.MinImageWidth),
		Extractor:     extractor,
		Classifier:    classifier,
		KnowledgeBase: knowledgeBase,
		History:       store,
		Searcher:      websearch.NewSearcher(time.Duration(cfg.SearchTimeoutSec) * time.Second),
		Cache:         analysisCache,
		MaxResults:    cfg.MaxSearchResults,
	})
	if err != nil {
		log.Fatalf("Failed to initialize analyzer: %v", err)
	}

	// Initialize queue consumer
	log.Printf("Connecting to Redis queue...")
	consumer, err := queue.NewConsumer(&queue.ConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         "errorscope:jobs",
		Concurrency:       cfg.WorkerConcurrency,
		Analyzer:          a,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := consumer.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("ErrorScope Analysis Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: errorscope:jobs")
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("OCR engines: %d", len(engines))
	log.Printf("Semantic search: %v", knowledgeBase.SemanticEnabled())
	log.Printf("===========================================")
	log.Printf("Waiting for jobs...")

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumer.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	}

	log.Printf("Shutdown complete")
}

// buildEngines assembles the configured OCR engines. Tesseract is always
// attempted; Google Vision and the vision LLM are opt-in.
func buildEngines(cfg *config.Config) ([]ocr.Engine, func()) {
	var engines []ocr.Engine
	var closers []func()

	tesseract, err := ocr.NewTesseractEngine(cfg.OCRLanguages)
	if err != nil {
		log.Printf("Warning: Tesseract engine unavailable: %v", err)
	} else {
		engines = append(engines, tesseract)
		log.Printf("Tesseract engine initialized (languages=%v)", cfg.OCRLanguages)
	}

	if cfg.GoogleVisionEnabled {
		gv, err := ocr.NewGoogleVisionEngine(context.Background())
		if err != nil {
			log.Printf("Warning: Google Vision engine unavailable: %v", err)
		} else {
			engines = append(engines, gv)
			closers = append(closers, func() {
				if err := gv.Close(); err != nil {
					log.Printf("Error closing Google Vision client: %v", err)
				}
			})
			log.Printf("Google Vision engine initialized")
		}
	}

	if cfg.VisionOCRURL != "" {
		vllm, err := ocr.NewVisionLLMEngine(cfg.VisionOCRURL, cfg.VisionOCRModel,
			cfg.OpenRouterAPIKey, cfg.VisionOCRConfidence)
		if err != nil {
			log.Printf("Warning: vision LLM engine unavailable: %v", err)
		} else {
			engines = append(engines, vllm)
			log.Printf("Vision LLM engine initialized (model=%s)", cfg.VisionOCRModel)
		}
	}

	cleanup := func() {
		for _, close := range closers {
			close()
		}
	}
	return engines, cleanup
}

/**
 * Screenshot Analyzer for ErrorScope Analysis Worker
 *
 * Orchestrates the full pipeline: preprocessing, OCR ensemble, best
 * hypothesis selection, classification, knowledge base search and web
 * search. Only three failures abort an analysis: an undecodable image,
 * all OCR engines failing, and a failed history write. Everything else
 * degrades with a log line.
 */

package analyzer

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/errorscope/analysis-worker/internal/apperrors"
	"github.com/errorscope/analysis-worker/internal/cache"
	"github.com/errorscope/analysis-worker/internal/classify"
	"github.com/errorscope/analysis-worker/internal/kb"
	"github.com/errorscope/analysis-worker/internal/ocr"
	"github.com/errorscope/analysis-worker/internal/preprocess"
	"github.com/errorscope/analysis-worker/internal/websearch"
)

// Request is one screenshot analysis job
type Request struct {
	JobID      string
	ImageData  []byte
	MaxResults int
}

// Result is the full analysis output
type Result struct {
	JobID            string                  `json:"job_id"`
	RecognizedText   string                  `json:"recognized_text"`
	Engine           string                  `json:"engine"`
	Confidence       float64                 `json:"confidence"`
	ErrorCodes       []string                `json:"error_codes"`
	PrimaryCode      string                  `json:"primary_code"`
	Classification   classify.Classification `json:"classification"`
	Solutions        []*kb.Solution          `json:"solutions"`
	WebResults       []websearch.Result      `json:"web_results"`
	HistoryID        int64                   `json:"history_id"`
	ProcessingTimeMs int64                   `json:"processing_time_ms"`
	FromCache        bool                    `json:"from_cache"`
}

// Analyzer runs the analysis pipeline
type Analyzer struct {
	preprocessor  *preprocess.Preprocessor
	extractor     *ocr.Extractor
	classifier    *classify.Classifier
	knowledgeBase *kb.KnowledgeBase
	history       kb.HistoryStore
	searcher      *websearch.Searcher
	cache         *cache.AnalysisCache
	maxResults    int
}

// Config wires the analyzer's collaborators. Cache is optional; everything
// else is required.
type Config struct {
	Preprocessor  *preprocess.Preprocessor
	Extractor     *ocr.Extractor
	Classifier    *classify.Classifier
	KnowledgeBase *kb.KnowledgeBase
	History       kb.HistoryStore
	Searcher      *websearch.Searcher
	Cache         *cache.AnalysisCache
	MaxResults    int
}

// NewAnalyzer validates the wiring and creates the analyzer
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if cfg.Preprocessor == nil {
		return nil, fmt.Errorf("preprocessor is required")
	}
	if cfg.Extractor == nil {
		return nil, fmt.Errorf("extractor is required")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if cfg.KnowledgeBase == nil {
		return nil, fmt.Errorf("knowledge base is required")
	}
	if cfg.History == nil {
		return nil, fmt.Errorf("history store is required")
	}
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("web searcher is required")
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}

	return &Analyzer{
		preprocessor:  cfg.Preprocessor,
		extractor:     cfg.Extractor,
		classifier:    cfg.Classifier,
		knowledgeBase: cfg.KnowledgeBase,
		history:       cfg.History,
		searcher:      cfg.Searcher,
		cache:         cfg.Cache,
		maxResults:    cfg.MaxResults,
	}, nil
}

// Analyze runs the pipeline for one screenshot
func (a *Analyzer) Analyze(ctx context.Context, req *Request) (*Result, error) {
	startTime := time.Now()
	jobID := req.JobID

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = a.maxResults
	}

	// Step 0: cache lookup
	if a.cache != nil {
		var cached Result
		found, err := a.cache.Get(ctx, req.ImageData, &cached)
		if err != nil {
			log.Printf("[Job %s] Cache lookup failed, running full pipeline: %v", jobID, err)
		} else if found {
			log.Printf("[Job %s] Cache hit, skipping pipeline", jobID)
			cached.JobID = jobID
			cached.FromCache = true
			return &cached, nil
		}
	}

	// Step 1: preprocess the screenshot
	log.Printf("[Job %s] Step 1: Preprocessing image (%d bytes)", jobID, len(req.ImageData))
	img, err := a.preprocessor.Preprocess(req.ImageData)
	if err != nil {
		return nil, apperrors.NewDecodeFailedError(jobID, err)
	}

	// Step 2: run the OCR ensemble
	log.Printf("[Job %s] Step 2: Running OCR ensemble (%d engines)", jobID, a.extractor.Engines())
	hypotheses := a.extractor.Extract(ctx, img)
	if len(hypotheses) == 0 {
		return nil, apperrors.NewNoTextRecognizedError(jobID, a.extractor.Engines())
	}

	// Step 3: select the best hypothesis
	best := ocr.SelectBest(hypotheses)
	text := ocr.CleanText(best.Text)
	if text == "" {
		return nil, apperrors.NewNoTextRecognizedError(jobID, a.extractor.Engines())
	}
	log.Printf("[Job %s] Step 3: Selected %s hypothesis (confidence %.1f, %d chars)",
		jobID, best.Engine, best.Confidence, len(text))

	// Step 4: extract structured error info
	info := ocr.ExtractStructuredInfo(text)
	log.Printf("[Job %s] Step 4: Extracted info (code=%q, app hint=%q)",
		jobID, info.PrimaryCode, info.ApplicationHint)

	// Step 5: classify
	classification := a.classifier.Classify(ctx, text, info.ApplicationHint)
	log.Printf("[Job %s] Step 5: Classified as %s/%s severity=%s confidence=%.1f",
		jobID, classification.ApplicationType, classification.ErrorCategory,
		classification.Severity, classification.Confidence)

	// Step 6: knowledge base search
	query := searchQuery(text, info, classification)
	appFilter := classification.ApplicationType
	if appFilter == "unknown" {
		appFilter = ""
	}
	solutions, err := a.knowledgeBase.Search(ctx, query, appFilter, maxResults)
	if err != nil {
		log.Printf("[Job %s] Step 6: Knowledge base search failed, continuing without: %v", jobID, err)
		solutions = nil
	} else {
		log.Printf("[Job %s] Step 6: Found %d known solutions", jobID, len(solutions))
	}

	// Step 7: web search, kept as a separate list alongside KB results
	webResults := a.searcher.Search(ctx, query, classification.ApplicationType, maxResults)
	log.Printf("[Job %s] Step 7: Web search returned %d results", jobID, len(webResults))

	// Step 8: record the analysis
	record := &kb.HistoryRecord{
		ErrorText:        text,
		ErrorType:        classification.ErrorCategory,
		ApplicationType:  classification.ApplicationType,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}
	if len(solutions) > 0 {
		record.SolutionID = solutions[0].ID
		record.SolutionTitle = firstLine(solutions[0].SolutionText)
	}
	historyID, err := a.history.RecordAnalysis(ctx, record)
	if err != nil {
		return nil, apperrors.NewStorageFailedError(jobID, err)
	}

	result := &Result{
		JobID:            jobID,
		RecognizedText:   text,
		Engine:           best.Engine,
		Confidence:       best.Confidence,
		ErrorCodes:       info.Codes,
		PrimaryCode:      info.PrimaryCode,
		Classification:   classification,
		Solutions:        solutions,
		WebResults:       webResults,
		HistoryID:        historyID,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, req.ImageData, result); err != nil {
			log.Printf("[Job %s] Failed to cache result: %v", jobID, err)
		}
	}

	log.Printf("[Job %s] Analysis complete in %dms", jobID, result.ProcessingTimeMs)
	return result, nil
}

// searchQuery builds the knowledge base query from the extracted message
// and the classifier's keywords
func searchQuery(text string, info ocr.StructuredErrorInfo, classification classify.Classification) string {
	if info.ErrorMessage != "" {
		return info.ErrorMessage
	}
	if len(classification.Keywords) > 0 {
		return strings.Join(classification.Keywords, " ")
	}
	if len(text) > 200 {
		return text[:200]
	}
	return text
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

/**
 * Queue Consumer for ErrorScope Analysis Worker
 *
 * Consumes screenshot analysis jobs from Redis using Asynq. The payload
 * carries the screenshot either inline as base64 or as a URL to fetch.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/errorscope/analysis-worker/internal/analyzer"
	"github.com/errorscope/analysis-worker/internal/apperrors"
	"github.com/errorscope/analysis-worker/internal/logging"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskTypeAnalyze is the task type for screenshot analysis jobs
const TaskTypeAnalyze = "screenshot:analyze"

// JobData is the analysis job payload
type JobData struct {
	JobID       string `json:"jobId"`
	UserID      string `json:"userId"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	MaxResults  int    `json:"maxResults,omitempty"`
}

// Consumer handles job consumption from the Redis queue
type Consumer struct {
	client   *asynq.Client
	server   *asynq.Server
	mux      *asynq.ServeMux
	analyzer *analyzer.Analyzer
	config   *ConsumerConfig
	http     *http.Client
	log      *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Analyzer          *analyzer.Analyzer
	ProcessingTimeout int64 // milliseconds
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("Analyzer is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("Queue")
	client := asynq.NewClient(redisOpt)

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing failed", "type", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()

	consumer := &Consumer{
		client:   client,
		server:   server,
		mux:      mux,
		analyzer: cfg.Analyzer,
		config:   cfg,
		http:     &http.Client{Timeout: 30 * time.Second},
		log:      logger,
	}

	mux.HandleFunc(TaskTypeAnalyze, consumer.handleAnalyzeScreenshot)

	return consumer, nil
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	go func() {
		if err := c.server.Run(c.mux); err != nil {
			c.log.Error("Queue consumer stopped with error", "error", err)
		}
	}()

	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.log.Info("Stopping queue consumer")

	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}

	c.log.Info("Queue consumer stopped")
	return nil
}

// Enqueue submits an analysis job, for CLI and test tooling
func (c *Consumer) Enqueue(ctx context.Context, job *JobData) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = c.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeAnalyze, payload),
		asynq.Queue(c.config.QueueName))
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// handleAnalyzeScreenshot processes one analysis job
func (c *Consumer) handleAnalyzeScreenshot(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	var job JobData
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job data: %w", err)
	}
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}

	jobLog := c.log.WithJob(job.JobID)
	jobLog.Info("Received screenshot analysis job", "user", job.UserID)

	imageData, err := c.resolveImage(ctx, &job)
	if err != nil {
		return fmt.Errorf("failed to resolve screenshot: %w", err)
	}

	timeout := 300 * time.Second
	if c.config.ProcessingTimeout > 0 {
		timeout = time.Duration(c.config.ProcessingTimeout) * time.Millisecond
	}

	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.analyzer.Analyze(processCtx, &analyzer.Request{
		JobID:      job.JobID,
		ImageData:  imageData,
		MaxResults: job.MaxResults,
	})

	duration := time.Since(startTime)

	if err != nil {
		if processCtx.Err() == context.DeadlineExceeded {
			jobLog.Error("Analysis timed out", "duration", duration)
			return fmt.Errorf("analysis timeout: %w",
				apperrors.NewProcessingTimeoutError(job.JobID, timeout, err))
		}
		jobLog.Error("Analysis failed", "duration", duration, "error", err)
		return fmt.Errorf("screenshot analysis failed: %w", err)
	}

	jobLog.Info("Analysis completed",
		"duration", duration,
		"engine", result.Engine,
		"app", result.Classification.ApplicationType,
		"solutions", len(result.Solutions),
		"web", len(result.WebResults))

	return nil
}

// resolveImage decodes the inline payload or fetches the screenshot URL
func (c *Consumer) resolveImage(ctx context.Context, job *JobData) ([]byte, error) {
	if job.ImageBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(job.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 image data: %w", err)
		}
		return data, nil
	}

	if job.ImageURL == "" {
		return nil, fmt.Errorf("job carries neither imageBase64 nor imageUrl")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.ImageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	// Screenshots are small; cap the read to keep a bad URL from flooding memory
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image fetch returned empty body")
	}
	return data, nil
}

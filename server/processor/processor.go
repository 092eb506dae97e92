// Package processor runs trial analysis for the HTTP, websocket and CLI front ends. It
// caches results, persists reports and queues video uploads for pose extraction.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/probowler/server/analysis"
	"github.com/san-kum/probowler/server/cache"
	"github.com/san-kum/probowler/server/config"
	"github.com/san-kum/probowler/server/metrics"
	"github.com/san-kum/probowler/server/models"
	"github.com/san-kum/probowler/server/pose"
	"github.com/san-kum/probowler/server/store"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrQueueFull      = errors.New("processing queue full, try again later")
	ErrJobNotFound    = errors.New("job not found")
)

// jobRetention is how long finished jobs stay queryable.
const jobRetention = time.Hour

// Extractor turns a delivery video into a landmark sequence.
type Extractor interface {
	ExtractLandmarks(ctx context.Context, video []byte, filename string) (analysis.Sequence, error)
}

type TrialProcessor struct {
	extractor Extractor
	cache     cache.Cache
	reports   *store.ReportRepository
	logger    *zap.Logger
	config    config.ProcessorConfig
	options   analysis.Options
	queue     *ProcessingQueue
	stats     *ProcessorStats
	mutex     sync.RWMutex
	jobs      map[string]*models.Job
	ctx       context.Context
	cancel    context.CancelFunc
}

type ProcessorStats struct {
	StartTime             time.Time `json:"start_time"`
	TotalProcessed        int64     `json:"total_processed"`
	SuccessfullyProcessed int64     `json:"successfully_processed"`
	FailedProcessed       int64     `json:"failed_processed"`
	CacheHits             int64     `json:"cache_hits"`
	AverageLatency        float64   `json:"average_latency_ms"`
	QueueSize             int       `json:"queue_size"`
	ActiveWorkers         int       `json:"active_workers"`
	TrackedJobs           int       `json:"tracked_jobs"`
}

// NewTrialProcessor starts the video worker pool. extractor, c and reports may be nil:
// video uploads then fail with pose.ErrUnavailable, and results are neither cached nor
// stored.
func NewTrialProcessor(cfg config.ProcessorConfig, opts analysis.Options, extractor Extractor, c cache.Cache, reports *store.ReportRepository, logger *zap.Logger) *TrialProcessor {
	ctx, cancel := context.WithCancel(context.Background())

	processor := &TrialProcessor{
		extractor: extractor,
		cache:     c,
		reports:   reports,
		logger:    logger,
		config:    cfg,
		options:   opts,
		stats: &ProcessorStats{
			StartTime:     time.Now(),
			ActiveWorkers: cfg.Workers,
		},
		jobs:   make(map[string]*models.Job),
		ctx:    ctx,
		cancel: cancel,
	}

	processor.queue = NewProcessingQueue(cfg.QueueSize, cfg.Workers, processor.processVideo, processor.recoverVideo)

	return processor
}

// Options returns the configured analysis options.
func (tp *TrialProcessor) Options() analysis.Options {
	return tp.options
}

// Analyze runs the pipeline on seq, serving repeated trials from the cache. New results
// are stored under a fresh report ID.
func (tp *TrialProcessor) Analyze(ctx context.Context, source store.Source, trialID string, seq analysis.Sequence, opts analysis.Options) (*models.AnalysisResult, error) {
	startTime := time.Now()

	cacheKey, cacheable := reportCacheKey(trialID, seq, opts)
	if tp.cache != nil && cacheable {
		var cached models.AnalysisResult
		err := tp.cache.Get(ctx, cacheKey, &cached)
		if err == nil && !tp.reportExists(ctx, cached.ReportID) {
			tp.logger.Debug("Cached report was deleted", zap.String("trial_id", trialID), zap.String("report_id", cached.ReportID))
			if err := tp.cache.Delete(ctx, cacheKey); err != nil {
				tp.logger.Warn("Failed to evict cached result", zap.Error(err))
			}
			err = cache.ErrCacheMiss
		}
		switch {
		case err == nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			tp.logger.Debug("Cache hit for trial", zap.String("trial_id", trialID), zap.String("key", cacheKey))
			tp.recordCacheHit()
			cached.Cached = true
			return &cached, nil
		case errors.Is(err, cache.ErrCacheMiss):
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		default:
			metrics.CacheLookups.WithLabelValues("error").Inc()
			tp.logger.Warn("Cache lookup failed", zap.Error(err))
		}
	}

	if tp.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tp.config.Timeout)
		defer cancel()
	}

	report, err := analysis.Analyze(ctx, seq, opts)
	if err != nil {
		tp.recordOutcome(source, time.Since(startTime), err)
		return nil, err
	}

	result := models.NewAnalysisResult(trialID, report)

	if tp.reports != nil {
		rec := &store.ReportRecord{
			ID:           uuid.NewString(),
			TrialID:      trialID,
			Source:       source,
			DominantSide: dominantSide(opts),
			Report:       report,
		}
		if err := tp.reports.Create(ctx, rec); err != nil {
			tp.logger.Warn("Failed to store report", zap.String("trial_id", trialID), zap.Error(err))
		} else {
			result.ReportID = rec.ID
		}
	}

	latency := time.Since(startTime)
	result.ProcessingTime = float64(latency.Microseconds()) / 1000
	tp.recordOutcome(source, latency, nil)
	metrics.AnalysisFrames.Observe(float64(len(seq)))
	if report.Events.Fallback {
		metrics.FallbackEvents.Inc()
	}

	tp.logger.Info("Trial analyzed",
		zap.String("trial_id", trialID),
		zap.String("source", string(source)),
		zap.Int("frames", len(seq)),
		zap.Stringer("ffc_frame", report.Events.FFC),
		zap.Stringer("release_frame", report.Events.Release),
		zap.Bool("fallback", report.Events.Fallback),
		zap.Int("rows", len(report.Rows)),
		zap.Duration("latency", latency))

	if tp.cache != nil && cacheable {
		if err := tp.cache.Set(ctx, cacheKey, result); err != nil {
			tp.logger.Warn("Failed to cache result", zap.Error(err))
		}
	}

	return result, nil
}

// reportExists reports whether a cached result's report is still stored. Results that
// were never stored, and lookups that fail for other reasons, count as present.
func (tp *TrialProcessor) reportExists(ctx context.Context, id string) bool {
	if tp.reports == nil || id == "" {
		return true
	}
	_, err := tp.reports.GetByID(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		tp.logger.Warn("Failed to check cached report", zap.String("report_id", id), zap.Error(err))
	}
	return !errors.Is(err, store.ErrNotFound)
}

// AnalyzeRequest validates a trial request and analyzes it.
func (tp *TrialProcessor) AnalyzeRequest(ctx context.Context, source store.Source, req *models.TrialRequest) (*models.AnalysisResult, error) {
	opts, err := req.Options(tp.options)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	seq, err := req.Sequence()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return tp.Analyze(ctx, source, req.TrialID, seq, opts)
}

// AnalyzeBatch analyzes independent trials concurrently, at most BatchLimit at a time.
// Items keep the order of reqs and a failed trial does not stop the others.
func (tp *TrialProcessor) AnalyzeBatch(ctx context.Context, reqs []models.TrialRequest) []models.BatchItem {
	items := make([]models.BatchItem, len(reqs))

	var g errgroup.Group
	g.SetLimit(max(tp.config.BatchLimit, 1))

	for i := range reqs {
		g.Go(func() error {
			items[i].Index = i
			result, err := tp.AnalyzeRequest(ctx, store.SourceBatch, &reqs[i])
			if err != nil {
				items[i].Error = &models.APIError{Code: ErrorCode(err), Message: err.Error()}
				return nil
			}
			items[i].Result = result
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// SubmitVideo queues a video for pose extraction and analysis and returns its job.
func (tp *TrialProcessor) SubmitVideo(video []byte, filename, trialID string, opts analysis.Options) (models.Job, error) {
	if tp.extractor == nil {
		return models.Job{}, pose.ErrUnavailable
	}

	now := time.Now()
	job := &models.Job{
		ID:        uuid.NewString(),
		Status:    models.JobQueued,
		Filename:  filename,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tp.mutex.Lock()
	tp.pruneJobs(now)
	tp.jobs[job.ID] = job
	tp.mutex.Unlock()

	item := &QueueItem{
		JobID:      job.ID,
		TrialID:    trialID,
		Filename:   filename,
		Video:      video,
		Options:    opts,
		EnqueuedAt: now,
	}
	if !tp.queue.Enqueue(item) {
		tp.mutex.Lock()
		delete(tp.jobs, job.ID)
		tp.mutex.Unlock()
		metrics.JobsTotal.WithLabelValues("rejected").Inc()
		return models.Job{}, ErrQueueFull
	}

	tp.logger.Info("Video job queued", zap.String("job_id", job.ID), zap.String("filename", filename), zap.Int("bytes", len(video)))
	return *job, nil
}

// GetJob returns a snapshot of a job.
func (tp *TrialProcessor) GetJob(jobID string) (models.Job, error) {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()

	job, exists := tp.jobs[jobID]
	if !exists {
		return models.Job{}, ErrJobNotFound
	}
	return *job, nil
}

func (tp *TrialProcessor) processVideo(item *QueueItem) {
	tp.updateJob(item.JobID, models.JobProcessing, nil, nil)
	tp.logger.Info("Video processing started", zap.String("job_id", item.JobID), zap.Duration("queued", time.Since(item.EnqueuedAt)))

	ctx := tp.ctx
	if tp.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, tp.config.Timeout)
		defer cancel()
	}

	seq, err := tp.extractor.ExtractLandmarks(ctx, item.Video, item.Filename)
	if err != nil {
		tp.failJob(item, fmt.Errorf("pose extraction: %w", err))
		return
	}

	result, err := tp.Analyze(ctx, store.SourceVideo, item.TrialID, seq, item.Options)
	if err != nil {
		tp.failJob(item, err)
		return
	}

	tp.updateJob(item.JobID, models.JobCompleted, result, nil)
	metrics.JobsTotal.WithLabelValues(string(models.JobCompleted)).Inc()
	tp.logger.Info("Video processing completed", zap.String("job_id", item.JobID), zap.String("report_id", result.ReportID))
}

func (tp *TrialProcessor) recoverVideo(item *QueueItem, r any) {
	tp.logger.Error("Video processing panic", zap.String("job_id", item.JobID), zap.Any("panic", r))
	tp.failJob(item, fmt.Errorf("processing failed: %v", r))
}

func (tp *TrialProcessor) failJob(item *QueueItem, err error) {
	tp.logger.Error("Video processing failed", zap.String("job_id", item.JobID), zap.Error(err))
	tp.updateJob(item.JobID, models.JobFailed, nil, err)
	metrics.JobsTotal.WithLabelValues(string(models.JobFailed)).Inc()
}

func (tp *TrialProcessor) updateJob(jobID string, status models.JobStatus, result *models.AnalysisResult, err error) {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	job, ok := tp.jobs[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	if result != nil {
		job.Result = result
	}
	if err != nil {
		job.Error = err.Error()
	}
}

// pruneJobs drops finished jobs older than jobRetention. Callers hold the lock.
func (tp *TrialProcessor) pruneJobs(now time.Time) {
	for id, job := range tp.jobs {
		finished := job.Status == models.JobCompleted || job.Status == models.JobFailed
		if finished && now.Sub(job.UpdatedAt) > jobRetention {
			delete(tp.jobs, id)
		}
	}
}

func (tp *TrialProcessor) GetStats() *ProcessorStats {
	tp.mutex.RLock()
	defer tp.mutex.RUnlock()

	stats := *tp.stats
	stats.QueueSize = tp.queue.Size()
	stats.TrackedJobs = len(tp.jobs)
	return &stats
}

func (tp *TrialProcessor) GetQueueStats() QueueStats {
	return tp.queue.GetQueueStats()
}

func (tp *TrialProcessor) GetCacheStats(ctx context.Context) (*cache.CacheStats, error) {
	if tp.cache == nil {
		return nil, fmt.Errorf("cache not initialized")
	}
	return tp.cache.GetStats(ctx)
}

func (tp *TrialProcessor) recordCacheHit() {
	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	tp.stats.TotalProcessed++
	tp.stats.SuccessfullyProcessed++
	tp.stats.CacheHits++
}

func (tp *TrialProcessor) recordOutcome(source store.Source, latency time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = ErrorCode(err)
	}
	metrics.AnalysisTotal.WithLabelValues(string(source), outcome).Inc()
	metrics.AnalysisDuration.WithLabelValues(string(source)).Observe(latency.Seconds())

	tp.mutex.Lock()
	defer tp.mutex.Unlock()

	tp.stats.TotalProcessed++
	if err != nil {
		tp.stats.FailedProcessed++
		return
	}
	tp.stats.SuccessfullyProcessed++

	current := float64(latency.Microseconds()) / 1000
	if tp.stats.AverageLatency == 0 {
		tp.stats.AverageLatency = current
	} else {
		alpha := 0.1
		tp.stats.AverageLatency = alpha*current + (1-alpha)*tp.stats.AverageLatency
	}
}

// Shutdown stops the worker pool, fails jobs still queued and closes the cache.
func (tp *TrialProcessor) Shutdown(timeout time.Duration) error {
	tp.logger.Info("Shutting down trial processor...")

	tp.cancel()

	pending, err := tp.queue.Shutdown(timeout)
	for _, item := range pending {
		tp.failJob(item, errors.New("processing cancelled - queue shutting down"))
	}
	if err != nil {
		tp.logger.Error("Failed to shutdown queue", zap.Error(err))
		return err
	}

	if tp.cache != nil {
		if err := tp.cache.Close(); err != nil {
			tp.logger.Error("Failed to close cache", zap.Error(err))
			return err
		}
	}

	tp.logger.Info("Trial processor shutdown complete")
	return nil
}

// ErrorCode maps a processing error to its API error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, analysis.ErrNoFeatures), errors.Is(err, analysis.ErrEmptySequence):
		return models.CodeNoFeatures
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, analysis.ErrUnorderedFrames):
		return models.CodeInvalidRequest
	case errors.Is(err, pose.ErrUnavailable):
		return models.CodePoseUnavailable
	case errors.Is(err, store.ErrNotFound), errors.Is(err, ErrJobNotFound):
		return models.CodeNotFound
	case errors.Is(err, ErrQueueFull):
		return models.CodeQueueFull
	case errors.Is(err, context.DeadlineExceeded):
		return models.CodeRequestTimeout
	default:
		return models.CodeProcessingFailed
	}
}

// reportCacheKey hashes the trial with the options that shape its report. Runs with a
// custom detector are not cached.
func reportCacheKey(trialID string, seq analysis.Sequence, opts analysis.Options) (string, bool) {
	if opts.Detector != nil {
		return "", false
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return "", false
	}
	return cache.GenerateCacheKey("report", trialID, string(data), fmt.Sprintf("%+v", opts)), true
}

func dominantSide(opts analysis.Options) analysis.Side {
	if opts.DominantSide == "" {
		return analysis.SideRight
	}
	return opts.DominantSide
}

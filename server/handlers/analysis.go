package handlers

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/san-kum/probowler/server/analysis"
	"github.com/san-kum/probowler/server/models"
	"github.com/san-kum/probowler/server/pose"
	"github.com/san-kum/probowler/server/processor"
	"github.com/san-kum/probowler/server/report"
	"github.com/san-kum/probowler/server/store"
)

const (
	maxBatchTrials   = 64
	defaultPageLimit = 20
	maxPageLimit     = 100
)

var videoExtensions = []string{".mp4", ".avi", ".mov", ".mkv", ".webm"}

// AnalysisHandler serves trial analysis, video jobs and stored reports.
type AnalysisHandler struct {
	processor *processor.TrialProcessor
	reports   *store.ReportRepository
	logger    *zap.Logger
	version   string
	maxUpload int64

	mutex sync.Mutex
	stats SystemStats
}

type SystemStats struct {
	TotalRequests  int64     `json:"total_requests"`
	ProcessedOK    int64     `json:"processed_ok"`
	ProcessedError int64     `json:"processed_error"`
	AvgProcessTime float64   `json:"avg_process_time_ms"`
	LastUpdated    time.Time `json:"last_updated"`
}

func NewAnalysisHandler(processor *processor.TrialProcessor, reports *store.ReportRepository, maxUpload int64, version string, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		processor: processor,
		reports:   reports,
		logger:    logger,
		version:   version,
		maxUpload: maxUpload,
		stats:     SystemStats{LastUpdated: time.Now()},
	}
}

// Analyze handles POST /api/v1/analyze with a JSON trial.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	startTime := time.Now()

	var request models.TrialRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.logger.Warn("Invalid request format", zap.Error(err))
		h.fail(c, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err), startTime)
		return
	}

	result, err := h.processor.AnalyzeRequest(c.Request.Context(), store.SourceJSON, &request)
	if err != nil {
		h.fail(c, err, startTime)
		return
	}

	h.succeed(c, http.StatusOK, result, startTime)
}

// AnalyzeCSV handles POST /api/v1/analyze/csv with a multipart "landmarks" file.
func (h *AnalysisHandler) AnalyzeCSV(c *gin.Context) {
	startTime := time.Now()

	file, _, err := c.Request.FormFile("landmarks")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: landmarks file is required", processor.ErrInvalidRequest), startTime)
		return
	}
	defer file.Close()

	seq, err := pose.ReadCSV(file)
	if err != nil {
		h.fail(c, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err), startTime)
		return
	}

	opts, err := h.formOptions(c)
	if err != nil {
		h.fail(c, err, startTime)
		return
	}

	result, err := h.processor.Analyze(c.Request.Context(), store.SourceCSV, c.PostForm("trial_id"), seq, opts)
	if err != nil {
		h.fail(c, err, startTime)
		return
	}

	h.succeed(c, http.StatusOK, result, startTime)
}

// AnalyzeBatch handles POST /api/v1/analyze/batch. Per-trial failures are reported in
// the items; the request itself succeeds.
func (h *AnalysisHandler) AnalyzeBatch(c *gin.Context) {
	startTime := time.Now()

	var request models.BatchRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		h.fail(c, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err), startTime)
		return
	}
	if len(request.Trials) == 0 || len(request.Trials) > maxBatchTrials {
		h.fail(c, fmt.Errorf("%w: a batch holds 1 to %d trials", processor.ErrInvalidRequest, maxBatchTrials), startTime)
		return
	}

	items := h.processor.AnalyzeBatch(c.Request.Context(), request.Trials)
	failed := lo.CountBy(items, func(item models.BatchItem) bool { return item.Error != nil })

	h.logger.Info("Batch analyzed", zap.Int("trials", len(items)), zap.Int("failed", failed))
	h.succeed(c, http.StatusOK, gin.H{"items": items, "failed": failed}, startTime)
}

// UploadVideo handles POST /api/v1/upload-video and queues pose extraction.
func (h *AnalysisHandler) UploadVideo(c *gin.Context) {
	startTime := time.Now()

	file, header, err := c.Request.FormFile("video")
	if err != nil {
		h.fail(c, fmt.Errorf("%w: no video uploaded", processor.ErrInvalidRequest), startTime)
		return
	}
	defer file.Close()

	if !isValidVideoFile(header.Filename) {
		h.fail(c, fmt.Errorf("%w: unsupported video type %q", processor.ErrInvalidRequest, filepath.Ext(header.Filename)), startTime)
		return
	}
	if header.Size > h.maxUpload {
		h.fail(c, fmt.Errorf("%w: video larger than %d bytes", processor.ErrInvalidRequest, h.maxUpload), startTime)
		return
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		h.logger.Error("Failed to read uploaded file", zap.Error(err))
		h.fail(c, err, startTime)
		return
	}

	opts, err := h.formOptions(c)
	if err != nil {
		h.fail(c, err, startTime)
		return
	}

	job, err := h.processor.SubmitVideo(buf.Bytes(), header.Filename, c.PostForm("trial_id"), opts)
	if err != nil {
		h.fail(c, err, startTime)
		return
	}

	h.succeed(c, http.StatusAccepted, job, startTime)
}

// GetJob handles GET /api/v1/jobs/:job_id.
func (h *AnalysisHandler) GetJob(c *gin.Context) {
	startTime := time.Now()

	job, err := h.processor.GetJob(c.Param("job_id"))
	if err != nil {
		respondError(c, err, newMeta(startTime, h.version))
		return
	}

	respondOK(c, http.StatusOK, job, newMeta(startTime, h.version))
}

// GetReport handles GET /api/v1/reports/:id.
func (h *AnalysisHandler) GetReport(c *gin.Context) {
	startTime := time.Now()

	rec, err := h.reports.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, newMeta(startTime, h.version))
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"summary": toSummary(*rec, 0),
		"report":  rec.Report,
	}, newMeta(startTime, h.version))
}

// GetReportCSV handles GET /api/v1/reports/:id/csv. format=comparison selects the
// reduced report.
func (h *AnalysisHandler) GetReportCSV(c *gin.Context) {
	startTime := time.Now()
	id := c.Param("id")

	rows, err := h.reports.Rows(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, newMeta(startTime, h.version))
		return
	}

	write, name := report.WriteCSV, "enhanced_biomechanics_post_ffc"
	if c.Query("format") == "comparison" {
		write, name = report.WriteComparisonCSV, "comparison_report"
	}

	var buf bytes.Buffer
	if err := write(&buf, rows); err != nil {
		h.logger.Error("Failed to write report CSV", zap.String("report_id", id), zap.Error(err))
		respondError(c, err, newMeta(startTime, h.version))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s.csv"`, name, id))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// ListReports handles GET /api/v1/reports?limit=&offset=.
func (h *AnalysisHandler) ListReports(c *gin.Context) {
	startTime := time.Now()
	ctx := c.Request.Context()

	limit := queryInt(c, "limit", defaultPageLimit, 1, maxPageLimit)
	offset := queryInt(c, "offset", 0, 0, math.MaxInt)

	records, err := h.reports.List(ctx, limit, offset)
	if err != nil {
		respondError(c, err, newMeta(startTime, h.version))
		return
	}
	total, err := h.reports.Count(ctx)
	if err != nil {
		respondError(c, err, newMeta(startTime, h.version))
		return
	}

	respondOK(c, http.StatusOK, models.ReportPage{
		Reports: lo.Map(records, toSummary),
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	}, newMeta(startTime, h.version))
}

// DeleteReport handles DELETE /api/v1/admin/reports/:id.
func (h *AnalysisHandler) DeleteReport(c *gin.Context) {
	startTime := time.Now()
	id := c.Param("id")

	if err := h.reports.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err, newMeta(startTime, h.version))
		return
	}

	h.logger.Info("Report deleted", zap.String("report_id", id), zap.String("by", c.GetString("subject")))
	c.Status(http.StatusNoContent)
}

func (h *AnalysisHandler) GetStats(c *gin.Context) {
	h.mutex.Lock()
	h.stats.LastUpdated = time.Now()
	stats := h.stats
	h.mutex.Unlock()

	var successRate, errorRate float64
	if stats.TotalRequests > 0 {
		successRate = float64(stats.ProcessedOK) / float64(stats.TotalRequests) * 100
		errorRate = float64(stats.ProcessedError) / float64(stats.TotalRequests) * 100
	}

	processorStats := h.processor.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"system":    stats,
		"processor": processorStats,
		"metrics": gin.H{
			"success_rate":   successRate,
			"error_rate":     errorRate,
			"uptime_seconds": time.Since(processorStats.StartTime).Seconds(),
		},
	})
}

func (h *AnalysisHandler) GetCacheStats(c *gin.Context) {
	stats, err := h.processor.GetCacheStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// formOptions reads the optional dominant_side form field.
func (h *AnalysisHandler) formOptions(c *gin.Context) (analysis.Options, error) {
	req := models.TrialRequest{DominantSide: c.PostForm("dominant_side")}
	opts, err := req.Options(h.processor.Options())
	if err != nil {
		return opts, fmt.Errorf("%w: %w", processor.ErrInvalidRequest, err)
	}
	return opts, nil
}

func (h *AnalysisHandler) succeed(c *gin.Context, status int, data any, startTime time.Time) {
	h.record(time.Since(startTime), true)
	respondOK(c, status, data, newMeta(startTime, h.version))
}

func (h *AnalysisHandler) fail(c *gin.Context, err error, startTime time.Time) {
	h.record(time.Since(startTime), false)
	if processor.ErrorCode(err) == models.CodeProcessingFailed {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	respondError(c, err, newMeta(startTime, h.version))
}

func (h *AnalysisHandler) record(duration time.Duration, ok bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.stats.TotalRequests++
	if !ok {
		h.stats.ProcessedError++
		return
	}
	h.stats.ProcessedOK++

	current := float64(duration.Microseconds()) / 1000
	if h.stats.AvgProcessTime == 0 {
		h.stats.AvgProcessTime = current
	} else {
		alpha := 0.1
		h.stats.AvgProcessTime = alpha*current + (1-alpha)*h.stats.AvgProcessTime
	}
}

func toSummary(rec store.ReportRecord, _ int) models.ReportSummary {
	return models.ReportSummary{
		ID:               rec.ID,
		TrialID:          rec.TrialID,
		Source:           string(rec.Source),
		DominantSide:     rec.DominantSide,
		FFCFrame:         rec.FFCFrame,
		ReleaseFrame:     rec.ReleaseFrame,
		Fallback:         rec.Fallback,
		FramesProcessed:  rec.FramesProcessed,
		FramesIncomplete: rec.FramesIncomplete,
		CreatedAt:        rec.CreatedAt,
	}
}

func isValidVideoFile(filename string) bool {
	return slices.Contains(videoExtensions, strings.ToLower(filepath.Ext(filename)))
}

// queryInt parses an integer query parameter, clamped to [low, high].
func queryInt(c *gin.Context, key string, def, low, high int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return min(max(v, low), high)
}

package models

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/san-kum/probowler/server/analysis"
)

// TrialRequest carries one bowling trial as pose landmarks per frame.
type TrialRequest struct {
	TrialID      string       `json:"trial_id"`
	DominantSide string       `json:"dominant_side,omitempty"`
	Frames       []FrameInput `json:"frames" binding:"required"`
}

type FrameInput struct {
	Frame     int                          `json:"frame"`
	Landmarks map[string]analysis.Landmark `json:"landmarks"`
}

type BatchRequest struct {
	Trials []TrialRequest `json:"trials" binding:"required"`
}

// Sequence converts the request frames into an ordered landmark sequence. Frames are
// sorted by index; duplicate indices and unknown landmark names are rejected.
func (r *TrialRequest) Sequence() (analysis.Sequence, error) {
	frames := make([]analysis.Frame, 0, len(r.Frames))
	for _, in := range r.Frames {
		f := analysis.Frame{Index: in.Frame, Landmarks: make(map[analysis.LandmarkName]analysis.Landmark, len(in.Landmarks))}
		for name, lm := range in.Landmarks {
			ln := analysis.LandmarkName(strings.ToUpper(name))
			if !ln.Valid() {
				return nil, fmt.Errorf("frame %d: unknown landmark %q", in.Frame, name)
			}
			f.Landmarks[ln] = lm
		}
		frames = append(frames, f)
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Index < frames[j].Index })
	return analysis.NewSequence(frames)
}

// Options applies the request's dominant side, if any, to base.
func (r *TrialRequest) Options(base analysis.Options) (analysis.Options, error) {
	if r.DominantSide == "" {
		return base, nil
	}
	side, err := analysis.ParseSide(r.DominantSide)
	if err != nil {
		return base, err
	}
	base.DominantSide = side
	return base, nil
}

// AnalysisResult is the response for an analyzed trial.
type AnalysisResult struct {
	ReportID       string           `json:"report_id,omitempty"`
	TrialID        string           `json:"trial_id,omitempty"`
	Report         *analysis.Report `json:"report"`
	Warnings       []string         `json:"warnings,omitempty"`
	Cached         bool             `json:"cached"`
	ProcessingTime float64          `json:"processing_time"`
	Timestamp      int64            `json:"timestamp"`
}

// NewAnalysisResult wraps a report with its warnings as strings.
func NewAnalysisResult(trialID string, report *analysis.Report) *AnalysisResult {
	return &AnalysisResult{
		TrialID: trialID,
		Report:  report,
		Warnings: lo.Map(report.Warnings(), func(err error, _ int) string {
			return err.Error()
		}),
		Timestamp: time.Now().Unix(),
	}
}

// BatchItem is one trial outcome of a batch; exactly one of Result and Error is set.
type BatchItem struct {
	Index  int             `json:"index"`
	Result *AnalysisResult `json:"result,omitempty"`
	Error  *APIError       `json:"error,omitempty"`
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Job tracks a video upload through pose extraction and analysis.
type Job struct {
	ID        string          `json:"job_id"`
	Status    JobStatus       `json:"status"`
	Filename  string          `json:"filename"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ReportSummary is a stored report listing entry.
type ReportSummary struct {
	ID               string            `json:"id"`
	TrialID          string            `json:"trial_id"`
	Source           string            `json:"source"`
	DominantSide     analysis.Side     `json:"dominant_side"`
	FFCFrame         analysis.FrameRef `json:"ffc_frame"`
	ReleaseFrame     analysis.FrameRef `json:"release_frame"`
	Fallback         bool              `json:"fallback"`
	FramesProcessed  int               `json:"frames_processed"`
	FramesIncomplete int               `json:"frames_incomplete"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ReportPage is one page of stored reports.
type ReportPage struct {
	Reports []ReportSummary `json:"reports"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// Error codes returned in APIError.Code.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeNoFeatures             = "NO_FEATURES"
	CodePoseUnavailable        = "POSE_SERVICE_UNAVAILABLE"
	CodeNotFound               = "NOT_FOUND"
	CodeQueueFull              = "QUEUE_FULL"
	CodeProcessingFailed       = "PROCESSING_FAILED"
	CodeRequestTimeout         = "REQUEST_TIMEOUT"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized           = "UNAUTHORIZED"
	CodeUnsupportedContentType = "UNSUPPORTED_MEDIA_TYPE"
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type APIResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data"`
	Error   *APIError     `json:"error"`
	Meta    *ResponseMeta `json:"meta"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

type ResponseMeta struct {
	RequestID      string    `json:"request_id"`
	Timestamp      time.Time `json:"timestamp"`
	ProcessingTime float64   `json:"processing_time"`
	Version        string    `json:"version"`
}

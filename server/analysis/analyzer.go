package analysis

import (
	"context"
	"fmt"
)

// cancelCheckInterval is how many frames are processed between context checks.
const cancelCheckInterval = 64

// Report is the full result of analyzing one trial.
type Report struct {
	Rows    []SummaryRow    `json:"rows"`
	Events  Events          `json:"events"`
	Front   LegPhases       `json:"front_knee"`
	Back    LegPhases       `json:"back_knee"`
	Records []FeatureRecord `json:"frames"`

	// FramesProcessed counts post-FFC frames; FramesIncomplete counts those with at
	// least one undefined feature.
	FramesProcessed  int `json:"frames_processed"`
	FramesIncomplete int `json:"frames_incomplete"`
}

// Analyze runs event detection, feature extraction, phase analysis and aggregation on
// one trial. It returns ErrNoFeatures when no frame carries usable landmark data. The
// sequence is not modified and Analyze may run concurrently on independent sequences.
func Analyze(ctx context.Context, seq Sequence, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	if !hasUsableFrame(seq, opts.MinVisibility) {
		return nil, ErrNoFeatures
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ev := opts.Detector.Detect(seq).clamp(seq)

	extractor := NewFeatureExtractor(opts)
	ex, err := extractor.Extract(ctx, seq, ev)
	if err != nil {
		return nil, err
	}
	if len(ex.Records) == 0 {
		return nil, ErrNoFeatures
	}

	backSeries := ex.BackKnee
	if opts.BackWindow == WindowFromStart {
		backSeries = extractor.backKneeSeries(seq)
	}

	front := AnalyzePhases(FrontLeg, ex.FrontKnee)
	back := AnalyzePhases(BackLeg, backSeries)

	return &Report{
		Rows:             Summarize(ex.Records, front, back, ev, opts.ReleaseWindowFallback),
		Events:           ev,
		Front:            front,
		Back:             back,
		Records:          ex.Records,
		FramesProcessed:  ex.Processed,
		FramesIncomplete: ex.Incomplete,
	}, nil
}

// Warnings lists the recoverable conditions met while analyzing the trial.
func (r *Report) Warnings() []error {
	var out []error
	if r.Events.Fallback {
		out = append(out, fmt.Errorf("front ankle never visible, events placed at the midpoint: %w", ErrMissingLandmark))
	}
	if r.FramesIncomplete > 0 {
		out = append(out, fmt.Errorf("%d of %d frames have undefined features: %w",
			r.FramesIncomplete, r.FramesProcessed, ErrMissingLandmark))
	}
	if !r.Front.Contact.Angle.Defined() {
		out = append(out, fmt.Errorf("front knee: %w", ErrEmptyPhaseSeries))
	}
	if !r.Back.Contact.Angle.Defined() {
		out = append(out, fmt.Errorf("back knee: %w", ErrEmptyPhaseSeries))
	}
	return out
}

func hasUsableFrame(seq Sequence, minVisibility float64) bool {
	for _, f := range seq {
		if f.usable(minVisibility) {
			return true
		}
	}
	return false
}

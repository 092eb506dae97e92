package analysis

import "errors"

// Recoverable conditions. Analyze resolves them as undefined values or fallback events
// and reports them through Report.Warnings instead of failing.
var (
	ErrMissingLandmark    = errors.New("missing landmark")
	ErrEmptySequence      = errors.New("empty landmark sequence")
	ErrEmptyPhaseSeries   = errors.New("empty phase series")
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// ErrNoFeatures is returned by Analyze when no frame carries usable landmark data.
var ErrNoFeatures = errors.New("no features extracted")

// ErrUnorderedFrames is returned by NewSequence when frame indices do not strictly increase.
var ErrUnorderedFrames = errors.New("frame indices must be strictly increasing")

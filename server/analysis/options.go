package analysis

// Heuristic constants of the bowling model.
const (
	// DefaultReleaseOffset is the number of frames between front foot contact and the
	// estimated ball release. Release usually follows FFC by 3-8 frames at 30 fps; the
	// estimate is positional, not a kinematic detection.
	DefaultReleaseOffset = 8

	// DefaultFallbackReleaseOffset places release after the midpoint frame when FFC
	// cannot be detected.
	DefaultFallbackReleaseOffset = 5

	// ShoulderAlignmentScale multiplies the vertical shoulder offset. It is the
	// radians-to-degrees factor applied to a coordinate difference, kept for report
	// compatibility; the result is not a true angle.
	ShoulderAlignmentScale = 57.2958

	// ReferenceOffset is the horizontal distance, in normalized image units, of the
	// synthetic point that forms the baseline for pelvis rotation and spine angle.
	ReferenceOffset = 10.0

	// DefaultReleaseWindowFallback is how many trailing frames stand in for the release
	// window when no frame is flagged as ball release.
	DefaultReleaseWindowFallback = 3
)

// BackWindow selects the frames that form the back-leg knee series.
type BackWindow string

const (
	// WindowFromFFC uses the post-FFC frames, so back foot contact is taken as the first
	// frame at or after FFC. This is a positional heuristic, not a detected event.
	WindowFromFFC BackWindow = "ffc"
	// WindowFromStart uses every frame of the sequence.
	WindowFromStart BackWindow = "start"
)

// Options tunes a single analysis run.
type Options struct {
	// DominantSide is the bowling-arm and landing-leg side.
	DominantSide Side

	// ReleaseOffset and FallbackReleaseOffset count frames after FFC and after the
	// midpoint. Zero puts release on that frame; negative values select the defaults.
	ReleaseOffset         int
	FallbackReleaseOffset int
	ShoulderScale         float64
	ReferenceOffset       float64
	ReleaseWindowFallback int
	BackWindow            BackWindow

	// MinVisibility discards landmarks with a lower confidence. Zero disables the gate.
	MinVisibility float64

	// Detector replaces the heuristic event detector when set.
	Detector EventDetector
}

// DefaultOptions returns the options matching the reference bowling model.
func DefaultOptions() Options {
	return Options{
		DominantSide:          SideRight,
		ReleaseOffset:         DefaultReleaseOffset,
		FallbackReleaseOffset: DefaultFallbackReleaseOffset,
		ShoulderScale:         ShoulderAlignmentScale,
		ReferenceOffset:       ReferenceOffset,
		ReleaseWindowFallback: DefaultReleaseWindowFallback,
		BackWindow:            WindowFromFFC,
	}
}

// withDefaults fills unset fields from DefaultOptions. Release offsets are unset when
// negative since zero is a valid offset.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DominantSide == "" {
		o.DominantSide = d.DominantSide
	}
	if o.ReleaseOffset < 0 {
		o.ReleaseOffset = d.ReleaseOffset
	}
	if o.FallbackReleaseOffset < 0 {
		o.FallbackReleaseOffset = d.FallbackReleaseOffset
	}
	if o.ShoulderScale == 0 {
		o.ShoulderScale = d.ShoulderScale
	}
	if o.ReferenceOffset == 0 {
		o.ReferenceOffset = d.ReferenceOffset
	}
	if o.ReleaseWindowFallback <= 0 {
		o.ReleaseWindowFallback = d.ReleaseWindowFallback
	}
	if o.BackWindow == "" {
		o.BackWindow = d.BackWindow
	}
	if o.Detector == nil {
		o.Detector = &HeuristicDetector{
			Sides:                 ResolveSides(o.DominantSide),
			ReleaseOffset:         o.ReleaseOffset,
			FallbackReleaseOffset: o.FallbackReleaseOffset,
			MinVisibility:         o.MinVisibility,
		}
	}
	return o
}

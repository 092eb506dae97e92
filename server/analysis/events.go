package analysis

// Events holds the resolved event frames of a trial.
type Events struct {
	FFC     FrameRef `json:"ffc_frame"`
	Release FrameRef `json:"release_frame"`

	// FFCPos and ReleasePos are positions in the sequence, -1 when unresolved.
	FFCPos     int `json:"-"`
	ReleasePos int `json:"-"`

	// Fallback is set when FFC could not be detected and the midpoint was used.
	Fallback bool `json:"fallback"`

	// Separation is the per-frame hip-shoulder separation angle. It is a diagnostic
	// signal and does not influence FFC.
	Separation []Value `json:"separation,omitempty"`
}

// EventDetector locates front foot contact and ball release in a sequence.
type EventDetector interface {
	Detect(seq Sequence) Events
}

// HeuristicDetector takes FFC as the frame where the front ankle is lowest in the image
// and estimates release a fixed number of frames later.
type HeuristicDetector struct {
	Sides                 Sides
	ReleaseOffset         int
	FallbackReleaseOffset int
	MinVisibility         float64
}

// NewHeuristicDetector returns a detector with the default offsets.
func NewHeuristicDetector(dominant Side) *HeuristicDetector {
	return &HeuristicDetector{
		Sides:                 ResolveSides(dominant),
		ReleaseOffset:         DefaultReleaseOffset,
		FallbackReleaseOffset: DefaultFallbackReleaseOffset,
	}
}

// Detect resolves events. An empty sequence yields unresolved events.
func (d *HeuristicDetector) Detect(seq Sequence) Events {
	ev := Events{FFCPos: -1, ReleasePos: -1}
	n := len(seq)
	if n == 0 {
		return ev
	}

	front, back := d.Sides.Front, d.Sides.Back
	ev.Separation = make([]Value, n)

	ffcPos := -1
	var maxY float64
	for i, f := range seq {
		ev.Separation[i] = angleOf(f, d.MinVisibility, back.Hip, front.Shoulder, front.Hip)

		// larger y is closer to the ground in image coordinates
		ankle, ok := f.Point(front.Ankle, d.MinVisibility)
		if !ok {
			continue
		}
		if ffcPos < 0 || ankle.Y > maxY {
			ffcPos = i
			maxY = ankle.Y
		}
	}

	if ffcPos >= 0 {
		offset := min(d.ReleaseOffset, n-1-ffcPos)
		relPos := ffcPos
		if offset > 0 {
			relPos = ffcPos + offset
		}
		ev.FFCPos, ev.ReleasePos = ffcPos, relPos
	} else {
		mid := n / 2
		ev.FFCPos = mid
		ev.ReleasePos = min(mid+d.FallbackReleaseOffset, n-1)
		ev.Fallback = true
	}

	ev.FFC = frameAt(seq[ev.FFCPos].Index)
	ev.Release = frameAt(seq[ev.ReleasePos].Index)
	return ev
}

// clamp bounds the event positions so that 0 <= FFCPos <= ReleasePos <= len(seq)-1 and
// rederives the frame references from them. Custom detectors may return any positions.
func (ev Events) clamp(seq Sequence) Events {
	n := len(seq)
	if n == 0 {
		ev.FFCPos, ev.ReleasePos = -1, -1
		ev.FFC, ev.Release = FrameRef{}, FrameRef{}
		return ev
	}

	ev.FFCPos = min(max(ev.FFCPos, 0), n-1)
	ev.ReleasePos = min(max(ev.ReleasePos, ev.FFCPos), n-1)
	ev.FFC = frameAt(seq[ev.FFCPos].Index)
	ev.Release = frameAt(seq[ev.ReleasePos].Index)
	return ev
}

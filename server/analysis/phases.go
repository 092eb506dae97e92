package analysis

import "github.com/samber/lo"

// Leg distinguishes the front (landing) leg from the back leg.
type Leg string

const (
	FrontLeg Leg = "front"
	BackLeg  Leg = "back"
)

// Phase names a single-instant knee measurement.
type Phase string

const (
	PhaseContact      Phase = "Contact"
	PhaseMaxFlexion   Phase = "MaxFlexion"
	PhaseMaxExtension Phase = "MaxExtension"
)

// PhaseMeasurement is a knee angle at a phase of the delivery stride.
type PhaseMeasurement struct {
	Leg   Leg      `json:"leg"`
	Phase Phase    `json:"phase"`
	Angle Value    `json:"angle"`
	Frame FrameRef `json:"frame"`
}

// LegPhases are the phase measurements of one leg.
type LegPhases struct {
	Contact      PhaseMeasurement `json:"contact"`
	MaxFlexion   PhaseMeasurement `json:"max_flexion"`
	MaxExtension PhaseMeasurement `json:"max_extension"`

	// Deviation is MaxExtension minus Contact.
	Deviation Value `json:"deviation"`
}

// AnalyzePhases finds contact, maximum flexion and maximum extension in a knee angle
// series after discarding undefined samples. Contact is the first defined sample.
// For the back leg the extension search is limited to the second half of the defined
// samples, where the extension before lift-off is expected. An empty series leaves
// every measurement undefined.
func AnalyzePhases(leg Leg, series []SeriesPoint) LegPhases {
	out := LegPhases{
		Contact:      PhaseMeasurement{Leg: leg, Phase: PhaseContact},
		MaxFlexion:   PhaseMeasurement{Leg: leg, Phase: PhaseMaxFlexion},
		MaxExtension: PhaseMeasurement{Leg: leg, Phase: PhaseMaxExtension},
	}

	valid := lo.Filter(series, func(p SeriesPoint, _ int) bool {
		return p.Angle.Defined()
	})
	if len(valid) == 0 {
		return out
	}

	set := func(m *PhaseMeasurement, p SeriesPoint) {
		m.Angle = p.Angle
		m.Frame = frameAt(p.Frame)
	}

	set(&out.Contact, valid[0])
	set(&out.MaxFlexion, valid[argMin(valid)])

	extFrom := 0
	if leg == BackLeg {
		extFrom = len(valid) / 2
	}
	set(&out.MaxExtension, valid[extFrom+argMax(valid[extFrom:])])

	out.Deviation = out.MaxExtension.Angle.Sub(out.Contact.Angle)
	return out
}

// argMin returns the position of the first smallest angle. All samples must be defined.
func argMin(s []SeriesPoint) int {
	best := 0
	for i := 1; i < len(s); i++ {
		if s[i].Angle.v < s[best].Angle.v {
			best = i
		}
	}
	return best
}

// argMax returns the position of the first largest angle. All samples must be defined.
func argMax(s []SeriesPoint) int {
	best := 0
	for i := 1; i < len(s); i++ {
		if s[i].Angle.v > s[best].Angle.v {
			best = i
		}
	}
	return best
}

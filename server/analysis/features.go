package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
)

// Feature identifies one per-frame angle or segment measurement.
type Feature int

const (
	ElbowAngle Feature = iota
	FrontKneeAngle
	BackKneeAngle
	TrunkLean
	HipShoulderSeparation
	ShoulderAlignment
	BowlingArmAngle
	NonBowlingArmAngle
	HeadPosition
	PelvisRotation
	FrontAnkleAngle
	BackAnkleAngle
	SpineAngle

	NumFeatures = iota
)

var featureNames = [NumFeatures]string{
	ElbowAngle:            "Elbow Angle",
	FrontKneeAngle:        "Front Knee Angle",
	BackKneeAngle:         "Back Knee Angle",
	TrunkLean:             "Trunk Lean",
	HipShoulderSeparation: "Hip-Shoulder Separation",
	ShoulderAlignment:     "Shoulder Alignment",
	BowlingArmAngle:       "Bowling Arm Angle",
	NonBowlingArmAngle:    "Non-Bowling Arm Angle",
	HeadPosition:          "Head Position",
	PelvisRotation:        "Pelvis Rotation",
	FrontAnkleAngle:       "Front Ankle Angle",
	BackAnkleAngle:        "Back Ankle Angle",
	SpineAngle:            "Spine Angle",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= NumFeatures {
		return "Unknown"
	}
	return featureNames[f]
}

// FeatureRecord holds every feature of one post-FFC frame.
type FeatureRecord struct {
	Frame         int
	IsFFC         bool
	IsBallRelease bool
	Values        [NumFeatures]Value
}

// Get returns the value of a feature.
func (r FeatureRecord) Get(f Feature) Value {
	if f < 0 || int(f) >= NumFeatures {
		return None()
	}
	return r.Values[f]
}

// MarshalJSON flattens the record into a feature-name keyed object.
func (r FeatureRecord) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, NumFeatures+3)
	m["frame"] = r.Frame
	m["is_ffc"] = r.IsFFC
	m["is_ball_release"] = r.IsBallRelease
	for i, v := range r.Values {
		m[Feature(i).String()] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the object written by MarshalJSON. Unknown keys are ignored.
func (r *FeatureRecord) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := FeatureRecord{}
	fields := []struct {
		key  string
		dest any
	}{
		{"frame", &out.Frame},
		{"is_ffc", &out.IsFFC},
		{"is_ball_release", &out.IsBallRelease},
	}
	for _, f := range fields {
		if raw, ok := m[f.key]; ok {
			if err := json.Unmarshal(raw, f.dest); err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
		}
	}
	for i := range out.Values {
		if raw, ok := m[Feature(i).String()]; ok {
			if err := out.Values[i].UnmarshalJSON(raw); err != nil {
				return fmt.Errorf("%s: %w", Feature(i), err)
			}
		}
	}
	*r = out
	return nil
}

// SeriesPoint is one knee angle sample.
type SeriesPoint struct {
	Frame int
	Angle Value
}

// FeatureExtractor computes per-frame features for one trial.
type FeatureExtractor struct {
	sides         Sides
	shoulderScale float64
	refOffset     float64
	minVisibility float64
}

// NewFeatureExtractor builds an extractor from options.
func NewFeatureExtractor(opts Options) *FeatureExtractor {
	opts = opts.withDefaults()
	return &FeatureExtractor{
		sides:         ResolveSides(opts.DominantSide),
		shoulderScale: opts.ShoulderScale,
		refOffset:     opts.ReferenceOffset,
		minVisibility: opts.MinVisibility,
	}
}

// Extraction is the output of FeatureExtractor.Extract.
type Extraction struct {
	Records    []FeatureRecord
	FrontKnee  []SeriesPoint
	BackKnee   []SeriesPoint
	Processed  int
	Incomplete int
}

// Extract computes records for every frame at or after the FFC position and tags the
// FFC and release frames. Frames are never dropped; unreadable features are undefined.
func (e *FeatureExtractor) Extract(ctx context.Context, seq Sequence, ev Events) (*Extraction, error) {
	out := &Extraction{}
	if ev.FFCPos < 0 || ev.FFCPos >= len(seq) {
		return out, nil
	}

	window := seq[ev.FFCPos:]
	out.Records = make([]FeatureRecord, 0, len(window))
	out.FrontKnee = make([]SeriesPoint, 0, len(window))
	out.BackKnee = make([]SeriesPoint, 0, len(window))

	for i, f := range window {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		rec := e.Record(f)
		pos := ev.FFCPos + i
		rec.IsFFC = pos == ev.FFCPos
		rec.IsBallRelease = pos == ev.ReleasePos

		out.Records = append(out.Records, rec)
		out.FrontKnee = append(out.FrontKnee, SeriesPoint{Frame: f.Index, Angle: rec.Values[FrontKneeAngle]})
		out.BackKnee = append(out.BackKnee, SeriesPoint{Frame: f.Index, Angle: rec.Values[BackKneeAngle]})
		out.Processed++
		if !rec.complete() {
			out.Incomplete++
		}
	}
	return out, nil
}

// Record computes the features of a single frame.
func (e *FeatureExtractor) Record(f Frame) FeatureRecord {
	front, back := e.sides.Front, e.sides.Back
	vis := e.minVisibility
	rec := FeatureRecord{Frame: f.Index}
	v := &rec.Values

	v[ElbowAngle] = angleOf(f, vis, front.Shoulder, front.Elbow, front.Wrist)
	v[FrontKneeAngle] = angleOf(f, vis, front.Hip, front.Knee, front.Ankle)
	v[BackKneeAngle] = angleOf(f, vis, back.Hip, back.Knee, back.Ankle)
	v[TrunkLean] = angleOf(f, vis, back.Shoulder, front.Hip, front.Knee)
	v[HipShoulderSeparation] = angleOf(f, vis, back.Hip, front.Shoulder, front.Hip)
	v[ShoulderAlignment] = e.shoulderAlignment(f)
	v[BowlingArmAngle] = angleOf(f, vis, front.Shoulder, front.Elbow, front.Wrist)
	v[NonBowlingArmAngle] = angleOf(f, vis, back.Shoulder, back.Elbow, back.Wrist)
	v[HeadPosition] = angleOf(f, vis, LeftShoulder, Nose, RightShoulder)
	v[PelvisRotation] = e.pelvisRotation(f)
	v[FrontAnkleAngle] = angleOf(f, vis, front.Knee, front.Ankle, front.FootIndex)
	v[BackAnkleAngle] = angleOf(f, vis, back.Knee, back.Ankle, back.FootIndex)
	v[SpineAngle] = e.spineAngle(f)

	return rec
}

func (e *FeatureExtractor) shoulderAlignment(f Frame) Value {
	l, ok := f.Point(LeftShoulder, e.minVisibility)
	if !ok {
		return None()
	}
	r, ok := f.Point(RightShoulder, e.minVisibility)
	if !ok {
		return None()
	}
	return Some(math.Abs(l.Y-r.Y) * e.shoulderScale)
}

// pelvisRotation measures the hip line against a horizontal baseline through the front hip.
func (e *FeatureExtractor) pelvisRotation(f Frame) Value {
	backHip, ok := f.Point(e.sides.Back.Hip, e.minVisibility)
	if !ok {
		return None()
	}
	frontHip, ok := f.Point(e.sides.Front.Hip, e.minVisibility)
	if !ok {
		return None()
	}
	ref := Point{X: frontHip.X + e.refOffset, Y: frontHip.Y}
	return Angle(backHip, frontHip, ref)
}

// spineAngle measures the mid-hip to mid-shoulder segment against a horizontal baseline
// through the mid-shoulder point.
func (e *FeatureExtractor) spineAngle(f Frame) Value {
	var pts [4]Point
	for i, name := range [4]LandmarkName{LeftHip, RightHip, LeftShoulder, RightShoulder} {
		p, ok := f.Point(name, e.minVisibility)
		if !ok {
			return None()
		}
		pts[i] = p
	}
	midHip := midpoint(pts[0], pts[1])
	midShoulder := midpoint(pts[2], pts[3])
	ref := Point{X: midShoulder.X + e.refOffset, Y: midShoulder.Y}
	return Angle(midHip, midShoulder, ref)
}

func (r FeatureRecord) complete() bool {
	for _, v := range r.Values {
		if !v.Defined() {
			return false
		}
	}
	return true
}

// backKneeSeries computes the back knee series over the whole sequence.
func (e *FeatureExtractor) backKneeSeries(seq Sequence) []SeriesPoint {
	back := e.sides.Back
	out := make([]SeriesPoint, len(seq))
	for i, f := range seq {
		out[i] = SeriesPoint{Frame: f.Index, Angle: angleOf(f, e.minVisibility, back.Hip, back.Knee, back.Ankle)}
	}
	return out
}

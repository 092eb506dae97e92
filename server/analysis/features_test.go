package analysis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureNames(t *testing.T) {
	want := []string{
		"Elbow Angle", "Front Knee Angle", "Back Knee Angle", "Trunk Lean",
		"Hip-Shoulder Separation", "Shoulder Alignment", "Bowling Arm Angle",
		"Non-Bowling Arm Angle", "Head Position", "Pelvis Rotation",
		"Front Ankle Angle", "Back Ankle Angle", "Spine Angle",
	}
	require.Len(t, want, NumFeatures)
	for i, name := range want {
		assert.Equal(t, name, Feature(i).String())
	}
	assert.Equal(t, "Unknown", Feature(NumFeatures).String())
}

func TestFeatureExtractor_RecordComplete(t *testing.T) {
	rec := NewFeatureExtractor(DefaultOptions()).Record(bowlerFrame(3, 0.9))

	assert.Equal(t, 3, rec.Frame)
	for i, v := range rec.Values {
		assert.True(t, v.Defined(), "%s undefined", Feature(i))
		got, _ := v.Get()
		assert.GreaterOrEqual(t, got, 0.0, Feature(i).String())
	}
	assert.True(t, rec.complete())
	assert.Equal(t, rec.Get(ElbowAngle), rec.Get(BowlingArmAngle))
}

func TestFeatureExtractor_ShoulderAlignment(t *testing.T) {
	rec := NewFeatureExtractor(DefaultOptions()).Record(bowlerFrame(0, 0.9))

	got, ok := rec.Get(ShoulderAlignment).Get()
	require.True(t, ok)
	assert.InDelta(t, 0.02*ShoulderAlignmentScale, got, 1e-9)
}

func TestFeatureExtractor_HorizontalBaselines(t *testing.T) {
	f := bowlerFrame(0, 0.9)
	f.Landmarks[LeftHip] = Landmark{X: 0.45, Y: 0.60}
	f.Landmarks[RightHip] = Landmark{X: 0.55, Y: 0.60}
	f.Landmarks[LeftShoulder] = Landmark{X: 0.40, Y: 0.30}
	f.Landmarks[RightShoulder] = Landmark{X: 0.60, Y: 0.30}

	rec := NewFeatureExtractor(DefaultOptions()).Record(f)

	pelvis, _ := rec.Get(PelvisRotation).Get()
	spine, _ := rec.Get(SpineAngle).Get()
	assert.InDelta(t, 180, pelvis, 1e-9, "level hips point away from the baseline")
	assert.InDelta(t, 90, spine, 1e-9, "upright trunk is perpendicular to the baseline")
}

func TestFeatureExtractor_MissingLandmarkLeavesOthersDefined(t *testing.T) {
	f := without(bowlerFrame(0, 0.9), RightWrist)

	rec := NewFeatureExtractor(DefaultOptions()).Record(f)

	assert.False(t, rec.Get(ElbowAngle).Defined())
	assert.False(t, rec.Get(BowlingArmAngle).Defined())
	assert.True(t, rec.Get(FrontKneeAngle).Defined())
	assert.True(t, rec.Get(SpineAngle).Defined())
	assert.False(t, rec.complete())
}

func TestFeatureExtractor_MinVisibility(t *testing.T) {
	f := bowlerFrame(0, 0.9)
	f.Landmarks[Nose] = Landmark{X: 0.5, Y: 0.2, Visibility: 0.1}

	opts := DefaultOptions()
	assert.True(t, NewFeatureExtractor(opts).Record(f).Get(HeadPosition).Defined())

	opts.MinVisibility = 0.5
	assert.False(t, NewFeatureExtractor(opts).Record(f).Get(HeadPosition).Defined())
}

func TestFeatureExtractor_Extract(t *testing.T) {
	seq := ankleSequence(0.3, 0.4, 0.9, 0.4, 0.3, 0.3)
	seq[4] = without(seq[4], LeftKnee)
	ev := NewHeuristicDetector(SideRight).Detect(seq)

	ex, err := NewFeatureExtractor(DefaultOptions()).Extract(context.Background(), seq, ev)
	require.NoError(t, err)

	require.Len(t, ex.Records, 4)
	assert.Equal(t, 4, ex.Processed)
	assert.Equal(t, 1, ex.Incomplete)
	assert.Len(t, ex.FrontKnee, 4)
	assert.Len(t, ex.BackKnee, 4)
	assert.False(t, ex.BackKnee[2].Angle.Defined())

	var ffc, release int
	for _, r := range ex.Records {
		if r.IsFFC {
			ffc++
			assert.Equal(t, 2, r.Frame)
		}
		if r.IsBallRelease {
			release++
			assert.Equal(t, 5, r.Frame)
		}
	}
	assert.Equal(t, 1, ffc)
	assert.Equal(t, 1, release)
}

func TestFeatureExtractor_ExtractUnresolvedEvents(t *testing.T) {
	ex, err := NewFeatureExtractor(DefaultOptions()).Extract(context.Background(), nil, Events{FFCPos: -1, ReleasePos: -1})
	require.NoError(t, err)
	assert.Empty(t, ex.Records)
}

func TestFeatureExtractor_ExtractCanceled(t *testing.T) {
	seq := ankleSequence(0.9, 0.3, 0.3)
	ev := NewHeuristicDetector(SideRight).Detect(seq)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFeatureExtractor(DefaultOptions()).Extract(ctx, seq, ev)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFeatureRecord_MarshalJSON(t *testing.T) {
	rec := NewFeatureExtractor(DefaultOptions()).Record(without(bowlerFrame(7, 0.9), Nose))
	rec.IsFFC = true

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.EqualValues(t, 7, got["frame"])
	assert.Equal(t, true, got["is_ffc"])
	assert.Equal(t, false, got["is_ball_release"])
	assert.Nil(t, got["Head Position"])
	assert.Contains(t, got, "Head Position")
	assert.IsType(t, float64(0), got["Spine Angle"])
}

func TestFeatureRecord_JSONRoundTrip(t *testing.T) {
	rec := NewFeatureExtractor(DefaultOptions()).Record(without(bowlerFrame(4, 0.9), Nose))
	rec.IsBallRelease = true

	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var got FeatureRecord
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, rec, got)
}

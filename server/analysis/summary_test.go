package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(frame int, release bool, v float64) FeatureRecord {
	r := FeatureRecord{Frame: frame, IsBallRelease: release}
	for i := range r.Values {
		r.Values[i] = Some(v)
	}
	return r
}

func TestSummarize_EmptyRecords(t *testing.T) {
	rows := Summarize(nil, LegPhases{}, LegPhases{}, Events{}, DefaultReleaseWindowFallback)

	require.Len(t, rows, len(ReleaseCatalog))
	for i, row := range rows {
		assert.Equal(t, ReleaseCatalog[i].String(), row.Feature)
		assert.Equal(t, 0, row.Frames)
		assert.False(t, row.Average.Defined())
		assert.False(t, row.Min.Defined())
		assert.False(t, row.Max.Defined())
		assert.Equal(t, PhaseLabelRelease, row.MeasurementPhase)
	}
}

func TestSummarize_ReleaseFrameOnly(t *testing.T) {
	records := []FeatureRecord{record(5, false, 10), record(6, false, 20), record(7, true, 30)}
	ev := Events{FFC: frameAt(5), Release: frameAt(7)}

	rows := Summarize(records, LegPhases{}, LegPhases{}, ev, DefaultReleaseWindowFallback)

	require.Len(t, rows, len(ReleaseCatalog))
	for _, row := range rows {
		assert.Equal(t, Some(30), row.Average)
		assert.Equal(t, 1, row.Frames)
		assert.Equal(t, frameAt(5), row.FFCFrame)
		assert.Equal(t, frameAt(7), row.ReleaseFrame)
	}
}

func TestSummarize_FallbackWindowSkipsUndefined(t *testing.T) {
	records := []FeatureRecord{
		record(0, false, 100),
		record(1, false, 10),
		record(2, false, 20),
		record(3, false, 60),
	}
	records[2].Values[ElbowAngle] = None()

	rows := Summarize(records, LegPhases{}, LegPhases{}, Events{}, 3)

	elbow := rows[0]
	require.Equal(t, "Elbow Angle", elbow.Feature)
	assert.Equal(t, 2, elbow.Frames)
	assert.InDelta(t, 35, elbow.Average.Or(0), 1e-9)
	assert.Equal(t, Some(10), elbow.Min)
	assert.Equal(t, Some(60), elbow.Max)

	spine := rows[len(ReleaseCatalog)-1]
	require.Equal(t, "Spine Angle", spine.Feature)
	assert.Equal(t, 3, spine.Frames)
	assert.InDelta(t, 30, spine.Average.Or(0), 1e-9)
}

func TestSummarize_PhaseRows(t *testing.T) {
	front := AnalyzePhases(FrontLeg, series(Some(160), Some(90), Some(170)))
	back := AnalyzePhases(BackLeg, series(None()))
	ev := Events{FFC: frameAt(0), Release: frameAt(2)}

	rows := Summarize([]FeatureRecord{record(0, true, 1)}, front, back, ev, DefaultReleaseWindowFallback)

	require.Len(t, rows, len(ReleaseCatalog)+4)
	tail := rows[len(ReleaseCatalog):]

	want := []struct {
		feature string
		label   string
		value   float64
	}{
		{"Front Knee at FFC", PhaseLabelFFC, 160},
		{"Front Knee Max Flexion", PhaseLabelMaxFlexion, 90},
		{"Front Knee Max Extension", PhaseLabelMaxExtension, 170},
		{"Knee Angle Deviation", PhaseLabelFrontDeviation, 10},
	}
	for i, w := range want {
		assert.Equal(t, w.feature, tail[i].Feature)
		assert.Equal(t, w.label, tail[i].MeasurementPhase)
		assert.InDelta(t, w.value, tail[i].Average.Or(-1), 1e-9)
		assert.Equal(t, tail[i].Average, tail[i].Min)
		assert.Equal(t, tail[i].Average, tail[i].Max)
		assert.Equal(t, 1, tail[i].Frames)
		assert.Equal(t, ev.Release, tail[i].ReleaseFrame)
	}
}

func TestReleaseWindow(t *testing.T) {
	records := []FeatureRecord{record(0, false, 0), record(1, false, 0)}

	assert.Len(t, ReleaseWindow(records, 3), 2)
	assert.Empty(t, ReleaseWindow(nil, 3))

	records = append(records, record(2, true, 0), record(3, false, 0))
	got := ReleaseWindow(records, 3)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Frame)
}

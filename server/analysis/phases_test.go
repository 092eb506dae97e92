package analysis

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func series(angles ...Value) []SeriesPoint {
	out := make([]SeriesPoint, len(angles))
	for i, a := range angles {
		out[i] = SeriesPoint{Frame: i, Angle: a}
	}
	return out
}

func TestAnalyzePhases_FrontLeg(t *testing.T) {
	got := AnalyzePhases(FrontLeg, series(None(), Some(160), Some(90), Some(170)))

	assert.Equal(t, PhaseMeasurement{Leg: FrontLeg, Phase: PhaseContact, Angle: Some(160), Frame: frameAt(1)}, got.Contact)
	assert.Equal(t, PhaseMeasurement{Leg: FrontLeg, Phase: PhaseMaxFlexion, Angle: Some(90), Frame: frameAt(2)}, got.MaxFlexion)
	assert.Equal(t, PhaseMeasurement{Leg: FrontLeg, Phase: PhaseMaxExtension, Angle: Some(170), Frame: frameAt(3)}, got.MaxExtension)

	dev, ok := got.Deviation.Get()
	require.True(t, ok)
	assert.InDelta(t, 10, dev, 1e-9)
}

func TestAnalyzePhases_Empty(t *testing.T) {
	for name, s := range map[string][]SeriesPoint{
		"nil":           nil,
		"all undefined": series(None(), None(), None()),
	} {
		t.Run(name, func(t *testing.T) {
			got := AnalyzePhases(FrontLeg, s)
			assert.False(t, got.Contact.Angle.Defined())
			assert.False(t, got.Contact.Frame.OK)
			assert.False(t, got.MaxFlexion.Angle.Defined())
			assert.False(t, got.MaxExtension.Angle.Defined())
			assert.False(t, got.Deviation.Defined())
			assert.Equal(t, PhaseMaxExtension, got.MaxExtension.Phase)
		})
	}
}

func TestAnalyzePhases_BackLegSearchesSecondHalf(t *testing.T) {
	s := series(Some(175), Some(100), Some(120), Some(140))

	back := AnalyzePhases(BackLeg, s)
	front := AnalyzePhases(FrontLeg, s)

	assert.Equal(t, frameAt(3), back.MaxExtension.Frame)
	assert.Equal(t, Some(140), back.MaxExtension.Angle)
	assert.Equal(t, frameAt(0), front.MaxExtension.Frame)
	assert.Equal(t, frameAt(1), back.MaxFlexion.Frame)
}

func TestAnalyzePhases_BackLegSingleSample(t *testing.T) {
	got := AnalyzePhases(BackLeg, series(Some(150)))

	assert.Equal(t, frameAt(0), got.Contact.Frame)
	assert.Equal(t, frameAt(0), got.MaxExtension.Frame)
	assert.Equal(t, Some(0), got.Deviation)
}

func TestAnalyzePhases_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(20)
		s := make([]SeriesPoint, n)
		for j := range s {
			s[j] = SeriesPoint{Frame: 10 + j, Angle: Some(rng.Float64() * 180)}
		}

		back := AnalyzePhases(BackLeg, s)
		assert.GreaterOrEqual(t, back.MaxExtension.Frame.Index-10, n/2)

		front := AnalyzePhases(FrontLeg, s)
		flex, _ := front.MaxFlexion.Angle.Get()
		ext, _ := front.MaxExtension.Angle.Get()
		contact, _ := front.Contact.Angle.Get()
		assert.LessOrEqual(t, flex, contact)
		assert.GreaterOrEqual(t, ext, contact)
		assert.GreaterOrEqual(t, front.Deviation.Or(-1), 0.0)
	}
}

func TestAnalyzePhases_TiesKeepFirst(t *testing.T) {
	got := AnalyzePhases(FrontLeg, series(Some(120), Some(90), Some(90), Some(150), Some(150)))

	assert.Equal(t, frameAt(1), got.MaxFlexion.Frame)
	assert.Equal(t, frameAt(3), got.MaxExtension.Frame)
}

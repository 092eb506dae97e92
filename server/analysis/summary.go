package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Measurement phase labels used in report rows.
const (
	PhaseLabelRelease        = "Ball Release"
	PhaseLabelFFC            = "Front Foot Contact"
	PhaseLabelMaxFlexion     = "Maximum Flexion"
	PhaseLabelMaxExtension   = "Maximum Extension"
	PhaseLabelFrontDeviation = "FFC to Max Extension"
	PhaseLabelBFC            = "Back Foot Contact"
	PhaseLabelBackMaxFlexion = "Back Maximum Flexion"
	PhaseLabelBackMaxExtend  = "Back Maximum Extension"
	PhaseLabelBackDeviation  = "BFC to Max Extension"
)

// ReleaseCatalog is the ordered set of features summarized over the release window.
var ReleaseCatalog = []Feature{
	ElbowAngle,
	BackKneeAngle,
	TrunkLean,
	HipShoulderSeparation,
	ShoulderAlignment,
	BowlingArmAngle,
	NonBowlingArmAngle,
	HeadPosition,
	PelvisRotation,
	FrontAnkleAngle,
	BackAnkleAngle,
	SpineAngle,
}

// SummaryRow is one line of the biomechanics report.
type SummaryRow struct {
	Feature          string   `json:"Feature"`
	Average          Value    `json:"Average"`
	Min              Value    `json:"Min"`
	Max              Value    `json:"Max"`
	Frames           int      `json:"Frames"`
	MeasurementPhase string   `json:"Measurement_Phase"`
	FFCFrame         FrameRef `json:"FFC_Frame"`
	ReleaseFrame     FrameRef `json:"Release_Frame"`
}

// ReleaseWindow returns the records flagged as ball release, or the last fallback
// records when none is flagged.
func ReleaseWindow(records []FeatureRecord, fallback int) []FeatureRecord {
	var window []FeatureRecord
	for _, r := range records {
		if r.IsBallRelease {
			window = append(window, r)
		}
	}
	if len(window) > 0 {
		return window
	}
	if fallback > len(records) {
		fallback = len(records)
	}
	return records[len(records)-fallback:]
}

// Summarize builds the ordered report rows: one row per catalog feature over the
// release window, always present, then the defined knee phase rows.
func Summarize(records []FeatureRecord, front, back LegPhases, ev Events, fallback int) []SummaryRow {
	window := ReleaseWindow(records, fallback)
	rows := make([]SummaryRow, 0, len(ReleaseCatalog)+8)

	for _, f := range ReleaseCatalog {
		row := statsRow(f, window)
		row.FFCFrame, row.ReleaseFrame = ev.FFC, ev.Release
		rows = append(rows, row)
	}

	phaseRows := []struct {
		name  string
		label string
		value Value
	}{
		{"Front Knee at FFC", PhaseLabelFFC, front.Contact.Angle},
		{"Front Knee Max Flexion", PhaseLabelMaxFlexion, front.MaxFlexion.Angle},
		{"Front Knee Max Extension", PhaseLabelMaxExtension, front.MaxExtension.Angle},
		{"Knee Angle Deviation", PhaseLabelFrontDeviation, front.Deviation},
		{"Back Knee at BFC", PhaseLabelBFC, back.Contact.Angle},
		{"Back Knee Max Flexion", PhaseLabelBackMaxFlexion, back.MaxFlexion.Angle},
		{"Back Knee Max Extension", PhaseLabelBackMaxExtend, back.MaxExtension.Angle},
		{"Back Knee Deviation", PhaseLabelBackDeviation, back.Deviation},
	}
	for _, p := range phaseRows {
		if !p.value.Defined() {
			continue
		}
		rows = append(rows, SummaryRow{
			Feature:          p.name,
			Average:          p.value,
			Min:              p.value,
			Max:              p.value,
			Frames:           1,
			MeasurementPhase: p.label,
			FFCFrame:         ev.FFC,
			ReleaseFrame:     ev.Release,
		})
	}

	return rows
}

func statsRow(f Feature, window []FeatureRecord) SummaryRow {
	row := SummaryRow{Feature: f.String(), MeasurementPhase: PhaseLabelRelease}

	values := make([]float64, 0, len(window))
	for _, r := range window {
		if v, ok := r.Get(f).Get(); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return row
	}

	row.Average = Some(stat.Mean(values, nil))
	row.Min = Some(floats.Min(values))
	row.Max = Some(floats.Max(values))
	row.Frames = len(values)
	return row
}

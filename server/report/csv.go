// Package report writes analysis summaries as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/san-kum/probowler/server/analysis"
)

var (
	fullHeader       = []string{"Feature", "Average", "Min", "Max", "Frames", "Measurement_Phase", "FFC_Frame", "Release_Frame"}
	comparisonHeader = []string{"Feature", "Average", "Min", "Max", "Frames"}
)

// WriteCSV writes every report row. Undefined values are empty cells.
func WriteCSV(w io.Writer, rows []analysis.SummaryRow) error {
	return write(w, fullHeader, rows, func(r analysis.SummaryRow) []string {
		return append(statCells(r), r.MeasurementPhase, frameCell(r.FFCFrame), frameCell(r.ReleaseFrame))
	})
}

// WriteComparisonCSV writes the reduced report used to compare bowlers.
func WriteComparisonCSV(w io.Writer, rows []analysis.SummaryRow) error {
	return write(w, comparisonHeader, rows, statCells)
}

func write(w io.Writer, header []string, rows []analysis.SummaryRow, cells func(analysis.SummaryRow) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(cells(r)); err != nil {
			return fmt.Errorf("failed to write row %q: %w", r.Feature, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func statCells(r analysis.SummaryRow) []string {
	return []string{r.Feature, valueCell(r.Average), valueCell(r.Min), valueCell(r.Max), strconv.Itoa(r.Frames)}
}

func valueCell(v analysis.Value) string {
	f, ok := v.Get()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func frameCell(r analysis.FrameRef) string {
	if !r.OK {
		return ""
	}
	return strconv.Itoa(r.Index)
}

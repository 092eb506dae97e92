package pose

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/san-kum/probowler/server/analysis"
)

// column maps a CSV column to one coordinate of one landmark.
type column struct {
	landmark analysis.LandmarkName
	axis     byte // x, y, z or v
}

// ReadCSV parses a MediaPipe landmark export. Each row is one frame. Landmark columns are
// named {index}_{axis} or {NAME}_{axis}, with axis one of x, y, z, v or visibility. A
// "frame" column gives the frame index, otherwise rows are numbered from zero. Empty or
// NaN cells leave the landmark missing; unrelated columns are ignored.
func ReadCSV(r io.Reader) (analysis.Sequence, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, analysis.ErrEmptySequence
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	frameCol := -1
	columns := make(map[int]column, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if strings.EqualFold(name, "frame") {
			frameCol = i
			continue
		}
		if col, ok := parseColumn(name); ok {
			columns[i] = col
		}
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("no landmark columns in header")
	}

	var frames []analysis.Frame
	for row := 0; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}

		index := row
		if frameCol >= 0 {
			index, err = strconv.Atoi(strings.TrimSpace(record[frameCol]))
			if err != nil {
				// exports sometimes write the index as a float
				f, ferr := strconv.ParseFloat(strings.TrimSpace(record[frameCol]), 64)
				if ferr != nil || f != math.Trunc(f) {
					return nil, fmt.Errorf("row %d: invalid frame %q", row+1, record[frameCol])
				}
				index = int(f)
			}
		}

		frames = append(frames, buildFrame(index, record, columns))
	}

	return analysis.NewSequence(frames)
}

type partial struct {
	lm   analysis.Landmark
	x, y bool
}

func buildFrame(index int, record []string, columns map[int]column) analysis.Frame {
	parts := make(map[analysis.LandmarkName]*partial, analysis.NumLandmarks)
	for i, col := range columns {
		v, ok := parseCell(record[i])
		if !ok {
			continue
		}
		p := parts[col.landmark]
		if p == nil {
			p = &partial{}
			parts[col.landmark] = p
		}
		switch col.axis {
		case 'x':
			p.lm.X, p.x = v, true
		case 'y':
			p.lm.Y, p.y = v, true
		case 'z':
			p.lm.Z = v
		case 'v':
			p.lm.Visibility = v
		}
	}

	f := analysis.Frame{Index: index, Landmarks: make(map[analysis.LandmarkName]analysis.Landmark, len(parts))}
	for name, p := range parts {
		if p.x && p.y {
			f.Landmarks[name] = p.lm
		}
	}
	return f
}

func parseColumn(name string) (column, bool) {
	cut := strings.LastIndexByte(name, '_')
	if cut <= 0 || cut == len(name)-1 {
		return column{}, false
	}
	prefix, suffix := name[:cut], strings.ToLower(name[cut+1:])

	var axis byte
	switch suffix {
	case "x", "y", "z", "v":
		axis = suffix[0]
	case "visibility":
		axis = 'v'
	default:
		return column{}, false
	}

	if idx, err := strconv.Atoi(prefix); err == nil {
		lm, ok := analysis.LandmarkByIndex(idx)
		return column{landmark: lm, axis: axis}, ok
	}
	lm := analysis.LandmarkName(strings.ToUpper(prefix))
	return column{landmark: lm, axis: axis}, lm.Valid()
}

func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

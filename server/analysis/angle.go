package analysis

import "math"

// Angle returns the interior angle at vertex b formed by points a, b and c, in degrees
// within [0, 180]. It is undefined when a or c coincides with b.
func Angle(a, b, c Point) Value {
	deg, err := AngleDegrees(a, b, c)
	if err != nil {
		return None()
	}
	return Some(deg)
}

// AngleDegrees is Angle with an explicit error. It returns ErrDegenerateGeometry when a
// or c coincides with b.
func AngleDegrees(a, b, c Point) (float64, error) {
	bax, bay := a.X-b.X, a.Y-b.Y
	bcx, bcy := c.X-b.X, c.Y-b.Y

	normBA := math.Hypot(bax, bay)
	normBC := math.Hypot(bcx, bcy)
	if normBA == 0 || normBC == 0 {
		return 0, ErrDegenerateGeometry
	}

	cosine := (bax*bcx + bay*bcy) / (normBA * normBC)
	cosine = math.Max(-1, math.Min(1, cosine))

	return math.Acos(cosine) * 180 / math.Pi, nil
}

// angleOf computes the angle at landmark b of a frame. Any unusable landmark yields an
// undefined value.
func angleOf(f Frame, minVisibility float64, a, b, c LandmarkName) Value {
	pa, ok := f.Point(a, minVisibility)
	if !ok {
		return None()
	}
	pb, ok := f.Point(b, minVisibility)
	if !ok {
		return None()
	}
	pc, ok := f.Point(c, minVisibility)
	if !ok {
		return None()
	}
	return Angle(pa, pb, pc)
}

func midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

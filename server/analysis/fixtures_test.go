package analysis

// bowlerPose is a right-arm bowler near front foot contact. The right ankle height is
// set per frame.
var bowlerPose = map[LandmarkName]Point{
	Nose:           {X: 0.50, Y: 0.20},
	LeftShoulder:   {X: 0.42, Y: 0.30},
	RightShoulder:  {X: 0.58, Y: 0.32},
	LeftElbow:      {X: 0.38, Y: 0.42},
	RightElbow:     {X: 0.64, Y: 0.22},
	LeftWrist:      {X: 0.36, Y: 0.52},
	RightWrist:     {X: 0.66, Y: 0.10},
	LeftHip:        {X: 0.45, Y: 0.55},
	RightHip:       {X: 0.55, Y: 0.56},
	LeftKnee:       {X: 0.43, Y: 0.70},
	RightKnee:      {X: 0.58, Y: 0.70},
	LeftAnkle:      {X: 0.42, Y: 0.85},
	LeftFootIndex:  {X: 0.46, Y: 0.88},
	RightFootIndex: {X: 0.64, Y: 0.53},
}

func bowlerFrame(index int, rightAnkleY float64) Frame {
	f := Frame{Index: index, Landmarks: make(map[LandmarkName]Landmark, len(bowlerPose)+1)}
	for name, p := range bowlerPose {
		f.Landmarks[name] = Landmark{X: p.X, Y: p.Y, Visibility: 0.99}
	}
	f.Landmarks[RightAnkle] = Landmark{X: 0.60, Y: rightAnkleY, Visibility: 0.99}
	return f
}

// ankleSequence builds one frame per ankle height, indexed from zero.
func ankleSequence(ys ...float64) Sequence {
	seq := make(Sequence, len(ys))
	for i, y := range ys {
		seq[i] = bowlerFrame(i, y)
	}
	return seq
}

func without(f Frame, names ...LandmarkName) Frame {
	out := Frame{Index: f.Index, Landmarks: make(map[LandmarkName]Landmark, len(f.Landmarks))}
	for k, v := range f.Landmarks {
		out.Landmarks[k] = v
	}
	for _, n := range names {
		delete(out.Landmarks, n)
	}
	return out
}

// mirrored swaps left and right landmark names of every frame.
func mirrored(seq Sequence) Sequence {
	swap := map[LandmarkName]LandmarkName{}
	for side, j := range sideJoints {
		o := sideJoints[side.Opposite()]
		swap[j.Shoulder], swap[j.Elbow], swap[j.Wrist] = o.Shoulder, o.Elbow, o.Wrist
		swap[j.Hip], swap[j.Knee], swap[j.Ankle], swap[j.FootIndex] = o.Hip, o.Knee, o.Ankle, o.FootIndex
	}
	out := make(Sequence, len(seq))
	for i, f := range seq {
		nf := Frame{Index: f.Index, Landmarks: make(map[LandmarkName]Landmark, len(f.Landmarks))}
		for name, lm := range f.Landmarks {
			if s, ok := swap[name]; ok {
				name = s
			}
			nf.Landmarks[name] = lm
		}
		out[i] = nf
	}
	return out
}

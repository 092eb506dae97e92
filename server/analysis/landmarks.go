// Package analysis derives bowling event timings and joint-angle summaries from a
// sequence of 2-D pose landmarks.
package analysis

import (
	"fmt"
	"math"
	"strings"
)

// LandmarkName identifies a point in the MediaPipe pose taxonomy.
type LandmarkName string

// Pose landmarks in MediaPipe index order.
// See: https://developers.google.com/mediapipe/solutions/vision/pose_landmarker
const (
	Nose           LandmarkName = "NOSE"
	LeftEyeInner   LandmarkName = "LEFT_EYE_INNER"
	LeftEye        LandmarkName = "LEFT_EYE"
	LeftEyeOuter   LandmarkName = "LEFT_EYE_OUTER"
	RightEyeInner  LandmarkName = "RIGHT_EYE_INNER"
	RightEye       LandmarkName = "RIGHT_EYE"
	RightEyeOuter  LandmarkName = "RIGHT_EYE_OUTER"
	LeftEar        LandmarkName = "LEFT_EAR"
	RightEar       LandmarkName = "RIGHT_EAR"
	MouthLeft      LandmarkName = "MOUTH_LEFT"
	MouthRight     LandmarkName = "MOUTH_RIGHT"
	LeftShoulder   LandmarkName = "LEFT_SHOULDER"
	RightShoulder  LandmarkName = "RIGHT_SHOULDER"
	LeftElbow      LandmarkName = "LEFT_ELBOW"
	RightElbow     LandmarkName = "RIGHT_ELBOW"
	LeftWrist      LandmarkName = "LEFT_WRIST"
	RightWrist     LandmarkName = "RIGHT_WRIST"
	LeftPinky      LandmarkName = "LEFT_PINKY"
	RightPinky     LandmarkName = "RIGHT_PINKY"
	LeftIndex      LandmarkName = "LEFT_INDEX"
	RightIndex     LandmarkName = "RIGHT_INDEX"
	LeftThumb      LandmarkName = "LEFT_THUMB"
	RightThumb     LandmarkName = "RIGHT_THUMB"
	LeftHip        LandmarkName = "LEFT_HIP"
	RightHip       LandmarkName = "RIGHT_HIP"
	LeftKnee       LandmarkName = "LEFT_KNEE"
	RightKnee      LandmarkName = "RIGHT_KNEE"
	LeftAnkle      LandmarkName = "LEFT_ANKLE"
	RightAnkle     LandmarkName = "RIGHT_ANKLE"
	LeftHeel       LandmarkName = "LEFT_HEEL"
	RightHeel      LandmarkName = "RIGHT_HEEL"
	LeftFootIndex  LandmarkName = "LEFT_FOOT_INDEX"
	RightFootIndex LandmarkName = "RIGHT_FOOT_INDEX"
)

// LandmarkNames lists the taxonomy in MediaPipe index order.
var LandmarkNames = [...]LandmarkName{
	Nose, LeftEyeInner, LeftEye, LeftEyeOuter, RightEyeInner, RightEye, RightEyeOuter,
	LeftEar, RightEar, MouthLeft, MouthRight,
	LeftShoulder, RightShoulder, LeftElbow, RightElbow, LeftWrist, RightWrist,
	LeftPinky, RightPinky, LeftIndex, RightIndex, LeftThumb, RightThumb,
	LeftHip, RightHip, LeftKnee, RightKnee, LeftAnkle, RightAnkle,
	LeftHeel, RightHeel, LeftFootIndex, RightFootIndex,
}

// NumLandmarks is the size of the pose taxonomy.
const NumLandmarks = len(LandmarkNames)

var landmarkSet = func() map[LandmarkName]struct{} {
	m := make(map[LandmarkName]struct{}, NumLandmarks)
	for _, n := range LandmarkNames {
		m[n] = struct{}{}
	}
	return m
}()

// LandmarkByIndex maps a MediaPipe landmark index to its name.
func LandmarkByIndex(i int) (LandmarkName, bool) {
	if i < 0 || i >= NumLandmarks {
		return "", false
	}
	return LandmarkNames[i], true
}

// Valid reports whether n belongs to the pose taxonomy.
func (n LandmarkName) Valid() bool {
	_, ok := landmarkSet[n]
	return ok
}

// Landmark is one detected point in normalized image coordinates.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// Point is a 2-D point in the image plane.
type Point struct {
	X float64
	Y float64
}

// Frame holds the landmarks detected in one video frame.
type Frame struct {
	Index     int
	Landmarks map[LandmarkName]Landmark
}

// Point returns the image-plane position of a landmark. A landmark is unusable when it
// is absent, carries a non-finite coordinate, or its visibility is below minVisibility.
func (f Frame) Point(name LandmarkName, minVisibility float64) (Point, bool) {
	lm, ok := f.Landmarks[name]
	if !ok {
		return Point{}, false
	}
	if !finite(lm.X) || !finite(lm.Y) {
		return Point{}, false
	}
	if minVisibility > 0 && lm.Visibility < minVisibility {
		return Point{}, false
	}
	return Point{X: lm.X, Y: lm.Y}, true
}

// usable reports whether at least one landmark of the frame can be read.
func (f Frame) usable(minVisibility float64) bool {
	for name := range f.Landmarks {
		if _, ok := f.Point(name, minVisibility); ok {
			return true
		}
	}
	return false
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Sequence is one bowling trial: frames ordered by strictly increasing index.
type Sequence []Frame

// NewSequence validates frame ordering and returns the frames as a Sequence. It fails
// with ErrEmptySequence when there are no frames.
func NewSequence(frames []Frame) (Sequence, error) {
	if len(frames) == 0 {
		return nil, ErrEmptySequence
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Index <= frames[i-1].Index {
			return nil, fmt.Errorf("frame %d follows frame %d: %w",
				frames[i].Index, frames[i-1].Index, ErrUnorderedFrames)
		}
	}
	return Sequence(frames), nil
}

// Side is a body side.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// ParseSide accepts "left"/"right" in any case, plus "l"/"r".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "left", "l":
		return SideLeft, nil
	case "right", "r":
		return SideRight, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideLeft {
		return SideRight
	}
	return SideLeft
}

// Joints names the landmarks of one body side.
type Joints struct {
	Shoulder  LandmarkName
	Elbow     LandmarkName
	Wrist     LandmarkName
	Hip       LandmarkName
	Knee      LandmarkName
	Ankle     LandmarkName
	FootIndex LandmarkName
}

var sideJoints = map[Side]Joints{
	SideLeft: {
		Shoulder: LeftShoulder, Elbow: LeftElbow, Wrist: LeftWrist,
		Hip: LeftHip, Knee: LeftKnee, Ankle: LeftAnkle, FootIndex: LeftFootIndex,
	},
	SideRight: {
		Shoulder: RightShoulder, Elbow: RightElbow, Wrist: RightWrist,
		Hip: RightHip, Knee: RightKnee, Ankle: RightAnkle, FootIndex: RightFootIndex,
	},
}

// Sides resolves the front (bowling-arm, landing-leg) and back body sides once per trial.
type Sides struct {
	Front Joints
	Back  Joints
}

// ResolveSides maps the dominant side to front and back joints. An unknown side falls
// back to right.
func ResolveSides(dominant Side) Sides {
	if dominant != SideLeft {
		dominant = SideRight
	}
	return Sides{
		Front: sideJoints[dominant],
		Back:  sideJoints[dominant.Opposite()],
	}
}

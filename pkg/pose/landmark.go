// Package pose holds the body-landmark model shared by every stage of the tracking pipeline,
// along with the bounding-box predictor and the PoseEstimator capability.
package pose

import "strings"

// Landmark is a named body keypoint. Its value is the index into the canonical COCO ordering.
type Landmark int

const (
	Nose Landmark = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
)

// Number of landmarks produced by every PoseEstimator
const NumLandmarks = 17

// Canonical (COCO) landmark names, in index order
var LandmarkNames = [NumLandmarks]string{
	"nose",
	"left_eye",
	"right_eye",
	"left_ear",
	"right_ear",
	"left_shoulder",
	"right_shoulder",
	"left_elbow",
	"right_elbow",
	"left_wrist",
	"right_wrist",
	"left_hip",
	"right_hip",
	"left_knee",
	"right_knee",
	"left_ankle",
	"right_ankle",
}

// Pairs of landmarks that are joined by a bone when drawing a skeleton.
// The face landmarks are not part of the skeleton.
var SkeletonEdges = [][2]Landmark{
	{LeftShoulder, RightShoulder},
	{LeftShoulder, LeftHip},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightShoulder, RightHip},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{LeftHip, RightHip},
	{LeftShoulder, LeftElbow},
	{LeftElbow, LeftWrist},
	{RightShoulder, RightElbow},
	{RightElbow, RightWrist},
}

var camelNames [NumLandmarks]string
var nameToLandmark map[string]Landmark

// AllLandmarks returns every landmark, in canonical order
func AllLandmarks() []Landmark {
	all := make([]Landmark, NumLandmarks)
	for i := range all {
		all[i] = Landmark(i)
	}
	return all
}

func (l Landmark) Valid() bool {
	return l >= 0 && l < NumLandmarks
}

// String returns the snake_case name, eg "left_shoulder"
func (l Landmark) String() string {
	if !l.Valid() {
		return "invalid"
	}
	return LandmarkNames[l]
}

// CamelCase returns the name used on the wire, eg "leftShoulder"
func (l Landmark) CamelCase() string {
	if !l.Valid() {
		return "invalid"
	}
	return camelNames[l]
}

// LandmarkFromName accepts either the snake_case or the camelCase name
func LandmarkFromName(name string) (Landmark, bool) {
	l, ok := nameToLandmark[name]
	return l, ok
}

func toCamelCase(snake string) string {
	parts := strings.Split(snake, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] != "" {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, "")
}

func init() {
	nameToLandmark = map[string]Landmark{}
	for i, name := range LandmarkNames {
		camelNames[i] = toCamelCase(name)
		nameToLandmark[name] = Landmark(i)
		nameToLandmark[camelNames[i]] = Landmark(i)
	}
}

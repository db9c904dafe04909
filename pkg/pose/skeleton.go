package pose

import (
	"errors"
	"fmt"
)

var ErrLandmarkCount = errors.New("wrong number of landmarks")

// Landmarks with a score below this are treated as absent when deciding which way a person is facing
const MinVisibleScore = 0.2

// Point is a single landmark position, either in normalized [0,1] or pixel coordinates,
// depending on the PoseEstimator.
type Point struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Score float64 `json:"score"` // Confidence between 0 and 1
}

// Skeleton is the full set of landmarks for one frame, in canonical order.
// The zero value is the empty skeleton, which has no landmarks at all (eg before the first inference).
// A Skeleton is never modified after construction, so it is safe to share between goroutines.
type Skeleton struct {
	points *[NumLandmarks]Point
}

// NewSkeleton copies points into a new Skeleton.
// points must contain exactly NumLandmarks entries.
func NewSkeleton(points []Point) (Skeleton, error) {
	if len(points) != NumLandmarks {
		return Skeleton{}, fmt.Errorf("%w: expected %v, got %v", ErrLandmarkCount, NumLandmarks, len(points))
	}
	s := Skeleton{points: &[NumLandmarks]Point{}}
	copy(s.points[:], points)
	return s, nil
}

// MustSkeleton is NewSkeleton, but panics on error
func MustSkeleton(points []Point) Skeleton {
	s, err := NewSkeleton(points)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Skeleton) IsEmpty() bool {
	return s.points == nil
}

// At returns the point for the landmark, or false if the skeleton is empty
func (s Skeleton) At(l Landmark) (Point, bool) {
	if s.points == nil || !l.Valid() {
		return Point{}, false
	}
	return s.points[l], true
}

// Score returns the landmark's score, or zero if the skeleton is empty
func (s Skeleton) Score(l Landmark) float64 {
	p, _ := s.At(l)
	return p.Score
}

// Points returns a copy of all points (nil if the skeleton is empty)
func (s Skeleton) Points() []Point {
	if s.points == nil {
		return nil
	}
	out := make([]Point, NumLandmarks)
	copy(out, s.points[:])
	return out
}

// Edges returns the two end points of each bone in SkeletonEdges
func (s Skeleton) Edges() [][2]Point {
	if s.points == nil {
		return nil
	}
	edges := make([][2]Point, len(SkeletonEdges))
	for i, e := range SkeletonEdges {
		edges[i] = [2]Point{s.points[e[0]], s.points[e[1]]}
	}
	return edges
}

func (s Skeleton) Equal(b Skeleton) bool {
	if s.points == nil || b.points == nil {
		return s.points == nil && b.points == nil
	}
	return *s.points == *b.points
}

type UserFacing int

const (
	UserFacingOther UserFacing = iota
	UserFacingToward
	UserFacingLeft
	UserFacingRight
)

func (f UserFacing) String() string {
	switch f {
	case UserFacingToward:
		return "toward"
	case UserFacingLeft:
		return "left"
	case UserFacingRight:
		return "right"
	}
	return "other"
}

// UserFacing estimates which way the person is facing, from the horizontal order of the nose and ears.
// The nose between the ears means the person is facing the camera.
func (s Skeleton) UserFacing() UserFacing {
	nose, ok := s.At(Nose)
	if !ok || nose.Score < MinVisibleScore {
		return UserFacingOther
	}
	leftEar, _ := s.At(LeftEar)
	rightEar, _ := s.At(RightEar)
	if leftEar.Score < MinVisibleScore || rightEar.Score < MinVisibleScore {
		return UserFacingOther
	}
	switch {
	case nose.X < leftEar.X && nose.X > rightEar.X:
		return UserFacingToward
	case nose.X < leftEar.X && nose.X < rightEar.X:
		return UserFacingRight
	case nose.X > leftEar.X && nose.X > rightEar.X:
		return UserFacingLeft
	}
	return UserFacingOther
}

package pose

import "github.com/chewxy/math32"

// Landmarks below this score are ignored by the bounding box predictor
const MinRegionScore = 0.2

// Padding added around the landmark box, as a fraction of the box size.
// Limbs extend further below the shoulders and knees than above them, so the bottom gets more.
const (
	RegionPadTop    = 0.1
	RegionPadBottom = 0.2
	RegionPadSides  = 0.2
)

// If any of these are not visible, we don't trust the previous frame enough to crop the next one.
var regionAnchors = [...]Landmark{LeftShoulder, RightShoulder, LeftKnee, RightKnee}

// PredictRegion returns the region that the next inference should focus on, derived from
// the previous frame's stabilized skeleton. Returns false if most of the body was not visible
// in the previous frame, in which case the caller should run inference on the whole frame.
// bounds is the coordinate range of the skeleton (NormalizedBounds or PixelBounds).
func PredictRegion(prev Skeleton, bounds Bounds) (Region, bool) {
	if prev.IsEmpty() {
		return Region{}, false
	}
	for _, a := range regionAnchors {
		if prev.Score(a) < MinRegionScore {
			return Region{}, false
		}
	}

	minX, minY := math32.Inf(1), math32.Inf(1)
	maxX, maxY := math32.Inf(-1), math32.Inf(-1)
	for _, p := range prev.points {
		if p.Score < MinRegionScore {
			continue
		}
		x, y := float32(p.X), float32(p.Y)
		minX = math32.Min(minX, x)
		minY = math32.Min(minY, y)
		maxX = math32.Max(maxX, x)
		maxY = math32.Max(maxY, y)
	}

	w := maxX - minX
	h := maxY - minY
	r := Region{
		X1: minX - RegionPadSides*w,
		Y1: minY - RegionPadTop*h,
		X2: maxX + RegionPadSides*w,
		Y2: maxY + RegionPadBottom*h,
	}
	return r.Clamp(bounds), true
}

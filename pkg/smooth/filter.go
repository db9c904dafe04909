// Package smooth stabilizes landmark positions over time, with one adaptive low-pass filter per landmark.
//
// The filter is the "1€ filter" (https://hal.inria.fr/hal-00670496/document).
// The cutoff frequency rises with the estimated speed of the landmark, so a stationary
// landmark is heavily smoothed, but a fast moving landmark is tracked with little lag.
package smooth

import (
	"math"

	"github.com/cyclopcam/formtrack/pkg/pose"
)

// Samples with a score below this are not blended with their neighbours
const MinFilterScore = 0.01

type Params struct {
	MinCutoff float64 `json:"minCutoff" yaml:"minCutoff"` // Cutoff frequency (Hz) of a stationary landmark
	Beta      float64 `json:"beta" yaml:"beta"`           // How much the cutoff rises with speed
	DCutoff   float64 `json:"dCutoff" yaml:"dCutoff"`     // Cutoff frequency (Hz) of the velocity estimate
}

func DefaultParams() Params {
	return Params{
		MinCutoff: 0.3,
		Beta:      20.0,
		DCutoff:   1.0,
	}
}

// Filter state of a single landmark
type landmarkFilter struct {
	initialized bool
	x, y        float64 // previous stabilized position
	dx, dy      float64 // previous smoothed velocity
	score       float64 // score of the previous emitted sample
	t           float64 // timestamp of the previous sample (seconds)
}

// Bank holds one filter per landmark. A Bank belongs to a single tracking session, and is not
// safe for concurrent use (the session's inference gate serializes calls to Stabilize).
type Bank struct {
	params  Params
	filters [pose.NumLandmarks]landmarkFilter
}

func NewBank(params Params) *Bank {
	return &Bank{
		params: params,
	}
}

// Stabilize filters a raw skeleton. timestamp is in seconds, and must increase with every call.
// An empty skeleton is returned unchanged.
func (b *Bank) Stabilize(raw pose.Skeleton, timestamp float64) pose.Skeleton {
	if raw.IsEmpty() {
		return raw
	}
	in := raw.Points()
	out := make([]pose.Point, pose.NumLandmarks)
	for i := range in {
		out[i] = b.filters[i].update(&b.params, in[i], timestamp)
	}
	return pose.MustSkeleton(out)
}

func smoothingFactor(te, cutoff float64) float64 {
	tau := 1.0 / (2 * math.Pi * cutoff)
	return 1.0 / (1.0 + tau/te)
}

func exponentialSmoothing(a, x, xPrev float64) float64 {
	return a*x + (1-a)*xPrev
}

func (f *landmarkFilter) reset(p pose.Point, t float64) pose.Point {
	f.initialized = true
	f.x = p.X
	f.y = p.Y
	f.dx = 0
	f.dy = 0
	f.score = p.Score
	f.t = t
	return p
}

func (f *landmarkFilter) update(params *Params, p pose.Point, t float64) pose.Point {
	if !f.initialized {
		return f.reset(p, t)
	}

	// Never blend across a low confidence gap
	if f.score < MinFilterScore || p.Score < MinFilterScore {
		if p.Score >= MinFilterScore || f.score < MinFilterScore {
			return f.reset(p, t)
		}
		// Hold the last good sample
		return pose.Point{X: f.x, Y: f.y, Score: f.score}
	}

	te := t - f.t
	if te <= 0 {
		// Duplicate or out of order timestamp. There is nothing to filter over.
		return pose.Point{X: f.x, Y: f.y, Score: p.Score}
	}

	aD := smoothingFactor(te, params.DCutoff)
	dx := (p.X - f.x) / te
	dy := (p.Y - f.y) / te
	dxHat := exponentialSmoothing(aD, dx, f.dx)
	dyHat := exponentialSmoothing(aD, dy, f.dy)

	alphaX := smoothingFactor(te, params.MinCutoff+params.Beta*math.Abs(dxHat))
	alphaY := smoothingFactor(te, params.MinCutoff+params.Beta*math.Abs(dyHat))
	xHat := exponentialSmoothing(alphaX, p.X, f.x)
	yHat := exponentialSmoothing(alphaY, p.Y, f.y)

	f.x = xHat
	f.y = yHat
	f.dx = dxHat
	f.dy = dyHat
	f.score = p.Score
	f.t = t
	return pose.Point{X: xHat, Y: yHat, Score: p.Score}
}

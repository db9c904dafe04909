package analysisd

import (
	"math"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/gen"
	"github.com/cyclopcam/formtrack/pkg/pose"
	"gonum.org/v1/gonum/stat"
)

// Rep segmentation thresholds, in standard deviations of hip height from the mean.
// The gap between them is hysteresis, so that jitter around the mean is not counted as a rep.
const (
	repDownThreshold = 0.5  // Hips are this far below the mean at the bottom of a rep
	repUpThreshold   = -0.5 // Hips are this far above the mean when standing
)

// If the hips move less than this (normalized units), the person is not repping
const minHipStdDev = 0.01

// Need at least this many frames with visible hips
const minRepSamples = 5

// Analysis types produced by analyzeReps
const (
	AnalysisDepth      = "HIP_DEPTH"
	AnalysisDurationMs = "DURATION_MS"
	AnalysisKneeAngle  = "KNEE_ANGLE"
)

type hipSample struct {
	frame int     // index into frames
	ms    int64   // timestamp
	y     float64 // mean height of the two hips. Image Y grows downwards.
}

// analyzeReps finds repetitions of a vertical movement (squat, deadlift, etc) in the height of the hips.
// A rep goes from the highest hip position while standing, down to the lowest position, and back up
// to the highest position of the next standing phase.
func analyzeReps(frames []analysis.FrameRecord) []analysis.Rep {
	samples := []hipSample{}
	for i, f := range frames {
		left, okL := f.Skeleton.At(pose.LeftHip)
		right, okR := f.Skeleton.At(pose.RightHip)
		if !okL || !okR || left.Score < pose.MinVisibleScore || right.Score < pose.MinVisibleScore {
			continue
		}
		samples = append(samples, hipSample{
			frame: i,
			ms:    int64(math.Round(f.Timestamp * 1000)),
			y:     (left.Y + right.Y) / 2,
		})
	}
	if len(samples) < minRepSamples {
		return []analysis.Rep{}
	}

	ys := make([]float64, len(samples))
	for i, s := range samples {
		ys[i] = s.y
	}
	mean, std := stat.MeanStdDev(ys, nil)
	if std < minHipStdDev {
		return []analysis.Rep{}
	}

	// Alternate between standing and down phases, recording the extreme sample of each phase
	tops := []int{}    // index into samples of the highest hip in each standing phase
	bottoms := []int{} // index into samples of the lowest hip in each down phase
	standing := (samples[0].y-mean)/std <= repDownThreshold
	best := 0
	for i, s := range samples {
		z := (s.y - mean) / std
		if standing {
			if z > repDownThreshold {
				tops = append(tops, best)
				standing = false
				best = i
			} else if s.y < samples[best].y {
				best = i
			}
		} else {
			if z < repUpThreshold {
				if len(tops) != 0 {
					bottoms = append(bottoms, best)
				}
				standing = true
				best = i
			} else if s.y > samples[best].y {
				best = i
			}
		}
	}
	if standing {
		tops = append(tops, best)
	}

	reps := []analysis.Rep{}
	for i, bottom := range bottoms {
		if i+1 >= len(tops) {
			break
		}
		start, end := samples[tops[i]], samples[tops[i+1]]
		mid := samples[bottom]
		rep := analysis.Rep{
			StartTimestampMs: start.ms,
			MidTimestampMs:   mid.ms,
			EndTimestampMs:   end.ms,
			Analyses: map[string]float64{
				AnalysisDepth:      gen.Abs(mid.y - start.y),
				AnalysisDurationMs: float64(end.ms - start.ms),
			},
		}
		if angle, ok := kneeAngle(frames[mid.frame].Skeleton); ok {
			rep.Analyses[AnalysisKneeAngle] = angle
		}
		reps = append(reps, rep)
	}
	return reps
}

// kneeAngle returns the angle (degrees) at the more visible knee, between the thigh and the shin
func kneeAngle(s pose.Skeleton) (float64, bool) {
	best := -1.0
	angle := 0.0
	for _, side := range [][3]pose.Landmark{
		{pose.LeftHip, pose.LeftKnee, pose.LeftAnkle},
		{pose.RightHip, pose.RightKnee, pose.RightAnkle},
	} {
		hip, _ := s.At(side[0])
		knee, _ := s.At(side[1])
		ankle, _ := s.At(side[2])
		score := min(hip.Score, knee.Score, ankle.Score)
		if score < pose.MinVisibleScore || score <= best {
			continue
		}
		ax, ay := hip.X-knee.X, hip.Y-knee.Y
		bx, by := ankle.X-knee.X, ankle.Y-knee.Y
		la, lb := math.Hypot(ax, ay), math.Hypot(bx, by)
		if la == 0 || lb == 0 {
			continue
		}
		cos := gen.Clamp((ax*bx+ay*by)/(la*lb), -1, 1)
		angle = math.Acos(cos) * 180 / math.Pi
		best = score
	}
	return angle, best >= 0
}

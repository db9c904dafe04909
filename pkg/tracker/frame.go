package tracker

import (
	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/pose"
)

// FrameInference is the result of submitting one camera frame to a Session.
// It is never modified after it is returned.
type FrameInference struct {
	Index         int64             // Strictly increasing within a session, with gaps where frames failed
	Timestamp     float64           // Seconds since the session's first inference
	Raw           pose.Skeleton     // Output of the estimator
	Stabilized    pose.Skeleton     // Raw, after temporal smoothing
	Analysis      analysis.Analysis // The latest analysis at the moment this frame was created
	PreviousIndex int64             // Index of the previous inferred frame, or -1 for the first frame
	Repeat        bool              // True if the estimator was busy, and this is a copy of the previous inferred frame
}

func (f *FrameInference) HasPrevious() bool {
	return f.PreviousIndex >= 0
}

// Skeleton returns the stabilized skeleton, or the raw skeleton if disableSmoothing is true
func (f *FrameInference) Skeleton(disableSmoothing bool) pose.Skeleton {
	if disableSmoothing {
		return f.Raw
	}
	return f.Stabilized
}

func (f *FrameInference) Landmark(l pose.Landmark, disableSmoothing bool) (pose.Point, bool) {
	return f.Skeleton(disableSmoothing).At(l)
}

func (f *FrameInference) UserFacing() pose.UserFacing {
	return f.Stabilized.UserFacing()
}

func (f *FrameInference) record() analysis.FrameRecord {
	return analysis.FrameRecord{
		FrameIndex: f.Index,
		Timestamp:  f.Timestamp,
		Skeleton:   f.Stabilized,
	}
}

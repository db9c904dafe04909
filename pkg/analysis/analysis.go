// Package analysis is the data model of the remote movement analysis service,
// and the encoding of the frames that we upload to it.
package analysis

// Analysis is the server's interpretation of everything that has been uploaded so far
type Analysis struct {
	Movement string `json:"liftType,omitempty"` // eg "squat". Empty if the movement has not been classified yet.
	Reps     []Rep  `json:"reps"`
}

// Rep is a single repetition of the movement
type Rep struct {
	StartTimestampMs int64              `json:"startTimestampMs"`
	MidTimestampMs   int64              `json:"midTimestampMs"`
	EndTimestampMs   int64              `json:"endTimestampMs"`
	Analyses         map[string]float64 `json:"-"` // analysisType -> analysisScalar
}

// Empty returns an analysis with no movement and no reps
func Empty() Analysis {
	return Analysis{Reps: []Rep{}}
}

func (a *Analysis) HasMovement() bool {
	return a.Movement != ""
}

func (a *Analysis) IsEmpty() bool {
	return a.Movement == "" && len(a.Reps) == 0
}

package analysis

import (
	"encoding/json"
	"testing"

	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/stretchr/testify/require"
)

const fixtureResponse = `{
	"liftType": "squat",
	"reps": [
		{
			"startTimestampMs": 0,
			"midTimestampMs": 100,
			"endTimestampMs": 200,
			"analyses": [
				{"analysisType": "HIP_KNEE_ANGLE", "analysisScalar": 87.5},
				{"analysisType": "REP_DURATION", "analysisScalar": 200}
			]
		},
		{
			"startTimestampMs": 1200,
			"midTimestampMs": 1500,
			"endTimestampMs": 1900
		}
	]
}`

func TestParseAnalysis(t *testing.T) {
	a := ParseAnalysis([]byte(fixtureResponse))
	require.Equal(t, "squat", a.Movement)
	require.True(t, a.HasMovement())
	require.Equal(t, 2, len(a.Reps))
	require.Equal(t, Rep{
		StartTimestampMs: 0,
		MidTimestampMs:   100,
		EndTimestampMs:   200,
		Analyses: map[string]float64{
			"HIP_KNEE_ANGLE": 87.5,
			"REP_DURATION":   200,
		},
	}, a.Reps[0])
	require.Equal(t, int64(1900), a.Reps[1].EndTimestampMs)
	require.Empty(t, a.Reps[1].Analyses)
}

func TestParseMalformed(t *testing.T) {
	for _, body := range []string{
		``,
		`not json`,
		`[]`,
		`{}`,
		`{"liftType": 5, "reps": "many"}`,
		`{"liftType": null, "reps": [1, "two", null]}`,
	} {
		a := ParseAnalysis([]byte(body))
		require.Equal(t, "", a.Movement, body)
		require.Empty(t, a.Reps, body)
		require.True(t, a.IsEmpty(), body)
	}

	// Bad fields inside a rep don't spoil the rest of it
	a := ParseAnalysis([]byte(`{"reps": [{"startTimestampMs": "x", "midTimestampMs": 5, "analyses": [7, {"analysisType": "A"}, {"analysisType": "B", "analysisScalar": 2}]}]}`))
	require.Equal(t, 1, len(a.Reps))
	require.Equal(t, int64(0), a.Reps[0].StartTimestampMs)
	require.Equal(t, int64(5), a.Reps[0].MidTimestampMs)
	require.Equal(t, map[string]float64{"B": 2}, a.Reps[0].Analyses)
}

func TestAnalysisJSONRoundTrip(t *testing.T) {
	a := ParseAnalysis([]byte(fixtureResponse))
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, a, ParseAnalysis(b))

	var decoded Analysis
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, a, decoded)
}

func TestEncodeFrames(t *testing.T) {
	points := make([]pose.Point, pose.NumLandmarks)
	points[pose.LeftHip] = pose.Point{X: 0.5, Y: 0.5, Score: 1}
	frames := []FrameRecord{
		{FrameIndex: 3, Timestamp: 0.25, Skeleton: pose.MustSkeleton(points)},
		{FrameIndex: 4, Timestamp: 0.5},
	}
	b, err := EncodeFrames(frames)
	require.NoError(t, err)

	decoded := []map[string]any{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, 2, len(decoded))
	require.Equal(t, 3.0, decoded[0]["frameIndex"])
	require.Equal(t, 0.25, decoded[0]["timestamp"])
	require.Equal(t, map[string]any{"x": 0.5, "y": 0.5, "score": 1.0}, decoded[0]["leftHip"])
	require.Equal(t, 2+pose.NumLandmarks, len(decoded[0]))
	// Empty skeleton carries no landmarks
	require.Equal(t, 2, len(decoded[1]))

	records := []FrameRecord{}
	require.NoError(t, json.Unmarshal(b, &records))
	require.Equal(t, int64(3), records[0].FrameIndex)
	require.True(t, records[0].Skeleton.Equal(frames[0].Skeleton))
	require.True(t, records[1].Skeleton.IsEmpty())

	b, err = EncodeFrames(nil)
	require.NoError(t, err)
	require.Equal(t, "[]", string(b))
}

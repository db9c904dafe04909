package analysisd

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/analysisclient"
	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// squatFrames simulates nReps squats, each lasting 2 seconds, at 30 FPS.
// The hips start at the top, reach the bottom at 1 second, and return to the top at 2 seconds.
func squatFrames(nReps int) []analysis.FrameRecord {
	frames := []analysis.FrameRecord{}
	for i := 0; i <= nReps*60; i++ {
		t := float64(i) / 30
		hipY := 0.5 - 0.15*math.Cos(2*math.Pi*t/2)
		points := make([]pose.Point, pose.NumLandmarks)
		for j := range points {
			points[j] = pose.Point{X: 0.5, Y: 0.2, Score: 0.9}
		}
		points[pose.LeftHip] = pose.Point{X: 0.55, Y: hipY, Score: 0.9}
		points[pose.RightHip] = pose.Point{X: 0.45, Y: hipY, Score: 0.9}
		points[pose.LeftKnee] = pose.Point{X: 0.65, Y: 0.7, Score: 0.9}
		points[pose.RightKnee] = pose.Point{X: 0.35, Y: 0.7, Score: 0.9}
		points[pose.LeftAnkle] = pose.Point{X: 0.55, Y: 0.9, Score: 0.9}
		points[pose.RightAnkle] = pose.Point{X: 0.45, Y: 0.9, Score: 0.9}
		frames = append(frames, analysis.FrameRecord{
			FrameIndex: int64(i),
			Timestamp:  t,
			Skeleton:   pose.MustSkeleton(points),
		})
	}
	return frames
}

func TestAnalyzeReps(t *testing.T) {
	reps := analyzeReps(squatFrames(3))
	require.Equal(t, 3, len(reps))
	for i, r := range reps {
		start := int64(i) * 2000
		require.Equal(t, start, r.StartTimestampMs)
		require.Equal(t, start+1000, r.MidTimestampMs)
		require.Equal(t, start+2000, r.EndTimestampMs)
		require.InDelta(t, 0.3, r.Analyses[AnalysisDepth], 1e-6)
		require.Equal(t, 2000.0, r.Analyses[AnalysisDurationMs])
		require.Greater(t, r.Analyses[AnalysisKneeAngle], 0.0)
		require.Less(t, r.Analyses[AnalysisKneeAngle], 180.0)
	}

	// Incomplete rep at the end is not counted
	frames := squatFrames(2)
	require.Equal(t, 1, len(analyzeReps(frames[:100])))

	// Standing still
	still := squatFrames(1)
	for i := range still {
		still[i].Skeleton = squatFrames(1)[0].Skeleton
	}
	require.Empty(t, analyzeReps(still))

	// Too little data, and no visible hips
	require.Empty(t, analyzeReps(frames[:3]))
	require.Empty(t, analyzeReps([]analysis.FrameRecord{{FrameIndex: 1}, {FrameIndex: 2}}))
}

func newTestServer(t *testing.T, apiKeys []string, uploadsPerMinute int) (*Server, *httptest.Server) {
	log := logs.NewTestingLog(t)
	s, err := NewServer(log, filepath.Join(t.TempDir(), "analysisd.sqlite"), apiKeys, uploadsPerMinute)
	require.NoError(t, err)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		s.Close()
	})
	return s, srv
}

func TestServerWithClient(t *testing.T) {
	_, srv := newTestServer(t, []string{"secret"}, 0)
	ctx := context.Background()
	client := analysisclient.NewClient(logs.NewTestingLog(t), srv.URL, "secret")

	id, err := client.CreateSession(ctx, analysisclient.SessionParams{
		Domain:           "weightlifting",
		Activity:         "squat",
		ResolutionWidth:  480,
		ResolutionHeight: 640,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Upload in batches, the way the buffer does. The first batch is not yet a complete rep.
	frames := squatFrames(2)
	a, err := client.PatchAnalysis(ctx, id, frames[:40])
	require.NoError(t, err)
	require.True(t, a.IsEmpty())

	a, err = client.PatchAnalysis(ctx, id, frames[40:])
	require.NoError(t, err)
	require.Equal(t, "squat", a.Movement)
	require.Equal(t, 2, len(a.Reps))
	require.Equal(t, int64(2000), a.Reps[1].StartTimestampMs)

	// Uploading the same frames again doesn't change anything
	a2, err := client.PatchAnalysis(ctx, id, frames[100:])
	require.NoError(t, err)
	require.Equal(t, a, a2)

	// GET returns the same thing as the last PATCH
	req, _ := http.NewRequest("GET", srv.URL+"/videos/"+id+"/analysis", nil)
	req.Header.Set(analysisclient.APIKeyHeader, "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, a, analysis.ParseAnalysis(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "analysisd_frames_received_total 142")
}

func TestServerErrors(t *testing.T) {
	_, srv := newTestServer(t, []string{"secret"}, 0)
	ctx := context.Background()

	bad := analysisclient.NewClient(logs.NewTestingLog(t), srv.URL, "wrong")
	_, err := bad.CreateSession(ctx, analysisclient.SessionParams{ResolutionWidth: 1, ResolutionHeight: 1})
	require.ErrorContains(t, err, "401")

	good := analysisclient.NewClient(logs.NewTestingLog(t), srv.URL, "secret")
	_, err = good.PatchAnalysis(ctx, "no-such-video", nil)
	require.ErrorContains(t, err, "404")

	_, err = good.CreateSession(ctx, analysisclient.SessionParams{})
	require.ErrorContains(t, err, "400")

	id, err := good.CreateSession(ctx, analysisclient.SessionParams{ResolutionWidth: 1, ResolutionHeight: 1})
	require.NoError(t, err)
	req, _ := http.NewRequest("PATCH", srv.URL+"/videos/"+id+"/j2p", strings.NewReader("not json"))
	req.Header.Set(analysisclient.APIKeyHeader, "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadRateLimit(t *testing.T) {
	_, srv := newTestServer(t, nil, 2)
	ctx := context.Background()
	client := analysisclient.NewClient(logs.NewTestingLog(t), srv.URL, "")
	id, err := client.CreateSession(ctx, analysisclient.SessionParams{ResolutionWidth: 1, ResolutionHeight: 1})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = client.PatchAnalysis(ctx, id, nil)
		require.NoError(t, err)
	}
	_, err = client.PatchAnalysis(ctx, id, nil)
	require.ErrorContains(t, err, "429")
}

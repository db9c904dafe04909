package analysisclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cyclopcam/formtrack/pkg/analysis"
	"github.com/cyclopcam/formtrack/pkg/pose"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

const fixtureAnalysis = `{"liftType":"squat","reps":[{"startTimestampMs":0,"midTimestampMs":40,"endTimestampMs":80,"analyses":[{"analysisType":"DEPTH","analysisScalar":0.75}]}]}`

func TestClient(t *testing.T) {
	var created map[string]any
	var patched []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("/videos", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&created))
		w.Write([]byte(`{"id":"abc"}`))
	})
	mux.HandleFunc("/videos/abc/j2p", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(APIKeyHeader) != "secret" {
			http.Error(w, "bad key", http.StatusUnauthorized)
			return
		}
		require.Equal(t, "PATCH", r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &patched))
		w.Write([]byte(fixtureAnalysis))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(logs.NewTestingLog(t), srv.URL+"/", "secret")
	id, err := c.CreateSession(ctx, SessionParams{
		Domain:           "weightlifting",
		Activity:         "squat",
		ResolutionWidth:  480,
		ResolutionHeight: 640,
	})
	require.NoError(t, err)
	require.Equal(t, "abc", id)
	require.Equal(t, "local", created["inference"])
	require.Equal(t, "weightlifting", created["domain"])
	require.Equal(t, 640.0, created["resolutionHeight"])

	points := make([]pose.Point, pose.NumLandmarks)
	points[pose.Nose] = pose.Point{X: 0.5, Y: 0.1, Score: 0.9}
	a, err := c.PatchAnalysis(ctx, id, []analysis.FrameRecord{
		{FrameIndex: 7, Timestamp: 0.5, Skeleton: pose.MustSkeleton(points)},
	})
	require.NoError(t, err)
	require.Equal(t, "squat", a.Movement)
	require.Equal(t, 1, len(a.Reps))
	require.Equal(t, 0.75, a.Reps[0].Analyses["DEPTH"])
	require.Equal(t, 1, len(patched))
	require.Equal(t, 7.0, patched[0]["frameIndex"])
	require.Equal(t, map[string]any{"x": 0.5, "y": 0.1, "score": 0.9}, patched[0]["nose"])

	// Wrong key
	bad := NewClient(logs.NewTestingLog(t), srv.URL, "wrong")
	_, err = bad.PatchAnalysis(ctx, id, nil)
	require.Error(t, err)

	// Unreachable server
	srv.Close()
	_, err = c.CreateSession(ctx, SessionParams{})
	require.Error(t, err)
}

func TestBufferWithClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(fixtureAnalysis))
	}))
	defer srv.Close()

	c := NewClient(logs.NewTestingLog(t), srv.URL, "secret")
	b := NewBuffer(logs.NewTestingLog(t), c, "abc", DefaultBufferOptions())
	a, ok := b.Admit(context.Background(), frame(0))
	require.True(t, ok)
	require.Equal(t, analysis.ParseAnalysis([]byte(fixtureAnalysis)), a)
	require.Equal(t, 0, b.Len())
}

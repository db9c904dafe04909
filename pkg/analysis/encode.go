package analysis

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/cyclopcam/formtrack/pkg/pose"
)

// FrameRecord is one frame, as uploaded to the analysis service
type FrameRecord struct {
	FrameIndex int64
	Timestamp  float64 // Seconds since the start of the session
	Skeleton   pose.Skeleton
}

// MarshalJSON produces {"frameIndex":N, "timestamp":T, "<landmark>":{"x","y","score"}, ...}
// where <landmark> is the camelCase landmark name. An empty skeleton produces no landmark keys.
func (f FrameRecord) MarshalJSON() ([]byte, error) {
	b := bytes.Buffer{}
	b.WriteString(`{"frameIndex":`)
	b.WriteString(strconv.FormatInt(f.FrameIndex, 10))
	b.WriteString(`,"timestamp":`)
	ts, err := json.Marshal(f.Timestamp)
	if err != nil {
		return nil, err
	}
	b.Write(ts)
	for _, l := range pose.AllLandmarks() {
		p, ok := f.Skeleton.At(l)
		if !ok {
			break
		}
		pj, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		b.WriteString(`,"`)
		b.WriteString(l.CamelCase())
		b.WriteString(`":`)
		b.Write(pj)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON accepts the format produced by MarshalJSON.
// If any landmark is missing, the skeleton is left empty.
func (f *FrameRecord) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = FrameRecord{}
	if v, ok := raw["frameIndex"]; ok {
		if err := json.Unmarshal(v, &f.FrameIndex); err != nil {
			return err
		}
	}
	if v, ok := raw["timestamp"]; ok {
		if err := json.Unmarshal(v, &f.Timestamp); err != nil {
			return err
		}
	}
	points := make([]pose.Point, pose.NumLandmarks)
	for _, l := range pose.AllLandmarks() {
		v, ok := raw[l.CamelCase()]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(v, &points[l]); err != nil {
			return err
		}
	}
	f.Skeleton = pose.MustSkeleton(points)
	return nil
}

// EncodeFrames produces the body of a batch upload
func EncodeFrames(frames []FrameRecord) ([]byte, error) {
	if frames == nil {
		frames = []FrameRecord{}
	}
	return json.Marshal(frames)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

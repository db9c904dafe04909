package analysis

import (
	"encoding/json"
	"math"
)

// ParseAnalysis decodes a response from the analysis service.
// The response is not trusted: any field that is missing or has the wrong type falls back to its
// zero value, and a body that isn't JSON at all produces an empty analysis.
func ParseAnalysis(body []byte) Analysis {
	raw := map[string]any{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Empty()
	}
	return fromMap(raw)
}

func fromMap(raw map[string]any) Analysis {
	a := Empty()
	a.Movement, _ = raw["liftType"].(string)
	reps, _ := raw["reps"].([]any)
	for _, r := range reps {
		repMap, ok := r.(map[string]any)
		if !ok {
			continue
		}
		a.Reps = append(a.Reps, repFromMap(repMap))
	}
	return a
}

func repFromMap(raw map[string]any) Rep {
	rep := Rep{
		StartTimestampMs: toInt64(raw["startTimestampMs"]),
		MidTimestampMs:   toInt64(raw["midTimestampMs"]),
		EndTimestampMs:   toInt64(raw["endTimestampMs"]),
		Analyses:         map[string]float64{},
	}
	list, _ := raw["analyses"].([]any)
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, ok := m["analysisType"].(string)
		if !ok || name == "" {
			continue
		}
		value, ok := toFloat64(m["analysisScalar"])
		if !ok {
			continue
		}
		rep.Analyses[name] = value
	}
	return rep
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInt64(v any) int64 {
	f, ok := toFloat64(v)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f))
}

// analysisJSON is the wire form of Analysis, which carries Rep.Analyses as a list of
// {analysisType, analysisScalar} pairs.
type analysisJSON struct {
	Movement string    `json:"liftType,omitempty"`
	Reps     []repJSON `json:"reps"`
}

type repJSON struct {
	StartTimestampMs int64          `json:"startTimestampMs"`
	MidTimestampMs   int64          `json:"midTimestampMs"`
	EndTimestampMs   int64          `json:"endTimestampMs"`
	Analyses         []analysisItem `json:"analyses"`
}

type analysisItem struct {
	AnalysisType   string  `json:"analysisType"`
	AnalysisScalar float64 `json:"analysisScalar"`
}

// MarshalJSON produces the same format that ParseAnalysis consumes
func (a Analysis) MarshalJSON() ([]byte, error) {
	out := analysisJSON{
		Movement: a.Movement,
		Reps:     make([]repJSON, 0, len(a.Reps)),
	}
	for _, r := range a.Reps {
		rj := repJSON{
			StartTimestampMs: r.StartTimestampMs,
			MidTimestampMs:   r.MidTimestampMs,
			EndTimestampMs:   r.EndTimestampMs,
			Analyses:         []analysisItem{},
		}
		for _, name := range sortedKeys(r.Analyses) {
			rj.Analyses = append(rj.Analyses, analysisItem{name, r.Analyses[name]})
		}
		out.Reps = append(out.Reps, rj)
	}
	return json.Marshal(out)
}

func (a *Analysis) UnmarshalJSON(b []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = fromMap(raw)
	return nil
}

package core

// Segment is a timestamped span of transcribed speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// FailureEvent is a structured failure claim extracted from narrated video.
type FailureEvent struct {
	TimestampSeconds float64 `json:"timestamp_seconds"`
	Title            string  `json:"title"`
	Expected         string  `json:"expected"`
	Actual           string  `json:"actual"`
	Evidence         string  `json:"evidence"`
	Confidence       float64 `json:"confidence"`
}

// DebugInfo carries per-stage counters for diagnostic reporting. The
// counters never influence the returned failure list.
type DebugInfo struct {
	NumSegments   int `json:"num_segments"`
	NumCandidates int `json:"num_candidates"`
	NumWindows    int `json:"num_windows"`
}

// AnalyzeResponse is the body returned by POST /analyze.
type AnalyzeResponse struct {
	Failures []FailureEvent `json:"failures"`
	Mode     string         `json:"mode"` // "real" or "mock"
	Debug    *DebugInfo     `json:"debug,omitempty"`
}

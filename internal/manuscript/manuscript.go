// Package manuscript defines the audio-guide domain: themes, the generated
// manuscript and the session value that carries a user's choices between
// workflow stages.
package manuscript

// Theme names one section of the guide. IDs are 1-based and sequential.
type Theme struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Approved bool   `json:"approved"`
}

// CueKind says whether an overlay effect begins or ends at a cue.
type CueKind string

const (
	CueStart CueKind = "start"
	CueStop  CueKind = "stop"
)

// AudioOverlayCue marks where a background sound starts or stops. Timestamp is
// the MM:SS text as written by the model and is not range checked.
type AudioOverlayCue struct {
	Timestamp   string  `json:"timestamp"`
	Kind        CueKind `json:"type"`
	Description string  `json:"description"`
}

// Section is one generated part of the manuscript. ID matches the Theme ID.
type Section struct {
	ID              int               `json:"id"`
	Theme           string            `json:"theme"`
	Content         string            `json:"content"`
	AudioOverlay    []AudioOverlayCue `json:"audioOverlay"`
	NarratorVoice   string            `json:"narratorVoice"`
	EstimatedLength string            `json:"estimatedLength"`
}

// Manuscript is the complete result of one generation run, one section per
// theme in theme order. It is only ever built from a run where every section
// succeeded.
type Manuscript struct {
	Sections []Section `json:"sections"`
}

package pipeline

import (
	"ai-datalab/internal/dataset"
	"ai-datalab/internal/history"
)

// Intent is what the model understood from the user's message. An empty
// CSVFile means the user did not name a dataset.
type Intent struct {
	Intent     string         `json:"intent"`
	CSVFile    string         `json:"csv_file"`
	Operations []string       `json:"operations"`
	Filters    map[string]any `json:"filters,omitempty"`
}

// AnalysisResult is either a failure (Error set) or a description of the
// loaded dataset with whatever the requested operations produced.
type AnalysisResult struct {
	Error          string           `json:"error,omitempty"`
	File           string           `json:"file,omitempty"`
	Rows           int              `json:"rows"`
	Columns        []string         `json:"columns,omitempty"`
	Summary        *dataset.Summary `json:"summary,omitempty"`
	FilteredSample []dataset.Record `json:"filtered_sample,omitempty"`
	Sample         []dataset.Record `json:"sample,omitempty"`
}

func (r AnalysisResult) Failed() bool { return r.Error != "" }

// State is threaded through every stage of one run. A stage reads what
// earlier stages wrote and fills in its own output field:
// intent → Intent, processing → Analysis and Frame, response → Response.
type State struct {
	SessionID   string
	UserMessage string
	History     []history.Turn

	Intent   Intent
	Analysis AnalysisResult
	Frame    *dataset.Frame
	Response string
}

func NewState(sessionID, message string, turns []history.Turn) *State {
	return &State{SessionID: sessionID, UserMessage: message, History: turns}
}

package domain

import "time"

const RunStateSchemaVersion = 1

// RunState is the per-day bookkeeping document. One instance exists per
// calendar date; a pass resumes from whatever it finds persisted.
type RunState struct {
	SchemaVersion int    `json:"schema_version"`
	Date          string `json:"date"` // YYYY-MM-DD in the harvest timezone
	RunID         string `json:"run_id"`

	StartedAt       time.Time `json:"started_at"`
	TotalDiscovered int       `json:"total_discovered"`

	Processed []string       `json:"processed"`
	Errors    map[string]int `json:"errors,omitempty"`

	Completed  bool       `json:"completed"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

func (r RunState) HasProcessed(id string) bool {
	for _, p := range r.Processed {
		if p == id {
			return true
		}
	}
	return false
}

func (r RunState) ErrorCount(id string) int {
	if r.Errors == nil {
		return 0
	}
	return r.Errors[id]
}

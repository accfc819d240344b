package models

import "time"

// WorkItem is one query to look up. Index fixes its position in the output.
type WorkItem struct {
	Index int
	Query string
}

// NewWorkItems assigns stable ordinals to queries in input order.
func NewWorkItems(queries []string) []WorkItem {
	items := make([]WorkItem, len(queries))
	for i, q := range queries {
		items[i] = WorkItem{Index: i, Query: q}
	}
	return items
}

// DetectionState is the terminal classification of a search results page.
type DetectionState string

const (
	StatePending          DetectionState = "pending"
	StateResultsPresent   DetectionState = "results_present"
	StateNoResultsPresent DetectionState = "no_results_present"
)

// Detection records how the completion detector exited.
type Detection struct {
	State  DetectionState `json:"state"`
	Reason string         `json:"reason"` // "results", "no_results", "settled", "budget"
	Polls  int            `json:"polls"`
}

// FetchOutcome is the result of one fetch task. Exactly one is produced per
// WorkItem and it is never modified afterwards.
type FetchOutcome struct {
	Index        int        `json:"index"`
	Query        string     `json:"business_name"`
	HTML         string     `json:"html"`
	Success      bool       `json:"success"`
	ErrorKind    string     `json:"error_kind,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	Elapsed      float64    `json:"elapsed_seconds"`
	Attempts     int        `json:"attempts"`
	ContextID    string     `json:"context_id,omitempty"`
	Cached       bool       `json:"cached,omitempty"`
	Detection    *Detection `json:"detection,omitempty"`
}

// Failed builds a failed outcome from a classified error.
func Failed(item WorkItem, err *FetchError, started time.Time) FetchOutcome {
	return FetchOutcome{
		Index:        item.Index,
		Query:        item.Query,
		Success:      false,
		ErrorKind:    err.Code,
		ErrorMessage: err.Message,
		Elapsed:      time.Since(started).Seconds(),
	}
}

// BatchResult is the ordered list of outcomes for one run.
type BatchResult []FetchOutcome

// Counts returns the number of successful and failed outcomes.
func (r BatchResult) Counts() (succeeded, failed int) {
	for _, o := range r {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Status summarises a run the same way lookup jobs report it.
func (r BatchResult) Status() string {
	ok, failed := r.Counts()
	switch {
	case len(r) == 0:
		return "completed"
	case ok == 0:
		return "failed"
	case failed > 0:
		return "partial"
	default:
		return "completed"
	}
}

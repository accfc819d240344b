package models

import "sync"

// LookupRequest is the payload for POST /api/v1/lookups.
type LookupRequest struct {
	// Queries is the list of business names to look up. Required.
	Queries []string `json:"queries" binding:"required,min=1,max=500"`

	// IncludeHTML returns the raw results HTML with each outcome.
	// Default: false (listings only).
	IncludeHTML bool `json:"include_html,omitempty"`

	// WebhookURL receives a signed lookup.completed event when the job ends.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`
}

// LookupResponse is the immediate response for POST /api/v1/lookups.
type LookupResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// LookupResult is one outcome as exposed by the API.
type LookupResult struct {
	FetchOutcome
	Listings []Listing `json:"listings,omitempty"`
}

// LookupStatusResponse is the response for GET /api/v1/lookups/:id.
type LookupStatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Completed int             `json:"completed"`
	Total     int             `json:"total"`
	Results   []*LookupResult `json:"results,omitempty"`
	Error     *ErrorDetail    `json:"error,omitempty"`
}

// LookupJob tracks an in-progress lookup run.
type LookupJob struct {
	mu        sync.Mutex
	ID        string
	Status    string // "processing", "completed", "failed", "partial"
	Total     int
	Completed int
	Results   []*LookupResult
	Err       *ErrorDetail
	CreatedAt int64 // unix timestamp
}

// Progress records how many queries have finished.
func (j *LookupJob) Progress(done int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Completed = done
}

// Finish stores the final results and status.
func (j *LookupJob) Finish(status string, results []*LookupResult, detail *ErrorDetail) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Results = results
	j.Err = detail
	j.Completed = len(results)
}

// Snapshot returns a consistent view for the status endpoint.
func (j *LookupJob) Snapshot() LookupStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	return LookupStatusResponse{
		ID:        j.ID,
		Status:    j.Status,
		Completed: j.Completed,
		Total:     j.Total,
		Results:   j.Results,
		Error:     j.Err,
	}
}

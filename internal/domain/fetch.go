package domain

import "time"

// FetchStatus classifies the terminal outcome of a page fetch.
type FetchStatus string

const (
	FetchOK           FetchStatus = "ok"
	FetchBlocked      FetchStatus = "blocked"
	FetchNetworkError FetchStatus = "network_error"
	FetchTimeout      FetchStatus = "timeout"
)

// Failed reports whether the status counts towards a total scrape failure.
func (s FetchStatus) Failed() bool {
	return s == FetchBlocked || s == FetchNetworkError || s == FetchTimeout
}

// RawFetchResult is a transient page payload; it is discarded after parsing.
type RawFetchResult struct {
	SourceID   string
	QueryTerm  string
	Category   string
	URL        string
	Payload    string
	StatusCode int
	FetchedAt  time.Time
	Status     FetchStatus
	Attempts   int
	Err        string
}

// ParseWarning records a recoverable problem met while parsing a payload.
type ParseWarning struct {
	SourceID  string `json:"sourceId"`
	QueryTerm string `json:"queryTerm"`
	Category  string `json:"category"`
	Kind      string `json:"kind"`
	Message   string `json:"message"`
}

// Warning kinds.
const (
	WarnParseFailure = "parse_failure"
	WarnInterstitial = "interstitial"
	WarnSkippedCard  = "skipped_card"
)

// FailureSummary aggregates fetch outcomes for a run.
type FailureSummary struct {
	TotalFetches     int                            `json:"totalFetches"`
	Aborted          int                            `json:"aborted"`
	ByStatus         map[FetchStatus]int            `json:"byStatus"`
	BySource         map[string]map[FetchStatus]int `json:"bySource"`
	ByCategory       map[string]map[FetchStatus]int `json:"byCategory"`
	ParseWarnings    []ParseWarning                 `json:"parseWarnings,omitempty"`
	DeadlineExceeded bool                           `json:"deadlineExceeded"`
}

// NewFailureSummary returns a summary with initialized maps.
func NewFailureSummary() FailureSummary {
	return FailureSummary{
		ByStatus:   map[FetchStatus]int{},
		BySource:   map[string]map[FetchStatus]int{},
		ByCategory: map[string]map[FetchStatus]int{},
	}
}

// Record counts one completed fetch.
func (f *FailureSummary) Record(res RawFetchResult) {
	f.TotalFetches++
	f.ByStatus[res.Status]++
	if f.BySource[res.SourceID] == nil {
		f.BySource[res.SourceID] = map[FetchStatus]int{}
	}
	f.BySource[res.SourceID][res.Status]++
	if f.ByCategory[res.Category] == nil {
		f.ByCategory[res.Category] = map[FetchStatus]int{}
	}
	f.ByCategory[res.Category][res.Status]++
}

// AllFailed is true when at least one fetch completed and none returned content.
func (f FailureSummary) AllFailed() bool {
	if f.TotalFetches == 0 {
		return false
	}
	return f.ByStatus[FetchOK] == 0
}

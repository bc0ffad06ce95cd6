package domain

import (
	"fmt"
	"time"
)

// RunStatusKind enumerates the run-level outcomes visible to callers.
type RunStatusKind string

const (
	StatusSuccess            RunStatusKind = "success"
	StatusPartialFailure     RunStatusKind = "partial_failure"
	StatusTotalScrapeFailure RunStatusKind = "total_scrape_failure"
)

// RunStatus is the tagged run outcome; Reason is set for partial failures.
type RunStatus struct {
	Kind   RunStatusKind `json:"kind"`
	Reason string        `json:"reason,omitempty"`
}

// Success builds a successful status.
func Success() RunStatus { return RunStatus{Kind: StatusSuccess} }

// PartialFailure builds a partial failure with a reason.
func PartialFailure(reason string) RunStatus {
	return RunStatus{Kind: StatusPartialFailure, Reason: reason}
}

// TotalScrapeFailure builds the status used when every fetch failed.
func TotalScrapeFailure() RunStatus {
	return RunStatus{Kind: StatusTotalScrapeFailure, Reason: "every fetch was blocked or unreachable"}
}

func (s RunStatus) String() string {
	if s.Reason == "" {
		return string(s.Kind)
	}
	return fmt.Sprintf("%s(%s)", s.Kind, s.Reason)
}

// Err maps the status onto the error taxonomy; success yields nil.
func (s RunStatus) Err() error {
	switch s.Kind {
	case StatusTotalScrapeFailure:
		return ErrTotalScrapeFailure
	case StatusPartialFailure:
		return fmt.Errorf("%w: %s", ErrPartialRun, s.Reason)
	default:
		return nil
	}
}

// Catalog is the deduplicated candidate set produced by a scrape.
type Catalog struct {
	Candidates []ProductRecord `json:"candidates"`
	Failures   FailureSummary  `json:"failures"`
	Status     RunStatus       `json:"status"`
}

// ScoreIssue flags a single dropped or missing entry of a scoring response.
type ScoreIssue struct {
	ID     string `json:"id"`
	Err    error  `json:"-"`
	Detail string `json:"detail"`
}

// RankResult is the output of the ranking stage.
type RankResult struct {
	Scored   []ScoredRecord `json:"scored"`
	Unscored []string       `json:"unscored,omitempty"`
	Issues   []ScoreIssue   `json:"issues,omitempty"`
}

// RunMode selects which stages a run executes.
type RunMode string

const (
	ModeFull       RunMode = "full"
	ModeDryRun     RunMode = "dry-run"
	ModeScrapeOnly RunMode = "scrape-only"
	ModeRankOnly   RunMode = "rank-only"
)

// ParseRunMode validates a user supplied mode string.
func ParseRunMode(v string) (RunMode, error) {
	switch m := RunMode(v); m {
	case ModeFull, ModeDryRun, ModeScrapeOnly, ModeRankOnly:
		return m, nil
	case "":
		return ModeFull, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", v)
	}
}

// RunRecord is the persisted audit snapshot of a run, keyed by RunDate.
type RunRecord struct {
	RunID      string          `json:"runId"`
	RunDate    string          `json:"runDate"`
	Mode       RunMode         `json:"mode"`
	Label      string          `json:"label,omitempty"`
	Status     RunStatus       `json:"status"`
	Candidates []ProductRecord `json:"candidates"`
	Scored     []ScoredRecord  `json:"scored,omitempty"`
	Unscored   []string        `json:"unscored,omitempty"`
	Issues     []ScoreIssue    `json:"issues,omitempty"`
	Digest     *Digest         `json:"digest,omitempty"`
	Failures   FailureSummary  `json:"failures"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// RunOutcome is handed to the notifier.
type RunOutcome struct {
	Status RunStatus
	Digest *Digest
	Record RunRecord
}

// RunDateLayout formats RunRecord.RunDate and Digest.RunDate.
const RunDateLayout = "2006-01-02"

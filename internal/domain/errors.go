package domain

import "errors"

var (
	ErrNetwork            = errors.New("network error")
	ErrBlocked            = errors.New("blocked by anti-bot defenses")
	ErrParseFailure       = errors.New("page structure not recognized")
	ErrScoringParse       = errors.New("scoring response malformed")
	ErrScoringOutOfRange  = errors.New("score outside accepted range")
	ErrScoringUnknownID   = errors.New("score for id not in batch")
	ErrScoringMissing     = errors.New("id missing from scoring response")
	ErrTotalScrapeFailure = errors.New("total scrape failure")
	ErrPartialRun         = errors.New("partial run")
	ErrPartialRunDeadline = errors.New("run deadline exceeded")
	ErrRunRecorded        = errors.New("run already recorded for date")
	ErrRunNotFound        = errors.New("run record not found")
)

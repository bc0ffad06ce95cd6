package ports

import (
	"context"
	"time"

	"ProductScout/internal/domain"
)

// ProductSource scrapes every configured category and source into a
// deduplicated candidate set.
type ProductSource interface {
	Build(ctx context.Context, runDate time.Time) (domain.Catalog, error)
}

// Scorer sends one batch to a scoring service and returns its raw reply.
// Interpreting the reply is the ranker's job.
type Scorer interface {
	Score(ctx context.Context, req domain.ScoreRequest) (string, error)
}

// ResultStore persists one audit record per run date.
type ResultStore interface {
	Append(ctx context.Context, record domain.RunRecord) error
	Load(ctx context.Context, runDate string) (domain.RunRecord, error)
}

// Notifier delivers a digest or an operator alert.
type Notifier interface {
	Deliver(ctx context.Context, outcome domain.RunOutcome) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

const reasonUnscorable = "no candidate could be scored"

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source   ports.ProductSource
	Ranker   *Ranker
	Store    ports.ResultStore
	Notifier ports.Notifier
	TopN     int
	Label    string
	Logger   *slog.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Pipeline implements the daily scrape, rank and deliver workflow.
type Pipeline struct {
	source   ports.ProductSource
	ranker   *Ranker
	store    ports.ResultStore
	notifier ports.Notifier
	topN     int
	label    string
	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:   deps.Source,
		ranker:   deps.Ranker,
		store:    deps.Store,
		notifier: deps.Notifier,
		topN:     deps.TopN,
		label:    deps.Label,
		logger:   deps.Logger,
		now:      deps.Now,
		newRunID: deps.NewRunID,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p
}

// Scrape builds the deduplicated candidate catalog for runDate.
func (p *Pipeline) Scrape(ctx context.Context, runDate time.Time) (domain.Catalog, error) {
	if p.source == nil {
		return domain.Catalog{}, errors.New("no product source configured")
	}
	catalog, err := p.source.Build(ctx, runDate)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("scrape: %w", err)
	}
	return catalog, nil
}

// Rank scores candidates and selects the digest. It touches neither the
// store nor the notifier.
func (p *Pipeline) Rank(ctx context.Context, runDate string, candidates []domain.ProductRecord) (domain.RankResult, domain.Digest, error) {
	if p.ranker == nil {
		return domain.RankResult{}, domain.Digest{}, errors.New("no ranker configured")
	}
	result := p.ranker.Score(ctx, candidates)
	digest := SelectDigest(runDate, result.Scored, p.topN)
	CountCandidates(&digest, candidates)
	return result, digest, nil
}

// Run executes one run in the given mode. Run-level failures such as a total
// scrape failure are reported in the outcome status; the returned error is
// reserved for configuration, storage and delivery problems.
func (p *Pipeline) Run(ctx context.Context, mode domain.RunMode, runDate string) (domain.RunOutcome, error) {
	day, err := time.Parse(domain.RunDateLayout, runDate)
	if err != nil {
		return domain.RunOutcome{}, fmt.Errorf("run date %q: %w", runDate, err)
	}

	rec := domain.RunRecord{
		RunID:     p.newRunID(),
		RunDate:   runDate,
		Mode:      mode,
		Label:     p.label,
		StartedAt: p.now(),
	}
	log := p.logger.With("runId", rec.RunID, "runDate", runDate, "mode", string(mode))
	log.Info("run started")

	if persists(mode) {
		if err := p.ensureFresh(ctx, runDate); err != nil {
			return domain.RunOutcome{}, err
		}
	}

	if mode == domain.ModeRankOnly {
		stored, err := p.loadStored(ctx, runDate)
		if err != nil {
			return domain.RunOutcome{}, err
		}
		rec.Candidates = stored.Candidates
		rec.Failures = stored.Failures
		rec.Status = scrapeStatus(stored)
	} else {
		catalog, err := p.Scrape(ctx, day)
		if err != nil {
			return domain.RunOutcome{}, err
		}
		rec.Candidates = catalog.Candidates
		rec.Failures = catalog.Failures
		rec.Status = catalog.Status
	}
	log.Info("catalog ready", "candidates", len(rec.Candidates), "fetches", rec.Failures.TotalFetches, "status", rec.Status.String())

	if mode != domain.ModeScrapeOnly && rec.Status.Kind != domain.StatusTotalScrapeFailure {
		result, digest, err := p.Rank(ctx, runDate, rec.Candidates)
		if err != nil {
			return domain.RunOutcome{}, err
		}
		rec.Scored = result.Scored
		rec.Unscored = result.Unscored
		rec.Issues = result.Issues
		rec.Digest = &digest
		if len(rec.Candidates) > 0 && len(result.Scored) == 0 {
			rec.Status = withReason(rec.Status, reasonUnscorable)
		}
		log.Info("digest selected", "scored", len(result.Scored), "unscored", len(result.Unscored), "topN", len(digest.TopN))
	}
	rec.FinishedAt = p.now()

	outcome := domain.RunOutcome{Status: rec.Status, Digest: rec.Digest, Record: rec}

	if persists(mode) && p.store != nil {
		if err := p.store.Append(ctx, rec); err != nil {
			return outcome, fmt.Errorf("persist run: %w", err)
		}
		log.Info("run persisted")
	}

	if mode == domain.ModeFull {
		if p.notifier == nil {
			log.Warn("no notifier configured, digest not delivered")
		} else if err := p.notifier.Deliver(ctx, outcome); err != nil {
			return outcome, fmt.Errorf("deliver digest: %w", err)
		}
	}

	log.Info("run finished", "status", rec.Status.String(), "elapsed", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
	return outcome, nil
}

// ensureFresh refuses a persisting run when the date already has a record,
// before any scraping happens.
func (p *Pipeline) ensureFresh(ctx context.Context, runDate string) error {
	if p.store == nil {
		return nil
	}
	_, err := p.store.Load(ctx, runDate)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", domain.ErrRunRecorded, runDate)
	case errors.Is(err, domain.ErrRunNotFound):
		return nil
	default:
		return fmt.Errorf("check stored run: %w", err)
	}
}

func (p *Pipeline) loadStored(ctx context.Context, runDate string) (domain.RunRecord, error) {
	if p.store == nil {
		return domain.RunRecord{}, errors.New("rank-only mode needs a result store")
	}
	stored, err := p.store.Load(ctx, runDate)
	if err != nil {
		return domain.RunRecord{}, fmt.Errorf("load stored run: %w", err)
	}
	return stored, nil
}

// scrapeStatus recovers the status a stored run had before ranking, so a
// re-rank starts from the scrape outcome alone.
func scrapeStatus(stored domain.RunRecord) domain.RunStatus {
	switch {
	case stored.Status.Kind == domain.StatusTotalScrapeFailure:
		return stored.Status
	case stored.Failures.DeadlineExceeded:
		reason, _, _ := strings.Cut(stored.Status.Reason, "; ")
		return domain.PartialFailure(reason)
	default:
		return domain.Success()
	}
}

func persists(mode domain.RunMode) bool {
	return mode != domain.ModeRankOnly
}

func withReason(status domain.RunStatus, reason string) domain.RunStatus {
	if status.Kind == domain.StatusPartialFailure && status.Reason != "" && !strings.Contains(status.Reason, reason) {
		return domain.PartialFailure(status.Reason + "; " + reason)
	}
	return domain.PartialFailure(reason)
}

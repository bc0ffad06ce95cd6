package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

const defaultBatchSize = 40

// RankerDeps wires a scoring backend into the Ranker.
type RankerDeps struct {
	Scorer    ports.Scorer
	BatchSize int
	Logger    *slog.Logger
	Now       func() time.Time
}

// Ranker sends candidates to the scoring service in bounded batches and
// reconciles the verdicts onto the records.
type Ranker struct {
	scorer    ports.Scorer
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

// NewRanker caps the batch size at 40.
func NewRanker(deps RankerDeps) *Ranker {
	size := deps.BatchSize
	if size <= 0 || size > defaultBatchSize {
		size = defaultBatchSize
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Ranker{scorer: deps.Scorer, batchSize: size, logger: deps.Logger, now: now}
}

// Score never invents a score: ids that the service did not answer for, after
// one re-request, are returned in Unscored.
func (r *Ranker) Score(ctx context.Context, candidates []domain.ProductRecord) domain.RankResult {
	var result domain.RankResult
	if len(candidates) == 0 {
		return result
	}

	verdicts := make(map[string]ScoreEntry, len(candidates))
	for start := 0; start < len(candidates); start += r.batchSize {
		end := min(start+r.batchSize, len(candidates))
		batch := candidates[start:end]

		if ctx.Err() != nil {
			r.warn("ranking interrupted", "remaining", len(candidates)-start, "error", ctx.Err())
			break
		}

		entries, issues := r.scoreBatch(ctx, batch)
		result.Issues = append(result.Issues, issues...)
		for _, e := range entries {
			verdicts[e.ID] = e
		}
	}

	scoredAt := r.now()
	for _, c := range candidates {
		e, ok := verdicts[c.ID]
		if !ok {
			result.Unscored = append(result.Unscored, c.ID)
			continue
		}
		result.Scored = append(result.Scored, domain.ScoredRecord{
			ProductRecord: c,
			ViralScore:    e.Score,
			Rationale:     e.Rationale,
			ScoredAt:      scoredAt,
		})
	}

	r.info("ranking done", "candidates", len(candidates), "scored", len(result.Scored), "unscored", len(result.Unscored), "issues", len(result.Issues))
	return result
}

// scoreBatch asks once, retries a malformed reply once in strict mode, then
// re-requests any ids the accepted reply left out.
func (r *Ranker) scoreBatch(ctx context.Context, batch []domain.ProductRecord) ([]ScoreEntry, []domain.ScoreIssue) {
	ids := make(map[string]struct{}, len(batch))
	for _, c := range batch {
		ids[c.ID] = struct{}{}
	}

	parsed, err := r.request(ctx, batch, ids, false)
	if err != nil {
		r.warn("scoring batch malformed, retrying strictly", "size", len(batch), "error", err)
		parsed, err = r.request(ctx, batch, ids, true)
	}
	if err != nil {
		r.warn("scoring batch dropped", "size", len(batch), "error", err)
		issues := make([]domain.ScoreIssue, 0, len(batch))
		for _, c := range batch {
			issues = append(issues, issue(c.ID, domain.ErrScoringParse, "batch failed twice: %v", err))
		}
		return nil, issues
	}
	r.logIssues(parsed.Issues)

	entries := parsed.Entries
	issues := parsed.Issues
	gaps := missing(batch, entries)
	if len(gaps) == 0 {
		return entries, issues
	}

	r.warn("scoring reply incomplete, re-requesting gaps", "missing", len(gaps))
	gapIDs := make(map[string]struct{}, len(gaps))
	for _, c := range gaps {
		gapIDs[c.ID] = struct{}{}
	}
	retry, err := r.request(ctx, gaps, gapIDs, true)
	if err == nil {
		r.logIssues(retry.Issues)
		entries = append(entries, retry.Entries...)
		issues = append(issues, retry.Issues...)
	}

	for _, c := range missing(gaps, retry.Entries) {
		r.warn("candidate left unscored", "id", c.ID, "name", c.Name)
		issues = append(issues, issue(c.ID, domain.ErrScoringMissing, "no valid score after re-request"))
	}
	return entries, issues
}

func (r *Ranker) request(ctx context.Context, batch []domain.ProductRecord, ids map[string]struct{}, strict bool) (ParsedScores, error) {
	if r.scorer == nil {
		return ParsedScores{}, errors.New("no scorer configured")
	}
	items := make([]domain.ScoreItem, 0, len(batch))
	for _, c := range batch {
		items = append(items, domain.ScoreItemFrom(c))
	}
	raw, err := r.scorer.Score(ctx, domain.ScoreRequest{Items: items, Strict: strict})
	if err != nil {
		return ParsedScores{}, err
	}
	return ParseScores(raw, ids)
}

func (r *Ranker) logIssues(issues []domain.ScoreIssue) {
	for _, is := range issues {
		r.warn("scoring entry dropped", "id", is.ID, "detail", is.Detail)
	}
}

func missing(batch []domain.ProductRecord, entries []ScoreEntry) []domain.ProductRecord {
	got := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		got[e.ID] = struct{}{}
	}
	var out []domain.ProductRecord
	for _, c := range batch {
		if _, ok := got[c.ID]; !ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *Ranker) info(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Info(msg, args...)
	}
}

func (r *Ranker) warn(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, args...)
	}
}

package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ProductScout/internal/config"
	"ProductScout/internal/domain"
	"ProductScout/internal/fetch"
	"ProductScout/internal/ports"
	"ProductScout/internal/source"
)

// CatalogDeps wires the fetch layer and sources into a CatalogBuilder.
type CatalogDeps struct {
	Fetcher          fetch.Fetcher
	Policy           fetch.RetryPolicy
	Sources          []source.Source
	Categories       []config.CategoryConfig
	Concurrency      int
	Timeout          time.Duration
	RunDeadline      time.Duration
	TermsPerCategory int
	Logger           *slog.Logger
}

// CatalogBuilder fans out category x term x source fetches and merges the
// parsed listings into one candidate list.
type CatalogBuilder struct {
	fetcher          fetch.Fetcher
	policy           fetch.RetryPolicy
	sources          []source.Source
	categories       []config.CategoryConfig
	concurrency      int
	timeout          time.Duration
	runDeadline      time.Duration
	termsPerCategory int
	logger           *slog.Logger
}

var _ ports.ProductSource = (*CatalogBuilder)(nil)

// NewCatalogBuilder applies defaults: one fetch at a time, no run deadline.
func NewCatalogBuilder(deps CatalogDeps) *CatalogBuilder {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &CatalogBuilder{
		fetcher:          deps.Fetcher,
		policy:           deps.Policy,
		sources:          deps.Sources,
		categories:       deps.Categories,
		concurrency:      concurrency,
		timeout:          deps.Timeout,
		runDeadline:      deps.RunDeadline,
		termsPerCategory: deps.TermsPerCategory,
		logger:           deps.Logger,
	}
}

type task struct {
	category string
	term     string
	url      string
	src      source.Source
}

type taskResult struct {
	raw      domain.RawFetchResult
	records  []domain.ProductRecord
	warnings []domain.ParseWarning
	aborted  bool
}

// Build runs every planned fetch, waits for all of them, then deduplicates.
// Fetch and parse failures are counted, never returned; the error result is
// reserved for misconfiguration and cancellation of ctx itself.
func (b *CatalogBuilder) Build(ctx context.Context, runDate time.Time) (domain.Catalog, error) {
	if b.fetcher == nil || len(b.sources) == 0 {
		return domain.Catalog{}, fmt.Errorf("catalog builder is not configured")
	}

	tasks := b.plan(runDate)
	b.debug("catalog plan", "tasks", len(tasks), "categories", len(b.categories), "sources", len(b.sources))

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if b.runDeadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, b.runDeadline)
	}
	defer cancel()

	results := make([]taskResult, len(tasks))
	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i, t := range tasks {
		if runCtx.Err() != nil {
			results[i].aborted = true
			continue
		}
		g.Go(func() error {
			results[i] = b.run(runCtx, t, i)
			return nil
		})
	}
	_ = g.Wait()

	summary := domain.NewFailureSummary()
	var collected []domain.ProductRecord
	for _, res := range results {
		if res.aborted {
			summary.Aborted++
			continue
		}
		summary.Record(res.raw)
		summary.ParseWarnings = append(summary.ParseWarnings, res.warnings...)
		collected = append(collected, res.records...)
	}

	catalog := domain.Catalog{
		Candidates: Dedup(collected),
		Failures:   summary,
		Status:     domain.Success(),
	}

	if err := ctx.Err(); err != nil {
		return catalog, fmt.Errorf("build catalog: %w", err)
	}

	switch {
	case summary.Aborted > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded):
		catalog.Failures.DeadlineExceeded = true
		catalog.Status = domain.PartialFailure(fmt.Sprintf("%v: %d of %d fetches aborted", domain.ErrPartialRunDeadline, summary.Aborted, len(tasks)))
	case summary.AllFailed():
		catalog.Candidates = nil
		catalog.Status = domain.TotalScrapeFailure()
	}

	b.info("catalog built",
		"status", catalog.Status.String(),
		"candidates", len(catalog.Candidates),
		"raw_records", len(collected),
		"fetches", summary.TotalFetches,
		"ok", summary.ByStatus[domain.FetchOK],
		"blocked", summary.ByStatus[domain.FetchBlocked],
		"network_errors", summary.ByStatus[domain.FetchNetworkError],
		"timeouts", summary.ByStatus[domain.FetchTimeout],
		"aborted", summary.Aborted,
		"parse_warnings", len(summary.ParseWarnings),
	)
	return catalog, nil
}

func (b *CatalogBuilder) plan(runDate time.Time) []task {
	var tasks []task
	for _, cat := range b.categories {
		for _, term := range selectTerms(cat.Terms, b.termsPerCategory, runDate) {
			for _, src := range b.sources {
				u, err := src.SearchURL(term)
				if err != nil {
					b.warn("skip query", "source", src.Name(), "category", cat.Name, "term", term, "error", err)
					continue
				}
				tasks = append(tasks, task{category: cat.Name, term: term, url: u, src: src})
			}
		}
	}
	return tasks
}

func (b *CatalogBuilder) run(ctx context.Context, t task, index int) taskResult {
	req := fetch.Request{
		URL:       t.url,
		SourceID:  t.src.Name(),
		QueryTerm: t.term,
		Category:  t.category,
		Timeout:   b.timeout,
	}
	profiles := b.fetcher.Profiles()
	if profiles <= 0 {
		profiles = 1
	}

	raw := fetch.Do(ctx, b.fetcher, b.policy, req, index%profiles)
	if raw.Status != domain.FetchOK && ctx.Err() != nil {
		return taskResult{raw: raw, aborted: true}
	}
	if raw.Status != domain.FetchOK {
		b.warn("fetch failed",
			"source", t.src.Name(), "category", t.category, "term", t.term,
			"status", raw.Status, "attempts", raw.Attempts, "error", raw.Err)
	}

	records, warnings := t.src.Parse(raw)
	for _, w := range warnings {
		b.warn("parse warning", "source", w.SourceID, "category", w.Category, "term", w.QueryTerm, "kind", w.Kind, "message", w.Message)
	}
	b.debug("query done", "source", t.src.Name(), "term", t.term, "records", len(records))
	return taskResult{raw: raw, records: records, warnings: warnings}
}

// Dedup collapses records sharing an id onto the first occurrence. Every
// repeat lowers firstSeenAt to the earliest sighting. A repeat from the same
// category also contributes its query terms and any fields the first
// occurrence lacked. Dedup(Dedup(x)) == Dedup(x).
func Dedup(records []domain.ProductRecord) []domain.ProductRecord {
	out := make([]domain.ProductRecord, 0, len(records))
	index := make(map[string]int, len(records))
	for _, rec := range records {
		i, ok := index[rec.ID]
		if !ok {
			rec.QueryTerms = mergeTerms(nil, rec.QueryTerms)
			index[rec.ID] = len(out)
			out = append(out, rec)
			continue
		}

		kept := &out[i]
		if !rec.FirstSeenAt.IsZero() && (kept.FirstSeenAt.IsZero() || rec.FirstSeenAt.Before(kept.FirstSeenAt)) {
			kept.FirstSeenAt = rec.FirstSeenAt
		}
		if rec.Category != kept.Category {
			continue
		}
		kept.QueryTerms = mergeTerms(kept.QueryTerms, rec.QueryTerms)
		fillUnknown(&kept.PriceRange, rec.PriceRange)
		fillUnknown(&kept.MOQ, rec.MOQ)
		fillUnknown(&kept.Supplier, rec.Supplier)
		if kept.ImageURL == "" {
			kept.ImageURL = rec.ImageURL
		}
		if kept.OrdersOrReviews == "" {
			kept.OrdersOrReviews = rec.OrdersOrReviews
		}
	}
	return out
}

func mergeTerms(base, extra []string) []string {
	out := append([]string(nil), base...)
	for _, term := range extra {
		found := false
		for _, existing := range out {
			if existing == term {
				found = true
				break
			}
		}
		if !found {
			out = append(out, term)
		}
	}
	return out
}

func fillUnknown(dst *string, candidate string) {
	if (*dst == "" || *dst == domain.Unknown) && candidate != "" && candidate != domain.Unknown {
		*dst = candidate
	}
}

// selectTerms picks n consecutive terms starting at an offset that moves
// with the run date, so successive days cover the whole list.
func selectTerms(terms []string, n int, runDate time.Time) []string {
	if n <= 0 || n >= len(terms) {
		return terms
	}
	offset := ((runDate.YearDay() - 1) * n) % len(terms)
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, terms[(offset+i)%len(terms)])
	}
	return out
}

func (b *CatalogBuilder) debug(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Debug(msg, args...)
	}
}

func (b *CatalogBuilder) info(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *CatalogBuilder) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

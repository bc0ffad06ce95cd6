package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ProductScout/internal/domain"
)

type fakeSource struct {
	catalog domain.Catalog
	calls   int
	day     time.Time
}

func (f *fakeSource) Build(_ context.Context, runDate time.Time) (domain.Catalog, error) {
	f.calls++
	f.day = runDate
	return f.catalog, nil
}

type memStore struct {
	mu      sync.Mutex
	records map[string]domain.RunRecord
	appends int
}

func newMemStore() *memStore { return &memStore{records: map[string]domain.RunRecord{}} }

func (m *memStore) Append(_ context.Context, rec domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.RunDate]; ok {
		return domain.ErrRunRecorded
	}
	m.appends++
	m.records[rec.RunDate] = rec
	return nil
}

func (m *memStore) Load(_ context.Context, runDate string) (domain.RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[runDate]
	if !ok {
		return domain.RunRecord{}, domain.ErrRunNotFound
	}
	return rec, nil
}

type recordingNotifier struct {
	outcomes []domain.RunOutcome
	err      error
}

func (r *recordingNotifier) Deliver(_ context.Context, outcome domain.RunOutcome) error {
	r.outcomes = append(r.outcomes, outcome)
	return r.err
}

type harness struct {
	source   *fakeSource
	scorer   *pinnedScorer
	store    *memStore
	notifier *recordingNotifier
	pipeline *Pipeline
}

func newHarness(catalog domain.Catalog) *harness {
	h := &harness{
		source:   &fakeSource{catalog: catalog},
		scorer:   &pinnedScorer{scores: pinned(catalog.Candidates)},
		store:    newMemStore(),
		notifier: &recordingNotifier{},
	}
	ids := 0
	h.pipeline = NewPipeline(PipelineDeps{
		Source:   h.source,
		Ranker:   NewRanker(RankerDeps{Scorer: h.scorer}),
		Store:    h.store,
		Notifier: h.notifier,
		TopN:     10,
		NewRunID: func() string { ids++; return fmt.Sprintf("run-%d", ids) },
	})
	return h
}

func okCatalog(n int) domain.Catalog {
	failures := domain.NewFailureSummary()
	failures.Record(domain.RawFetchResult{Status: domain.FetchOK})
	return domain.Catalog{Candidates: candidates(n), Failures: failures, Status: domain.Success()}
}

func TestPipelineFullRun(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(15))
	outcome, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Status.Kind != domain.StatusSuccess {
		t.Fatalf("unexpected status %s", outcome.Status)
	}
	if outcome.Digest == nil || len(outcome.Digest.TopN) != 10 || outcome.Digest.TotalCandidates != 15 {
		t.Fatalf("unexpected digest %+v", outcome.Digest)
	}
	if h.source.day.Format(domain.RunDateLayout) != "2026-07-04" {
		t.Fatalf("source got wrong day %s", h.source.day)
	}
	if h.store.appends != 1 || len(h.notifier.outcomes) != 1 {
		t.Fatalf("expected persist and deliver once, got %d/%d", h.store.appends, len(h.notifier.outcomes))
	}
	stored := h.store.records["2026-07-04"]
	if stored.RunID != "run-1" || len(stored.Candidates) != 15 || len(stored.Scored) != 15 {
		t.Fatalf("unexpected stored record %+v", stored)
	}
}

func TestPipelineTotalScrapeFailureSkipsRanking(t *testing.T) {
	t.Parallel()

	failures := domain.NewFailureSummary()
	failures.Record(domain.RawFetchResult{Status: domain.FetchBlocked})
	h := newHarness(domain.Catalog{Failures: failures, Status: domain.TotalScrapeFailure()})

	outcome, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Status.Kind != domain.StatusTotalScrapeFailure {
		t.Fatalf("unexpected status %s", outcome.Status)
	}
	if !errors.Is(outcome.Status.Err(), domain.ErrTotalScrapeFailure) {
		t.Fatalf("status should map to ErrTotalScrapeFailure")
	}
	if len(h.scorer.requests) != 0 {
		t.Fatalf("scorer must not be called, got %d calls", len(h.scorer.requests))
	}
	if outcome.Digest != nil {
		t.Fatalf("no digest expected")
	}
	if h.store.appends != 1 || len(h.notifier.outcomes) != 1 {
		t.Fatalf("failure should still be persisted and alerted")
	}
}

func TestPipelineDryRunPersistsWithoutDelivery(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(3))
	if _, err := h.pipeline.Run(context.Background(), domain.ModeDryRun, "2026-07-04"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if h.store.appends != 1 || len(h.notifier.outcomes) != 0 {
		t.Fatalf("dry run: appends=%d deliveries=%d", h.store.appends, len(h.notifier.outcomes))
	}
}

func TestPipelineScrapeOnly(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(3))
	outcome, err := h.pipeline.Run(context.Background(), domain.ModeScrapeOnly, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(h.scorer.requests) != 0 || outcome.Digest != nil {
		t.Fatalf("scrape-only must skip ranking")
	}
	if h.store.appends != 1 || len(h.notifier.outcomes) != 0 {
		t.Fatalf("scrape-only: appends=%d deliveries=%d", h.store.appends, len(h.notifier.outcomes))
	}
}

func TestPipelineRankOnlyReusesStoredCandidates(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(4))
	if _, err := h.pipeline.Run(context.Background(), domain.ModeScrapeOnly, "2026-07-04"); err != nil {
		t.Fatalf("scrape-only: %v", err)
	}

	outcome, err := h.pipeline.Run(context.Background(), domain.ModeRankOnly, "2026-07-04")
	if err != nil {
		t.Fatalf("rank-only: %v", err)
	}
	if h.source.calls != 1 {
		t.Fatalf("rank-only must not scrape, source called %d times", h.source.calls)
	}
	if outcome.Digest == nil || len(outcome.Digest.TopN) != 4 {
		t.Fatalf("unexpected digest %+v", outcome.Digest)
	}
	if h.store.appends != 1 || len(h.notifier.outcomes) != 0 {
		t.Fatalf("rank-only must neither persist nor deliver")
	}

	if _, err := h.pipeline.Run(context.Background(), domain.ModeRankOnly, "2026-07-05"); !errors.Is(err, domain.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound for missing date, got %v", err)
	}
}

func TestPipelineUnscorableCandidatesArePartial(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(3))
	h.scorer.reply = func(int, domain.ScoreRequest) (string, error) { return "", errors.New("service down") }

	outcome, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Status.Kind != domain.StatusPartialFailure || outcome.Status.Reason != reasonUnscorable {
		t.Fatalf("unexpected status %s", outcome.Status)
	}
	if len(outcome.Record.Unscored) != 3 {
		t.Fatalf("expected all unscored, got %v", outcome.Record.Unscored)
	}
}

func TestPipelineDigestCountsEveryCandidate(t *testing.T) {
	t.Parallel()

	catalog := okCatalog(6)
	catalog.Candidates[4].Category = "lamps"
	catalog.Candidates[5].Category = "lamps"
	h := newHarness(catalog)
	delete(h.scorer.scores, catalog.Candidates[1].ID)
	delete(h.scorer.scores, catalog.Candidates[5].ID)

	outcome, err := h.pipeline.Run(context.Background(), domain.ModeDryRun, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	d := outcome.Digest
	if d == nil || d.TotalCandidates != 6 || d.Scored != 4 || len(outcome.Record.Unscored) != 2 {
		t.Fatalf("unexpected digest %+v", d)
	}
	total := 0
	for _, n := range d.PerCategoryCounts {
		total += n
	}
	if total != d.TotalCandidates || d.PerCategoryCounts["gadgets"] != 4 || d.PerCategoryCounts["lamps"] != 2 {
		t.Fatalf("category counts %v disagree with %d candidates", d.PerCategoryCounts, d.TotalCandidates)
	}
}

func TestPipelineRecordsSessionLabel(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(2))
	h.pipeline.label = "Morning"

	outcome, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Record.Label != "Morning" || h.store.records["2026-07-04"].Label != "Morning" {
		t.Fatalf("label not carried: %q", outcome.Record.Label)
	}
	if len(h.notifier.outcomes) != 1 || h.notifier.outcomes[0].Record.Label != "Morning" {
		t.Fatalf("notifier did not see the label")
	}
}

func TestPipelineKeepsDeadlineReason(t *testing.T) {
	t.Parallel()

	catalog := okCatalog(2)
	catalog.Status = domain.PartialFailure("run deadline exceeded")
	h := newHarness(catalog)

	outcome, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if outcome.Status.Kind != domain.StatusPartialFailure || outcome.Status.Reason != "run deadline exceeded" {
		t.Fatalf("unexpected status %s", outcome.Status)
	}
	if outcome.Digest == nil || len(outcome.Digest.TopN) != 2 {
		t.Fatalf("partial run should still rank what was collected")
	}
}

func TestPipelineRefusesSecondRunForDate(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(2))
	if _, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := h.pipeline.Run(context.Background(), domain.ModeDryRun, "2026-07-04"); !errors.Is(err, domain.ErrRunRecorded) {
		t.Fatalf("expected ErrRunRecorded, got %v", err)
	}
	if h.source.calls != 1 {
		t.Fatalf("second run must stop before scraping")
	}
}

func TestPipelineSurfacesDeliveryError(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(2))
	h.notifier.err = errors.New("telegram down")
	outcome, err := h.pipeline.Run(context.Background(), domain.ModeFull, "2026-07-04")
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	if outcome.Record.RunDate != "2026-07-04" || h.store.appends != 1 {
		t.Fatalf("record should be persisted before delivery")
	}
}

func TestPipelineRejectsBadDate(t *testing.T) {
	t.Parallel()

	h := newHarness(okCatalog(1))
	if _, err := h.pipeline.Run(context.Background(), domain.ModeFull, "07/04/2026"); err == nil {
		t.Fatalf("expected date error")
	}
}

func TestScrapeStatusDropsStaleRankingReason(t *testing.T) {
	t.Parallel()

	deadline := domain.NewFailureSummary()
	deadline.DeadlineExceeded = true

	cases := []struct {
		name   string
		stored domain.RunRecord
		want   domain.RunStatus
	}{
		{"success", domain.RunRecord{Status: domain.Success()}, domain.Success()},
		{"unscorable only", domain.RunRecord{Status: domain.PartialFailure(reasonUnscorable)}, domain.Success()},
		{"deadline and unscorable", domain.RunRecord{
			Status:   domain.PartialFailure("run deadline exceeded: 2 of 9 fetches aborted; " + reasonUnscorable),
			Failures: deadline,
		}, domain.PartialFailure("run deadline exceeded: 2 of 9 fetches aborted")},
		{"total failure", domain.RunRecord{Status: domain.TotalScrapeFailure()}, domain.TotalScrapeFailure()},
	}
	for _, tc := range cases {
		if got := scrapeStatus(tc.stored); got != tc.want {
			t.Fatalf("%s: want %s got %s", tc.name, tc.want, got)
		}
	}
}

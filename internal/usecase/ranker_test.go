package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"ProductScout/internal/domain"
)

// pinnedScorer answers every id with a fixed score, whatever batch it arrives in.
type pinnedScorer struct {
	mu       sync.Mutex
	scores   map[string]int
	requests []domain.ScoreRequest
	reply    func(call int, req domain.ScoreRequest) (string, error)
}

func (s *pinnedScorer) Score(_ context.Context, req domain.ScoreRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	call := len(s.requests)
	s.mu.Unlock()

	if s.reply != nil {
		return s.reply(call, req)
	}
	return s.answer(req), nil
}

func (s *pinnedScorer) answer(req domain.ScoreRequest) string {
	type entry struct {
		ID        string `json:"id"`
		Score     int    `json:"score"`
		Rationale string `json:"rationale"`
	}
	out := make([]entry, 0, len(req.Items))
	for _, item := range req.Items {
		if score, ok := s.scores[item.ID]; ok {
			out = append(out, entry{ID: item.ID, Score: score, Rationale: "pinned " + item.ID})
		}
	}
	body, _ := json.Marshal(out)
	return string(body)
}

func candidates(n int) []domain.ProductRecord {
	out := make([]domain.ProductRecord, n)
	for i := range out {
		out[i] = domain.ProductRecord{
			ID:       fmt.Sprintf("p%02d", i),
			Name:     fmt.Sprintf("product %d", i),
			Category: "gadgets",
		}
	}
	return out
}

func pinned(recs []domain.ProductRecord) map[string]int {
	scores := map[string]int{}
	for i, r := range recs {
		scores[r.ID] = 1 + (i*37)%100
	}
	return scores
}

func TestRankerScoresDoNotDependOnBatchComposition(t *testing.T) {
	t.Parallel()

	recs := candidates(50)
	scores := pinned(recs)

	solo := map[string]int{}
	for _, rec := range recs {
		r := NewRanker(RankerDeps{Scorer: &pinnedScorer{scores: scores}})
		res := r.Score(context.Background(), []domain.ProductRecord{rec})
		if len(res.Scored) != 1 {
			t.Fatalf("expected single score for %s, got %+v", rec.ID, res)
		}
		solo[rec.ID] = res.Scored[0].ViralScore
	}

	for _, size := range []int{7, 40, 100} {
		scorer := &pinnedScorer{scores: scores}
		res := NewRanker(RankerDeps{Scorer: scorer, BatchSize: size}).Score(context.Background(), recs)
		if len(res.Scored) != len(recs) || len(res.Unscored) != 0 {
			t.Fatalf("batch %d: scored %d unscored %v", size, len(res.Scored), res.Unscored)
		}
		for _, s := range res.Scored {
			if s.ViralScore != solo[s.ID] {
				t.Fatalf("batch %d: %s scored %d, alone %d", size, s.ID, s.ViralScore, solo[s.ID])
			}
		}
		for _, req := range scorer.requests {
			if len(req.Items) > 40 {
				t.Fatalf("batch %d: request carried %d items", size, len(req.Items))
			}
		}
	}
}

func TestRankerDropsOutOfRangeWithoutClamping(t *testing.T) {
	t.Parallel()

	recs := candidates(3)
	scorer := &pinnedScorer{reply: func(call int, req domain.ScoreRequest) (string, error) {
		if call == 1 {
			return `[{"id":"p00","score":150},{"id":"p01","score":80},{"id":"p02","score":0}]`, nil
		}
		// the re-request for the gaps keeps returning bad values
		return `[{"id":"p00","score":101},{"id":"p02","score":-3}]`, nil
	}}

	res := NewRanker(RankerDeps{Scorer: scorer}).Score(context.Background(), recs)
	if len(res.Scored) != 1 || res.Scored[0].ID != "p01" || res.Scored[0].ViralScore != 80 {
		t.Fatalf("unexpected scored: %+v", res.Scored)
	}
	if len(res.Unscored) != 2 || res.Unscored[0] != "p00" || res.Unscored[1] != "p02" {
		t.Fatalf("unexpected unscored: %v", res.Unscored)
	}
	if len(scorer.requests) != 2 {
		t.Fatalf("expected one re-request, got %d calls", len(scorer.requests))
	}
	if got := len(scorer.requests[1].Items); got != 2 {
		t.Fatalf("re-request should carry only the gaps, got %d items", got)
	}

	var outOfRange, missing int
	for _, is := range res.Issues {
		switch {
		case errors.Is(is.Err, domain.ErrScoringOutOfRange):
			outOfRange++
		case errors.Is(is.Err, domain.ErrScoringMissing):
			missing++
		}
	}
	if outOfRange != 4 || missing != 2 {
		t.Fatalf("issues out-of-range=%d missing=%d: %+v", outOfRange, missing, res.Issues)
	}
}

func TestRankerRetriesMalformedReplyStrictly(t *testing.T) {
	t.Parallel()

	recs := candidates(2)
	scorer := &pinnedScorer{scores: pinned(recs)}
	scorer.reply = func(call int, req domain.ScoreRequest) (string, error) {
		if call == 1 {
			return "Sure! Here are the scores you asked for.", nil
		}
		return scorer.answer(req), nil
	}

	res := NewRanker(RankerDeps{Scorer: scorer}).Score(context.Background(), recs)
	if len(res.Scored) != 2 {
		t.Fatalf("expected recovery after strict retry, got %+v", res)
	}
	if scorer.requests[0].Strict || !scorer.requests[1].Strict {
		t.Fatalf("expected normal then strict request, got %v then %v", scorer.requests[0].Strict, scorer.requests[1].Strict)
	}
}

func TestRankerMarksBatchUnscoredAfterTwoFailures(t *testing.T) {
	t.Parallel()

	recs := candidates(45)
	scores := pinned(recs)
	scorer := &pinnedScorer{scores: scores}
	scorer.reply = func(call int, req domain.ScoreRequest) (string, error) {
		for _, item := range req.Items {
			if item.ID == "p00" {
				return "", errors.New("upstream 502")
			}
		}
		return scorer.answer(req), nil
	}

	res := NewRanker(RankerDeps{Scorer: scorer, BatchSize: 40}).Score(context.Background(), recs)
	if len(res.Unscored) != 40 {
		t.Fatalf("expected first batch unscored, got %d", len(res.Unscored))
	}
	if len(res.Scored) != 5 {
		t.Fatalf("second batch should still be scored, got %d", len(res.Scored))
	}
	if len(scorer.requests) != 3 {
		t.Fatalf("expected 2 attempts for batch one and 1 for batch two, got %d", len(scorer.requests))
	}
}

func TestRankerStampsScoredAt(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	recs := candidates(1)
	res := NewRanker(RankerDeps{
		Scorer: &pinnedScorer{scores: pinned(recs)},
		Now:    func() time.Time { return at },
	}).Score(context.Background(), recs)
	if len(res.Scored) != 1 || !res.Scored[0].ScoredAt.Equal(at) {
		t.Fatalf("unexpected scored record: %+v", res.Scored)
	}
	if res.Scored[0].Rationale != "pinned p00" {
		t.Fatalf("rationale not carried: %q", res.Scored[0].Rationale)
	}
}

func TestRankerEmptyInput(t *testing.T) {
	t.Parallel()

	scorer := &pinnedScorer{}
	res := NewRanker(RankerDeps{Scorer: scorer}).Score(context.Background(), nil)
	if len(res.Scored) != 0 || len(scorer.requests) != 0 {
		t.Fatalf("expected no calls for empty input, got %+v", res)
	}
}

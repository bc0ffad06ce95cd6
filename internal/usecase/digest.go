package usecase

import (
	"sort"
	"time"

	"ProductScout/internal/domain"
)

// SelectDigest orders scored candidates by viral score and keeps the first
// topN. Equal scores are spread across categories round-robin, each category
// yielding its earliest-seen product first. A non-positive topN selects
// nothing; fewer candidates than topN are all returned. TotalCandidates and
// PerCategoryCounts describe scored alone until the caller widens them with
// CountCandidates.
func SelectDigest(runDate string, scored []domain.ScoredRecord, topN int) domain.Digest {
	digest := domain.Digest{
		RunDate:           runDate,
		TotalCandidates:   len(scored),
		Scored:            len(scored),
		PerCategoryCounts: map[string]int{},
	}
	for _, rec := range scored {
		digest.PerCategoryCounts[rec.Category]++
	}
	if topN <= 0 || len(scored) == 0 {
		digest.TopN = []domain.ScoredRecord{}
		return digest
	}

	ordered := make([]domain.ScoredRecord, len(scored))
	copy(ordered, scored)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ViralScore > ordered[j].ViralScore
	})

	out := make([]domain.ScoredRecord, 0, min(topN, len(ordered)))
	for start := 0; start < len(ordered) && len(out) < topN; {
		end := start
		for end < len(ordered) && ordered[end].ViralScore == ordered[start].ViralScore {
			end++
		}
		for _, rec := range roundRobin(ordered[start:end]) {
			if len(out) == topN {
				break
			}
			out = append(out, rec)
		}
		start = end
	}
	digest.TopN = out
	return digest
}

// CountCandidates sets the digest totals over every candidate of the run,
// scored or not.
func CountCandidates(digest *domain.Digest, candidates []domain.ProductRecord) {
	digest.TotalCandidates = len(candidates)
	digest.PerCategoryCounts = make(map[string]int, len(digest.PerCategoryCounts))
	for _, rec := range candidates {
		digest.PerCategoryCounts[rec.Category]++
	}
}

// roundRobin interleaves one tie group by category. Categories take turns in
// order of their earliest sighting, then by name.
func roundRobin(group []domain.ScoredRecord) []domain.ScoredRecord {
	if len(group) < 2 {
		return group
	}

	buckets := map[string][]domain.ScoredRecord{}
	for _, rec := range group {
		buckets[rec.Category] = append(buckets[rec.Category], rec)
	}

	categories := make([]string, 0, len(buckets))
	earliest := map[string]time.Time{}
	for cat, recs := range buckets {
		sort.Slice(recs, func(i, j int) bool {
			if !recs[i].FirstSeenAt.Equal(recs[j].FirstSeenAt) {
				return recs[i].FirstSeenAt.Before(recs[j].FirstSeenAt)
			}
			return recs[i].ID < recs[j].ID
		})
		categories = append(categories, cat)
		earliest[cat] = recs[0].FirstSeenAt
	}
	sort.Slice(categories, func(i, j int) bool {
		a, b := earliest[categories[i]], earliest[categories[j]]
		if !a.Equal(b) {
			return a.Before(b)
		}
		return categories[i] < categories[j]
	})

	out := make([]domain.ScoredRecord, 0, len(group))
	for round := 0; len(out) < len(group); round++ {
		for _, cat := range categories {
			if round < len(buckets[cat]) {
				out = append(out, buckets[cat][round])
			}
		}
	}
	return out
}

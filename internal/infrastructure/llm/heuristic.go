package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// HeuristicScorer rates listings by how much evidence they carry. It needs no
// credentials and is meant for dry runs and offline setups.
type HeuristicScorer struct{}

var _ ports.Scorer = HeuristicScorer{}

type heuristicEntry struct {
	ID        string `json:"id"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
}

// Score answers in the same JSON shape a model would.
func (HeuristicScorer) Score(ctx context.Context, req domain.ScoreRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entries := make([]heuristicEntry, 0, len(req.Items))
	for _, item := range req.Items {
		entries = append(entries, heuristicEntry{
			ID:        item.ID,
			Score:     HeuristicScore(item),
			Rationale: "Auto-scored from listing completeness",
		})
	}
	body, err := json.Marshal(map[string]any{"scores": entries})
	if err != nil {
		return "", fmt.Errorf("marshal heuristic scores: %w", err)
	}
	return string(body), nil
}

// HeuristicScore starts at 50 and rewards known price, demand signal, image,
// MOQ and supplier. The result is always within 50..100.
func HeuristicScore(item domain.ScoreItem) int {
	score := 50
	if known(item.Price) {
		score += 15
	}
	if known(item.Orders) {
		score += 20
	}
	if item.HasImage {
		score += 5
	}
	if known(item.MOQ) {
		score += 5
	}
	if known(item.Supplier) {
		score += 5
	}
	return score
}

func known(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != domain.Unknown
}

package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"ProductScout/internal/domain"
)

// ScoreEntry is one accepted verdict from a scoring response.
type ScoreEntry struct {
	ID        string
	Score     int
	Rationale string
}

// ParsedScores holds the accepted entries plus the ones that were dropped.
type ParsedScores struct {
	Entries []ScoreEntry
	Issues  []domain.ScoreIssue
}

// list keys models wrap their arrays in, tried before any other array field
var scoreListKeys = []string{"scores", "products", "results", "items", "top_products", "data"}

// ParseScores reads a scoring response against the ids submitted in the
// batch. A reply that is not a JSON array of objects (bare or wrapped in an
// object) fails as a whole with ErrScoringParse; a bad entry is dropped and
// reported without affecting the others.
func ParseScores(raw string, batch map[string]struct{}) (ParsedScores, error) {
	list, err := scoreList(raw)
	if err != nil {
		return ParsedScores{}, err
	}

	var out ParsedScores
	seen := map[string]struct{}{}
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			out.Issues = append(out.Issues, issue("", domain.ErrScoringParse, "entry %d is not an object", i))
			continue
		}

		id := idOf(obj["id"])
		if id == "" {
			out.Issues = append(out.Issues, issue("", domain.ErrScoringParse, "entry %d has no id", i))
			continue
		}
		if _, ok := batch[id]; !ok {
			out.Issues = append(out.Issues, issue(id, domain.ErrScoringUnknownID, "id not in submitted batch"))
			continue
		}
		if _, dup := seen[id]; dup {
			out.Issues = append(out.Issues, issue(id, domain.ErrScoringParse, "duplicate entry ignored"))
			continue
		}

		score, ok := intScore(obj["score"])
		if !ok || !domain.ValidScore(score) {
			out.Issues = append(out.Issues, issue(id, domain.ErrScoringOutOfRange, "score %v", obj["score"]))
			continue
		}

		seen[id] = struct{}{}
		out.Entries = append(out.Entries, ScoreEntry{
			ID:        id,
			Score:     score,
			Rationale: rationaleOf(obj),
		})
	}
	return out, nil
}

func scoreList(raw string) ([]any, error) {
	body := stripFences(raw)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", domain.ErrScoringParse)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringParse, err)
	}

	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range scoreListKeys {
			if list, ok := v[key].([]any); ok {
				return list, nil
			}
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if list, ok := v[key].([]any); ok {
				return list, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no list of scores in response", domain.ErrScoringParse)
}

func stripFences(raw string) string {
	body := strings.TrimSpace(raw)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	} else {
		body = strings.TrimPrefix(body, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(body), "```"))
}

func idOf(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	default:
		return ""
	}
}

// intScore accepts integers, integral floats and numeric strings.
func intScore(v any) (int, bool) {
	var text string
	switch s := v.(type) {
	case json.Number:
		text = s.String()
	case string:
		text = strings.TrimSpace(s)
	default:
		return 0, false
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(f), true
}

func rationaleOf(obj map[string]any) string {
	for _, key := range []string{"rationale", "reason"} {
		if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func issue(id string, err error, format string, args ...any) domain.ScoreIssue {
	return domain.ScoreIssue{ID: id, Err: err, Detail: fmt.Sprintf("%v: %s", err, fmt.Sprintf(format, args...))}
}

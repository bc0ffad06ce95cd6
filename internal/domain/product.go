package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Unknown marks an optional listing field the marketplace page did not expose.
const Unknown = "unknown"

// ProductRecord is a normalized listing extracted from one marketplace search page.
type ProductRecord struct {
	ID              string    `json:"id"`
	Category        string    `json:"category"`
	QueryTerms      []string  `json:"queryTerms"`
	Name            string    `json:"name"`
	PriceRange      string    `json:"priceRange"`
	MOQ             string    `json:"moq"`
	Supplier        string    `json:"supplier"`
	Link            string    `json:"link"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	OrdersOrReviews string    `json:"ordersOrReviews,omitempty"`
	SourceID        string    `json:"sourceId"`
	FirstSeenAt     time.Time `json:"firstSeenAt"`
}

// ScoredRecord attaches the scoring service verdict to a candidate.
type ScoredRecord struct {
	ProductRecord
	ViralScore int       `json:"viralScore"`
	Rationale  string    `json:"rationale"`
	ScoredAt   time.Time `json:"scoredAt"`
}

// Digest is the ordered top-N list produced for one run.
type Digest struct {
	RunDate           string         `json:"runDate"`
	TopN              []ScoredRecord `json:"topN"`
	TotalCandidates   int            `json:"totalCandidates"`
	Scored            int            `json:"scored"`
	PerCategoryCounts map[string]int `json:"perCategoryCounts"`
}

// MinScore and MaxScore bound every accepted viral score.
const (
	MinScore = 1
	MaxScore = 100
)

// ValidScore reports whether v may be attached to a record.
func ValidScore(v int) bool {
	return v >= MinScore && v <= MaxScore
}

// ProductID derives the within-run identity of a listing from its source,
// supplier link and name. Query strings and fragments are ignored so that
// tracking parameters do not split one listing into two.
func ProductID(sourceID, link, name string) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(sourceID))))
	h.Write([]byte{0})
	h.Write([]byte(canonicalLink(link)))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(strings.Join(strings.Fields(name), " "))))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func canonicalLink(link string) string {
	link = strings.TrimSpace(link)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	link = strings.TrimPrefix(link, "https://")
	link = strings.TrimPrefix(link, "http://")
	return strings.ToLower(strings.TrimSuffix(link, "/"))
}

// OrUnknown substitutes the Unknown sentinel for blank values.
func OrUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return Unknown
	}
	return v
}

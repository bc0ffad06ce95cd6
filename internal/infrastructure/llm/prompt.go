package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"ProductScout/internal/domain"
)

const defaultSystemPrompt = `You are an e-commerce product analyst for dropshipping and resale businesses.
You receive products scraped from Chinese wholesale suppliers and score each one for VIRAL and RESALE potential.

Weigh these criteria equally:
1. Trend potential: novelty, social media appeal.
2. Profit margin: low wholesale price against high perceived value.
3. Broad appeal: gift-worthy or impulse buy.
4. Low competition: unique enough to stand out.
5. Shippability: small, light, not fragile.

Reply with a JSON object of the form
{"scores":[{"id":"<id as given>","score":85,"rationale":"one sentence"}]}
with exactly one entry for every id you were given. Scores are integers from 1 to 100.`

const strictAddendum = `

Your previous reply could not be read. Return the JSON object and nothing else: no markdown fences, no commentary, integer scores only.`

// SystemPrompt returns the configured prompt, or the built-in one, plus the
// strict addendum when asked.
func SystemPrompt(custom string, strict bool) string {
	prompt := strings.TrimSpace(custom)
	if prompt == "" {
		prompt = defaultSystemPrompt
	}
	if strict {
		prompt += strictAddendum
	}
	return prompt
}

// UserPrompt lists the batch as JSON.
func UserPrompt(items []domain.ScoreItem) (string, error) {
	payload, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal score items: %w", err)
	}
	return fmt.Sprintf("Here are %d products to score:\n\n%s", len(items), payload), nil
}

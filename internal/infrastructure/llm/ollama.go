package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	ollama "github.com/ollama/ollama/api"

	"ProductScout/internal/config"
	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// OllamaScorer scores batches with a locally served model.
type OllamaScorer struct {
	client       *ollama.Client
	model        string
	systemPrompt string
	temperature  float64
}

var _ ports.Scorer = (*OllamaScorer)(nil)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// NewOllamaScorer connects to cfg.Host. The system prompt is shared with the
// chat-completions scorer.
func NewOllamaScorer(cfg config.OllamaConfig, systemPrompt string, temperature float64) (*OllamaScorer, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama model is required")
	}
	base, err := url.Parse(cfg.Host)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid ollama host %q", cfg.Host)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &OllamaScorer{
		client:       ollama.NewClient(base, &http.Client{Timeout: timeout}),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		temperature:  temperature,
	}, nil
}

// Score asks for a single non-streamed JSON completion.
func (o *OllamaScorer) Score(ctx context.Context, req domain.ScoreRequest) (string, error) {
	prompt, err := UserPrompt(req.Items)
	if err != nil {
		return "", err
	}

	stream := false
	var response strings.Builder
	err = o.client.Generate(ctx, &ollama.GenerateRequest{
		Model:  o.model,
		System: SystemPrompt(o.systemPrompt, req.Strict),
		Prompt: prompt,
		Format: json.RawMessage(`"json"`),
		Stream: &stream,
		Options: map[string]any{
			"temperature": o.temperature,
		},
	}, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}

	return strings.TrimSpace(thinkBlock.ReplaceAllString(response.String(), "")), nil
}

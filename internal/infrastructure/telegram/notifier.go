package telegram

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ProductScout/internal/config"
	"ProductScout/internal/domain"
	"ProductScout/internal/ports"
)

// MessageLimit is the Bot API cap on one message's text.
const MessageLimit = 4096

const maxRationale = 300

// Notifier sends digests and run alerts to a Telegram chat via bot API.
type Notifier struct {
	token    string
	endpoint string
	client   *http.Client
	chatID   int64
	channel  string
	logger   *slog.Logger

	mu  sync.Mutex
	api *tgbotapi.BotAPI
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier resolves the chat without contacting Telegram; the bot
// authenticates (one getMe call) on the first Deliver. ChatID is either a
// numeric id or an @channel username. A non-empty Endpoint replaces
// https://api.telegram.org.
func NewNotifier(cfg config.TelegramConfig, logger *slog.Logger) (*Notifier, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("telegram notifier misconfigured")
	}

	n := &Notifier{
		token:    cfg.BotToken,
		endpoint: tgbotapi.APIEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
	if id, err := strconv.ParseInt(cfg.ChatID, 10, 64); err == nil {
		n.chatID = id
	} else if strings.HasPrefix(cfg.ChatID, "@") {
		n.channel = cfg.ChatID
	} else {
		return nil, fmt.Errorf("telegram chat id %q is neither numeric nor @channel", cfg.ChatID)
	}

	if cfg.Endpoint != "" {
		n.endpoint = strings.TrimRight(cfg.Endpoint, "/") + "/bot%s/%s"
	}
	return n, nil
}

// bot authenticates once; a failed attempt is retried on the next call.
func (n *Notifier) bot() (*tgbotapi.BotAPI, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.api != nil {
		return n.api, nil
	}
	api, err := tgbotapi.NewBotAPIWithClient(n.token, n.endpoint, n.client)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	n.api = api
	return api, nil
}

// Deliver posts the outcome as one or more HTML messages.
func (n *Notifier) Deliver(ctx context.Context, outcome domain.RunOutcome) error {
	api, err := n.bot()
	if err != nil {
		return err
	}
	messages := FormatOutcome(outcome)
	for i, text := range messages {
		if err := ctx.Err(); err != nil {
			return err
		}
		var msg tgbotapi.MessageConfig
		if n.channel != "" {
			msg = tgbotapi.NewMessageToChannel(n.channel, text)
		} else {
			msg = tgbotapi.NewMessage(n.chatID, text)
		}
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		if _, err := api.Send(msg); err != nil {
			return fmt.Errorf("send telegram message %d/%d: %w", i+1, len(messages), err)
		}
	}
	if n.logger != nil {
		n.logger.Info("telegram delivered", "messages", len(messages), "status", outcome.Status.String())
	}
	return nil
}

// FormatOutcome renders a run as Telegram HTML, split so that no message
// exceeds MessageLimit. Runs without a digest produce a single alert.
func FormatOutcome(outcome domain.RunOutcome) []string {
	if outcome.Digest == nil || outcome.Status.Kind == domain.StatusTotalScrapeFailure {
		return []string{alert(outcome)}
	}

	d := outcome.Digest
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 <b>%s</b> 🔥\n📅 %s\n", heading("Daily Viral Products Scout", outcome.Record.Label), html.EscapeString(d.RunDate))
	fmt.Fprintf(&b, "%d candidates, %d scored, top %d below\n", d.TotalCandidates, d.Scored, len(d.TopN))
	if outcome.Status.Kind == domain.StatusPartialFailure {
		fmt.Fprintf(&b, "⚠️ partial run: %s\n", html.EscapeString(outcome.Status.Reason))
	}
	header := b.String()

	if len(d.TopN) == 0 {
		return []string{header + "\nNo products made it into today's digest."}
	}

	var chunks []string
	current := header + "\n"
	for i, rec := range d.TopN {
		entry := formatEntry(i+1, rec)
		if utf8.RuneCountInString(current)+utf8.RuneCountInString(entry) > MessageLimit {
			chunks = append(chunks, strings.TrimRight(current, "\n"))
			current = ""
		}
		current += entry
	}
	return append(chunks, strings.TrimRight(current, "\n"))
}

func formatEntry(rank int, rec domain.ScoredRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%d. %s</b>\n", rank, html.EscapeString(rec.Name))
	fmt.Fprintf(&b, "💰 %s\n", html.EscapeString(rec.PriceRange))
	if rec.MOQ != domain.Unknown {
		fmt.Fprintf(&b, "📦 MOQ: %s\n", html.EscapeString(rec.MOQ))
	}
	if rec.OrdersOrReviews != "" {
		fmt.Fprintf(&b, "📈 %s\n", html.EscapeString(rec.OrdersOrReviews))
	}
	if rec.Supplier != domain.Unknown {
		fmt.Fprintf(&b, "🏭 %s\n", html.EscapeString(rec.Supplier))
	}
	fmt.Fprintf(&b, "🏷 %s · %s\n", html.EscapeString(rec.Category), html.EscapeString(rec.SourceID))
	fmt.Fprintf(&b, "⭐ Score: %d/100\n", rec.ViralScore)
	if rec.Rationale != "" {
		fmt.Fprintf(&b, "💡 %s\n", html.EscapeString(clip(rec.Rationale, maxRationale)))
	}
	fmt.Fprintf(&b, "🔗 <a href=\"%s\">Open on %s</a>\n\n", html.EscapeString(rec.Link), html.EscapeString(rec.SourceID))
	return b.String()
}

func alert(outcome domain.RunOutcome) string {
	rec := outcome.Record
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ <b>%s</b>\n📅 %s\n", heading("Product Scout alert", rec.Label), html.EscapeString(rec.RunDate))
	fmt.Fprintf(&b, "Status: %s\n", html.EscapeString(outcome.Status.String()))

	f := rec.Failures
	fmt.Fprintf(&b, "Fetches: %d total, %d ok, %d blocked, %d network errors, %d timeouts",
		f.TotalFetches,
		f.ByStatus[domain.FetchOK],
		f.ByStatus[domain.FetchBlocked],
		f.ByStatus[domain.FetchNetworkError],
		f.ByStatus[domain.FetchTimeout])
	if f.Aborted > 0 {
		fmt.Fprintf(&b, ", %d aborted", f.Aborted)
	}
	b.WriteString("\n")
	if len(rec.Unscored) > 0 {
		fmt.Fprintf(&b, "Unscored candidates: %d\n", len(rec.Unscored))
	}
	return strings.TrimRight(b.String(), "\n")
}

func heading(title, label string) string {
	if label = strings.TrimSpace(label); label != "" {
		title += " · " + label
	}
	return html.EscapeString(title)
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

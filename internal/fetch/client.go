package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"ProductScout/internal/antibot"
	"ProductScout/internal/domain"
)

const maxBodyBytes = 8 << 20

// Profile is one browser identity presented to the marketplace.
type Profile struct {
	UserAgent      string `yaml:"userAgent"`
	AcceptLanguage string `yaml:"acceptLanguage"`
	Referer        string `yaml:"referer"`
}

// DefaultProfiles is used when configuration supplies none.
var DefaultProfiles = []Profile{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		Referer:        "https://www.google.com/",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "en-GB,en;q=0.8",
		Referer:        "https://www.bing.com/",
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.7,de;q=0.3",
		Referer:        "https://duckduckgo.com/",
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		AcceptLanguage: "en-US,en;q=0.5",
		Referer:        "https://www.google.com/",
	},
}

// Request addresses a single search page.
type Request struct {
	URL       string
	SourceID  string
	QueryTerm string
	Category  string
	Timeout   time.Duration
}

// Fetcher performs one paced request with the given identity profile.
type Fetcher interface {
	Fetch(ctx context.Context, req Request, profile int) domain.RawFetchResult
	Profiles() int
}

// Options configures a Client.
type Options struct {
	HTTPClient *http.Client
	Profiles   []Profile
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
	Detector   *antibot.Detector
}

// Client issues marketplace requests and classifies the outcome; it never
// returns an error, all failures are reported through RawFetchResult.Status.
type Client struct {
	http     *http.Client
	profiles []Profile
	minDelay time.Duration
	maxDelay time.Duration
	timeout  time.Duration
	detector *antibot.Detector
	now      func() time.Time
	jitter   func() float64
}

var _ Fetcher = (*Client)(nil)

// NewClient applies defaults to opts.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	profiles := opts.Profiles
	if len(profiles) == 0 {
		profiles = DefaultProfiles
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxDelay := opts.MaxDelay
	if maxDelay < opts.MinDelay {
		maxDelay = opts.MinDelay
	}
	detector := opts.Detector
	if detector == nil {
		detector = antibot.NewDetector(nil)
	}
	return &Client{
		http:     client,
		profiles: profiles,
		minDelay: opts.MinDelay,
		maxDelay: maxDelay,
		timeout:  timeout,
		detector: detector,
		now:      time.Now,
		jitter:   rand.Float64,
	}
}

// Profiles returns the size of the identity pool.
func (c *Client) Profiles() int {
	return len(c.profiles)
}

// Fetch waits a random pacing delay, then requests req.URL with profile
// (taken modulo the pool size).
func (c *Client) Fetch(ctx context.Context, req Request, profile int) domain.RawFetchResult {
	res := domain.RawFetchResult{
		SourceID:  req.SourceID,
		QueryTerm: req.QueryTerm,
		Category:  req.Category,
		URL:       req.URL,
		Attempts:  1,
	}

	if err := Sleep(ctx, c.pace()); err != nil {
		res.FetchedAt = c.now()
		res.Status = classifyError(err)
		res.Err = err.Error()
		return res
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		res.FetchedAt = c.now()
		res.Status = domain.FetchNetworkError
		res.Err = fmt.Sprintf("build request: %v", err)
		return res
	}
	c.applyProfile(httpReq, profile)

	resp, err := c.http.Do(httpReq)
	res.FetchedAt = c.now()
	if err != nil {
		res.Status = classifyError(err)
		res.Err = err.Error()
		return res
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		res.Status = classifyError(err)
		res.Err = fmt.Sprintf("read body: %v", err)
		return res
	}
	res.Payload = string(body)
	res.Status, res.Err = c.classifyResponse(resp.StatusCode, res.Payload)
	return res
}

func (c *Client) classifyResponse(code int, body string) (domain.FetchStatus, string) {
	switch {
	case code == http.StatusForbidden || code == http.StatusTooManyRequests:
		return domain.FetchBlocked, fmt.Sprintf("%v: http %d", domain.ErrBlocked, code)
	case code >= 200 && code < 300:
		if strings.TrimSpace(body) == "" {
			return domain.FetchNetworkError, fmt.Sprintf("%v: empty body", domain.ErrNetwork)
		}
		if sig, ok := c.detector.Match(body); ok {
			return domain.FetchBlocked, fmt.Sprintf("%v: signature %q", domain.ErrBlocked, sig)
		}
		return domain.FetchOK, ""
	default:
		return domain.FetchNetworkError, fmt.Sprintf("%v: http %d", domain.ErrNetwork, code)
	}
}

func (c *Client) applyProfile(req *http.Request, profile int) {
	n := len(c.profiles)
	p := c.profiles[((profile%n)+n)%n]
	req.Header.Set("User-Agent", p.UserAgent)
	if p.AcceptLanguage != "" {
		req.Header.Set("Accept-Language", p.AcceptLanguage)
	}
	if p.Referer != "" {
		req.Header.Set("Referer", p.Referer)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

func (c *Client) pace() time.Duration {
	span := c.maxDelay - c.minDelay
	if span <= 0 {
		return c.minDelay
	}
	return c.minDelay + time.Duration(c.jitter()*float64(span))
}

func classifyError(err error) domain.FetchStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.FetchTimeout
	}
	return domain.FetchNetworkError
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

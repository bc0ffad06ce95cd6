package parser

import (
	"fmt"
	"net/url"
	"strings"

	"ProductScout/internal/antibot"
	"ProductScout/internal/domain"
	"ProductScout/internal/source"
)

const dhgateBaseURL = "https://www.dhgate.com"

var dhgateLayout = layout{
	cards: []string{
		"div.gallery-item",
		"div[class*='product-item']",
		"div[class*='listitem']",
	},
	title:    "a[title], [class*='title'], h3, h4",
	link:     "a[href*='/product/'], a[href*='dhgate.com']",
	price:    "[class*='price']",
	moq:      "[class*='min-order'], [class*='moq']",
	supplier: "[class*='store'], [class*='seller']",
	activity: "[class*='review'], [class*='sold'], [class*='orders']",
	anchors:  "a[href*='/product/']",
}

// DHgate reads dhgate.com wholesale search pages.
type DHgate struct {
	baseURL  string
	maxItems int
	detector *antibot.Detector
}

var _ source.Source = (*DHgate)(nil)

// NewDHgate keeps at most 5 listings per query unless configured otherwise.
func NewDHgate(opts Options) *DHgate {
	base, maxItems, detector := opts.withDefaults(dhgateBaseURL, 5)
	return &DHgate{baseURL: base, maxItems: maxItems, detector: detector}
}

// Name identifies the source inside the registry.
func (d *DHgate) Name() string {
	return "dhgate"
}

// SearchURL builds the best-match wholesale search URL.
func (d *DHgate) SearchURL(term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", fmt.Errorf("dhgate: empty query term")
	}
	q := url.Values{}
	q.Set("searchkey", term)
	q.Set("searchSource", "sort")
	q.Set("sortby", "bestmatch")
	return d.baseURL + "/wholesale/search.do?" + q.Encode(), nil
}

// Parse reads gallery cards, falling back to product anchors.
func (d *DHgate) Parse(raw domain.RawFetchResult) ([]domain.ProductRecord, []domain.ParseWarning) {
	p := newPage(d.Name(), d.baseURL, raw)
	doc := open(p, d.detector)
	if doc == nil {
		return p.finish()
	}

	dhgateLayout.extractCards(doc, p, d.maxItems)
	if len(p.records) == 0 {
		dhgateLayout.extractAnchors(doc, p, d.maxItems)
	}
	return p.finish()
}

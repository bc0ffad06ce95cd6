package parser

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"ProductScout/internal/antibot"
	"ProductScout/internal/domain"
	"ProductScout/internal/source"
)

const alibabaBaseURL = "https://www.alibaba.com"

var alibabaLayout = layout{
	cards: []string{
		"div.organic-list div.fy23-search-card",
		"div.organic-list div.J-offer-wrapper",
		"div[class*='search-card']",
		"div[class*='offer-wrapper']",
		"div.gallery-offer-list div[class*='card']",
	},
	title:    "h2, [class*='title'], [class*='name'], a[title]",
	link:     "a[href*='/product-detail/'], a[href*='alibaba.com']",
	price:    "[class*='price'], [class*='Price']",
	moq:      "[class*='moq'], [class*='MOQ'], [class*='min-order']",
	supplier: "[class*='company'], [class*='supplier']",
	activity: "[class*='sold'], [class*='review']",
	anchors:  "a[href*='/product-detail/']",
}

// embedded result arrays that Alibaba renders into inline scripts
var alibabaJSONKeys = []string{`"offerList"`, `"itemList"`}

// Options configures a marketplace parser.
type Options struct {
	BaseURL  string
	MaxItems int
	Detector *antibot.Detector
}

// Alibaba reads alibaba.com wholesale search pages.
type Alibaba struct {
	baseURL  string
	maxItems int
	detector *antibot.Detector
}

var _ source.Source = (*Alibaba)(nil)

// NewAlibaba keeps at most 8 listings per query unless configured otherwise.
func NewAlibaba(opts Options) *Alibaba {
	base, maxItems, detector := opts.withDefaults(alibabaBaseURL, 8)
	return &Alibaba{baseURL: base, maxItems: maxItems, detector: detector}
}

// Name identifies the source inside the registry.
func (a *Alibaba) Name() string {
	return "alibaba"
}

// SearchURL builds the trade search URL sorted by trade volume.
func (a *Alibaba) SearchURL(term string) (string, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return "", fmt.Errorf("alibaba: empty query term")
	}
	q := url.Values{}
	q.Set("SearchText", term)
	q.Set("viewtype", "G")
	q.Set("sortType", "TRALV")
	return a.baseURL + "/trade/search?" + q.Encode(), nil
}

// Parse walks the result cards, falling back to bare product anchors and then
// to the JSON the page embeds for client-side rendering.
func (a *Alibaba) Parse(raw domain.RawFetchResult) ([]domain.ProductRecord, []domain.ParseWarning) {
	p := newPage(a.Name(), a.baseURL, raw)
	doc := open(p, a.detector)
	if doc == nil {
		return p.finish()
	}

	alibabaLayout.extractCards(doc, p, a.maxItems)
	if len(p.records) == 0 {
		alibabaLayout.extractAnchors(doc, p, a.maxItems)
	}
	if len(p.records) == 0 {
		for _, item := range embeddedListings(raw.Payload) {
			if len(p.records) >= a.maxItems {
				break
			}
			p.add(item)
		}
	}
	return p.finish()
}

func embeddedListings(payload string) []listing {
	for _, key := range alibabaJSONKeys {
		idx := strings.Index(payload, key)
		if idx < 0 {
			continue
		}
		rest := payload[idx+len(key):]
		colon := strings.IndexByte(rest, ':')
		if colon < 0 {
			continue
		}

		var items []map[string]any
		if err := json.NewDecoder(strings.NewReader(rest[colon+1:])).Decode(&items); err != nil {
			continue
		}

		out := make([]listing, 0, len(items))
		for _, item := range items {
			rec := listing{
				name:     firstString(item, "title", "name", "subject"),
				link:     firstString(item, "detailUrl", "href", "productUrl"),
				price:    priceOf(item["price"]),
				moq:      firstString(item, "moq", "minOrder", "minOrderQuantity"),
				supplier: firstString(item, "companyName", "supplier"),
				image:    firstString(item, "image", "imgUrl"),
			}
			if rec.price == "" {
				rec.price = firstString(item, "priceStr")
			}
			if rec.name != "" && rec.link != "" {
				out = append(out, rec)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func firstString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := item[key].(type) {
		case string:
			if strings.TrimSpace(v) != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%g", v)
		}
	}
	return ""
}

func priceOf(v any) string {
	switch p := v.(type) {
	case string:
		return p
	case float64:
		return fmt.Sprintf("%g", p)
	case map[string]any:
		if s := firstString(p, "priceStr"); s != "" {
			return s
		}
		return firstString(p, "min")
	default:
		return ""
	}
}

func (o Options) withDefaults(base string, maxItems int) (string, int, *antibot.Detector) {
	if strings.TrimSpace(o.BaseURL) != "" {
		base = strings.TrimSuffix(strings.TrimSpace(o.BaseURL), "/")
	}
	if o.MaxItems > 0 {
		maxItems = o.MaxItems
	}
	detector := o.Detector
	if detector == nil {
		detector = antibot.NewDetector(nil)
	}
	return base, maxItems, detector
}

package parser

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"ProductScout/internal/antibot"
	"ProductScout/internal/domain"
)

const maxNameRunes = 120

// layout describes where a marketplace keeps listing fields inside its
// search-result cards. Selectors are tried in order; the first one that
// matches anything wins.
type layout struct {
	cards    []string
	title    string
	link     string
	price    string
	moq      string
	supplier string
	activity string
	anchors  string
}

// page carries everything extracted from one payload.
type page struct {
	source   string
	baseURL  string
	raw      domain.RawFetchResult
	records  []domain.ProductRecord
	warnings []domain.ParseWarning
	seen     map[string]struct{}
}

func newPage(source, baseURL string, raw domain.RawFetchResult) *page {
	return &page{source: source, baseURL: baseURL, raw: raw, seen: map[string]struct{}{}}
}

func (p *page) warn(kind, format string, args ...any) {
	p.warnings = append(p.warnings, domain.ParseWarning{
		SourceID:  p.source,
		QueryTerm: p.raw.QueryTerm,
		Category:  p.raw.Category,
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
	})
}

// add appends a record unless the same link was already read from this page.
func (p *page) add(rec listing) bool {
	link := absolutize(p.baseURL, rec.link)
	if link == "" {
		return false
	}
	if _, dup := p.seen[link]; dup {
		return false
	}
	p.seen[link] = struct{}{}

	name := clip(clean(rec.name))
	p.records = append(p.records, domain.ProductRecord{
		ID:              domain.ProductID(p.source, link, name),
		Category:        p.raw.Category,
		QueryTerms:      []string{p.raw.QueryTerm},
		Name:            domain.OrUnknown(name),
		PriceRange:      domain.OrUnknown(clean(rec.price)),
		MOQ:             domain.OrUnknown(clean(rec.moq)),
		Supplier:        domain.OrUnknown(clean(rec.supplier)),
		Link:            link,
		ImageURL:        absolutize(p.baseURL, rec.image),
		OrdersOrReviews: clean(rec.activity),
		SourceID:        p.source,
		FirstSeenAt:     p.raw.FetchedAt,
	})
	return true
}

// listing is an unnormalized card as read from markup or embedded JSON.
type listing struct {
	name     string
	link     string
	price    string
	moq      string
	supplier string
	image    string
	activity string
}

// open runs the checks shared by every source and returns the document to
// walk, or nil when the page must be skipped. A block page is reported
// whatever status the fetch ended with.
func open(p *page, detector *antibot.Detector) *goquery.Document {
	if sig, ok := detector.Match(p.raw.Payload); ok {
		p.warn(domain.WarnInterstitial, "%v: signature %q in %s response", domain.ErrBlocked, sig, p.raw.Status)
		return nil
	}
	if p.raw.Status != domain.FetchOK {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.raw.Payload))
	if err != nil {
		p.warn(domain.WarnParseFailure, "%v: %v", domain.ErrParseFailure, err)
		return nil
	}
	return doc
}

func (l layout) extractCards(doc *goquery.Document, p *page, maxItems int) {
	var cards *goquery.Selection
	for _, sel := range l.cards {
		if found := doc.Find(sel); found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		return
	}

	cards.EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(p.records) >= maxItems {
			return false
		}
		rec := listing{
			name:     titleOf(card.Find(l.title).First()),
			link:     hrefOf(card.Find(l.link).First()),
			price:    card.Find(l.price).First().Text(),
			moq:      card.Find(l.moq).First().Text(),
			supplier: card.Find(l.supplier).First().Text(),
			image:    imageOf(card.Find("img").First()),
			activity: card.Find(l.activity).First().Text(),
		}
		if rec.link == "" {
			p.warn(domain.WarnSkippedCard, "card %d has no product link", i)
			return true
		}
		p.add(rec)
		return true
	})
}

func (l layout) extractAnchors(doc *goquery.Document, p *page, maxItems int) {
	doc.Find(l.anchors).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(p.records) >= maxItems {
			return false
		}
		p.add(listing{name: titleOf(a), link: hrefOf(a)})
		return true
	})
}

func (p *page) finish() ([]domain.ProductRecord, []domain.ParseWarning) {
	if len(p.records) == 0 && p.raw.Status == domain.FetchOK && len(p.warnings) == 0 {
		p.warn(domain.WarnParseFailure, "%v: no product markup found", domain.ErrParseFailure)
	}
	return p.records, p.warnings
}

func titleOf(s *goquery.Selection) string {
	if s.Length() == 0 {
		return ""
	}
	if title, ok := s.Attr("title"); ok && strings.TrimSpace(title) != "" {
		return title
	}
	return s.Text()
}

func hrefOf(s *goquery.Selection) string {
	href, _ := s.Attr("href")
	return strings.TrimSpace(href)
}

func imageOf(s *goquery.Selection) string {
	if src, ok := s.Attr("src"); ok && strings.TrimSpace(src) != "" {
		return src
	}
	src, _ := s.Attr("data-src")
	return src
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxNameRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxNameRunes]))
}

func absolutize(base, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case href == "":
		return ""
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return strings.TrimSuffix(base, "/") + href
	default:
		return strings.TrimSuffix(base, "/") + "/" + href
	}
}

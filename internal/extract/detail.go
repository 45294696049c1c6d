package extract

import (
	"time"

	"github.com/PuerkitoBio/goquery"
)

// UnknownPublisher is used when no publisher can be found on the page.
const UnknownPublisher = "Unknown"

// Detail holds the fields extracted from one article page.
type Detail struct {
	Title        string
	Content      string
	PublishedAt  time.Time
	Publisher    string
	ThumbnailURL string
	Byline       string
}

// Rules lists, per field, the extractors to try in priority order. The site
// serves different markup to desktop and mobile clients and across sections,
// so every field has more than one place to look.
type Rules struct {
	Title       []Extractor
	Date        []Extractor
	Publisher   []Extractor
	Thumbnail   []Extractor
	Byline      []Extractor
	Body        []string
	RoleMarkers []string
}

// DefaultRules returns the rules for news.naver.com article pages.
func DefaultRules() Rules {
	return Rules{
		Title: []Extractor{
			Text(".media_end_head_headline"),
			Text("#title_area span"),
			Text(".end_tit"),
			Attr{Selector: `meta[property="og:title"]`, Name: "content"},
		},
		Date: []Extractor{
			Attr{Selector: ".media_end_head_info_datestamp_time", Name: "data-date-time"},
			Text(".media_end_head_info_datestamp_time"),
			Attr{Selector: "span._ARTICLE_DATE_TIME", Name: "data-date-time"},
			Text("span._ARTICLE_DATE_TIME"),
		},
		Publisher: []Extractor{
			Attr{Selector: ".media_end_head_top_logo img", Name: "title"},
			Attr{Selector: ".media_end_head_top_logo img", Name: "alt"},
			Text(".media_end_head_top_logo_text"),
			Text(".media_end_linked_more_point"),
		},
		Thumbnail: []Extractor{
			Attr{Selector: `meta[property="og:image"]`, Name: "content"},
		},
		Byline: []Extractor{
			Text(".media_end_head_journalist_name"),
			Text(".media_end_head_journalist"),
			Text(".byline"),
			Text(".journalistcard_summary_name"),
			Text(".reporter_area"),
			Text(".reporter"),
			Text("span.byline_s"),
			XPath{Expr: `//meta[@name="author"]`, Attr: "content"},
		},
		Body: []string{
			"#dic_area",
			"#newsct_article",
			".newsct_article",
			"#articeBody",
			"article._article_content",
		},
		RoleMarkers: DefaultRoleMarkers,
	}
}

// Parser extracts a Detail from an article document.
type Parser struct {
	rules Rules
	dates *DateNormalizer
}

// NewParser builds a Parser.
func NewParser(rules Rules, dates *DateNormalizer) *Parser {
	if dates == nil {
		dates = NewDateNormalizer(time.UTC, nil)
	}
	return &Parser{rules: rules, dates: dates}
}

// Parse never fails; every field falls back to a textual default. The body
// is formatted last because formatting mutates the document.
func (p *Parser) Parse(doc *goquery.Document) Detail {
	if doc == nil {
		return Detail{PublishedAt: p.dates.Parse(""), Publisher: UnknownPublisher}
	}
	d := Detail{
		Title:        firstNonBlank(doc, p.rules.Title),
		PublishedAt:  p.dates.Parse(firstNonBlank(doc, p.rules.Date)),
		Publisher:    firstNonBlank(doc, p.rules.Publisher),
		ThumbnailURL: firstNonBlank(doc, p.rules.Thumbnail),
		Byline:       CleanByline(firstNonBlank(doc, p.rules.Byline), p.rules.RoleMarkers),
	}
	if d.Publisher == "" {
		d.Publisher = UnknownPublisher
	}
	d.Content = FormatContent(firstSelection(doc, p.rules.Body))
	return d
}

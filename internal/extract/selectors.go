// Package extract pulls structured article fields out of fetched news pages.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// Extractor yields one candidate value for a field, or "" when it finds nothing.
type Extractor interface {
	Extract(doc *goquery.Document) string
}

// Text extracts the whitespace-normalized text of the first CSS match.
type Text string

// Extract implements Extractor.
func (t Text) Extract(doc *goquery.Document) string {
	return collapseSpaces(doc.Find(string(t)).First().Text())
}

// Attr extracts an attribute of the first CSS match.
type Attr struct {
	Selector string
	Name     string
}

// Extract implements Extractor.
func (a Attr) Extract(doc *goquery.Document) string {
	v, _ := doc.Find(a.Selector).First().Attr(a.Name)
	return strings.TrimSpace(v)
}

// XPath extracts an attribute (or the inner text when Attr is empty) of the
// first node matching an XPath expression.
type XPath struct {
	Expr string
	Attr string
}

// Extract implements Extractor.
func (x XPath) Extract(doc *goquery.Document) string {
	if len(doc.Nodes) == 0 {
		return ""
	}
	node, err := htmlquery.Query(doc.Nodes[0], x.Expr)
	if err != nil || node == nil {
		return ""
	}
	if x.Attr == "" {
		return collapseSpaces(htmlquery.InnerText(node))
	}
	return strings.TrimSpace(htmlquery.SelectAttr(node, x.Attr))
}

// firstNonBlank tries extractors in order and returns the first non-blank value.
func firstNonBlank(doc *goquery.Document, extractors []Extractor) string {
	for _, e := range extractors {
		if v := e.Extract(doc); v != "" {
			return v
		}
	}
	return ""
}

// firstSelection returns the first selector that matches anything.
func firstSelection(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if sel := doc.Find(s).First(); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package extract

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	paragraphBreak = "\n\n"

	noiseSelectors = "script, style, figure, figcaption, iframe, " +
		".img_desc, .byline, .copyright, .media_end_head_journalist_layer, .reporter_area"
	boldSelectors  = "strong, b"
	blockSelectors = "div, section, article, li"

	minHeadingRunes       = 5
	minBlockOwnTextRunes  = 40
	maxParagraphSentences = 3
	maxParagraphRunes     = 220
)

var (
	markerRe       = regexp.MustCompile(`\s*([▶▷※■□◆◇•●])\s*`)
	bracketTitleRe = regexp.MustCompile(`\s*(\[[^\]\n]{1,30}\])\s*`)

	trailingSpaceRe = regexp.MustCompile(`[ \t]+\n`)
	leadingSpaceRe  = regexp.MustCompile(`\n[ \t]+`)
	blankLineRe     = regexp.MustCompile(`\n\s*\n`)
	excessBreakRe   = regexp.MustCompile(`\n{3,}`)
	spaceRunRe      = regexp.MustCompile(`[ \t]{2,}`)
)

// FormatContent renders an article body fragment as paragraph-separated plain
// text. Paragraphs are separated by exactly one blank line. The fragment is
// modified in place.
func FormatContent(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	root := sel.First()
	root.Find(noiseSelectors).Remove()

	root.Find("br").Each(func(_ int, br *goquery.Selection) {
		insertAfter(br.Nodes[0], "\n")
	})

	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		if strings.TrimSpace(p.Text()) == "" {
			return
		}
		insertBefore(p.Nodes[0], paragraphBreak)
		insertAfter(p.Nodes[0], paragraphBreak)
	})

	// Bold runs outside paragraphs are sub-headings unless they are short.
	root.Find(boldSelectors).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if utf8.RuneCountInString(text) < minHeadingRunes {
			return
		}
		if s.ParentsUntilSelection(root).Filter("p").Length() > 0 {
			return
		}
		insertBefore(s.Nodes[0], paragraphBreak)
		insertAfter(s.Nodes[0], paragraphBreak)
	})

	root.Find(blockSelectors).Each(func(_ int, b *goquery.Selection) {
		if b.Find("p").Length() > 0 {
			return
		}
		if utf8.RuneCountInString(strings.TrimSpace(ownText(b.Nodes[0]))) >= minBlockOwnTextRunes {
			insertAfter(b.Nodes[0], paragraphBreak)
		}
	})

	return finishText(root.Text())
}

// FormatText applies the formatter to a plain-text fragment. A text-only
// fragment carries no markup, so only the text stages run.
func FormatText(text string) string {
	return finishText(text)
}

func finishText(raw string) string {
	text := markerRe.ReplaceAllString(plainSpaces(raw), paragraphBreak+"$1 ")
	text = normalizeWhitespace(text)
	if strings.Contains(text, "\n") {
		return text
	}
	return paragraphize(text)
}

// plainSpaces maps non-ASCII space separators such as NBSP to ' ' so the
// ASCII-only \s classes treat them as whitespace.
func plainSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if r != ' ' && unicode.Is(unicode.Zs, r) {
			return ' '
		}
		return r
	}, s)
}

func normalizeWhitespace(s string) string {
	s = plainSpaces(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = leadingSpaceRe.ReplaceAllString(s, "\n")
	s = blankLineRe.ReplaceAllString(s, paragraphBreak)
	s = excessBreakRe.ReplaceAllString(s, paragraphBreak)
	s = spaceRunRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// paragraphize builds paragraphs for bodies that arrive as one unbroken blob.
func paragraphize(text string) string {
	t := strings.TrimSpace(text)
	if t == "" {
		return ""
	}
	pre := markerRe.ReplaceAllString(plainSpaces(t), paragraphBreak+"$1 ")
	pre = bracketTitleRe.ReplaceAllString(pre, paragraphBreak+"$1 ")

	var b strings.Builder
	for _, block := range strings.Split(pre, paragraphBreak) {
		count, length := 0, 0
		for _, sentence := range splitSentences(block) {
			switch {
			case b.Len() == 0:
			case count == 0:
				b.WriteString(paragraphBreak)
			default:
				b.WriteByte(' ')
			}
			b.WriteString(sentence)
			count++
			length += utf8.RuneCountInString(sentence)
			if count >= maxParagraphSentences || length >= maxParagraphRunes {
				count, length = 0, 0
			}
		}
	}
	return normalizeWhitespace(b.String())
}

// splitSentences cuts at whitespace that follows sentence-final punctuation or
// a declarative Korean ending.
func splitSentences(s string) []string {
	runes := []rune(s)
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsSpace(runes[i]) || !isSentenceEnd(runes[i-1]) {
			continue
		}
		j := i
		for j < len(runes) && unicode.IsSpace(runes[j]) {
			j++
		}
		if seg := strings.TrimSpace(string(runes[start:i])); seg != "" {
			out = append(out, seg)
		}
		start = j
		i = j - 1
	}
	if seg := strings.TrimSpace(string(runes[start:])); seg != "" {
		out = append(out, seg)
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '다', '요', '함':
		return true
	}
	return false
}

func ownText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func insertBefore(n *html.Node, text string) {
	if n.Parent == nil {
		return
	}
	n.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text}, n)
}

func insertAfter(n *html.Node, text string) {
	if n.Parent == nil {
		return
	}
	n.Parent.InsertBefore(&html.Node{Type: html.TextNode, Data: text}, n.NextSibling)
}

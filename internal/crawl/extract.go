package crawl

import (
	"bytes"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxExtractChars = 50_000
	minSnippetChars = 20
)

// contentSelector picks the block-level elements whose text counts as page
// content. Containers like article and section are covered through the
// paragraphs and headings inside them.
const contentSelector = "p, h1, h2, h3, h4, h5, h6, li"

// Extraction holds what one HTML document yields: the title, the visible
// text with paragraph boundaries preserved, and every outbound link.
type Extraction struct {
	Title string
	Text  string
	Links []string // absolute, fragment-stripped, document order, deduped
}

// Extract never fails: malformed or non-HTML bytes degrade to an empty
// result rather than an error.
func Extract(body []byte, base *url.URL) Extraction {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extraction{}
	}

	ex := Extraction{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Links: extractLinks(doc, base),
	}

	// Links come from the whole document (navigation matters for the
	// frontier); text does not.
	doc.Find("script, style, nav, header, footer, noscript, iframe").Remove()

	var blocks []string
	doc.Find(contentSelector).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if utf8.RuneCountInString(text) > minSnippetChars {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		if fallback := strings.Join(strings.Fields(doc.Find("body").Text()), " "); fallback != "" {
			blocks = append(blocks, fallback)
		}
	}

	ex.Text = truncateRunes(strings.Join(blocks, "\n\n"), maxExtractChars)
	return ex
}

func extractLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]bool)
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "tel:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := ref
		if base != nil {
			abs = base.ResolveReference(ref)
		}
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		link := canonicalURL(abs)
		if !seen[link] {
			seen[link] = true
			links = append(links, link)
		}
	})
	return links
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

package resolver

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Page is a fetched catalog response.
type Page struct {
	// URL is the final URL after redirects.
	URL  string
	Body string
}

// Extractor pulls a display name out of a fetched page. An empty result means
// the markup did not match and the next extractor is tried.
type Extractor interface {
	Extract(id string, page Page) string
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(id string, page Page) string

// Extract implements Extractor.
func (f ExtractorFunc) Extract(id string, page Page) string {
	return f(id, page)
}

// Pattern extracts the first capture group of a regular expression matched
// against the raw body.
type Pattern struct {
	Re *regexp.Regexp
}

// Extract implements Extractor.
func (p Pattern) Extract(_ string, page Page) string {
	m := p.Re.FindStringSubmatch(page.Body)
	if len(m) < 2 {
		return ""
	}
	return cleanText(m[1])
}

// Selector extracts the text of the first element matching a CSS selector.
type Selector struct {
	CSS string
}

// Extract implements Extractor.
func (s Selector) Extract(_ string, page Page) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return ""
	}
	return cleanText(doc.Find(s.CSS).First().Text())
}

// XPath extracts the text of the first node matching an XPath expression, or
// its Attr attribute when set. Suffix, when set, is trimmed from the result.
type XPath struct {
	Expr   string
	Attr   string
	Suffix string
}

// Extract implements Extractor.
func (x XPath) Extract(_ string, page Page) string {
	doc, err := htmlquery.Parse(strings.NewReader(page.Body))
	if err != nil {
		return ""
	}
	node, err := htmlquery.Query(doc, x.Expr)
	if err != nil || node == nil {
		return ""
	}
	var text string
	if x.Attr != "" {
		text = cleanText(htmlquery.SelectAttr(node, x.Attr))
	} else {
		text = cleanText(htmlquery.InnerText(node))
	}
	if x.Suffix != "" {
		text = strings.TrimSpace(strings.TrimSuffix(text, x.Suffix))
	}
	return text
}

// Slug derives a name from the path segment following "/detail/" in the
// final URL, as produced by store redirects such as
// /detail/ublock-origin/<id>. A slug equal to the ID carries no name.
type Slug struct{}

var titleCaser = cases.Title(language.Und)

// Extract implements Extractor.
func (Slug) Extract(id string, page Page) string {
	u, err := url.Parse(page.URL)
	if err != nil {
		return ""
	}
	_, rest, found := strings.Cut(u.Path, "/detail/")
	if !found {
		return ""
	}
	slug, _, _ := strings.Cut(rest, "/")
	slug, err = url.PathUnescape(slug)
	if err != nil || slug == "" || strings.EqualFold(slug, id) {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(slug, "-", " "))
}

var (
	stripTags  = bluemonday.StrictPolicy()
	whitespace = regexp.MustCompile(`\s+`)
)

// cleanText strips markup, decodes entities and collapses whitespace.
func cleanText(s string) string {
	s = stripTags.Sanitize(s)
	s = html.UnescapeString(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

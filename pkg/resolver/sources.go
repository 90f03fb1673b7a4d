package resolver

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pterm/pterm"
)

const (
	// DefaultCatalogURL is the third-party mirror consulted first.
	DefaultCatalogURL = "https://www.crxsoso.com"
	// DefaultStoreURL is the official Chrome Web Store.
	DefaultStoreURL = "https://chrome.google.com"
	// DefaultTimeout bounds each remote lookup.
	DefaultTimeout = 5 * time.Second
	// DefaultUserAgent is sent with remote lookups; both catalogs serve
	// reduced markup to unknown clients.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Source is one remote step of the resolution chain. Lookup returns "" when
// the source has no name for id; errors are never surfaced.
type Source interface {
	Name() string
	Lookup(ctx context.Context, id string) string
}

// PageSource fetches a detail page and runs its extractors in order.
type PageSource struct {
	Label      string
	URL        func(id string) string
	Extractors []Extractor

	client *resty.Client
}

// NewPageSource builds a PageSource using client for requests.
func NewPageSource(label string, client *resty.Client, url func(id string) string, extractors ...Extractor) *PageSource {
	return &PageSource{Label: label, URL: url, Extractors: extractors, client: client}
}

// Name implements Source.
func (p *PageSource) Name() string {
	return p.Label
}

// Lookup implements Source. Any transport error or non-200 status yields "".
func (p *PageSource) Lookup(ctx context.Context, id string) string {
	target := p.URL(id)
	resp, err := p.client.R().SetContext(ctx).Get(target)
	if err != nil {
		pterm.Debug.Printf("%s lookup for %s failed: %v\n", p.Label, id, err)
		return ""
	}
	if resp.StatusCode() != http.StatusOK {
		pterm.Debug.Printf("%s lookup for %s returned HTTP %d\n", p.Label, id, resp.StatusCode())
		return ""
	}

	page := Page{URL: target, Body: resp.String()}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		page.URL = raw.Request.URL.String()
	}

	for _, ex := range p.Extractors {
		if name := ex.Extract(id, page); name != "" {
			pterm.Debug.Printf("%s resolved %s to %q\n", p.Label, id, name)
			return name
		}
	}
	return ""
}

// NewHTTPClient returns a resty client for catalog lookups. Retries are
// disabled: each source gets a single attempt bounded by timeout.
func NewHTTPClient(timeout time.Duration, userAgent string) *resty.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(10)).
		SetHeader("User-Agent", userAgent)
}

// Catalog markup: the name sits in <div class="name el2">, closed either by a
// framework comment marker or by the div itself.
var (
	catalogPrimary  = regexp.MustCompile(`(?s)<div[^>]*class="name el2"[^>]*>(.*?)<!---->`)
	catalogFallback = regexp.MustCompile(`(?s)<div[^>]*class="name el2"[^>]*>(.*?)</div>`)
)

// CatalogSource looks names up on the crxsoso mirror.
func CatalogSource(client *resty.Client, baseURL string) *PageSource {
	base := strings.TrimRight(baseURL, "/")
	return NewPageSource("catalog", client,
		func(id string) string { return fmt.Sprintf("%s/webstore/detail/%s", base, id) },
		Pattern{Re: catalogPrimary},
		Pattern{Re: catalogFallback},
	)
}

// StoreSource looks names up on the official store. The store redirects the
// legacy detail URL to one embedding a slug of the name; the page heading and
// og:title are consulted when the slug is absent.
func StoreSource(client *resty.Client, baseURL string) *PageSource {
	base := strings.TrimRight(baseURL, "/")
	return NewPageSource("store", client,
		func(id string) string { return fmt.Sprintf("%s/webstore/detail/%s", base, id) },
		Slug{},
		Selector{CSS: "h1.e-f-w"},
		XPath{Expr: `//meta[@property="og:title"]`, Attr: "content", Suffix: "- Chrome Web Store"},
	)
}

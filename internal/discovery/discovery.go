// Package discovery walks the catalog's three-level hierarchy: brands on the
// root page, models under a brand, trims under a model. Pages are plain
// anchor listings; membership is decided by URL path patterns anchored on
// the parent segments, never by page styling.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/fetch"
)

// unavailableMarkers in an anchor's visible text mean the model cannot be
// bought new and carries no trim pages worth fetching.
var unavailableMarkers = []string{"_error_", "not available"}

// BrandRef identifies one discovered brand.
type BrandRef struct {
	Name string
	URL  string
}

// ModelRef identifies one discovered model of a brand.
type ModelRef struct {
	Name string
	URL  string
}

// TrimRef identifies one discovered trim. FullName is the dedup identity:
// "{Brand} {model} {label}" with the brand capitalized.
type TrimRef struct {
	Label    string
	URL      string
	FullName string
}

// Crawler discovers catalog entries through the shared transport.
type Crawler struct {
	client   *fetch.Client
	base     *url.URL
	rootPath string
	sentinel string
}

// New creates a crawler rooted at baseURL, e.g.
// "https://eg.hatla2ee.com/en/new-car".
func New(client *fetch.Client, baseURL string) (*Crawler, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid catalog base URL %q", baseURL)
	}

	rootPath := strings.TrimSuffix(base.Path, "/")
	segments := strings.Split(strings.Trim(rootPath, "/"), "/")
	return &Crawler{
		client:   client,
		base:     base,
		rootPath: rootPath,
		sentinel: segments[len(segments)-1],
	}, nil
}

// Brands fetches the catalog root and returns every linked brand, unique and
// in first-seen order. The root sentinel segment is not a brand.
func (c *Crawler) Brands(ctx context.Context) ([]BrandRef, error) {
	doc, err := c.client.Fetch(ctx, c.base.String())
	if err != nil {
		return nil, err
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(c.rootPath) + `/([^/]+)/?$`)

	var brands []BrandRef
	seen := make(map[string]bool)
	c.eachAnchor(doc.Selection, func(path, text, abs string) {
		m := pattern.FindStringSubmatch(path)
		if m == nil {
			return
		}
		name := m[1]
		if name == c.sentinel || seen[name] {
			return
		}
		seen[name] = true
		brands = append(brands, BrandRef{Name: name, URL: abs})
	})

	slog.Info("discovered brands", "count", len(brands))
	return brands, nil
}

// Models fetches a brand page and returns its available models. Anchors
// whose visible text carries an unavailability marker are skipped.
func (c *Crawler) Models(ctx context.Context, brand string) ([]ModelRef, error) {
	doc, err := c.client.Fetch(ctx, c.pageURL(brand))
	if err != nil {
		return nil, err
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(c.rootPath) +
		`/` + regexp.QuoteMeta(brand) + `/([^/]+)/?$`)

	var models []ModelRef
	seen := make(map[string]bool)
	c.eachAnchor(doc.Selection, func(path, text, abs string) {
		m := pattern.FindStringSubmatch(path)
		if m == nil {
			return
		}
		lower := strings.ToLower(text)
		for _, marker := range unavailableMarkers {
			if strings.Contains(lower, marker) {
				return
			}
		}
		name := m[1]
		if seen[name] {
			return
		}
		seen[name] = true
		models = append(models, ModelRef{Name: name, URL: abs})
	})

	if len(models) == 0 {
		slog.Info("no available models for brand", "brand", brand)
	}
	return models, nil
}

// Trims fetches a model page and returns its trims. Trim detail links carry
// a numeric id as the final path segment; when a page exposes none as plain
// anchors the table rows are scanned for embedded ones instead. Trims whose
// full identity is rejected by skip are filtered out.
func (c *Crawler) Trims(ctx context.Context, brand, model string, skip func(fullName string) bool) ([]TrimRef, error) {
	doc, err := c.client.Fetch(ctx, c.pageURL(brand, model))
	if err != nil {
		return nil, err
	}

	pattern := regexp.MustCompile(`^` + regexp.QuoteMeta(c.rootPath) +
		`/` + regexp.QuoteMeta(brand) + `/` + regexp.QuoteMeta(model) + `/(\d+)/?$`)

	trims := c.collectTrims(doc.Selection, pattern, brand, model, skip)
	if len(trims) == 0 {
		// Some model pages bury the trim link inside a table row, often
		// pointing at a subpage of the trim. The numeric id still
		// identifies it; only the trailing anchor is relaxed.
		rowPattern := regexp.MustCompile(`^` + regexp.QuoteMeta(c.rootPath) +
			`/` + regexp.QuoteMeta(brand) + `/` + regexp.QuoteMeta(model) + `/(\d+)(?:/.*)?$`)
		doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
			trims = append(trims, c.collectTrims(row, rowPattern, brand, model, func(full string) bool {
				if skip != nil && skip(full) {
					return true
				}
				for _, t := range trims {
					if t.FullName == full {
						return true
					}
				}
				return false
			})...)
		})
	}

	return trims, nil
}

func (c *Crawler) collectTrims(sel *goquery.Selection, pattern *regexp.Regexp, brand, model string, skip func(string) bool) []TrimRef {
	var trims []TrimRef
	seen := make(map[string]bool)
	c.eachAnchor(sel, func(path, text, abs string) {
		if pattern.FindStringSubmatch(path) == nil {
			return
		}
		label := strings.TrimSpace(text)
		if label == "" {
			return
		}
		full := FullTrimName(brand, model, label)
		if seen[full] || (skip != nil && skip(full)) {
			return
		}
		seen[full] = true
		trims = append(trims, TrimRef{Label: label, URL: abs, FullName: full})
	})
	return trims
}

// eachAnchor visits every anchor under sel, handing the callback the
// anchor's path (relative form), its visible text, and its absolute URL.
func (c *Crawler) eachAnchor(sel *goquery.Selection, fn func(path, text, abs string)) {
	sel.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		link, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := c.base.ResolveReference(link)
		if abs.Host != c.base.Host {
			return
		}
		fn(strings.TrimSuffix(abs.Path, "/"), a.Text(), abs.String())
	})
}

// pageURL joins path segments under the catalog root.
func (c *Crawler) pageURL(segments ...string) string {
	u := *c.base
	u.Path = c.rootPath + "/" + strings.Join(segments, "/")
	return u.String()
}

// FullTrimName builds the dedup identity of a trim.
func FullTrimName(brand, model, label string) string {
	return fmt.Sprintf("%s %s %s", CapitalizeBrand(brand), model, label)
}

// CapitalizeBrand renders a brand's URL segment the way it appears in
// identities and output rows.
func CapitalizeBrand(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

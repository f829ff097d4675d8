// Package fetch is the HTTP transport of the crawler: a persistent session
// with a fixed identity header, paced by the politeness controller and
// wrapped in a bounded retry loop, returning parsed document trees.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/politeness"
)

// DefaultTimeout bounds a single request attempt.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the fixed session identity sent with every request.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// DefaultMaxAttempts is the retry budget per page.
const DefaultMaxAttempts = 3

// minDocumentText is the threshold below which a fetched page is treated as
// an empty shell worth re-rendering in the headless browser.
const minDocumentText = 200

// AttemptErrorFunc is invoked once per failed attempt, before any retry.
type AttemptErrorFunc func(url string, err error)

// Options configure a Client.
type Options struct {
	UserAgent   string
	Timeout     time.Duration
	MaxAttempts int
	// UseBrowser enables the headless-browser fallback for pages whose
	// plain fetch yields a near-empty document.
	UseBrowser bool
	// OnAttemptError observes every failed attempt (for the error log).
	OnAttemptError AttemptErrorFunc
}

// Client issues GETs through one persistent session. It is safe for
// concurrent use; pacing is delegated to the politeness controller.
type Client struct {
	http        *resty.Client
	pol         *politeness.Controller
	maxAttempts int
	useBrowser  bool
	timeout     time.Duration
	onError     AttemptErrorFunc
}

// NewClient builds a transport around the given politeness controller.
func NewClient(pol *politeness.Controller, opts Options) *Client {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}

	httpClient := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	return &Client{
		http:        httpClient,
		pol:         pol,
		maxAttempts: opts.MaxAttempts,
		useBrowser:  opts.UseBrowser,
		timeout:     opts.Timeout,
		onError:     opts.OnAttemptError,
	}
}

// Fetch GETs a page and returns its parsed document. One politeness delay is
// applied before the first attempt; failed attempts back off exponentially
// until the retry budget runs out, at which point a *Error is returned. The
// caller decides whether that is fatal.
func (c *Client) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	if err := c.pol.Pace(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		doc, err := c.fetchOnce(ctx, url)
		if err == nil {
			return c.maybeRender(ctx, url, doc)
		}
		lastErr = err
		if c.onError != nil {
			c.onError(url, err)
		}
		slog.Debug("fetch attempt failed",
			"url", url, "attempt", attempt, "err", err)

		if attempt == c.maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.pol.Backoff(attempt)); err != nil {
			return nil, err
		}
	}

	return nil, &Error{
		URL:     url,
		Message: fmt.Sprintf("giving up after %d attempts", c.maxAttempts),
		Cause:   lastErr,
	}
}

func (c *Client) fetchOnce(ctx context.Context, url string) (*goquery.Document, error) {
	res, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, &Error{URL: url, Message: "request failed", Cause: err}
	}
	if res.StatusCode() != http.StatusOK {
		return nil, &Error{
			URL:        url,
			Message:    fmt.Sprintf("HTTP status %d", res.StatusCode()),
			StatusCode: res.StatusCode(),
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, &Error{URL: url, Message: "failed to parse document", Cause: err}
	}
	return doc, nil
}

// maybeRender re-fetches a suspiciously empty page through the headless
// browser. Listing pages on the source site are server-rendered, but the
// occasional anti-bot interstitial serves an empty shell to plain clients.
func (c *Client) maybeRender(ctx context.Context, url string, doc *goquery.Document) (*goquery.Document, error) {
	if !c.useBrowser || len(strings.TrimSpace(doc.Text())) >= minDocumentText {
		return doc, nil
	}

	slog.Debug("document nearly empty, rendering in browser", "url", url)
	html, err := renderWithBrowser(ctx, url, c.timeout)
	if err != nil {
		// The plain document is still a valid parse; keep it.
		slog.Debug("browser rendering failed, keeping plain document",
			"url", url, "err", err)
		return doc, nil
	}

	rendered, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return doc, nil
	}
	return rendered, nil
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

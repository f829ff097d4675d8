// Package scraper drives a full catalog crawl: brand discovery, per-brand
// model and trim walks, detail-page extraction and the final summary.
// Failures demote scope. A dead trim page skips that trim, a dead model
// page skips that model, a dead brand page skips that brand; nothing short
// of an unreadable dictionary or an unreachable catalog root aborts a run.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dataset"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/dictionary"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/discovery"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/extraction"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/fetch"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/observability"
	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/politeness"
)

// Options configures one crawl run.
type Options struct {
	BaseURL    string `validate:"required,url"`
	Dictionary string `validate:"required"`
	Output     string `validate:"required"`
	ErrorLog   string `validate:"required"`

	// Brands restricts the crawl to these brand segments; empty means all.
	// Exclude is applied after Brands. Both match case-insensitively.
	Brands  []string
	Exclude []string

	MinDelay   time.Duration `validate:"min=0"`
	MaxDelay   time.Duration `validate:"min=0"`
	BrandDelay time.Duration `validate:"min=0"`

	// MaxAttempts and BackoffBase tune the retry loop; zero keeps the
	// transport defaults.
	MaxAttempts int           `validate:"min=0"`
	BackoffBase time.Duration `validate:"min=0"`

	// Workers above 1 crawls brands concurrently behind a shared rate
	// gate. Output row order is then no longer the discovery order.
	Workers int `validate:"min=1,max=16"`

	UseBrowser bool

	// SummaryTo defaults to stdout.
	SummaryTo io.Writer
}

var validate = validator.New()

// Controller owns all per-run state. Build one per crawl; instances do not
// share dedup sets or counters, so multiple runs can coexist in a process.
type Controller struct {
	opts    Options
	runID   string
	dict    *dictionary.Dictionary
	pol     *politeness.Controller
	client  *fetch.Client
	crawler *discovery.Crawler
	engine  *extraction.Engine
	writer  *dataset.Writer
	errlog  *observability.ErrorLog
	stats   *Stats
}

func New(opts Options) (*Controller, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.SummaryTo == nil {
		opts.SummaryTo = os.Stdout
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid crawl options: %w", err)
	}

	errlog, err := observability.OpenErrorLog(opts.ErrorLog)
	if err != nil {
		return nil, err
	}

	dict, err := dictionary.Load(opts.Dictionary)
	if err != nil {
		errlog.Close()
		return nil, err
	}

	polCfg := politeness.Config{
		MinDelay:    opts.MinDelay,
		MaxDelay:    opts.MaxDelay,
		BrandDelay:  opts.BrandDelay,
		BackoffBase: opts.BackoffBase,
	}
	var pol *politeness.Controller
	if opts.Workers > 1 {
		pol = politeness.NewSharedController(polCfg)
	} else {
		pol = politeness.NewController(polCfg)
	}

	c := &Controller{
		opts:   opts,
		runID:  uuid.NewString(),
		dict:   dict,
		pol:    pol,
		errlog: errlog,
		stats:  &Stats{},
	}
	c.client = fetch.NewClient(pol, fetch.Options{
		MaxAttempts: opts.MaxAttempts,
		UseBrowser:  opts.UseBrowser,
		OnAttemptError: func(url string, attemptErr error) {
			errlog.Errorf("request failed for %s: %v", url, attemptErr)
		},
	})
	c.crawler, err = discovery.New(c.client, opts.BaseURL)
	if err != nil {
		errlog.Close()
		return nil, err
	}
	c.engine = extraction.NewEngine(dict)
	c.writer = dataset.NewWriter(opts.Output, dict)
	return c, nil
}

// Close releases the error log. Call after Run.
func (c *Controller) Close() error {
	return c.errlog.Close()
}

// Run executes the crawl. The summary is printed no matter how the run
// ends; the returned stats are final. The error is non-nil only for fatal
// conditions: an unwritable dataset, an unreachable catalog root,
// persistent write failures, or cancellation.
func (c *Controller) Run(ctx context.Context) (*Stats, error) {
	c.stats.start()
	slog.Info("starting crawl",
		"run_id", c.runID,
		"base_url", c.opts.BaseURL,
		"workers", c.opts.Workers,
		"output", c.opts.Output)

	defer func() {
		c.stats.finish()
		fmt.Fprint(c.opts.SummaryTo, c.stats.Summary(c.runID, c.opts.Output))
	}()

	if err := c.writer.Initialize(); err != nil {
		return c.stats, err
	}

	brands, err := c.crawler.Brands(ctx)
	if err != nil {
		c.noteError("listing brands failed: %v", err)
		return c.stats, fmt.Errorf("listing brands: %w", err)
	}
	brands = filterBrands(brands, c.opts.Brands, c.opts.Exclude)
	slog.Info("brand scope resolved", "count", len(brands))

	if c.opts.Workers > 1 {
		err = c.runConcurrent(ctx, brands)
	} else {
		err = c.runSequential(ctx, brands)
	}
	return c.stats, err
}

func (c *Controller) runSequential(ctx context.Context, brands []discovery.BrandRef) error {
	for i, brand := range brands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			if err := c.pol.Delay(ctx, politeness.DelayBrandChange); err != nil {
				return err
			}
		}
		if err := c.processBrand(ctx, brand); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) runConcurrent(ctx context.Context, brands []discovery.BrandRef) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Workers)
	for _, brand := range brands {
		brand := brand
		g.Go(func() error {
			return c.processBrand(gctx, brand)
		})
	}
	return g.Wait()
}

// processBrand walks one brand's models and trims. Only fatal conditions
// propagate; per-model and per-trim failures are logged, counted and
// skipped.
func (c *Controller) processBrand(ctx context.Context, brand discovery.BrandRef) error {
	models, err := c.crawler.Models(ctx, brand.Name)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.noteError("listing models of %s failed: %v", brand.Name, err)
		return nil
	}

	for _, model := range models {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.processModel(ctx, brand.Name, model); err != nil {
			return err
		}
	}

	c.stats.Brands.Add(1)
	slog.Info("brand done", "brand", brand.Name, "models", len(models))
	return nil
}

func (c *Controller) processModel(ctx context.Context, brand string, model discovery.ModelRef) error {
	trims, err := c.crawler.Trims(ctx, brand, model.Name, c.writer.ShouldSkip)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.noteError("listing trims of %s %s failed: %v", brand, model.Name, err)
		return nil
	}

	for _, trim := range trims {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.writer.ShouldSkip(trim.FullName) {
			continue
		}
		if err := c.processTrim(ctx, brand, model.Name, trim); err != nil {
			return err
		}
	}

	c.stats.Models.Add(1)
	return nil
}

func (c *Controller) processTrim(ctx context.Context, brand, model string, trim discovery.TrimRef) error {
	doc, err := c.client.Fetch(ctx, trim.URL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.noteError("fetching trim page %s failed: %v", trim.URL, err)
		return nil
	}

	row := c.engine.Extract(doc, discovery.CapitalizeBrand(brand), model, trim.Label)
	extraction.PostFill(row)

	if err := c.writer.Append(trim.FullName, row); err != nil {
		if errors.Is(err, dataset.ErrWriteFailuresExceeded) {
			c.noteError("aborting run: %v", err)
			return err
		}
		c.noteError("writing row for %s failed: %v", trim.FullName, err)
		return nil
	}

	c.stats.Trims.Add(1)
	slog.Debug("trim written", "identity", trim.FullName)
	return nil
}

// noteError counts one run error and records it in the error log.
func (c *Controller) noteError(format string, args ...any) {
	c.stats.Errors.Add(1)
	c.errlog.Errorf(format, args...)
}

// filterBrands applies the include list, then the exclude list, both
// case-insensitive. Discovery order is preserved.
func filterBrands(brands []discovery.BrandRef, include, exclude []string) []discovery.BrandRef {
	lowered := func(names []string) map[string]bool {
		if len(names) == 0 {
			return nil
		}
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[strings.ToLower(strings.TrimSpace(n))] = true
		}
		return m
	}
	in, out := lowered(include), lowered(exclude)

	var kept []discovery.BrandRef
	for _, b := range brands {
		name := strings.ToLower(b.Name)
		if in != nil && !in[name] {
			continue
		}
		if out[name] {
			continue
		}
		kept = append(kept, b)
	}
	return kept
}

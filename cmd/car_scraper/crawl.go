package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mostafa-M-Abla/car-advisor-chatbot/internal/scraper"
)

const defaultBaseURL = "https://eg.hatla2ee.com/en/new-car"

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl the catalog and write one row per trim",
	Long: "Walks brands, models and trims from the catalog root, extracts each trim's " +
		"features through the mapping table and appends rows to the output dataset. " +
		"Per-page failures are counted and skipped; the run always ends with a summary.",
	RunE: runCrawl,
}

var (
	crawlBaseURL    string
	crawlBrands     []string
	crawlExclude    []string
	crawlTestBrands []string
	crawlMinDelay   time.Duration
	crawlMaxDelay   time.Duration
	crawlBrandDelay time.Duration
	crawlWorkers    int
	crawlOut        string
	crawlErrorLog   string
	crawlMappings   string
	crawlUseBrowser bool
)

func init() {
	f := crawlCmd.Flags()
	f.StringVar(&crawlBaseURL, "base-url", "", "catalog root URL (default $CAR_SCRAPER_BASE_URL, then the hatla2ee new-car root)")
	f.StringSliceVar(&crawlBrands, "brands", nil, "restrict the crawl to these brands")
	f.StringSliceVar(&crawlExclude, "exclude", nil, "remove these brands from the crawl set")
	f.StringSliceVar(&crawlTestBrands, "test-brands", nil, "alias for --brands, for a restricted low-risk run")
	f.DurationVar(&crawlMinDelay, "min-delay", time.Second, "lower bound of the per-request delay band")
	f.DurationVar(&crawlMaxDelay, "max-delay", 3*time.Second, "upper bound of the per-request delay band")
	f.DurationVar(&crawlBrandDelay, "brand-delay", 3*time.Second, "extra pause before moving to the next brand")
	f.IntVar(&crawlWorkers, "workers", 1, "concurrent brand workers; above 1 shares one rate gate")
	f.StringVarP(&crawlOut, "out", "o", "scrapped_data.csv", "output dataset path")
	f.StringVar(&crawlErrorLog, "error-log", "error_log.txt", "append-only error log path")
	f.StringVar(&crawlMappings, "mappings", "features_mapping.csv", "feature mapping table path")
	f.BoolVar(&crawlUseBrowser, "use-browser", false, "render near-empty pages in a headless browser")

	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(_ *cobra.Command, _ []string) error {
	brands := crawlBrands
	if len(brands) == 0 {
		brands = crawlTestBrands
	}
	baseURL := crawlBaseURL
	if baseURL == "" {
		baseURL = envDefault("CAR_SCRAPER_BASE_URL", defaultBaseURL)
	}

	ctrl, err := scraper.New(scraper.Options{
		BaseURL:    baseURL,
		Dictionary: crawlMappings,
		Output:     crawlOut,
		ErrorLog:   crawlErrorLog,
		Brands:     brands,
		Exclude:    crawlExclude,
		MinDelay:   crawlMinDelay,
		MaxDelay:   crawlMaxDelay,
		BrandDelay: crawlBrandDelay,
		Workers:    crawlWorkers,
		UseBrowser: crawlUseBrowser,
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Per-item errors are counted in the summary, not fatal; Run returns an
	// error only when the whole crawl cannot proceed.
	_, err = ctrl.Run(ctx)
	return err
}

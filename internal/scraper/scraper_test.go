package scraper

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMapping = `website,output_csv,d_type
official price,Official_Price_EGP,int
market price,Market_Price_EGP,int
transmission type,Transmission_Type,string
esp,ESP,bool
`

// fixtureSite is a miniature catalog: two brands, three models, four trims.
func fixtureSite() *http.ServeMux {
	pages := map[string]string{
		"/en/new-car": `<html><body>
			<a href="/en/new-car/hyundai">Hyundai</a>
			<a href="/en/new-car/kia">Kia</a>
		</body></html>`,
		"/en/new-car/hyundai": `<html><body>
			<a href="/en/new-car/hyundai/Accent-RB">Accent RB</a>
			<a href="/en/new-car/hyundai/Tucson-NX4">Tucson NX4</a>
		</body></html>`,
		"/en/new-car/hyundai/Accent-RB": `<html><body>
			<a href="/en/new-car/hyundai/Accent-RB/101">1.6L Smart</a>
			<a href="/en/new-car/hyundai/Accent-RB/102">1.6L Comfort</a>
		</body></html>`,
		"/en/new-car/hyundai/Accent-RB/101": `<html><body>
			<p>Official Price: 1,200,000 EGP</p>
			<div>transmission typeautomatic</div>
			<ul> <li>ESP</li> </ul>
		</body></html>`,
		"/en/new-car/hyundai/Accent-RB/102": `<html><body>
			<p>Price on request</p>
		</body></html>`,
		"/en/new-car/hyundai/Tucson-NX4": `<html><body>
			<a href="/en/new-car/hyundai/Tucson-NX4/201">2.0L Base</a>
		</body></html>`,
		"/en/new-car/hyundai/Tucson-NX4/201": `<html><body>
			<p>Official Price: 1,800,000 EGP</p>
		</body></html>`,
		"/en/new-car/kia": `<html><body>
			<a href="/en/new-car/kia/Sportage">Sportage</a>
		</body></html>`,
		"/en/new-car/kia/Sportage": `<html><body>
			<a href="/en/new-car/kia/Sportage/301">GT Line</a>
		</body></html>`,
		"/en/new-car/kia/Sportage/301": `<html><body>
			<p>Official Price: 2,500,000 EGP</p>
			<p>Market Price: 2,650,000 EGP</p>
		</body></html>`,
	}

	mux := http.NewServeMux()
	for path, body := range pages {
		body := body
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		})
	}
	return mux
}

func testOptions(t *testing.T, srv *httptest.Server) Options {
	t.Helper()
	dir := t.TempDir()
	dictPath := filepath.Join(dir, "features_mapping.csv")
	require.NoError(t, os.WriteFile(dictPath, []byte(testMapping), 0o644))

	return Options{
		BaseURL:     srv.URL + "/en/new-car",
		Dictionary:  dictPath,
		Output:      filepath.Join(dir, "cars.csv"),
		ErrorLog:    filepath.Join(dir, "scraper_errors.log"),
		Workers:     1,
		MaxAttempts: 1,
		BackoffBase: time.Millisecond,
		SummaryTo:   &bytes.Buffer{},
	}
}

func runCrawl(t *testing.T, opts Options) (*Stats, error) {
	t.Helper()
	c, err := New(opts)
	require.NoError(t, err)
	defer c.Close()
	return c.Run(context.Background())
}

func readDataset(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

// failPaths serves 500 for any path accepted by match and delegates the
// rest to the fixture site.
func failPaths(h http.Handler, match func(string) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if match(r.URL.Path) {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func rowByTrim(records [][]string, trim string) []string {
	for _, r := range records[1:] {
		if r[2] == trim {
			return r
		}
	}
	return nil
}

func TestRun_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(fixtureSite())
	defer srv.Close()

	opts := testOptions(t, srv)
	stats, err := runCrawl(t, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(2), stats.Brands.Load())
	assert.Equal(t, int64(3), stats.Models.Load())
	assert.Equal(t, int64(4), stats.Trims.Load())
	assert.Equal(t, int64(0), stats.Errors.Load())

	records := readDataset(t, opts.Output)
	require.Len(t, records, 5)
	assert.Equal(t, []string{
		"car_brand", "car_model", "car_trim",
		"Official_Price_EGP", "Market_Price_EGP", "Transmission_Type", "ESP",
	}, records[0])

	smart := rowByTrim(records, "1.6L Smart")
	require.NotNil(t, smart)
	assert.Equal(t, []string{
		"Hyundai", "Accent-RB", "1.6L Smart",
		"1200000", "1200000", "automatic", "True",
	}, smart)

	// No recognizable price leaves the fields empty, never a sentinel.
	comfort := rowByTrim(records, "1.6L Comfort")
	require.NotNil(t, comfort)
	assert.Equal(t, "", comfort[3])
	assert.Equal(t, "", comfort[4])

	// A listed market price is never overwritten by the official one.
	gtline := rowByTrim(records, "GT Line")
	require.NotNil(t, gtline)
	assert.Equal(t, "2500000", gtline[3])
	assert.Equal(t, "2650000", gtline[4])

	summary := opts.SummaryTo.(*bytes.Buffer).String()
	assert.Contains(t, summary, "brands processed: 2")
	assert.Contains(t, summary, "errors:           0")
	assert.Contains(t, summary, opts.Output)
}

func TestRun_SequentialOrderIsDeterministic(t *testing.T) {
	srv := httptest.NewServer(fixtureSite())
	defer srv.Close()

	opts := testOptions(t, srv)
	_, err := runCrawl(t, opts)
	require.NoError(t, err)

	records := readDataset(t, opts.Output)
	var trims []string
	for _, r := range records[1:] {
		trims = append(trims, r[2])
	}
	assert.Equal(t, []string{"1.6L Smart", "1.6L Comfort", "2.0L Base", "GT Line"}, trims)
}

func TestRun_BrandFilters(t *testing.T) {
	srv := httptest.NewServer(fixtureSite())
	defer srv.Close()

	opts := testOptions(t, srv)
	opts.Brands = []string{"HYUNDAI"}
	stats, err := runCrawl(t, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Brands.Load())
	assert.Equal(t, int64(3), stats.Trims.Load())

	opts = testOptions(t, srv)
	opts.Exclude = []string{"Hyundai"}
	stats, err = runCrawl(t, opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Brands.Load())
	assert.Equal(t, int64(1), stats.Trims.Load())

	records := readDataset(t, opts.Output)
	require.Len(t, records, 2)
	assert.Equal(t, "Kia", records[1][0])
}

func TestRun_PartialFailureSkipsOnlyTheDeadModel(t *testing.T) {
	srv := httptest.NewServer(failPaths(fixtureSite(), func(path string) bool {
		return strings.HasPrefix(path, "/en/new-car/hyundai/Accent-RB/")
	}))
	defer srv.Close()

	opts := testOptions(t, srv)
	opts.MaxAttempts = 2
	stats, err := runCrawl(t, opts)
	require.NoError(t, err)

	// Both Accent trims die, the sibling model and the other brand survive.
	assert.Equal(t, int64(2), stats.Errors.Load())
	assert.Equal(t, int64(2), stats.Trims.Load())
	assert.Equal(t, int64(2), stats.Brands.Load())

	records := readDataset(t, opts.Output)
	require.Len(t, records, 3)
	assert.NotNil(t, rowByTrim(records, "2.0L Base"))
	assert.NotNil(t, rowByTrim(records, "GT Line"))

	// The error log keeps one line per failed attempt plus the final
	// give-up per trim.
	logData, readErr := os.ReadFile(opts.ErrorLog)
	require.NoError(t, readErr)
	assert.Contains(t, string(logData), "ERROR:")
}

func TestRun_DeadModelListingCountsOnce(t *testing.T) {
	srv := httptest.NewServer(failPaths(fixtureSite(), func(path string) bool {
		return path == "/en/new-car/hyundai/Tucson-NX4"
	}))
	defer srv.Close()

	opts := testOptions(t, srv)
	stats, err := runCrawl(t, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Errors.Load())
	assert.Equal(t, int64(2), stats.Models.Load())
	assert.Equal(t, int64(3), stats.Trims.Load())
}

func TestRun_ConcurrentWorkersWriteEachTrimOnce(t *testing.T) {
	srv := httptest.NewServer(fixtureSite())
	defer srv.Close()

	opts := testOptions(t, srv)
	opts.Workers = 3
	opts.MinDelay = time.Millisecond
	opts.MaxDelay = 2 * time.Millisecond
	stats, err := runCrawl(t, opts)
	require.NoError(t, err)

	assert.Equal(t, int64(4), stats.Trims.Load())

	records := readDataset(t, opts.Output)
	require.Len(t, records, 5)
	seen := make(map[string]int)
	for _, r := range records[1:] {
		seen[strings.Join(r[:3], " ")]++
	}
	for identity, n := range seen {
		assert.Equal(t, 1, n, identity)
	}
}

func TestRun_CancelledContextStillPrintsSummary(t *testing.T) {
	srv := httptest.NewServer(fixtureSite())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := testOptions(t, srv)
	c, err := New(opts)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, opts.SummaryTo.(*bytes.Buffer).String(), "Scraping finished")
}

func TestNew_MissingDictionaryIsFatal(t *testing.T) {
	opts := Options{
		BaseURL:    "https://example.com/en/new-car",
		Dictionary: filepath.Join(t.TempDir(), "nope.csv"),
		Output:     filepath.Join(t.TempDir(), "cars.csv"),
		ErrorLog:   filepath.Join(t.TempDir(), "errors.log"),
		Workers:    1,
	}
	_, err := New(opts)
	assert.Error(t, err)
}

func TestNew_RejectsBadOptions(t *testing.T) {
	opts := Options{BaseURL: "not a url", Dictionary: "x", Output: "y", ErrorLog: "z", Workers: 1}
	_, err := New(opts)
	assert.Error(t, err)

	opts = Options{BaseURL: "https://example.com", Dictionary: "x", Output: "y", ErrorLog: "z", Workers: 99}
	_, err = New(opts)
	assert.Error(t, err)
}

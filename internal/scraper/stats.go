package scraper

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"
)

// Stats are the run counters. Atomic so concurrent brand workers can
// update them without a lock; read them after Run returns.
type Stats struct {
	Brands atomic.Int64
	Models atomic.Int64
	Trims  atomic.Int64
	Errors atomic.Int64

	started time.Time
	elapsed time.Duration
}

func (s *Stats) start()  { s.started = time.Now() }
func (s *Stats) finish() { s.elapsed = time.Since(s.started) }

// Elapsed is the wall-clock duration of the run, fixed once it finishes.
func (s *Stats) Elapsed() time.Duration { return s.elapsed }

// Summary renders the end-of-run report.
func (s *Stats) Summary(runID, output string) string {
	var b strings.Builder
	b.WriteString("\nScraping finished\n")
	fmt.Fprintf(&b, "  run id:           %s\n", runID)
	fmt.Fprintf(&b, "  brands processed: %d\n", s.Brands.Load())
	fmt.Fprintf(&b, "  models processed: %d\n", s.Models.Load())
	fmt.Fprintf(&b, "  trims processed:  %d\n", s.Trims.Load())
	fmt.Fprintf(&b, "  errors:           %d\n", s.Errors.Load())
	fmt.Fprintf(&b, "  elapsed:          %s\n", s.elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "  output:           %s\n", output)
	return b.String()
}

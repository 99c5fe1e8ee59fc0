// Package crawl walks one website breadth-first within page, depth, domain,
// and pattern bounds, extracting text and chunking it for indexing. Frontier
// and dedup state live in a single owner goroutine; fetches run on a small
// worker pool with a per-worker politeness limiter.
package crawl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sitesage/sitesage/internal/chunk"
)

// PageStatus classifies the outcome of one frontier entry.
type PageStatus string

const (
	StatusFetched  PageStatus = "fetched"
	StatusFailed   PageStatus = "failed"
	StatusSkipped  PageStatus = "skipped"  // fetched but not HTML
	StatusExcluded PageStatus = "excluded" // matched an exclude pattern, never fetched
)

// PageRecord is the per-URL outcome of one crawl generation. At most one
// record exists per canonical URL per generation.
type PageRecord struct {
	URL         string
	Depth       int
	Title       string
	ContentHash string // Fingerprint of the extracted text; set only when fetched
	FetchedAt   time.Time
	Status      PageStatus
}

// Fingerprint returns the sha256 hex digest of the whitespace-collapsed
// text. It is the per-page unit of change detection.
func Fingerprint(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(collapsed))
	return hex.EncodeToString(sum[:])
}

// Config bounds one crawl run.
type Config struct {
	Mode            Mode
	MaxPages        int
	MaxDepth        int
	Workers         int
	Delay           time.Duration
	SameDomainOnly  bool
	ExcludePatterns []string
}

func (c Config) bounds() (maxPages, maxDepth int) {
	if c.Mode == ModeSingle {
		return 1, 0
	}
	return c.MaxPages, c.MaxDepth
}

func (c Config) workerCount() int {
	switch {
	case c.Workers < 1:
		return 1
	case c.Workers > 8:
		return 8
	default:
		return c.Workers
	}
}

// Result aggregates one crawl generation.
type Result struct {
	Pages   []PageRecord
	Chunks  []chunk.Chunk
	Fetched int
	Failed  int
	Skipped int
}

type Crawler struct {
	fetcher *Fetcher
	chunker *chunk.Chunker
	cfg     Config
	log     *slog.Logger
}

func New(fetcher *Fetcher, chunker *chunk.Chunker, cfg Config, log *slog.Logger) *Crawler {
	if log == nil {
		log = slog.Default()
	}
	return &Crawler{fetcher: fetcher, chunker: chunker, cfg: cfg, log: log}
}

type fetchJob struct {
	url   string
	depth int
}

type fetchOutcome struct {
	job    fetchJob
	record PageRecord
	links  []string
	chunks []chunk.Chunk
}

// Crawl traverses the site from seed. A fetch failure marks its page Failed
// and traversal continues; only an invalid seed or context cancellation
// aborts the run.
func (c *Crawler) Crawl(ctx context.Context, seed string) (*Result, error) {
	seedURL, err := url.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("invalid seed url %q: %w", seed, err)
	}
	if seedURL.Scheme == "" || seedURL.Host == "" {
		return nil, fmt.Errorf("invalid seed url %q: missing scheme or host", seed)
	}

	filter := newLinkFilter(seedURL, c.cfg.SameDomainOnly, c.cfg.ExcludePatterns)

	jobs := make(chan fetchJob)
	outcomes := make(chan fetchOutcome)
	var wg sync.WaitGroup
	for i := 0; i < c.cfg.workerCount(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.worker(ctx, jobs, outcomes)
		}()
	}

	res, runErr := c.runFrontier(ctx, seedURL, filter, jobs, outcomes)

	close(jobs)
	go func() {
		wg.Wait()
		close(outcomes)
	}()
	for range outcomes {
		// release workers mid-send after an aborted frontier
	}

	if runErr != nil {
		return nil, runErr
	}
	return res, nil
}

// runFrontier owns the BFS queue and the seen set. Workers never touch
// either; they only turn jobs into outcomes.
func (c *Crawler) runFrontier(ctx context.Context, seedURL *url.URL, filter *linkFilter, jobs chan<- fetchJob, outcomes <-chan fetchOutcome) (*Result, error) {
	maxPages, maxDepth := c.cfg.bounds()
	seed := canonicalURL(seedURL)
	res := &Result{}

	if filter.check(seedURL) != linkOK {
		c.log.Warn("seed url rejected by crawl filters", "url", seed)
		res.Pages = append(res.Pages, PageRecord{URL: seed, Status: StatusExcluded})
		return res, nil
	}

	seen := map[string]bool{seed: true}
	queue := []fetchJob{{url: seed, depth: 0}}
	dispatched := 0
	inFlight := 0

	handle := func(out fetchOutcome) {
		inFlight--
		res.Pages = append(res.Pages, out.record)
		switch out.record.Status {
		case StatusFetched:
			res.Fetched++
			res.Chunks = append(res.Chunks, out.chunks...)
		case StatusFailed:
			res.Failed++
		case StatusSkipped:
			res.Skipped++
		}
		if out.record.Status != StatusFetched || out.job.depth >= maxDepth {
			return
		}
		for _, link := range out.links {
			if seen[link] {
				continue
			}
			u, err := url.Parse(link)
			if err != nil {
				continue
			}
			switch filter.check(u) {
			case linkOK:
				seen[link] = true
				queue = append(queue, fetchJob{url: link, depth: out.job.depth + 1})
			case rejectPattern:
				seen[link] = true
				res.Pages = append(res.Pages, PageRecord{URL: link, Depth: out.job.depth + 1, Status: StatusExcluded})
			default:
				// off-domain, non-http, or binary: not part of this crawl
			}
		}
	}

	for len(queue) > 0 || inFlight > 0 {
		var dispatch chan<- fetchJob
		var next fetchJob
		if len(queue) > 0 && dispatched < maxPages {
			next = queue[0]
			dispatch = jobs
		}
		if dispatch == nil && inFlight == 0 {
			break // page cap reached with nothing left in flight
		}
		select {
		case dispatch <- next:
			queue = queue[1:]
			dispatched++
			inFlight++
		case out := <-outcomes:
			handle(out)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// An aborted crawl never returns partial results, even when the last
	// outcome raced ahead of the Done signal.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.log.Info("crawl finished",
		"seed", seed,
		"mode", c.cfg.Mode,
		"fetched", res.Fetched,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"chunks", len(res.Chunks))
	return res, nil
}

func (c *Crawler) worker(ctx context.Context, jobs <-chan fetchJob, outcomes chan<- fetchOutcome) {
	limiter := rate.NewLimiter(politenessRate(c.cfg.Delay), 1)
	for job := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			outcomes <- fetchOutcome{job: job, record: PageRecord{
				URL: job.url, Depth: job.depth, FetchedAt: time.Now().UTC(), Status: StatusFailed,
			}}
			continue
		}
		outcomes <- c.visit(ctx, job)
	}
}

func politenessRate(delay time.Duration) rate.Limit {
	if delay <= 0 {
		return rate.Inf
	}
	return rate.Every(delay)
}

func (c *Crawler) visit(ctx context.Context, job fetchJob) fetchOutcome {
	out := fetchOutcome{job: job}
	now := time.Now().UTC()

	res, err := c.fetcher.Fetch(ctx, job.url)
	if err != nil {
		c.log.Warn("fetch failed", "url", job.url, "depth", job.depth, "err", err)
		out.record = PageRecord{URL: job.url, Depth: job.depth, FetchedAt: now, Status: StatusFailed}
		return out
	}
	if !res.IsHTML() {
		c.log.Debug("skipping non-html", "url", job.url, "content_type", res.ContentType)
		out.record = PageRecord{URL: job.url, Depth: job.depth, FetchedAt: now, Status: StatusSkipped}
		return out
	}

	base, err := url.Parse(job.url)
	if err != nil {
		base = nil
	}
	ex := Extract(res.Body, base)

	out.record = PageRecord{
		URL:         job.url,
		Depth:       job.depth,
		Title:       ex.Title,
		ContentHash: Fingerprint(ex.Text),
		FetchedAt:   now,
		Status:      StatusFetched,
	}
	out.links = ex.Links
	out.chunks = c.chunker.Split(job.url, ex.Title, ex.Text)
	return out
}

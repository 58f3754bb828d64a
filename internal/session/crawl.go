package session

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/wikigraph/internal/logger"
	"github.com/kittclouds/wikigraph/pkg/article"
	"github.com/kittclouds/wikigraph/pkg/graph"
)

// DefaultCrawlConcurrency bounds parallel fetches within one crawl level.
const DefaultCrawlConcurrency = 4

// CrawlResult totals one crawl.
type CrawlResult struct {
	Visited    int `json:"visited"`
	Failed     int `json:"failed"`
	NodesAdded int `json:"nodesAdded"`
	EdgesAdded int `json:"edgesAdded"`
}

type crawlTarget struct {
	url    string
	parent string
}

type crawlFetch struct {
	target crawlTarget
	record article.Record
	err    error
}

// Crawl visits url and then follows scraped links breadth first, depth
// levels deep. Each level is fetched concurrently and merged in link order
// with the linking article as the active node, so the graph matches a
// serial walk. Articles already in the graph are not fetched again. Failed
// fetches are counted and skipped; the root article ends up active.
func (e *Explorer) Crawl(ctx context.Context, url string, depth, concurrency int) (CrawlResult, error) {
	var total CrawlResult
	root, err := e.Visit(ctx, url)
	if err != nil {
		return total, err
	}
	total.Visited = 1
	total.NodesAdded += root.NodesAdded
	total.EdgesAdded += root.EdgesAdded

	if concurrency <= 0 {
		concurrency = DefaultCrawlConcurrency
	}
	seen := map[string]bool{root.SourceID: true}
	frontier := e.crawlTargets(root.SourceID, seen)

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		fetched, err := e.fetchLevel(ctx, frontier, concurrency)
		if err != nil {
			return total, err
		}
		var next []crawlTarget
		for _, f := range fetched {
			if f.err != nil {
				total.Failed++
				logger.Warn("Crawl skipped article", "url", f.target.url, "error", f.err)
				continue
			}
			res, err := e.mergeFrom(f.record, f.target.url, f.target.parent)
			if err != nil {
				total.Failed++
				continue
			}
			total.Visited++
			total.NodesAdded += res.NodesAdded
			total.EdgesAdded += res.EdgesAdded
			next = append(next, e.crawlTargets(res.SourceID, seen)...)
		}
		logger.Debug("Crawl level done", "level", level, "fetched", len(fetched))
		frontier = next
	}

	if err := e.Select(root.SourceID); err != nil && !errors.Is(err, ErrUnknownNode) {
		return total, err
	}
	return total, nil
}

// crawlTargets lists the unseen links of id and marks them seen.
func (e *Explorer) crawlTargets(id string, seen map[string]bool) []crawlTarget {
	node, ok := e.graph.Node(id)
	if !ok {
		return nil
	}
	var out []crawlTarget
	for _, l := range node.Links {
		target := article.IDFromURL(l.URL)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		if _, exists := e.graph.Node(target); exists {
			continue
		}
		out = append(out, crawlTarget{url: l.URL, parent: id})
	}
	return out
}

func (e *Explorer) fetchLevel(ctx context.Context, targets []crawlTarget, concurrency int) ([]crawlFetch, error) {
	if e.scraper == nil {
		return nil, fmt.Errorf("%w: no scraper configured", ErrCouldNotLoad)
	}
	out := make([]crawlFetch, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, t := range targets {
		g.Go(func() error {
			rec, err := e.scraper.Scrape(gctx, t.url)
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			out[i] = crawlFetch{target: t, record: rec, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// mergeFrom merges record as if visited while parent was active.
func (e *Explorer) mergeFrom(record article.Record, originURL, parent string) (graph.MergeResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mergeLocked(record, originURL, parent)
}

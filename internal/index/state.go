// Package index reconciles crawl results against the published generation:
// it detects which pages actually changed, turns the difference into vector
// store operations, and atomically publishes the new generation snapshot.
package index

import "time"

// PageEntry is one page's contribution to a generation snapshot.
type PageEntry struct {
	ContentHash string
	ChunkCount  int
}

// State is an immutable snapshot of one published generation. Commits
// produce a fresh State; nothing mutates a published one, so readers always
// observe a whole generation.
type State struct {
	Generation  int64
	UpdatedAt   time.Time
	CrawlDigest string
	Pages       map[string]PageEntry // canonical URL -> entry, fetched pages only
	ChunkCount  int
}

func emptyState() *State {
	return &State{Pages: map[string]PageEntry{}}
}

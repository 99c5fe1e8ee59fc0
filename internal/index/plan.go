package index

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/sitesage/sitesage/internal/chunk"
	"github.com/sitesage/sitesage/internal/crawl"
)

// CrawlDigest folds the fetched pages of a crawl into a single hash. Each
// page contributes its canonical URL together with its content fingerprint,
// so content moving between pages changes the digest even though the set of
// fingerprints stays the same. Entries are sorted first; crawl order does
// not matter.
func CrawlDigest(pages []crawl.PageRecord) string {
	entries := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Status != crawl.StatusFetched {
			continue
		}
		entries = append(entries, p.URL+"\x00"+p.ContentHash)
	}
	sort.Strings(entries)

	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Plan is the reconciliation between the previous generation and a fresh
// crawl: the chunks to upsert, the chunk ids to delete, and the page map the
// next State will publish. Changed is false when the whole-crawl digest
// matches the previous generation, in which case both operation lists are
// empty.
type Plan struct {
	Digest  string
	Changed bool
	Pages   map[string]PageEntry
	Upserts []chunk.Chunk
	Deletes []string
}

// BuildPlan diffs a crawl result against the previous generation. Pages
// whose fingerprint is unchanged are carried over without re-embedding;
// changed and new pages contribute their chunks to Upserts; pages that
// shrank or disappeared contribute their stale chunk ids to Deletes.
func BuildPlan(prev *State, res *crawl.Result) *Plan {
	if prev == nil {
		prev = emptyState()
	}

	plan := &Plan{Digest: CrawlDigest(res.Pages)}
	if plan.Digest == prev.CrawlDigest {
		plan.Pages = prev.Pages
		return plan
	}
	plan.Changed = true

	byURL := make(map[string][]chunk.Chunk)
	for _, ch := range res.Chunks {
		byURL[ch.SourceURL] = append(byURL[ch.SourceURL], ch)
	}

	plan.Pages = make(map[string]PageEntry, len(res.Pages))
	for _, p := range res.Pages {
		if p.Status != crawl.StatusFetched {
			continue
		}
		chunks := byURL[p.URL]
		plan.Pages[p.URL] = PageEntry{ContentHash: p.ContentHash, ChunkCount: len(chunks)}

		prevEntry := prev.Pages[p.URL]
		if prevEntry.ContentHash == p.ContentHash {
			continue
		}
		plan.Upserts = append(plan.Upserts, chunks...)
		// A page that shrank leaves trailing ids behind; sequence indexes
		// restart at zero on every re-chunk, so everything past the new
		// count is stale.
		for seq := len(chunks); seq < prevEntry.ChunkCount; seq++ {
			plan.Deletes = append(plan.Deletes, chunk.ID(p.URL, seq))
		}
	}

	// Pages absent from this crawl, for whatever reason, lose their chunks.
	for url, entry := range prev.Pages {
		if _, still := plan.Pages[url]; still {
			continue
		}
		for seq := 0; seq < entry.ChunkCount; seq++ {
			plan.Deletes = append(plan.Deletes, chunk.ID(url, seq))
		}
	}
	sort.Strings(plan.Deletes)

	return plan
}

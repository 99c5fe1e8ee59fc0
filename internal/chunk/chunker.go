// Package chunk splits extracted page text into bounded, overlap-free
// segments suitable for embedding. Splitting is deterministic: identical
// input text always yields the identical chunk sequence, which keeps
// content-hash-based change detection sound.
package chunk

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxChars bounds chunk length when no explicit size is configured.
const DefaultMaxChars = 1000

// Chunk is a contiguous slice of one page's text, the unit of indexing and
// retrieval. Chunks are never mutated after creation: when a page changes,
// its chunks are deleted and recreated rather than edited in place.
type Chunk struct {
	ID            string
	SourceURL     string
	SourceTitle   string
	Text          string
	SequenceIndex int
}

// ID derives the deterministic chunk id for a page URL and sequence index.
// Re-chunking the same page reproduces the same ids, so an upsert overwrites
// the prior entry instead of duplicating it.
func ID(sourceURL string, seq int) string {
	return fmt.Sprintf("%s#%d", sourceURL, seq)
}

// Chunker packs page text into chunks of at most maxChars characters,
// breaking at paragraph boundaries first, then sentence boundaries, then
// word boundaries. Only a single word longer than the limit is hard-cut.
type Chunker struct {
	maxChars int
}

func NewChunker(maxChars int) *Chunker {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Chunker{maxChars: maxChars}
}

// Split chunks text in document order. Empty or whitespace-only input yields
// no chunks.
func (c *Chunker) Split(sourceURL, sourceTitle, text string) []Chunk {
	pieces := c.pack(paragraphs(text), "\n\n", c.bySentence)
	if len(pieces) == 0 {
		return nil
	}
	chunks := make([]Chunk, len(pieces))
	for i, piece := range pieces {
		chunks[i] = Chunk{
			ID:            ID(sourceURL, i),
			SourceURL:     sourceURL,
			SourceTitle:   sourceTitle,
			Text:          piece,
			SequenceIndex: i,
		}
	}
	return chunks
}

// pack greedily joins pieces with sep while the result stays within the
// limit. A piece that alone exceeds the limit is handed to oversize for a
// finer-grained split (nil oversize means hard rune cuts).
func (c *Chunker) pack(pieces []string, sep string, oversize func(string) []string) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	sepLen := utf8.RuneCountInString(sep)

	flush := func() {
		if curLen == 0 {
			return
		}
		out = append(out, cur.String())
		cur.Reset()
		curLen = 0
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if n > c.maxChars {
			flush()
			if oversize != nil {
				out = append(out, oversize(piece)...)
			} else {
				out = append(out, hardCut(piece, c.maxChars)...)
			}
			continue
		}
		need := n
		if curLen > 0 {
			need += sepLen
		}
		if curLen+need > c.maxChars {
			flush()
			need = n
		}
		if curLen > 0 {
			cur.WriteString(sep)
		}
		cur.WriteString(piece)
		curLen += need
	}
	flush()
	return out
}

func (c *Chunker) bySentence(para string) []string {
	return c.pack(sentences(para), " ", c.byWord)
}

func (c *Chunker) byWord(sent string) []string {
	return c.pack(strings.Fields(sent), " ", nil)
}

// paragraphs splits text on blank lines; lines inside a paragraph are joined
// with single spaces.
func paragraphs(text string) []string {
	var paras []string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(cur) > 0 {
				paras = append(paras, strings.Join(cur, " "))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paras = append(paras, strings.Join(cur, " "))
	}
	return paras
}

// sentences splits after terminal punctuation followed by a space or end of
// text. Abbreviation-aware splitting is not attempted.
func sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	emit := func(end int) {
		seg := strings.TrimSpace(string(runes[start:end]))
		if seg != "" {
			out = append(out, seg)
		}
		start = end
	}
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 == len(runes) || runes[i+1] == ' ' {
			emit(i + 1)
		}
	}
	if start < len(runes) {
		emit(len(runes))
	}
	return out
}

func hardCut(text string, max int) []string {
	runes := []rune(text)
	var out []string
	for len(runes) > max {
		out = append(out, string(runes[:max]))
		runes = runes[max:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}

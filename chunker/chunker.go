// Package chunker splits extracted page text into overlapping, bounded-size
// chunks with positional metadata. Chunk offsets are absolute within the
// cleaned page text and the union of chunk ranges covers it without gaps,
// which the query pipeline relies on for ordering and span merging.
package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TextChunk is the unit of embedding and retrieval. Immutable once created;
// chunk ids are generated fresh per call and never reused across re-chunking.
type TextChunk struct {
	ChunkID      string
	Text         string
	DocumentID   string
	DocumentName string
	PageNumber   int
	StartChar    int
	EndChar      int
}

type Chunker struct {
	size    int
	overlap int
}

// New returns a Chunker. The overlap must be smaller than the chunk size;
// violating that is a configuration error surfaced here, not per chunk.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must satisfy 0 <= overlap < size, got overlap=%d size=%d", overlap, size)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

var (
	crRegexp         = regexp.MustCompile(`\r\n?`)
	hyphenBreak      = regexp.MustCompile(`([a-zA-Z])-\n([a-zA-Z])`)
	manyNewlines     = regexp.MustCompile(`\n{3,}`)
	manySpaces       = regexp.MustCompile(`[ \t]{2,}`)
	spaceBeforePunct = regexp.MustCompile(` +([.,;:!?])`)
)

// Clean normalizes raw extracted text: collapses repeated whitespace, strips
// form feeds, rejoins hyphen-split words across line breaks, and removes
// stray spaces before punctuation. All chunk offsets refer to this cleaned
// form of the page text.
func Clean(text string) string {
	text = crRegexp.ReplaceAllString(text, "\n")
	text = strings.ReplaceAll(text, "\f", "")
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = manySpaces.ReplaceAllString(text, " ")
	text = spaceBeforePunct.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

// Chunk splits one page of text. Empty or whitespace-only input yields zero
// chunks. Splitting prefers paragraph boundaries; a new chunk is seeded with
// the trailing overlap characters of the chunk it follows. Paragraphs larger
// than the chunk size fall back to sentence-level and finally hard
// character splits, so the call always terminates and never emits an empty
// chunk.
func (c *Chunker) Chunk(text string, pageNumber int, documentID, documentName string) []TextChunk {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil
	}

	spans := c.packParagraphs(cleaned, paragraphSpans(cleaned))

	chunks := make([]TextChunk, 0, len(spans))
	for _, sp := range spans {
		chunks = append(chunks, TextChunk{
			ChunkID:      uuid.NewString(),
			Text:         cleaned[sp.start:sp.end],
			DocumentID:   documentID,
			DocumentName: documentName,
			PageNumber:   pageNumber,
			StartChar:    sp.start,
			EndChar:      sp.end,
		})
	}
	return chunks
}

type span struct {
	start int
	end   int
}

// paragraphSpans partitions s into contiguous paragraph spans, each
// including its trailing blank-line separator so the partition covers every
// character.
func paragraphSpans(s string) []span {
	spans := make([]span, 0, 8)
	start := 0
	for start < len(s) {
		idx := strings.Index(s[start:], "\n\n")
		if idx < 0 {
			spans = append(spans, span{start: start, end: len(s)})
			break
		}
		end := start + idx + 2
		spans = append(spans, span{start: start, end: end})
		start = end
	}
	return spans
}

func (c *Chunker) packParagraphs(s string, paras []span) []span {
	var out []span
	cur := paras[0]
	for _, p := range paras[1:] {
		if p.end-cur.start > c.size && cur.end > cur.start {
			c.flush(s, cur, &out)
			cur = span{start: overlapStart(s, cur, c.overlap), end: p.end}
			continue
		}
		cur.end = p.end
	}
	c.flush(s, cur, &out)
	return out
}

// flush emits sp, splitting it at sentence boundaries (then hard character
// counts) when it exceeds the chunk size.
func (c *Chunker) flush(s string, sp span, out *[]span) {
	if sp.end-sp.start <= c.size {
		*out = append(*out, sp)
		return
	}

	sents := sentenceSpans(s, sp)
	cur := sents[0]
	for _, sn := range sents[1:] {
		if sn.end-cur.start > c.size && cur.end > cur.start {
			c.hardFlush(s, cur, out)
			cur = span{start: overlapStart(s, cur, c.overlap), end: sn.end}
			continue
		}
		cur.end = sn.end
	}
	c.hardFlush(s, cur, out)
}

// hardFlush is the termination guarantee: byte-count splitting with overlap
// when no softer boundary fits. Cut points back up to the nearest rune
// boundary so a chunk never starts or ends mid-rune.
func (c *Chunker) hardFlush(s string, sp span, out *[]span) {
	start := sp.start
	for {
		end := start + c.size
		if end >= sp.end {
			*out = append(*out, span{start: start, end: sp.end})
			return
		}
		end = backUpToRuneStart(s, end)
		if end <= start {
			// A single rune wider than the chunk size still has to advance.
			_, width := utf8.DecodeRuneInString(s[start:])
			end = start + width
			if end >= sp.end {
				*out = append(*out, span{start: start, end: sp.end})
				return
			}
		}
		*out = append(*out, span{start: start, end: end})
		next := backUpToRuneStart(s, end-c.overlap)
		if next <= start {
			next = end
		}
		start = next
	}
}

func overlapStart(s string, closed span, overlap int) int {
	start := closed.end - overlap
	if start < closed.start {
		start = closed.start
	}
	return backUpToRuneStart(s, start)
}

// backUpToRuneStart moves i left to the nearest rune boundary in s. Span
// starts are always rune boundaries, so this never crosses one.
func backUpToRuneStart(s string, i int) int {
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// sentenceSpans partitions sp into contiguous sentence spans. A sentence
// ends after '.', '!' or '?' followed by whitespace (the whitespace stays
// with the sentence it closes).
func sentenceSpans(s string, sp span) []span {
	spans := make([]span, 0, 8)
	start := sp.start
	for i := sp.start; i < sp.end; i++ {
		switch s[i] {
		case '.', '!', '?':
			if i+1 < sp.end && (s[i+1] == ' ' || s[i+1] == '\n') {
				spans = append(spans, span{start: start, end: i + 2})
				start = i + 2
				i++
			}
		}
	}
	if start < sp.end {
		spans = append(spans, span{start: start, end: sp.end})
	}
	return spans
}

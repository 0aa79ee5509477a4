package chunker

import (
	"sort"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewRejectsBadParameters(t *testing.T) {
	if _, err := New(0, 0); err == nil {
		t.Fatalf("expected error for zero chunk size")
	}
	if _, err := New(100, 100); err == nil {
		t.Fatalf("expected error for overlap equal to size")
	}
	if _, err := New(100, 150); err == nil {
		t.Fatalf("expected error for overlap larger than size")
	}
	if _, err := New(100, -1); err == nil {
		t.Fatalf("expected error for negative overlap")
	}
	if _, err := New(100, 20); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCleanNormalizesExtractedText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"crlf", "line one\r\nline two", "line one\nline two"},
		{"form feed", "before\fafter", "beforeafter"},
		{"hyphen break", "exam-\nple", "example"},
		{"many newlines", "a\n\n\n\n\nb", "a\n\nb"},
		{"repeated spaces", "too   many    spaces", "too many spaces"},
		{"space before punctuation", "odd , spacing .", "odd, spacing."},
		{"surrounding whitespace", "  trimmed  \n", "trimmed"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestChunkEmptyInputYieldsNoChunks(t *testing.T) {
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	for _, text := range []string{"", "   ", "\n\n\n", "\f"} {
		if chunks := c.Chunk(text, 1, "doc-1", "doc.pdf"); len(chunks) != 0 {
			t.Fatalf("expected no chunks for %q, got %d", text, len(chunks))
		}
	}
}

func TestChunkShortTextProducesSingleChunk(t *testing.T) {
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	text := "The cat sat on the mat."
	chunks := c.Chunk(text, 3, "doc-1", "doc.pdf")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	chunk := chunks[0]
	if chunk.Text != text {
		t.Fatalf("unexpected chunk text: %q", chunk.Text)
	}
	if chunk.StartChar != 0 || chunk.EndChar != len(text) {
		t.Fatalf("unexpected offsets: [%d, %d)", chunk.StartChar, chunk.EndChar)
	}
	if chunk.PageNumber != 3 || chunk.DocumentID != "doc-1" || chunk.DocumentName != "doc.pdf" {
		t.Fatalf("metadata not carried: %+v", chunk)
	}
	if chunk.ChunkID == "" {
		t.Fatalf("chunk id must be set")
	}
}

// assertCoverage checks the structural invariants every chunking must hold:
// offsets match the cleaned text, no chunk is empty or oversized, and the
// union of chunk ranges covers the cleaned text without gaps.
func assertCoverage(t *testing.T, cleaned string, chunks []TextChunk, size int) {
	t.Helper()

	if len(chunks) == 0 {
		t.Fatalf("expected chunks for non-empty text")
	}

	sorted := make([]TextChunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartChar < sorted[j].StartChar })

	if sorted[0].StartChar != 0 {
		t.Fatalf("coverage starts at %d, want 0", sorted[0].StartChar)
	}

	end := 0
	for _, chunk := range sorted {
		if chunk.EndChar <= chunk.StartChar {
			t.Fatalf("empty chunk [%d, %d)", chunk.StartChar, chunk.EndChar)
		}
		if chunk.EndChar-chunk.StartChar > size {
			t.Fatalf("chunk [%d, %d) exceeds size %d", chunk.StartChar, chunk.EndChar, size)
		}
		if chunk.Text != cleaned[chunk.StartChar:chunk.EndChar] {
			t.Fatalf("chunk text does not match offsets [%d, %d)", chunk.StartChar, chunk.EndChar)
		}
		if chunk.StartChar > end {
			t.Fatalf("gap in coverage: chunk starts at %d, covered up to %d", chunk.StartChar, end)
		}
		if chunk.EndChar > end {
			end = chunk.EndChar
		}
	}
	if end != len(cleaned) {
		t.Fatalf("coverage ends at %d, want %d", end, len(cleaned))
	}
}

func TestChunkCoversParagraphText(t *testing.T) {
	paragraphs := []string{
		"The study followed two hundred participants over five years. Each participant completed quarterly surveys. Attrition stayed below ten percent.",
		"Results indicate a strong correlation between sleep duration and recall accuracy. The effect held across all age groups.",
		"Limitations include self-reported sleep data and a single geographic region. Future work should add actigraphy.",
		"Funding was provided by the national research council. The authors declare no competing interests.",
	}
	text := strings.Join(paragraphs, "\n\n")

	c, err := New(120, 30)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	chunks := c.Chunk(text, 1, "doc-1", "study.pdf")
	assertCoverage(t, Clean(text), chunks, 120)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for %d chars, got %d", len(text), len(chunks))
	}
}

func TestChunkOverlapSeedsNextChunk(t *testing.T) {
	text := strings.Repeat("First sentence here. ", 10) + "\n\n" + strings.Repeat("Second block text. ", 10)

	c, err := New(100, 25)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	chunks := c.Chunk(text, 1, "doc-1", "doc.pdf")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].StartChar < chunks[j].StartChar })
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartChar >= chunks[i-1].EndChar {
			t.Fatalf("chunk %d starts at %d, previous ends at %d: no overlap", i, chunks[i].StartChar, chunks[i-1].EndChar)
		}
	}
}

func TestChunkHardSplitsUnbrokenText(t *testing.T) {
	// No sentence or paragraph boundaries at all.
	text := strings.Repeat("x", 1000)

	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	chunks := c.Chunk(text, 1, "doc-1", "doc.pdf")
	assertCoverage(t, text, chunks, 100)
}

func TestChunkHardSplitsMultiByteTextOnRuneBoundaries(t *testing.T) {
	// Three-byte runes with no paragraph or sentence boundaries force the
	// hard-split path; no cut may land inside a rune.
	text := strings.Repeat("研究方法包括对照实验和问卷调查", 40)

	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	chunks := c.Chunk(text, 1, "doc-1", "doc.pdf")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	assertCoverage(t, text, chunks, 100)

	for _, chunk := range chunks {
		if !utf8.ValidString(chunk.Text) {
			t.Fatalf("chunk [%d, %d) is not valid UTF-8", chunk.StartChar, chunk.EndChar)
		}
	}
}

func TestChunkSentenceFallbackForLargeParagraph(t *testing.T) {
	// One paragraph far beyond the chunk size, with sentence boundaries.
	text := strings.Repeat("A short sentence about the experiment design. ", 20)

	c, err := New(150, 30)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	cleaned := Clean(text)
	chunks := c.Chunk(text, 2, "doc-1", "doc.pdf")
	assertCoverage(t, cleaned, chunks, 150)
}

func TestChunkIDsAreFreshPerCall(t *testing.T) {
	c, err := New(100, 20)
	if err != nil {
		t.Fatalf("new chunker: %v", err)
	}

	first := c.Chunk("Some stable text.", 1, "doc-1", "doc.pdf")
	second := c.Chunk("Some stable text.", 1, "doc-1", "doc.pdf")
	if first[0].ChunkID == second[0].ChunkID {
		t.Fatalf("chunk ids must not repeat across calls")
	}
}

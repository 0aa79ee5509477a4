package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/frossi85/researcher-agent/vectorstore"
)

// assembleContext orders the selected chunks by document reading position
// rather than score, merges chunks whose character ranges overlap (a
// consequence of chunk overlap at ingestion), and prefixes each page's
// block with a marker so the language model can attribute claims to pages.
func assembleContext(results []vectorstore.RetrievedResult) Context {
	ordered := make([]vectorstore.RetrievedResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i].Metadata, ordered[j].Metadata
		if a.PageNumber != b.PageNumber {
			return a.PageNumber < b.PageNumber
		}
		return a.StartChar < b.StartChar
	})

	var (
		builder  strings.Builder
		sources  = make([]SourceRef, 0, len(ordered))
		page     = -1
		spanText string
		spanEnd  int
	)

	flushSpan := func() {
		if spanText == "" {
			return
		}
		builder.WriteString(strings.TrimSpace(spanText))
		builder.WriteString("\n\n")
		spanText = ""
	}

	for _, result := range ordered {
		meta := result.Metadata
		if meta.PageNumber != page {
			flushSpan()
			page = meta.PageNumber
			builder.WriteString(fmt.Sprintf("--- Page %d ---\n", page))
			spanEnd = -1
		}

		switch {
		case spanEnd >= 0 && meta.StartChar < spanEnd:
			// Overlapping ranges share text; append only the suffix beyond
			// the current span instead of duplicating it.
			if meta.EndChar > spanEnd {
				shared := spanEnd - meta.StartChar
				if shared < len(meta.Text) {
					spanText += meta.Text[shared:]
				}
				spanEnd = meta.EndChar
			}
		default:
			flushSpan()
			spanText = meta.Text
			spanEnd = meta.EndChar
		}

		sources = append(sources, SourceRef{
			DocumentID: meta.DocumentID,
			PageNumber: meta.PageNumber,
			ChunkID:    result.ChunkID,
		})
	}
	flushSpan()

	return Context{
		Text:    strings.TrimSpace(builder.String()),
		Sources: sources,
	}
}

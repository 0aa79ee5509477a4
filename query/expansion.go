package query

import "strings"

// maxVariants bounds the embedding cost of expansion.
const maxVariants = 3

// interrogativePrefixes are rewritten to declarative form, which tends to
// sit closer to the document's own phrasing in embedding space ("what is
// the methodology?" -> "the methodology").
var interrogativePrefixes = []string{
	"what is",
	"what are",
	"who is",
	"how does",
	"where is",
	"when did",
	"why does",
}

// ExpandQuery returns the original query plus at most two declarative
// variants, original first.
func ExpandQuery(queryText string) []string {
	variants := []string{queryText}

	lower := strings.ToLower(queryText)
	for _, prefix := range interrogativePrefixes {
		if !strings.HasPrefix(lower, prefix+" ") {
			continue
		}
		rewrite := strings.TrimSpace(queryText[len(prefix):])
		rewrite = strings.TrimSuffix(rewrite, "?")
		rewrite = strings.TrimSpace(rewrite)
		if rewrite != "" && !strings.EqualFold(rewrite, queryText) {
			variants = append(variants, rewrite)
		}
		break
	}

	if len(variants) > maxVariants {
		variants = variants[:maxVariants]
	}
	return variants
}

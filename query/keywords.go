package query

import (
	"regexp"
	"strings"

	"github.com/frossi85/researcher-agent/vectorstore"
)

var wordPattern = regexp.MustCompile(`[a-zA-Z]+`)

// stopWords excludes common function words from the keyword boost. The set
// is a tunable heuristic, not fixed law.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "what": {}, "who": {}, "how": {}, "where": {}, "when": {},
	"why": {}, "does": {}, "did": {}, "are": {}, "was": {}, "were": {},
	"has": {}, "have": {}, "had": {}, "can": {}, "could": {}, "will": {},
	"would": {}, "should": {}, "about": {}, "into": {}, "their": {},
	"they": {}, "them": {}, "its": {}, "our": {}, "your": {}, "not": {},
}

// extractKeywords returns the distinct lowercase alphabetic tokens of
// length >= 3 that are not stop words.
func extractKeywords(queryText string) []string {
	tokens := wordPattern.FindAllString(strings.ToLower(queryText), -1)
	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if len(token) < 3 {
			continue
		}
		if _, ok := stopWords[token]; ok {
			continue
		}
		if _, ok := seen[token]; ok {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

// applyKeywordBoost nudges candidates that contain the query's exact terms:
// weight * (matched keywords / total keywords) is added to the similarity
// score, capped at 1.0. Pure-semantic matches keep their original score and
// are never discarded.
func applyKeywordBoost(results []vectorstore.RetrievedResult, queryText string, weight float64) []vectorstore.RetrievedResult {
	keywords := extractKeywords(queryText)
	if len(keywords) == 0 {
		return results
	}

	boosted := make([]vectorstore.RetrievedResult, len(results))
	for i, result := range results {
		text := strings.ToLower(result.Metadata.Text)
		matched := 0
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				matched++
			}
		}

		boosted[i] = result
		if matched > 0 {
			score := result.Score + weight*float64(matched)/float64(len(keywords))
			if score > 1.0 {
				score = 1.0
			}
			boosted[i].Score = score
		}
	}
	return boosted
}

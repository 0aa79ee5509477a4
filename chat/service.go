// Package chat answers questions over a single indexed document by
// retrieving relevant chunks and prompting the configured LLM with them.
package chat

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/frossi85/researcher-agent/llm"
	"github.com/frossi85/researcher-agent/query"
)

// InsufficientContextAnswer is returned when retrieval finds nothing to
// ground an answer in. The LLM is never called in that case.
const InsufficientContextAnswer = "I don't have enough information in the uploaded document to answer that question."

type Response struct {
	Answer  string            `json:"answer"`
	Sources []query.SourceRef `json:"sources"`
}

type Service struct {
	processor *query.Processor
	llm       llm.Client
	logger    *log.Logger
}

func NewService(processor *query.Processor, llmClient llm.Client, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		processor: processor,
		llm:       llmClient,
		logger:    logger,
	}
}

// Answer retrieves context for the question from the given document and asks
// the LLM to answer using only that context.
func (s *Service) Answer(ctx context.Context, question, documentID string, topK int) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, fmt.Errorf("question cannot be empty")
	}
	if s.llm == nil {
		return Response{}, fmt.Errorf("llm client is not configured")
	}

	retrieved, err := s.processor.Process(ctx, question, documentID, topK)
	if err != nil {
		return Response{}, fmt.Errorf("retrieve context: %w", err)
	}

	if retrieved.Empty() {
		s.logger.Printf("no relevant context for question in document %s", documentID)
		return Response{Answer: InsufficientContextAnswer}, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(classifyQuestion(question))},
		{Role: llm.RoleUser, Content: formatUserPrompt(question, retrieved.Text)},
	}

	answer, err := s.llm.Generate(ctx, messages)
	if err != nil {
		return Response{}, fmt.Errorf("llm generate: %w", err)
	}

	return Response{
		Answer:  strings.TrimSpace(answer),
		Sources: retrieved.Sources,
	}, nil
}

// questionKind selects the system prompt. Classification is a cheap keyword
// heuristic; unmatched questions fall back to the general prompt.
type questionKind int

const (
	kindGeneral questionKind = iota
	kindFactual
	kindExplanation
	kindSummary
	kindAnalysis
)

func classifyQuestion(question string) questionKind {
	q := strings.ToLower(question)

	switch {
	case containsAny(q, "summarize", "summary", "overview", "main points", "key points"):
		return kindSummary
	case containsAny(q, "analyze", "analysis", "compare", "comparison", "difference between", "versus", " vs ", "evaluate", "implication"):
		return kindAnalysis
	case containsAny(q, "explain", "why ", "how does", "how do ", "how is", "what causes"):
		return kindExplanation
	case hasAnyPrefix(q, "who ", "what ", "when ", "where ", "which ", "how many", "how much", "list "):
		return kindFactual
	default:
		return kindGeneral
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func systemPrompt(kind questionKind) string {
	base := "You are a research assistant answering questions about a document the user uploaded. Answer using only the supplied excerpts. Cite page numbers when the excerpts carry page markers. If the excerpts do not contain the answer, say so plainly instead of guessing."

	switch kind {
	case kindFactual:
		return base + " State the specific facts and figures the excerpts give."
	case kindExplanation:
		return base + " Explain the concept step by step in clear, structured prose."
	case kindSummary:
		return base + " Summarize concisely and use bullet points for the key points."
	case kindAnalysis:
		return base + " Weigh the evidence in the excerpts and note differing perspectives where they appear."
	default:
		return base
	}
}

func formatUserPrompt(question, contextText string) string {
	var sb strings.Builder
	sb.WriteString("Document excerpts:\n")
	sb.WriteString(contextText)
	sb.WriteString("\n\nQuestion:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer based only on the excerpts above.")
	return sb.String()
}

package tools

import (
	"context"
	"regexp"
	"strings"
)

// DocumentSplitter breaks contract text into titled sections. Headings are
// recognized as numbered clauses ("1.", "ARTICLE IV") or all-caps lines.
type DocumentSplitter struct{}

func NewDocumentSplitter() *DocumentSplitter { return &DocumentSplitter{} }

func (t *DocumentSplitter) Name() string        { return "document_splitter" }
func (t *DocumentSplitter) Category() Category  { return CategoryDocumentProcessing }
func (t *DocumentSplitter) Description() string {
	return "Splits contract text into titled sections by clause headings"
}

var headingPattern = regexp.MustCompile(`^\s*(?:(?:\d+|[IVXLC]+)[.)]\s+\S|ARTICLE\s+|SECTION\s+|[A-Z][A-Z .,&-]{5,}$)`)

func (t *DocumentSplitter) Execute(ctx context.Context, input Input) (*Result, error) {
	text := input.Param("text")
	if text == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: text"}}, nil
	}

	type section struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}

	var sections []section
	current := section{Title: "preamble"}
	flush := func() {
		current.Body = strings.TrimSpace(current.Body)
		if current.Body != "" || len(sections) > 0 {
			sections = append(sections, current)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		if headingPattern.MatchString(line) && strings.TrimSpace(line) != "" {
			flush()
			current = section{Title: strings.TrimSpace(line)}
			continue
		}
		current.Body += line + "\n"
	}
	flush()

	return &Result{
		Success: true,
		Data: map[string]any{
			"sections":      sections,
			"section_count": len(sections),
		},
		Metadata: map[string]any{"input_chars": len(text)},
	}, nil
}

// FieldExtractor pulls structured fields (dates, money amounts, emails,
// party names) out of contract text with pattern matching. It is the
// deterministic complement to LLM-driven extraction.
type FieldExtractor struct{}

func NewFieldExtractor() *FieldExtractor { return &FieldExtractor{} }

func (t *FieldExtractor) Name() string        { return "field_extractor" }
func (t *FieldExtractor) Category() Category  { return CategoryDataExtraction }
func (t *FieldExtractor) Description() string {
	return "Extracts dates, monetary amounts, emails, and parties from contract text"
}

var (
	datePattern  = regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`)
	moneyPattern = regexp.MustCompile(`\$\s?[\d,]+(?:\.\d{2})?`)
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	partyPattern = regexp.MustCompile(`(?i)(?:buyer|seller|lessor|lessee|landlord|tenant|broker|escrow agent)\s*[:\-]\s*([A-Z][A-Za-z .,'&-]+)`)
)

func (t *FieldExtractor) Execute(ctx context.Context, input Input) (*Result, error) {
	text := input.Param("text")
	if text == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: text"}}, nil
	}

	parties := make(map[string]string)
	for _, m := range partyPattern.FindAllStringSubmatch(text, -1) {
		role := strings.ToLower(strings.TrimSpace(strings.SplitN(m[0], ":", 2)[0]))
		role = strings.TrimSuffix(role, "-")
		role = strings.TrimSpace(role)
		parties[role] = strings.TrimSpace(m[1])
	}

	return &Result{
		Success: true,
		Data: map[string]any{
			"dates":   dedupe(datePattern.FindAllString(text, -1)),
			"amounts": dedupe(moneyPattern.FindAllString(text, -1)),
			"emails":  dedupe(emailPattern.FindAllString(text, -1)),
			"parties": parties,
		},
	}, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

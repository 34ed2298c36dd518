package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ContractAssembler fills a clause template with field values. Placeholders
// use {{field_name}} syntax; unresolved placeholders are reported as errors
// so a generator agent can loop back for the missing data.
type ContractAssembler struct{}

func NewContractAssembler() *ContractAssembler { return &ContractAssembler{} }

func (t *ContractAssembler) Name() string        { return "contract_assembler" }
func (t *ContractAssembler) Category() Category  { return CategoryContractGeneration }
func (t *ContractAssembler) Description() string {
	return "Renders a contract template by substituting {{field}} placeholders"
}

func (t *ContractAssembler) Execute(ctx context.Context, input Input) (*Result, error) {
	template := input.Param("template")
	if template == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: template"}}, nil
	}
	fields := input.ParamMap("fields")

	rendered := template
	substituted := 0
	for key, val := range fields {
		placeholder := "{{" + key + "}}"
		if strings.Contains(rendered, placeholder) {
			rendered = strings.ReplaceAll(rendered, placeholder, fmt.Sprintf("%v", val))
			substituted++
		}
	}

	var missing []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(rendered, -1) {
		missing = append(missing, m[1])
	}
	missing = dedupe(missing)

	result := &Result{
		Success: len(missing) == 0,
		Data: map[string]any{
			"document":       rendered,
			"fields_applied": substituted,
			"missing_fields": missing,
		},
	}
	for _, f := range missing {
		result.Errors = append(result.Errors, fmt.Sprintf("unresolved field: %s", f))
	}
	return result, nil
}

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// ComplianceChecklist runs a fixed rule set over contract text and reports
// which required clauses are present. Rules are keyword-based; the compliance
// agent layers LLM judgment on top of this deterministic baseline.
type ComplianceChecklist struct {
	rules []complianceRule
}

type complianceRule struct {
	ID       string
	Name     string
	Keywords []string
	Severity string
}

func NewComplianceChecklist() *ComplianceChecklist {
	return &ComplianceChecklist{rules: []complianceRule{
		{ID: "disclosure", Name: "Property disclosure statement", Keywords: []string{"disclosure"}, Severity: "critical"},
		{ID: "earnest_money", Name: "Earnest money terms", Keywords: []string{"earnest money", "deposit"}, Severity: "critical"},
		{ID: "contingency", Name: "Financing or inspection contingency", Keywords: []string{"contingency", "contingent"}, Severity: "warning"},
		{ID: "closing_date", Name: "Closing date", Keywords: []string{"closing date", "date of closing"}, Severity: "critical"},
		{ID: "signatures", Name: "Signature block", Keywords: []string{"signature", "signed by"}, Severity: "critical"},
		{ID: "lead_paint", Name: "Lead-based paint disclosure", Keywords: []string{"lead-based paint", "lead paint"}, Severity: "warning"},
	}}
}

func (t *ComplianceChecklist) Name() string        { return "compliance_checklist" }
func (t *ComplianceChecklist) Category() Category  { return CategoryComplianceChecking }
func (t *ComplianceChecklist) Description() string {
	return "Checks contract text against required-clause rules"
}

func (t *ComplianceChecklist) Execute(ctx context.Context, input Input) (*Result, error) {
	text := input.Param("text")
	if text == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: text"}}, nil
	}
	lower := strings.ToLower(text)

	type finding struct {
		RuleID   string `json:"rule_id"`
		Name     string `json:"name"`
		Severity string `json:"severity"`
		Present  bool   `json:"present"`
	}

	findings := make([]finding, 0, len(t.rules))
	criticalMissing := 0
	for _, rule := range t.rules {
		present := false
		for _, kw := range rule.Keywords {
			if strings.Contains(lower, kw) {
				present = true
				break
			}
		}
		if !present && rule.Severity == "critical" {
			criticalMissing++
		}
		findings = append(findings, finding{RuleID: rule.ID, Name: rule.Name, Severity: rule.Severity, Present: present})
	}

	return &Result{
		Success: true,
		Data: map[string]any{
			"findings":         findings,
			"compliant":        criticalMissing == 0,
			"critical_missing": criticalMissing,
			"rules_checked":    len(t.rules),
		},
	}, nil
}

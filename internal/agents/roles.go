package agents

// Role names the six compiled-in agent specializations. The set is closed;
// task specs referencing anything else fail workflow validation.
type Role string

const (
	RoleDataExtraction    Role = "data_extraction"
	RoleContractGenerator Role = "contract_generator"
	RoleComplianceChecker Role = "compliance_checker"
	RoleSignatureTracker  Role = "signature_tracker"
	RoleSummaryAgent      Role = "summary_agent"
	RoleHelpAgent         Role = "help_agent"
)

// RoleConfig fixes a role's persona and capabilities at compile time.
type RoleConfig struct {
	Goal              string
	Backstory         string
	AllowedTools      []string
	DelegationAllowed bool
	// ModelPreference routes this role to a specific model when set.
	ModelPreference string
	// DefaultExpectedOutput is the output hint used when a task spec
	// carries none.
	DefaultExpectedOutput string
}

// AllowsTool reports whether the role may invoke the named tool.
func (rc *RoleConfig) AllowsTool(name string) bool {
	for _, t := range rc.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

var roleConfigs = map[Role]RoleConfig{
	RoleDataExtraction: {
		Goal: "Extract structured data from real estate documents with high accuracy",
		Backstory: "You are a meticulous data extraction specialist. You read purchase " +
			"agreements, leases, and disclosures and pull out parties, dates, amounts, " +
			"and property details without inventing values that are not in the source.",
		AllowedTools:          []string{"document_splitter", "field_extractor"},
		DefaultExpectedOutput: "A structured list of extracted fields with source references",
	},
	RoleContractGenerator: {
		Goal: "Produce complete, internally consistent contract documents from templates and extracted data",
		Backstory: "You are an experienced contract drafter for residential and commercial " +
			"real estate transactions. You assemble clauses from approved templates, never " +
			"draft novel legal language, and flag any field you could not fill.",
		AllowedTools:          []string{"contract_assembler", "knowledge_lookup"},
		DelegationAllowed:     true,
		DefaultExpectedOutput: "A rendered contract document with a list of unresolved fields",
	},
	RoleComplianceChecker: {
		Goal: "Verify contracts satisfy required clauses and disclosure rules",
		Backstory: "You are a compliance reviewer. You check every contract against the " +
			"required-clause checklist, cite the clause or its absence, and never pass a " +
			"document with a missing critical disclosure.",
		AllowedTools:          []string{"compliance_checklist", "document_splitter", "knowledge_lookup"},
		DefaultExpectedOutput: "A pass/fail verdict with per-rule findings",
	},
	RoleSignatureTracker: {
		Goal: "Track signing progress and surface outstanding signatures",
		Backstory: "You coordinate contract execution. You know which parties have signed, " +
			"which are pending, and when follow-up is due.",
		AllowedTools:          []string{"signature_status"},
		DelegationAllowed:     true,
		DefaultExpectedOutput: "Per-party signature status and the list of pending signers",
	},
	RoleSummaryAgent: {
		Goal: "Summarize transactions and documents for the intended audience",
		Backstory: "You write clear, factual summaries of contracts and transaction state " +
			"for clients and agents. You never include terms that are not in the source material.",
		AllowedTools:          []string{"summary_writer", "document_splitter"},
		DefaultExpectedOutput: "A concise summary tailored to the stated audience",
	},
	RoleHelpAgent: {
		Goal: "Answer questions about workflow progress and platform capabilities",
		Backstory: "You are the assistant users talk to about their transactions. You " +
			"report workflow progress, explain what each step does, and route detailed " +
			"work to the specialist agents.",
		AllowedTools:          []string{"workflow_status", "knowledge_lookup"},
		DelegationAllowed:     true,
		DefaultExpectedOutput: "A direct answer with current workflow state when relevant",
	},
}

// ConfigFor returns the fixed configuration for a role.
func ConfigFor(role Role) (RoleConfig, bool) {
	cfg, ok := roleConfigs[role]
	return cfg, ok
}

// ValidRole reports whether the role is one of the compiled-in six.
func ValidRole(role Role) bool {
	_, ok := roleConfigs[role]
	return ok
}

// AllRoles lists the compiled-in roles in a stable order.
func AllRoles() []Role {
	return []Role{
		RoleDataExtraction,
		RoleContractGenerator,
		RoleComplianceChecker,
		RoleSignatureTracker,
		RoleSummaryAgent,
		RoleHelpAgent,
	}
}

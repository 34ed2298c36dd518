package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/contractpilot/orchestrator/internal/memory"
)

// SignatureStatus records and reports per-party signature state for a
// contract. Records live in shared long-term memory so any agent in the
// workflow sees the same signing picture.
type SignatureStatus struct {
	store *memory.Store
}

func NewSignatureStatus(store *memory.Store) *SignatureStatus {
	return &SignatureStatus{store: store}
}

func (t *SignatureStatus) Name() string        { return "signature_status" }
func (t *SignatureStatus) Category() Category  { return CategorySignatureTracking }
func (t *SignatureStatus) Description() string {
	return "Records and reports signature state per contract party"
}

type signatureRecord struct {
	ContractID string            `json:"contract_id"`
	Parties    map[string]string `json:"parties"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (t *SignatureStatus) Execute(ctx context.Context, input Input) (*Result, error) {
	contractID := input.Param("contract_id")
	if contractID == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: contract_id"}}, nil
	}
	action := input.Param("action")
	if action == "" {
		action = "status"
	}

	identifier := "signatures_" + contractID
	record := signatureRecord{ContractID: contractID, Parties: make(map[string]string)}

	stored, err := t.store.Retrieve(ctx, memory.TypeLongTerm, memory.ScopeGlobal, identifier)
	if err != nil {
		return &Result{Success: false, Errors: []string{fmt.Sprintf("load signature record: %v", err)}}, nil
	}
	if stored != nil {
		decodeContent(stored.Content, &record)
		if record.Parties == nil {
			record.Parties = make(map[string]string)
		}
	}

	switch action {
	case "record":
		party := strings.ToLower(input.Param("party"))
		if party == "" {
			return &Result{Success: false, Errors: []string{"missing required parameter: party"}}, nil
		}
		status := input.Param("status")
		if status == "" {
			status = "signed"
		}
		record.Parties[party] = status
		record.UpdatedAt = time.Now()

		_, err := t.store.Store(ctx, record, memory.TypeLongTerm, memory.ScopeGlobal, identifier, memory.StoreOptions{
			AgentID:    input.AgentID,
			WorkflowID: input.WorkflowID,
			UserID:     input.UserID,
			Tags:       []string{"signature_record"},
		})
		if err != nil {
			return &Result{Success: false, Errors: []string{fmt.Sprintf("persist signature record: %v", err)}}, nil
		}
	case "status":
		// read-only path, record already loaded
	default:
		return &Result{Success: false, Errors: []string{fmt.Sprintf("unknown action: %s", action)}}, nil
	}

	pending := make([]string, 0)
	for party, status := range record.Parties {
		if status != "signed" {
			pending = append(pending, party)
		}
	}
	sort.Strings(pending)

	return &Result{
		Success: true,
		Data: map[string]any{
			"contract_id":  contractID,
			"parties":      record.Parties,
			"pending":      pending,
			"all_signed":   len(record.Parties) > 0 && len(pending) == 0,
			"party_count":  len(record.Parties),
			"last_updated": record.UpdatedAt,
		},
	}, nil
}

// StatusProvider reports execution progress for a workflow. The orchestrator
// implements it; declaring it here keeps this package free of a dependency
// on the workflow engine.
type StatusProvider interface {
	ExecutionStatus(executionID string) (map[string]any, error)
}

// WorkflowStatus exposes orchestrator execution state to agents, letting the
// help agent answer progress questions mid-run.
type WorkflowStatus struct {
	provider StatusProvider
}

func NewWorkflowStatus(provider StatusProvider) *WorkflowStatus {
	return &WorkflowStatus{provider: provider}
}

func (t *WorkflowStatus) Name() string        { return "workflow_status" }
func (t *WorkflowStatus) Category() Category  { return CategoryWorkflowManagement }
func (t *WorkflowStatus) Description() string {
	return "Reports task-level progress for a workflow execution"
}

func (t *WorkflowStatus) Execute(ctx context.Context, input Input) (*Result, error) {
	executionID := input.Param("execution_id")
	if executionID == "" {
		executionID = input.WorkflowID
	}
	if executionID == "" {
		return &Result{Success: false, Errors: []string{"missing required parameter: execution_id"}}, nil
	}

	status, err := t.provider.ExecutionStatus(executionID)
	if err != nil {
		return &Result{Success: false, Errors: []string{err.Error()}}, nil
	}
	return &Result{Success: true, Data: status}, nil
}

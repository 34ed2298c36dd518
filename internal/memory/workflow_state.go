package memory

import (
	"context"
	"encoding/json"
	"fmt"
)

// SetWorkflowState stores the authoritative state document for one execution
// under workflow_state_<id>. Each set bumps an internal version counter and
// publishes a workflow_state_changed event.
func (s *Store) SetWorkflowState(ctx context.Context, executionID string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	s.mu.Lock()
	s.states[executionID] = value
	s.stateVersions[executionID]++
	version := s.stateVersions[executionID]
	s.mu.Unlock()

	s.persistAsync(workflowStateKeyPrefix+executionID, data, s.cfg.WorkflowTTL)

	s.events.publish(Event{Type: EventWorkflowStateChanged, Payload: map[string]any{
		"execution_id": executionID,
		"version":      version,
	}})
	return nil
}

// GetWorkflowState returns the state document for an execution, falling back
// to the durable peer after a restart. The second return reports presence.
func (s *Store) GetWorkflowState(ctx context.Context, executionID string) (any, bool) {
	s.mu.RLock()
	value, ok := s.states[executionID]
	s.mu.RUnlock()
	if ok {
		return value, true
	}

	if s.peer == nil {
		return nil, false
	}
	peerCtx, cancel := context.WithTimeout(ctx, s.cfg.PeerTimeout)
	defer cancel()

	data, err := s.peer.Get(peerCtx, workflowStateKeyPrefix+executionID)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false
	}

	s.mu.Lock()
	s.states[executionID] = decoded
	s.mu.Unlock()
	return decoded, true
}

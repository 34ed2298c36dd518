package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// maxContextHistory bounds the modification history of a shared context;
// oldest records are evicted first.
const maxContextHistory = 100

// CreateSharedContext registers a new shared context. Fails when the id is
// already taken. An empty accessAgents list grants every agent access.
func (s *Store) CreateSharedContext(ctx context.Context, contextID string, data map[string]any, accessAgents []string) (*SharedContext, error) {
	if contextID == "" {
		return nil, fmt.Errorf("shared context: id is required")
	}

	sc := &SharedContext{
		ContextID:    contextID,
		Data:         make(map[string]any, len(data)),
		AccessAgents: append([]string(nil), accessAgents...),
		Version:      1,
		LastModified: time.Now(),
	}
	for k, v := range data {
		sc.Data[k] = v
	}

	payload, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("marshal shared context: %w", err)
	}

	s.mu.Lock()
	if _, exists := s.contexts[contextID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrContextExists, contextID)
	}
	s.contexts[contextID] = sc
	out := sc.clone()
	s.mu.Unlock()

	s.persistAsync(sharedContextKeyPrefix+contextID, payload, s.cfg.SharedTTL)

	s.logger.Info("Created shared context",
		zap.String("context_id", contextID),
		zap.Int("access_agents", len(accessAgents)),
	)
	return out, nil
}

// GetSharedContext returns the context when the caller is on its allow-list,
// nil otherwise. Access denial is not an error.
func (s *Store) GetSharedContext(ctx context.Context, contextID, callerAgent string) (*SharedContext, error) {
	s.mu.RLock()
	sc, ok := s.contexts[contextID]
	if ok && !sc.allows(callerAgent) {
		s.mu.RUnlock()
		s.logger.Warn("Shared context access denied",
			zap.String("context_id", contextID),
			zap.String("agent_id", callerAgent),
		)
		return nil, nil
	}
	if ok {
		out := sc.clone()
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	// Rehydrate from the peer after a restart.
	loaded := s.peerLoadContext(ctx, contextID)
	if loaded == nil {
		return nil, nil
	}

	s.mu.Lock()
	if existing, ok := s.contexts[contextID]; ok {
		loaded = existing
	} else {
		s.contexts[contextID] = loaded
	}
	if !loaded.allows(callerAgent) {
		s.mu.Unlock()
		s.logger.Warn("Shared context access denied",
			zap.String("context_id", contextID),
			zap.String("agent_id", callerAgent),
		)
		return nil, nil
	}
	out := loaded.clone()
	s.mu.Unlock()
	return out, nil
}

// UpdateSharedContext merges updates into the context data (last writer wins
// at the key level), bumps the version once, and records one history entry.
// Returns nil when the caller is not on the allow-list.
func (s *Store) UpdateSharedContext(ctx context.Context, contextID string, updates map[string]any, callerAgent string) (*SharedContext, error) {
	s.mu.Lock()
	sc, ok := s.contexts[contextID]
	if !ok {
		s.mu.Unlock()
		if sc = s.peerLoadContext(ctx, contextID); sc == nil {
			return nil, nil
		}
		s.mu.Lock()
		if existing, exists := s.contexts[contextID]; exists {
			sc = existing
		} else {
			s.contexts[contextID] = sc
		}
	}
	if !sc.allows(callerAgent) {
		s.mu.Unlock()
		s.logger.Warn("Shared context update denied",
			zap.String("context_id", contextID),
			zap.String("agent_id", callerAgent),
		)
		return nil, nil
	}

	changes := make(map[string]any, len(updates))
	for k, v := range updates {
		sc.Data[k] = v
		changes[k] = v
	}
	sc.Version++
	sc.LastModified = time.Now()
	sc.ModificationHistory = append(sc.ModificationHistory, ContextModification{
		AgentID:    callerAgent,
		Timestamp:  sc.LastModified,
		Changes:    changes,
		NewVersion: sc.Version,
	})
	if len(sc.ModificationHistory) > maxContextHistory {
		sc.ModificationHistory = sc.ModificationHistory[len(sc.ModificationHistory)-maxContextHistory:]
	}

	out := sc.clone()
	payload, err := json.Marshal(sc)
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("marshal shared context: %w", err)
	}
	s.persistAsync(sharedContextKeyPrefix+contextID, payload, s.cfg.SharedTTL)

	s.events.publish(Event{Type: EventSharedContextUpdated, Payload: map[string]any{
		"context_id": contextID,
		"agent_id":   callerAgent,
		"version":    out.Version,
	}})
	return out, nil
}

func (s *Store) peerLoadContext(ctx context.Context, contextID string) *SharedContext {
	if s.peer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PeerTimeout)
	defer cancel()

	data, err := s.peer.Get(ctx, sharedContextKeyPrefix+contextID)
	if err != nil {
		return nil
	}
	var sc SharedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		s.logger.Warn("Discarding undecodable shared context",
			zap.String("context_id", contextID), zap.Error(err))
		return nil
	}
	return &sc
}

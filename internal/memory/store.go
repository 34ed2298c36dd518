package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/contractpilot/orchestrator/internal/circuitbreaker"
	"github.com/contractpilot/orchestrator/internal/config"
	"github.com/contractpilot/orchestrator/internal/metrics"
)

// Key prefixes are stable and part of the external interface; tooling scans
// them directly on the peer.
const (
	entryKeyPrefix         = "agent_memory:"
	sharedContextKeyPrefix = "shared_context_"
	workflowStateKeyPrefix = "workflow_state_"
)

// ErrContextExists is returned when creating a shared context whose id is taken.
var ErrContextExists = errors.New("shared context already exists")

// Store is the scoped, TTL'd substrate for inter-task state. It always serves
// from the in-memory cache and, when a durable peer is configured, mirrors
// writes to it asynchronously. Peer failures never fail caller operations.
type Store struct {
	cfg    config.MemoryConfig
	logger *zap.Logger
	peer   circuitbreaker.PeerClient // nil when running cache-only
	events *eventBus

	mu            sync.RWMutex
	entries       map[string]*Entry
	contexts      map[string]*SharedContext
	states        map[string]any
	stateVersions map[string]int

	writes sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once
}

// NewStore builds a store. peer may be nil for cache-only operation.
func NewStore(cfg config.MemoryConfig, peer circuitbreaker.PeerClient, logger *zap.Logger) *Store {
	return &Store{
		cfg:           cfg,
		logger:        logger,
		peer:          peer,
		events:        newEventBus(logger),
		entries:       make(map[string]*Entry),
		contexts:      make(map[string]*SharedContext),
		states:        make(map[string]any),
		stateVersions: make(map[string]int),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the expiry sweeper.
func (s *Store) Start() {
	interval := s.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go s.sweepLoop(interval)
}

// Close stops the sweeper and waits for in-flight peer writes.
func (s *Store) Close() {
	s.once.Do(func() { close(s.stopCh) })
	s.writes.Wait()
}

// AddEventListener registers a callback for one event type.
func (s *Store) AddEventListener(eventType string, l Listener) {
	s.events.subscribe(eventType, l)
}

func entryKey(t Type, scope Scope, identifier string) string {
	return fmt.Sprintf("%s%s:%s:%s", entryKeyPrefix, t, scope, identifier)
}

func (s *Store) ttlFor(t Type) time.Duration {
	switch t {
	case TypeShortTerm:
		return s.cfg.ShortTermTTL
	case TypeWorkflow:
		return s.cfg.WorkflowTTL
	case TypeShared:
		return s.cfg.SharedTTL
	case TypeLongTerm:
		return s.cfg.LongTermTTL
	default:
		return s.cfg.ShortTermTTL
	}
}

// Store writes an entry. Idempotent on (type, scope, identifier): a second
// call replaces the first. Returns the entry id.
func (s *Store) Store(ctx context.Context, content any, t Type, scope Scope, identifier string, opts StoreOptions) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("memory store: identifier is required")
	}

	now := time.Now()
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.ttlFor(t)
	}

	entry := &Entry{
		ID:         uuid.New().String(),
		Content:    content,
		MemoryType: t,
		Scope:      scope,
		Identifier: identifier,
		AgentID:    opts.AgentID,
		WorkflowID: opts.WorkflowID,
		UserID:     opts.UserID,
		Tags:       append([]string(nil), opts.Tags...),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	// Serialization failures are fatal to this call only; nothing is cached.
	data, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("marshal memory entry: %w", err)
	}

	key := entryKey(t, scope, identifier)
	s.mu.Lock()
	s.entries[key] = entry
	metrics.MemoryCacheSize.Set(float64(len(s.entries)))
	s.mu.Unlock()

	s.persistAsync(key, data, ttl)
	metrics.MemoryEntriesStored.WithLabelValues(string(t)).Inc()

	s.events.publish(Event{Type: EventEntryStored, Payload: map[string]any{
		"entry_id":    entry.ID,
		"memory_type": string(t),
		"scope":       string(scope),
		"identifier":  identifier,
	}})

	return entry.ID, nil
}

// Retrieve returns the entry for (type, scope, identifier), or nil when
// absent or expired. Expiry detection deletes the entry from both layers.
func (s *Store) Retrieve(ctx context.Context, t Type, scope Scope, identifier string) (*Entry, error) {
	key := entryKey(t, scope, identifier)
	now := time.Now()

	s.mu.Lock()
	entry, ok := s.entries[key]
	if ok && entry.Expired(now) {
		delete(s.entries, key)
		metrics.MemoryCacheSize.Set(float64(len(s.entries)))
		s.mu.Unlock()
		s.deleteAsync(key)
		return nil, nil
	}
	if ok {
		entry.AccessCount++
		entry.LastAccessed = now
		out := *entry
		s.mu.Unlock()
		return &out, nil
	}
	s.mu.Unlock()

	// Cache miss: rehydrate from the peer if one is configured.
	if s.peer == nil {
		return nil, nil
	}
	entry = s.peerLoadEntry(ctx, key)
	if entry == nil {
		return nil, nil
	}
	if entry.Expired(now) {
		s.deleteAsync(key)
		return nil, nil
	}

	entry.AccessCount++
	entry.LastAccessed = now

	s.mu.Lock()
	s.entries[key] = entry
	metrics.MemoryCacheSize.Set(float64(len(s.entries)))
	out := *entry
	s.mu.Unlock()
	return &out, nil
}

// Search returns the most recently created entries matching every present
// criterion, newest first, capped at limit.
func (s *Store) Search(query SearchQuery, limit int) []*Entry {
	now := time.Now()

	s.mu.RLock()
	matched := make([]*Entry, 0)
	for _, e := range s.entries {
		if e.Expired(now) {
			continue
		}
		if query.MemoryType != "" && e.MemoryType != query.MemoryType {
			continue
		}
		if query.Scope != "" && e.Scope != query.Scope {
			continue
		}
		if query.AgentID != "" && e.AgentID != query.AgentID {
			continue
		}
		if query.WorkflowID != "" && e.WorkflowID != query.WorkflowID {
			continue
		}
		if query.UserID != "" && e.UserID != query.UserID {
			continue
		}
		if len(query.Tags) > 0 && !tagsIntersect(e.Tags, query.Tags) {
			continue
		}
		copied := *e
		matched = append(matched, &copied)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

func tagsIntersect(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

// ClearWorkflow deletes every entry carrying the workflow id from both
// layers, along with the persisted workflow state.
func (s *Store) ClearWorkflow(ctx context.Context, workflowID string) {
	var keys []string

	s.mu.Lock()
	for key, e := range s.entries {
		if e.WorkflowID == workflowID {
			delete(s.entries, key)
			keys = append(keys, key)
		}
	}
	delete(s.states, workflowID)
	delete(s.stateVersions, workflowID)
	metrics.MemoryCacheSize.Set(float64(len(s.entries)))
	s.mu.Unlock()

	keys = append(keys, workflowStateKeyPrefix+workflowID)
	s.deleteAsync(keys...)

	s.logger.Info("Cleared workflow memory",
		zap.String("workflow_id", workflowID),
		zap.Int("entries", len(keys)-1),
	)
}

// Stats reports store contents and durable peer connectivity.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		ByType:  make(map[Type]int),
		ByScope: make(map[Scope]int),
	}
	for _, e := range s.entries {
		st.ByType[e.MemoryType]++
		st.ByScope[e.Scope]++
		st.Total++
	}
	st.DurableConnected = s.peer != nil && s.peer.Healthy()
	return st
}

// sweepLoop periodically removes expired cache entries. The peer expires its
// own copies through key TTLs.
func (s *Store) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	swept := 0
	for key, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, key)
			swept++
		}
	}
	metrics.MemoryCacheSize.Set(float64(len(s.entries)))
	s.mu.Unlock()

	if swept > 0 {
		metrics.MemoryExpiredSwept.Add(float64(swept))
		s.logger.Debug("Swept expired memory entries", zap.Int("count", swept))
	}
}

// peerLoadEntry reads and decodes one entry from the peer, falling back to
// nil on timeout or decode failure.
func (s *Store) peerLoadEntry(ctx context.Context, key string) *Entry {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PeerTimeout)
	defer cancel()

	data, err := s.peer.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, circuitbreaker.ErrKeyNotFound) {
			metrics.MemoryPeerErrors.Inc()
			s.logger.Warn("Durable peer read failed, serving cache only",
				zap.String("key", key), zap.Error(err))
		}
		return nil
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		s.logger.Warn("Discarding undecodable peer entry",
			zap.String("key", key), zap.Error(err))
		return nil
	}
	return &entry
}

// persistAsync mirrors a write to the peer without blocking the caller.
func (s *Store) persistAsync(key string, data []byte, ttl time.Duration) {
	if s.peer == nil {
		return
	}
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PeerTimeout)
		defer cancel()

		var err error
		if ttl > 0 {
			err = s.peer.SetEx(ctx, key, data, ttl)
		} else {
			err = s.peer.Set(ctx, key, data)
		}
		if err != nil {
			metrics.MemoryPeerErrors.Inc()
			s.logger.Warn("Durable peer write failed",
				zap.String("key", key), zap.Error(err))
		}
	}()
}

func (s *Store) deleteAsync(keys ...string) {
	if s.peer == nil || len(keys) == 0 {
		return
	}
	s.writes.Add(1)
	go func() {
		defer s.writes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.PeerTimeout)
		defer cancel()
		if err := s.peer.Del(ctx, keys...); err != nil {
			metrics.MemoryPeerErrors.Inc()
			s.logger.Warn("Durable peer delete failed",
				zap.Strings("keys", keys), zap.Error(err))
		}
	}()
}

// IsEntryKey reports whether a peer key belongs to the generic entry space.
// External tooling scanning the peer uses the same prefix contract.
func IsEntryKey(key string) bool {
	return strings.HasPrefix(key, entryKeyPrefix)
}

// Package store holds plan snapshot stores keyed by fingerprint. Plans
// are stored as JSON snapshots so cached copies are isolated from later
// mutation of the live aggregate.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/collection-planner/internal/clock"
	"github.com/signalsfoundry/collection-planner/model"
)

// PlanStore is the injected cache abstraction: get/set/delete plus an
// explicit sweep for expired entries.
type PlanStore interface {
	// Get returns the plan stored under key, or false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (*model.CollectionPlan, bool, error)
	// Set stores a snapshot of plan under key, refreshing its TTL.
	Set(ctx context.Context, key string, plan *model.CollectionPlan) error
	// Delete removes the entry for key if present.
	Delete(ctx context.Context, key string) error
	// Sweep removes expired entries and returns how many were dropped.
	Sweep(ctx context.Context) (int, error)
	// Len returns the number of live entries.
	Len(ctx context.Context) (int, error)
}

// DefaultTTL is how long a cached plan snapshot stays valid.
const DefaultTTL = time.Hour

type memoryEntry struct {
	snapshot []byte
	storedAt time.Time
}

// Memory is a mutex-guarded in-memory PlanStore with lazy TTL expiry.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	clk     clock.Clock
	entries map[string]memoryEntry
}

// NewMemory constructs a memory store. A non-positive ttl uses
// DefaultTTL; a nil clk uses the real clock.
func NewMemory(ttl time.Duration, clk clock.Clock) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Memory{
		ttl:     ttl,
		clk:     clk,
		entries: make(map[string]memoryEntry),
	}
}

func (m *Memory) Get(ctx context.Context, key string) (*model.CollectionPlan, bool, error) {
	m.mu.Lock()
	entry, ok := m.entries[key]
	if ok && m.clk.Now().Sub(entry.storedAt) > m.ttl {
		delete(m.entries, key)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, false, nil
	}
	plan, err := decodePlan(entry.snapshot)
	if err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, plan *model.CollectionPlan) error {
	snapshot, err := encodePlan(plan)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{snapshot: snapshot, storedAt: m.clk.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Sweep(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clk.Now()
	removed := 0
	for key, entry := range m.entries {
		if now.Sub(entry.storedAt) > m.ttl {
			delete(m.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Len(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func encodePlan(plan *model.CollectionPlan) ([]byte, error) {
	data, err := json.Marshal(plan)
	if err != nil {
		return nil, fmt.Errorf("encode plan snapshot: %w", err)
	}
	return data, nil
}

func decodePlan(data []byte) (*model.CollectionPlan, error) {
	var plan model.CollectionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("decode plan snapshot: %w", err)
	}
	return &plan, nil
}

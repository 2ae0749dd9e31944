package ledger

import (
	"context"
	"sync"
)

type networkRecords struct {
	Components map[string]ComponentRecord `json:"components"`
	Steps      map[string]StepRecord      `json:"steps"`
}

func newNetworkRecords() *networkRecords {
	return &networkRecords{
		Components: make(map[string]ComponentRecord),
		Steps:      make(map[string]StepRecord),
	}
}

// Memory is a thread-safe in-process ledger. Records are lost when the
// process exits.
type Memory struct {
	mu       sync.RWMutex
	networks map[string]*networkRecords
}

var _ Ledger = (*Memory)(nil)

// NewMemory creates an empty ledger.
func NewMemory() *Memory {
	return &Memory{networks: make(map[string]*networkRecords)}
}

func (m *Memory) networkLocked(name string) *networkRecords {
	n, ok := m.networks[name]
	if !ok {
		n = newNetworkRecords()
		m.networks[name] = n
	}
	return n
}

func (m *Memory) Component(_ context.Context, network, kind string) (ComponentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.networks[network]; ok {
		if rec, ok := n.Components[kind]; ok {
			return cloneComponent(rec), nil
		}
	}
	return ComponentRecord{}, ErrNotFound
}

func (m *Memory) PutComponent(_ context.Context, rec ComponentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.RecordedAt = stamp(rec.RecordedAt)
	m.networkLocked(rec.Network).Components[rec.Kind] = cloneComponent(rec)
	return nil
}

func (m *Memory) Step(_ context.Context, network, step string) (StepRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if n, ok := m.networks[network]; ok {
		if rec, ok := n.Steps[step]; ok {
			return cloneStep(rec), nil
		}
	}
	return StepRecord{}, ErrNotFound
}

func (m *Memory) PutStep(_ context.Context, rec StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.RecordedAt = stamp(rec.RecordedAt)
	m.networkLocked(rec.Network).Steps[rec.Step] = cloneStep(rec)
	return nil
}

func (m *Memory) Snapshot(_ context.Context, network string) (Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshotOf(network, m.networks[network]), nil
}

func (m *Memory) Close() error { return nil }

func snapshotOf(network string, n *networkRecords) Snapshot {
	snap := Snapshot{Network: network, Components: []ComponentRecord{}, Steps: []StepRecord{}}
	if n == nil {
		return snap
	}
	for _, rec := range n.Components {
		snap.Components = append(snap.Components, cloneComponent(rec))
	}
	for _, rec := range n.Steps {
		snap.Steps = append(snap.Steps, cloneStep(rec))
	}
	sortSnapshot(&snap)
	return snap
}

func cloneComponent(rec ComponentRecord) ComponentRecord {
	rec.ConstructorArgs = append(rec.ConstructorArgs[:0:0], rec.ConstructorArgs...)
	return rec
}

func cloneStep(rec StepRecord) StepRecord {
	rec.Targets = append(rec.Targets[:0:0], rec.Targets...)
	return rec
}

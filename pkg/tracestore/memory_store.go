package tracestore

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/types"
)

// MemoryStore is a thread-safe, map-based Repository for tests and small
// deployments: an RWMutex-protected primary map plus a secondary index
// (here, children by parent trace) kept in lockstep on every write.
type MemoryStore struct {
	mu       sync.RWMutex
	traces   map[types.TraceID]*types.ExecutionTrace
	children map[types.TraceID][]types.TraceID
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		traces:   make(map[types.TraceID]*types.ExecutionTrace),
		children: make(map[types.TraceID][]types.TraceID),
	}
}

func (m *MemoryStore) SaveTrace(in SaveInput) (*types.ExecutionTrace, error) {
	id := in.TraceID
	if id == "" {
		id = newTraceID()
	}
	t := sanitize(in, id)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.traces[t.TraceID] = t
	if t.ParentTraceID != "" {
		m.children[t.ParentTraceID] = append(m.children[t.ParentTraceID], t.TraceID)
	}
	return t.Clone(), nil
}

func (m *MemoryStore) GetByID(id types.TraceID) (*types.ExecutionTrace, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.traces[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (m *MemoryStore) ChildrenOf(id types.TraceID) ([]*types.ExecutionTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids, ok := m.children[id]
	if !ok {
		return nil, nil
	}
	out := make([]*types.ExecutionTrace, 0, len(ids))
	for _, cid := range ids {
		if t, ok := m.traces[cid]; ok {
			out = append(out, t.Clone())
		}
	}
	sortByStartedAt(out)
	return out, nil
}

func (m *MemoryStore) AllTraces() ([]*types.ExecutionTrace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.ExecutionTrace, 0, len(m.traces))
	for _, t := range m.traces {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TraceID < out[j].TraceID })
	return out, nil
}

// SampleByPriority implements prioritized experience replay:
// probabilities proportional to priority^alpha, sampled without
// replacement, with a uniform cold-start fallback when alpha is zero or
// the filtered pool's priority variance is below coldStartVarianceFloor.
func (m *MemoryStore) SampleByPriority(limit int, minPriority, alpha float64) ([]*types.ExecutionTrace, error) {
	if limit <= 0 {
		return nil, nil
	}
	all, _ := m.AllTraces()

	pool := make([]*types.ExecutionTrace, 0, len(all))
	for _, t := range all {
		if t.Priority >= minPriority {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}
	if limit > len(pool) {
		limit = len(pool)
	}

	if alpha == 0 || priorityVariance(pool) < coldStartVarianceFloor {
		return sampleUniform(pool, limit), nil
	}
	return sampleWeighted(pool, limit, alpha), nil
}

// coldStartVarianceFloor matches config.PERConfig's default
// (cold_start_variance_floor=0.001); the store package has no
// dependency on pkg/config, so the constant is duplicated here rather
// than threading a config value through every call site.
const coldStartVarianceFloor = 0.001

func priorityVariance(pool []*types.ExecutionTrace) float64 {
	if len(pool) < 2 {
		return 0
	}
	var sum float64
	for _, t := range pool {
		sum += t.Priority
	}
	mean := sum / float64(len(pool))
	var variance float64
	for _, t := range pool {
		d := t.Priority - mean
		variance += d * d
	}
	return variance / float64(len(pool))
}

func sampleUniform(pool []*types.ExecutionTrace, limit int) []*types.ExecutionTrace {
	idx := rand.Perm(len(pool))
	out := make([]*types.ExecutionTrace, limit)
	for i := 0; i < limit; i++ {
		out[i] = pool[idx[i]].Clone()
	}
	return out
}

// sampleWeighted draws `limit` distinct traces without replacement
// using weighted-without-replacement sampling: repeatedly draw
// proportional to remaining weight, then remove the drawn element.
func sampleWeighted(pool []*types.ExecutionTrace, limit int, alpha float64) []*types.ExecutionTrace {
	remaining := make([]*types.ExecutionTrace, len(pool))
	copy(remaining, pool)
	weights := make([]float64, len(remaining))
	for i, t := range remaining {
		weights[i] = math.Pow(t.Priority, alpha)
	}

	out := make([]*types.ExecutionTrace, 0, limit)
	for len(out) < limit && len(remaining) > 0 {
		var total float64
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			out = append(out, remaining[0].Clone())
			remaining = remaining[1:]
			weights = weights[1:]
			continue
		}
		r := rand.Float64() * total
		var acc float64
		pick := 0
		for i, w := range weights {
			acc += w
			if r <= acc {
				pick = i
				break
			}
		}
		out = append(out, remaining[pick].Clone())
		remaining = append(remaining[:pick], remaining[pick+1:]...)
		weights = append(weights[:pick], weights[pick+1:]...)
	}
	return out
}

// AnonymizeUserTraces redacts user-tied fields on every trace recorded
// for userID: UserID is replaced with the literal "anonymized" and
// IntentText/AgentID are dropped. Returns the number of traces
// affected. Idempotent: re-running against already-redacted traces
// affects zero rows.
func (m *MemoryStore) AnonymizeUserTraces(userID string) (int, error) {
	if userID == "" {
		return 0, engerr.New(engerr.KindInvalidInput, "AnonymizeUserTraces", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.traces {
		if t.UserID != userID {
			continue
		}
		t.UserID = "anonymized"
		t.IntentText = ""
		t.AgentID = ""
		count++
	}
	return count, nil
}

func (m *MemoryStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.traces) == 0 {
		return DefaultStats
	}
	var successful int
	var totalDurationMs, totalPriority float64
	for _, t := range m.traces {
		if t.Success {
			successful++
		}
		totalDurationMs += float64(t.FinishedAt.Sub(t.StartedAt).Milliseconds())
		totalPriority += t.Priority
	}
	n := float64(len(m.traces))
	return Stats{
		Total:         len(m.traces),
		Successful:    successful,
		AvgDurationMs: totalDurationMs / n,
		AvgPriority:   totalPriority / n,
	}
}

func (m *MemoryStore) Close() error { return nil }

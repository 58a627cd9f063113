// Package hypergraph implements the hypergraph store (C1): node and
// hyperedge CRUD, the weight rules and monotone edge-source promotion,
// and version-tagged derived quantities (PageRank, Louvain communities,
// spectral clusters, heat diffusion). Generalized from a binary-edge
// property graph to hyperedges, single-writer versioning, with
// derived-quantity computation running on gonum (graph/network,
// graph/community, mat) rather than a hand-rolled implementation.
package hypergraph

import (
	"sort"
	"sync"

	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/types"
)

var log = obslog.WithPrefix("hypergraph")

// Store is a single-writer, version-stamped hypergraph. Readers may run
// concurrently with each other but are serialized against writers by mu.
type Store struct {
	mu sync.RWMutex

	nodes     map[types.NodeID]*types.Node
	edges     map[types.HyperedgeID]*types.Hyperedge
	pairIndex map[pairKey]types.HyperedgeID // from,to,type -> projected pairwise edge

	version uint64
	nextID  uint64

	derived      *derivedCache
	costFloor    float64
	obsThreshold int
}

type pairKey struct {
	from types.NodeID
	to   types.NodeID
	typ  types.EdgeType
}

// Config controls the DR-DSP cost floor and the observed-promotion
// threshold.
type Config struct {
	CostFloor         float64
	ObservedThreshold int
}

// DefaultConfig returns the store's default tuning (cost_floor=0.1,
// observed_threshold=3).
func DefaultConfig() Config {
	return Config{CostFloor: 0.1, ObservedThreshold: types.ObservedThreshold}
}

// New returns an empty Store.
func New(cfg Config) *Store {
	if cfg.CostFloor <= 0 {
		cfg.CostFloor = 0.1
	}
	if cfg.ObservedThreshold <= 0 {
		cfg.ObservedThreshold = types.ObservedThreshold
	}
	return &Store{
		nodes:        make(map[types.NodeID]*types.Node),
		edges:        make(map[types.HyperedgeID]*types.Hyperedge),
		pairIndex:    make(map[pairKey]types.HyperedgeID),
		costFloor:    cfg.CostFloor,
		obsThreshold: cfg.ObservedThreshold,
		derived:      newDerivedCache(),
	}
}

// Version returns the current graph version, bumped on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// NodeCount returns the number of registered nodes, used by callers to
// detect a cold-start graph (no tools/capabilities registered yet).
func (s *Store) NodeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodes)
}

// AddNode inserts a new node. Returns DuplicateNode if id already exists.
func (s *Store) AddNode(id types.NodeID, kind types.Kind, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[id]; exists {
		return engerr.New(engerr.KindDuplicateNode, "AddNode", nil)
	}
	s.nodes[id] = &types.Node{ID: id, Kind: kind, Embedding: embedding}
	s.bumpVersion()
	return nil
}

// Node returns a defensive copy of the node, or (nil, false) if absent.
func (s *Store) Node(id types.NodeID) (*types.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return nil, false
	}
	return n.Clone(), true
}

// RemoveNode deletes a node, enforcing that no hyperedge may still
// reference it.
func (s *Store) RemoveNode(id types.NodeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[id]; !ok {
		return engerr.New(engerr.KindNotFound, "RemoveNode", nil)
	}
	for _, e := range s.edges {
		if _, ok := e.Sources[id]; ok {
			return engerr.Newf(engerr.KindInvalidInput, "RemoveNode", "node %s is referenced by hyperedge %s", id, e.ID)
		}
		if _, ok := e.Targets[id]; ok {
			return engerr.Newf(engerr.KindInvalidInput, "RemoveNode", "node %s is referenced by hyperedge %s", id, e.ID)
		}
	}
	delete(s.nodes, id)
	s.bumpVersion()
	return nil
}

// AddHyperedge inserts he (bearing its canonical weight), failing
// with DanglingRef if any endpoint is missing or EmptySet if sources or
// targets are empty.
func (s *Store) AddHyperedge(he *types.Hyperedge) (types.HyperedgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addHyperedgeLocked(he)
}

func (s *Store) addHyperedgeLocked(he *types.Hyperedge) (types.HyperedgeID, error) {
	if len(he.Sources) == 0 || len(he.Targets) == 0 {
		return "", engerr.ErrEmptySet
	}
	for id := range he.Sources {
		if _, ok := s.nodes[id]; !ok {
			return "", engerr.Newf(engerr.KindDanglingRef, "AddHyperedge", "source %s does not exist", id)
		}
	}
	for id := range he.Targets {
		if _, ok := s.nodes[id]; !ok {
			return "", engerr.Newf(engerr.KindDanglingRef, "AddHyperedge", "target %s does not exist", id)
		}
	}

	cp := he.Clone()
	if cp.ID == "" {
		s.nextID++
		cp.ID = types.HyperedgeID(genID(s.nextID))
	}
	cp.Weight = types.Weight(cp.Type, cp.Source)
	s.version++
	cp.Version = s.version
	s.edges[cp.ID] = cp

	if len(cp.Sources) == 1 && len(cp.Targets) == 1 {
		from := cp.SourcesSlice()[0]
		to := cp.TargetsSlice()[0]
		s.pairIndex[pairKey{from, to, cp.Type}] = cp.ID
	}

	return cp.ID, nil
}

func genID(n uint64) string {
	const digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	if n == 0 {
		return "he-0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append([]byte{digits[n%36]}, buf...)
		n /= 36
	}
	return "he-" + string(buf)
}

// Hyperedge returns a defensive copy of the edge, or (nil, false) if
// absent.
func (s *Store) Hyperedge(id types.HyperedgeID) (*types.Hyperedge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[id]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// AllHyperedges returns defensive copies of every hyperedge, sorted by ID
// for deterministic iteration.
func (s *Store) AllHyperedges() []*types.Hyperedge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Hyperedge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ApplyUpdate performs one of the closed set of mutations, bumping
// version and returning an UpdateKind describing the effect for
// incremental subscribers (DR-DSP).
func (s *Store) ApplyUpdate(u types.Update) (types.UpdateKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch u.Op {
	case types.OpWeightSet:
		e, ok := s.edges[u.EdgeID]
		if !ok {
			return types.UpdateKind{}, engerr.ErrNotFound
		}
		if u.Weight <= 0 {
			return types.UpdateKind{}, engerr.New(engerr.KindInvalidWeight, "ApplyUpdate", nil)
		}
		// Cost is the inverse of weight: a lower weight means a more
		// expensive (costlier) traversal, matching UpdateKind's doc.
		costIncreased := u.Weight < e.Weight
		e.Weight = u.Weight
		s.bumpVersion()
		e.Version = s.version
		return types.UpdateKind{Op: u.Op, EdgeID: u.EdgeID, WeightIncrease: costIncreased, WeightDecrease: !costIncreased, NewVersion: s.version}, nil

	case types.OpWeightDelta:
		e, ok := s.edges[u.EdgeID]
		if !ok {
			return types.UpdateKind{}, engerr.ErrNotFound
		}
		newWeight := e.Weight + u.Weight
		if newWeight <= 0 {
			return types.UpdateKind{}, engerr.New(engerr.KindInvalidWeight, "ApplyUpdate", nil)
		}
		e.Weight = newWeight
		s.bumpVersion()
		e.Version = s.version
		// A positive delta raises weight and therefore lowers cost.
		return types.UpdateKind{Op: u.Op, EdgeID: u.EdgeID, WeightIncrease: u.Weight < 0, WeightDecrease: u.Weight > 0, NewVersion: s.version}, nil

	case types.OpAddHyperedge:
		id, err := s.addHyperedgeLocked(u.NewEdge)
		if err != nil {
			return types.UpdateKind{}, err
		}
		return types.UpdateKind{Op: u.Op, EdgeID: id, WeightDecrease: true, NewVersion: s.version}, nil

	case types.OpRemoveHyperedge:
		e, ok := s.edges[u.EdgeID]
		if !ok {
			return types.UpdateKind{}, engerr.ErrNotFound
		}
		delete(s.edges, u.EdgeID)
		for k, v := range s.pairIndex {
			if v == u.EdgeID {
				delete(s.pairIndex, k)
			}
		}
		_ = e
		s.bumpVersion()
		return types.UpdateKind{Op: u.Op, EdgeID: u.EdgeID, WeightIncrease: true, NewVersion: s.version}, nil

	case types.OpObserveEdge:
		id, err := s.findOrPromoteEdgeLocked(u.From, u.To, u.Type)
		if err != nil {
			return types.UpdateKind{}, err
		}
		return types.UpdateKind{Op: u.Op, EdgeID: id, WeightDecrease: true, NewVersion: s.version}, nil

	default:
		return types.UpdateKind{}, engerr.New(engerr.KindInvalidInput, "ApplyUpdate", nil)
	}
}

// FindOrPromoteEdge locates (or creates, as inferred) the pairwise
// projected edge from->to of the given type, increments its
// observed_count, and promotes inferred->observed once observed_count
// reaches the configured threshold. Returns the resolved edge ID.
func (s *Store) FindOrPromoteEdge(from, to types.NodeID, edgeType types.EdgeType) (types.HyperedgeID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findOrPromoteEdgeLocked(from, to, edgeType)
}

func (s *Store) findOrPromoteEdgeLocked(from, to types.NodeID, edgeType types.EdgeType) (types.HyperedgeID, error) {
	key := pairKey{from, to, edgeType}
	if id, ok := s.pairIndex[key]; ok {
		e := s.edges[id]
		e.ObservedCount++
		if e.Source != types.SourceObserved && e.ObservedCount >= s.obsThreshold {
			e.Source = types.SourceObserved
			log.Info("edge promoted to observed", map[string]any{"edge": id, "from": from, "to": to, "observed_count": e.ObservedCount})
		}
		e.Weight = types.Weight(e.Type, e.Source)
		s.bumpVersion()
		e.Version = s.version
		return id, nil
	}

	if _, ok := s.nodes[from]; !ok {
		return "", engerr.Newf(engerr.KindDanglingRef, "FindOrPromoteEdge", "source %s does not exist", from)
	}
	if _, ok := s.nodes[to]; !ok {
		return "", engerr.Newf(engerr.KindDanglingRef, "FindOrPromoteEdge", "target %s does not exist", to)
	}

	he := &types.Hyperedge{
		Sources:       map[types.NodeID]struct{}{from: {}},
		Targets:       map[types.NodeID]struct{}{to: {}},
		Type:          edgeType,
		Source:        types.SourceInferred,
		ObservedCount: 1,
	}
	return s.addHyperedgeLocked(he)
}

func (s *Store) bumpVersion() {
	s.version++
	s.derived.invalidate()
}

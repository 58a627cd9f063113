package hypergraph

import (
	"encoding/json"

	"github.com/dgraph-io/badger/v4"

	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/types"
)

// Snapshot is the JSON-serializable representation of an entire store:
// every node and hyperedge plus the version they were captured at.
// Sources/Targets sets round-trip through sorted slices rather than map
// types so the shape is stable JSON. Derived NodeFeatures are not
// included; they are recomputed after import.
type Snapshot struct {
	Version uint64         `json:"version"`
	Nodes   []SnapshotNode `json:"nodes"`
	Edges   []SnapshotEdge `json:"edges"`
}

// SnapshotNode is one node's exported shape.
type SnapshotNode struct {
	ID        types.NodeID   `json:"id"`
	Kind      types.Kind     `json:"kind"`
	Embedding []float32      `json:"embedding,omitempty"`
	Parents   []types.NodeID `json:"parents,omitempty"`
	Children  []types.NodeID `json:"children,omitempty"`
}

// SnapshotEdge is one hyperedge's exported shape; Sources/Targets are
// sorted slices rather than the in-memory set representation.
type SnapshotEdge struct {
	ID            types.HyperedgeID `json:"id"`
	Sources       []types.NodeID    `json:"sources"`
	Targets       []types.NodeID    `json:"targets"`
	Weight        float64           `json:"weight"`
	Type          types.EdgeType    `json:"type"`
	Source        types.EdgeSource  `json:"source"`
	ObservedCount int               `json:"observed_count"`
	Version       uint64            `json:"version"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// ExportSnapshot captures the full graph (nodes, hyperedges, version) as
// a deterministically-ordered Snapshot, suitable for JSON persistence or
// transfer to another process.
func (s *Store) ExportSnapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version: s.version,
		Nodes:   make([]SnapshotNode, 0, len(s.nodes)),
		Edges:   make([]SnapshotEdge, 0, len(s.edges)),
	}
	for _, n := range sortedNodes(s.nodes) {
		snap.Nodes = append(snap.Nodes, SnapshotNode{
			ID:        n.ID,
			Kind:      n.Kind,
			Embedding: append([]float32(nil), n.Embedding...),
			Parents:   append([]types.NodeID(nil), n.Parents...),
			Children:  append([]types.NodeID(nil), n.Children...),
		})
	}
	for _, e := range sortedEdges(s.edges) {
		snap.Edges = append(snap.Edges, SnapshotEdge{
			ID:            e.ID,
			Sources:       e.SourcesSlice(),
			Targets:       e.TargetsSlice(),
			Weight:        e.Weight,
			Type:          e.Type,
			Source:        e.Source,
			ObservedCount: e.ObservedCount,
			Version:       e.Version,
			Metadata:      e.Metadata,
		})
	}
	return snap
}

// ImportSnapshot replaces the store's contents with snap's, rebuilding
// the pair index and resuming versioning from snap.Version. Intended for
// loading a fixture or restoring from a durable SnapshotStore into an
// otherwise-empty Store.
func (s *Store) ImportSnapshot(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nodes := make(map[types.NodeID]*types.Node, len(snap.Nodes))
	for _, n := range snap.Nodes {
		nodes[n.ID] = &types.Node{
			ID:        n.ID,
			Kind:      n.Kind,
			Embedding: append([]float32(nil), n.Embedding...),
			Parents:   append([]types.NodeID(nil), n.Parents...),
			Children:  append([]types.NodeID(nil), n.Children...),
		}
	}

	edges := make(map[types.HyperedgeID]*types.Hyperedge, len(snap.Edges))
	pairIndex := make(map[pairKey]types.HyperedgeID)
	for _, e := range snap.Edges {
		he := &types.Hyperedge{
			ID:            e.ID,
			Sources:       toSet(e.Sources),
			Targets:       toSet(e.Targets),
			Weight:        e.Weight,
			Type:          e.Type,
			Source:        e.Source,
			ObservedCount: e.ObservedCount,
			Version:       e.Version,
			Metadata:      e.Metadata,
		}
		for src := range he.Sources {
			for dst := range he.Targets {
				if _, ok := nodes[src]; !ok {
					return engerr.Newf(engerr.KindDanglingRef, "ImportSnapshot", "source %s does not exist", src)
				}
				if _, ok := nodes[dst]; !ok {
					return engerr.Newf(engerr.KindDanglingRef, "ImportSnapshot", "target %s does not exist", dst)
				}
			}
		}
		edges[he.ID] = he
		if len(he.Sources) == 1 && len(he.Targets) == 1 {
			pairIndex[pairKey{he.SourcesSlice()[0], he.TargetsSlice()[0], he.Type}] = he.ID
		}
	}

	s.nodes = nodes
	s.edges = edges
	s.pairIndex = pairIndex
	s.version = snap.Version
	s.derived.invalidate()
	log.Info("snapshot imported", map[string]any{"nodes": len(nodes), "edges": len(edges), "version": snap.Version})
	return nil
}

func toSet(ids []types.NodeID) map[types.NodeID]struct{} {
	out := make(map[types.NodeID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out
}

func sortedNodes(m map[types.NodeID]*types.Node) []*types.Node {
	out := make([]*types.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func sortedEdges(m map[types.HyperedgeID]*types.Hyperedge) []*types.Hyperedge {
	out := make([]*types.Hyperedge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

const snapshotKey = "snapshot"

// SnapshotStore persists a single Snapshot blob to BadgerDB, giving the
// hypergraph a durability path independent of the trace store.
type SnapshotStore struct {
	db *badger.DB
}

// NewSnapshotStore opens (or creates) a Badger-backed snapshot store at
// dataDir.
func NewSnapshotStore(dataDir string) (*SnapshotStore, error) {
	opts := badger.DefaultOptions(dataDir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "NewSnapshotStore", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save writes snap, overwriting whatever was previously stored.
func (ss *SnapshotStore) Save(snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return engerr.New(engerr.KindInternal, "SnapshotStore.Save", err)
	}
	err = ss.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(snapshotKey), data)
	})
	if err != nil {
		return engerr.New(engerr.KindInternal, "SnapshotStore.Save", err)
	}
	log.Info("snapshot persisted", map[string]any{"nodes": len(snap.Nodes), "edges": len(snap.Edges), "version": snap.Version})
	return nil
}

// Load reads the most recently saved Snapshot. Returns (Snapshot{},
// false, nil) if nothing has been saved yet.
func (ss *SnapshotStore) Load() (Snapshot, bool, error) {
	var snap Snapshot
	found := false
	err := ss.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotKey))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err != nil {
		return Snapshot{}, false, engerr.New(engerr.KindInternal, "SnapshotStore.Load", err)
	}
	return snap, found, nil
}

// Close releases the underlying BadgerDB handle.
func (ss *SnapshotStore) Close() error {
	return ss.db.Close()
}

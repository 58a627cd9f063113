package hypergraph

import (
	"testing"

	"github.com/hyperforge/capiforge/pkg/types"
)

func seedStoreWithEdge(t *testing.T) *Store {
	t.Helper()
	s := seedStore(t)
	he := &types.Hyperedge{
		Sources: map[types.NodeID]struct{}{"a": {}},
		Targets: map[types.NodeID]struct{}{"b": {}},
		Type:    types.EdgeSequence,
		Source:  types.SourceTemplate,
	}
	if _, err := s.AddHyperedge(he); err != nil {
		t.Fatalf("AddHyperedge: %v", err)
	}
	return s
}

func TestExportImportSnapshotRoundTrip(t *testing.T) {
	s := seedStoreWithEdge(t)
	snap := s.ExportSnapshot()

	if len(snap.Nodes) != 4 {
		t.Fatalf("expected 4 nodes in snapshot, got %d", len(snap.Nodes))
	}
	if len(snap.Edges) != 1 {
		t.Fatalf("expected 1 edge in snapshot, got %d", len(snap.Edges))
	}

	dst := New(DefaultConfig())
	if err := dst.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if dst.Version() != snap.Version {
		t.Fatalf("expected version %d, got %d", snap.Version, dst.Version())
	}
	if dst.NodeCount() != 4 {
		t.Fatalf("expected 4 nodes after import, got %d", dst.NodeCount())
	}

	edges := dst.AllHyperedges()
	if len(edges) != 1 {
		t.Fatalf("expected 1 edge after import, got %d", len(edges))
	}
	if edges[0].SourcesSlice()[0] != "a" || edges[0].TargetsSlice()[0] != "b" {
		t.Fatalf("unexpected edge endpoints: %+v", edges[0])
	}

	roundTripped := dst.ExportSnapshot()
	if len(roundTripped.Nodes) != len(snap.Nodes) || len(roundTripped.Edges) != len(snap.Edges) {
		t.Fatalf("re-export mismatch: got %d nodes/%d edges, want %d/%d",
			len(roundTripped.Nodes), len(roundTripped.Edges), len(snap.Nodes), len(snap.Edges))
	}
}

func TestImportSnapshotRejectsDanglingEdge(t *testing.T) {
	snap := Snapshot{
		Nodes: []SnapshotNode{{ID: "a", Kind: types.KindTool}},
		Edges: []SnapshotEdge{{
			ID:      "he-0",
			Sources: []types.NodeID{"a"},
			Targets: []types.NodeID{"ghost"},
			Type:    types.EdgeSequence,
			Source:  types.SourceTemplate,
		}},
	}
	dst := New(DefaultConfig())
	if err := dst.ImportSnapshot(snap); err == nil {
		t.Fatal("expected ImportSnapshot to fail on a dangling edge reference")
	}
}

func TestSnapshotStoreSaveLoad(t *testing.T) {
	dir := t.TempDir()
	ss, err := NewSnapshotStore(dir)
	if err != nil {
		t.Fatalf("NewSnapshotStore: %v", err)
	}
	defer ss.Close()

	if _, found, err := ss.Load(); err != nil || found {
		t.Fatalf("expected no snapshot yet, found=%v err=%v", found, err)
	}

	s := seedStoreWithEdge(t)
	want := s.ExportSnapshot()
	if err := ss.Save(want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, found, err := ss.Load()
	if err != nil || !found {
		t.Fatalf("expected a saved snapshot, found=%v err=%v", found, err)
	}
	if got.Version != want.Version || len(got.Nodes) != len(want.Nodes) || len(got.Edges) != len(want.Edges) {
		t.Fatalf("loaded snapshot mismatch: got %+v, want %+v", got, want)
	}
}

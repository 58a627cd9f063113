// Package engine wires the hypergraph store (C1), feature extractor
// (C2), SHGAT scorer (C3), trace store (C5), learning loop (C6), and
// predictor (C7) into one handle the CLI and HTTP API share: a single
// struct that owns storage, indexes, and the embedding client together.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/hyperforge/capiforge/pkg/config"
	"github.com/hyperforge/capiforge/pkg/embed"
	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/features"
	"github.com/hyperforge/capiforge/pkg/hypergraph"
	"github.com/hyperforge/capiforge/pkg/hyperpath"
	"github.com/hyperforge/capiforge/pkg/learning"
	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/predictor"
	"github.com/hyperforge/capiforge/pkg/shgat"
	"github.com/hyperforge/capiforge/pkg/tracestore"
	"github.com/hyperforge/capiforge/pkg/types"
)

var log = obslog.WithPrefix("engine")

// Engine is the assembled system: one hypergraph, one trace repository,
// and the components that read/write them.
type Engine struct {
	cfg      config.Config
	Graph    *hypergraph.Store
	Traces   tracestore.Repository
	Features *features.Extractor
	Model    *shgat.Model
	Learning *learning.Loop
	Predict  *predictor.Predictor
	Embedder embed.Embedder

	// Snapshots is nil for an in-memory engine (Options.DataDir empty).
	Snapshots *hypergraph.SnapshotStore
}

// Options controls how the trace store is backed.
type Options struct {
	DataDir string // non-empty: persistent Badger store; empty: in-memory
}

// New assembles an Engine from cfg, opening a Badger-backed trace store
// at opts.DataDir or an in-memory one if DataDir is empty.
func New(cfg config.Config, opts Options) (*Engine, error) {
	var traces tracestore.Repository
	var snapshots *hypergraph.SnapshotStore
	if opts.DataDir != "" {
		if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
			return nil, engerr.New(engerr.KindInternal, "engine.New", err)
		}
		store, err := tracestore.NewBadgerStore(filepath.Join(opts.DataDir, "traces"))
		if err != nil {
			return nil, engerr.New(engerr.KindInternal, "engine.New", err)
		}
		traces = store

		snaps, err := hypergraph.NewSnapshotStore(filepath.Join(opts.DataDir, "graph"))
		if err != nil {
			_ = store.Close()
			return nil, engerr.New(engerr.KindInternal, "engine.New", err)
		}
		snapshots = snaps
	} else {
		traces = tracestore.NewMemoryStore()
	}

	graph := hypergraph.New(hypergraph.Config{CostFloor: cfg.DRDSP.CostFloor, ObservedThreshold: cfg.Edge.ObservedThreshold})
	if snapshots != nil {
		if snap, found, err := snapshots.Load(); err != nil {
			return nil, engerr.New(engerr.KindInternal, "engine.New", err)
		} else if found {
			if err := graph.ImportSnapshot(snap); err != nil {
				return nil, engerr.New(engerr.KindInternal, "engine.New", err)
			}
		}
	}
	feats := features.New(features.Config{
		CacheTTL:         cfg.Stats.CacheTTL,
		MinSamples:       cfg.Stats.MinSamples,
		RecencyHalfLifeH: cfg.Stats.RecencyHalfLifeH,
		MaxCacheEntries:  cfg.Stats.MaxCacheEntries,
	}, traces, graph)
	model := shgat.New(cfg.SHGAT, cfg.EmbeddingDim)
	var embedder embed.Embedder = embed.NewDeterministic(cfg.EmbeddingDim)
	embedder = embed.NewCachedEmbedder(embedder, cfg.Embed.CacheSize)

	loop := learning.New(learning.Config{MinPriority: cfg.PER.MinPriority, MaxPriority: cfg.PER.MaxPriority}, graph, feats, feats, model, traces)
	pred := predictor.New(predictor.Config{ThompsonThreshold: cfg.Predict.ThompsonThreshold, MaxConfidence: cfg.Predict.MaxConfidence}, graph, model, embedder, traces, feats, cfg.DRDSP.CostFloor)

	log.Info("engine assembled", map[string]any{"embedding_dim": cfg.EmbeddingDim, "persistent": opts.DataDir != ""})
	return &Engine{cfg: cfg, Graph: graph, Traces: traces, Features: feats, Model: model, Learning: loop, Predict: pred, Embedder: embedder, Snapshots: snapshots}, nil
}

// Close persists the current graph (for a persistent engine) and
// releases the trace store's resources.
func (e *Engine) Close() error {
	if e.Snapshots != nil {
		if err := e.Snapshots.Save(e.Graph.ExportSnapshot()); err != nil {
			return err
		}
		if err := e.Snapshots.Close(); err != nil {
			return err
		}
	}
	return e.Traces.Close()
}

// RegisterNode embeds text via the engine's embedder and adds the node
// to the hypergraph, for ingest-time node creation from a text
// description rather than a precomputed vector.
func (e *Engine) RegisterNode(ctx context.Context, id types.NodeID, kind types.Kind, text string) error {
	emb, err := e.Embedder.Embed(ctx, text)
	if err != nil {
		return engerr.New(engerr.KindInternal, "RegisterNode", err)
	}
	return e.Graph.AddNode(id, kind, emb)
}

// Link creates (or promotes) the named relation between two nodes, for
// ingest-time edge creation.
func (e *Engine) Link(from, to types.NodeID, edgeType types.EdgeType) (types.HyperedgeID, error) {
	return e.Graph.FindOrPromoteEdge(from, to, edgeType)
}

// FindShortestHyperpath runs a single-pair DR-DSP query over a fresh
// snapshot of the current hypergraph.
func (e *Engine) FindShortestHyperpath(source, target types.NodeID) (hyperpath.Result, error) {
	g, err := hyperpath.BuildGraph(e.Graph)
	if err != nil {
		return hyperpath.Result{}, engerr.New(engerr.KindInternal, "FindShortestHyperpath", err)
	}
	return hyperpath.FindShortestHyperpath(g, source, target, e.cfg.DRDSP.CostFloor), nil
}

// FindAllShortestPaths runs DR-DSP from source once over a fresh
// snapshot of the current hypergraph, returning every reachable node's
// shortest hyperpath.
func (e *Engine) FindAllShortestPaths(source types.NodeID) (map[types.NodeID]hyperpath.Result, error) {
	g, err := hyperpath.BuildGraph(e.Graph)
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "FindAllShortestPaths", err)
	}
	return hyperpath.FindAllShortestPaths(g, source, e.cfg.DRDSP.CostFloor), nil
}

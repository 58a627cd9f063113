// Package main provides the CapiForge CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hyperforge/capiforge/pkg/config"
	"github.com/hyperforge/capiforge/pkg/engine"
	"github.com/hyperforge/capiforge/pkg/httpapi"
	"github.com/hyperforge/capiforge/pkg/types"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "capiforge",
		Short: "CapiForge - hypergraph-based agent tool/capability predictor",
		Long: `CapiForge learns which tool or capability an agent should invoke next
from its own execution history.

It models tools, capabilities, and meta-capabilities as nodes in a
hypergraph, folds completed executions into contains/sequence
hyperedges, scores candidates with a small multi-head attention model,
and finds the cheapest sequence of capabilities with DR-DSP shortest
hyperpaths.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("CapiForge v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the CapiForge prediction server",
		RunE:  runServe,
	}
	serveCmd.Flags().Int("port", 8080, "HTTP port")
	serveCmd.Flags().String("data-dir", "./data", "Trace store data directory (empty for in-memory)")
	serveCmd.Flags().String("graph", "", "YAML file describing initial nodes/edges to ingest")
	serveCmd.Flags().String("config", "", "YAML config file (defaults to env-overlaid defaults)")
	rootCmd.AddCommand(serveCmd)

	ingestCmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Validate and report a graph fixture without starting a server",
		Args:  cobra.ExactArgs(1),
		RunE:  runIngest,
	}
	rootCmd.AddCommand(ingestCmd)

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print engine stats for a graph fixture and trace store",
		RunE:  runStats,
	}
	statsCmd.Flags().String("data-dir", "./data", "Trace store data directory (empty for in-memory)")
	statsCmd.Flags().String("graph", "", "YAML file describing initial nodes/edges to ingest")
	rootCmd.AddCommand(statsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// graphFixture is the YAML shape `ingest`/`serve --graph`/`stats --graph`
// load: a flat node list (embedded from free text via the engine's
// embedder) plus a typed edge list.
type graphFixture struct {
	Nodes []struct {
		ID   string `yaml:"id"`
		Kind string `yaml:"kind"`
		Text string `yaml:"text"`
	} `yaml:"nodes"`
	Edges []struct {
		From string `yaml:"from"`
		To   string `yaml:"to"`
		Type string `yaml:"type"`
	} `yaml:"edges"`
}

func loadFixture(path string) (graphFixture, error) {
	var fx graphFixture
	data, err := os.ReadFile(path)
	if err != nil {
		return fx, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return fx, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fx, nil
}

func applyFixture(ctx context.Context, eng *engine.Engine, fx graphFixture) (nodes, edges int, err error) {
	for _, n := range fx.Nodes {
		if err := eng.RegisterNode(ctx, types.NodeID(n.ID), types.Kind(n.Kind), n.Text); err != nil {
			return nodes, edges, fmt.Errorf("registering node %s: %w", n.ID, err)
		}
		nodes++
	}
	for _, e := range fx.Edges {
		if _, err := eng.Link(types.NodeID(e.From), types.NodeID(e.To), types.EdgeType(e.Type)); err != nil {
			return nodes, edges, fmt.Errorf("linking %s->%s: %w", e.From, e.To, err)
		}
		edges++
	}
	return nodes, edges, nil
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.LoadFromEnv(), nil
	}
	return config.LoadYAML(path)
}

func runIngest(cmd *cobra.Command, args []string) error {
	fx, err := loadFixture(args[0])
	if err != nil {
		return err
	}

	cfg := config.Default()
	eng, err := engine.New(cfg, engine.Options{})
	if err != nil {
		return err
	}
	defer eng.Close()

	nodes, edges, err := applyFixture(context.Background(), eng, fx)
	if err != nil {
		return err
	}
	fmt.Printf("ingested %d nodes, %d edges from %s\n", nodes, edges, args[0])
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	graphFile, _ := cmd.Flags().GetString("graph")

	cfg := config.LoadFromEnv()
	eng, err := engine.New(cfg, engine.Options{DataDir: dataDir})
	if err != nil {
		return err
	}
	defer eng.Close()

	if graphFile != "" {
		fx, err := loadFixture(graphFile)
		if err != nil {
			return err
		}
		if _, _, err := applyFixture(context.Background(), eng, fx); err != nil {
			return err
		}
	}

	stats := eng.Predict.GetStats()
	fmt.Printf("nodes:              %d\n", stats.NodeCount)
	fmt.Printf("edges:              %d\n", stats.EdgeCount)
	fmt.Printf("avg page rank:      %.4f\n", stats.AvgPageRank)
	fmt.Printf("avg trace priority: %.4f\n", stats.AvgTracePriority)
	fmt.Printf("total traces:       %d\n", stats.TotalTraces)
	fmt.Printf("successful traces:  %d\n", stats.SuccessfulTraces)
	fmt.Printf("cache hit rate:     %.4f\n", stats.CacheHitRate)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	graphFile, _ := cmd.Flags().GetString("graph")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	eng, err := engine.New(cfg, engine.Options{DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("assembling engine: %w", err)
	}
	defer eng.Close()

	if graphFile != "" {
		fx, err := loadFixture(graphFile)
		if err != nil {
			return err
		}
		nodes, edges, err := applyFixture(context.Background(), eng, fx)
		if err != nil {
			return err
		}
		fmt.Printf("loaded %d nodes, %d edges from %s\n", nodes, edges, graphFile)
	}

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Port = port
	srv := httpapi.New(eng, httpCfg)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	fmt.Printf("CapiForge v%s listening on %s\n", version, srv.Addr())
	fmt.Println("endpoints: GET /health, GET /stats, POST /score, POST /predict, POST /hyperpath, POST /execute")
	fmt.Println("press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nshutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	fmt.Println("stopped")
	return nil
}

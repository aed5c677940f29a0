package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"overflowgraph/core"
	"overflowgraph/pkg/config"
)

func main() {
	rootCmd := &cobra.Command{Use: "graphstore"}
	rootCmd.AddCommand(demoCmd())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func demoCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "demo"}
	cmd.AddCommand(demoRunCmd())
	cmd.AddCommand(demoBackpressureCmd())
	cmd.AddCommand(demoWatchCmd())
	cmd.AddCommand(demoConfigCmd())
	return cmd
}

// demoConfigCmd loads cmd/graphstore/config/default.yaml (merged with an
// OVERFLOWGRAPH_ENV override file, if set) via pkg/config, builds a Graph
// from it through core.SchedulerConfigFromLoaded, and runs one eviction
// round against whichever PersistencePort the config selected.
func demoConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "load cmd/graphstore/config and run a round against it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}

			sc, port, err := core.SchedulerConfigFromLoaded(cfg)
			if err != nil {
				return err
			}

			log := logrus.New()
			log.SetFormatter(&logrus.JSONFormatter{})
			if lvl, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
				log.SetLevel(lvl)
			}

			g := core.NewGraph(port, cfg.Codec.MaxCollectionSize, sc, log)
			for i := 0; i < 10; i++ {
				h := g.NewNode(core.NewNodeBody(core.NodeId(i+1), "Config"))
				h.MarkDirty()
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := g.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Printf("persistence backend: %s, batch size: %d, final table size: %d\n",
				cfg.Persistence.Backend, sc.BatchSize, g.TableSize())
			g.Close()
			return nil
		},
	}
	return cmd
}

func newDemoGraph(workerCount int, batchSize int) (*core.Graph, *logrus.Logger) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	g := core.NewGraph(core.NewMemoryStore(), 0, core.SchedulerConfig{
		BatchSize:   batchSize,
		WorkerCount: workerCount,
	}, log)
	return g, log
}

// demoRunCmd registers a batch of synthetic nodes with NODE_REF adjacency
// to each other, forces a pressure notification, and reports the
// resulting handle-table size and observability counters.
func demoRunCmd() *cobra.Command {
	var count int
	var batch int
	var workers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "register synthetic nodes and force an eviction round",
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := uuid.NewString()
			g, log := newDemoGraph(workers, batch)
			log.WithField("run_id", runID).Info("demo starting")

			for i := 0; i < count; i++ {
				id := core.NodeId(i + 1)
				body := core.NewNodeBody(id, "Person")
				body.Properties["name"] = core.Value{Tag: core.TagString, Payload: fmt.Sprintf("node-%d", id)}
				if i > 0 {
					body.Adjacency = append(body.Adjacency, core.Value{Tag: core.TagNodeRef, Payload: core.NodeId(i)})
				}
				h := g.NewNode(body)
				h.MarkDirty()
			}

			fmt.Printf("registered %d handles\n", count)

			if err := g.Scheduler().OnHeapAboveThreshold(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := g.ApplyBackpressure(ctx); err != nil {
				return err
			}

			decoded, decodeTime := g.CodecStats()
			fmt.Printf("handle table size after round: %d resident\n", g.TableSize())
			fmt.Printf("codec stats: %d decoded, %s cumulative decode time\n", decoded, decodeTime)
			g.Close()
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 250, "number of synthetic nodes to register")
	cmd.Flags().IntVar(&batch, "batch", 100, "eviction batch size")
	cmd.Flags().IntVar(&workers, "workers", 4, "eviction worker count")
	return cmd
}

// demoWatchCmd wires the example heapMonitor to a live graph's scheduler
// for a fixed duration, showing the out-of-core monitor→scheduler wiring
// described in spec.md §6.
func demoWatchCmd() *cobra.Command {
	var fraction float64
	var seconds int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "run the example heap monitor against a live scheduler for a fixed duration",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, log := newDemoGraph(4, 100)
			for i := 0; i < 1000; i++ {
				id := core.NodeId(i + 1)
				h := g.NewNode(core.NewNodeBody(id, "Sensor"))
				h.MarkDirty()
			}

			mon := newHeapMonitor(fraction, 200*time.Millisecond, g.Scheduler().OnHeapAboveThreshold, log)
			go mon.run()
			time.Sleep(time.Duration(seconds) * time.Second)
			mon.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := g.ClearAll(ctx); err != nil {
				return err
			}
			fmt.Printf("final handle table size: %d\n", g.TableSize())
			g.Close()
			return nil
		},
	}
	cmd.Flags().Float64Var(&fraction, "fraction", 0.0001, "fraction of total system memory treated as the pressure threshold")
	cmd.Flags().IntVar(&seconds, "seconds", 2, "how long to let the monitor run")
	return cmd
}

// demoBackpressureCmd demonstrates ApplyBackpressure blocking until an
// in-flight round completes.
func demoBackpressureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backpressure",
		Short: "show an allocator blocking on ApplyBackpressure during a round",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _ := newDemoGraph(1, 1000)
			for i := 0; i < 5; i++ {
				id := core.NodeId(i + 1)
				h := g.NewNode(core.NewNodeBody(id, "Widget"))
				h.MarkDirty()
			}

			if err := g.Scheduler().OnHeapAboveThreshold(); err != nil {
				return err
			}

			start := time.Now()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := g.ApplyBackpressure(ctx); err != nil {
				return err
			}
			fmt.Printf("backpressure released after %s\n", time.Since(start))
			g.Close()
			return nil
		},
	}
	return cmd
}

// Package main provides the graphkv CLI entry point.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/orneryd/graphkv/pkg/config"
	"github.com/orneryd/graphkv/pkg/ids"
	"github.com/orneryd/graphkv/pkg/log"
	"github.com/orneryd/graphkv/pkg/metrics"
	"github.com/orneryd/graphkv/pkg/storage"
	"github.com/orneryd/graphkv/pkg/traversal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "graphkv",
		Short: "graphkv - embedded graph database on Badger",
		Long: `graphkv stores nodes and edges in a Badger key-value store, keeps declared
secondary indices consistent with every write, and exposes the graph operators
from the command line. Every command runs in a single transaction.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "graphkv.yaml", "Config file (YAML)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "graphkv v%s (%s)\n", version, commit)
		},
	})

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE:  runInit,
	}
	initCmd.Flags().StringSlice("index", nil, "Secondary index to declare, as name[:property]")
	rootCmd.AddCommand(initCmd)

	addNodeCmd := &cobra.Command{
		Use:   "add-node",
		Short: "Insert a node",
		RunE:  runAddNode,
	}
	addNodeCmd.Flags().String("label", "", "Node label")
	addNodeCmd.Flags().StringArray("prop", nil, "Property as key=value (repeatable)")
	addNodeCmd.Flags().StringSlice("index", nil, "Secondary indices to write")
	addNodeCmd.Flags().String("id", "", "Explicit node id (UUID); generated when empty")
	_ = addNodeCmd.MarkFlagRequired("label")
	rootCmd.AddCommand(addNodeCmd)

	addEdgeCmd := &cobra.Command{
		Use:   "add-edge",
		Short: "Insert an edge between two existing nodes",
		RunE:  runAddEdge,
	}
	addEdgeCmd.Flags().String("label", "", "Edge label")
	addEdgeCmd.Flags().String("from", "", "Source node id")
	addEdgeCmd.Flags().String("to", "", "Target node id")
	addEdgeCmd.Flags().StringArray("prop", nil, "Property as key=value (repeatable)")
	for _, f := range []string{"label", "from", "to"} {
		_ = addEdgeCmd.MarkFlagRequired(f)
	}
	rootCmd.AddCommand(addEdgeCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "get-node [id]",
		Short: "Print a node and its neighbours",
		Args:  cobra.ExactArgs(1),
		RunE:  runGetNode,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "lookup [index] [value]",
		Short: "Find the node a secondary index maps value to",
		Args:  cobra.ExactArgs(2),
		RunE:  runLookup,
	})

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "List nodes in id order",
		RunE:  runScan,
	}
	scanCmd.Flags().String("label", "", "Only nodes with this label")
	scanCmd.Flags().Int("limit", 100, "Maximum number of nodes")
	rootCmd.AddCommand(scanCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "drop [id]",
		Short: "Delete a node with its index entries and incident edges",
		Args:  cobra.ExactArgs(1),
		RunE:  runDrop,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print table sizes",
		RunE:  runStats,
	})

	return rootCmd
}

// loadConfig reads the config file (if present) and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openEngine sets up logging and metrics, then opens the engine described by the config.
func openEngine(cmd *cobra.Command) (*storage.BadgerEngine, *log.ZapLogger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := log.SetupZapLogger(cfg.LogOpts())
	if err != nil {
		return nil, nil, err
	}
	if err := metrics.InitializeMetrics(nil); err != nil {
		return nil, nil, err
	}
	logger.Debug("configuration loaded", zap.Stringer("config", cfg))

	engine, err := storage.Open(cfg.StorageOptions(logger.Logger))
	if err != nil {
		return nil, nil, err
	}
	return engine, logger, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.Default()
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	specs, _ := cmd.Flags().GetStringSlice("index")
	indices, err := parseIndexFlags(specs)
	if err != nil {
		return err
	}
	cfg.Schema.Indices = indices
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Wrote %s\n", path)
	return nil
}

func runAddNode(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString("label")
	rawProps, _ := cmd.Flags().GetStringArray("prop")
	indices, _ := cmd.Flags().GetStringSlice("index")
	rawID, _ := cmd.Flags().GetString("id")

	props, err := parseProps(rawProps)
	if err != nil {
		return err
	}
	id := ids.Nil
	if rawID != "" {
		if id, err = ids.Parse(rawID); err != nil {
			return err
		}
	}

	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	return engine.Update(func(tx *storage.Txn) error {
		v, err := traversal.New(engine, tx).AddN(label, props, indices, id).First()
		if err != nil {
			printCauses(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	})
}

func runAddEdge(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString("label")
	rawProps, _ := cmd.Flags().GetStringArray("prop")
	rawFrom, _ := cmd.Flags().GetString("from")
	rawTo, _ := cmd.Flags().GetString("to")

	props, err := parseProps(rawProps)
	if err != nil {
		return err
	}
	from, err := ids.Parse(rawFrom)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := ids.Parse(rawTo)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	return engine.Update(func(tx *storage.Txn) error {
		v, err := traversal.New(engine, tx).AddE(label, props, from, to, ids.Nil).First()
		if err != nil {
			printCauses(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), v)
		return nil
	})
}

func runGetNode(cmd *cobra.Command, args []string) error {
	id, err := ids.Parse(args[0])
	if err != nil {
		return err
	}
	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	return engine.View(func(tx *storage.Txn) error {
		v, err := traversal.New(engine, tx).NFromID(id).First()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, v)

		edges, err := traversal.New(engine, tx).NFromID(id).OutE("").Collect()
		if err != nil {
			return err
		}
		for _, e := range edges {
			fmt.Fprintf(out, "  -> %s\n", e)
		}
		edges, err = traversal.New(engine, tx).NFromID(id).InE("").Collect()
		if err != nil {
			return err
		}
		for _, e := range edges {
			fmt.Fprintf(out, "  <- %s\n", e)
		}
		return nil
	})
}

func runLookup(cmd *cobra.Command, args []string) error {
	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	value := parseValue(args[1])
	return engine.View(func(tx *storage.Txn) error {
		vals, err := traversal.New(engine, tx).NFromIndex(args[0], value).Collect()
		if err != nil {
			return err
		}
		if len(vals) == 0 {
			return fmt.Errorf("no node with %s = %s", args[0], value)
		}
		for _, v := range vals {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return nil
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	label, _ := cmd.Flags().GetString("label")
	limit, _ := cmd.Flags().GetInt("limit")

	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	return engine.View(func(tx *storage.Txn) error {
		vals, err := traversal.New(engine, tx).NFromLabel(label).Range(0, limit).Collect()
		for _, v := range vals {
			fmt.Fprintln(cmd.OutOrStdout(), v)
		}
		return err
	})
}

func runDrop(cmd *cobra.Command, args []string) error {
	id, err := ids.Parse(args[0])
	if err != nil {
		return err
	}
	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	return engine.Update(func(tx *storage.Txn) error {
		// Drop skips nodes that do not exist, so check first.
		if _, err := traversal.New(engine, tx).NFromID(id).First(); err != nil {
			return err
		}
		if _, err := traversal.New(engine, tx).NFromID(id).Drop().First(); err != nil {
			printCauses(cmd.ErrOrStderr(), err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", id)
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	engine, logger, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer logger.Close()
	defer engine.Close()

	return engine.View(func(tx *storage.Txn) error {
		tables := []storage.Table{engine.NodeTable(), engine.EdgeTable()}
		for _, def := range engine.Indices() {
			t, _ := engine.SecondaryIndex(def.Name)
			tables = append(tables, t)
		}
		out := cmd.OutOrStdout()
		for _, t := range tables {
			n, err := tx.Count(t)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-20s %d\n", t.Name(), n)
		}
		return nil
	})
}

func printCauses(w io.Writer, err error) {
	for _, cause := range traversal.Causes(err) {
		fmt.Fprintf(w, "  cause: %v\n", cause)
	}
}

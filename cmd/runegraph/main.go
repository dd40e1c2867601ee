// Package main provides the RuneGraph CLI entry point.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/orneryd/runegraph/pkg/auth"
	"github.com/orneryd/runegraph/pkg/config"
	"github.com/orneryd/runegraph/pkg/query"
	"github.com/orneryd/runegraph/pkg/rpc"
	"github.com/orneryd/runegraph/pkg/storage"
	"github.com/orneryd/runegraph/pkg/streams"
)

var (
	version = "0.1.0"
	commit  = "dev" // Set via ldflags: -X main.commit=$(git rev-parse --short HEAD)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "runegraph",
		Short: "RuneGraph - property graph database with a declarative query language",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("RuneGraph v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the RuneGraph server",
		Long:  "Start the RuneGraph RPC server exposing the query service.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML configuration file")
	serveCmd.Flags().String("address", "", "Bind address (overrides config)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides config)")
	serveCmd.Flags().String("storage-engine", "", "Storage engine: memory or badger (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory for the badger engine (overrides config)")
	serveCmd.Flags().String("log-level", "", "Log level (overrides config)")
	rootCmd.AddCommand(serveCmd)

	dumpCmd := &cobra.Command{
		Use:   "dump",
		Short: "Write the stored graph as JSON to stdout",
		RunE:  runDump,
	}
	dumpCmd.Flags().String("data-dir", "./data", "Badger data directory")
	rootCmd.AddCommand(dumpCmd)

	loadCmd := &cobra.Command{
		Use:   "load",
		Short: "Load a JSON graph dump from stdin",
		RunE:  runLoad,
	}
	loadCmd.Flags().String("data-dir", "./data", "Badger data directory")
	rootCmd.AddCommand(loadCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	setupLogging(cfg.Logging)
	logrus.WithField("config", cfg.String()).Info("starting runegraph")

	engine, err := openEngine(cfg.Storage)
	if err != nil {
		return err
	}
	defer engine.Close()

	graph := storage.NewGraph(engine)
	interp := query.NewInterpreter(query.Options{
		CostPlanner:  cfg.Query.CostPlanner,
		PlanCache:    cfg.Query.PlanCache,
		PlanCacheTTL: cfg.PlanCacheTTL(),
		Auth:         auth.NewStore(),
		Streams:      streams.NewRegistry(),
	})

	srv := rpc.NewServer()
	srv.Register(query.ServiceName, query.NewService(graph, interp).Handler())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(cfg.ListenAddr()) }()
	logrus.WithField("addr", cfg.ListenAddr()).Info("query service listening")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logrus.WithField("signal", s.String()).Info("shutting down")
		srv.Close()
		<-serveErr
		return nil
	case err := <-serveErr:
		return err
	}
}

func runDump(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("data-dir")
	engine, err := storage.NewBadgerEngine(dir)
	if err != nil {
		return err
	}
	defer engine.Close()
	return storage.Dump(engine, os.Stdout)
}

func runLoad(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("data-dir")
	engine, err := storage.NewBadgerEngine(dir)
	if err != nil {
		return err
	}
	defer engine.Close()
	return storage.Load(engine, os.Stdin)
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("address"); v != "" {
		cfg.Server.Address = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Server.Port = v
	}
	if v, _ := cmd.Flags().GetString("storage-engine"); v != "" {
		cfg.Storage.Engine = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
}

func setupLogging(lc config.LoggingConfig) {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if lc.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func openEngine(sc config.StorageConfig) (storage.Engine, error) {
	switch sc.Engine {
	case "badger":
		return storage.NewBadgerEngine(sc.DataDir)
	default:
		return storage.NewMemoryEngine(), nil
	}
}

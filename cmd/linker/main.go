package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nkoub/recordlinkage/internal/config"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/logger"
	"github.com/nkoub/recordlinkage/internal/pipeline"
)

var (
	configPath string
	outPath    string
	outFormat  string
	minScore   float64
	workers    int
	logLevel   string
	logJSON    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		red := color.New(color.FgRed, color.Bold).SprintFunc()
		fmt.Fprintf(os.Stderr, "%s %v\n", red("error:"), err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintf(os.Stderr, "  hint: %s\n", hint)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "linker",
		Short:         "Record linkage and deduplication",
		Long:          "Index two record collections, compare the candidate pairs and write a feature matrix",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug/info/warn/error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON")

	linkCmd := &cobra.Command{
		Use:   "link",
		Short: "Link the left collection against the right one",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, false)
		},
	}
	dedupeCmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find duplicates within the left collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd, true)
		},
	}
	for _, c := range []*cobra.Command{linkCmd, dedupeCmd} {
		c.Flags().StringVarP(&configPath, "config", "c", "", "job file (toml, yaml or json)")
		c.Flags().StringVarP(&outPath, "out", "o", "", "write the feature matrix to this file")
		c.Flags().StringVar(&outFormat, "format", "", "output format (csv/json/markdown), default from extension")
		c.Flags().Float64Var(&minScore, "min-score", 0, "keep rows whose feature sum reaches this value")
		c.Flags().IntVar(&workers, "workers", 0, "comparison workers, 0 uses all CPUs")
		c.MarkFlagRequired("config")
	}

	rootCmd.AddCommand(linkCmd, dedupeCmd, newMethodsCmd())
	return rootCmd
}

func runJob(cmd *cobra.Command, dedupe bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	if dedupe {
		cfg.Right = nil
	} else if cfg.Right == nil {
		return errors.WithHint(
			errors.Configf("link needs a [right] source"),
			"use the dedupe command to link a collection against itself")
	}

	log, err := logger.New(logger.Options{JSON: cfg.Log.JSON, Level: cfg.Log.Level})
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := cmd.OutOrStdout()
	cyan := color.New(color.FgCyan).SprintFunc()
	var mu sync.Mutex
	last := pipeline.Stage("")
	res, err := pipeline.Run(ctx, cfg, func(stage pipeline.Stage, percent int, message string) {
		mu.Lock()
		defer mu.Unlock()
		// Comparison progress arrives from many workers; print stage changes only.
		if stage != last {
			last = stage
			fmt.Fprintf(out, "%s %s\n", cyan(fmt.Sprintf("[%3d%%]", percent)), message)
		}
	}, pipeline.WithLogger(log))
	if err != nil {
		return err
	}
	return printSummary(out, res)
}

// applyFlags overrides file settings with flags the user set.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("out") {
		cfg.Output.Path = outPath
	}
	if flags.Changed("format") {
		cfg.Output.Format = outFormat
	}
	if flags.Changed("min-score") {
		cfg.Output.MinScore = minScore
	}
	if flags.Changed("workers") {
		cfg.Compare.Workers = workers
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON = logJSON
	}
}

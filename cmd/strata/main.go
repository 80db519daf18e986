// Package main provides the strata command: a thin wrapper around the
// resolution engine for loading a layer directory and resolving one
// request. Exit status is 0 on success (including truncated bundles,
// which are flagged in the output) and 1 on any typed failure.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/strata/pkg/config"
	"github.com/entrhq/strata/pkg/engine"
	"github.com/entrhq/strata/pkg/layer"
	"github.com/entrhq/strata/pkg/resolve"
)

const version = "0.1.0"

// cliConfig holds command-line configuration.
type cliConfig struct {
	LayerDir    string
	ConfigFile  string
	FilePath    string
	Domain      string
	Project     string
	Feature     string
	TaskType    string
	Budget      int
	AsOf        string
	CheckOnly   bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("strata v%s\n", version)
		return
	}

	if err := run(context.Background(), cli); err != nil {
		fmt.Fprintf(os.Stderr, "strata: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() *cliConfig {
	cli := &cliConfig{}

	flag.StringVar(&cli.LayerDir, "layers", ".strata", "Layer document directory")
	flag.StringVar(&cli.ConfigFile, "config", "", "Path to engine configuration file (JSON)")
	flag.StringVar(&cli.FilePath, "file", "", "Task file path for path-layer matching")
	flag.StringVar(&cli.Domain, "domain", "", "Domain layer name")
	flag.StringVar(&cli.Project, "project", "", "Project layer name")
	flag.StringVar(&cli.Feature, "feature", "", "Feature layer name")
	flag.StringVar(&cli.TaskType, "task", "", "Task type tag, carried into the bundle signature")
	flag.IntVar(&cli.Budget, "budget", 8000, "Token budget for the bundle")
	flag.StringVar(&cli.AsOf, "asof", "", "Archival reference time (RFC 3339, default now)")
	flag.BoolVar(&cli.CheckOnly, "check", false, "Validate the layer directory and exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")
	flag.Parse()

	return cli
}

func run(ctx context.Context, cli *cliConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return err
	}

	eng, err := engine.New(cfg.EngineOptions())
	if err != nil {
		return err
	}

	if _, err := eng.Reload(ctx, layer.NewOsDirSource(cli.LayerDir)); err != nil {
		return err
	}

	if cli.CheckOnly {
		snap := eng.Snapshot()
		fmt.Printf("snapshot %s: %d layers, hash %016x\n", snap.ID(), snap.LayerCount(), snap.Hash())
		for _, w := range snap.Warnings() {
			fmt.Printf("warning: %s\n", w)
		}
		return nil
	}

	req := resolve.Request{
		FilePath:     cli.FilePath,
		Domain:       cli.Domain,
		Project:      cli.Project,
		Feature:      cli.Feature,
		TaskType:     cli.TaskType,
		BudgetTokens: cli.Budget,
	}
	if cli.AsOf != "" {
		asOf, err := time.Parse(time.RFC3339, cli.AsOf)
		if err != nil {
			return fmt.Errorf("invalid -asof: %w", err)
		}
		req.AsOf = asOf
	}

	bundle, err := eng.Resolve(ctx, req)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	os.Stdout.Write(out)

	if bundle.Truncated {
		fmt.Fprintln(os.Stderr, "strata: bundle truncated to fit budget")
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/enchere-labs/marketsim/internal/logger"
	"github.com/enchere-labs/marketsim/internal/scenario"
	"github.com/enchere-labs/marketsim/internal/simulation"
	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/internal/writer"
)

// runAction executes one simulation run and exports its result record.
func runAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	// An interrupt finishes the in-flight step, flushes a checkpoint and
	// still exports the partial result.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := simulation.NewManager(cfg, log)
	if err != nil {
		return err
	}
	if manager.Ledger() != nil {
		defer manager.Ledger().Close()
	}

	bar := progressbar.Default(cfg.Steps, "simulating")
	manager.SetProgress(func(step int64) {
		bar.Add(1)
	})

	result, runErr := manager.Run(ctx)
	bar.Finish()

	outputDir := cmd.String("output")
	runDir, err := writer.NewCSVWriter(outputDir).Write(result)
	if err != nil {
		return err
	}
	log.Info("result exported", zap.String("dir", runDir))

	if cmd.Bool("parquet") && manager.Ledger() != nil {
		if err := manager.Ledger().ExportParquet(runDir); err != nil {
			log.Warn("parquet export failed", zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}

	fmt.Printf("run %s: %d transactions, %d volume over %d steps\n",
		result.RunID, result.Summary.TotalTransactions, result.Summary.TotalVolume, result.Summary.StepsCompleted)

	return nil
}

// resumeAction continues a run from a checkpoint file.
func resumeAction(ctx context.Context, cmd *cli.Command) error {
	log, err := newLogger(cmd.Bool("verbose"))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	cp, err := simulation.ReadCheckpoint(cmd.String("checkpoint"))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := simulation.NewManagerFromCheckpoint(cp, log)
	if err != nil {
		return err
	}
	if manager.Ledger() != nil {
		defer manager.Ledger().Close()
	}

	result, runErr := manager.Run(ctx)

	runDir, err := writer.NewCSVWriter(cmd.String("output")).Write(result)
	if err != nil {
		return err
	}
	log.Info("result exported", zap.String("dir", runDir))

	return runErr
}

// schemaAction prints the configuration JSON schema.
func schemaAction(ctx context.Context, cmd *cli.Command) error {
	cfg := types.DefaultConfig()
	schema, err := cfg.GenerateSchemaJSON()
	if err != nil {
		return err
	}
	fmt.Println(schema)

	return nil
}

func newLogger(verbose bool) (*logger.Logger, error) {
	if verbose {
		return logger.NewDebugLogger()
	}

	return logger.NewLogger()
}

// buildConfig assembles the run configuration: a config file when given,
// defaults otherwise, with explicit flags overriding either.
func buildConfig(cmd *cli.Command) (types.SimulationConfig, error) {
	cfg := types.DefaultConfig()

	if path := cmd.String("config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return types.SimulationConfig{}, fmt.Errorf("failed to read config file: %w", err)
		}
		cfg, err = types.LoadConfig(data)
		if err != nil {
			return types.SimulationConfig{}, err
		}
	}

	if cmd.IsSet("scenario") {
		cfg.Scenario = cmd.String("scenario")
	}
	if cmd.IsSet("steps") {
		cfg.Steps = cmd.Int("steps")
	}
	if cmd.IsSet("buyers") {
		cfg.Buyers = cmd.Int("buyers")
	}
	if cmd.IsSet("sellers") {
		cfg.Sellers = cmd.Int("sellers")
	}
	if cmd.IsSet("items") {
		cfg.Items = cmd.Int("items")
	}
	if cmd.IsSet("seed") {
		cfg.Seed = cmd.Uint("seed")
	}
	if cmd.IsSet("order-ttl") {
		cfg.OrderTTL = cmd.Int("order-ttl")
	}
	if cmd.IsSet("checkpoint-interval") {
		cfg.CheckpointInterval = cmd.Int("checkpoint-interval")
	}
	if cmd.IsSet("checkpoint-dir") {
		cfg.CheckpointDir = cmd.String("checkpoint-dir")
	}

	return cfg, cfg.Validate()
}

func main() {
	cmd := &cli.Command{
		Name:  "simulate",
		Usage: "Run collectibles market simulations",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Execute a simulation run and export its result",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "scenario",
						Aliases: []string{"n"},
						Usage:   fmt.Sprintf("Scenario name, one of %v", scenario.Names()),
						Value:   "baseline",
					},
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of simulated time steps",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "buyers",
						Usage: "Number of buyer agents",
						Value: 30,
					},
					&cli.IntFlag{
						Name:  "sellers",
						Usage: "Number of seller agents",
						Value: 20,
					},
					&cli.IntFlag{
						Name:  "items",
						Usage: "Catalog size",
						Value: 10,
					},
					&cli.UintFlag{
						Name:    "seed",
						Aliases: []string{"s"},
						Usage:   "RNG seed; identical seeds reproduce identical runs",
						Value:   1,
					},
					&cli.IntFlag{
						Name:  "order-ttl",
						Usage: "Expire resting orders after N steps; 0 keeps them until filled",
						Value: 5,
					},
					&cli.IntFlag{
						Name:  "checkpoint-interval",
						Usage: "Persist a snapshot every N steps; 0 disables",
						Value: 50,
					},
					&cli.StringFlag{
						Name:  "checkpoint-dir",
						Usage: "Directory for checkpoint snapshots",
						Value: "checkpoints",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory for exported result records",
						Value:   "results",
					},
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "YAML configuration file; flags override its values",
					},
					&cli.BoolFlag{
						Name:  "parquet",
						Usage: "Also export the order/transaction ledger as Parquet",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Enable debug logging",
					},
				},
				Action: runAction,
			},
			{
				Name:  "resume",
				Usage: "Resume a run from a checkpoint snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "checkpoint",
						Usage:    "Path to the checkpoint JSON file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Directory for exported result records",
						Value:   "results",
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "Enable debug logging",
					},
				},
				Action: resumeAction,
			},
			{
				Name:   "schema",
				Usage:  "Print the configuration JSON schema",
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

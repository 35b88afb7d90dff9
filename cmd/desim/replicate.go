package main

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/desim/desim/config"
	"github.com/desim/desim/replication"
)

var (
	replications int
	parallelism  int
)

var replicateCmd = &cobra.Command{
	Use:   "replicate",
	Short: "Launch independent replications, one child process each",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				logrus.Fatal(err)
			}
			cfg = loaded
		}

		if replications > cfg.SimRandom.MaxReplications {
			logrus.Fatalf("%d replications exceed SimRandom.MaxReplications (%d)",
				replications, cfg.SimRandom.MaxReplications)
		}

		binary, err := os.Executable()
		if err != nil {
			logrus.Fatal(err)
		}

		childArgs := []string{
			"run",
			"--warmup", strconv.FormatFloat(warmup, 'g', -1, 64),
			"--batch-length", strconv.FormatFloat(batchLength, 'g', -1, 64),
			"--num-batches", strconv.Itoa(numBatches),
			"--db", dbPath,
			"--log-level", logLevel,
		}
		if configPath != "" {
			childArgs = append(childArgs, "--config", configPath)
		}

		driver := replication.NewDriver(binary, childArgs...)
		driver.Parallelism = parallelism
		if err := driver.Run(replications); err != nil {
			logrus.Fatal(err)
		}
	},
}

func init() {
	replicateCmd.Flags().IntVar(&replications, "replications", 10, "Number of replications")
	replicateCmd.Flags().IntVar(&parallelism, "parallelism", 0, "Concurrent children (0 = all at once)")
	replicateCmd.Flags().Float64Var(&warmup, "warmup", 4000, "Warmup length in base time units")
	replicateCmd.Flags().Float64Var(&batchLength, "batch-length", 10000, "Batch length in base time units")
	replicateCmd.Flags().IntVar(&numBatches, "num-batches", 10, "Number of batches after warmup")
	replicateCmd.Flags().StringVar(&dbPath, "db", "desim_out", "Output database path prefix")
	rootCmd.AddCommand(replicateCmd)
}

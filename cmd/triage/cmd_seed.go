package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/repository"
	"github.com/spec-kit/triage-engine/internal/seed"
)

var (
	seedBatches   int
	seedBatchSize int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic tickets and insert them as New",
	RunE:  runSeed,
}

func init() {
	seedCmd.Flags().IntVar(&seedBatches, "batches", 1, "Number of generation batches")
	seedCmd.Flags().IntVar(&seedBatchSize, "batch-size", 5, "Tickets per batch")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	generator, ok := a.classifier.(seed.TextGenerator)
	if !ok {
		return errors.New("seeding requires a configured LLM provider")
	}

	seeder := seed.NewSeeder(generator, repository.NewTicketRepository(a.pg.PoolHandle()), a.logger)
	total, err := seeder.Run(ctx, seedBatches, seedBatchSize)
	if err != nil {
		return err
	}

	a.logger.Info("data generation complete", zap.Int("inserted", total))
	a.logger.Info("run 'triage batch' to classify the new tickets")
	return nil
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-engine/internal/repository"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Classify all tickets in status New and report cache savings",
	RunE:  runBatch,
}

func runBatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.logger.Info("starting batch triage run")

	// One transactional scope for the whole run. Per-ticket failures are
	// isolated inside ProcessAll; the final commit covers the mutations of
	// every ticket that succeeded.
	tx, err := a.pg.PoolHandle().Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	report, err := a.triage.ProcessAll(ctx, repository.NewTicketRepository(tx))
	if err != nil {
		return err
	}

	if report.Processed == 0 && report.Failures == 0 {
		a.logger.Info("no changes were made")
		return nil
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	a.logger.Info("batch processing complete",
		zap.Int("processed", report.Processed),
		zap.Int("model_calls", report.ModelCalls),
		zap.Int("cache_hits", report.CacheHits),
		zap.Int("failures", report.Failures),
	)
	return nil
}

// triage is the service CLI: serve (HTTP ingestion + deferred
// classification), batch (bulk reprocessing of New tickets), seed
// (synthetic data generation).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Intelligent ticket triage engine",
	Long: `Triages free-text support tickets into a fixed category set with an LLM
classifier, shielded by an exact-match fingerprint cache and a semantic
similarity cache.`,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Package cmd defines and implements the CLI commands for the harvester executable.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newCrawlCmd creates the 'crawl' subcommand. Its flags override the matching
// config keys; see config.Load.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Harvests documents for a range of proceedings years",
		Long: `Crawls every year from --from to --to, downloads each paper's documents
into the configured store and prints a summary. The run waits up to
--drain-timeout for in-flight downloads before reporting partial results.`,
		Args: cobra.NoArgs,
		RunE: runCrawlCommand,
	}
	f := cmd.Flags()
	f.Int("from", 2021, "first proceedings year")
	f.Int("to", 2021, "last proceedings year (inclusive)")
	f.Int("workers", 30, "parallel item workers")
	f.String("output", "mydocuments", "output directory for the local store")
	f.Duration("drain-timeout", 0, "time to wait for in-flight downloads (default 30m)")
	f.String("report", "", "write a JSON report to this path")
	f.String("addr", "", "serve status and metrics on this address, e.g. :8080")
	f.String("storage", "", "storage backend: local, gcs or memory (default local)")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	defer closeApp(cmd.Context())
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.GetLogger()

	rep, err := appInstance.Run(cmd.Context())
	if err != nil {
		return err
	}
	if n := len(rep.PartitionErrors); n > 0 {
		logger.Warn("crawl finished with failed partitions", zap.Int("partitions", n))
		return fmt.Errorf("%w (%d)", errPartitionsFailed, n)
	}
	logger.Info("crawl command finished", zap.String("run_id", rep.RunID))
	return nil
}

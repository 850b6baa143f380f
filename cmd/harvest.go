package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
	"github.com/tanukirift/novelpress/internal/fetcher"
	"github.com/tanukirift/novelpress/internal/orchestrate"
)

// newHarvestCmd creates the 'harvest' subcommand.
func newHarvestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvest <work-url> [work-url...]",
		Short: "Fetch a work's index and episodes into JSON records",
		Long: `Fetches each work's table of contents, groups episodes into volumes,
downloads and cleans every episode, and writes the result as an index
plus per-volume JSON files under the output directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runHarvestCommand,
	}
	cmd.Flags().String("output", "", "base output directory")
	cmd.Flags().Int("concurrency", 0, "number of parallel episode fetches")
	cmd.Flags().Duration("delay", 0, "per-worker delay between episodes")
	cmd.Flags().Int("max-episodes", 0, "cap on episodes per work, for testing")
	_ = viper.BindPFlag("harvest.output_dir", cmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("harvest.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("harvest.delay", cmd.Flags().Lookup("delay"))
	_ = viper.BindPFlag("harvest.max_episodes", cmd.Flags().Lookup("max-episodes"))
	return cmd
}

func runHarvestCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	fetchCfg, err := config.LoadFetch(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load fetch config: %w", err)
	}
	harvestCfg, err := config.LoadHarvest(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load harvest config: %w", err)
	}

	f := fetcher.New(fetcher.Options{
		Retries:     fetchCfg.Retries,
		BackoffBase: fetchCfg.BackoffBase,
		Timeout:     fetchCfg.Timeout,
		UserAgent:   fetchCfg.UserAgent,
		HostQPS:     fetchCfg.HostQPS,
	}, logger)
	harvester := orchestrate.NewHarvester(f, appInstance.Store(), harvestCfg, logger)

	var total orchestrate.Summary
	for _, workURL := range args {
		idx, sum, err := harvester.HarvestWork(cmd.Context(), workURL)
		if err != nil {
			return fmt.Errorf("harvest %s: %w", workURL, err)
		}
		total.Completed += sum.Completed
		total.Failed += sum.Failed
		total.Skipped += sum.Skipped
		logger.Info("work harvested",
			zap.String("slug", idx.Slug),
			zap.Int("chapters", idx.TotalChapters))
	}

	logger.Info("harvest finished", zap.String("summary", total.String()))
	return total.Err()
}

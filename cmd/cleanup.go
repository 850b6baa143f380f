package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/progress"
)

// newCleanupCmd creates the 'cleanup' subcommand.
func newCleanupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup [work-slug...]",
		Short: "Reset failed chapters so the next translate run retries them",
		RunE:  runCleanupCommand,
	}
	return cmd
}

func runCleanupCommand(cmd *cobra.Command, args []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()
	st := appInstance.Store()

	slugs := args
	if len(slugs) == 0 {
		slugs, err = st.ListWorks()
		if err != nil {
			return err
		}
	}

	total := 0
	for _, slug := range slugs {
		tracker := progress.NewTracker(st.ProgressPath(slug), logger)
		n, err := tracker.ResetFailed(slug)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("failed chapters reset",
				zap.String("slug", slug), zap.Int("count", n))
		}
		total += n
	}

	logger.Info("cleanup finished", zap.Int("reset", total))
	return nil
}

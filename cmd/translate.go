package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tanukirift/novelpress/internal/config"
	"github.com/tanukirift/novelpress/internal/orchestrate"
	"github.com/tanukirift/novelpress/internal/store"
	"github.com/tanukirift/novelpress/internal/translate"
)

// newTranslateCmd creates the 'translate' subcommand.
func newTranslateCmd() *cobra.Command {
	var (
		overwrite    bool
		skipChapters []string
	)

	cmd := &cobra.Command{
		Use:   "translate [work-slug...]",
		Short: "Translate harvested works into the target language",
		Long: `Translates every chapter of the named works (or all harvested works)
using the configured provider. Progress is durable: interrupted runs
resume where they left off, and chapters whose source is unchanged are
never re-translated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslateCommand(cmd, args, overwrite, skipChapters)
		},
	}
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-translate chapters even when the source is unchanged")
	cmd.Flags().StringSliceVar(&skipChapters, "skip", nil, "chapter slugs to skip")
	cmd.Flags().Int("concurrency", 0, "number of parallel chapter translations")
	cmd.Flags().Duration("delay", 0, "per-worker delay between chapters")
	_ = viper.BindPFlag("translate.concurrency", cmd.Flags().Lookup("concurrency"))
	_ = viper.BindPFlag("translate.delay", cmd.Flags().Lookup("delay"))
	return cmd
}

func runTranslateCommand(cmd *cobra.Command, args []string, overwrite bool, skipChapters []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	logger := appInstance.Logger()

	translateCfg, err := config.LoadTranslate(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load translate config: %w", err)
	}

	provider, err := translate.New(cmd.Context(), translateCfg, logger)
	if err != nil {
		return fmt.Errorf("init translator: %w", err)
	}
	translator := translate.WithRetry(provider, translateCfg.MaxAttempts, translateCfg.BackoffBase, logger)

	var publisher orchestrate.ChapterPublisher
	dbCfg := config.LoadDatabase(viper.GetViper())
	if dbCfg.DSN != "" {
		chapterStore, err := store.NewChapterStore(cmd.Context(), store.ChapterStoreConfig{
			DSN:   dbCfg.DSN,
			Table: dbCfg.Table,
		})
		if err != nil {
			return fmt.Errorf("init publication sink: %w", err)
		}
		defer chapterStore.Close()
		publisher = chapterStore
		logger.Info("publication sink enabled", zap.String("table", dbCfg.Table))
	}

	tx := orchestrate.NewTranslation(translator, appInstance.Store(), publisher, translateCfg, logger)
	sum, err := tx.TranslateAll(cmd.Context(), orchestrate.TranslateOptions{
		Works:        args,
		SkipChapters: skipChapters,
		Overwrite:    overwrite,
	})
	if err != nil {
		return err
	}

	logger.Info("translation finished", zap.String("summary", sum.String()))
	return sum.Err()
}

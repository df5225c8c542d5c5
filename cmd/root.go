package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mkivela/tagdex/cmd/aggregate"
	"github.com/mkivela/tagdex/cmd/ingest"
	"github.com/mkivela/tagdex/cmd/tags"
	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tagdex",
		Short: "tagdex CLI",
		Long:  "Reorganize a bucketed image dump into a deduplicated content-addressed SQLite store.",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		ingest.Command(settings),
		aggregate.Command(settings),
		tags.Command(settings),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if settings.Debug {
			logging.Init(slog.LevelDebug)
		}
		// Flags may have overridden paths; re-derive everything that hangs
		// off them before validating.
		if err := conf.ResolveSettings(settings); err != nil {
			return err
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Dataset.Root, "root", viper.GetString("dataset.root"), "Dataset root directory")
	rootCmd.PersistentFlags().StringVar(&settings.Dataset.ImageDir, "images", viper.GetString("dataset.imagedir"), "Bucketed image directory, located under the root when empty")
	rootCmd.PersistentFlags().StringVar(&settings.Dataset.MetaDir, "metadata", viper.GetString("dataset.metadir"), "Metadata shard directory, located under the root when empty")
	rootCmd.PersistentFlags().StringVarP(&settings.Output.Dir, "output", "o", viper.GetString("output.dir"), "Output project directory")
	rootCmd.PersistentFlags().StringVar(&settings.Output.SQLite.Path, "database", viper.GetString("output.sqlite.path"), "SQLite database file path")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}

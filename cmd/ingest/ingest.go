// Package ingest implements the ingest subcommand: the end-to-end run that
// turns the source dataset into the content-addressed store.
package ingest

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/dataset"
	"github.com/mkivela/tagdex/internal/datastore"
	"github.com/mkivela/tagdex/internal/observability"
	"github.com/mkivela/tagdex/internal/pipeline"
)

// Command creates a new cobra.Command for dataset ingestion.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest the dataset into the content-addressed store",
		Long:  "Read metadata shards, deduplicate images by pixel content and write posts, tags and images into the output layout.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(settings)
		},
	}

	setupFlags(cmd, settings)

	return cmd
}

// setupFlags defines flags specific to the ingest command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) {
	cmd.Flags().StringVar(&settings.Dataset.Aggregate, "aggregate", viper.GetString("dataset.aggregate"), "Ingest from an aggregate metadata file instead of shards")
	cmd.Flags().IntVar(&settings.Pipeline.CommitBatch, "commit-batch", viper.GetInt("pipeline.commitbatch"), "Records per commit, 0 or less commits once at the end")
	cmd.Flags().IntVar(&settings.Pipeline.Budget, "budget", viper.GetInt("pipeline.budget"), "Total worker slots across all stages")
	cmd.Flags().BoolVar(&settings.Pipeline.MoveImages, "move", viper.GetBool("pipeline.moveimages"), "Move images into the output layout instead of copying")
	cmd.Flags().BoolVar(&settings.Pipeline.ExcludeBlanks, "exclude-blanks", viper.GetBool("pipeline.excludeblanks"), "Drop single flat color images")
	cmd.Flags().BoolVar(&settings.Pipeline.VerifyDuplicates, "verify-duplicates", viper.GetBool("pipeline.verifyduplicates"), "Re-verify pixel equality before merging a hash match")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		fmt.Printf("error binding ingest flags: %v\n", err)
	}
}

// Run executes a full ingestion. Interrupts stop admission cleanly: whatever
// is in flight still drains to the store before Run returns.
func Run(settings *conf.Settings) error {
	if err := resolveDatasetDirs(settings); err != nil {
		return err
	}
	if err := conf.EnsureOutputDirs(settings); err != nil {
		return err
	}

	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := pipeline.New(settings, store, metrics).Run(ctx)
	if stats != nil {
		printSummary(stats)
	}
	return err
}

// resolveDatasetDirs fills the image and metadata directories from the layout
// heuristics when the configuration leaves them empty.
func resolveDatasetDirs(settings *conf.Settings) error {
	if settings.Dataset.ImageDir == "" {
		dir, err := dataset.LocateImageDir(settings.Dataset.Root)
		if err != nil {
			return err
		}
		settings.Dataset.ImageDir = dir
	}
	if settings.Dataset.Aggregate != "" {
		return nil
	}
	if settings.Dataset.MetaDir == "" {
		dir, err := dataset.LocateMetaDir(settings.Dataset.Root, settings.Dataset.ImageDir)
		if err != nil {
			return err
		}
		settings.Dataset.MetaDir = dir
	}
	return nil
}

func printSummary(stats *pipeline.Stats) {
	fmt.Printf("Read %d records: %d posts, %d merged duplicates, %d conflicts, %d dropped\n",
		stats.RecordsRead, stats.Posts, stats.Merged, stats.Conflicts, stats.Dropped)
	fmt.Printf("Committed %d batches, placed %d images\n", stats.Commits, stats.ImagesPlaced)
	fmt.Printf("Elapsed time: %s\n", formatDuration(stats.Elapsed))
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	s := d - m*time.Minute
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s/time.Second)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s/time.Second)
	}
	return fmt.Sprintf("%ds", s/time.Second)
}

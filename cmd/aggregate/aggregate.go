// Package aggregate implements the aggregate subcommand: concatenating the
// metadata shards into a single allmetadata.json array file.
package aggregate

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/dataset"
)

// Command creates a new cobra.Command for aggregate metadata generation.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		minimal bool
		outPath string
	)

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Concatenate metadata shards into a single allmetadata.json",
		Long:  "Collect every shard record into one JSON array file. With --minimal only the canonical fields are kept and records without an image on disk are dropped.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, minimal, outPath)
		},
	}

	cmd.Flags().BoolVar(&minimal, "minimal", false, "Keep only the canonical fields and drop records without an image")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file path, defaults to <output dir>/"+dataset.AggregateFileName)

	return cmd
}

func run(settings *conf.Settings, minimal bool, outPath string) error {
	if settings.Dataset.MetaDir == "" {
		imageDir := settings.Dataset.ImageDir
		if minimal && imageDir == "" {
			dir, err := dataset.LocateImageDir(settings.Dataset.Root)
			if err != nil {
				return err
			}
			imageDir = dir
			settings.Dataset.ImageDir = dir
		}
		dir, err := dataset.LocateMetaDir(settings.Dataset.Root, imageDir)
		if err != nil {
			return err
		}
		settings.Dataset.MetaDir = dir
	}

	if outPath == "" {
		if err := conf.EnsureOutputDirs(settings); err != nil {
			return err
		}
		outPath = filepath.Join(settings.Output.Dir, dataset.AggregateFileName)
	}

	opts := dataset.AggregateOptions{Minimal: minimal}
	if minimal {
		if settings.Dataset.ImageDir == "" {
			dir, err := dataset.LocateImageDir(settings.Dataset.Root)
			if err != nil {
				return err
			}
			settings.Dataset.ImageDir = dir
		}
		opts.Locator = dataset.NewLocator(settings.Dataset.ImageDir)
	}

	n, err := dataset.WriteAggregate(settings.Dataset.MetaDir, outPath, opts)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %d records to %s\n", n, outPath)
	return nil
}

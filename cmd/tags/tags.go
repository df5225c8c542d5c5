// Package tags implements the tags subcommand: exporting the distinct tag
// list from the store, most frequent first, one tag per line.
package tags

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/datastore"
	"github.com/mkivela/tagdex/internal/errors"
)

// Command creates a new cobra.Command for tag list export.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		outPath    string
		minCount   int
		withCounts bool
	)

	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Export the tag list from the store",
		Long:  "Write every distinct tag to a text file ordered by post count descending, one tag per line.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(settings, outPath, minCount, withCounts)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Output file path, defaults to <output dir>/tags.txt")
	cmd.Flags().IntVar(&minCount, "min-count", 1, "Only export tags carried by at least this many posts")
	cmd.Flags().BoolVar(&withCounts, "counts", false, "Append the post count after each tag")

	return cmd
}

func run(settings *conf.Settings, outPath string, minCount int, withCounts bool) error {
	store := datastore.New(settings)
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	counts, err := store.TagCounts()
	if err != nil {
		return err
	}

	if outPath == "" {
		if err := conf.EnsureOutputDirs(settings); err != nil {
			return err
		}
		outPath = filepath.Join(settings.Output.Dir, "tags.txt")
	}

	f, err := os.Create(outPath)
	if err != nil {
		return errors.New(err).
			Category(errors.CategoryFileIO).
			Context("path", outPath).
			Build()
	}

	w := bufio.NewWriter(f)
	written := 0
	for _, tc := range counts {
		if tc.PostCount < minCount {
			continue
		}
		if withCounts {
			fmt.Fprintf(w, "%s %d\n", tc.Tag, tc.PostCount)
		} else {
			fmt.Fprintln(w, tc.Tag)
		}
		written++
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Printf("Wrote %d tags to %s\n", written, outPath)
	return nil
}

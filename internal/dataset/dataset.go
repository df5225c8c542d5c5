// Package dataset understands the sharded, bucketed source layout: metadata
// shard files named <year><bucket>.json holding one JSON record per line, and
// images stored under subdirectories named after the last three digits of the
// record id.
package dataset

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/mkivela/tagdex/internal/errors"
)

// AggregateFileName is the single-array metadata file produced by the
// aggregate command and accepted as an alternative ingestion source.
const AggregateFileName = "allmetadata.json"

var (
	// bucketDirRE matches the image bucket directories, e.g. "0123".
	bucketDirRE = regexp.MustCompile(`^0\d{3}$`)
	// shardFileRE matches the metadata shard files, e.g. "2021000.json".
	shardFileRE = regexp.MustCompile(`^\d{4}\d+\.json$`)
)

// IsShardFile reports whether name follows the shard naming convention.
func IsShardFile(name string) bool {
	return shardFileRE.MatchString(name)
}

// ShardFiles returns the shard files in metaDir sorted by name so that runs
// enumerate shards in a deterministic order.
func ShardFiles(metaDir string) ([]string, error) {
	entries, err := os.ReadDir(metaDir)
	if err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("dir", metaDir).
			Build()
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && IsShardFile(entry.Name()) {
			files = append(files, filepath.Join(metaDir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// LocateImageDir searches below root for the first directory containing more
// than one image bucket subdirectory. It does not check that the buckets
// actually contain images.
func LocateImageDir(root string) (string, error) {
	dir := locateByChildren(root, func(d string) bool {
		entries, err := os.ReadDir(d)
		if err != nil {
			return false
		}
		matching := 0
		for _, entry := range entries {
			if entry.IsDir() && bucketDirRE.MatchString(entry.Name()) {
				matching++
			}
		}
		return matching > 1
	}, "")
	if dir == "" {
		return "", errors.Newf("no image directory found under %s", root).
			Component("dataset").
			Category(errors.CategoryNotFound).
			Context("root", root).
			Build()
	}
	return dir, nil
}

// LocateMetaDir searches below root for the first directory containing either
// an aggregate metadata file or more than one shard file. imageDir is skipped
// during the initial search on the assumption that images and metadata live
// apart; if nothing is found elsewhere the image tree is searched too.
func LocateMetaDir(root, imageDir string) (string, error) {
	isMetaDir := func(d string) bool {
		entries, err := os.ReadDir(d)
		if err != nil {
			return false
		}
		shards := 0
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if entry.Name() == AggregateFileName {
				return true
			}
			if IsShardFile(entry.Name()) {
				shards++
			}
		}
		return shards > 1
	}

	if dir := locateByChildren(root, isMetaDir, imageDir); dir != "" {
		return dir, nil
	}
	if imageDir != "" {
		if dir := locateByChildren(imageDir, isMetaDir, ""); dir != "" {
			return dir, nil
		}
	}
	return "", errors.Newf("no metadata directory found under %s", root).
		Component("dataset").
		Category(errors.CategoryNotFound).
		Context("root", root).
		Build()
}

// locateByChildren walks the directory tree depth-first and returns the first
// directory for which match is true, skipping the skip subtree.
func locateByChildren(dir string, match func(string) bool, skip string) string {
	if skip != "" && dir == skip {
		return ""
	}
	if match(dir) {
		return dir
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if found := locateByChildren(filepath.Join(dir, entry.Name()), match, skip); found != "" {
			return found
		}
	}
	return ""
}

// maxLineSize bounds a single metadata line. Shard lines routinely exceed the
// bufio default of 64KiB.
const maxLineSize = 16 << 20

// ReadShard calls fn for every non-blank line of the shard file, with
// one-based line numbers. fn errors abort the read.
func ReadShard(path string, fn func(line []byte, lineNo int) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("shard", filepath.Base(path)).
			Build()
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64<<10), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn([]byte(line), lineNo); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("shard", filepath.Base(path)).
			Context("line", lineNo).
			Build()
	}
	return nil
}

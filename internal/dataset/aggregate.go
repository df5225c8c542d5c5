package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkivela/tagdex/internal/errors"
)

// AggregateOptions controls how the aggregate metadata file is produced.
type AggregateOptions struct {
	// Minimal projects each record down to MinimalKeys and drops records
	// whose image cannot be located.
	Minimal bool
	// Locator resolves record images; required when Minimal is set.
	Locator *Locator
}

// WriteAggregate concatenates every shard record in metaDir into a single
// JSON array at outPath, overwriting any existing file. Malformed lines are
// skipped when Minimal is set (they need reparsing); otherwise lines pass
// through untouched.
func WriteAggregate(metaDir, outPath string, opts AggregateOptions) (int, error) {
	if opts.Minimal && opts.Locator == nil {
		return 0, errors.Newf("minimal aggregation requires an image locator").
			Component("dataset").
			Category(errors.CategoryValidation).
			Build()
	}

	shards, err := ShardFiles(metaDir)
	if err != nil {
		return 0, err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return 0, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", outPath).
			Build()
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("["); err != nil {
		return 0, fmt.Errorf("writing aggregate: %w", err)
	}

	written := 0
	for _, shard := range shards {
		shardName := filepath.Base(shard)
		err := ReadShard(shard, func(line []byte, lineNo int) error {
			out := line
			if opts.Minimal {
				minimal, keep := minimizeLine(line, shardName, lineNo, opts.Locator)
				if !keep {
					return nil
				}
				out = minimal
			}
			if written > 0 {
				if _, err := w.WriteString(",\n"); err != nil {
					return err
				}
			}
			if _, err := w.Write(out); err != nil {
				return err
			}
			written++
			return nil
		})
		if err != nil {
			return written, err
		}
	}

	if _, err := w.WriteString("]"); err != nil {
		return written, fmt.Errorf("writing aggregate: %w", err)
	}
	if err := w.Flush(); err != nil {
		return written, fmt.Errorf("flushing aggregate: %w", err)
	}
	return written, nil
}

// minimizeLine projects a raw line down to MinimalKeys, preserving the
// original structural format of each kept field. Records that do not parse
// or whose image cannot be located are dropped.
func minimizeLine(line []byte, shard string, lineNo int, locator *Locator) ([]byte, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(line, &fields); err != nil {
		return nil, false
	}

	raw, err := ParseRecord(line, shard, lineNo)
	if err != nil {
		return nil, false
	}
	if _, ok := locator.Locate(raw.SourceID()); !ok {
		return nil, false
	}

	minimal := make(map[string]json.RawMessage, len(MinimalKeys))
	for _, key := range MinimalKeys {
		if v, ok := fields[key]; ok {
			minimal[key] = v
		}
	}
	out, err := json.Marshal(minimal)
	if err != nil {
		return nil, false
	}
	return out, true
}

// ReadAggregate streams the records of an aggregate metadata file, calling fn
// for each one. Records are numbered from one in file order.
func ReadAggregate(path string, fn func(raw *RawRecord) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))

	// Opening bracket of the array.
	if _, err := dec.Token(); err != nil {
		return errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}

	name := filepath.Base(path)
	index := 0
	for dec.More() {
		index++
		var msg json.RawMessage
		if err := dec.Decode(&msg); err != nil {
			return errors.New(err).
				Component("dataset").
				Category(errors.CategoryFileParsing).
				Context("path", path).
				Context("record", index).
				Build()
		}
		raw, err := ParseRecord(msg, name, index)
		if err != nil {
			return err
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	return nil
}

// source.go: the admission stage. Reads shard files (or the aggregate
// metadata file) and feeds raw records into the pipeline.
package pipeline

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/mkivela/tagdex/internal/dataset"
	"github.com/mkivela/tagdex/internal/errors"
)

// errFeedStopped aborts a shard read from inside the per-line callback when
// admission has been halted. Not an error condition.
var errFeedStopped = errors.Newf("record feed stopped").
	Component("pipeline").
	Category(errors.CategoryCancellation).
	Build()

// runSource feeds raw records into out. ctx stops admission; fatalCtx aborts
// blocked sends. Reads the aggregate file when one is configured, the shard
// directory otherwise.
func (p *Pipeline) runSource(ctx, fatalCtx context.Context, workers int, out chan<- *dataset.RawRecord) error {
	if p.settings.Dataset.Aggregate != "" {
		return p.runAggregateSource(ctx, fatalCtx, out)
	}
	return p.runShardSource(ctx, fatalCtx, workers, out)
}

// runShardSource distributes shard files across the source workers. Each file
// is read start-to-finish by exactly one worker, preserving within-file
// record order.
func (p *Pipeline) runShardSource(ctx, fatalCtx context.Context, workers int, out chan<- *dataset.RawRecord) error {
	files, err := dataset.ShardFiles(p.settings.Dataset.MetaDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.Newf("no shard files found in %s", p.settings.Dataset.MetaDir).
			Component("pipeline").
			Category(errors.CategoryNotFound).
			Build()
	}

	fileCh := make(chan string)
	go func() {
		defer close(fileCh)
		for _, file := range files {
			select {
			case fileCh <- file:
			case <-ctx.Done():
				p.log.Info("stop requested, halting shard admission")
				return
			case <-fatalCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range fileCh {
				p.readShardFile(ctx, fatalCtx, file, out)
			}
		}()
	}
	wg.Wait()
	return nil
}

// readShardFile emits every parseable record of one shard file. Read and
// parse failures are recoverable: they drop the line or the rest of the file,
// never the run.
func (p *Pipeline) readShardFile(ctx, fatalCtx context.Context, path string, out chan<- *dataset.RawRecord) {
	shard := filepath.Base(path)
	err := dataset.ReadShard(path, func(line []byte, lineNo int) error {
		if ctx.Err() != nil || fatalCtx.Err() != nil {
			return errFeedStopped
		}
		raw, err := dataset.ParseRecord(line, shard, lineNo)
		if err != nil {
			p.drop("parse_error", err, "shard", shard, "line", lineNo)
			return nil
		}
		return p.admit(fatalCtx, raw, out, "shard")
	})
	if err != nil && !errors.Is(err, errFeedStopped) {
		p.metrics.RecordStageError("source")
		p.log.Warn("shard read failed, skipping rest of file", "shard", shard, "error", err)
	}
}

// runAggregateSource emits every record of the aggregate metadata file. The
// file is a single JSON array, so it is always read by one worker.
func (p *Pipeline) runAggregateSource(ctx, fatalCtx context.Context, out chan<- *dataset.RawRecord) error {
	err := dataset.ReadAggregate(p.settings.Dataset.Aggregate, func(raw *dataset.RawRecord) error {
		if ctx.Err() != nil {
			p.log.Info("stop requested, halting aggregate admission")
			return errFeedStopped
		}
		if fatalCtx.Err() != nil {
			return errFeedStopped
		}
		return p.admit(fatalCtx, raw, out, "aggregate")
	})
	if errors.Is(err, errFeedStopped) {
		return nil
	}
	return err
}

// admit counts and sends one raw record downstream.
func (p *Pipeline) admit(fatalCtx context.Context, raw *dataset.RawRecord, out chan<- *dataset.RawRecord, source string) error {
	select {
	case out <- raw:
		p.stats.recordsRead.Add(1)
		p.metrics.RecordRead(source)
		return nil
	case <-fatalCtx.Done():
		return errFeedStopped
	}
}

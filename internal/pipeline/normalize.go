// normalize.go: the per-record worker stage. Projects raw records, locates
// and decodes their image, and assigns the content hash.
package pipeline

import (
	"context"

	"github.com/mkivela/tagdex/internal/dataset"
	"github.com/mkivela/tagdex/internal/imaging"
)

// runNormalize consumes raw records until the input channel closes. All
// per-record failures are logged and dropped; the worker itself only stops on
// input exhaustion or a fatal abort.
func (p *Pipeline) runNormalize(fatalCtx context.Context, in <-chan *dataset.RawRecord, out chan<- *dataset.NormalizedRecord) error {
	for raw := range in {
		rec, err := dataset.NormalizeRecord(raw)
		if err != nil {
			p.drop("invalid_record", err, "shard", raw.Shard, "line", raw.Line)
			continue
		}

		path, ok := p.locator.Locate(rec.SourceID)
		if !ok {
			p.drop("missing_image", nil, "source_id", rec.SourceID)
			continue
		}

		img, err := imaging.Decode(path)
		if err != nil {
			p.drop("decode_error", err, "source_id", rec.SourceID)
			continue
		}

		if p.settings.Pipeline.ExcludeBlanks && imaging.IsBlank(img) {
			p.drop("blank", nil, "source_id", rec.SourceID)
			continue
		}

		rec.ContentHash = imaging.Hash(img)
		rec.SourcePath = path

		select {
		case out <- rec:
		case <-fatalCtx.Done():
			return nil
		}
	}
	return nil
}

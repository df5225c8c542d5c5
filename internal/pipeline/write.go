// write.go: the single-writer stage. Applies drafts to the store in batched
// transactions and places image files into the content-addressed layout only
// after the covering transaction has committed.
package pipeline

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/mkivela/tagdex/internal/dataset"
	"github.com/mkivela/tagdex/internal/datastore"
)

// placement is an image file move deferred until its post is committed.
type placement struct {
	sourcePath string
	targetPath string
}

// runWrite is the only goroutine that touches the store. A store error here
// is fatal: it aborts the run with partial progress already committed.
func (p *Pipeline) runWrite(drafts <-chan *Draft) error {
	batch, err := p.store.Begin()
	if err != nil {
		return err
	}

	var pending []placement
	for draft := range drafts {
		if err := batch.Upsert(p.draftPost(draft)); err != nil {
			_ = batch.Rollback()
			return err
		}
		if draft.PlaceImage {
			pending = append(pending, placement{
				sourcePath: draft.SourcePath,
				targetPath: dataset.TargetPath(p.settings.Output.ImageDir, draft.ContentHash, draft.FileExtension),
			})
		}

		if limit := p.settings.Pipeline.CommitBatch; limit > 0 && batch.Applied() >= limit {
			if err := p.commitBatch(batch, &pending); err != nil {
				return err
			}
			if batch, err = p.store.Begin(); err != nil {
				return err
			}
		}
	}

	// The final commit always runs so the transaction never outlives the
	// stage; it only counts when it applied records.
	if batch.Applied() > 0 {
		return p.commitBatch(batch, &pending)
	}
	if err := batch.Commit(); err != nil {
		return err
	}
	p.placeImages(&pending)
	return nil
}

// draftPost converts a draft into its persisted form. The tag string is the
// canonical sorted unique join; the edge rebuild downstream tokenizes it back.
func (p *Pipeline) draftPost(draft *Draft) *datastore.Post {
	tagString := datastore.JoinTags(draft.Tags)
	return &datastore.Post{
		SourceID:      draft.SourceID,
		ContentHash:   draft.ContentHash,
		FileExtension: draft.FileExtension,
		TagString:     tagString,
		TagCount:      len(datastore.SplitTags(tagString)),
		Rating:        draft.Rating,
		Score:         draft.Score,
		IsDeleted:     draft.IsDeleted,
	}
}

// commitBatch commits the held transaction and only then executes the image
// placements it covered.
func (p *Pipeline) commitBatch(batch *datastore.Batch, pending *[]placement) error {
	start := time.Now()
	applied := batch.Applied()
	if err := batch.Commit(); err != nil {
		return err
	}
	p.stats.commits.Add(1)
	p.metrics.RecordCommit(time.Since(start).Seconds())
	p.log.Debug("batch committed", "applied", applied)

	p.placeImages(pending)
	return nil
}

// placeImages moves (or copies) committed images into the output layout.
// Placement failures are recoverable: the post row is already durable and a
// re-run will retry the file.
func (p *Pipeline) placeImages(pending *[]placement) {
	mode := "copy"
	if p.settings.Pipeline.MoveImages {
		mode = "move"
	}

	for _, pl := range *pending {
		if _, err := os.Stat(pl.targetPath); err == nil {
			// Already placed by an earlier run.
			continue
		}
		if err := placeImage(pl.sourcePath, pl.targetPath, p.settings.Pipeline.MoveImages); err != nil {
			p.metrics.RecordStageError("write")
			p.log.Warn("image placement failed",
				"source", pl.sourcePath,
				"target", pl.targetPath,
				"error", err)
			continue
		}
		p.stats.imagesPlaced.Add(1)
		p.metrics.RecordImageRelocated(mode)
	}
	*pending = (*pending)[:0]
}

func placeImage(sourcePath, targetPath string, move bool) error {
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return err
	}
	if move {
		if err := os.Rename(sourcePath, targetPath); err == nil {
			return nil
		}
		// Rename fails across filesystems; fall back to copy and remove.
		if err := copyFile(sourcePath, targetPath); err != nil {
			return err
		}
		return os.Remove(sourcePath)
	}
	return copyFile(sourcePath, targetPath)
}

func copyFile(sourcePath, targetPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(targetPath)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

// merge.go: the identity stage. A single goroutine owns the hash→draft map;
// no identity decision races another.
package pipeline

import (
	"context"
	"os"

	"github.com/mkivela/tagdex/internal/dataset"
	"github.com/mkivela/tagdex/internal/imaging"
)

// Draft is an immutable snapshot of one image identity, emitted to the write
// stage on first sight and again after every merge that changed it.
// PlaceImage is set on the first emit only: that is the send that carries the
// image into the output layout.
type Draft struct {
	ContentHash   string
	SourceID      string
	FileExtension string
	Rating        string
	Score         *int64
	IsDeleted     *bool
	Tags          []string
	SourcePath    string
	PlaceImage    bool
}

// identity is the merge stage's mutable per-hash state.
type identity struct {
	contentHash   string
	sourceID      string
	fileExtension string
	rating        string
	score         *int64
	isDeleted     *bool
	tags          map[string]struct{}
	sourcePath    string
}

func newIdentity(contentHash string, rec *dataset.NormalizedRecord) *identity {
	id := &identity{
		contentHash:   contentHash,
		sourceID:      rec.SourceID,
		fileExtension: rec.FileExtension,
		rating:        rec.Rating,
		score:         rec.Score,
		isDeleted:     rec.IsDeleted,
		tags:          make(map[string]struct{}, len(rec.Tags)),
		sourcePath:    rec.SourcePath,
	}
	for _, tag := range rec.Tags {
		id.tags[tag] = struct{}{}
	}
	return id
}

// absorb merges a duplicate sighting into the identity: tag union plus
// filling fields the first sighting lacked. Returns true when anything
// changed. SourceID, FileExtension and SourcePath stay first-seen.
func (id *identity) absorb(rec *dataset.NormalizedRecord) bool {
	changed := false
	for _, tag := range rec.Tags {
		if _, ok := id.tags[tag]; !ok {
			id.tags[tag] = struct{}{}
			changed = true
		}
	}
	if id.rating == "" && rec.Rating != "" {
		id.rating = rec.Rating
		changed = true
	}
	if id.score == nil && rec.Score != nil {
		id.score = rec.Score
		changed = true
	}
	if id.isDeleted == nil && rec.IsDeleted != nil {
		id.isDeleted = rec.IsDeleted
		changed = true
	}
	return changed
}

// draft snapshots the identity for the write stage.
func (id *identity) draft(placeImage bool) *Draft {
	tags := make([]string, 0, len(id.tags))
	for tag := range id.tags {
		tags = append(tags, tag)
	}
	return &Draft{
		ContentHash:   id.contentHash,
		SourceID:      id.sourceID,
		FileExtension: id.fileExtension,
		Rating:        id.rating,
		Score:         id.score,
		IsDeleted:     id.isDeleted,
		Tags:          tags,
		SourcePath:    id.sourcePath,
		PlaceImage:    placeImage,
	}
}

// runMerge folds normalized records into identities keyed by content hash.
// A repeat hash is re-verified against the first sighting's pixels when
// verification is enabled; a verified duplicate merges, a failed verification
// is an identity conflict and the record is kept as a distinct identity under
// a disambiguated hash.
func (p *Pipeline) runMerge(fatalCtx context.Context, in <-chan *dataset.NormalizedRecord, out chan<- *Draft) error {
	identities := make(map[string]*identity)

	for rec := range in {
		id, seen := identities[rec.ContentHash]
		if !seen {
			id = newIdentity(rec.ContentHash, rec)
			identities[rec.ContentHash] = id
			p.stats.posts.Add(1)
			p.metrics.RecordPostCreated()
			if err := p.emitDraft(fatalCtx, id.draft(true), out); err != nil {
				return nil
			}
			continue
		}

		if !p.settings.Pipeline.MergeDuplicates {
			p.drop("duplicate", nil, "source_id", rec.SourceID, "content_hash", rec.ContentHash)
			continue
		}

		if p.settings.Pipeline.VerifyDuplicates {
			same, err := imaging.SameFiles(p.identityPath(id), rec.SourcePath)
			if err != nil {
				// The hash match already argues for identity; with no
				// readable pixels to compare, the merge proceeds on the
				// hash alone rather than losing the record's tags.
				p.metrics.RecordStageError("merge")
				p.log.Warn("duplicate verification unavailable, merging on hash",
					"source_id", rec.SourceID,
					"content_hash", rec.ContentHash,
					"error", err)
				same = true
			}
			if !same {
				// Same hash, different pixels. The record keeps its own
				// identity under a hash disambiguated by source id.
				p.stats.conflicts.Add(1)
				p.metrics.RecordHashConflict()
				p.log.Warn("content hash collision with differing pixels",
					"content_hash", rec.ContentHash,
					"kept_source_id", id.sourceID,
					"conflicting_source_id", rec.SourceID)

				conflictHash := rec.ContentHash + "-" + rec.SourceID
				conflict, ok := identities[conflictHash]
				if !ok {
					conflict = newIdentity(conflictHash, rec)
					identities[conflictHash] = conflict
					p.stats.posts.Add(1)
					p.metrics.RecordPostCreated()
					if err := p.emitDraft(fatalCtx, conflict.draft(true), out); err != nil {
						return nil
					}
					continue
				}
				if conflict.absorb(rec) {
					if err := p.emitDraft(fatalCtx, conflict.draft(false), out); err != nil {
						return nil
					}
				}
				continue
			}
		}

		p.stats.merged.Add(1)
		p.metrics.RecordDuplicateMerged()
		if id.absorb(rec) {
			if err := p.emitDraft(fatalCtx, id.draft(false), out); err != nil {
				return nil
			}
		}
	}
	return nil
}

// identityPath returns the file currently holding an identity's pixels: the
// first-seen source file until the write stage relocates it, the
// content-addressed target afterwards. In move mode the source file is gone
// as soon as the covering batch commits, so verification must follow it.
func (p *Pipeline) identityPath(id *identity) string {
	if _, err := os.Stat(id.sourcePath); err == nil {
		return id.sourcePath
	}
	return dataset.TargetPath(p.settings.Output.ImageDir, id.contentHash, id.fileExtension)
}

func (p *Pipeline) emitDraft(fatalCtx context.Context, draft *Draft, out chan<- *Draft) error {
	select {
	case out <- draft:
		return nil
	case <-fatalCtx.Done():
		return fatalCtx.Err()
	}
}

// batch.go: the write path of the store. All mutation happens through a
// Batch, an open transaction applying coalescing upserts, so that commits can
// cover a configurable number of records.
package datastore

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mkivela/tagdex/internal/errors"
)

// Batch is an open write transaction. It is not safe for concurrent use; the
// write stage is the only holder.
type Batch struct {
	tx      *gorm.DB
	applied int
}

// Begin opens a write transaction for a batch of upserts.
func (ds *DataStore) Begin() (*Batch, error) {
	tx := ds.DB.Begin()
	if tx.Error != nil {
		return nil, errors.New(tx.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "begin_batch").
			Build()
	}
	return &Batch{tx: tx}, nil
}

// Applied returns the number of upserts applied since the batch was opened.
func (b *Batch) Applied() int {
	return b.applied
}

// Upsert inserts the post or updates the existing row with the same content
// hash. Updates coalesce per field: an incoming empty or absent value never
// overwrites a stored non-empty one. Whenever the effective tag string
// changes, the post's tag edges are rebuilt in the same transaction so the
// edge set never goes stale.
func (b *Batch) Upsert(post *Post) error {
	var existing Post
	err := b.tx.Where("content_hash = ?", post.ContentHash).First(&existing).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "upsert_lookup").
			Context("content_hash", post.ContentHash).
			Build()
	}

	err = b.tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "content_hash"}},
		DoUpdates: clause.Assignments(map[string]any{
			"source_id":      gorm.Expr("COALESCE(NULLIF(excluded.source_id, ''), source_id)"),
			"file_extension": gorm.Expr("COALESCE(NULLIF(excluded.file_extension, ''), file_extension)"),
			"tag_string":     gorm.Expr("COALESCE(NULLIF(excluded.tag_string, ''), tag_string)"),
			"tag_count":      gorm.Expr("CASE WHEN excluded.tag_string = '' THEN tag_count ELSE excluded.tag_count END"),
			"rating":         gorm.Expr("COALESCE(NULLIF(excluded.rating, ''), rating)"),
			"score":          gorm.Expr("COALESCE(excluded.score, score)"),
			"is_deleted":     gorm.Expr("COALESCE(excluded.is_deleted, is_deleted)"),
		}),
	}).Create(post).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "upsert_post").
			Context("content_hash", post.ContentHash).
			Build()
	}

	// Rebuild the tag edges only when the effective tag string changed; an
	// empty incoming tag string coalesces to the stored one and leaves the
	// edges untouched.
	if post.TagString != "" && (!found || post.TagString != existing.TagString) {
		if err := b.rebuildTagEdges(post.ContentHash, SplitTags(post.TagString)); err != nil {
			return err
		}
	}

	b.applied++
	return nil
}

// rebuildTagEdges replaces the edge set of a content hash, delete then
// reinsert, inside the batch transaction.
func (b *Batch) rebuildTagEdges(contentHash string, tags []string) error {
	if err := b.tx.Where("content_hash = ?", contentHash).Delete(&TagEdge{}).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "delete_tag_edges").
			Context("content_hash", contentHash).
			Build()
	}
	for _, tag := range tags {
		edge := TagEdge{ContentHash: contentHash, Tag: tag}
		if err := b.tx.Create(&edge).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "insert_tag_edge").
				Context("content_hash", contentHash).
				Context("tag", tag).
				Build()
		}
	}
	return nil
}

// Commit commits the transaction. The batch must not be reused afterwards.
func (b *Batch) Commit() error {
	if err := b.tx.Commit().Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "commit_batch").
			Context("applied", b.applied).
			Build()
	}
	return nil
}

// Rollback discards the transaction.
func (b *Batch) Rollback() error {
	return b.tx.Rollback().Error
}

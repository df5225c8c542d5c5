// model.go: persisted entities of the content-addressed store.
package datastore

import (
	"sort"
	"strings"
)

// Post is the canonical persisted record for one unique image identity.
// Identity is the content hash; SourceID is the first-seen source record id.
type Post struct {
	ID            uint   `gorm:"primaryKey"`
	SourceID      string `gorm:"index:idx_posts_source_id"`
	ContentHash   string `gorm:"uniqueIndex:idx_posts_content_hash;not null"`
	FileExtension string
	TagString     string // space-joined sorted unique tags
	TagCount      int
	Rating        string
	Score         *int64
	IsDeleted     *bool
}

// TagEdge is a persisted (identity, tag) pair, a queryable projection of a
// Post's tag set. The edge set for a content hash always equals the
// tokenization of the owning Post's tag string.
type TagEdge struct {
	ID          uint   `gorm:"primaryKey"`
	ContentHash string `gorm:"uniqueIndex:idx_tags_hash_tag;index:idx_tags_hash;not null"`
	Tag         string `gorm:"uniqueIndex:idx_tags_hash_tag;not null"`
}

// TableName maps TagEdge onto the tags table.
func (TagEdge) TableName() string { return "tags" }

// TagCount pairs a tag with the number of posts carrying it.
type TagPostCount struct {
	Tag       string
	PostCount int
}

// JoinTags builds the canonical tag string: sorted, unique, space-joined.
func JoinTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	seen := make(map[string]struct{}, len(tags))
	unique := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		unique = append(unique, tag)
	}
	sort.Strings(unique)
	return strings.Join(unique, " ")
}

// SplitTags tokenizes a tag string back into tags.
func SplitTags(tagString string) []string {
	return strings.Fields(tagString)
}

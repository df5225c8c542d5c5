package dataset

import (
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/mkivela/tagdex/internal/errors"
)

// MinimalKeys is the canonical field set a store record is projected from.
// Everything else in a raw shard record is discarded at the ingestion boundary.
var MinimalKeys = []string{"id", "tags", "md5", "file_ext", "rating", "score", "is_deleted"}

// RawRecord is a single shard-sourced metadata record, kept loose until
// normalization. Shard and Line identify its origin for error reports.
type RawRecord struct {
	obj   *jason.Object
	Shard string
	Line  int
}

// ParseRecord parses one shard line into a RawRecord.
func ParseRecord(line []byte, shard string, lineNo int) (*RawRecord, error) {
	obj, err := jason.NewObjectFromBytes(line)
	if err != nil {
		return nil, errors.New(err).
			Component("dataset").
			Category(errors.CategoryFileParsing).
			Context("shard", shard).
			Context("line", lineNo).
			Build()
	}
	return &RawRecord{obj: obj, Shard: shard, Line: lineNo}, nil
}

// SourceID returns the record id. Shards carry it either as a JSON number or
// as a string.
func (r *RawRecord) SourceID() string {
	if s, err := r.obj.GetString("id"); err == nil {
		return strings.TrimSpace(s)
	}
	if n, err := r.obj.GetInt64("id"); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// Tags returns the record's tag names in their original order. The dataset
// carries tags either as an array of objects with a "name" field or as a
// single space-separated string.
func (r *RawRecord) Tags() []string {
	if objs, err := r.obj.GetObjectArray("tags"); err == nil {
		tags := make([]string, 0, len(objs))
		for _, o := range objs {
			if name, err := o.GetString("name"); err == nil && name != "" {
				tags = append(tags, name)
			}
		}
		return tags
	}
	if arr, err := r.obj.GetStringArray("tags"); err == nil {
		return arr
	}
	if s, err := r.obj.GetString("tags"); err == nil {
		return strings.Fields(s)
	}
	return nil
}

// FileExtension returns the record's file extension without a leading dot,
// defaulting to jpg which is what the bucketed image layout stores.
func (r *RawRecord) FileExtension() string {
	if ext, err := r.obj.GetString("file_ext"); err == nil && ext != "" {
		return strings.TrimPrefix(ext, ".")
	}
	return "jpg"
}

// Rating returns the record's rating, empty when absent.
func (r *RawRecord) Rating() string {
	if rating, err := r.obj.GetString("rating"); err == nil {
		return rating
	}
	return ""
}

// Score returns the record's score, nil when absent.
func (r *RawRecord) Score() *int64 {
	if score, err := r.obj.GetInt64("score"); err == nil {
		return &score
	}
	// Some shards serialize score as a string.
	if s, err := r.obj.GetString("score"); err == nil {
		if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

// IsDeleted returns the record's deletion flag, nil when absent.
func (r *RawRecord) IsDeleted() *bool {
	if deleted, err := r.obj.GetBoolean("is_deleted"); err == nil {
		return &deleted
	}
	return nil
}

// NormalizedRecord is a raw record projected down to the canonical field set,
// validated, and carrying the resolved image location. ContentHash is
// assigned by the normalize stage once the image has been decoded.
type NormalizedRecord struct {
	SourceID      string
	Tags          []string // ordered-unique
	ContentHash   string
	FileExtension string
	Rating        string
	Score         *int64
	IsDeleted     *bool
	SourcePath    string
}

// NormalizeRecord projects a raw record to the canonical field set. Records
// without an id are rejected: without one the image cannot be located.
func NormalizeRecord(raw *RawRecord) (*NormalizedRecord, error) {
	sourceID := raw.SourceID()
	if sourceID == "" {
		return nil, errors.Newf("record missing required id field").
			Component("dataset").
			Category(errors.CategoryValidation).
			Context("shard", raw.Shard).
			Context("line", raw.Line).
			Build()
	}

	return &NormalizedRecord{
		SourceID:      sourceID,
		Tags:          uniqueOrdered(raw.Tags()),
		FileExtension: raw.FileExtension(),
		Rating:        raw.Rating(),
		Score:         raw.Score(),
		IsDeleted:     raw.IsDeleted(),
	}, nil
}

// uniqueOrdered removes duplicates while preserving first-seen order.
func uniqueOrdered(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

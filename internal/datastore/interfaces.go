// interfaces.go: the interface the rest of the application uses to talk to
// the store, plus the shared GORM-backed implementation.
package datastore

import (
	"log"
	"os"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mkivela/tagdex/internal/conf"
	"github.com/mkivela/tagdex/internal/errors"
)

// Interface abstracts the underlying database implementation. The store is a
// single-writer resource: all mutation goes through a Batch held by exactly
// one goroutine at a time.
type Interface interface {
	Open() error
	Close() error
	// Begin opens a write transaction for a batch of upserts.
	Begin() (*Batch, error)
	GetPostByHash(contentHash string) (*Post, error)
	CountPosts() (int64, error)
	AllPosts() ([]Post, error)
	// PostTags returns the tag edges of a post, sorted.
	PostTags(contentHash string) ([]string, error)
	// TagCounts returns every distinct tag with its post count, most
	// frequent first.
	TagCounts() ([]TagPostCount, error)
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB
}

// New creates a store instance for the configured backend.
func New(settings *conf.Settings) Interface {
	return &SQLiteStore{Settings: settings}
}

// GetPostByHash retrieves a post by its content hash.
func (ds *DataStore) GetPostByHash(contentHash string) (*Post, error) {
	var post Post
	err := ds.DB.Where("content_hash = ?", contentHash).First(&post).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Newf("no post with content hash %s", contentHash).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "get_post_by_hash").
			Build()
	}
	return &post, nil
}

// CountPosts returns the number of posts in the store.
func (ds *DataStore) CountPosts() (int64, error) {
	var count int64
	if err := ds.DB.Model(&Post{}).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count_posts").
			Build()
	}
	return count, nil
}

// AllPosts retrieves every post ordered by content hash.
func (ds *DataStore) AllPosts() ([]Post, error) {
	var posts []Post
	if err := ds.DB.Order("content_hash ASC").Find(&posts).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "all_posts").
			Build()
	}
	return posts, nil
}

// PostTags returns the tag edges for a content hash, sorted.
func (ds *DataStore) PostTags(contentHash string) ([]string, error) {
	var tags []string
	err := ds.DB.Model(&TagEdge{}).
		Where("content_hash = ?", contentHash).
		Order("tag ASC").
		Pluck("tag", &tags).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "post_tags").
			Build()
	}
	return tags, nil
}

// TagCounts returns every distinct tag with its post count, most frequent
// first, alphabetical within equal counts.
func (ds *DataStore) TagCounts() ([]TagPostCount, error) {
	var counts []TagPostCount
	err := ds.DB.Table("tags").
		Select("tag, COUNT(*) as post_count").
		Group("tag").
		Order("post_count DESC, tag ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "tag_counts").
			Build()
	}
	return counts, nil
}

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, debug bool, dbType, connectionInfo string) error {
	if err := db.AutoMigrate(&Post{}, &TagEdge{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migration").
			Context("db_type", dbType).
			Build()
	}

	if debug {
		log.Printf("%s database connection initialized: %s", dbType, connectionInfo)
	}

	return nil
}

// createGormLogger configures and returns a new GORM logger instance.
func createGormLogger() logger.Interface {
	return logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
			Colorful:      true,
		},
	)
}

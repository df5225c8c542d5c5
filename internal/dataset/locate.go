package dataset

import (
	"os"
	"path/filepath"
	"strings"
)

// Locator resolves a metadata record to its image file in the bucketed source
// layout: <imageDir>/<bucket>/<id>.jpg where the bucket is the last three
// digits of the id, zero-padded to four characters.
type Locator struct {
	ImageDir string
}

// NewLocator returns a Locator over imageDir.
func NewLocator(imageDir string) *Locator {
	return &Locator{ImageDir: imageDir}
}

// Locate returns the path of the image for sourceID and whether it exists.
func (l *Locator) Locate(sourceID string) (string, bool) {
	path := filepath.Join(l.ImageDir, SourceBucket(sourceID), sourceID+".jpg")
	if _, err := os.Stat(path); err != nil {
		return path, false
	}
	return path, true
}

// SourceBucket returns the bucket directory name for a record id: its last
// three digits left-padded with zeros to four characters.
func SourceBucket(sourceID string) string {
	s := sourceID
	if len(s) > 3 {
		s = s[len(s)-3:]
	}
	if len(s) < 4 {
		s = strings.Repeat("0", 4-len(s)) + s
	}
	return s
}

// TargetPath returns the content-addressed location for an image:
// <imageDir>/<hash[:2]>/<hash>.<ext>.
func TargetPath(imageDir, contentHash, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "jpg"
	}
	return filepath.Join(imageDir, contentHash[:2], contentHash+"."+ext)
}

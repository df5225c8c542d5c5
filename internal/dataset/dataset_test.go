package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsShardFile(t *testing.T) {
	assert.True(t, IsShardFile("2021000.json"))
	assert.True(t, IsShardFile("20195.json"))
	assert.False(t, IsShardFile("allmetadata.json"))
	assert.False(t, IsShardFile("202.json"))
	assert.False(t, IsShardFile("2021000.txt"))
	assert.False(t, IsShardFile("notes.json"))
}

func TestShardFilesSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"2021002.json", "2021000.json", "2021001.json", "readme.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644))
	}

	files, err := ShardFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "2021000.json", filepath.Base(files[0]))
	assert.Equal(t, "2021001.json", filepath.Base(files[1]))
	assert.Equal(t, "2021002.json", filepath.Base(files[2]))
}

func TestLocateImageDir(t *testing.T) {
	root := t.TempDir()
	imageDir := filepath.Join(root, "data", "512px")
	for _, bucket := range []string{"0000", "0001", "0777"} {
		require.NoError(t, os.MkdirAll(filepath.Join(imageDir, bucket), 0o755))
	}

	found, err := LocateImageDir(root)
	require.NoError(t, err)
	assert.Equal(t, imageDir, found)
}

func TestLocateImageDirNotFound(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "0001"), 0o755)) // single bucket is not enough

	_, err := LocateImageDir(root)
	assert.Error(t, err)
}

func TestLocateMetaDirSkipsImageTree(t *testing.T) {
	root := t.TempDir()
	imageDir := filepath.Join(root, "images")
	metaDir := filepath.Join(root, "metadata")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	for _, name := range []string{"2021000.json", "2021001.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(metaDir, name), []byte("{}\n"), 0o644))
	}

	found, err := LocateMetaDir(root, imageDir)
	require.NoError(t, err)
	assert.Equal(t, metaDir, found)
}

func TestLocateMetaDirAcceptsAggregate(t *testing.T) {
	root := t.TempDir()
	metaDir := filepath.Join(root, "meta")
	require.NoError(t, os.MkdirAll(metaDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(metaDir, AggregateFileName), []byte("[]"), 0o644))

	found, err := LocateMetaDir(root, "")
	require.NoError(t, err)
	assert.Equal(t, metaDir, found)
}

func TestReadShardSkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "2021000.json")
	content := "{\"id\": 1}\n\n   \n{\"id\": 2}\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var lines []int
	err := ReadShard(path, func(line []byte, lineNo int) error {
		lines = append(lines, lineNo)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, lines)
}

func TestParseRecordVariants(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantID   string
		wantTags []string
	}{
		{
			name:     "numeric id, object tags",
			line:     `{"id": 1001, "tags": [{"name": "sky"}, {"name": "cloud"}]}`,
			wantID:   "1001",
			wantTags: []string{"sky", "cloud"},
		},
		{
			name:     "string id, string tags",
			line:     `{"id": "42", "tags": "sky cloud"}`,
			wantID:   "42",
			wantTags: []string{"sky", "cloud"},
		},
		{
			name:     "string array tags",
			line:     `{"id": 7, "tags": ["a", "b"]}`,
			wantID:   "7",
			wantTags: []string{"a", "b"},
		},
		{
			name:     "missing tags",
			line:     `{"id": 7}`,
			wantID:   "7",
			wantTags: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := ParseRecord([]byte(tt.line), "2021000.json", 1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, raw.SourceID())
			assert.Equal(t, tt.wantTags, raw.Tags())
		})
	}
}

func TestParseRecordMalformed(t *testing.T) {
	_, err := ParseRecord([]byte(`{"id": `), "2021000.json", 3)
	assert.Error(t, err)
}

func TestRecordOptionalFields(t *testing.T) {
	raw, err := ParseRecord([]byte(`{"id": 5, "file_ext": "png", "rating": "s", "score": 12, "is_deleted": false}`), "s", 1)
	require.NoError(t, err)

	assert.Equal(t, "png", raw.FileExtension())
	assert.Equal(t, "s", raw.Rating())
	require.NotNil(t, raw.Score())
	assert.EqualValues(t, 12, *raw.Score())
	require.NotNil(t, raw.IsDeleted())
	assert.False(t, *raw.IsDeleted())

	// Defaults when absent
	bare, err := ParseRecord([]byte(`{"id": 5}`), "s", 1)
	require.NoError(t, err)
	assert.Equal(t, "jpg", bare.FileExtension())
	assert.Empty(t, bare.Rating())
	assert.Nil(t, bare.Score())
	assert.Nil(t, bare.IsDeleted())
}

func TestNormalizeRecord(t *testing.T) {
	raw, err := ParseRecord([]byte(`{"id": 1001, "tags": [{"name": "b"}, {"name": "a"}, {"name": "b"}]}`), "s", 1)
	require.NoError(t, err)

	rec, err := NormalizeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, "1001", rec.SourceID)
	assert.Equal(t, []string{"b", "a"}, rec.Tags, "normalization preserves order, dedupes")
	assert.Empty(t, rec.ContentHash, "hash is assigned later by the normalize stage")
}

func TestNormalizeRecordRejectsMissingID(t *testing.T) {
	raw, err := ParseRecord([]byte(`{"tags": "a b"}`), "s", 9)
	require.NoError(t, err)

	_, err = NormalizeRecord(raw)
	assert.Error(t, err)
}

func TestSourceBucket(t *testing.T) {
	assert.Equal(t, "0123", SourceBucket("123"))
	assert.Equal(t, "0001", SourceBucket("1001"))
	assert.Equal(t, "0007", SourceBucket("7"))
	assert.Equal(t, "0999", SourceBucket("4857999"))
}

func TestLocator(t *testing.T) {
	dir := t.TempDir()
	bucket := filepath.Join(dir, "0001")
	require.NoError(t, os.MkdirAll(bucket, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bucket, "1001.jpg"), []byte("x"), 0o644))

	locator := NewLocator(dir)

	path, ok := locator.Locate("1001")
	assert.True(t, ok)
	assert.Equal(t, filepath.Join(bucket, "1001.jpg"), path)

	_, ok = locator.Locate("9999")
	assert.False(t, ok)
}

func TestTargetPath(t *testing.T) {
	got := TargetPath("/out/images", "ab12cd", "png")
	assert.Equal(t, filepath.Join("/out/images", "ab", "ab12cd.png"), got)

	got = TargetPath("/out/images", "ab12cd", ".jpg")
	assert.Equal(t, filepath.Join("/out/images", "ab", "ab12cd.jpg"), got)

	got = TargetPath("/out/images", "ab12cd", "")
	assert.Equal(t, filepath.Join("/out/images", "ab", "ab12cd.jpg"), got)
}

func TestWriteAndReadAggregate(t *testing.T) {
	metaDir := t.TempDir()
	shard := filepath.Join(metaDir, "2021000.json")
	lines := `{"id": 1, "tags": "a", "extra": "dropped-when-minimal"}
{"id": 2, "tags": "b"}
`
	require.NoError(t, os.WriteFile(shard, []byte(lines), 0o644))

	out := filepath.Join(t.TempDir(), AggregateFileName)
	n, err := WriteAggregate(metaDir, out, AggregateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var ids []string
	err = ReadAggregate(out, func(raw *RawRecord) error {
		ids = append(ids, raw.SourceID())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
}

func TestWriteAggregateMinimalDropsMissingImages(t *testing.T) {
	metaDir := t.TempDir()
	imageDir := t.TempDir()

	// Only record 1 has an image on disk.
	bucket := filepath.Join(imageDir, "0001")
	require.NoError(t, os.MkdirAll(bucket, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bucket, "1.jpg"), []byte("x"), 0o644))

	shard := filepath.Join(metaDir, "2021000.json")
	lines := `{"id": 1, "tags": "a", "noise": true}
{"id": 2, "tags": "b"}
`
	require.NoError(t, os.WriteFile(shard, []byte(lines), 0o644))

	out := filepath.Join(t.TempDir(), AggregateFileName)
	n, err := WriteAggregate(metaDir, out, AggregateOptions{Minimal: true, Locator: NewLocator(imageDir)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "noise", "non-minimal keys are projected away")
	assert.NotContains(t, string(data), `"id":2`)
}

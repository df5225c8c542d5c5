package conf

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/mkivela/tagdex/internal/errors"
)

func validSettings(t *testing.T) *Settings {
	t.Helper()
	return &Settings{
		Dataset: DatasetSettings{Root: t.TempDir()},
		Pipeline: PipelineSettings{
			CommitBatch:     1000,
			Budget:          6,
			NormalizeWeight: 2,
			QueueSize:       64,
		},
	}
}

func TestResolveSettingsDerivesOutputPaths(t *testing.T) {
	settings := validSettings(t)
	require.NoError(t, ResolveSettings(settings))

	assert.Equal(t, filepath.Join(settings.Dataset.Root, "project"), settings.Output.Dir)
	assert.Equal(t, filepath.Join(settings.Output.Dir, "images"), settings.Output.ImageDir)
	assert.Equal(t, filepath.Join(settings.Output.Dir, "tagdex.sqlite3"), settings.Output.SQLite.Path)
}

func TestResolveSettingsKeepsExplicitPaths(t *testing.T) {
	settings := validSettings(t)
	out := t.TempDir()
	settings.Output.Dir = out
	settings.Output.SQLite.Path = filepath.Join(out, "custom.db")

	require.NoError(t, ResolveSettings(settings))

	assert.Equal(t, out, settings.Output.Dir)
	assert.Equal(t, filepath.Join(out, "custom.db"), settings.Output.SQLite.Path)
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{name: "valid", mutate: func(s *Settings) {}, wantErr: false},
		{name: "budget below minimum", mutate: func(s *Settings) { s.Pipeline.Budget = 3 }, wantErr: true},
		{name: "budget at minimum", mutate: func(s *Settings) { s.Pipeline.Budget = 4 }, wantErr: false},
		{name: "zero weight", mutate: func(s *Settings) { s.Pipeline.NormalizeWeight = 0 }, wantErr: true},
		{name: "zero queue size", mutate: func(s *Settings) { s.Pipeline.QueueSize = 0 }, wantErr: true},
		{name: "disabled commit batch is allowed", mutate: func(s *Settings) { s.Pipeline.CommitBatch = -1 }, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := validSettings(t)
			tt.mutate(settings)

			err := ValidateSettings(settings)
			if tt.wantErr {
				require.Error(t, err)
				var ee *errors.EnhancedError
				require.True(t, errors.As(err, &ee))
				assert.Equal(t, string(errors.CategoryConfiguration), ee.GetCategory())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEmbeddedDefaultConfigParses(t *testing.T) {
	var doc map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(getDefaultConfig()), &doc))

	for _, section := range []string{"log", "dataset", "output", "pipeline"} {
		assert.Contains(t, doc, section)
	}

	pipeline, ok := doc["pipeline"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1000, pipeline["commitbatch"])
	assert.Equal(t, true, pipeline["excludeblanks"])
}

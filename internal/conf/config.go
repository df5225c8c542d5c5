// config.go: settings struct and functions to load and validate the
// application configuration. Settings are resolved eagerly at startup and
// treated as immutable afterwards; components receive them through their
// constructors.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/mkivela/tagdex/internal/errors"
)

//go:embed config.yaml
var configFiles embed.FS

// LogSettings controls the optional per-run log file.
type LogSettings struct {
	Enabled bool   // true to write a log file in addition to stdout/stderr
	Path    string // log file path
}

// DatasetSettings describes the source dataset layout. ImageDir and MetaDir
// may be left empty, in which case the ingest command locates them under Root
// using the dataset package's discovery heuristics.
type DatasetSettings struct {
	Root      string // dataset root directory
	ImageDir  string // directory holding the id-bucketed image subdirectories
	MetaDir   string // directory holding the metadata shard files
	Aggregate string // aggregate metadata file to ingest instead of shards, optional
}

// SQLiteSettings contains the embedded store configuration.
type SQLiteSettings struct {
	Path string // database file path
}

// OutputSettings describes the content-addressed output layout.
type OutputSettings struct {
	Dir      string         // project output directory
	ImageDir string         // resolved: Dir/images
	SQLite   SQLiteSettings // store settings
}

// PipelineSettings contains the ingestion pipeline tunables.
type PipelineSettings struct {
	CommitBatch      int  // records per commit; <= 0 defers to a single final commit
	ExcludeBlanks    bool // drop single flat color images
	MergeDuplicates  bool // union tag sets when two records share a content hash
	VerifyDuplicates bool // re-verify pixel equality before merging on a hash match
	MoveImages       bool // move images to the output layout; false copies instead
	Budget           int  // total worker slots across all stages
	NormalizeWeight  int  // weight of the normalize role in slot distribution
	QueueSize        int  // capacity of the queues connecting stages
}

// Settings is the complete application configuration.
type Settings struct {
	Debug    bool // enable debug logging
	Log      LogSettings
	Dataset  DatasetSettings
	Output   OutputSettings
	Pipeline PipelineSettings
}

// minBudget is the smallest admissible worker budget: one slot each for the
// source, merge and write stages plus at least one normalize worker.
const minBudget = 4

var (
	settingsInstance *Settings
	settingsMutex    sync.Mutex
)

// Load reads the configuration file and environment into a Settings value,
// resolves all defaults and validates the result.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ResolveSettings(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("tagdex")
	viper.AutomaticEnv()

	// Defaults defined in defaults.go
	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, create config with defaults
			return createDefaultConfig()
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// working directory first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("error getting user home directory: %w", err)
	}
	return []string{
		".",
		filepath.Join(homeDir, ".config", "tagdex"),
	}, nil
}

// createDefaultConfig writes the embedded default config to the user config path.
func createDefaultConfig() error {
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	configPath := filepath.Join(configPaths[1], "config.yaml")

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the default configuration from the embedded config.yaml file.
func getDefaultConfig() string {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		log.Fatalf("Error reading embedded config file: %v", err)
	}
	return string(data)
}

// ResolveSettings resolves every defaulted or derived value in place. After
// this call the settings carry only absolute, concrete paths: nothing is
// computed lazily at access time.
func ResolveSettings(settings *Settings) error {
	if settings.Dataset.Root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "resolve_dataset_root").
				Build()
		}
		settings.Dataset.Root = cwd
	}

	var err error
	if settings.Dataset.Root, err = filepath.Abs(settings.Dataset.Root); err != nil {
		return fmt.Errorf("resolving dataset root: %w", err)
	}

	for _, dir := range []*string{&settings.Dataset.ImageDir, &settings.Dataset.MetaDir, &settings.Dataset.Aggregate} {
		if *dir == "" {
			continue
		}
		if *dir, err = filepath.Abs(*dir); err != nil {
			return fmt.Errorf("resolving dataset path: %w", err)
		}
	}

	if settings.Output.Dir == "" {
		settings.Output.Dir = filepath.Join(settings.Dataset.Root, "project")
	}
	if settings.Output.Dir, err = filepath.Abs(settings.Output.Dir); err != nil {
		return fmt.Errorf("resolving output dir: %w", err)
	}
	settings.Output.ImageDir = filepath.Join(settings.Output.Dir, "images")
	if settings.Output.SQLite.Path == "" {
		settings.Output.SQLite.Path = filepath.Join(settings.Output.Dir, "tagdex.sqlite3")
	}
	if settings.Output.SQLite.Path, err = filepath.Abs(settings.Output.SQLite.Path); err != nil {
		return fmt.Errorf("resolving sqlite path: %w", err)
	}

	return nil
}

// ValidateSettings rejects configurations the pipeline must never be
// launched with.
func ValidateSettings(settings *Settings) error {
	if settings.Pipeline.Budget < minBudget {
		return errors.Newf("worker budget %d is below the minimum of %d (source, merge and write each need a slot plus at least one normalize worker)",
			settings.Pipeline.Budget, minBudget).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("budget", settings.Pipeline.Budget).
			Build()
	}
	if settings.Pipeline.NormalizeWeight < 1 {
		return errors.Newf("normalize weight must be at least 1, got %d", settings.Pipeline.NormalizeWeight).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Pipeline.QueueSize < 1 {
		return errors.Newf("queue size must be at least 1, got %d", settings.Pipeline.QueueSize).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return nil
}

// EnsureOutputDirs creates the output directory tree. Called once by the
// ingest command before the store is opened.
func EnsureOutputDirs(settings *Settings) error {
	for _, dir := range []string{settings.Output.Dir, settings.Output.ImageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryFileIO).
				Context("dir", dir).
				Build()
		}
	}
	return nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	return settingsInstance
}

// Package bot assembles the quiz application on top of the reusable core:
// configuration, storage backends, the session service, and the Telegram
// run options.
package bot

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	coredatabase "github.com/m3rciful/quizbot/core/database"
)

// Storage drivers.
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// StorageConfig selects the statistics backend and the storage layout.
type StorageConfig struct {
	Driver      string `yaml:"driver" envconfig:"STORAGE_DRIVER"`
	Dir         string `yaml:"dir" envconfig:"STORAGE_DIR"`
	AnswersFile string `yaml:"answers_file" envconfig:"STORAGE_ANSWERS_FILE"`
	StatsFile   string `yaml:"stats_file" envconfig:"STORAGE_STATS_FILE"`
	ExportFile  string `yaml:"export_file" envconfig:"STORAGE_EXPORT_FILE"`
}

// QuizConfig holds the fixed ordered list of test image paths.
type QuizConfig struct {
	Assets []string `yaml:"assets" envconfig:"QUIZ_ASSETS"`
}

// Config aggregates the core configuration with the quiz application
// sections.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Storage  StorageConfig       `yaml:"storage"`
	Database coredatabase.Config `yaml:"database"`
	Quiz     QuizConfig          `yaml:"quiz"`
}

// CoreConfig exposes the embedded core configuration for the runner.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

// AnswersPath returns the location of the answer key document.
func (c *Config) AnswersPath() string {
	return filepath.Join(c.Storage.Dir, c.Storage.AnswersFile)
}

// StatsPath returns the location of the statistics document.
func (c *Config) StatsPath() string {
	return filepath.Join(c.Storage.Dir, c.Storage.StatsFile)
}

// ExportPath returns the location of the tabular export workbook.
func (c *Config) ExportPath() string {
	return filepath.Join(c.Storage.Dir, c.Storage.ExportFile)
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize validates app-level fields and applies defaults matching the
// historical storage layout.
func normalize(cfg *Config) error {
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" {
		driver = DriverFile
	}
	switch driver {
	case DriverFile:
	case DriverPostgres:
		if strings.TrimSpace(cfg.Database.Host) == "" {
			return fmt.Errorf("database.host is required when storage.driver is 'postgres'")
		}
		if strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.name is required when storage.driver is 'postgres'")
		}
	default:
		return fmt.Errorf("invalid storage.driver %q; allowed: file, postgres", cfg.Storage.Driver)
	}
	cfg.Storage.Driver = driver

	if strings.TrimSpace(cfg.Storage.Dir) == "" {
		cfg.Storage.Dir = "stats"
	}
	if strings.TrimSpace(cfg.Storage.AnswersFile) == "" {
		cfg.Storage.AnswersFile = "answers.json"
	}
	if strings.TrimSpace(cfg.Storage.StatsFile) == "" {
		cfg.Storage.StatsFile = "stats.json"
	}
	if strings.TrimSpace(cfg.Storage.ExportFile) == "" {
		cfg.Storage.ExportFile = "student_stats.xlsx"
	}
	return nil
}

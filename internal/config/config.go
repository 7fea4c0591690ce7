package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for hardwire.
type Config struct {
	BaseDir    string           `toml:"base_dir" yaml:"base_dir"`
	LogDir     string           `toml:"log_dir" yaml:"log_dir"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Database   DatabaseConfig   `toml:"database" yaml:"database"`
	Indexer    IndexerConfig    `toml:"indexer" yaml:"indexer"`
	Tasks      TasksConfig      `toml:"tasks" yaml:"tasks"`
	Progress   ProgressConfig   `toml:"progress" yaml:"progress"`
	Encryption EncryptionConfig `toml:"encryption" yaml:"encryption"`
	Vault      VaultConfig      `toml:"vault" yaml:"vault"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr      string `toml:"addr" yaml:"addr"`             // listen address, e.g. ":8090"
	PublicURL string `toml:"public_url" yaml:"public_url"` // base of generated share links

	// ShareTTLHours sets the lifetime of links created over HTTP. 0 means never expire.
	ShareTTLHours int `toml:"share_ttl_hours" yaml:"share_ttl_hours"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type" yaml:"type"`                               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty" yaml:"data_dir,omitempty"` // only used for type=sqlite
}

// IndexerConfig controls the background directory indexer.
type IndexerConfig struct {
	Root         string   `toml:"root" yaml:"root"`
	IntervalSecs int      `toml:"interval_secs" yaml:"interval_secs"` // periodic rescan; defaults to 300
	Ignore       []string `toml:"ignore" yaml:"ignore"`
}

// TasksConfig controls the archive task queue.
type TasksConfig struct {
	QueueSize          int    `toml:"queue_size" yaml:"queue_size"`                     // defaults to 32
	ProgressIntervalMs int    `toml:"progress_interval_ms" yaml:"progress_interval_ms"` // defaults to 500
	ArchiveDir         string `toml:"archive_dir" yaml:"archive_dir"`                   // base for relative output paths
}

// ProgressConfig controls the download progress event bus.
type ProgressConfig struct {
	BusCapacity int `toml:"bus_capacity" yaml:"bus_capacity"` // per-subscriber buffer; defaults to 6000
}

// EncryptionConfig selects how password-protected archives are encrypted.
type EncryptionConfig struct {
	Type             string `toml:"type" yaml:"type"`                             // "age" (default) or "test"
	ScryptWorkFactor int    `toml:"scrypt_work_factor" yaml:"scrypt_work_factor"` // 0 keeps the age default
}

// VaultConfig represents configuration for the archive publication backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type" yaml:"type"` // "", "none", "memory", "s3", or "filesystem"
	Name string `toml:"name" yaml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket       string `toml:"s3_bucket,omitempty" yaml:"s3_bucket,omitempty"`
	S3Prefix       string `toml:"s3_prefix,omitempty" yaml:"s3_prefix,omitempty"`
	S3Region       string `toml:"s3_region,omitempty" yaml:"s3_region,omitempty"`
	S3Endpoint     string `toml:"s3_endpoint,omitempty" yaml:"s3_endpoint,omitempty"` // S3-compatible servers, e.g. MinIO
	S3AccessKey    string `toml:"s3_access_key,omitempty" yaml:"s3_access_key,omitempty"`
	S3SecretKey    string `toml:"s3_secret_key,omitempty" yaml:"s3_secret_key,omitempty"`
	S3UsePathStyle bool   `toml:"s3_use_path_style,omitempty" yaml:"s3_use_path_style,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty" yaml:"fs_vault_root,omitempty"`
}

const (
	DefaultAddr               = ":8090"
	DefaultPublicURL          = "http://localhost:8090"
	DefaultIndexerInterval    = 300
	DefaultQueueSize          = 32
	DefaultProgressIntervalMs = 500
	DefaultBusCapacity        = 6000
	DefaultShareTTLHours      = 7 * 24
)

// NewConfig creates a new Config with default values rooted at baseDir.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			Addr:          DefaultAddr,
			PublicURL:     DefaultPublicURL,
			ShareTTLHours: DefaultShareTTLHours,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Indexer: IndexerConfig{
			Root:         filepath.Join(baseDir, "shared"),
			IntervalSecs: DefaultIndexerInterval,
		},
		Tasks: TasksConfig{
			QueueSize:          DefaultQueueSize,
			ProgressIntervalMs: DefaultProgressIntervalMs,
			ArchiveDir:         filepath.Join(baseDir, "archives"),
		},
		Progress: ProgressConfig{BusCapacity: DefaultBusCapacity},
	}
}

// ApplyDefaults fills zero-valued tunables with their defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = DefaultPublicURL
	}
	if c.Indexer.IntervalSecs <= 0 {
		c.Indexer.IntervalSecs = DefaultIndexerInterval
	}
	if c.Tasks.QueueSize <= 0 {
		c.Tasks.QueueSize = DefaultQueueSize
	}
	if c.Tasks.ProgressIntervalMs <= 0 {
		c.Tasks.ProgressIntervalMs = DefaultProgressIntervalMs
	}
	if c.Progress.BusCapacity <= 0 {
		c.Progress.BusCapacity = DefaultBusCapacity
	}
}

// ApplyEnv overrides selected settings from HARDWIRE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("HARDWIRE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HARDWIRE_PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("HARDWIRE_DATA_DIR"); v != "" {
		c.Database.DataDir = v
	}
	if v := os.Getenv("HARDWIRE_SHARE_ROOT"); v != "" {
		c.Indexer.Root = v
	}
	if v := os.Getenv("HARDWIRE_FILE_INDEXER_INTERVAL"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HARDWIRE_FILE_INDEXER_INTERVAL must be a valid number: %w", err)
		}
		c.Indexer.IntervalSecs = secs
	}
	return nil
}

// Validate reports configuration errors that would prevent the service from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.Indexer.Root == "" {
		errs = append(errs, errors.New("indexer.root is required"))
	}
	if c.Indexer.IntervalSecs <= 0 {
		errs = append(errs, errors.New("indexer.interval_secs must be greater than 0"))
	}
	if c.Server.ShareTTLHours < 0 {
		errs = append(errs, errors.New("server.share_ttl_hours must not be negative"))
	}
	if c.Tasks.QueueSize <= 0 {
		errs = append(errs, errors.New("tasks.queue_size must be greater than 0"))
	}
	if c.Tasks.ArchiveDir == "" {
		errs = append(errs, errors.New("tasks.archive_dir is required"))
	}
	if c.Database.Type == "sqlite" && c.Database.DataDir == "" {
		errs = append(errs, errors.New("database.data_dir is required for sqlite"))
	}
	if c.Vault.Type == "s3" && c.Vault.S3Bucket == "" {
		errs = append(errs, errors.New("vault.s3_bucket is required for s3 vault"))
	}
	return errors.Join(errs...)
}

// Format is the on-disk encoding of a config file.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from the file extension. Unknown
// extensions are read as TOML.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Manager handles reading and writing configuration.
type Manager struct {
	Format Format
}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path, then applies
// defaults and environment overrides.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

package app

import (
	"fmt"
	"os"
	"path/filepath"

	"hardwire/internal/config"
)

// Defaults holds the locations hardwire uses when the config does not say
// otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	ShareRoot  string // directory published by `serve` and resolved against by `publish`
	ArchiveDir string // destination of relative archive output paths
}

// GetDefaults resolves default paths, checking environment variables first.
// Environment variables:
//   - HARDWIRE_CONFIG_PATH: config file location (default: $XDG_CONFIG_HOME/hardwire.toml,
//     falling back to ~/.config/hardwire.toml)
//   - HARDWIRE_HOME: base directory for hardwire data (default: $XDG_DATA_HOME/hardwire,
//     falling back to ~/.local/share/hardwire)
func GetDefaults() (*Defaults, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		ShareRoot:  filepath.Join(baseDir, "shared"),
		ArchiveDir: filepath.Join(baseDir, "archives"),
	}, nil
}

// NewConfig returns a config rooted at the default locations. shareRoot
// replaces the default share root when non-empty.
func (d *Defaults) NewConfig(shareRoot string) *config.Config {
	cfg := config.NewConfig(d.BaseDir)
	cfg.LogDir = d.LogDir
	cfg.Indexer.Root = d.ShareRoot
	cfg.Tasks.ArchiveDir = d.ArchiveDir
	if shareRoot != "" {
		cfg.Indexer.Root = shareRoot
	}
	return cfg
}

// getConfigPath returns the config file path from HARDWIRE_CONFIG_PATH, then
// XDG_CONFIG_HOME, then ~/.config.
func getConfigPath() (string, error) {
	if path := os.Getenv("HARDWIRE_CONFIG_PATH"); path != "" {
		return path, nil
	}
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "hardwire.toml"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "hardwire.toml"), nil
}

// getBaseDir returns the data directory from HARDWIRE_HOME, then
// XDG_DATA_HOME, then ~/.local/share.
func getBaseDir() (string, error) {
	if path := os.Getenv("HARDWIRE_HOME"); path != "" {
		return path, nil
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "hardwire"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "hardwire"), nil
}

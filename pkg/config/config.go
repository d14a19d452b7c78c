package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/buildinfo"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/globmatch"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
	"github.com/paulschiretz/pgl-cloudbackup/pkg/util"
)

// ErrInvalidConfig is wrapped by every error caused by a missing, malformed or
// incomplete configuration document.
var ErrInvalidConfig = errors.New("invalid configuration")

// Remote types.
const (
	RemoteRclone = "rclone"
	RemoteS3     = "s3"
)

// Archive formats.
const (
	FormatZip    = "zip"
	FormatTarGz  = "tar.gz"
	FormatTarZst = "tar.zst"
)

type S3Config struct {
	Endpoint  string `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Bucket    string `json:"bucket" yaml:"bucket" toml:"bucket"`
	Prefix    string `json:"prefix" yaml:"prefix" toml:"prefix"`
	Region    string `json:"region" yaml:"region" toml:"region"`
	UseSSL    bool   `json:"useSSL" yaml:"useSSL" toml:"useSSL"`
	// AccessKey and SecretKey may be left empty to read AWS_ACCESS_KEY_ID /
	// AWS_SECRET_ACCESS_KEY from the environment.
	AccessKey string `json:"accessKey" yaml:"accessKey" toml:"accessKey"`
	SecretKey string `json:"secretKey" yaml:"secretKey" toml:"secretKey"`
}

type RemoteConfig struct {
	Type string `json:"type" yaml:"type" toml:"type"`
	// Name is the store identifier: the rclone remote name, or a label for S3.
	Name       string `json:"name" yaml:"name" toml:"name"`
	ConfigPath string `json:"configPath" yaml:"configPath" toml:"configPath"`
	Binary     string `json:"binary" yaml:"binary" toml:"binary"`
	// ExtraArgs are forwarded verbatim to every rclone call.
	ExtraArgs []string `json:"extraArgs" yaml:"extraArgs" toml:"extraArgs"`
	S3        S3Config `json:"s3" yaml:"s3" toml:"s3"`
}

// IncludeGroup is one entry of filesToBackup: every include glob shares the
// group's exclusion list.
type IncludeGroup struct {
	Include []string `json:"include" yaml:"include" toml:"include"`
	Exclude []string `json:"exclude" yaml:"exclude" toml:"exclude"`
}

type Config struct {
	Version          string         `json:"version" yaml:"version" toml:"version"`
	LogLevel         string         `json:"logLevel" yaml:"logLevel" toml:"logLevel"`
	Metrics          bool           `json:"metrics" yaml:"metrics" toml:"metrics"`
	BackupDir        string         `json:"backupDir" yaml:"backupDir" toml:"backupDir"`
	MaxBackupAgeDays int            `json:"maxBackupAgeDays" yaml:"maxBackupAgeDays" toml:"maxBackupAgeDays"`
	ArchiveFormat    string         `json:"archiveFormat" yaml:"archiveFormat" toml:"archiveFormat"`
	BufferSizeKB     int            `json:"bufferSizeKB" yaml:"bufferSizeKB" toml:"bufferSizeKB"`
	Remote           RemoteConfig   `json:"remote" yaml:"remote" toml:"remote"`
	ExcludeFiles     []string       `json:"excludeFiles" yaml:"excludeFiles" toml:"excludeFiles"`
	ExcludeDirs      []string       `json:"excludeDirs" yaml:"excludeDirs" toml:"excludeDirs"`
	GlobalExclude    []string       `json:"globalExclude" yaml:"globalExclude" toml:"globalExclude"`
	FilesToBackup    []IncludeGroup `json:"filesToBackup" yaml:"filesToBackup" toml:"filesToBackup"`
}

// NewDefault creates and returns a Config struct with default values.
// MaxBackupAgeDays starts out negative so a document that omits it fails validation.
func NewDefault() Config {
	return Config{
		Version:          buildinfo.Version,
		LogLevel:         "info",
		Metrics:          true,
		BackupDir:        "", // Intentionally empty to force user configuration.
		MaxBackupAgeDays: -1,
		ArchiveFormat:    FormatZip,
		BufferSizeKB:     256,
		Remote: RemoteConfig{
			Type:   RemoteRclone,
			Binary: "rclone",
		},
	}
}

// legacyDocument holds the snake_case keys of the older configuration layout.
// Anything set here fills in the matching field when the camelCase key is absent.
type legacyDocument struct {
	BackupDirLocation    string         `json:"backup_dir_location" yaml:"backup_dir_location" toml:"backup_dir_location"`
	MaxBackupAgeDays     *int           `json:"max_backup_age_days" yaml:"max_backup_age_days" toml:"max_backup_age_days"`
	RcloneBackupType     string         `json:"rclone_backup_type" yaml:"rclone_backup_type" toml:"rclone_backup_type"`
	RcloneConfigLocation string         `json:"rclone_config_location" yaml:"rclone_config_location" toml:"rclone_config_location"`
	GlobalExclude        []string       `json:"global_exclude" yaml:"global_exclude" toml:"global_exclude"`
	FilesToBackup        []IncludeGroup `json:"files_to_backup" yaml:"files_to_backup" toml:"files_to_backup"`
}

func (l *legacyDocument) applyTo(c *Config) {
	if c.BackupDir == "" {
		c.BackupDir = l.BackupDirLocation
	}
	if c.MaxBackupAgeDays < 0 && l.MaxBackupAgeDays != nil {
		c.MaxBackupAgeDays = *l.MaxBackupAgeDays
	}
	if c.Remote.Name == "" {
		c.Remote.Name = l.RcloneBackupType
	}
	if c.Remote.ConfigPath == "" {
		c.Remote.ConfigPath = l.RcloneConfigLocation
	}
	if len(c.GlobalExclude) == 0 {
		c.GlobalExclude = l.GlobalExclude
	}
	if len(c.FilesToBackup) == 0 {
		c.FilesToBackup = l.FilesToBackup
	}
}

type unmarshalFunc func(data []byte, v any) error

// decoderFor picks the document format by file extension. Anything unknown is JSON.
func decoderFor(path string) (string, unmarshalFunc) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml", yaml.Unmarshal
	case ".toml":
		return "toml", toml.Unmarshal
	default:
		return "json", json.Unmarshal
	}
}

// Load reads the configuration document at path. Missing or unparsable files are
// reported as ErrInvalidConfig. The result still needs Validate.
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Config{}, fmt.Errorf("%w: configuration file path cannot be empty", ErrInvalidConfig)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: error reading config file %s: %w", ErrInvalidConfig, path, err)
	}

	format, unmarshal := decoderFor(path)
	plog.Info("Loading configuration", "path", path, "format", format)

	// Start with default values, then overwrite with the file's content.
	config := NewDefault()
	if err := unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("%w: error parsing config file %s: %w", ErrInvalidConfig, path, err)
	}

	var legacy legacyDocument
	if err := unmarshal(data, &legacy); err != nil {
		return Config{}, fmt.Errorf("%w: error parsing config file %s: %w", ErrInvalidConfig, path, err)
	}
	legacy.applyTo(&config)

	if config.Version != buildinfo.Version {
		config.Version = buildinfo.Version
	}
	return config, nil
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks the configuration for missing fields and inconsistencies and
// normalizes paths (tilde expansion, absolute, cleaned). Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return invalidf("backupDir cannot be empty")
	}
	expanded, err := util.ExpandPath(c.BackupDir)
	if err != nil {
		return invalidf("could not expand backupDir: %v", err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return invalidf("could not determine absolute path for backupDir %s: %v", expanded, err)
	}
	c.BackupDir = filepath.Clean(abs)

	if c.MaxBackupAgeDays < 0 {
		return invalidf("maxBackupAgeDays is required and cannot be negative")
	}

	switch c.ArchiveFormat {
	case FormatZip, FormatTarGz, FormatTarZst:
	default:
		return invalidf("archiveFormat must be '%s', '%s' or '%s', got %q", FormatZip, FormatTarGz, FormatTarZst, c.ArchiveFormat)
	}

	if c.BufferSizeKB <= 0 {
		return invalidf("bufferSizeKB must be greater than 0")
	}

	if err := c.validateRemote(); err != nil {
		return err
	}

	if err := validateGlobPatterns("excludeFiles", c.ExcludeFiles); err != nil {
		return err
	}
	if err := validateGlobPatterns("excludeDirs", c.ExcludeDirs); err != nil {
		return err
	}
	if err := validateGlobPatterns("globalExclude", c.GlobalExclude); err != nil {
		return err
	}

	includes := 0
	for i, group := range c.FilesToBackup {
		for _, include := range group.Include {
			if strings.TrimSpace(include) == "" {
				return invalidf("filesToBackup[%d].include contains an empty entry", i)
			}
			if !doublestar.ValidatePathPattern(filepath.FromSlash(include)) {
				return invalidf("invalid include pattern for filesToBackup[%d]: %q", i, include)
			}
			includes++
		}
		if err := validateGlobPatterns(fmt.Sprintf("filesToBackup[%d].exclude", i), group.Exclude); err != nil {
			return err
		}
	}
	if includes == 0 {
		return invalidf("filesToBackup must contain at least one include pattern")
	}
	return nil
}

func (c *Config) validateRemote() error {
	r := &c.Remote
	switch r.Type {
	case RemoteRclone:
		if r.Name == "" {
			return invalidf("remote.name cannot be empty")
		}
		if r.Binary == "" {
			return invalidf("remote.binary cannot be empty")
		}
		if r.ConfigPath != "" {
			p, err := util.ExpandPath(r.ConfigPath)
			if err != nil {
				return invalidf("could not expand remote.configPath: %v", err)
			}
			r.ConfigPath = p
		}
	case RemoteS3:
		if r.S3.Endpoint == "" {
			return invalidf("remote.s3.endpoint cannot be empty")
		}
		if r.S3.Bucket == "" {
			return invalidf("remote.s3.bucket cannot be empty")
		}
		if r.Name == "" {
			r.Name = r.S3.Bucket
		}
	default:
		return invalidf("remote.type must be '%s' or '%s', got %q", RemoteRclone, RemoteS3, r.Type)
	}
	return nil
}

// validateGlobPatterns checks if a list of strings are valid glob patterns.
func validateGlobPatterns(fieldName string, patterns []string) error {
	for _, pattern := range patterns {
		if err := globmatch.Validate(pattern); err != nil {
			return invalidf("invalid glob pattern for %s: %v", fieldName, err)
		}
	}
	return nil
}

// FileExclusions returns the combined global file-name exclusion patterns: the
// configured list plus the legacy globalExclude list, deduplicated.
func (c *Config) FileExclusions() []string {
	return util.MergeAndDeduplicate(c.ExcludeFiles, c.GlobalExclude)
}

// DirExclusions returns the combined global directory exclusion patterns. The backup
// directory itself is always present, escaped so it only ever matches its own path.
func (c *Config) DirExclusions() []string {
	var self []string
	if c.BackupDir != "" {
		self = []string{globmatch.QuoteMeta(filepath.ToSlash(c.BackupDir))}
	}
	return util.MergeAndDeduplicate(self, c.ExcludeDirs, c.GlobalExclude)
}

// LogSummary prints a user-friendly summary of the configuration.
func (c *Config) LogSummary() {
	logArgs := []interface{}{
		"log_level", c.LogLevel,
		"backup_dir", c.BackupDir,
		"max_backup_age_days", c.MaxBackupAgeDays,
		"archive_format", c.ArchiveFormat,
		"buffer_size_kb", c.BufferSizeKB,
		"metrics", c.Metrics,
		"remote_type", c.Remote.Type,
		"remote_name", c.Remote.Name,
	}
	switch c.Remote.Type {
	case RemoteRclone:
		if c.Remote.ConfigPath != "" {
			logArgs = append(logArgs, "rclone_config", c.Remote.ConfigPath)
		}
		if len(c.Remote.ExtraArgs) > 0 {
			logArgs = append(logArgs, "rclone_extra_args", strings.Join(c.Remote.ExtraArgs, " "))
		}
	case RemoteS3:
		logArgs = append(logArgs, "s3", fmt.Sprintf("%s/%s/%s (ssl:%t)", c.Remote.S3.Endpoint, c.Remote.S3.Bucket, c.Remote.S3.Prefix, c.Remote.S3.UseSSL))
	}

	var includes []string
	for _, group := range c.FilesToBackup {
		includes = append(includes, group.Include...)
	}
	logArgs = append(logArgs, "include", strings.Join(includes, ", "))
	if files := c.FileExclusions(); len(files) > 0 {
		logArgs = append(logArgs, "exclude_files", strings.Join(files, ", "))
	}
	logArgs = append(logArgs, "exclude_dirs", strings.Join(c.DirExclusions(), ", "))
	plog.Info("Configuration loaded", logArgs...)
}

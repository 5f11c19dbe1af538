package docxfill

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultPattern matches {{NAME}} and captures NAME.
const DefaultPattern = `\{\{([^{}]+)\}\}`

// BackupConfig controls the sibling copies taken before a file is rewritten.
type BackupConfig struct {
	// Enabled takes a backup of every file that is about to change.
	Enabled bool
	// Suffix is appended to the file name, e.g. "letter.docx.backup".
	Suffix string
	// Retain keeps backups after the operation instead of deleting them.
	Retain bool
}

// Config contains all configuration options for the engine
type Config struct {
	// Pattern is the placeholder expression. It has at most one capturing group, which
	// holds the placeholder name.
	Pattern string
	// CaseSensitive controls whether NAME and name are the same placeholder.
	CaseSensitive bool
	// MaxConcurrency bounds the number of files processed at once.
	MaxConcurrency int
	Backup         BackupConfig
	// StrictValidation refuses to replace anything while a placeholder has no value.
	StrictValidation bool
	// Timeout bounds the work on a single file. 0 means no limit.
	Timeout time.Duration
	// ContextRadius is the number of characters kept on each side of a match in
	// location snippets.
	ContextRadius int
	// LogLevel controls the verbosity of logging (debug, info, warn, error, off)
	LogLevel string
}

var (
	globalConfig      *Config
	globalConfigMutex sync.RWMutex
	configOnce        sync.Once
)

func init() {
	configOnce.Do(func() {
		globalConfig = ConfigFromEnvironment()
	})
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Pattern:        DefaultPattern,
		CaseSensitive:  true,
		MaxConcurrency: runtime.NumCPU(),
		Backup: BackupConfig{
			Enabled: true,
			Suffix:  ".backup",
			Retain:  false,
		},
		StrictValidation: false,
		Timeout:          0,
		ContextRadius:    30,
		LogLevel:         "info",
	}
}

// ConfigFromEnvironment creates a configuration from DOCXFILL_* environment variables
func ConfigFromEnvironment() *Config {
	config := DefaultConfig()

	if val := os.Getenv("DOCXFILL_PATTERN"); val != "" {
		config.Pattern = val
	}

	if val := os.Getenv("DOCXFILL_CASE_SENSITIVE"); val != "" {
		config.CaseSensitive = parseBool(val)
	}

	if val := os.Getenv("DOCXFILL_MAX_CONCURRENCY"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.MaxConcurrency = n
		}
	}

	if val := os.Getenv("DOCXFILL_BACKUP_ENABLED"); val != "" {
		config.Backup.Enabled = parseBool(val)
	}

	if val := os.Getenv("DOCXFILL_BACKUP_SUFFIX"); val != "" {
		config.Backup.Suffix = val
	}

	if val := os.Getenv("DOCXFILL_BACKUP_RETAIN"); val != "" {
		config.Backup.Retain = parseBool(val)
	}

	if val := os.Getenv("DOCXFILL_STRICT_VALIDATION"); val != "" {
		config.StrictValidation = parseBool(val)
	}

	if val := os.Getenv("DOCXFILL_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			config.Timeout = duration
		}
	}

	if val := os.Getenv("DOCXFILL_CONTEXT_RADIUS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			config.ContextRadius = n
		}
	}

	if val := os.Getenv("DOCXFILL_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	return config
}

// NewConfigWithDefaults creates a new configuration with defaults applied to unset fields.
// Booleans cannot be told apart from their zero value and are taken as given.
func NewConfigWithDefaults(overrides *Config) *Config {
	defaults := DefaultConfig()

	if overrides == nil {
		return defaults
	}

	config := *overrides

	if config.Pattern == "" {
		config.Pattern = defaults.Pattern
	}

	if config.MaxConcurrency == 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}

	if config.Backup.Suffix == "" {
		config.Backup.Suffix = defaults.Backup.Suffix
	}

	if config.ContextRadius == 0 {
		config.ContextRadius = defaults.ContextRadius
	}

	if config.LogLevel == "" {
		config.LogLevel = defaults.LogLevel
	}

	return &config
}

// Validate checks every option and reports all problems at once.
func (c *Config) Validate() error {
	var issues []ValidationIssue

	if _, err := compilePattern(c.Pattern, c.CaseSensitive); err != nil {
		issues = append(issues, ValidationIssue{Field: "pattern", Message: err.Error()})
	}

	if c.MaxConcurrency <= 0 {
		issues = append(issues, ValidationIssue{Field: "max_concurrency", Message: "must be positive"})
	}

	if c.Backup.Suffix == "" {
		issues = append(issues, ValidationIssue{Field: "backup.suffix", Message: "cannot be empty"})
	} else if strings.ContainsAny(c.Backup.Suffix, `/\`) {
		issues = append(issues, ValidationIssue{Field: "backup.suffix", Message: "cannot contain a path separator"})
	}

	if c.Timeout < 0 {
		issues = append(issues, ValidationIssue{Field: "timeout", Message: "cannot be negative"})
	}

	if c.ContextRadius < 0 {
		issues = append(issues, ValidationIssue{Field: "context_radius", Message: "cannot be negative"})
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"off":   true,
	}

	if !validLogLevels[c.LogLevel] {
		issues = append(issues, ValidationIssue{Field: "log_level", Message: "invalid log level: " + c.LogLevel})
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// GetGlobalConfig returns the global configuration
func GetGlobalConfig() *Config {
	globalConfigMutex.RLock()
	defer globalConfigMutex.RUnlock()

	if globalConfig == nil {
		return DefaultConfig()
	}

	configCopy := *globalConfig
	return &configCopy
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config *Config) {
	globalConfigMutex.Lock()
	globalConfig = config
	globalConfigMutex.Unlock()

	UpdateLoggerFromConfig()
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

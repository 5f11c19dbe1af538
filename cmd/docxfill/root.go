package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jirihalaska/docx-template-cli-sub004/internal/discovery"
	"github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill"
)

// errReported is returned once a command has already printed why it failed.
var errReported = errors.New("reported")

// cli holds the state shared by every subcommand.
type cli struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer

	cfgFile string
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out, errOut: errOut}
	defaults := docxfill.DefaultConfig()

	root := &cobra.Command{
		Use:     "docxfill",
		Short:   "Find and fill placeholders in DOCX templates",
		Version: version,
		Long: `docxfill scans Word documents for placeholders such as {{NAME}} and replaces
them with text or images from a YAML or JSON map. Every file is backed up before
it is rewritten and restored if the rewrite fails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.initConfig()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is ./docxfill.yaml or $XDG_CONFIG_HOME/docxfill/docxfill.yaml)")
	flags.String("pattern", defaults.Pattern, "placeholder regular expression, the first group is the name")
	flags.Bool("case-sensitive", defaults.CaseSensitive, "treat NAME and name as different placeholders")
	flags.IntP("concurrency", "j", defaults.MaxConcurrency, "number of files processed at once")
	flags.Duration("timeout", defaults.Timeout, "time limit per file, 0 for none")
	flags.Int("context-radius", defaults.ContextRadius, "characters of context shown around each match")
	flags.String("backup-suffix", defaults.Backup.Suffix, "suffix of backup files")
	flags.String("log-level", "warn", "log level (debug, info, warn, error, off)")
	flags.BoolP("recursive", "r", false, "descend into subdirectories")
	flags.StringSlice("exclude", nil, "glob patterns of files or directories to skip")
	flags.Bool("hidden", false, "include hidden files and directories")
	flags.Bool("no-ignore", false, "do not read "+discovery.IgnoreFileName)

	for key, name := range map[string]string{
		"pattern":             "pattern",
		"case_sensitive":      "case-sensitive",
		"max_concurrency":     "concurrency",
		"timeout":             "timeout",
		"context_radius":      "context-radius",
		"backup.suffix":       "backup-suffix",
		"log_level":           "log-level",
		"discovery.recursive": "recursive",
		"discovery.exclude":   "exclude",
		"discovery.hidden":    "hidden",
		"discovery.no_ignore": "no-ignore",
	} {
		c.v.BindPFlag(key, flags.Lookup(name))
	}

	c.v.SetDefault("backup.enabled", defaults.Backup.Enabled)
	c.v.SetDefault("backup.retain", defaults.Backup.Retain)
	c.v.SetDefault("strict_validation", defaults.StrictValidation)

	root.AddCommand(
		c.newScanCmd(),
		c.newValidateCmd(),
		c.newPreviewCmd(),
		c.newReplaceCmd(),
		c.newBackupCmd(),
	)
	return root
}

// initConfig reads in the config file and DOCXFILL_* environment variables.
func (c *cli) initConfig() error {
	if c.cfgFile != "" {
		c.v.SetConfigFile(c.cfgFile)
	} else {
		c.v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			c.v.AddConfigPath(filepath.Join(dir, "docxfill"))
		}
		c.v.SetConfigName("docxfill")
		c.v.SetConfigType("yaml")
	}

	c.v.SetEnvPrefix("DOCXFILL")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

func (c *cli) config() *docxfill.Config {
	return &docxfill.Config{
		Pattern:        c.v.GetString("pattern"),
		CaseSensitive:  c.v.GetBool("case_sensitive"),
		MaxConcurrency: c.v.GetInt("max_concurrency"),
		Backup: docxfill.BackupConfig{
			Enabled: c.v.GetBool("backup.enabled"),
			Suffix:  c.v.GetString("backup.suffix"),
			Retain:  c.v.GetBool("backup.retain"),
		},
		StrictValidation: c.v.GetBool("strict_validation"),
		Timeout:          c.v.GetDuration("timeout"),
		ContextRadius:    c.v.GetInt("context_radius"),
		LogLevel:         strings.ToLower(c.v.GetString("log_level")),
	}
}

func (c *cli) engine() (*docxfill.Engine, error) {
	cfg := c.config()
	logger := docxfill.NewLogger(c.errOut, docxfill.ParseLogLevel(cfg.LogLevel))
	engine, err := docxfill.NewWithConfig(cfg, docxfill.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	docxfill.SetGlobalConfig(cfg)
	return engine, nil
}

func (c *cli) templates(args []string) ([]docxfill.TemplateFile, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	files, err := discovery.Resolve(args, discovery.Options{
		Recursive:    c.v.GetBool("discovery.recursive"),
		Exclude:      c.v.GetStringSlice("discovery.exclude"),
		BackupSuffix: c.v.GetString("backup.suffix"),
		Hidden:       c.v.GetBool("discovery.hidden"),
		NoIgnoreFile: c.v.GetBool("discovery.no_ignore"),
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .docx templates found in %s", strings.Join(args, ", "))
	}
	return files, nil
}

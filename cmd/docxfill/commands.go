package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jirihalaska/docx-template-cli-sub004/internal/report"
	"github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill"
)

// valueFlags are shared by the commands that need a replacement map.
type valueFlags struct {
	mapFile string
	set     []string
}

func (f *valueFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.mapFile, "map", "m", "", "YAML or JSON file with the replacement values")
	cmd.Flags().StringArrayVar(&f.set, "set", nil, "text value as NAME=VALUE, may be repeated")
}

// load reads the map file, then applies --set values on top of it.
func (f *valueFlags) load() (docxfill.ReplacementMap, error) {
	if f.mapFile == "" && len(f.set) == 0 {
		return nil, errors.New("replacement values are required, use --map or --set")
	}

	m := docxfill.ReplacementMap{}
	if f.mapFile != "" {
		loaded, err := docxfill.LoadReplacementMap(f.mapFile)
		if err != nil {
			return nil, err
		}
		m = loaded
	}

	for _, pair := range f.set {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set value '%s', expected NAME=VALUE", pair)
		}
		m[name] = docxfill.TextValue(value)
	}
	return m, nil
}

func (c *cli) newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan [paths...]",
		Short: "List the placeholders in templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine()
			if err != nil {
				return err
			}
			files, err := c.templates(args)
			if err != nil {
				return err
			}

			result, err := engine.Scan(cmd.Context(), files)
			if err != nil {
				return err
			}
			report.New(c.out).Scan(result)
			if !result.Success {
				return errReported
			}
			return nil
		},
	}
}

func (c *cli) newValidateCmd() *cobra.Command {
	var values valueFlags
	cmd := &cobra.Command{
		Use:   "validate [paths...]",
		Short: "Check that every placeholder has a value",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, m, files, err := c.prepare(&values, args)
			if err != nil {
				return err
			}

			scan, err := engine.Scan(cmd.Context(), files)
			if err != nil {
				return err
			}
			validation := engine.Validate(scan, m)

			p := report.New(c.out)
			if len(scan.Errors) > 0 {
				p.Scan(scan)
			}
			p.Validation(validation)
			if !scan.Success || len(validation.Unmapped()) > 0 {
				return errReported
			}
			return nil
		},
	}
	values.register(cmd)
	return cmd
}

func (c *cli) newPreviewCmd() *cobra.Command {
	var values valueFlags
	cmd := &cobra.Command{
		Use:   "preview [paths...]",
		Short: "Show what replace would change without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, m, files, err := c.prepare(&values, args)
			if err != nil {
				return err
			}

			preview, err := engine.Preview(cmd.Context(), files, m)
			if err != nil {
				return err
			}
			report.New(c.out).Preview(preview)
			return nil
		},
	}
	values.register(cmd)
	return cmd
}

func (c *cli) newReplaceCmd() *cobra.Command {
	var (
		values   valueFlags
		dryRun   bool
		noBackup bool
	)
	cmd := &cobra.Command{
		Use:   "replace [paths...]",
		Short: "Replace placeholders in templates",
		Long: `Replace placeholders in every template. Each file is backed up before it is
written and restored from the backup if writing fails. Backups are removed once
the file has been replaced unless --keep-backups is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, m, files, err := c.prepare(&values, args)
			if err != nil {
				return err
			}

			opts := engine.DefaultReplaceOptions()
			opts.DryRun = dryRun
			if noBackup {
				opts.Backup.Enabled = false
			}

			result, err := engine.Replace(cmd.Context(), files, m, opts)
			if result == nil {
				return err
			}
			report.New(c.out).Replace(result)
			if err != nil || !result.FullySuccessful() {
				return errReported
			}
			return nil
		},
	}
	values.register(cmd)
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "plan the replacement without writing anything")
	cmd.Flags().BoolVar(&noBackup, "no-backup", false, "do not back up files before writing them")
	cmd.Flags().Bool("strict", false, "refuse to replace anything while a placeholder has no value")
	cmd.Flags().Bool("keep-backups", false, "keep backups after a successful replacement")
	c.v.BindPFlag("strict_validation", cmd.Flags().Lookup("strict"))
	c.v.BindPFlag("backup.retain", cmd.Flags().Lookup("keep-backups"))
	return cmd
}

func (c *cli) newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [paths...]",
		Short: "Copy templates to sibling backup files",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := c.engine()
			if err != nil {
				return err
			}
			files, err := c.templates(args)
			if err != nil {
				return err
			}

			result := engine.CreateBackups(cmd.Context(), files)
			report.New(c.out).Backups(result)
			if !result.Success() {
				return errReported
			}
			return nil
		},
	}
}

func (c *cli) prepare(values *valueFlags, args []string) (*docxfill.Engine, docxfill.ReplacementMap, []docxfill.TemplateFile, error) {
	engine, err := c.engine()
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := values.load()
	if err != nil {
		return nil, nil, nil, err
	}
	files, err := c.templates(args)
	if err != nil {
		return nil, nil, nil, err
	}
	return engine, m, files, nil
}

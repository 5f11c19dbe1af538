// Package report renders engine results for the terminal.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill"
)

// Printer writes styled reports to one writer. Colors follow the writer's terminal
// capabilities, so output to a file or pipe is plain text.
type Printer struct {
	w io.Writer

	title   lipgloss.Style
	name    lipgloss.Style
	muted   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
}

// New creates a printer for w.
func New(w io.Writer) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		title:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("33")),
		name:    r.NewStyle().Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("244")),
		success: r.NewStyle().Foreground(lipgloss.Color("10")),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		failure: r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

func (p *Printer) line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *Printer) heading(text string) {
	p.line("%s", p.title.Render(text))
}

// Scan prints the placeholders found, one block per placeholder.
func (p *Printer) Scan(result *docxfill.PlaceholderScanResult) {
	p.heading("Placeholders")

	if len(result.Placeholders) == 0 {
		p.line("  %s", p.muted.Render("no placeholders found"))
	}

	width := 0
	for _, ph := range result.Placeholders {
		width = max(width, len(ph.Name))
	}
	for _, ph := range result.Placeholders {
		padded := ph.Name + strings.Repeat(" ", width-len(ph.Name))
		p.line("  %s  %s", p.name.Render(padded),
			p.muted.Render(fmt.Sprintf("%d in %d %s", ph.TotalOccurrences, len(ph.Locations), plural(len(ph.Locations), "file", "files"))))
		for _, loc := range ph.Locations {
			p.line("    %s ×%d  %s", loc.FileName, loc.Occurrences, p.muted.Render(loc.Context))
		}
	}

	p.scanErrors(result.Errors)
	p.line("")
	p.line("%d %s scanned, %d with placeholders, %s",
		result.TotalFilesScanned, plural(result.TotalFilesScanned, "file", "files"),
		result.FilesWithPlaceholders, p.failedCount(result.FailedFiles))
}

func (p *Printer) scanErrors(errs []docxfill.ScanError) {
	if len(errs) == 0 {
		return
	}
	p.line("")
	p.heading("Unreadable files")
	for _, e := range errs {
		p.line("  %s %s", p.failure.Render("✗"), e.Message)
	}
}

// Validation prints every issue. It prints a single line when the map is valid.
func (p *Printer) Validation(v *docxfill.ReplacementValidationResult) {
	if v == nil {
		return
	}
	if v.IsValid() {
		p.line("%s every placeholder has a value", p.success.Render("✓"))
		return
	}

	if unmapped := v.Unmapped(); len(unmapped) > 0 {
		p.heading("Missing values")
		for _, issue := range unmapped {
			hint := ""
			if issue.Suggestion != "" {
				hint = p.muted.Render(fmt.Sprintf(" (did you mean %s?)", issue.Suggestion))
			}
			p.line("  %s %s%s", p.failure.Render("✗"), p.name.Render(issue.Name), hint)
		}
	}
	if unused := v.Unused(); len(unused) > 0 {
		p.heading("Unused values")
		for _, issue := range unused {
			p.line("  %s %s", p.warning.Render("!"), issue.Name)
		}
	}
}

// Preview prints the planned changes per file.
func (p *Printer) Preview(preview *docxfill.ReplacementPreview) {
	p.heading("Planned changes")
	for _, fp := range preview.Files {
		name := fileLabel(fp.File)
		if fp.Err != nil {
			p.line("  %s %s: %v", p.failure.Render("✗"), name, fp.Err)
			continue
		}
		p.line("  %s %s", p.name.Render(name), p.muted.Render(fmt.Sprintf("(%d %s)",
			fp.Replacements, plural(fp.Replacements, "replacement", "replacements"))))
		for _, c := range fp.Changes {
			source := c.Part
			if c.Key != "" && c.Key != c.Placeholder {
				source += " from " + c.Key
			}
			p.line("    %s → %s  %s", c.Before, c.After, p.muted.Render(source))
		}
	}
	p.line("")
	p.Validation(preview.Validation)
	p.line("%d %s planned, nothing was written",
		preview.TotalReplacements, plural(preview.TotalReplacements, "replacement", "replacements"))
}

// Replace prints the outcome of each file and the batch summary.
func (p *Printer) Replace(result *docxfill.ReplaceResult) {
	p.heading("Replacement")
	for _, f := range result.Files {
		name := fileLabel(f.File)
		switch {
		case f.Success && f.Replacements == 0:
			p.line("  %s %s %s", p.muted.Render("·"), name, p.muted.Render("unchanged"))
		case f.Success:
			backup := ""
			if f.BackupPath != "" {
				backup = p.muted.Render(" backup: " + f.BackupPath)
			}
			p.line("  %s %s %s%s", p.success.Render("✓"), name,
				p.muted.Render(fmt.Sprintf("%d %s", f.Replacements, plural(f.Replacements, "replacement", "replacements"))), backup)
		default:
			p.line("  %s %s [%s]: %v", p.failure.Render("✗"), name, f.State, f.Err)
		}
	}

	p.line("")
	if result.Validation != nil && !result.Validation.IsValid() {
		p.Validation(result.Validation)
	}

	verb := "replaced"
	if result.DryRun {
		verb = "would replace"
	}
	p.line("%s %s %d %s in %d of %d %s",
		p.status(result.Status), verb, result.TotalReplacements,
		plural(result.TotalReplacements, "placeholder", "placeholders"),
		result.SuccessfulFiles, result.TotalFiles, plural(result.TotalFiles, "file", "files"))
}

// Backups prints the backups taken and the failures.
func (p *Printer) Backups(result *docxfill.BackupResult) {
	p.heading("Backups")
	for _, e := range result.Created {
		p.line("  %s %s → %s", p.success.Render("✓"), e.Source, e.Backup)
	}
	for _, f := range result.Failures {
		p.line("  %s %s: %v", p.failure.Render("✗"), f.Path, f.Err)
	}
	p.line("%d created, %s", len(result.Created), p.failedCount(len(result.Failures)))
}

func (p *Printer) status(s docxfill.Status) string {
	switch s {
	case docxfill.StatusSuccess:
		return p.success.Render(s.String())
	case docxfill.StatusPartial:
		return p.warning.Render(s.String())
	default:
		return p.failure.Render(s.String())
	}
}

func (p *Printer) failedCount(n int) string {
	text := fmt.Sprintf("%d failed", n)
	if n == 0 {
		return text
	}
	return p.failure.Render(text)
}

func fileLabel(f docxfill.TemplateFile) string {
	if f.Name != "" {
		return f.Name
	}
	return filepath.Base(f.Path)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

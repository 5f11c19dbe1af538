// Package docxfill scans Word (DOCX) templates for placeholders and fills them with
// text or images while leaving every other byte of the document alone.
//
// A placeholder such as {{NAME}} is often split by Word across several formatting
// runs. The engine flattens each paragraph into its logical text, matches the
// placeholder pattern there and maps every match back onto the runs it touches. The
// first touched run keeps its formatting and receives the value; the rest of the token
// is cut out of the following runs, and runs left empty are removed.
//
// # Quick Start
//
//	files, err := docxfill.TemplateFilesFromPaths("offer.docx", "letter.docx")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	engine, err := docxfill.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	scan, err := engine.Scan(ctx, files)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, p := range scan.Placeholders {
//	    fmt.Println(p.Name, p.TotalOccurrences)
//	}
//
//	result, err := engine.Replace(ctx, files, docxfill.ReplacementMap{
//	    "NAME": docxfill.TextValue("Alice"),
//	    "LOGO": docxfill.ImageValue("logo.png", 120, 0),
//	}, engine.DefaultReplaceOptions())
//
// # Operations
//
//   - Scan: find placeholders in a batch, one location per file per name
//   - Validate: compare a scan with a ReplacementMap, reporting unmapped and unused names
//   - Preview: plan a replacement without writing anything
//   - Replace / ReplaceInSingleFile: back up, rewrite and commit each file
//   - CreateBackups: copy files to sibling backups
//
// # File Lifecycle
//
// Every file in Replace moves through Pending, BackedUp, Applying, then Committed or
// RolledBack, and finally Cleaned. A file is written by replacing it atomically, so a
// reader never sees a half-written package, and a failure after the backup restores
// the original bytes. Files are processed in parallel, bounded by
// Config.MaxConcurrency; one file's failure never undoes another file's commit.
//
// # Errors
//
// Errors returned by the engine are *Error values with a Kind (PackageCorrupt,
// FileNotFound, Timeout, ...). Use KindOf, IsKind and IsCritical to inspect them.
//
// # Configuration
//
// Config can be built in code or read from DOCXFILL_* environment variables with
// ConfigFromEnvironment. The default pattern is \{\{([^{}]+)\}\}.
package docxfill

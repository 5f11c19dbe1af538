package docxfill

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	docxml "github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill/xml"
)

// ReplaceOptions controls one Replace call. The zero value takes no backups; start
// from Engine.DefaultReplaceOptions to follow the configuration.
type ReplaceOptions struct {
	// Strict refuses to touch any file while a placeholder has no value.
	Strict bool
	// Backup is used as given, except that an empty Suffix falls back to the
	// configured one. Backup.Enabled is false unless set.
	Backup BackupConfig
	// DryRun plans the replacement without writing anything.
	DryRun bool
}

// Engine scans and fills DOCX templates. It is safe for concurrent use.
type Engine struct {
	config *Config
	log    *Logger
	// afterWrite is passed to the applier; see applier.afterWrite.
	afterWrite func(path string) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine.
func WithLogger(logger *Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.log = logger
		}
	}
}

// New creates an engine from the global configuration.
func New(opts ...Option) (*Engine, error) {
	return NewWithConfig(GetGlobalConfig(), opts...)
}

// NewWithConfig creates an engine from config, filling unset fields with defaults.
func NewWithConfig(config *Config, opts ...Option) (*Engine, error) {
	cfg := NewConfigWithDefaults(config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = GetLogger()
	}
	return e, nil
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return *e.config
}

// DefaultReplaceOptions returns the options implied by the configuration.
func (e *Engine) DefaultReplaceOptions() ReplaceOptions {
	return ReplaceOptions{
		Strict: e.config.StrictValidation,
		Backup: e.config.Backup,
	}
}

func (e *Engine) operation(name string) (string, *Logger) {
	id := uuid.NewString()
	return id, e.log.WithFields(Fields{"op": name, "op_id": id})
}

func (e *Engine) newScanner(log *Logger) (*scanner, error) {
	pattern, err := compilePattern(e.config.Pattern, e.config.CaseSensitive)
	if err != nil {
		return nil, err
	}
	return &scanner{
		pattern:       pattern,
		contextRadius: e.config.ContextRadius,
		concurrency:   e.config.MaxConcurrency,
		log:           log,
	}, nil
}

// Scan finds every placeholder in files. Files that cannot be scanned are reported in
// the result; the error is reserved for an invalid pattern.
func (e *Engine) Scan(ctx context.Context, files []TemplateFile) (*PlaceholderScanResult, error) {
	opID, log := e.operation("scan")

	s, err := e.newScanner(log)
	if err != nil {
		return nil, err
	}

	result := s.scan(ctx, files)
	result.OperationID = opID
	log.Info("Scanned %d files: %d placeholders, %d failed in %v",
		result.TotalFilesScanned, len(result.Placeholders), result.FailedFiles, result.Elapsed)
	return result, nil
}

// Validate compares a scan with a replacement map.
func (e *Engine) Validate(scan *PlaceholderScanResult, m ReplacementMap) *ReplacementValidationResult {
	return validateMapping(scan, m, e.config.CaseSensitive)
}

// Preview reports what Replace would change without touching any file.
func (e *Engine) Preview(ctx context.Context, files []TemplateFile, m ReplacementMap) (*ReplacementPreview, error) {
	opID, log := e.operation("preview")

	s, err := e.newScanner(log)
	if err != nil {
		return nil, err
	}
	files = sortFiles(files)

	preview := e.plan(ctx, files, m, s.pattern)
	preview.OperationID = opID
	preview.Validation = e.Validate(s.scan(ctx, files), m)
	log.Info("Previewed %d files: %d replacements", len(files), preview.TotalReplacements)
	return preview, nil
}

// plan computes the changes for files without writing anything. Validation is left
// to the caller, which has already scanned.
func (e *Engine) plan(ctx context.Context, files []TemplateFile, m ReplacementMap, pattern *compiledPattern) *ReplacementPreview {
	p := &planner{
		pattern: pattern,
		values:  newValueIndex(m, e.config.CaseSensitive),
		images:  newImageLoader(),
	}

	preview := &ReplacementPreview{DryRun: true}
	preview.Files = runBounded(len(files), e.config.MaxConcurrency,
		ctx.Err,
		func(i int) FilePreview {
			return previewFile(files[i], p)
		},
		func(i int, reason error) FilePreview {
			return FilePreview{File: files[i], Err: classify("replacement preview", files[i].Path, AccessNone, reason)}
		},
	)

	for _, fp := range preview.Files {
		preview.TotalReplacements += fp.Replacements
	}
	return preview
}

func previewFile(file TemplateFile, p *planner) (fp FilePreview) {
	fp.File = file
	defer func() {
		if r := recover(); r != nil {
			fp.Err = classify("replacement preview", file.Path, AccessNone, RecoverError(r))
		}
	}()

	pkg, err := docxml.Open(file.Path)
	if err != nil {
		fp.Err = classify("file reading", file.Path, AccessRead, err)
		return fp
	}
	plan, err := p.planFile(file, pkg)
	if err != nil {
		fp.Err = err
		return fp
	}
	fp.Replacements = plan.Replacements
	fp.Changes = plan.Changes
	return fp
}

// Replace fills every file with the values in m. In strict mode the whole batch is
// validated first and nothing is touched while a placeholder lacks a value; the
// returned error then has kind UnmappedPlaceholder. Otherwise files fail individually
// and the error is reserved for an invalid pattern.
//
// Cancelling ctx stops files that have not started; files in flight finish their
// commit or rollback.
func (e *Engine) Replace(ctx context.Context, files []TemplateFile, m ReplacementMap, opts ReplaceOptions) (*ReplaceResult, error) {
	start := time.Now()
	opID, log := e.operation("replace")

	s, err := e.newScanner(log)
	if err != nil {
		return nil, err
	}
	files = sortFiles(files)
	if opts.Backup.Suffix == "" {
		opts.Backup.Suffix = e.config.Backup.Suffix
	}

	result := &ReplaceResult{OperationID: opID, DryRun: opts.DryRun}
	result.Validation = e.Validate(s.scan(ctx, files), m)

	if opts.Strict {
		if err := result.Validation.Err(); err != nil {
			result.TotalFiles = len(files)
			result.FailedFiles = len(files)
			result.Status = StatusFailed
			result.Elapsed = time.Since(start)
			log.Error("Validation failed, no file was changed: %v", err)
			return result, err
		}
	}

	if opts.DryRun {
		for _, fp := range e.plan(ctx, files, m, s.pattern).Files {
			result.Files = append(result.Files, FileReplaceResult{
				File:         fp.File,
				Success:      fp.Err == nil,
				Replacements: fp.Replacements,
				Err:          fp.Err,
				State:        StatePending,
			})
		}
		result.summarize()
		result.Elapsed = time.Since(start)
		return result, nil
	}

	job := &replaceJob{
		planner: &planner{
			pattern: s.pattern,
			values:  newValueIndex(m, e.config.CaseSensitive),
			strict:  opts.Strict,
			images:  newImageLoader(),
		},
		applier: &applier{log: log, afterWrite: e.afterWrite},
		backups: NewBackupCoordinator(opts.Backup.Suffix),
		options: opts,
	}

	var halted atomic.Bool
	stop := func() error {
		if halted.Load() {
			return errors.New("skipped after a critical error in another file")
		}
		return ctx.Err()
	}

	result.Files = runBounded(len(files), e.config.MaxConcurrency,
		stop,
		func(i int) FileReplaceResult {
			fileCtx, cancel := e.fileContext(ctx)
			defer cancel()

			res := newFileRun(files[i], log).run(fileCtx, job)
			if IsCritical(res.Err) {
				halted.Store(true)
				log.Error("Critical error, halting batch: %v", res.Err)
			}
			return res
		},
		func(i int, reason error) FileReplaceResult {
			err := classify("file replacement", files[i].Path, AccessNone, reason)
			if !IsKind(err, Timeout) {
				err.Kind = Cancelled
			}
			return FileReplaceResult{File: files[i], Err: err, State: StatePending}
		},
	)

	result.summarize()
	result.Elapsed = time.Since(start)
	log.Info("Replaced %d placeholders in %d of %d files (%s) in %v",
		result.TotalReplacements, result.SuccessfulFiles, result.TotalFiles, result.Status, result.Elapsed)
	return result, nil
}

// fileContext detaches the file's work from batch cancellation and applies the
// per-file timeout.
func (e *Engine) fileContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if e.config.Timeout > 0 {
		return context.WithTimeout(detached, e.config.Timeout)
	}
	return context.WithCancel(detached)
}

// ReplaceInSingleFile fills one file. Failures, including strict validation, are
// reported in the result.
func (e *Engine) ReplaceInSingleFile(ctx context.Context, file TemplateFile, m ReplacementMap, opts ReplaceOptions) *FileReplaceResult {
	result, err := e.Replace(ctx, []TemplateFile{file}, m, opts)
	if err != nil {
		return &FileReplaceResult{File: file, Err: err, State: StatePending}
	}
	return &result.Files[0]
}

// CreateBackups copies every file to its sibling backup. The backups are kept.
func (e *Engine) CreateBackups(ctx context.Context, files []TemplateFile) *BackupResult {
	_, log := e.operation("backup")
	files = sortFiles(files)
	coordinator := NewBackupCoordinator(e.config.Backup.Suffix)

	type outcome struct {
		entry BackupEntry
		err   error
	}
	outcomes := runBounded(len(files), e.config.MaxConcurrency,
		ctx.Err,
		func(i int) outcome {
			backup, err := coordinator.Backup(files[i].Path)
			return outcome{entry: BackupEntry{Source: files[i].Path, Backup: backup}, err: err}
		},
		func(i int, reason error) outcome {
			return outcome{err: classify("backup creation", files[i].Path, AccessNone, reason)}
		},
	)

	result := &BackupResult{}
	for i, o := range outcomes {
		if o.err != nil {
			result.Failures = append(result.Failures, BackupFailure{Path: files[i].Path, Err: o.err})
			continue
		}
		result.Created = append(result.Created, o.entry)
	}
	log.Info("Created %d backups, %d failed", len(result.Created), len(result.Failures))
	return result
}

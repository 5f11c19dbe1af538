package docxfill

import (
	"context"
	"sync"
)

var (
	defaultEngine     *Engine
	defaultEngineErr  error
	defaultEngineOnce sync.Once
)

// DefaultEngine returns the engine built from the global configuration. It is created
// on first use; call SetGlobalConfig before that to change its settings.
func DefaultEngine() (*Engine, error) {
	defaultEngineOnce.Do(func() {
		defaultEngine, defaultEngineErr = New()
	})
	return defaultEngine, defaultEngineErr
}

// Scan finds placeholders using the default engine.
func Scan(ctx context.Context, files []TemplateFile) (*PlaceholderScanResult, error) {
	e, err := DefaultEngine()
	if err != nil {
		return nil, err
	}
	return e.Scan(ctx, files)
}

// Validate compares a scan with a map using the default engine.
func Validate(scan *PlaceholderScanResult, m ReplacementMap) (*ReplacementValidationResult, error) {
	e, err := DefaultEngine()
	if err != nil {
		return nil, err
	}
	return e.Validate(scan, m), nil
}

// Preview plans a replacement using the default engine.
func Preview(ctx context.Context, files []TemplateFile, m ReplacementMap) (*ReplacementPreview, error) {
	e, err := DefaultEngine()
	if err != nil {
		return nil, err
	}
	return e.Preview(ctx, files, m)
}

// Replace fills files using the default engine and its configured options.
func Replace(ctx context.Context, files []TemplateFile, m ReplacementMap) (*ReplaceResult, error) {
	e, err := DefaultEngine()
	if err != nil {
		return nil, err
	}
	return e.Replace(ctx, files, m, e.DefaultReplaceOptions())
}

// ReplaceInSingleFile fills one file using the default engine.
func ReplaceInSingleFile(ctx context.Context, file TemplateFile, m ReplacementMap) *FileReplaceResult {
	e, err := DefaultEngine()
	if err != nil {
		return &FileReplaceResult{File: file, Err: err}
	}
	return e.ReplaceInSingleFile(ctx, file, m, e.DefaultReplaceOptions())
}

// CreateBackups backs up files using the default engine.
func CreateBackups(ctx context.Context, files []TemplateFile) (*BackupResult, error) {
	e, err := DefaultEngine()
	if err != nil {
		return nil, err
	}
	return e.CreateBackups(ctx, files), nil
}

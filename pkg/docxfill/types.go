package docxfill

import (
	"os"
	"path/filepath"
	"time"
)

// TemplateFile identifies one document package. It is a snapshot taken at discovery
// time and is never refreshed by the engine.
type TemplateFile struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// TemplateFileFromPath stats path and returns its snapshot.
func TemplateFileFromPath(path string) (TemplateFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return TemplateFile{}, classify("file discovery", path, AccessRead, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return TemplateFile{}, classify("file discovery", abs, AccessRead, err)
	}
	return TemplateFile{
		Path:    abs,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// TemplateFilesFromPaths stats every path, failing on the first error.
func TemplateFilesFromPaths(paths ...string) ([]TemplateFile, error) {
	files := make([]TemplateFile, 0, len(paths))
	for _, path := range paths {
		file, err := TemplateFileFromPath(path)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// Placeholder is one distinct token name found in a batch.
// TotalOccurrences always equals the sum of Locations[i].Occurrences.
type Placeholder struct {
	Name             string
	Pattern          string
	TotalOccurrences int
	Locations        []PlaceholderLocation
}

// PlaceholderLocation aggregates the occurrences of a placeholder in one file.
type PlaceholderLocation struct {
	FilePath    string
	FileName    string
	Occurrences int
	// Context is a snippet around the first occurrence in the file.
	Context string
}

// ScanError records a file that could not be scanned.
type ScanError struct {
	FilePath string
	Message  string
	Err      error
}

// PlaceholderScanResult is the outcome of Scan.
type PlaceholderScanResult struct {
	OperationID           string
	Success               bool
	Placeholders          []Placeholder
	TotalFilesScanned     int
	FilesWithPlaceholders int
	FailedFiles           int
	Errors                []ScanError
	Elapsed               time.Duration
}

// Names returns the placeholder names in result order.
func (r *PlaceholderScanResult) Names() []string {
	names := make([]string, len(r.Placeholders))
	for i, p := range r.Placeholders {
		names[i] = p.Name
	}
	return names
}

// Placeholder returns the placeholder with the given name.
func (r *PlaceholderScanResult) Placeholder(name string) (Placeholder, bool) {
	for _, p := range r.Placeholders {
		if p.Name == name {
			return p, true
		}
	}
	return Placeholder{}, false
}

// ImageRef points at an image to insert. Width and Height are target pixels; a zero
// dimension is derived from the image itself, preserving the aspect ratio when the
// other one is given.
type ImageRef struct {
	Path   string
	Data   []byte
	Width  int
	Height int
}

// ReplacementValue is either literal text or an image.
type ReplacementValue struct {
	Text  string
	Image *ImageRef
}

// TextValue returns a text replacement.
func TextValue(text string) ReplacementValue {
	return ReplacementValue{Text: text}
}

// ImageValue returns an image replacement read from path.
func ImageValue(path string, width, height int) ReplacementValue {
	return ReplacementValue{Image: &ImageRef{Path: path, Width: width, Height: height}}
}

// IsImage reports whether the value inserts an image.
func (v ReplacementValue) IsImage() bool {
	return v.Image != nil
}

// String returns the text, or a short description of the image.
func (v ReplacementValue) String() string {
	if v.Image == nil {
		return v.Text
	}
	if v.Image.Path != "" {
		return "[image " + filepath.Base(v.Image.Path) + "]"
	}
	return "[image]"
}

// ReplacementMap maps placeholder names to their values.
type ReplacementMap map[string]ReplacementValue

// TextMap builds a ReplacementMap of text values.
func TextMap(values map[string]string) ReplacementMap {
	m := make(ReplacementMap, len(values))
	for k, v := range values {
		m[k] = TextValue(v)
	}
	return m
}

// Status summarizes a batch.
type Status int

const (
	StatusSuccess Status = iota
	StatusPartial
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusPartial:
		return "partial"
	default:
		return "failed"
	}
}

// FileReplaceResult is the outcome of one file.
type FileReplaceResult struct {
	File         TemplateFile
	Success      bool
	Replacements int
	// BackupPath is set while a backup exists after the operation, or when a backup
	// was taken and retained.
	BackupPath string
	Err        error
	// State is the final state of the file's state machine.
	State    FileState
	Duration time.Duration
}

// ReplaceResult is the outcome of Replace.
type ReplaceResult struct {
	OperationID       string
	Files             []FileReplaceResult
	TotalFiles        int
	SuccessfulFiles   int
	FailedFiles       int
	TotalReplacements int
	Elapsed           time.Duration
	Status            Status
	DryRun            bool
	Validation        *ReplacementValidationResult
}

// FullySuccessful reports whether every file succeeded.
func (r *ReplaceResult) FullySuccessful() bool {
	return r.Status == StatusSuccess
}

func (r *ReplaceResult) summarize() {
	r.TotalFiles = len(r.Files)
	r.SuccessfulFiles, r.FailedFiles, r.TotalReplacements = 0, 0, 0
	for _, f := range r.Files {
		if f.Success {
			r.SuccessfulFiles++
			r.TotalReplacements += f.Replacements
		} else {
			r.FailedFiles++
		}
	}
	switch {
	case r.FailedFiles == 0:
		r.Status = StatusSuccess
	case r.SuccessfulFiles > 0:
		r.Status = StatusPartial
	default:
		r.Status = StatusFailed
	}
}

// PreviewChange is one replacement that Replace would perform.
type PreviewChange struct {
	Placeholder string
	Part        string
	Before      string
	After       string

	// Key is the map key that supplied the value. It differs from Placeholder only in
	// case-insensitive mode.
	Key string
}

// FilePreview lists the changes for one file.
type FilePreview struct {
	File         TemplateFile
	Replacements int
	Changes      []PreviewChange
	Err          error
}

// ReplacementPreview is the outcome of Preview. DryRun is always true.
type ReplacementPreview struct {
	OperationID       string
	Files             []FilePreview
	TotalReplacements int
	Validation        *ReplacementValidationResult
	DryRun            bool
}

// BackupEntry is one backup that was created.
type BackupEntry struct {
	Source string
	Backup string
}

// BackupFailure is one file that could not be backed up.
type BackupFailure struct {
	Path string
	Err  error
}

// BackupResult is the outcome of CreateBackups.
type BackupResult struct {
	Created  []BackupEntry
	Failures []BackupFailure
}

// Success reports whether every backup was created.
func (r *BackupResult) Success() bool {
	return len(r.Failures) == 0
}

// Err aggregates the failures, or returns nil.
func (r *BackupResult) Err() error {
	multi := NewMultiError()
	for _, f := range r.Failures {
		multi.Add(f.Err)
	}
	return multi.Err()
}

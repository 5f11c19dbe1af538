// Package discovery finds DOCX templates on disk.
package discovery

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/monochromegane/go-gitignore"

	"github.com/jirihalaska/docx-template-cli-sub004/pkg/docxfill"
)

// IgnoreFileName is read from the root of a walk. It uses .gitignore syntax.
const IgnoreFileName = ".docxfillignore"

// Options controls a walk.
type Options struct {
	// Recursive descends into subdirectories.
	Recursive bool
	// Exclude holds glob patterns matched against base names and slash-separated
	// paths relative to the root.
	Exclude []string
	// BackupSuffix marks backup files, which are never templates.
	BackupSuffix string
	// Hidden includes dot files and directories.
	Hidden bool
	// NoIgnoreFile skips reading IgnoreFileName.
	NoIgnoreFile bool
}

// Find returns the templates under root, sorted by path. A root that is a file is
// returned as is when it is a template.
func Find(root string, opts Options) ([]docxfill.TemplateFile, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("cannot access %s: %w", root, err)
	}
	if !info.IsDir() {
		if !isTemplate(info.Name(), opts) {
			return nil, fmt.Errorf("%s is not a .docx template", root)
		}
		file, err := docxfill.TemplateFileFromPath(abs)
		if err != nil {
			return nil, err
		}
		return []docxfill.TemplateFile{file}, nil
	}

	for _, pattern := range opts.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
	}

	var ignore gitignore.IgnoreMatcher
	if !opts.NoIgnoreFile {
		ignore, err = loadIgnoreFile(abs)
		if err != nil {
			return nil, err
		}
	}

	var paths []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == abs {
			return nil
		}

		name := d.Name()
		rel, _ := filepath.Rel(abs, path)
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !opts.Recursive || (!opts.Hidden && isHidden(name)) || excluded(name, rel, opts.Exclude) {
				return fs.SkipDir
			}
			if ignore != nil && ignore.Match(path, true) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !isTemplate(name, opts) {
			return nil
		}
		if excluded(name, rel, opts.Exclude) {
			return nil
		}
		if ignore != nil && ignore.Match(path, false) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking directory %s: %w", root, err)
	}

	sort.Strings(paths)
	return docxfill.TemplateFilesFromPaths(paths...)
}

// Resolve turns command line arguments into templates. Directories are walked with
// opts; files are taken as given. Duplicates are removed and the result is sorted.
func Resolve(args []string, opts Options) ([]docxfill.TemplateFile, error) {
	seen := make(map[string]bool)
	var files []docxfill.TemplateFile

	for _, arg := range args {
		found, err := Find(arg, opts)
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if seen[f.Path] {
				continue
			}
			seen[f.Path] = true
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func loadIgnoreFile(root string) (gitignore.IgnoreMatcher, error) {
	path := filepath.Join(root, IgnoreFileName)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	defer f.Close()
	return gitignore.NewGitIgnoreFromReader(root, f), nil
}

// isTemplate accepts .docx files that are neither Word lock files (~$name.docx) nor
// backups.
func isTemplate(name string, opts Options) bool {
	if strings.HasPrefix(name, "~$") {
		return false
	}
	if !opts.Hidden && isHidden(name) {
		return false
	}
	if docxfill.IsBackupName(name, opts.BackupSuffix) {
		return false
	}
	return strings.EqualFold(filepath.Ext(name), ".docx")
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

func excluded(name, rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

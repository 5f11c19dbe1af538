package xml

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

var (
	// ErrCorrupt reports a package whose archive or XML is not well-formed.
	ErrCorrupt = errors.New("package corrupt")
	// ErrUnsupportedPart reports a part whose root element is not a supported document type.
	ErrUnsupportedPart = errors.New("unsupported part")
)

const mainDocumentPart = "word/document.xml"

// ContentTypesPart lists the content type of every part in the package.
const ContentTypesPart = "[Content_Types].xml"

// Package is an in-memory DOCX package.
// Reads are served from the original archive; edits are staged in memory and only
// reach disk through Save or WriteTo.
type Package struct {
	name   string
	source []byte
	reader *zip.Reader
	Parts  map[string]*zip.File

	mu     sync.Mutex
	trees  map[string]*PartTree
	staged map[string][]byte
	added  []string
	// lastDrawingID is the highest docPr id handed out so far, 0 until first use.
	lastDrawingID int
}

// Open reads the package at path into memory.
func Open(path string) (*Package, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return OpenBytes(content, path)
}

// OpenBytes parses an in-memory package. The name is used in error messages only.
func OpenBytes(content []byte, name string) (*Package, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read zip file: %v", ErrCorrupt, err)
	}

	pkg := &Package{
		name:   name,
		source: content,
		reader: zipReader,
		Parts:  make(map[string]*zip.File),
		trees:  make(map[string]*PartTree),
		staged: make(map[string][]byte),
	}

	for _, file := range zipReader.File {
		pkg.Parts[file.Name] = file
	}

	if _, ok := pkg.Parts[mainDocumentPart]; !ok {
		return nil, fmt.Errorf("%w: not a valid DOCX file: missing %s", ErrCorrupt, mainDocumentPart)
	}

	return pkg, nil
}

// Name returns the name the package was opened with.
func (p *Package) Name() string {
	return p.name
}

// ReadPart returns the current content of a part, including staged edits.
func (p *Package) ReadPart(name string) ([]byte, error) {
	p.mu.Lock()
	staged, ok := p.staged[name]
	p.mu.Unlock()
	if ok {
		return staged, nil
	}

	file, ok := p.Parts[name]
	if !ok {
		return nil, fmt.Errorf("part %s not found", name)
	}

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open part %s: %v", ErrCorrupt, name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read part %s: %v", ErrCorrupt, name, err)
	}

	return content, nil
}

// HasPart reports whether the package contains a part, staged or original.
func (p *Package) HasPart(name string) bool {
	p.mu.Lock()
	_, staged := p.staged[name]
	p.mu.Unlock()
	_, ok := p.Parts[name]
	return ok || staged
}

// Part returns the parsed tree of a text-bearing part. Trees are cached until the part
// is restaged.
func (p *Package) Part(name string) (*PartTree, error) {
	p.mu.Lock()
	if tree, ok := p.trees[name]; ok {
		p.mu.Unlock()
		return tree, nil
	}
	p.mu.Unlock()

	content, err := p.ReadPart(name)
	if err != nil {
		return nil, err
	}

	tree, err := ParsePart(name, content)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.trees[name] = tree
	p.mu.Unlock()
	return tree, nil
}

// StagePart replaces the content of a part. Nothing is written until Save.
func (p *Package) StagePart(name string, content []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.Parts[name]; !exists {
		if _, already := p.staged[name]; !already {
			p.added = append(p.added, name)
		}
	}
	p.staged[name] = content
	delete(p.trees, name)
}

// WriteTo writes the package as a zip archive. Unchanged entries are copied raw, so
// their compressed bytes and headers match the source archive.
func (p *Package) WriteTo(w io.Writer) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	counter := &countingWriter{w: w}
	zw := zip.NewWriter(counter)

	for _, file := range p.reader.File {
		if content, ok := p.staged[file.Name]; ok {
			header := file.FileHeader
			header.CompressedSize64 = 0
			header.UncompressedSize64 = 0
			header.CRC32 = 0
			header.Extra = nil
			fw, err := zw.CreateHeader(&header)
			if err != nil {
				return counter.n, fmt.Errorf("failed to create %s: %w", file.Name, err)
			}
			if _, err := fw.Write(content); err != nil {
				return counter.n, fmt.Errorf("failed to write %s: %w", file.Name, err)
			}
			continue
		}

		if err := copyRaw(zw, file); err != nil {
			return counter.n, err
		}
	}

	added := append([]string(nil), p.added...)
	sort.Strings(added)
	for _, name := range added {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return counter.n, fmt.Errorf("failed to create %s: %w", name, err)
		}
		if _, err := fw.Write(p.staged[name]); err != nil {
			return counter.n, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return counter.n, fmt.Errorf("failed to close zip writer: %w", err)
	}
	return counter.n, nil
}

// Bytes renders the package into memory.
func (p *Package) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := p.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save commits the package to path atomically: the archive is written to a temporary
// file in the same directory, synced, and renamed over the destination.
func (p *Package) Save(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := p.WriteTo(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpPath, info.Mode().Perm())
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}

func copyRaw(zw *zip.Writer, file *zip.File) error {
	header := file.FileHeader
	fw, err := zw.CreateRaw(&header)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", file.Name, err)
	}
	rc, err := file.OpenRaw()
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %v", ErrCorrupt, file.Name, err)
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("failed to copy %s: %w", file.Name, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}

package docxfill

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BackupCoordinator keeps sibling copies of files for the length of one operation.
// Backing up the same file twice returns the first backup.
type BackupCoordinator struct {
	suffix string

	mu      sync.Mutex
	backups map[string]string
}

// NewBackupCoordinator creates a coordinator naming backups <file><suffix>.
func NewBackupCoordinator(suffix string) *BackupCoordinator {
	if suffix == "" {
		suffix = DefaultConfig().Backup.Suffix
	}
	return &BackupCoordinator{
		suffix:  suffix,
		backups: make(map[string]string),
	}
}

// Backup copies path to a new sibling file and returns its path. When <file><suffix>
// is left over from an earlier run, the copy is numbered: <file>.1<suffix>.
func (b *BackupCoordinator) Backup(path string) (string, error) {
	if existing, ok := b.BackupPath(path); ok {
		return existing, nil
	}

	src, err := os.Open(path)
	if err != nil {
		return "", classify("backup creation", path, AccessRead, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", classify("backup creation", path, AccessRead, err)
	}

	var dst *os.File
	var backupPath string
	for n := 0; ; n++ {
		backupPath = b.candidate(path, n)
		dst, err = os.OpenFile(backupPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, info.Mode().Perm())
		if err == nil {
			break
		}
		if !os.IsExist(err) || n >= 1000 {
			return "", classify("backup creation", backupPath, AccessCreate, err)
		}
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", classify("backup creation", backupPath, AccessWrite, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", classify("backup creation", backupPath, AccessWrite, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(backupPath)
		return "", classify("backup creation", backupPath, AccessWrite, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.backups[path]; ok {
		// A concurrent call for the same file won.
		os.Remove(backupPath)
		return existing, nil
	}
	b.backups[path] = backupPath
	return backupPath, nil
}

func (b *BackupCoordinator) candidate(path string, n int) string {
	if n == 0 {
		return path + b.suffix
	}
	return fmt.Sprintf("%s.%d%s", path, n, b.suffix)
}

// BackupPath returns the backup taken for path in this operation.
func (b *BackupCoordinator) BackupPath(path string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	backup, ok := b.backups[path]
	return backup, ok
}

// Restore overwrites path with the exact bytes of its backup. The original is replaced
// by rename, so it is never left half written.
func (b *BackupCoordinator) Restore(path string) error {
	backup, ok := b.BackupPath(path)
	if !ok {
		return NewError(Unexpected, "backup restoration", path, fmt.Errorf("no backup was taken"))
	}

	content, err := os.ReadFile(backup)
	if err != nil {
		return classify("backup restoration", backup, AccessRead, err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(backup); err == nil {
		perm = info.Mode().Perm()
	}

	if err := writeFileAtomic(path, content, perm); err != nil {
		return classify("backup restoration", path, AccessWrite, err)
	}
	return nil
}

// Cleanup deletes the backup of path and forgets it.
func (b *BackupCoordinator) Cleanup(path string) error {
	b.mu.Lock()
	backup, ok := b.backups[path]
	if ok {
		delete(b.backups, path)
	}
	b.mu.Unlock()

	if !ok {
		return nil
	}
	if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
		return classify("backup cleanup", backup, AccessDelete, err)
	}
	return nil
}

// Release forgets the backup of path without deleting it.
func (b *BackupCoordinator) Release(path string) {
	b.mu.Lock()
	delete(b.backups, path)
	b.mu.Unlock()
}

// IsBackupName reports whether name looks like a backup made with suffix, numbered
// or not.
func IsBackupName(name, suffix string) bool {
	return suffix != "" && strings.HasSuffix(name, suffix)
}

func writeFileAtomic(path string, content []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
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

	if _, err := tmp.Write(content); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}

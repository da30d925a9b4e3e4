// Package logging configures the process logger: stdout, optionally teed into a
// size-rotated file.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// DefaultBackups is how many rotated files (path.1 .. path.N) are kept.
const DefaultBackups = 5

// RotatingFile is an io.WriteCloser that moves path to path.1 (shifting older
// backups up) once the next write would push it past maxBytes.
type RotatingFile struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	backups  int
	f        *os.File
	size     int64
}

// OpenRotatingFile opens or creates path for appending.
func OpenRotatingFile(path string, maxBytes int64, backups int) (*RotatingFile, error) {
	if path == "" {
		return nil, errors.New("logging: path is required")
	}
	if maxBytes <= 0 {
		return nil, errors.New("logging: maxBytes must be > 0")
	}
	if backups < 0 {
		backups = 0
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	rf := &RotatingFile{path: path, maxBytes: maxBytes, backups: backups}
	if err := rf.open(os.O_APPEND); err != nil {
		return nil, err
	}
	if rf.size > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			_ = rf.f.Close()
			return nil, err
		}
	}
	return rf, nil
}

func (rf *RotatingFile) open(mode int) error {
	f, err := os.OpenFile(rf.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	rf.f = f
	rf.size = 0
	if st, err := f.Stat(); err == nil {
		rf.size = st.Size()
	}
	return nil
}

// Write appends p, rotating first if needed. A single line larger than
// maxBytes still lands in a fresh file.
func (rf *RotatingFile) Write(p []byte) (int, error) {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return 0, os.ErrClosed
	}
	if rf.size > 0 && rf.size+int64(len(p)) > rf.maxBytes {
		if err := rf.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := rf.f.Write(p)
	rf.size += int64(n)
	return n, err
}

// Close closes the current file. Later writes fail with os.ErrClosed.
func (rf *RotatingFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if rf.f == nil {
		return nil
	}
	err := rf.f.Close()
	rf.f = nil
	return err
}

func (rf *RotatingFile) rotate() error {
	if err := rf.f.Close(); err != nil {
		return err
	}
	rf.f = nil
	if rf.backups == 0 {
		if err := removeIfExists(rf.path); err != nil {
			return err
		}
	} else if err := rf.shift(); err != nil {
		return err
	}
	return rf.open(os.O_TRUNC)
}

// shift renames path.(i) to path.(i+1) from the oldest down, then path to path.1.
func (rf *RotatingFile) shift() error {
	if err := removeIfExists(rf.backup(rf.backups)); err != nil {
		return err
	}
	for i := rf.backups - 1; i >= 1; i-- {
		if err := renameIfExists(rf.backup(i), rf.backup(i+1)); err != nil {
			return err
		}
	}
	return renameIfExists(rf.path, rf.backup(1))
}

func (rf *RotatingFile) backup(i int) string {
	return fmt.Sprintf("%s.%d", rf.path, i)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func renameIfExists(src, dst string) error {
	if _, err := os.Stat(src); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := removeIfExists(dst); err != nil {
		return err
	}
	return os.Rename(src, dst)
}

// Setup points the standard logger at stdout, teed into a rotating file when
// path is set. The returned closer is never nil.
func Setup(path string, maxBytes int64) (io.Closer, error) {
	log.SetFlags(log.LstdFlags | log.LUTC | log.Lshortfile)
	if path == "" {
		log.SetOutput(os.Stdout)
		return io.NopCloser(nil), nil
	}
	rf, err := OpenRotatingFile(path, maxBytes, DefaultBackups)
	if err != nil {
		return nil, err
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rf))
	return rf, nil
}

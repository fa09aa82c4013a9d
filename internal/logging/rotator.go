package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileRotator is an io.Writer over a log file that rotates the file when it
// grows past the configured size or when the calendar day changes. Rotated
// files carry a timestamp suffix and are optionally gzipped in the
// background.
type FileRotator struct {
	config *Config

	mu     sync.Mutex
	file   *os.File
	size   int64
	opened time.Time
}

func NewFileRotator(cfg *Config) (*FileRotator, error) {
	r := &FileRotator{config: cfg}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	if err := r.open(); err != nil {
		return nil, err
	}
	return r, nil
}

// open opens the configured file for append and records its current size so
// the size check accounts for an existing file after restart.
func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.config.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	r.opened = time.Now()
	return nil
}

func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}

	limit := r.config.MaxSize * 1024 * 1024
	dayRolled := r.opened.Day() != time.Now().Day()
	if r.size+int64(len(p)) > limit || dayRolled {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

// rotate renames the active file aside and reopens a fresh one. Compression
// and retention run in the background so the writer is not held up.
func (r *FileRotator) rotate() error {
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			return fmt.Errorf("close active log: %w", err)
		}
		r.file = nil
	}

	aside := r.backupName(time.Now())
	if err := os.Rename(r.config.FilePath, aside); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}

	if r.config.Compress {
		go gzipAndReplace(aside)
	}
	go r.enforceRetention()

	return r.open()
}

// backupName builds the rotated path: base-20060102-150405.ext next to the
// active file.
func (r *FileRotator) backupName(at time.Time) string {
	dir := filepath.Dir(r.config.FilePath)
	base := filepath.Base(r.config.FilePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, at.Format("20060102-150405"), ext))
}

// backupGlob matches rotated siblings of the active file, compressed or not.
func (r *FileRotator) backupGlob() string {
	base := filepath.Base(r.config.FilePath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(filepath.Dir(r.config.FilePath), stem+"-*"+ext+"*")
}

func gzipAndReplace(path string) {
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	defer out.Close()

	zw := gzip.NewWriter(out)
	zw.Name = filepath.Base(path)
	zw.ModTime = time.Now()
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		os.Remove(path + ".gz")
		return
	}
	if err := zw.Close(); err != nil {
		os.Remove(path + ".gz")
		return
	}
	os.Remove(path)
}

// enforceRetention drops the oldest backups past MaxBackups and anything
// older than MaxAge days.
func (r *FileRotator) enforceRetention() {
	matches, err := filepath.Glob(r.backupGlob())
	if err != nil {
		return
	}

	type backup struct {
		path string
		mod  time.Time
	}
	backups := make([]backup, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		backups = append(backups, backup{path: m, mod: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.Before(backups[j].mod) })

	excess := len(backups) - r.config.MaxBackups
	for i := 0; i < excess; i++ {
		os.Remove(backups[i].path)
	}

	cutoff := time.Now().AddDate(0, 0, -r.config.MaxAge)
	for _, b := range backups {
		if b.mod.Before(cutoff) {
			os.Remove(b.path)
		}
	}
}

func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// GetLogFiles returns the active file followed by its rotated backups.
func (r *FileRotator) GetLogFiles() ([]string, error) {
	files := []string{r.config.FilePath}
	matches, err := filepath.Glob(r.backupGlob())
	if err != nil {
		return files, err
	}
	return append(files, matches...), nil
}

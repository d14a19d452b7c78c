// Package archive writes the selected files into a single dated archive, storing
// every entry under its full original path.
package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulschiretz/pgl-cloudbackup/pkg/plog"
)

// TempFilePattern is the os.CreateTemp pattern of in-flight archives.
const TempFilePattern = "pgl-cloudbackup-*.tmp"

// Skip reasons.
const (
	ReasonDuplicate  = "already archived"
	ReasonUnreadable = "unreadable"
	ReasonChanged    = "changed during backup"
	ReasonNotRegular = "not a regular file"
)

// Skip records an entry left out of the archive.
type Skip struct {
	Path   string
	Reason string
	Err    error
}

// Summary describes a finished archive.
type Summary struct {
	Path         string
	Files        int
	BytesRead    int64
	BytesWritten int64
	Skipped      []Skip
}

// Writer creates archives in one format.
type Writer struct {
	format     Format
	bufferSize int
	metrics    Metrics
}

// NewWriter returns a Writer. bufferSizeKB sizes both the output buffer and the copy buffer.
func NewWriter(format Format, bufferSizeKB int, metrics Metrics) *Writer {
	if bufferSizeKB <= 0 {
		bufferSizeKB = 256
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Writer{format: format, bufferSize: bufferSizeKB * 1024, metrics: metrics}
}

// Format returns the container format of this writer.
func (w *Writer) Format() Format { return w.format }

// countingWriter wraps an io.Writer and counts the bytes that reach the file.
type countingWriter struct {
	w       io.Writer
	n       int64
	metrics Metrics
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.n += int64(n)
		cw.metrics.AddBytesWritten(int64(n))
	}
	return n, err
}

// writeRun holds the per-call state of Write.
type writeRun struct {
	ctx     context.Context
	c       container
	buf     []byte
	metrics Metrics
	// seen is keyed by absolute path and lives for a single Write call.
	seen    map[string]struct{}
	summary Summary
}

// Write archives entries into dest. Regular files are added directly; directories
// are walked and every regular file below them is added. Entries that cannot be read,
// or were already added during this call, are skipped and reported in the summary.
// Exclusions are not re-applied here.
func (w *Writer) Write(ctx context.Context, dest string, entries []string) (summary Summary, retErr error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), TempFilePattern)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()

	// Ensure cleanup on error
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	cw := &countingWriter{w: tmp, metrics: w.metrics}
	bufWriter := bufio.NewWriterSize(cw, w.bufferSize)
	c, err := newContainer(w.format, bufWriter)
	if err != nil {
		return Summary{}, err
	}

	run := &writeRun{
		ctx:     ctx,
		c:       c,
		buf:     make([]byte, w.bufferSize),
		metrics: w.metrics,
		seen:    make(map[string]struct{}),
	}

	w.metrics.StartProgress("Archive progress", 30*time.Second)
	err = run.addEntries(entries)
	w.metrics.StopProgress()
	if err != nil {
		c.close()
		return Summary{}, err
	}

	if err := c.close(); err != nil {
		return Summary{}, err
	}
	if err := bufWriter.Flush(); err != nil {
		return Summary{}, fmt.Errorf("buffer flush failed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Summary{}, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return Summary{}, fmt.Errorf("failed to rename temp archive to final path: %w", err)
	}

	run.summary.Path = dest
	run.summary.BytesWritten = cw.n
	return run.summary, nil
}

func (r *writeRun) addEntries(entries []string) error {
	for _, entry := range entries {
		if err := r.ctx.Err(); err != nil {
			return err
		}
		info, err := os.Lstat(entry)
		if err != nil {
			r.skip(entry, ReasonUnreadable, err)
			continue
		}
		switch {
		case info.Mode().IsRegular():
			if err := r.addFile(entry, info); err != nil {
				return err
			}
		case info.IsDir():
			if err := r.addDir(entry); err != nil {
				return err
			}
		default:
			r.skip(entry, ReasonNotRegular, nil)
		}
	}
	return nil
}

// addDir walks root and adds every regular file. Unreadable subtrees are skipped;
// an unreadable root is an error.
func (r *writeRun) addDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to walk %s: %w", root, err)
			}
			r.skip(path, ReasonUnreadable, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			r.skip(path, ReasonNotRegular, nil)
			return nil
		}
		info, err := d.Info()
		if err != nil {
			r.skip(path, ReasonUnreadable, err)
			return nil
		}
		return r.addFile(path, info)
	})
}

// addFile appends one regular file. Only write errors on the archive itself are returned.
func (r *writeRun) addFile(path string, info os.FileInfo) error {
	if _, dup := r.seen[path]; dup {
		plog.Debug("Skipping already archived file", "path", path)
		r.metrics.AddDuplicates(1)
		r.summary.Skipped = append(r.summary.Skipped, Skip{Path: path, Reason: ReasonDuplicate})
		return nil
	}

	f, opened, err := secureFileOpen(path, info)
	if err != nil {
		reason := ReasonUnreadable
		if errors.Is(err, errFileChanged) {
			reason = ReasonChanged
		}
		r.skip(path, reason, err)
		return nil
	}
	defer f.Close()

	name := entryName(path)
	plog.Notice("ADD", "file", path)
	size := opened.Size()
	if err := r.c.add(name, opened, size, f, r.buf); err != nil {
		return err
	}

	r.seen[path] = struct{}{}
	r.summary.Files++
	r.summary.BytesRead += size
	r.metrics.AddFilesArchived(1)
	r.metrics.AddBytesRead(size)
	return nil
}

func (r *writeRun) skip(path, reason string, err error) {
	plog.Warn("[!] Skipping entry", "path", path, "reason", reason, "error", err)
	r.metrics.AddEntriesSkipped(1)
	r.summary.Skipped = append(r.summary.Skipped, Skip{Path: path, Reason: reason, Err: err})
}

var errFileChanged = errors.New("file changed between discovery and open")

// secureFileOpen opens path and verifies it is still the file described by expected.
// This prevents a file being swapped for a symlink after discovery.
func secureFileOpen(path string, expected os.FileInfo) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	openedInfo, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat opened file: %w", err)
	}
	if !os.SameFile(expected, openedInfo) || !openedInfo.Mode().IsRegular() {
		f.Close()
		return nil, nil, errFileChanged
	}
	return f, openedInfo, nil
}

// entryName converts an absolute path into the name stored in the archive:
// slash separated, without volume name or leading separator.
func entryName(absPath string) string {
	p := absPath[len(filepath.VolumeName(absPath)):]
	return strings.TrimLeft(filepath.ToSlash(p), "/")
}

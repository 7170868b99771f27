// Package logging sets up the coordinator's structured logger and a
// size-based rotating file writer for its output, so a long-lived
// unattended process does not fill a disk with one unbounded log
// file.
package logging

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger that writes structured, leveled output
// to w (typically a RotatingWriter) and, unless quiet is true, also to
// stdout in human-readable console form.
func New(w io.Writer, level string, quiet bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = w
	if !quiet {
		console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		out = zerolog.MultiLevelWriter(w, console)
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	return logger.Level(parseLevel(level))
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// DefaultMaxSize is the log file size, in bytes, that triggers
// rotation.
const DefaultMaxSize = 10 * 1024 * 1024

// DefaultMaxFiles is the number of rotated log files retained
// alongside the active one.
const DefaultMaxFiles = 5

// RotatingWriter is a size-triggered rotating io.Writer: once the
// active file exceeds MaxSize, it is renamed aside (up to MaxFiles
// generations, oldest discarded) and a fresh file opened in its place.
// Write and rotate are safe for concurrent use: the heartbeat ticker,
// the console drainer, and the main goroutine all log through the same
// writer independently.
type RotatingWriter struct {
	path     string
	maxSize  int64
	maxFiles int
	compress bool

	mu   sync.Mutex
	file *os.File
	size int64
}

// Option configures a RotatingWriter.
type Option func(*RotatingWriter)

// WithMaxSize overrides DefaultMaxSize.
func WithMaxSize(size int64) Option {
	return func(w *RotatingWriter) { w.maxSize = size }
}

// WithMaxFiles overrides DefaultMaxFiles.
func WithMaxFiles(count int) Option {
	return func(w *RotatingWriter) { w.maxFiles = count }
}

// WithCompression gzip-compresses each rotated generation as it is
// shifted out of the active slot.
func WithCompression(compress bool) Option {
	return func(w *RotatingWriter) { w.compress = compress }
}

// NewRotatingWriter opens (or creates) the log file at path.
func NewRotatingWriter(path string, opts ...Option) (*RotatingWriter, error) {
	w := &RotatingWriter{
		path:     path,
		maxSize:  DefaultMaxSize,
		maxFiles: DefaultMaxFiles,
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.openFile(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotatingWriter) openFile() error {
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", w.path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("logging: stat %s: %w", w.path, err)
	}
	w.file = f
	w.size = fi.Size()
	return nil
}

// Write implements io.Writer, rotating first if this write would push
// the file past maxSize.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize && w.size > 0 {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// rotate must be called with mu held.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("logging: close before rotate: %w", err)
	}

	for i := w.maxFiles - 1; i >= 1; i-- {
		src := w.rotatedPath(i)
		dst := w.rotatedPath(i + 1)
		for _, ext := range []string{"", ".gz"} {
			if _, err := os.Stat(src + ext); err == nil {
				if i+1 > w.maxFiles {
					_ = os.Remove(src + ext)
					continue
				}
				_ = os.Rename(src+ext, dst+ext)
			}
		}
	}

	rotated := w.rotatedPath(1)
	if err := os.Rename(w.path, rotated); err != nil {
		return fmt.Errorf("logging: rotate rename: %w", err)
	}
	if w.compress {
		go compressFile(rotated)
	}
	return w.openFile()
}

func (w *RotatingWriter) rotatedPath(n int) string {
	return fmt.Sprintf("%s.%d", w.path, n)
}

// compressFile gzips path in place and removes the uncompressed
// original. Run asynchronously from rotate so a slow compression of a
// 10MB generation never blocks the writer that triggered it.
func compressFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	gzPath := path + ".gz"
	gzFile, err := os.Create(gzPath)
	if err != nil {
		return
	}
	defer func() { _ = gzFile.Close() }()

	gzWriter := gzip.NewWriter(gzFile)
	if _, err := gzWriter.Write(data); err != nil {
		_ = os.Remove(gzPath)
		return
	}
	if err := gzWriter.Close(); err != nil {
		_ = os.Remove(gzPath)
		return
	}
	_ = os.Remove(path)
}

// Close closes the active log file.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Size returns the current size of the active log file.
func (w *RotatingWriter) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

package log

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// FileLogger appends events to a capture file as a stream of CBOR items.
//
// With a size limit the file is rotated once it would grow past the
// limit: the current file is renamed to <path>.1, replacing any previous
// rotation, and a fresh file is started. Each file stays readable on its
// own because rotation only happens between items.
type FileLogger struct {
	path     string
	maxBytes int64

	mu      sync.Mutex
	file    *os.File
	size    int64
	buf     bytes.Buffer
	closed  bool
	dropped atomic.Uint64
}

// NewFileLogger opens path for appending without a size limit.
func NewFileLogger(path string) (*FileLogger, error) {
	return NewRotatingFileLogger(path, 0)
}

// NewRotatingFileLogger opens path for appending and rotates it when it
// would exceed maxBytes. maxBytes <= 0 disables rotation.
func NewRotatingFileLogger(path string, maxBytes int64) (*FileLogger, error) {
	l := &FileLogger{path: path, maxBytes: maxBytes}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	return nil
}

func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotate capture: %w", err)
	}
	return l.open()
}

// Log encodes and appends one event. A zero Timestamp is set to now.
// Events that cannot be written are counted in Dropped; capture never
// reports errors back into the session.
func (l *FileLogger) Log(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.buf.Reset()
	if err := NewEncoder(&l.buf).Encode(event); err != nil {
		l.dropped.Add(1)
		return
	}

	n := int64(l.buf.Len())
	if l.maxBytes > 0 && l.size > 0 && l.size+n > l.maxBytes {
		if err := l.rotate(); err != nil {
			// The old handle is gone; stop writing rather than lose track
			// of which file is current.
			l.closed = true
			l.dropped.Add(1)
			return
		}
	}

	written, err := l.file.Write(l.buf.Bytes())
	l.size += int64(written)
	if err != nil {
		l.dropped.Add(1)
	}
}

// Dropped returns the number of events that could not be written.
func (l *FileLogger) Dropped() uint64 {
	return l.dropped.Load()
}

// Path returns the path of the current capture file.
func (l *FileLogger) Path() string {
	return l.path
}

// Close closes the capture file. Later Log calls are ignored and further
// Close calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

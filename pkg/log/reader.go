package log

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects capture events. Zero-valued criteria match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// Method and CallID only match events that carry a Message.
	Method string
	CallID *uint64
}

// Match reports whether event satisfies every criterion of f.
func (f Filter) Match(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	}
	if f.Method == "" && f.CallID == nil {
		return true
	}
	if event.Message == nil {
		return false
	}
	if f.Method != "" && event.Message.Method != f.Method {
		return false
	}
	return f.CallID == nil || event.Message.CallID == *f.CallID
}

// ErrTruncated is returned when a capture ends in the middle of an event,
// as happens when the writer was killed.
var ErrTruncated = errors.New("capture truncated")

// Reader streams events out of a capture.
type Reader struct {
	closer  io.Closer
	decoder *cbor.Decoder
	filter  Filter
	read    int
}

// NewReader opens the capture at path. The path "-" reads stdin.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens the capture at path and yields only events that
// match filter. The path "-" reads stdin.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	if path == "-" {
		return NewStreamReader(os.Stdin, filter), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := NewStreamReader(f, filter)
	r.closer = f
	return r, nil
}

// NewStreamReader reads events from src. Close does not close src.
func NewStreamReader(src io.Reader, filter Filter) *Reader {
	return &Reader{decoder: NewDecoder(src), filter: filter}
}

// Next returns the next matching event, io.EOF at a clean end of the
// capture, or an error wrapping ErrTruncated when the last item is cut
// short.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return Event{}, io.EOF
			case errors.Is(err, io.ErrUnexpectedEOF):
				return Event{}, fmt.Errorf("event %d: %w", r.read+1, ErrTruncated)
			default:
				return Event{}, fmt.Errorf("event %d: %w", r.read+1, err)
			}
		}
		r.read++
		if r.filter.Match(event) {
			return event, nil
		}
	}
}

// All iterates over the remaining matching events. Iteration stops after
// the first error, which is yielded with a zero Event; a clean end yields
// no error.
func (r *Reader) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the underlying file, if the Reader opened one.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

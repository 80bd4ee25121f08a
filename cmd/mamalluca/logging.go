package main

import (
	"io"
	"log/slog"
	"strconv"

	"github.com/mamalluca/mamalluca-go/internal/config"
)

// verbosity counts -v flags: 0 warn, 1 info, 2 debug, 3 or more debug with
// source locations.
type verbosity int

func (v *verbosity) String() string {
	if v == nil {
		return "0"
	}
	return strconv.Itoa(int(*v))
}

// Set increments the count. An explicit -v=N sets it.
func (v *verbosity) Set(s string) error {
	if s == "true" {
		*v++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*v = verbosity(n)
	return nil
}

// IsBoolFlag lets -v appear without a value.
func (v *verbosity) IsBoolFlag() bool { return true }

// Level maps the count to a log level.
func (v verbosity) Level() slog.Level {
	switch {
	case v <= 0:
		return slog.LevelWarn
	case v == 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

// AddSource reports whether records carry source locations.
func (v verbosity) AddSource() bool {
	return v >= 3
}

func newLogger(w io.Writer, level string, addSource bool) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
	})), nil
}

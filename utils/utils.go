package utils

import (
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// AutoPath asks for an output path derived from the input video.
const AutoPath = "auto"

// NewLogger returns a human readable timestamped logger. Debug enables
// tracker lifecycle messages.
func NewLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// OutputPath resolves where an artifact of the run over input is written.
// An explicit path is returned as is; AutoPath places "<name>_<suffix><ext>"
// next to the input.
func OutputPath(input, requested, suffix, ext string) (string, error) {
	if requested != AutoPath {
		return requested, nil
	}
	if input == "" {
		return "", errors.New("cannot derive output path without an input file")
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+"_"+suffix+ext), nil
}

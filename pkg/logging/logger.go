// Copyright 2026 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Output is the destination of the worker logs.
type Output struct {
	io.Writer
	file *os.File
}

// OpenOutput returns an output that writes to stderr and, when
// logFile is not empty, appends to the given file as well.
func OpenOutput(logFile string) (*Output, error) {
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if logFile == "" {
		return &Output{Writer: console}, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open log file '%s'", logFile)
	}
	return &Output{
		Writer: NewMultiWriter(console, f),
		file:   f,
	}, nil
}

// Close the log file (if any).
func (o *Output) Close() error {
	if o.file == nil {
		return nil
	}
	return o.file.Close()
}

// NewLogger creates a logger with timestamps at the given level.
func NewLogger(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), errors.Wrapf(err, "invalid log level '%s'", level)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

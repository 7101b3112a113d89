// Copyright (c) 2024 The Board of Trustees of the Leland Stanford Junior University
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Logger bundles the two logging streams used throughout the client: a terse
// error stream for quick scanning, and a verbose debug stream that receives
// every message (including copies of all error messages) for triage.
type Logger struct {
	Debug *log.Logger
	Error *log.Logger
}

// New creates a Logger for the given portal mode. When a log directory is
// supplied, messages are additionally appended to log_<mode>_debug.txt and
// log_<mode>_error.txt within it (the directory is created if need be).
func New(mode, logDir string) (*Logger, error) {
	debugOut := io.Writer(os.Stdout)
	errorOut := io.Writer(os.Stderr)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("Couldn't create log directory %s: %s", logDir, err)
		}
		debugFile, err := openLogFile(logDir, mode, "debug")
		if err != nil {
			return nil, err
		}
		errorFile, err := openLogFile(logDir, mode, "error")
		if err != nil {
			return nil, err
		}
		debugOut = io.MultiWriter(os.Stdout, debugFile)
		errorOut = io.MultiWriter(os.Stderr, errorFile)
	}
	return &Logger{
		Debug: log.New(debugOut, "", log.LstdFlags),
		Error: log.New(errorOut, "", log.LstdFlags),
	}, nil
}

// Discard creates a Logger that swallows everything (used in tests).
func Discard() *Logger {
	return &Logger{
		Debug: log.New(io.Discard, "", 0),
		Error: log.New(io.Discard, "", 0),
	}
}

// Errorf logs a message to both the error and debug streams.
func (l *Logger) Errorf(format string, args ...any) {
	l.Error.Printf(format, args...)
	l.Debug.Printf(format, args...)
}

// Debugf logs a message to the debug stream only.
func (l *Logger) Debugf(format string, args ...any) {
	l.Debug.Printf(format, args...)
}

func openLogFile(logDir, mode, tag string) (*os.File, error) {
	name := filepath.Join(logDir, fmt.Sprintf("log_%s_%s.txt", mode, tag))
	return os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

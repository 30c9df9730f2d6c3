// Log file output
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig configures a size rotated log file.
type FileConfig struct {
	// Path is the active log file. Rotated files are kept next to it.
	Path string
	// MaxSizeMB is the size that triggers rotation. Default 10.
	MaxSizeMB int
	// MaxBackups is the number of rotated files to keep. Default 5.
	MaxBackups int
	// MaxAgeDays removes rotated files older than this. Zero keeps them.
	MaxAgeDays int
	Compress   bool
}

// NewFileWriter returns a rotating writer for cfg. The caller closes it.
func NewFileWriter(cfg FileConfig) (*lumberjack.Logger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("log file path is required")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 10
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, nil
}

// NewFileLogger creates an uncolored logger writing only to a rotating file.
func NewFileLogger(prefix string, cfg FileConfig) (*Logger, io.Closer, error) {
	w, err := NewFileWriter(cfg)
	if err != nil {
		return nil, nil, err
	}
	l := New(prefix)
	l.SetWriter(w)
	l.SetColorize(false)
	return l, w, nil
}

// MultiWriter writes to multiple writers simultaneously. The first failing
// writer stops the write.
type MultiWriter struct {
	writers []io.Writer
}

func NewMultiWriter(writers ...io.Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (mw *MultiWriter) Write(p []byte) (int, error) {
	for _, w := range mw.writers {
		if n, err := w.Write(p); err != nil {
			return n, err
		}
	}
	return len(p), nil
}

// TeeToFile redirects l to stderr and a rotating file. Colors are turned
// off because they would end up in the file.
func TeeToFile(l *Logger, cfg FileConfig) (io.Closer, error) {
	w, err := NewFileWriter(cfg)
	if err != nil {
		return nil, err
	}
	l.SetWriter(NewMultiWriter(os.Stderr, w))
	l.SetColorize(false)
	return w, nil
}

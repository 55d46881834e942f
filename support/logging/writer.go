// Copyright 2023 The pakarc Authors. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
)

// ToWriter returns a L that prints each entry to w, one line per entry,
// prefixed with its level. It suits command-line tools that want readable
// diagnostics without a logging framework.
func ToWriter(w io.Writer, debug bool) L {
	return &writerLogger{w: w, debug: debug}
}

type writerLogger struct {
	w     io.Writer
	debug bool
}

func (l *writerLogger) emit(level string, args ...interface{}) {
	fmt.Fprintf(l.w, "%s: %s\n", level, fmt.Sprint(args...))
}

func (l *writerLogger) emitf(level, format string, args ...interface{}) {
	fmt.Fprintf(l.w, "%s: %s\n", level, fmt.Sprintf(format, args...))
}

func (l *writerLogger) Error(args ...interface{}) { l.emit("error", args...) }
func (l *writerLogger) Warn(args ...interface{})  { l.emit("warning", args...) }
func (l *writerLogger) Info(args ...interface{})  { l.emit("info", args...) }

func (l *writerLogger) Debug(args ...interface{}) {
	if l.debug {
		l.emit("debug", args...)
	}
}

func (l *writerLogger) Errorf(format string, args ...interface{}) { l.emitf("error", format, args...) }
func (l *writerLogger) Warnf(format string, args ...interface{})  { l.emitf("warning", format, args...) }
func (l *writerLogger) Infof(format string, args ...interface{})  { l.emitf("info", format, args...) }

func (l *writerLogger) Debugf(format string, args ...interface{}) {
	if l.debug {
		l.emitf("debug", format, args...)
	}
}

// Package nlog - corelib logger, provides severity levels, timestamping, and
// optional file sinks
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package nlog

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const maxLineSize = 4 * 1024

var sevText = [...]string{"INFO", "WARNING", "ERROR"}

var (
	toStderr     = true
	alsoToStderr bool
	logDir       string
	logRole      string
	title        string

	mw    sync.Mutex
	files [2]*os.File // 0: info+, 1: error only
)

// Flush syncs and, when exit is true, closes the file sinks.
func Flush(exit ...bool) {
	ex := len(exit) > 0 && exit[0]
	mw.Lock()
	for i, f := range files {
		if f == nil {
			continue
		}
		f.Sync()
		if ex {
			f.Close()
			files[i] = nil
		}
	}
	mw.Unlock()
}

func sname() string {
	s := filepath.Base(os.Args[0])
	if logRole != "" {
		s += "-" + logRole
	}
	return s
}

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func log(sev severity, depth int, format string, args ...any) {
	var msg string
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
		if msg == "" || msg[len(msg)-1] != '\n' {
			msg += "\n"
		}
	}
	if len(msg) > maxLineSize {
		msg = msg[:maxLineSize-1] + "\n"
	}
	_, file, ln, ok := runtime.Caller(2 + depth)
	if !ok {
		file, ln = "???", 0
	}
	now := time.Now()
	line := fmt.Sprintf("%s %s %s:%d %s", sevText[sev][0:1], now.Format("15:04:05.000000"),
		filepath.Base(file), ln, msg)

	mw.Lock()
	defer mw.Unlock()
	if toStderr || alsoToStderr || logDir == "" {
		os.Stderr.WriteString(line)
		if toStderr || logDir == "" {
			return
		}
	}
	w := sink(sevInfo)
	if w != nil {
		w.WriteString(line)
	}
	if sev == sevErr {
		if w = sink(sevErr); w != nil {
			w.WriteString(line)
		}
	}
}

// must be called under mw lock
func sink(sev severity) *os.File {
	idx := 0
	name := InfoLogName()
	if sev == sevErr {
		idx, name = 1, ErrLogName()
	}
	if files[idx] != nil {
		return files[idx]
	}
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintln(os.Stderr, "nlog: cannot open log file:", err)
		return nil
	}
	if title != "" {
		fmt.Fprintln(f, title)
	}
	files[idx] = f
	return f
}

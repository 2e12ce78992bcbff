// Package inifile provides an INI parser/writer that preserves the textual
// order of sections, keys, comments, and blank lines across a
// load-edit-save round trip
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package inifile

import (
	"strings"

	"github.com/pkg/errors"
)

// The file is represented as an ordered list of line variants plus a
// secondary index from section name to its header and key lines. Only a flat
// hierarchy is supported; the comment delimiter is ';'.
type lineKind int

const (
	lineBlank lineKind = iota
	lineComment
	lineSection
	lineKey
)

type line struct {
	kind    lineKind
	comment string // lineComment: full text including the ';'
	section string // lineSection
	key     string // lineKey
	value   string // lineKey
}

func (ln *line) format() string {
	switch ln.kind {
	case lineBlank:
		return ""
	case lineComment:
		return ln.comment
	case lineSection:
		return "[" + ln.section + "]"
	default:
		return ln.key + "=" + ln.value
	}
}

// parseLine classifies one raw line; unnecessary whitespace in sections,
// keys, and values is removed, comments are kept verbatim.
func parseLine(raw string) (*line, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "":
		return &line{kind: lineBlank}, nil
	case strings.HasPrefix(s, ";"):
		return &line{kind: lineComment, comment: s}, nil
	case strings.HasPrefix(s, "["):
		if !strings.HasSuffix(s, "]") {
			return nil, errors.Errorf("malformed section line %q", raw)
		}
		name := strings.TrimSpace(s[1 : len(s)-1])
		if name == "" {
			return nil, errors.Errorf("empty section name in %q", raw)
		}
		return &line{kind: lineSection, section: name}, nil
	default:
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			return nil, errors.Errorf("malformed key line %q", raw)
		}
		key := strings.TrimSpace(s[:eq])
		if key == "" {
			return nil, errors.Errorf("empty key in %q", raw)
		}
		return &line{kind: lineKey, key: key, value: strings.TrimSpace(s[eq+1:])}, nil
	}
}

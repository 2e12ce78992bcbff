// Package inifile provides an INI parser/writer that preserves the textual
// order of sections, keys, comments, and blank lines across a
// load-edit-save round trip
/*
 * Copyright (c) 2024-2025, Duncan Crutchley. All rights reserved.
 */
package inifile

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type (
	// KeyValue is one key line of a section, in file order.
	KeyValue struct {
		Key   string
		Value string
	}

	// section index: header line plus key lines by name
	sectionDetails struct {
		header *line
		keys   map[string]*line
	}

	// IniFile holds a loaded INI file. Zero value is an empty file.
	IniFile struct {
		path     string
		lines    []*line
		sections map[string]*sectionDetails
		changed  bool
	}
)

func New() *IniFile {
	return &IniFile{sections: make(map[string]*sectionDetails)}
}

// Load creates an IniFile from a file path.
func Load(path string) (*IniFile, error) {
	f := New()
	if err := f.LoadFile(path); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFile replaces the in-memory state with the file's contents.
func (f *IniFile) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "load ini")
	}
	if err := f.LoadString(string(data)); err != nil {
		return errors.Wrapf(err, "parse %q", path)
	}
	f.path = path
	return nil
}

func (f *IniFile) LoadString(data string) error {
	f.lines = f.lines[:0]
	f.sections = make(map[string]*sectionDetails)
	f.changed = false

	var current *sectionDetails
	raws := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")
	// a trailing newline yields one phantom empty line; drop it
	if n := len(raws); n > 0 && raws[n-1] == "" {
		raws = raws[:n-1]
	}
	for _, raw := range raws {
		ln, err := parseLine(raw)
		if err != nil {
			return err
		}
		switch ln.kind {
		case lineSection:
			if _, dup := f.sections[ln.section]; dup {
				return errors.Errorf("duplicate section [%s]", ln.section)
			}
			current = &sectionDetails{header: ln, keys: make(map[string]*line)}
			f.sections[ln.section] = current
		case lineKey:
			if current == nil {
				return errors.Errorf("key %q outside any section", ln.key)
			}
			if _, dup := current.keys[ln.key]; dup {
				return errors.Errorf("duplicate key %q in section [%s]", ln.key, current.header.section)
			}
			current.keys[ln.key] = ln
		}
		f.lines = append(f.lines, ln)
	}
	return nil
}

// String serializes the file; untouched content reproduces byte-for-byte in
// its original order.
func (f *IniFile) String() string {
	var sb strings.Builder
	for _, ln := range f.lines {
		sb.WriteString(ln.format())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// UpdateFile writes the settings back to disk - to the loaded path, or to an
// override path when given.
func (f *IniFile) UpdateFile(overridePath ...string) error {
	path := f.path
	if len(overridePath) > 0 && overridePath[0] != "" {
		path = overridePath[0]
	}
	if path == "" {
		return errors.New("no file path to update")
	}
	if err := os.WriteFile(path, []byte(f.String()), 0o644); err != nil {
		return errors.Wrap(err, "update ini")
	}
	f.changed = false
	return nil
}

// Changed reports whether there are unsaved modifications.
func (f *IniFile) Changed() bool { return f.changed }

// GetSections lists section names in file order.
func (f *IniFile) GetSections() []string {
	out := make([]string, 0, len(f.sections))
	for _, ln := range f.lines {
		if ln.kind == lineSection {
			out = append(out, ln.section)
		}
	}
	return out
}

// GetSection lists a section's key-value pairs in file order.
func (f *IniFile) GetSection(section string) []KeyValue {
	sd, ok := f.sections[section]
	if !ok {
		return nil
	}
	var out []KeyValue
	for i := f.index(sd.header) + 1; i < len(f.lines); i++ {
		ln := f.lines[i]
		if ln.kind == lineSection {
			break
		}
		if ln.kind == lineKey {
			out = append(out, KeyValue{ln.key, ln.value})
		}
	}
	return out
}

func (f *IniFile) SectionExists(section string) bool {
	_, ok := f.sections[section]
	return ok
}

func (f *IniFile) KeyExists(section, key string) bool {
	sd, ok := f.sections[section]
	if !ok {
		return false
	}
	_, ok = sd.keys[key]
	return ok
}

//
// typed getters
//

func (f *IniFile) ReadString(section, key, defaultValue string) string {
	if sd, ok := f.sections[section]; ok {
		if ln, ok := sd.keys[key]; ok {
			return ln.value
		}
	}
	return defaultValue
}

func (f *IniFile) ReadBool(section, key string, defaultValue bool) bool {
	switch strings.ToLower(f.ReadString(section, key, "")) {
	case "1", "true":
		return true
	case "0", "false":
		return false
	}
	return defaultValue
}

func (f *IniFile) ReadInt32(section, key string, defaultValue int32) int32 {
	if v, err := strconv.ParseInt(f.ReadString(section, key, ""), 10, 32); err == nil {
		return int32(v)
	}
	return defaultValue
}

func (f *IniFile) ReadInt64(section, key string, defaultValue int64) int64 {
	if v, err := strconv.ParseInt(f.ReadString(section, key, ""), 10, 64); err == nil {
		return v
	}
	return defaultValue
}

func (f *IniFile) ReadDouble(section, key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(f.ReadString(section, key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

//
// typed setters
//

func (f *IniFile) WriteString(section, key, value string) {
	if f.sections == nil {
		f.sections = make(map[string]*sectionDetails)
	}
	sd, ok := f.sections[section]
	if !ok {
		// new sections are separated from preceding content by a blank line
		if len(f.lines) > 0 {
			f.lines = append(f.lines, &line{kind: lineBlank})
		}
		header := &line{kind: lineSection, section: section}
		f.lines = append(f.lines, header)
		sd = &sectionDetails{header: header, keys: make(map[string]*line)}
		f.sections[section] = sd
	}
	if ln, ok := sd.keys[key]; ok {
		if ln.value != value {
			ln.value = value
			f.changed = true
		}
		return
	}
	ln := &line{kind: lineKey, key: key, value: value}
	f.insertAfterSection(sd, ln)
	sd.keys[key] = ln
	f.changed = true
}

func (f *IniFile) WriteBool(section, key string, value bool) {
	if value {
		f.WriteString(section, key, "1")
	} else {
		f.WriteString(section, key, "0")
	}
}

func (f *IniFile) WriteInt32(section, key string, value int32) {
	f.WriteString(section, key, strconv.FormatInt(int64(value), 10))
}

func (f *IniFile) WriteInt64(section, key string, value int64) {
	f.WriteString(section, key, strconv.FormatInt(value, 10))
}

func (f *IniFile) WriteDouble(section, key string, value float64) {
	f.WriteString(section, key, strconv.FormatFloat(value, 'g', -1, 64))
}

//
// erase
//

// EraseSection removes a section's header and every line through the next
// section header (its keys, comments, and blanks belong to it).
func (f *IniFile) EraseSection(section string) {
	sd, ok := f.sections[section]
	if !ok {
		return
	}
	start := f.index(sd.header)
	end := start + 1
	for end < len(f.lines) && f.lines[end].kind != lineSection {
		end++
	}
	f.lines = append(f.lines[:start], f.lines[end:]...)
	delete(f.sections, section)
	f.changed = true
}

func (f *IniFile) EraseSections() {
	for name := range f.sections {
		f.EraseSection(name)
	}
}

func (f *IniFile) EraseKey(section, key string) {
	sd, ok := f.sections[section]
	if !ok {
		return
	}
	ln, ok := sd.keys[key]
	if !ok {
		return
	}
	idx := f.index(ln)
	f.lines = append(f.lines[:idx], f.lines[idx+1:]...)
	delete(sd.keys, key)
	f.changed = true
}

func (f *IniFile) EraseKeys(section string) {
	sd, ok := f.sections[section]
	if !ok {
		return
	}
	for key := range sd.keys {
		f.EraseKey(section, key)
	}
}

//
// internals
//

func (f *IniFile) index(target *line) int {
	for i, ln := range f.lines {
		if ln == target {
			return i
		}
	}
	return -1
}

// insertAfterSection places a new key line after the section's last key (or
// directly after the header when the section is empty), keeping trailing
// comments and blank lines where they were.
func (f *IniFile) insertAfterSection(sd *sectionDetails, ln *line) {
	pos := f.index(sd.header)
	last := pos
	for i := pos + 1; i < len(f.lines); i++ {
		if f.lines[i].kind == lineSection {
			break
		}
		if f.lines[i].kind == lineKey {
			last = i
		}
	}
	f.lines = append(f.lines, nil)
	copy(f.lines[last+2:], f.lines[last+1:])
	f.lines[last+1] = ln
}

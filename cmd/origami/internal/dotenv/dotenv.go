// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dotenv reads and writes compose-style .env files without losing
// comments, ordering or lines it does not understand.
package dotenv

import (
	"bytes"
	"errors"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Document is a parsed .env file.
//
// Assignments can be read and replaced; every other line (comments, blank
// lines, malformed input) is kept byte-for-byte. Rendering an unmodified
// Document returns the original bytes, CRLF line endings included.
type Document struct {
	lines        []line
	trailingNewl bool

	// crlf is the line ending given to appended assignments.
	crlf bool
}

type line struct {
	raw    string
	key    string
	value  string
	export bool

	// cr is set when the line ended with \r\n.
	cr bool
}

func (l line) isAssignment() bool { return l.key != "" }

// Parse reads a Document. It never fails on malformed lines and has no
// line length limit.
func Parse(data []byte) *Document {
	doc := &Document{trailingNewl: len(data) == 0 || bytes.HasSuffix(data, []byte("\n"))}
	if len(data) == 0 {
		return doc
	}

	text := string(data)
	if doc.trailingNewl {
		text = text[:len(text)-1]
	}
	for _, raw := range strings.Split(text, "\n") {
		content, cr := strings.CutSuffix(raw, "\r")
		l := parseLine(content)
		l.cr = cr
		doc.lines = append(doc.lines, l)
	}
	doc.crlf = doc.lines[0].cr
	return doc
}

// ReadFile parses the file at path. A missing file yields an empty Document.
func ReadFile(fsys afero.Fs, path string) (*Document, error) {
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return Parse(nil), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data), nil
}

// WriteFile renders doc to path through a temp file and rename.
func WriteFile(fsys afero.Fs, path string, doc *Document) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := afero.TempFile(fsys, dir, ".env.*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(doc.Bytes()); err != nil {
		tmp.Close()
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	return nil
}

// Get returns the value of key and whether it is assigned.
func (d *Document) Get(key string) (string, bool) {
	for i := len(d.lines) - 1; i >= 0; i-- {
		if d.lines[i].key == key {
			return d.lines[i].value, true
		}
	}
	return "", false
}

// Set assigns key. An existing assignment is rewritten in place, otherwise
// the assignment is appended.
func (d *Document) Set(key, value string) {
	for i := len(d.lines) - 1; i >= 0; i-- {
		l := &d.lines[i]
		if l.key != key {
			continue
		}
		if l.value == value {
			return
		}
		l.value = value
		l.raw = formatAssignment(key, value, l.export)
		return
	}
	d.lines = append(d.lines, line{key: key, value: value, raw: formatAssignment(key, value, false), cr: d.crlf})
}

// Keys returns the assigned keys in file order, without duplicates.
func (d *Document) Keys() []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, l := range d.lines {
		if !l.isAssignment() {
			continue
		}
		if _, ok := seen[l.key]; ok {
			continue
		}
		seen[l.key] = struct{}{}
		keys = append(keys, l.key)
	}
	return keys
}

// Map returns the assignments. The last assignment of a key wins.
func (d *Document) Map() map[string]string {
	m := make(map[string]string)
	for _, l := range d.lines {
		if l.isAssignment() {
			m[l.key] = l.value
		}
	}
	return m
}

// SeedMissing appends every assignment of defaults whose key is absent
// from d and returns the keys it added.
func (d *Document) SeedMissing(defaults *Document) []string {
	var added []string
	for _, key := range defaults.Keys() {
		if _, ok := d.Get(key); ok {
			continue
		}
		value, _ := defaults.Get(key)
		d.Set(key, value)
		added = append(added, key)
	}
	return added
}

// Bytes renders the document.
func (d *Document) Bytes() []byte {
	var b bytes.Buffer
	for i, l := range d.lines {
		b.WriteString(l.raw)
		if l.cr {
			b.WriteByte('\r')
		}
		if i < len(d.lines)-1 || d.trailingNewl {
			b.WriteByte('\n')
		}
	}
	return b.Bytes()
}

// Clone returns an independent copy.
func (d *Document) Clone() *Document {
	c := &Document{trailingNewl: d.trailingNewl, crlf: d.crlf, lines: make([]line, len(d.lines))}
	copy(c.lines, d.lines)
	return c
}

// =============================================================================
// Line grammar
// =============================================================================

// parseLine recognises [export ]KEY=VALUE where VALUE is bare, single
// quoted, or double quoted. Anything else is kept as an opaque line.
func parseLine(raw string) line {
	l := line{raw: raw}
	s := strings.TrimSpace(raw)
	if s == "" || strings.HasPrefix(s, "#") {
		return l
	}
	if rest, ok := strings.CutPrefix(s, "export "); ok {
		l.export = true
		s = strings.TrimSpace(rest)
	}
	key, value, ok := strings.Cut(s, "=")
	if !ok {
		return line{raw: raw}
	}
	key = strings.TrimSpace(key)
	if !validKey(key) {
		return line{raw: raw}
	}
	l.key = key
	l.value = parseValue(strings.TrimSpace(value))
	return l
}

func parseValue(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			if unq, err := strconv.Unquote(v); err == nil {
				return unq
			}
			return v[1 : len(v)-1]
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1]
		}
	}
	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}
	return v
}

func formatAssignment(key, value string, export bool) string {
	prefix := ""
	if export {
		prefix = "export "
	}
	switch {
	case strings.Contains(value, "$") && !strings.ContainsAny(value, "'\n"):
		// compose interpolates inside double quotes but not single quotes
		value = "'" + value + "'"
	case needsQuoting(value):
		value = strconv.Quote(value)
	}
	return prefix + key + "=" + value
}

func needsQuoting(v string) bool {
	return strings.ContainsAny(v, " \t\"'#\\$\n")
}

func validKey(k string) bool {
	if k == "" {
		return false
	}
	for i, r := range k {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9' && i > 0:
		case r == '.' && i > 0:
		default:
			return false
		}
	}
	return true
}

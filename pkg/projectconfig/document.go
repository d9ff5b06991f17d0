// SPDX-License-Identifier: AGPL-3.0-or-later

/*
cfgsync - propagates layered project configuration across an organization's repositories.
It classifies repositories, resolves their template chains, reports drift, and opens pull requests that correct it.

Copyright (C) 2025  Raibid Labs

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

// Package projectconfig models the per-repository configuration document
// (conventionally .claude/project.json) and the templates it extends.
package projectconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Well-known top-level keys.
const (
	KeyExtends     = "extends"
	KeyName        = "name"
	KeyDescription = "description"
	KeyType        = "type"
	KeyMCPServers  = "mcpServers"
	KeyProject     = "project"
	KeySchema      = "$schema"
	KeyVersion     = "version"
	KeyLanguage    = "language"
)

// DefaultPath is where a repository keeps its configuration document.
const DefaultPath = ".claude/project.json"

// ErrNotObject is returned when a document parses as JSON but is not an object.
var ErrNotObject = errors.New("configuration document is not a JSON object")

// Document is a JSON object whose top-level key order is preserved.
// Values are kept as raw JSON so untouched keys round-trip verbatim.
type Document struct {
	order  []string
	fields map[string]json.RawMessage
}

// New returns an empty document.
func New() *Document {
	return &Document{fields: make(map[string]json.RawMessage)}
}

// Parse decodes a JSON object, remembering the order of its top-level keys.
// A repeated key keeps its first position and its last value.
func Parse(data []byte) (*Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	doc := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing configuration key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("parsing configuration: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parsing value of %q: %w", key, err)
		}
		if _, seen := doc.fields[key]; !seen {
			doc.order = append(doc.order, key)
		}
		doc.fields[key] = raw
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing configuration: trailing data after object")
	}
	return doc, nil
}

// Keys returns the top-level keys in document order.
func (d *Document) Keys() []string {
	out := make([]string, len(d.order))
	copy(out, d.order)
	return out
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	_, ok := d.fields[key]
	return ok
}

// Raw returns the raw JSON value stored under key.
func (d *Document) Raw(key string) (json.RawMessage, bool) {
	v, ok := d.fields[key]
	return v, ok
}

// String returns the value of key when it is a JSON string.
func (d *Document) String(key string) (string, bool) {
	raw, ok := d.fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// Set stores v under key. New keys are appended; existing keys keep their position.
func (d *Document) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %q: %w", key, err)
	}
	d.SetRaw(key, raw)
	return nil
}

// SetRaw stores an already encoded JSON value under key.
func (d *Document) SetRaw(key string, raw json.RawMessage) {
	if _, ok := d.fields[key]; !ok {
		d.order = append(d.order, key)
	}
	d.fields[key] = raw
}

// Delete removes key from the document.
func (d *Document) Delete(key string) {
	if _, ok := d.fields[key]; !ok {
		return
	}
	delete(d.fields, key)
	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := New()
	for _, k := range d.order {
		raw := make(json.RawMessage, len(d.fields[k]))
		copy(raw, d.fields[k])
		out.order = append(out.order, k)
		out.fields[k] = raw
	}
	return out
}

// Values decodes the document into a generic map. Numbers decode as json.Number.
func (d *Document) Values() (map[string]any, error) {
	out := make(map[string]any, len(d.fields))
	for _, k := range d.order {
		dec := json.NewDecoder(bytes.NewReader(d.fields[k]))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("decoding %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

// Marshal renders the document with two-space indentation, keys in document
// order, and a trailing newline.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, k := range d.order {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteString(": ")
		if err := json.Indent(&buf, d.fields[k], "  ", "  "); err != nil {
			return nil, fmt.Errorf("formatting %q: %w", k, err)
		}
	}
	if len(d.order) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Extends returns the document's extends reference, or "" when absent or not a string.
func (d *Document) Extends() string {
	s, _ := d.String(KeyExtends)
	return s
}

// ProjectName returns the top-level name, falling back to project.name.
func (d *Document) ProjectName() string {
	return d.stringOrNested(KeyName, KeyProject, "name")
}

// ProjectType returns the top-level type, falling back to project.type.
func (d *Document) ProjectType() string {
	return d.stringOrNested(KeyType, KeyProject, "type")
}

// Description returns the top-level description.
func (d *Document) Description() string {
	s, _ := d.String(KeyDescription)
	return s
}

func (d *Document) stringOrNested(key, parent, child string) string {
	if s, ok := d.String(key); ok && s != "" {
		return s
	}
	raw, ok := d.fields[parent]
	if !ok {
		return ""
	}
	var nested map[string]json.RawMessage
	if err := json.Unmarshal(raw, &nested); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(nested[child], &s); err != nil {
		return ""
	}
	return s
}

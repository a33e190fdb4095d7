// Package document turns note files into structured records.
package document

import (
	"time"
)

// Document is a parsed note. Path is the unique key across every store.
type Document struct {
	Path    string
	RelPath string
	Title   string
	Folder  string
	Body    string

	// Links are forward link targets in order of first appearance.
	// Alias forms are resolved to their target.
	Links []string
	// Aliases maps display text to target for [[target|display]] links.
	Aliases map[string]string
	// Tags is the sorted, de-duplicated union of inline and front-matter tags.
	Tags []string

	FrontMatter map[string]any
	Headings    []Heading

	ModTime time.Time
	Size    int64
}

// Heading is a markdown heading.
type Heading struct {
	Level int
	Text  string
}

// Package vault decides which files under a vault root are notes.
package vault

import (
	"path/filepath"
	"slices"
	"strings"
)

// HiddenPattern in an exclude list excludes any path with a segment
// starting with ".". Every other entry is a plain substring.
const HiddenPattern = ".*"

// Rules holds the eligibility rules for one vault.
type Rules struct {
	root       string
	extensions []string
	exclude    []string
}

// NewRules builds rules for root. Extensions are matched case-insensitively
// and default to ".md".
func NewRules(root string, extensions, exclude []string) *Rules {
	if len(extensions) == 0 {
		extensions = []string{".md"}
	}
	exts := make([]string, 0, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return &Rules{
		root:       filepath.Clean(root),
		extensions: exts,
		exclude:    slices.Clone(exclude),
	}
}

// Root returns the vault root.
func (r *Rules) Root() string { return r.root }

// Rel returns path relative to the vault root using forward slashes.
// Paths outside the root are returned unchanged.
func (r *Rules) Rel(path string) string {
	rel, err := filepath.Rel(r.root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// Excluded reports whether path (absolute or vault-relative) matches an
// exclude rule.
func (r *Rules) Excluded(path string) bool {
	rel := r.Rel(path)
	name := filepath.Base(rel)
	for _, pattern := range r.exclude {
		if pattern == HiddenPattern {
			for _, part := range strings.Split(rel, "/") {
				if strings.HasPrefix(part, ".") && part != "." {
					return true
				}
			}
			continue
		}
		if pattern == "" {
			continue
		}
		if strings.Contains(rel, pattern) || strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

// HasNoteExtension reports whether path carries one of the note extensions.
func (r *Rules) HasNoteExtension(path string) bool {
	return slices.Contains(r.extensions, strings.ToLower(filepath.Ext(path)))
}

// Eligible reports whether path is a note that should be indexed.
func (r *Rules) Eligible(path string) bool {
	return r.HasNoteExtension(path) && !r.Excluded(path)
}

// SkipDir reports whether a directory can be pruned from a walk.
// Only hidden directories are pruned: substring rules may still match
// deeper paths differently, so those are checked per file.
func (r *Rules) SkipDir(path string) bool {
	if filepath.Clean(path) == r.root {
		return false
	}
	if !slices.Contains(r.exclude, HiddenPattern) {
		return false
	}
	return strings.HasPrefix(filepath.Base(path), ".")
}

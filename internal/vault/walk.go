package vault

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
)

// Note is an eligible file found by Walk.
type Note struct {
	Path    string // absolute
	RelPath string
	Info    fs.FileInfo
}

// Walk enumerates the eligible notes under the vault root, sorted by path.
// Unreadable entries are logged and skipped.
func Walk(ctx context.Context, r *Rules) ([]Note, error) {
	var notes []Note

	err := filepath.WalkDir(r.root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == r.root {
				return err
			}
			slog.Warn("failed to read vault entry", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if r.SkipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !r.Eligible(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("failed to stat note", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		notes = append(notes, Note{Path: path, RelPath: r.Rel(path), Info: info})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault %s: %w", r.root, err)
	}

	slices.SortFunc(notes, func(a, b Note) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return notes, nil
}

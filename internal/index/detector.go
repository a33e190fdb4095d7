package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"slices"
	"strconv"

	"github.com/Aman-CERP/notemesh/internal/vault"
)

// ChangeSet is the difference between the vault and the ledger.
// Each list is sorted.
type ChangeSet struct {
	New      []string `json:"new"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// Empty reports whether nothing changed.
func (c ChangeSet) Empty() bool {
	return len(c.New) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Total returns the number of changed paths.
func (c ChangeSet) Total() int {
	return len(c.New) + len(c.Modified) + len(c.Deleted)
}

// Fingerprint is a cheap change marker derived from modification time and
// size. Two different contents with equal mtime and size collide.
func Fingerprint(info fs.FileInfo) string {
	raw := strconv.FormatInt(info.ModTime().UnixNano(), 10) + "_" + strconv.FormatInt(info.Size(), 10)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ScanResult is a ChangeSet plus the fingerprint of every eligible note.
type ScanResult struct {
	Changes ChangeSet
	Current map[string]string
}

// ChangeDetector diffs the vault against known fingerprints.
// Scan has no side effects.
type ChangeDetector struct {
	rules *vault.Rules
}

// NewChangeDetector creates a detector for the vault described by rules.
func NewChangeDetector(rules *vault.Rules) *ChangeDetector {
	return &ChangeDetector{rules: rules}
}

// Scan walks the vault and classifies paths against known, a path to
// fingerprint map such as Ledger.Snapshot returns.
func (d *ChangeDetector) Scan(ctx context.Context, known map[string]string) (*ScanResult, error) {
	notes, err := vault.Walk(ctx, d.rules)
	if err != nil {
		return nil, fmt.Errorf("scan vault: %w", err)
	}

	res := &ScanResult{Current: make(map[string]string, len(notes))}
	for _, n := range notes {
		fp := Fingerprint(n.Info)
		res.Current[n.Path] = fp

		prev, ok := known[n.Path]
		switch {
		case !ok:
			res.Changes.New = append(res.Changes.New, n.Path)
		case prev != fp:
			res.Changes.Modified = append(res.Changes.Modified, n.Path)
		}
	}
	for p := range known {
		if _, ok := res.Current[p]; !ok {
			res.Changes.Deleted = append(res.Changes.Deleted, p)
		}
	}
	slices.Sort(res.Changes.Deleted)
	return res, nil
}

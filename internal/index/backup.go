package index

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	nerrors "github.com/Aman-CERP/notemesh/internal/errors"
	"github.com/Aman-CERP/notemesh/internal/fsutil"
)

const (
	// BackupDirName is the backup root inside the data directory.
	BackupDirName = "backup"

	backupTimeLayout = "20060102_150405"
)

// Backup describes one snapshot directory.
type Backup struct {
	Name  string    `json:"name"`
	Path  string    `json:"path"`
	Time  time.Time `json:"time"`
	Files []string  `json:"files"`
}

// BackupManager snapshots and restores the metadata files of one vault.
type BackupManager struct {
	root  string
	files []string // absolute paths of the files to protect
	now   func() time.Time
}

// NewBackupManager protects files under root/backup.
func NewBackupManager(dataDir string, files []string) *BackupManager {
	return &BackupManager{
		root:  filepath.Join(dataDir, BackupDirName),
		files: files,
		now:   time.Now,
	}
}

// Root returns the backup root directory.
func (m *BackupManager) Root() string { return m.root }

// Create copies every protected file that exists into a new timestamped
// directory and returns its path. Missing files are skipped.
func (m *BackupManager) Create() (string, error) {
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return "", nerrors.New(nerrors.ErrCodeBackupFailed, "failed to create backup root", err)
	}

	dir, err := m.reserveDir()
	if err != nil {
		return "", nerrors.New(nerrors.ErrCodeBackupFailed, "failed to create backup directory", err)
	}

	for _, src := range m.files {
		dst := filepath.Join(dir, filepath.Base(src))
		if err := fsutil.CopyFile(src, dst); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			_ = os.RemoveAll(dir)
			return "", nerrors.New(nerrors.ErrCodeBackupFailed, "failed to back up "+filepath.Base(src), err).
				WithDetail("path", src)
		}
	}

	slog.Debug("backup created", slog.String("dir", dir))
	return dir, nil
}

// reserveDir creates a unique directory named after the current second,
// appending _N when that name is taken.
func (m *BackupManager) reserveDir() (string, error) {
	base := m.now().Format(backupTimeLayout)
	for n := 0; ; n++ {
		name := base
		if n > 0 {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		dir := filepath.Join(m.root, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", err
		}
	}
}

// Restore makes every protected file byte-identical to its copy in dir.
// A file absent from the snapshot did not exist when it was taken and is
// removed.
func (m *BackupManager) Restore(dir string) error {
	var errs []error
	for _, dst := range m.files {
		src := filepath.Join(dir, filepath.Base(dst))
		data, err := os.ReadFile(src)
		switch {
		case errors.Is(err, os.ErrNotExist):
			if rmErr := os.Remove(dst); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				errs = append(errs, rmErr)
			}
		case err != nil:
			errs = append(errs, err)
		default:
			if err := fsutil.WriteFileAtomic(dst, data, 0o644); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nerrors.New(nerrors.ErrCodeRestoreFailed, "failed to restore metadata from "+filepath.Base(dir), err).
			WithSuggestion("copy the files from " + dir + " back into the data directory by hand")
	}
	slog.Info("metadata restored from backup", slog.String("dir", dir))
	return nil
}

// List returns the snapshots, newest first.
func (m *BackupManager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Backup{}, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]Backup, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		stamp, _, _ := splitBackupName(e.Name())
		t, err := time.ParseInLocation(backupTimeLayout, stamp, time.Local)
		if err != nil {
			continue
		}

		b := Backup{Name: e.Name(), Path: filepath.Join(m.root, e.Name()), Time: t, Files: []string{}}
		if files, err := os.ReadDir(b.Path); err == nil {
			for _, f := range files {
				b.Files = append(b.Files, f.Name())
			}
		}
		backups = append(backups, b)
	}

	slices.SortFunc(backups, func(a, b Backup) int { return compareBackupNames(b.Name, a.Name) })
	return backups, nil
}

// Prune keeps the newest keep snapshots and removes the rest.
func (m *BackupManager) Prune(keep int) ([]string, error) {
	if keep < 1 {
		keep = 1
	}
	backups, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(backups) <= keep {
		return nil, nil
	}

	var removed []string
	var errs []error
	for _, b := range backups[keep:] {
		if err := os.RemoveAll(b.Path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, b.Name)
	}
	if len(removed) > 0 {
		slog.Debug("old backups pruned", slog.Int("removed", len(removed)), slog.Int("kept", keep))
	}
	return removed, errors.Join(errs...)
}

// splitBackupName splits "20250102_150405_3" into stamp and sequence.
func splitBackupName(name string) (string, int, bool) {
	if len(name) < len(backupTimeLayout) {
		return name, 0, false
	}
	stamp, rest := name[:len(backupTimeLayout)], name[len(backupTimeLayout):]
	if rest == "" {
		return stamp, 0, true
	}
	n, err := strconv.Atoi(strings.TrimPrefix(rest, "_"))
	if err != nil || !strings.HasPrefix(rest, "_") {
		return stamp, 0, false
	}
	return stamp, n, true
}

// compareBackupNames orders by timestamp, then by numeric collision suffix.
func compareBackupNames(a, b string) int {
	sa, na, _ := splitBackupName(a)
	sb, nb, _ := splitBackupName(b)
	if c := strings.Compare(sa, sb); c != 0 {
		return c
	}
	return cmp.Compare(na, nb)
}

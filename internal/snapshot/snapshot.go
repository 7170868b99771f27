// Package snapshot manages zip-archived point-in-time copies of the
// game world: creation, listing, change detection, restore with a
// safety-rename rollback, and retention pruning.
package snapshot

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	prefix = "backup_"
	suffix = ".zip"

	// filenameLayout matches the original wrapper's on-disk naming
	// convention so existing backup directories stay readable across
	// the rewrite.
	filenameLayout = "2006-01-02_15-04-05"
)

// Info describes one snapshot file on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Name returns the snapshot's base filename.
func (i Info) Name() string { return filepath.Base(i.Path) }

// AgeDays returns how many days old the snapshot is.
func (i Info) AgeDays() float64 {
	return time.Since(i.Timestamp).Hours() / 24
}

func (i Info) String() string {
	return fmt.Sprintf("%s (%s, %.1f days old)", i.Name(), humanize.Bytes(uint64(i.Size)), i.AgeDays())
}

// Manager creates, lists, restores, and prunes snapshots of WorldDir
// into BackupDir.
type Manager struct {
	BackupDir   string
	WorldDir    string
	AutoPrune   bool
	KeepMinimum int
	KeepDays    int
}

// New constructs a Manager.
func New(backupDir, worldDir string, autoPrune bool, keepMinimum, keepDays int) *Manager {
	return &Manager{
		BackupDir:   backupDir,
		WorldDir:    worldDir,
		AutoPrune:   autoPrune,
		KeepMinimum: keepMinimum,
		KeepDays:    keepDays,
	}
}

func parseFilename(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, suffix) {
		return time.Time{}, false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, prefix), suffix)
	t, err := time.ParseInLocation(filenameLayout, ts, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// List returns all valid snapshots in BackupDir, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.BackupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: list %s: %w", m.BackupDir, err)
	}

	var infos []Info
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ts, ok := parseFilename(e.Name())
		if !ok {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			Path:      filepath.Join(m.BackupDir, e.Name()),
			Timestamp: ts,
			Size:      fi.Size(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// Latest returns the newest snapshot, or nil if none exist.
func (m *Manager) Latest() (*Info, error) {
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, nil
	}
	return &infos[0], nil
}

// WorldChangedSinceBackup reports whether any file under WorldDir has
// a modification time newer than the latest snapshot's filename
// timestamp. No prior snapshot reports true, the conservative "back it
// up" default; a missing world directory with a prior snapshot reports
// false, since there is nothing newer to back up.
func (m *Manager) WorldChangedSinceBackup() (bool, error) {
	latest, err := m.Latest()
	if err != nil {
		return false, err
	}
	if latest == nil {
		return true, nil
	}
	if _, err := os.Stat(m.WorldDir); os.IsNotExist(err) {
		return false, nil
	}

	changed := false
	err = filepath.Walk(m.WorldDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries, matching original's best-effort scan
		}
		if !fi.IsDir() && fi.ModTime().After(latest.Timestamp) {
			changed = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("snapshot: walk %s: %w", m.WorldDir, err)
	}
	return changed, nil
}

// Create zips WorldDir into a new timestamped archive under BackupDir.
// The archive stores paths relative to WorldDir's parent, so restoring
// recreates the world directory at its original name.
func (m *Manager) Create() (*Info, error) {
	if _, err := os.Stat(m.WorldDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("snapshot: world folder does not exist: %s", m.WorldDir)
	}
	if err := os.MkdirAll(m.BackupDir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create backup dir: %w", err)
	}

	now := time.Now()
	name := prefix + now.Format(filenameLayout) + suffix
	path := filepath.Join(m.BackupDir, name)

	if err := m.writeZip(path); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: stat new archive: %w", err)
	}
	return &Info{Path: path, Timestamp: now, Size: fi.Size()}, nil
}

func (m *Manager) writeZip(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("snapshot: create archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	zw := zip.NewWriter(f)
	defer func() { _ = zw.Close() }()

	worldParent := filepath.Dir(m.WorldDir)

	err = filepath.Walk(m.WorldDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		relPath, err := filepath.Rel(worldParent, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}

		hdr, err := zip.FileInfoHeader(fi)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(relPath)
		hdr.Method = zip.Deflate

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		return fmt.Errorf("snapshot: archive %s: %w", m.WorldDir, err)
	}
	return nil
}

// Restore extracts a snapshot over WorldDir. The existing world
// directory, if any, is renamed to "<world>.old" first; it is removed
// only after a successful extraction, and renamed back if extraction
// fails, so a bad archive never leaves the world directory missing or
// half-written.
func (m *Manager) Restore(info Info) error {
	if _, err := os.Stat(info.Path); err != nil {
		return fmt.Errorf("snapshot: restore: archive not found: %w", err)
	}

	oldWorld := m.WorldDir + ".old"
	hadExisting := false
	if _, err := os.Stat(m.WorldDir); err == nil {
		hadExisting = true
		if _, err := os.Stat(oldWorld); err == nil {
			if err := os.RemoveAll(oldWorld); err != nil {
				return fmt.Errorf("snapshot: restore: remove stale %s: %w", oldWorld, err)
			}
		}
		if err := os.Rename(m.WorldDir, oldWorld); err != nil {
			return fmt.Errorf("snapshot: restore: rename existing world aside: %w", err)
		}
	}

	if err := extractZip(info.Path, filepath.Dir(m.WorldDir)); err != nil {
		if hadExisting {
			_ = os.RemoveAll(m.WorldDir)
			if renameErr := os.Rename(oldWorld, m.WorldDir); renameErr != nil {
				return fmt.Errorf("snapshot: restore failed (%w) and rollback failed: %v", err, renameErr)
			}
		}
		return fmt.Errorf("snapshot: restore: extract: %w", err)
	}

	if hadExisting {
		if err := os.RemoveAll(oldWorld); err != nil {
			return fmt.Errorf("snapshot: restore: cleanup %s: %w", oldWorld, err)
		}
	}
	return nil
}

func extractZip(archivePath, destParent string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		target := filepath.Join(destParent, f.Name)
		if !strings.HasPrefix(target, filepath.Clean(destParent)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}

		rc, err := f.Open()
		if err != nil {
			return err
		}

		dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			_ = rc.Close()
			return err
		}
		_, err = io.Copy(dst, rc)
		_ = rc.Close()
		_ = dst.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes snapshots older than KeepDays, but never below
// KeepMinimum total snapshots: the KeepMinimum newest snapshots are
// always kept regardless of age, and every older snapshot past the
// cutoff is deleted. Iteration proceeds newest-to-oldest over the
// snapshots beyond that minimum.
func (m *Manager) Prune() ([]Info, error) {
	if !m.AutoPrune {
		return nil, nil
	}
	infos, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(infos) <= m.KeepMinimum {
		return nil, nil
	}

	keep := m.KeepMinimum
	if keep < 0 {
		keep = 0
	}
	cutoff := time.Now().AddDate(0, 0, -m.KeepDays)
	var deleted []Info
	for _, info := range infos[keep:] {
		if info.Timestamp.Before(cutoff) {
			if err := os.Remove(info.Path); err != nil {
				continue
			}
			deleted = append(deleted, info)
		}
	}
	return deleted, nil
}

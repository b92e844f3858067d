package report

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TmpSuffix marks files that are still being written.
const TmpSuffix = ".tmp"

// Paths are the final locations of both renditions of one packet.
type Paths struct {
	JSON string
	Text string
}

// Write renders both renditions to temporary files and renames them into
// place. On any failure the temporaries are removed and no final file is
// left behind by this call.
func Write(r *Report, paths Paths) error {
	data, err := r.MarshalIndent()
	if err != nil {
		return err
	}
	var text bytes.Buffer
	if err := r.WriteText(&text); err != nil {
		return fmt.Errorf("render text: %w", err)
	}

	tmpJSON := paths.JSON + TmpSuffix
	tmpText := paths.Text + TmpSuffix
	cleanup := func() {
		os.Remove(tmpJSON)
		os.Remove(tmpText)
	}

	if err := writeFileSync(tmpJSON, data); err != nil {
		cleanup()
		return err
	}
	if err := writeFileSync(tmpText, text.Bytes()); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpJSON, paths.JSON); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", filepath.Base(tmpJSON), err)
	}
	if err := os.Rename(tmpText, paths.Text); err != nil {
		os.Remove(paths.JSON)
		cleanup()
		return fmt.Errorf("rename %s: %w", filepath.Base(tmpText), err)
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// CleanOrphans removes *.tmp files older than maxAge from the given
// directories and returns the removed paths.
func CleanOrphans(now time.Time, maxAge time.Duration, dirs ...string) ([]string, error) {
	var removed []string
	var errs []error
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), TmpSuffix) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if now.Sub(info.ModTime()) <= maxAge {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				errs = append(errs, err)
				continue
			}
			removed = append(removed, path)
		}
	}
	return removed, errors.Join(errs...)
}

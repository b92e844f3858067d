package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ManifestSuffix ends every manifest file name.
const ManifestSuffix = ".manifest.json"

// Manifest records the membership and order of a packet's pages. It is
// written before the first stage so a later run reassembles the packet
// the same way.
type Manifest struct {
	ID        string    `json:"id"`
	Files     []string  `json:"files"`
	Fallback  bool      `json:"fallback"`
	CreatedAt time.Time `json:"created_at"`
}

// ManifestPath returns where the manifest of id lives inside dir.
func ManifestPath(dir, id string) string {
	return filepath.Join(dir, id+ManifestSuffix)
}

// WriteManifest stores m in dir, replacing any previous manifest.
func WriteManifest(dir string, m Manifest) error {
	const op = "WriteManifest"

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	path := ManifestPath(dir, m.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%s: failed to write %s: %w", op, filepath.Base(tmp), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%s: failed to rename manifest: %w", op, err)
	}
	return nil
}

// ReadManifest loads the manifest of id from dir.
func ReadManifest(dir, id string) (*Manifest, error) {
	data, err := os.ReadFile(ManifestPath(dir, id))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("ReadManifest: %s: %w", id, err)
	}
	return &m, nil
}

// RemoveManifest deletes the manifest of id; a missing one is not an error.
func RemoveManifest(dir, id string) error {
	err := os.Remove(ManifestPath(dir, id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadManifests reads every manifest in dir. Unreadable ones are skipped.
func LoadManifests(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("LoadManifests: %w", err)
	}
	var out []Manifest
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ManifestSuffix) {
			continue
		}
		m, err := ReadManifest(dir, strings.TrimSuffix(name, ManifestSuffix))
		if err != nil {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// FallbackAssignments maps file names to the fallback packet that already
// claimed them.
func FallbackAssignments(manifests []Manifest) map[string]string {
	out := make(map[string]string)
	for _, m := range manifests {
		if !m.Fallback {
			continue
		}
		for _, f := range m.Files {
			out[f] = m.ID
		}
	}
	return out
}

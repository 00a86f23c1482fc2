// Package snapshot serializes the agenda's persisted collections and
// reconciles external snapshots back into the live store. Import is
// append-only: entries merge onto the live collections entry by entry
// with no deduplication against what is already there.
package snapshot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"agendad/internal/agenda"
	appLog "agendad/internal/log"
)

// Export serializes the store's saved and history collections.
func Export(store *agenda.Store) ([]byte, error) {
	return Encode(store.Saved(), store.History())
}

// Import decodes data and appends its collections onto the store. On
// malformed input the store is left untouched and a single error is
// returned for the caller to surface.
func Import(store *agenda.Store, data []byte) error {
	saved, history, err := Decode(data)
	if err != nil {
		appLog.Error("snapshot import rejected", err)
		return err
	}
	store.MergeSnapshot(saved, history)
	return nil
}

// SuggestedName returns a default file name for an export.
func SuggestedName(now time.Time) string {
	return "agenda-" + now.Format("20060102") + ".json"
}

// WriteFile persists data atomically (temp file + rename, 0600), the
// same discipline the config loader uses.
func WriteFile(path string, data []byte) error {
	if path == "" {
		return errors.New("snapshot path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".agendad-snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// LoadAndMerge reads a snapshot file and merges it into the store. A
// missing file is not an error; a malformed one is.
func LoadAndMerge(store *agenda.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			appLog.Info("no snapshot file, starting empty", "path", path)
			return nil
		}
		return err
	}
	if err := Import(store, data); err != nil {
		return err
	}
	appLog.Info("snapshot loaded", "path", path)
	return nil
}

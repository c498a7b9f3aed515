package preset

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Selection is the persisted last-used preset.
type Selection struct {
	Name string `json:"name"`
}

// Load reads the selection from disk. Missing files return empty data.
func Load(path string) (Selection, error) {
	var s Selection
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, err
	}
	return s, nil
}

// Save writes the selection to disk, creating parent directories as needed.
func Save(path string, s Selection) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

package common

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// LoadJSON reads the JSON document at path into v. A missing file is not an
// error; it reports found=false so callers can fall back to defaults.
func LoadJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, err
	}
	return true, nil
}

// SaveJSON writes v to path as indented JSON, creating parent directories
// as needed. The file is replaced wholesale; there is no partial update.
func SaveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

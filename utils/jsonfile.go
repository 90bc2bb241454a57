package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SaveJSON writes data to path as indented JSON, creating the parent
// directory if needed. The file is rewritten wholesale.
func SaveJSON(path string, data interface{}) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create data file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ") // Pretty print for easier inspection
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode data file: %w", err)
	}

	return nil
}

// LoadJSON reads path and decodes it into data.
func LoadJSON(path string, data interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}

	if err := json.Unmarshal(content, data); err != nil {
		return fmt.Errorf("failed to decode data file: %w", err)
	}

	return nil
}

// FileExists reports whether path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

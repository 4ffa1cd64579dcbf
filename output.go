package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// OutputFilename is <dir>/<target>_<run id>.json.
func OutputFilename(dir string, target Target, document ResultDocument) string {
	return filepath.Join(dir, fmt.Sprintf("%v_%v.json", target.Slug(), document.Metadata.RunID))
}

// WriteResult writes document as indented JSON, replacing filename atomically.
func WriteResult(filename string, document ResultDocument) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return fmt.Errorf("couldn't create directory: %v", filepath.Dir(filename))
	}
	body, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filename, append(body, '\n'), 0644)
}

// ReadResult loads a document written by WriteResult.
func ReadResult(filename string) (ResultDocument, error) {
	var document ResultDocument
	body, err := os.ReadFile(filename)
	if err != nil {
		return document, err
	}
	if err := json.Unmarshal(body, &document); err != nil {
		return document, fmt.Errorf("%v: %w", filename, err)
	}
	return document, nil
}

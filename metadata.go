package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// SnapshotMetaExtension is appended to a recorded snapshot's filename for its sidecar.
const SnapshotMetaExtension = ".meta"

// SnapshotMeta describes a recorded page. The HTML itself lives next to it.
type SnapshotMeta struct {
	URL        string    `json:"url"`
	Title      string    `json:"title,omitempty"`
	Bytes      int       `json:"bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

func writeSnapshotMeta(filename string, meta SnapshotMeta) error {
	body, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("snapshot meta: %w", err)
	}
	return writeFileAtomic(filename+SnapshotMetaExtension, body, 0644)
}

// readSnapshotMeta loads the sidecar of filename. A sidecar without a URL is rejected
// since replay could not key the page.
func readSnapshotMeta(filename string) (SnapshotMeta, error) {
	var meta SnapshotMeta
	body, err := os.ReadFile(filename + SnapshotMetaExtension)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return meta, fmt.Errorf("%v%v: %w", filename, SnapshotMetaExtension, err)
	}
	if meta.URL == "" {
		return meta, fmt.Errorf("%v%v: no url", filename, SnapshotMetaExtension)
	}
	return meta, nil
}

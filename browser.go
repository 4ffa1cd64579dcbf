package scraper

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	// DefaultTimeout bounds a single navigation including the settle wait.
	DefaultTimeout = 90 * time.Second
	// UserAgentDefault is a current desktop Chrome on Windows.
	UserAgentDefault = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
)

// Browser is an exclusively owned page handle. Implementations need not be safe for
// concurrent use; the session drives one step at a time.
type Browser interface {
	Pointer

	Navigate(ctx context.Context, url string) error
	Snapshot(ctx context.Context) (Snapshot, error)
	Scroll(ctx context.Context, dy int) error
	Screenshot(ctx context.Context) ([]byte, error)

	Cookies(ctx context.Context) ([]*http.Cookie, error)
	SetCookies(ctx context.Context, cookies []*http.Cookie) error
	LocalStorage(ctx context.Context) (map[string]string, error)
	SetLocalStorage(ctx context.Context, items map[string]string) error

	Close() error
}

// BrowserOptions configures a Browser at launch.
type BrowserOptions struct {
	UserDataDir    string // persistent profile directory
	Headless       bool
	Proxy          string // scheme://host:port, empty for a direct connection
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	RecordDir      string // if nonempty, every snapshot is saved here as N.html + N.html.meta
	Log            Logger
}

// Launcher starts a browser. NewChrome is the production launcher.
type Launcher func(ctx context.Context, options BrowserOptions) (Browser, error)

// snapshotRecorder writes snapshots in the numbered layout that LoadReplayBrowser reads.
type snapshotRecorder struct {
	mu    sync.Mutex
	dir   string
	count int
	log   Logger
}

func newSnapshotRecorder(dir string, log Logger) (*snapshotRecorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("couldn't create directory: %v", dir)
	}
	return &snapshotRecorder{dir: dir, log: log}, nil
}

func (recorder *snapshotRecorder) record(snapshot Snapshot, title string) error {
	if recorder == nil {
		return nil
	}
	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	recorder.count++
	filename := filepath.Join(recorder.dir, fmt.Sprintf("%v.html", recorder.count))
	recorder.log.Printf("**** SAVE to %v (%v bytes)", filename, len(snapshot.HTML))
	if err := os.WriteFile(filename, []byte(snapshot.HTML), 0644); err != nil {
		return err
	}
	return writeSnapshotMeta(filename, SnapshotMeta{
		URL:        snapshot.URL,
		Title:      title,
		Bytes:      len(snapshot.HTML),
		CapturedAt: time.Now().UTC(),
	})
}

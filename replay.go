package scraper

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ReplayBrowser serves canned HTML instead of driving Chrome. Each URL owns a list of
// stages; Scroll advances to the next stage, so a page can grow as it is scrolled.
// It is used for offline replays of recorded sessions and as the test double.
type ReplayBrowser struct {
	mu sync.Mutex

	pages    map[string][]string
	delays   map[string]time.Duration
	sequence []Snapshot // recorded mode: served in order, one per Snapshot call
	next     int

	current string
	stage   int

	cookies      []*http.Cookie
	localStorage map[string]string
	screenshots  int
	mouseMoves   int
	scrolls      int
	visited      []string
	closed       bool
	Log          Logger

	// OnNavigate, if set, runs after each successful Navigate.
	OnNavigate func(url string)
}

// NewReplayBrowser builds a replay browser from url -> stages.
func NewReplayBrowser(pages map[string][]string) *ReplayBrowser {
	browser := &ReplayBrowser{
		pages:        map[string][]string{},
		delays:       map[string]time.Duration{},
		localStorage: map[string]string{},
		Log:          DummyLogger{},
	}
	for u, stages := range pages {
		browser.pages[replayKey(u)] = append([]string(nil), stages...)
	}
	return browser
}

// LoadReplayBrowser reads N.html / N.html.meta pairs written by a recording session and
// serves them back in order.
func LoadReplayBrowser(dir string, log Logger) (*ReplayBrowser, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var numbers []int
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".html") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, ".html"))
		if err != nil {
			continue
		}
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	browser := NewReplayBrowser(nil)
	if log != nil {
		browser.Log = log
	}
	for _, n := range numbers {
		filename := filepath.Join(dir, fmt.Sprintf("%v.html", n))
		body, err := os.ReadFile(filename)
		if err != nil {
			return nil, RetryAndRecordError{filename}
		}
		meta, err := readSnapshotMeta(filename)
		if err != nil {
			return nil, RetryAndRecordError{filename}
		}
		browser.sequence = append(browser.sequence, Snapshot{URL: meta.URL, HTML: string(body)})
	}
	if len(browser.sequence) == 0 {
		return nil, RetryAndRecordError{filepath.Join(dir, "1.html")}
	}
	return browser, nil
}

func replayKey(u string) string {
	if canonical, ok := CanonicalURL(u); ok {
		return canonical
	}
	return u
}

// Replace swaps the stages served for url. Safe to call while a run is in progress.
func (browser *ReplayBrowser) Replace(url string, stages ...string) {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.pages[replayKey(url)] = append([]string(nil), stages...)
	if replayKey(url) == browser.current && browser.stage >= len(stages) {
		browser.stage = len(stages) - 1
	}
}

// SetDelay makes navigation to url take d, to exercise timeouts.
func (browser *ReplayBrowser) SetDelay(url string, d time.Duration) {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.delays[replayKey(url)] = d
}

func (browser *ReplayBrowser) Navigate(ctx context.Context, url string) error {
	key := replayKey(url)
	browser.mu.Lock()
	delay := browser.delays[key]
	browser.mu.Unlock()

	if err := sleepContext(ctx, delay); err != nil {
		return err
	}

	browser.mu.Lock()
	if browser.closed {
		browser.mu.Unlock()
		return fmt.Errorf("replay browser is closed")
	}
	if browser.sequence == nil {
		if _, ok := browser.pages[key]; !ok {
			browser.mu.Unlock()
			return RetryAndRecordError{url}
		}
	}
	browser.current = key
	browser.stage = 0
	browser.visited = append(browser.visited, url)
	hook := browser.OnNavigate
	browser.mu.Unlock()

	browser.Log.Printf("REPLAY NAVIGATE: %v", url)
	if hook != nil {
		hook(url)
	}
	return ctx.Err()
}

func (browser *ReplayBrowser) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	browser.mu.Lock()
	defer browser.mu.Unlock()

	if browser.sequence != nil {
		if browser.next >= len(browser.sequence) {
			return Snapshot{}, RetryAndRecordError{fmt.Sprintf("%v.html", browser.next+1)}
		}
		snapshot := browser.sequence[browser.next]
		browser.next++
		return snapshot, nil
	}

	stages := browser.pages[browser.current]
	if len(stages) == 0 {
		return Snapshot{}, RetryAndRecordError{browser.current}
	}
	stage := browser.stage
	if stage >= len(stages) {
		stage = len(stages) - 1
	}
	return Snapshot{URL: browser.current, HTML: stages[stage]}, nil
}

func (browser *ReplayBrowser) Scroll(ctx context.Context, dy int) error {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.scrolls++
	if browser.stage < len(browser.pages[browser.current])-1 {
		browser.stage++
	}
	return ctx.Err()
}

func (browser *ReplayBrowser) MoveMouse(ctx context.Context, x, y float64) error {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.mouseMoves++
	return ctx.Err()
}

func (browser *ReplayBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.screenshots++
	// smallest valid PNG header; callers only store it
	return []byte("\x89PNG\r\n\x1a\n"), ctx.Err()
}

func (browser *ReplayBrowser) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	out := make([]*http.Cookie, len(browser.cookies))
	copy(out, browser.cookies)
	return out, ctx.Err()
}

func (browser *ReplayBrowser) SetCookies(ctx context.Context, cookies []*http.Cookie) error {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.cookies = append(browser.cookies[:0], cookies...)
	return ctx.Err()
}

func (browser *ReplayBrowser) LocalStorage(ctx context.Context) (map[string]string, error) {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	out := make(map[string]string, len(browser.localStorage))
	for k, v := range browser.localStorage {
		out[k] = v
	}
	return out, ctx.Err()
}

func (browser *ReplayBrowser) SetLocalStorage(ctx context.Context, items map[string]string) error {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	for k, v := range items {
		browser.localStorage[k] = v
	}
	return ctx.Err()
}

func (browser *ReplayBrowser) Close() error {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	browser.closed = true
	return nil
}

// ReplayStats reports what a replay browser was asked to do.
type ReplayStats struct {
	Visited     []string
	Scrolls     int
	MouseMoves  int
	Screenshots int
	Closed      bool
}

func (browser *ReplayBrowser) Stats() ReplayStats {
	browser.mu.Lock()
	defer browser.mu.Unlock()
	return ReplayStats{
		Visited:     append([]string(nil), browser.visited...),
		Scrolls:     browser.scrolls,
		MouseMoves:  browser.mouseMoves,
		Screenshots: browser.screenshots,
		Closed:      browser.closed,
	}
}

// ReplayLauncher returns a Launcher that always hands out browser.
func ReplayLauncher(browser *ReplayBrowser) Launcher {
	return func(ctx context.Context, options BrowserOptions) (Browser, error) {
		browser.mu.Lock()
		browser.closed = false
		browser.mu.Unlock()
		return browser, nil
	}
}

package scraper

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	cookiejar "github.com/orirawlings/persistent-cookiejar"
)

const (
	cookieFilename = "cookies.json"
	stateFilename  = "state.json"
)

// SessionState is everything besides cookies that must survive a restart.
type SessionState struct {
	LoginState    LoginState        `json:"login_state"`
	LastValidated time.Time         `json:"last_validated,omitempty"`
	LocalStorage  map[string]string `json:"local_storage,omitempty"`
	SavedAt       time.Time         `json:"saved_at"`
}

// SessionStore keeps cookies and SessionState in a directory. Every write goes to a
// temporary file that is renamed over the previous one, so a crash mid-write leaves the
// last good state in place.
type SessionStore struct {
	Dir string
	Log Logger
}

func NewSessionStore(dir string, log Logger) *SessionStore {
	if log == nil {
		log = DummyLogger{}
	}
	return &SessionStore{Dir: dir, Log: log}
}

func (store *SessionStore) cookiePath() string {
	return filepath.Join(store.Dir, cookieFilename)
}

func (store *SessionStore) statePath() string {
	return filepath.Join(store.Dir, stateFilename)
}

// Exists reports whether a previous session was saved.
func (store *SessionStore) Exists() bool {
	_, err := os.Stat(store.statePath())
	return err == nil
}

// Load returns the saved cookies and state. A missing store is not an error; an
// unreadable one is a SessionCorruptError.
func (store *SessionStore) Load() ([]*http.Cookie, SessionState, error) {
	var state SessionState
	body, err := os.ReadFile(store.statePath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, SessionState{LoginState: LoginUnknown}, nil
	case err != nil:
		return nil, state, SessionCorruptError{store.statePath(), err}
	}
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, state, SessionCorruptError{store.statePath(), err}
	}

	if _, err := os.Stat(store.cookiePath()); errors.Is(err, os.ErrNotExist) {
		return nil, state, nil
	}
	jar, err := cookiejar.New(&cookiejar.Options{
		Filename:              store.cookiePath(),
		PersistSessionCookies: true,
	})
	if err != nil {
		return nil, state, SessionCorruptError{store.cookiePath(), err}
	}
	cookies := jar.AllCookies()
	store.Log.Printf("session: restored %d cookies from %v", len(cookies), store.cookiePath())
	return cookies, state, nil
}

// Save writes cookies and state. Cookies go through a fresh jar file so nothing from the
// previous file leaks into the new one.
func (store *SessionStore) Save(cookies []*http.Cookie, state SessionState) error {
	if err := os.MkdirAll(store.Dir, 0700); err != nil {
		return fmt.Errorf("couldn't create directory: %v", store.Dir)
	}

	tmpCookies := store.cookiePath() + ".tmp"
	os.Remove(tmpCookies)
	jar, err := cookiejar.New(&cookiejar.Options{
		Filename:              tmpCookies,
		PersistSessionCookies: true,
	})
	if err != nil {
		return err
	}
	for _, cookie := range cookies {
		u, ok := cookieURL(cookie)
		if !ok {
			continue
		}
		jar.SetCookies(u, []*http.Cookie{cookie})
	}
	if err := jar.Save(); err != nil {
		os.Remove(tmpCookies)
		return err
	}
	os.Remove(tmpCookies + ".lock")
	if err := syncFile(tmpCookies); err != nil {
		return err
	}
	if err := os.Rename(tmpCookies, store.cookiePath()); err != nil {
		return err
	}

	state.SavedAt = time.Now().UTC()
	body, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(store.statePath(), body, 0600); err != nil {
		return err
	}
	store.Log.Printf("session: saved %d cookies, state %v", len(cookies), state.LoginState)
	return nil
}

// cookieURL is the URL a browser cookie was set for, as the jar needs one.
func cookieURL(cookie *http.Cookie) (*url.URL, bool) {
	host := strings.TrimPrefix(cookie.Domain, ".")
	if host == "" {
		return nil, false
	}
	path := cookie.Path
	if path == "" {
		path = "/"
	}
	return &url.URL{Scheme: "https", Host: host, Path: path}, true
}

func syncFile(name string) error {
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// writeFileAtomic writes data next to filename and renames it into place.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	f, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer os.Remove(tmp)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(perm); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, filename)
}

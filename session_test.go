package scraper

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const loggedInHTML = `<html><head><title>Facebook</title></head><body>
<div role="navigation"><a href="/me/">Your profile</a></div>
<div role="main"><div role="feed"></div></div>
</body></html>`

const loggedOutHTML = `<html><head><title>Facebook - log in or sign up</title></head><body>
<form data-testid="royal_login_form"><input name="email"><input name="pass" type="password"></form>
</body></html>`

const homeURL = testBase + "/"

func openTestSession(t *testing.T, dir string, browser *ReplayBrowser, proxies EndpointPool) *Session {
	t.Helper()
	session, err := Open(context.Background(), SessionOptions{
		Dir:      dir,
		BaseURL:  testBase,
		Launcher: ReplayLauncher(browser),
		Proxies:  proxies,
	}, mustRules(t), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return session
}

func TestClassifyLogin(t *testing.T) {
	session := openTestSession(t, t.TempDir(), NewReplayBrowser(nil), nil)

	tests := []struct {
		html string
		want LoginState
	}{
		{loggedInHTML, LoginLoggedIn},
		{loggedOutHTML, LoginLoggedOut},
		{challengeHTML, LoginUnknown},
	}
	for _, tt := range tests {
		if got := session.ClassifyLogin(testPage(t, homeURL, tt.html)); got != tt.want {
			t.Errorf("ClassifyLogin = %v, want %v", got, tt.want)
		}
	}
}

func TestEnsureLoginAlreadyLoggedIn(t *testing.T) {
	dir := t.TempDir()
	browser := NewReplayBrowser(map[string][]string{homeURL: {loggedInHTML}})
	browser.SetCookies(context.Background(), testCookies())
	session := openTestSession(t, dir, browser, nil)

	state, err := session.EnsureLogin(context.Background(), nil, nil)
	if err != nil || state != LoginLoggedIn {
		t.Fatalf("EnsureLogin = %v, %v", state, err)
	}
	if session.State().LastValidated.IsZero() {
		t.Error("LastValidated not set")
	}
	if !NewSessionStore(dir, nil).Exists() {
		t.Error("logged-in session was not persisted")
	}
}

func TestEnsureLoginManual(t *testing.T) {
	dir := t.TempDir()
	browser := NewReplayBrowser(map[string][]string{homeURL: {loggedOutHTML}})
	session := openTestSession(t, dir, browser, nil)
	checkpoint := newTestCheckpoint(t, browser, CheckpointOptions{Wait: 50 * time.Millisecond, Poll: 10 * time.Millisecond})

	called := 0
	manual := ManualLoginFunc(func(ctx context.Context, b Browser) error {
		called++
		browser.Replace(homeURL, loggedInHTML)
		return b.SetCookies(ctx, testCookies())
	})
	state, err := session.EnsureLogin(context.Background(), manual, checkpoint)
	if err != nil || state != LoginLoggedIn {
		t.Fatalf("EnsureLogin = %v, %v", state, err)
	}
	if called != 1 {
		t.Errorf("manual login called %d times", called)
	}
	if err := session.Close(context.Background()); err != nil {
		t.Fatal(err)
	}

	// a second process picks the session up without logging in again
	next := NewReplayBrowser(map[string][]string{homeURL: {loggedInHTML}})
	reopened := openTestSession(t, dir, next, nil)
	if reopened.State().LoginState != LoginLoggedIn {
		t.Errorf("restored LoginState = %v", reopened.State().LoginState)
	}
	cookies, _ := next.Cookies(context.Background())
	if diff := cmp.Diff(cookiePairs(testCookies()), cookiePairs(cookies)); diff != "" {
		t.Errorf("restored cookies (-expected +got)\n%v", diff)
	}
	state, err = reopened.EnsureLogin(context.Background(), ManualLoginFunc(func(context.Context, Browser) error {
		t.Error("manual login requested for a restored session")
		return nil
	}), nil)
	if err != nil || state != LoginLoggedIn {
		t.Errorf("EnsureLogin after restore = %v, %v", state, err)
	}
}

func TestEnsureLoginRequired(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{homeURL: {loggedOutHTML}})
	session := openTestSession(t, t.TempDir(), browser, nil)

	state, err := session.EnsureLogin(context.Background(), nil, nil)
	if !errors.As(err, &LoginRequiredError{}) || state != LoginLoggedOut {
		t.Errorf("EnsureLogin = %v, %v", state, err)
	}

	// an operator who gives up leaves the session logged out
	state, err = session.EnsureLogin(context.Background(), ManualLoginFunc(func(context.Context, Browser) error {
		return nil
	}), nil)
	if !errors.As(err, &LoginRequiredError{}) || state != LoginLoggedOut {
		t.Errorf("EnsureLogin = %v, %v", state, err)
	}
}

func TestPersistKeepsSavedCookies(t *testing.T) {
	dir := t.TempDir()
	store := NewSessionStore(dir, nil)
	if err := store.Save(testCookies(), SessionState{LoginState: LoginLoggedIn}); err != nil {
		t.Fatal(err)
	}

	browser := NewReplayBrowser(nil)
	session := openTestSession(t, dir, browser, nil)
	browser.SetCookies(context.Background(), nil)
	if err := session.Persist(context.Background()); err != nil {
		t.Fatal(err)
	}

	cookies, _, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(cookies) != len(testCookies()) {
		t.Errorf("saved cookies replaced by an empty read: %v", cookiePairs(cookies))
	}
}

func TestPersistDropsForeignCookies(t *testing.T) {
	dir := t.TempDir()
	browser := NewReplayBrowser(nil)
	session := openTestSession(t, dir, browser, nil)
	cookies := append(testCookies(), &http.Cookie{Name: "tracker", Value: "1", Domain: ".example.com", Path: "/"})
	browser.SetCookies(context.Background(), cookies)
	if err := session.Persist(context.Background()); err != nil {
		t.Fatal(err)
	}
	saved, _, err := NewSessionStore(dir, nil).Load()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(cookiePairs(testCookies()), cookiePairs(saved)); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

func TestOpenCorruptStore(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, stateFilename), []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}
	launched := false
	_, err := Open(context.Background(), SessionOptions{
		Dir: dir,
		Launcher: func(context.Context, BrowserOptions) (Browser, error) {
			launched = true
			return NewReplayBrowser(nil), nil
		},
	}, mustRules(t), nil)
	if !errors.As(err, &SessionCorruptError{}) {
		t.Errorf("err = %v", err)
	}
	if launched {
		t.Error("browser launched on a corrupt store")
	}
}

func TestOpenRestoresLocalStorage(t *testing.T) {
	dir := t.TempDir()
	items := map[string]string{"Session": "abc"}
	if err := NewSessionStore(dir, nil).Save(testCookies(), SessionState{LoginState: LoginLoggedIn, LocalStorage: items}); err != nil {
		t.Fatal(err)
	}
	browser := NewReplayBrowser(map[string][]string{homeURL: {loggedInHTML}})
	openTestSession(t, dir, browser, nil)

	got, _ := browser.LocalStorage(context.Background())
	if diff := cmp.Diff(items, got); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

type fakePool struct {
	endpoints []Endpoint
	dead      []Endpoint
}

func (pool *fakePool) HealthyEndpoint(context.Context) (Endpoint, bool) {
	for _, e := range pool.endpoints {
		alive := true
		for _, d := range pool.dead {
			if d == e {
				alive = false
			}
		}
		if alive {
			return e, true
		}
	}
	return Endpoint{}, false
}

func (pool *fakePool) MarkDead(e Endpoint) {
	pool.dead = append(pool.dead, e)
}

func TestSessionProxy(t *testing.T) {
	pool := &fakePool{endpoints: []Endpoint{{URL: "http://10.0.0.1:3128"}, {URL: "http://10.0.0.2:3128"}}}
	browser := NewReplayBrowser(map[string][]string{homeURL: {loggedInHTML}})

	var options BrowserOptions
	launcher := ReplayLauncher(browser)
	session, err := Open(context.Background(), SessionOptions{
		Dir:     t.TempDir(),
		BaseURL: testBase,
		Launcher: func(ctx context.Context, o BrowserOptions) (Browser, error) {
			options = o
			return launcher(ctx, o)
		},
		Proxies: pool,
	}, mustRules(t), nil)
	if err != nil {
		t.Fatal(err)
	}
	if options.Proxy != "http://10.0.0.1:3128" {
		t.Errorf("Proxy = %q", options.Proxy)
	}

	if err := session.Navigate(context.Background(), homeURL); err != nil {
		t.Fatal(err)
	}
	if len(pool.dead) != 0 {
		t.Errorf("dead after a good navigation: %v", pool.dead)
	}
	if err := session.Navigate(context.Background(), testBase+"/unknown"); err == nil {
		t.Fatal("navigation to an unknown page should fail")
	}
	if diff := cmp.Diff([]Endpoint{{URL: "http://10.0.0.1:3128"}}, pool.dead); diff != "" {
		t.Errorf("dead (-expected +got)\n%v", diff)
	}
}

func TestSessionClose(t *testing.T) {
	dir := t.TempDir()
	browser := NewReplayBrowser(nil)
	session := openTestSession(t, dir, browser, nil)
	browser.SetCookies(context.Background(), testCookies())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := session.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if !browser.Stats().Closed {
		t.Error("browser not closed")
	}
	if !NewSessionStore(dir, nil).Exists() {
		t.Error("session not persisted on close")
	}
	if err := session.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type LoginState int

const (
	LoginUnknown LoginState = iota
	LoginLoggedOut
	LoginLoggedIn
)

func (state LoginState) String() string {
	switch state {
	case LoginLoggedOut:
		return "logged-out"
	case LoginLoggedIn:
		return "logged-in"
	}
	return "unknown"
}

func (state LoginState) MarshalText() ([]byte, error) {
	return []byte(state.String()), nil
}

func (state *LoginState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "logged-in":
		*state = LoginLoggedIn
	case "logged-out":
		*state = LoginLoggedOut
	case "unknown", "":
		*state = LoginUnknown
	default:
		return fmt.Errorf("unknown login state %q", text)
	}
	return nil
}

// ManualLogin is the operator-facing collaborator that gets a logged-out browser into a
// logged-in state. The session never types credentials itself.
type ManualLogin interface {
	AwaitLogin(ctx context.Context, browser Browser) error
}

type ManualLoginFunc func(ctx context.Context, browser Browser) error

func (fn ManualLoginFunc) AwaitLogin(ctx context.Context, browser Browser) error {
	return fn(ctx, browser)
}

type LoginRequiredError struct{}

func (error LoginRequiredError) Error() string {
	return "session is logged out and no manual login is available"
}

// SessionOptions configures Open.
type SessionOptions struct {
	Dir               string // user-data directory: browser profile plus saved cookies and state
	Headless          bool
	BaseURL           string
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	SaveSnapshots     bool // record every snapshot under Dir/snapshots
	NavigationTimeout time.Duration
	Launcher          Launcher     // defaults to NewChrome
	Proxies           EndpointPool // optional
}

// Session owns one persistent browser context bound to a user-data directory.
type Session struct {
	Options SessionOptions
	Log     Logger

	store    *SessionStore
	browser  Browser
	rules    *RuleBook
	resolver *Resolver
	endpoint *Endpoint

	mu    sync.Mutex
	state SessionState
}

// Open restores the session stored in options.Dir, or starts a fresh one, and launches
// the browser. A store that cannot be read fails with SessionCorruptError before any
// browser is started.
func Open(ctx context.Context, options SessionOptions, rules *RuleBook, log Logger) (*Session, error) {
	if log == nil {
		log = DummyLogger{}
	}
	if options.BaseURL == "" {
		options.BaseURL = DefaultBaseURL
	}
	if options.Launcher == nil {
		options.Launcher = NewChrome
	}
	if options.NavigationTimeout == 0 {
		options.NavigationTimeout = DefaultTimeout
	}
	resolver, err := NewResolver(rules)
	if err != nil {
		return nil, err
	}

	session := &Session{
		Options:  options,
		Log:      log,
		store:    NewSessionStore(options.Dir, log),
		rules:    rules,
		resolver: resolver,
	}

	cookies, state, err := session.store.Load()
	if err != nil {
		return nil, err
	}
	session.state = state

	browserOptions := BrowserOptions{
		UserDataDir:    filepath.Join(options.Dir, "chrome-profile"),
		Headless:       options.Headless,
		UserAgent:      options.UserAgent,
		ViewportWidth:  options.ViewportWidth,
		ViewportHeight: options.ViewportHeight,
		Log:            log,
	}
	if options.SaveSnapshots {
		browserOptions.RecordDir = filepath.Join(options.Dir, "snapshots", time.Now().Format("20060102_150405"))
	}
	if options.Proxies != nil {
		if endpoint, ok := options.Proxies.HealthyEndpoint(ctx); ok {
			session.endpoint = &endpoint
			browserOptions.Proxy = endpoint.URL
			log.Printf("session: using proxy %v", endpoint)
		} else {
			log.Printf("session: no healthy proxy, connecting directly")
		}
	}

	browser, err := options.Launcher(ctx, browserOptions)
	if err != nil {
		return nil, err
	}
	session.browser = browser

	if len(cookies) > 0 {
		if err := browser.SetCookies(ctx, cookies); err != nil {
			browser.Close()
			return nil, err
		}
	}
	if len(state.LocalStorage) > 0 {
		// local storage is per origin, so it can only be restored from a page on the site
		if err := session.Navigate(ctx, options.BaseURL); err != nil {
			log.Printf("session: local storage not restored: %v", err)
		} else if err := browser.SetLocalStorage(ctx, state.LocalStorage); err != nil {
			log.Printf("session: local storage not restored: %v", err)
		}
	}
	log.Printf("session: opened %v (previous state %v)", options.Dir, state.LoginState)
	return session, nil
}

func (session *Session) Printf(format string, a ...interface{}) {
	session.Log.Printf(format, a...)
}

// Browser returns the page handle. Only one component may drive it at a time.
func (session *Session) Browser() Browser {
	return session.browser
}

func (session *Session) Rules() *RuleBook {
	return session.rules
}

func (session *Session) Resolver() *Resolver {
	return session.resolver
}

func (session *Session) State() SessionState {
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.state
}

// Navigate loads url under the navigation timeout. A failed navigation through a proxy
// marks that proxy dead.
func (session *Session) Navigate(ctx context.Context, url string) error {
	nctx, cancel := context.WithTimeout(ctx, session.Options.NavigationTimeout)
	defer cancel()
	err := session.browser.Navigate(nctx, url)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = NavigationTimeoutError{URL: url, Err: err}
	}
	if session.endpoint != nil && session.Options.Proxies != nil && ctx.Err() == nil {
		session.Log.Printf("session: navigation failed through %v, marking it dead", session.endpoint)
		session.Options.Proxies.MarkDead(*session.endpoint)
	}
	return err
}

// ClassifyLogin reports the login state shown by page.
func (session *Session) ClassifyLogin(page *Page) LoginState {
	if _, rule := session.resolver.ResolveNodes(page.Selection, "login.anonymous", session.rules.Field("login.anonymous")); rule >= 0 {
		return LoginLoggedOut
	}
	if _, rule := session.resolver.ResolveNodes(page.Selection, "login.authenticated", session.rules.Field("login.authenticated")); rule >= 0 {
		return LoginLoggedIn
	}
	return LoginUnknown
}

// ValidateLogin loads the site's home page and classifies it.
func (session *Session) ValidateLogin(ctx context.Context) (LoginState, error) {
	if err := session.Navigate(ctx, session.Options.BaseURL); err != nil {
		return LoginUnknown, err
	}
	snapshot, err := session.browser.Snapshot(ctx)
	if err != nil {
		return LoginUnknown, err
	}
	page, err := snapshot.Page(session.Log)
	if err != nil {
		return LoginUnknown, err
	}
	state := session.ClassifyLogin(page)

	session.mu.Lock()
	session.state.LoginState = state
	session.state.LastValidated = time.Now().UTC()
	session.mu.Unlock()
	session.Log.Printf("session: login state %v", state)
	return state, nil
}

// EnsureLogin validates the session and, when logged out, hands the browser to manual
// and then to the checkpoint resolver, since a fresh login is the most common trigger
// for a challenge. A session that reaches logged-in is persisted at once.
func (session *Session) EnsureLogin(ctx context.Context, manual ManualLogin, checkpoint *CheckpointResolver) (LoginState, error) {
	state, err := session.ValidateLogin(ctx)
	if err != nil {
		return state, err
	}
	if state == LoginUnknown && checkpoint != nil {
		// neither indicator: possibly a challenge interposed on the home page
		if _, err := checkpoint.Inspect(ctx); err != nil {
			return state, err
		}
		if state, err = session.ValidateLogin(ctx); err != nil {
			return state, err
		}
	}
	if state == LoginLoggedIn {
		return state, session.Persist(ctx)
	}
	if manual == nil {
		return state, LoginRequiredError{}
	}

	session.Log.Printf("session: waiting for manual login")
	if err := manual.AwaitLogin(ctx, session.browser); err != nil {
		return state, err
	}
	if checkpoint != nil {
		if _, err := checkpoint.Inspect(ctx); err != nil {
			return state, err
		}
	}

	state, err = session.ValidateLogin(ctx)
	if err != nil {
		return state, err
	}
	if state != LoginLoggedIn {
		return state, LoginRequiredError{}
	}
	return state, session.Persist(ctx)
}

// Persist flushes cookies and local storage to the store. An empty cookie read never
// replaces a previously saved logged-in session.
func (session *Session) Persist(ctx context.Context) error {
	if session.browser == nil {
		return nil
	}
	cookies, err := session.browser.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("persist: %w", err)
	}
	storage, err := session.browser.LocalStorage(ctx)
	if err != nil {
		// the current page may not be on the site; keep what was saved before
		session.Log.Printf("session: local storage unavailable: %v", err)
	}

	session.mu.Lock()
	state := session.state
	if storage != nil {
		state.LocalStorage = storage
		session.state.LocalStorage = storage
	}
	session.mu.Unlock()

	if len(cookies) == 0 && session.store.Exists() {
		session.Log.Printf("session: browser returned no cookies, keeping saved session")
		return nil
	}
	return session.store.Save(siteCookies(cookies, session.Options.BaseURL), state)
}

// siteCookies keeps the cookies belonging to the site's registrable domain.
func siteCookies(cookies []*http.Cookie, baseURL string) []*http.Cookie {
	domain := siteDomain(baseURL)
	if domain == "" {
		return cookies
	}
	var out []*http.Cookie
	for _, cookie := range cookies {
		d := strings.TrimPrefix(strings.ToLower(cookie.Domain), ".")
		if d == domain || strings.HasSuffix(d, "."+domain) {
			out = append(out, cookie)
		}
	}
	return out
}

func siteDomain(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// Close persists the session and shuts the browser down. ctx may already be cancelled
// (interrupt), so persisting runs on a detached context with its own deadline.
func (session *Session) Close(ctx context.Context) error {
	if session.browser == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	persistErr := session.Persist(pctx)
	closeErr := session.browser.Close()
	session.browser = nil
	return errors.Join(persistErr, closeErr)
}

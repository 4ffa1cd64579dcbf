package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
)

// ChromeBrowser drives a real Chrome through the DevTools protocol.
type ChromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	recorder    *snapshotRecorder
	log         Logger
}

func chromeAllocatorOptions(options BrowserOptions) []chromedp.ExecAllocatorOption {
	allocOptions := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOptions = append(allocOptions,
		chromedp.UserDataDir(options.UserDataDir),
		chromedp.UserAgent(options.UserAgent),
		chromedp.WindowSize(options.ViewportWidth, options.ViewportHeight),
		chromedp.Flag("headless", options.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "en-US"),
	)
	if options.Headless {
		allocOptions = append(allocOptions, chromedp.DisableGPU)
	}
	if options.Proxy != "" {
		allocOptions = append(allocOptions, chromedp.ProxyServer(options.Proxy))
	}
	return append(allocOptions, containerChromeOptions()...)
}

// NewChrome launches Chrome bound to options.UserDataDir and installs the stealth script
// on every new document. It satisfies Launcher.
func NewChrome(ctx context.Context, options BrowserOptions) (Browser, error) {
	if options.Log == nil {
		options.Log = DummyLogger{}
	}
	if options.UserAgent == "" {
		options.UserAgent = UserAgentDefault
	}
	if options.ViewportWidth == 0 || options.ViewportHeight == 0 {
		options.ViewportWidth, options.ViewportHeight = 1366, 768
	}
	if options.UserDataDir != "" {
		dir, err := filepath.Abs(options.UserDataDir)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("couldn't create directory: %v", dir)
		}
		options.UserDataDir = dir
	}

	recorder, err := newSnapshotRecorder(options.RecordDir, options.Log)
	if err != nil {
		return nil, err
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), chromeAllocatorOptions(options)...)
	ctxt, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(options.Log.Printf))

	browser := &ChromeBrowser{
		ctx:         ctxt,
		cancel:      cancel,
		allocCancel: allocCancel,
		recorder:    recorder,
		log:         options.Log,
	}

	err = browser.run(ctx,
		chromedp.EmulateViewport(int64(options.ViewportWidth), int64(options.ViewportHeight)),
		chromedp.ActionFunc(func(ctxt context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctxt)
			return err
		}),
	)
	if err != nil {
		browser.Close()
		return nil, err
	}
	return browser, nil
}

// run executes actions on the browser tab, abandoning them when ctx is done.
func (browser *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(browser.ctx, actions...)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		// stop whatever is loading so the tab is usable for the next step
		_ = chromedp.Run(browser.ctx, page.StopLoading())
		return ctx.Err()
	}
}

func (browser *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	browser.log.Printf("NAVIGATE: %v", url)
	return browser.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (browser *ChromeBrowser) Snapshot(ctx context.Context) (Snapshot, error) {
	var snapshot Snapshot
	var title string
	err := browser.run(ctx,
		chromedp.Location(&snapshot.URL),
		chromedp.Title(&title),
		chromedp.OuterHTML("html", &snapshot.HTML, chromedp.ByQuery),
	)
	if err != nil {
		return Snapshot{}, err
	}
	if err := browser.recorder.record(snapshot, title); err != nil {
		browser.log.Printf("snapshot not saved: %v", err)
	}
	return snapshot, nil
}

func (browser *ChromeBrowser) Scroll(ctx context.Context, dy int) error {
	var ignored interface{}
	return browser.run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`window.scrollBy({top: %d, behavior: "smooth"})`, dy), &ignored),
	)
}

func (browser *ChromeBrowser) MoveMouse(ctx context.Context, x, y float64) error {
	return browser.run(ctx, input.DispatchMouseEvent(input.MouseMoved, x, y))
}

func (browser *ChromeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := browser.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (browser *ChromeBrowser) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var cookies []*network.Cookie
	err := browser.run(ctx, chromedp.ActionFunc(func(ctxt context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctxt)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0)
		}
		switch c.SameSite {
		case network.CookieSameSiteStrict:
			cookie.SameSite = http.SameSiteStrictMode
		case network.CookieSameSiteLax:
			cookie.SameSite = http.SameSiteLaxMode
		case network.CookieSameSiteNone:
			cookie.SameSite = http.SameSiteNoneMode
		}
		out = append(out, cookie)
	}
	return out, nil
}

func (browser *ChromeBrowser) SetCookies(ctx context.Context, cookies []*http.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			expires := cdp.TimeSinceEpoch(c.Expires)
			param.Expires = &expires
		}
		switch c.SameSite {
		case http.SameSiteStrictMode:
			param.SameSite = network.CookieSameSiteStrict
		case http.SameSiteLaxMode:
			param.SameSite = network.CookieSameSiteLax
		case http.SameSiteNoneMode:
			param.SameSite = network.CookieSameSiteNone
		}
		params = append(params, param)
	}
	return browser.run(ctx, network.SetCookies(params))
}

func (browser *ChromeBrowser) LocalStorage(ctx context.Context) (map[string]string, error) {
	var raw string
	err := browser.run(ctx, chromedp.Evaluate(`JSON.stringify(Object.assign({}, window.localStorage))`, &raw))
	if err != nil {
		return nil, err
	}
	items := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (browser *ChromeBrowser) SetLocalStorage(ctx context.Context, items map[string]string) error {
	if len(items) == 0 {
		return nil
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return err
	}
	var ignored interface{}
	script := fmt.Sprintf(`(function(items){for (const k in items) { window.localStorage.setItem(k, items[k]); }})(%s)`, payload)
	return browser.run(ctx, chromedp.Evaluate(script, &ignored))
}

func (browser *ChromeBrowser) Close() error {
	browser.cancel()
	browser.allocCancel()
	return nil
}

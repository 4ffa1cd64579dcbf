package scraper

import (
	"net/url"
	"slices"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type Page struct {
	*goquery.Document
	BaseUrl *url.URL
	Logger  Logger
}

func (page *Page) ResolveLink(relativeURL string) (string, error) {
	reqUrl, err := page.BaseUrl.Parse(relativeURL)
	if err != nil {
		return "", err
	}
	return reqUrl.String(), nil
}

// Title returns the normalized document title.
func (page *Page) Title() string {
	return NormalizeText(page.Find("title").First().Text())
}

// BodyText returns the normalized visible text of the body, scripts excluded.
func (page *Page) BodyText() string {
	body := page.Find("body").Clone()
	body.Find("script,style,noscript").Remove()
	return NormalizeText(body.Text())
}

// query parameters that identify content rather than tracking state
var identityParams = map[string]bool{
	"id":         true,
	"story_fbid": true,
	"fbid":       true,
	"v":          true,
	"set":        true,
	"sk":         true,
}

// CanonicalURL resolves raw against the page and strips fragments, tracking parameters
// and trailing slashes so the result can serve as a dedup key.
func (page *Page) CanonicalURL(raw string, extra ...string) (string, bool) {
	resolved, err := page.ResolveLink(strings.TrimSpace(raw))
	if err != nil || raw == "" {
		return "", false
	}
	return CanonicalURL(resolved, extra...)
}

// canonicalDomain is the site whose host variants (bare, m., mbasic., web., ...) all
// serve the same content.
var canonicalDomain = siteDomain(DefaultBaseURL)

// foldHost maps the site's bare domain and every subdomain of it to www.
func foldHost(host string) string {
	if host == canonicalDomain || strings.HasSuffix(host, "."+canonicalDomain) {
		return "www." + canonicalDomain
	}
	return host
}

// CanonicalURL normalizes an absolute http(s) URL. Query parameters named in extra are
// kept in addition to the identity parameters.
func CanonicalURL(raw string, extra ...string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	u.Scheme = "https"
	u.Host = strings.ToLower(u.Host)
	u.Host = foldHost(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if identityParams[k] || slices.Contains(extra, k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	kept := url.Values{}
	for _, k := range keys {
		kept.Set(k, q.Get(k))
	}
	u.RawQuery = kept.Encode()
	switch {
	case u.Path == "":
		u.Path = "/"
	case len(u.Path) > 1:
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	return u.String(), true
}

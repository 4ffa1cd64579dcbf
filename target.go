package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const DefaultBaseURL = "https://www.facebook.com"

var (
	usernameRe  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.]{1,49}$`)
	numericIDRe = regexp.MustCompile(`^\d{5,20}$`)
	// /people/<display name>/<id>
	peoplePathRe = regexp.MustCompile(`^/people/[^/]+/(\d{5,20})/?$`)
)

// first path segments that never name a profile
var reservedPaths = map[string]bool{
	"home.php": true, "login": true, "login.php": true, "groups": true, "pages": true,
	"watch": true, "marketplace": true, "gaming": true, "events": true, "settings": true,
	"messages": true, "notifications": true, "friends": true, "photo": true, "photo.php": true,
	"permalink.php": true, "story.php": true, "hashtag": true, "search": true, "checkpoint": true,
}

// Target is a normalized reference to one profile.
type Target struct {
	Raw      string `json:"raw"`
	Username string `json:"username,omitempty"`
	ID       string `json:"id,omitempty"`
	BaseURL  string `json:"base_url"`
}

// NormalizeTarget accepts a username, "@username", a numeric id or a profile URL in any
// of the site's host variants, and returns the canonical Target.
func NormalizeTarget(raw string, baseURL string) (Target, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Host == "" {
		return Target{}, fmt.Errorf("invalid base url %q", baseURL)
	}
	target := Target{Raw: raw, BaseURL: base.Scheme + "://" + base.Host}

	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")
	if s == "" {
		return Target{}, fmt.Errorf("empty target")
	}

	if numericIDRe.MatchString(s) {
		target.ID = s
		return target, nil
	}
	if !strings.Contains(s, "/") && !strings.Contains(s, "?") {
		if usernameRe.MatchString(s) && !reservedPaths[strings.ToLower(s)] {
			target.Username = s
			return target, nil
		}
		return Target{}, fmt.Errorf("%q is not a valid username or id", raw)
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Target{}, fmt.Errorf("%q: %w", raw, err)
	}
	host := strings.ToLower(u.Host)
	siteDomain := strings.TrimPrefix(strings.ToLower(base.Host), "www.")
	if host != siteDomain && !strings.HasSuffix(host, "."+siteDomain) {
		return Target{}, fmt.Errorf("%q is not on %v", raw, siteDomain)
	}

	if strings.HasPrefix(u.Path, "/profile.php") {
		id := u.Query().Get("id")
		if !numericIDRe.MatchString(id) {
			return Target{}, fmt.Errorf("%q: missing numeric id", raw)
		}
		target.ID = id
		return target, nil
	}
	if m := peoplePathRe.FindStringSubmatch(u.Path); m != nil {
		target.ID = m[1]
		return target, nil
	}

	segment := strings.Split(strings.Trim(u.Path, "/"), "/")[0]
	switch {
	case segment == "":
		return Target{}, fmt.Errorf("%q does not name a profile", raw)
	case reservedPaths[strings.ToLower(segment)]:
		return Target{}, fmt.Errorf("%q is not a profile url", raw)
	case numericIDRe.MatchString(segment):
		target.ID = segment
	case usernameRe.MatchString(segment):
		target.Username = segment
	default:
		return Target{}, fmt.Errorf("%q: invalid username %q", raw, segment)
	}
	return target, nil
}

// URL is the canonical profile URL.
func (target Target) URL() string {
	return target.SectionURL("", nil)
}

// SectionURL returns the URL of a profile tab such as "friends" or "about".
// Numeric ids use profile.php?id=..&sk=.., usernames use /username/section.
func (target Target) SectionURL(section string, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	var path string
	if target.ID != "" {
		path = "/profile.php"
		q.Set("id", target.ID)
		if section != "" {
			q.Set("sk", section)
		}
	} else {
		path = "/" + target.Username
		if section != "" {
			path += "/" + section
		}
	}
	u := target.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// Slug is a filesystem-safe label for output names.
func (target Target) Slug() string {
	if target.Username != "" {
		return strings.ReplaceAll(target.Username, ".", "_")
	}
	return target.ID
}

func (target Target) String() string {
	return target.URL()
}

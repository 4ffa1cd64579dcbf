package scraper

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
)

const testBase = "https://www.facebook.com"

func mustRules(t *testing.T) *RuleBook {
	t.Helper()
	book, err := DefaultRules()
	if err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	return book
}

func mustResolver(t *testing.T, book *RuleBook) *Resolver {
	t.Helper()
	resolver, err := NewResolver(book)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return resolver
}

func testPage(t *testing.T, url, html string) *Page {
	t.Helper()
	page, err := Snapshot{URL: url, HTML: html}.Page(nil)
	if err != nil {
		t.Fatalf("Snapshot.Page: %v", err)
	}
	return page
}

func mustTarget(t *testing.T, raw string) Target {
	t.Helper()
	target, err := NormalizeTarget(raw, testBase)
	if err != nil {
		t.Fatalf("NormalizeTarget(%q): %v", raw, err)
	}
	return target
}

func testLimits() Limits {
	limits := DefaultLimits()
	limits.StableRounds = 2
	limits.SectionTimeout = 10 * time.Second
	limits.NavigationTimeout = time.Second
	return limits
}

// newTestExtractor wires an extractor to browser with zero pacing and a short
// checkpoint wait.
func newTestExtractor(t *testing.T, browser *ReplayBrowser, limits Limits) *Extractor {
	t.Helper()
	book := mustRules(t)
	detector := NewChallengeDetector(book)
	checkpoint := NewCheckpointResolver(browser, detector, CheckpointOptions{
		Wait:          50 * time.Millisecond,
		Poll:          10 * time.Millisecond,
		MaxChallenges: 3,
	}, nil)
	return &Extractor{
		Browser:    browser,
		Rules:      book,
		Resolver:   mustResolver(t, book),
		Checkpoint: checkpoint,
		Detector:   detector,
		Pacer:      NewPacer(ZeroPacing(), 1),
		Limits:     limits,
		Log:        DummyLogger{},
	}
}

type testFriend struct {
	Name, Slug, Bio string
}

func friendsHTML(friends ...testFriend) string {
	var b strings.Builder
	b.WriteString(`<html><head><title>Friends</title></head><body><div role="main"><div role="list">`)
	for _, f := range friends {
		fmt.Fprintf(&b, `<div role="listitem"><a role="link" href="%v/%v?__tn__=%%2CdC"><span dir="auto">%v</span></a>`, testBase, f.Slug, f.Name)
		if f.Bio != "" {
			fmt.Fprintf(&b, `<span dir="auto">%v</span>`, f.Bio)
		}
		b.WriteString(`<div aria-label="Add friend" role="button"><span>Add friend</span></div></div>`)
	}
	b.WriteString(`</div></div></body></html>`)
	return b.String()
}

const restrictedFriendsHTML = `<html><body><div role="main">
<h2>Friends</h2>
<span dir="auto">No friends to show</span>
</div></body></html>`

const challengeHTML = `<html><head><title>Security check</title></head><body>
<div role="dialog"><h2>Confirm your identity</h2>
<form><input name="code"><button>Continue</button></form></div>
</body></html>`

// timelineHTML has three posts by Mark Example; the first carries two comments and
// counters, the second a location and a tagged account, the third a photo.
const timelineHTML = `<html><head><title>Mark Example | Facebook</title></head><body>
<div role="main">
<h1>Mark Example</h1>
<div data-pagelet="ProfileTilesFeed_0"><span dir="auto">Builder of small things</span></div>
<div role="feed">

<div role="article" aria-posinset="1">
  <h2><a role="link" href="https://www.facebook.com/zuck"><strong><span>Mark Example</span></strong></a></h2>
  <a role="link" href="https://www.facebook.com/zuck/posts/1001?__cft__=AZX&amp;__tn__=%2CO"><span title="Monday, 1 January 2024 at 10:00">1 Jan</span></a>
  <div data-ad-comet-preview="message"><div dir="auto">First post about the trip to Lisbon</div></div>
  <span aria-label="1.2K reactions"></span>
  <span aria-label="2 comments"></span>
  <span>3 shares</span>
  <ul>
    <li><div role="article" aria-label="Comment by Alice Anderson">
      <a role="link" href="https://www.facebook.com/alice.a"><span dir="auto">Alice Anderson</span></a>
      <div dir="auto">Looks amazing, have fun!</div>
      <a href="https://www.facebook.com/zuck/posts/1001?comment_id=555&amp;__tn__=R">2h</a>
    </div></li>
    <li><div role="article" aria-label="Comment by Bob Brown">
      <a role="link" href="https://www.facebook.com/bob.b"><span dir="auto">Bob Brown</span></a>
      <div dir="auto">Take me with you next time</div>
      <a href="https://www.facebook.com/zuck/posts/1001?comment_id=556&amp;__tn__=R">1h</a>
    </div></li>
  </ul>
</div>

<div role="article" aria-posinset="2">
  <h2><a role="link" href="https://www.facebook.com/zuck"><strong><span>Mark Example</span></strong></a></h2>
  <a role="link" href="https://m.facebook.com/zuck/posts/1002"><span title="Sunday, 31 December 2023 at 18:00">31 Dec</span></a>
  <a href="https://www.facebook.com/places/Lisbon-Portugal/106">Lisbon, Portugal</a>
  <div data-ad-comet-preview="message"><div dir="auto">Dinner with an old friend</div></div>
  <a data-hovercard="/ajax/hovercard/user.php?id=4" href="https://www.facebook.com/carol.c?fref=tag">Carol Chen</a>
</div>

<div role="article" aria-posinset="3">
  <h2><a role="link" href="https://www.facebook.com/zuck"><strong><span>Mark Example</span></strong></a></h2>
  <a role="link" href="https://www.facebook.com/zuck/posts/1003"><span title="Saturday, 30 December 2023 at 09:00">30 Dec</span></a>
  <div data-ad-comet-preview="message"><div dir="auto">New camera, first shot</div></div>
  <img src="https://scontent.xx.fbcdn.net/v/t39/photo1.jpg?_nc_cat=1">
</div>

</div>
</div>
</body></html>`

const aboutHTML = `<html><head><title>Mark Example | Facebook</title></head><body>
<div role="main">
<h1>Mark Example</h1>
<div><span dir="auto">Works at Example Inc</span></div>
<div><span dir="auto">Studied at Harvard University</span></div>
<div><span dir="auto">Lives in Palo Alto, California</span></div>
<div><a href="mailto:mark@example.com">mark@example.com</a></div>
</div>
</body></html>`

func int64p(n int64) *int64 {
	return &n
}

var cmpSorted = cmpopts.SortSlices(func(a, b string) bool { return a < b })

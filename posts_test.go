package scraper

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func expectedTimeline() []Post {
	mark := "Mark Example"
	return []Post{
		{
			Entity:    Entity{Name: mark, URL: testBase + "/zuck/posts/1001", Bio: "First post about the trip to Lisbon"},
			Timestamp: "Monday, 1 January 2024 at 10:00",
			Tagged:    []TaggedAccount{},
			Comments: []Comment{
				{Entity{Name: "Alice Anderson", URL: testBase + "/zuck/posts/1001?comment_id=555", Bio: "Looks amazing, have fun!"}, "2h"},
				{Entity{Name: "Bob Brown", URL: testBase + "/zuck/posts/1001?comment_id=556", Bio: "Take me with you next time"}, "1h"},
			},
			Counters: Counters{Reactions: int64p(1200), Comments: int64p(2), Shares: int64p(3)},
		},
		{
			Entity:    Entity{Name: mark, URL: testBase + "/zuck/posts/1002", Bio: "Dinner with an old friend"},
			Timestamp: "Sunday, 31 December 2023 at 18:00",
			Location:  &Location{Entity{Name: "Lisbon, Portugal", URL: testBase + "/places/Lisbon-Portugal/106"}},
			Tagged:    []TaggedAccount{{Entity{Name: "Carol Chen", URL: testBase + "/carol.c"}}},
			Comments:  []Comment{},
		},
		{
			Entity:    Entity{Name: mark, URL: testBase + "/zuck/posts/1003", Bio: "New camera, first shot"},
			Timestamp: "Saturday, 30 December 2023 at 09:00",
			MediaURLs: []string{"https://scontent.xx.fbcdn.net/v/t39/photo1.jpg?_nc_cat=1"},
			Tagged:    []TaggedAccount{},
			Comments:  []Comment{},
		},
	}
}

func TestOwnPosts(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck": {timelineHTML}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.OwnPosts(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if section.Status != StatusComplete {
		t.Errorf("Status = %v (%v)", section.Status, section.Error)
	}
	if diff := cmp.Diff(expectedTimeline(), section.Items); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

// timelineBeforeRender is timelineHTML as first served: the first post's comments and
// counters have not been rendered yet.
func timelineBeforeRender() string {
	html := timelineHTML
	html = html[:strings.Index(html, "  <ul>")] + html[strings.Index(html, "</ul>")+len("</ul>"):]
	for _, counter := range []string{`<span aria-label="1.2K reactions"></span>`, `<span aria-label="2 comments"></span>`, `<span>3 shares</span>`} {
		html = strings.Replace(html, counter, "", 1)
	}
	return html
}

func TestOwnPostsCompletedOnLaterRounds(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck": {timelineBeforeRender(), timelineHTML}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.OwnPosts(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if section.Status != StatusComplete {
		t.Errorf("Status = %v (%v)", section.Status, section.Error)
	}
	if diff := cmp.Diff(expectedTimeline(), section.Items); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

func TestPostLimitsAcrossRounds(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck": {timelineBeforeRender(), timelineHTML}})
	limits := testLimits()
	limits.MaxCommentsPerPost = 1
	ex := newTestExtractor(t, browser, limits)

	section, err := ex.OwnPosts(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if comments := section.Items[0].Comments; len(comments) != 1 || comments[0].Name != "Alice Anderson" {
		t.Errorf("comments = %+v", comments)
	}
	if section.Items[0].Counters.Reactions == nil || *section.Items[0].Counters.Reactions != 1200 {
		t.Errorf("counters = %+v", section.Items[0].Counters)
	}
}

func TestPostLimits(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck": {timelineHTML}})
	limits := testLimits()
	limits.MaxCommentsPerPost = 1
	ex := newTestExtractor(t, browser, limits)

	section, err := ex.OwnPosts(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if len(section.Items) != 3 {
		t.Fatalf("%d posts", len(section.Items))
	}
	if comments := section.Items[0].Comments; len(comments) != 1 || comments[0].Name != "Alice Anderson" {
		t.Errorf("comments = %+v", comments)
	}
}

const photosOfHTML = `<html><body><div role="main">
<div role="article" aria-posinset="1">
  <h2><a role="link" href="https://www.facebook.com/carol.c"><strong><span>Carol Chen</span></strong></a></h2>
  <a role="link" href="https://www.facebook.com/photo/?fbid=8080&amp;set=a.1"><span title="Friday, 5 January 2024 at 20:00">5 Jan</span></a>
  <div data-ad-comet-preview="message"><div dir="auto">Reunion!</div></div>
  <a data-hovercard="/ajax/hovercard/user.php?id=1" href="https://www.facebook.com/zuck">Mark Example</a>
  <img src="https://scontent.xx.fbcdn.net/v/t39/reunion.jpg">
</div>
<div role="article" aria-posinset="2">
  <span>Sponsored</span>
</div>
</div></body></html>`

func TestTaggedPosts(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck/photos_of": {photosOfHTML}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.TaggedPosts(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	expected := []Post{{
		Entity:    Entity{Name: "Carol Chen", URL: testBase + "/photo?fbid=8080&set=a.1", Bio: "Reunion!"},
		Timestamp: "Friday, 5 January 2024 at 20:00",
		MediaURLs: []string{"https://scontent.xx.fbcdn.net/v/t39/reunion.jpg"},
		Tagged:    []TaggedAccount{{Entity{Name: "Mark Example", URL: testBase + "/zuck"}}},
		Comments:  []Comment{},
	}}
	if diff := cmp.Diff(expected, section.Items); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
	// the sponsored card has nothing to key it by
	if section.Status != StatusPartial || section.Omitted != 1 {
		t.Errorf("section = %v, omitted %v", section.Status, section.Omitted)
	}
}

func TestProfile(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{
		testBase + "/zuck":       {timelineHTML},
		testBase + "/zuck/about": {aboutHTML},
	})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.Profile(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	expected := ProfileSection{
		Status: StatusComplete,
		Data: &Profile{
			Entity:      Entity{Name: "Mark Example", URL: testBase + "/zuck", Bio: "Builder of small things"},
			Work:        "Example Inc",
			Education:   "Harvard University",
			CurrentCity: "Palo Alto, California",
			Email:       "mark@example.com",
		},
		Missing: []string{"hometown", "birthday", "phone"},
	}
	if diff := cmp.Diff(expected, section); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

func TestProfileAboutUnavailable(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck": {timelineHTML}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.Profile(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if section.Status != StatusPartial || section.Data == nil || section.Data.Name != "Mark Example" || section.Error == "" {
		t.Errorf("section = %+v", section)
	}
}

func TestProfileRestricted(t *testing.T) {
	restricted := `<html><body><div role="main"><h2>This content isn't available right now</h2></div></body></html>`
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck": {restricted}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.Profile(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(ProfileSection{Status: StatusPrivacyRestricted}, section); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

func TestProfileMissingName(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{
		testBase + "/zuck":       {`<html><body><div role="main"><div>nothing here</div></div></body></html>`},
		testBase + "/zuck/about": {`<html><body></body></html>`},
	})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.Profile(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	if section.Status != StatusPartial || len(section.Missing) == 0 || section.Missing[0] != "name" {
		t.Errorf("section = %+v", section)
	}
}

const activityHTML = `<html><body><div role="main">
<div role="listitem">
  <span dir="auto">Mark Example commented on Alice Anderson's post.</span>
  <div dir="auto">Congrats on the new job!</div>
  <a href="https://www.facebook.com/alice.a/posts/77?comment_id=901&amp;__cft__=x">View</a>
  <abbr>Yesterday</abbr>
</div>
<div role="listitem">
  <span dir="auto">Mark Example likes Bob Brown's photo.</span>
  <a href="https://www.facebook.com/bob.b/posts/88">View</a>
</div>
<div role="listitem">
  <span dir="auto">Mark Example replied to Carol Chen's comment.</span>
  <div dir="auto">Same here</div>
</div>
</div></body></html>`

func TestCommentsByUser(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck/allactivity": {activityHTML}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.CommentsByUser(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	expected := []UserComment{
		{Entity{Name: "Mark Example commented on Alice Anderson's post.", URL: testBase + "/alice.a/posts/77?comment_id=901", Bio: "Congrats on the new job!"}, "Yesterday"},
		{Entity{Name: "Mark Example replied to Carol Chen's comment.", Bio: "Same here"}, ""},
	}
	if diff := cmp.Diff(expected, section.Items); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
	if section.Status != StatusComplete {
		t.Errorf("Status = %v", section.Status)
	}
	if visited := browser.Stats().Visited; len(visited) != 1 || visited[0] != testBase+"/zuck/allactivity?category_key=COMMENTSCLUSTER" {
		t.Errorf("visited %v", visited)
	}
}

const mapHTML = `<html><body><div role="main">
<a href="https://www.facebook.com/places/Lisbon-Portugal/106"><span dir="auto">Lisbon, Portugal</span></a>
<a href="/places/Paris-France/107?ref=map"><span dir="auto">Paris, France</span></a>
<a href="https://www.facebook.com/places/Lisbon-Portugal/106/"><span dir="auto">Lisbon</span></a>
</div></body></html>`

func TestLocations(t *testing.T) {
	browser := NewReplayBrowser(map[string][]string{testBase + "/zuck/map": {mapHTML}})
	ex := newTestExtractor(t, browser, testLimits())

	section, err := ex.Locations(context.Background(), mustTarget(t, "zuck"))
	if err != nil {
		t.Fatal(err)
	}
	expected := Section[Location]{
		Status: StatusComplete,
		Items: []Location{
			{Entity{Name: "Lisbon, Portugal", URL: testBase + "/places/Lisbon-Portugal/106"}},
			{Entity{Name: "Paris, France", URL: testBase + "/places/Paris-France/107"}},
		},
		Rounds: 3,
	}
	if diff := cmp.Diff(expected, section); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}
}

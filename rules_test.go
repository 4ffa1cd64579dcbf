package scraper

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRules(t *testing.T) {
	book := mustRules(t)

	for _, field := range []string{
		"login.authenticated", "profile.name", "post.container", "post.url",
		"comment.container", "connection.item", "activity.item", "location.item",
	} {
		if len(book.Field(field)) == 0 {
			t.Errorf("no rules for %v", field)
		}
	}
	if len(book.Challenges) == 0 || len(book.Restricted) == 0 {
		t.Error("signatures missing")
	}
	if rules := book.Field("friends.name", "connection.name"); len(rules) == 0 {
		t.Error("fallback field not used")
	}
}

func TestLoadRulesOverlay(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "rules.yaml")
	overlay := "\ufeff" + `
fields:
  profile.name:
    - selector: 'div.name'
vocabulary:
  boost post: chrome
challenges:
  - name: custom
    phrases: [please wait]
`
	if err := os.WriteFile(filename, []byte(overlay), 0644); err != nil {
		t.Fatal(err)
	}

	book, err := LoadRules(filename)
	if err != nil {
		t.Fatal(err)
	}
	defaults := mustRules(t)

	if rules := book.Field("profile.name"); len(rules) != 1 || rules[0].Selector != "div.name" {
		t.Errorf("profile.name = %+v", rules)
	}
	if len(book.Field("post.url")) != len(defaults.Field("post.url")) {
		t.Error("untouched fields should keep their default chains")
	}
	if book.Vocabulary["boost post"] != "chrome" || book.Vocabulary["like"] != "chrome" {
		t.Error("vocabulary not merged")
	}
	if len(book.Challenges) != len(defaults.Challenges)+1 {
		t.Errorf("challenges = %v", len(book.Challenges))
	}
}

func TestLoadRulesErrors(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file should fail")
	}

	filename := filepath.Join(t.TempDir(), "bad.yaml")
	bad := "fields:\n  x:\n    - selector: a\n      pattern: '('\n"
	if err := os.WriteFile(filename, []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(filename); err == nil {
		t.Error("invalid pattern should fail")
	}
}

package scraper

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	filename := filepath.Join(dir, name)
	if err := os.WriteFile(filename, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return filename
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "socialscraper.yaml"), false)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(DefaultConfig(), config); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}

	config, err = LoadConfig("", false)
	if err != nil || config.Limits.StableRounds != 3 {
		t.Errorf("LoadConfig(\"\") = %+v, %v", config.Limits, err)
	}
}

func TestLoadConfigRequired(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), true)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	filename := writeConfig(t, dir, "socialscraper.yaml", "\ufeff"+`
session:
  dir: /var/lib/socialscraper
  headless: true
pacing:
  click: {min: 1s, max: 2s}
limits:
  max_items: 200
  section_timeout: 30m
proxy:
  endpoints: [10.0.0.1:3128]
sections: [profile, friends]
`)
	writeConfig(t, dir, "socialscraper.local.yaml", `
limits:
  max_items: 10
checkpoint:
  wait: 2m
`)

	config, err := LoadConfig(filename, true)
	if err != nil {
		t.Fatal(err)
	}
	defaults := DefaultConfig()

	expected := defaults
	expected.Session.Dir = "/var/lib/socialscraper"
	expected.Session.Headless = true
	expected.Pacing.Click = Bounds{time.Second, 2 * time.Second}
	expected.Limits.MaxItems = 10
	expected.Limits.SectionTimeout = 30 * time.Minute
	expected.Checkpoint.Wait = 2 * time.Minute
	expected.Proxy.Endpoints = []string{"10.0.0.1:3128"}
	expected.Sections = []string{SectionProfile, SectionFriends}
	if diff := cmp.Diff(expected, config); diff != "" {
		t.Errorf("(-expected +got)\n%v", diff)
	}

	if pool := config.ProxyPool(nil); pool == nil || len(pool.Alive()) != 1 {
		t.Errorf("ProxyPool = %v", pool)
	}
	if pool := defaults.ProxyPool(nil); pool != nil {
		t.Error("no proxies configured, but a pool was built")
	}
	if options := config.SessionOptions(nil); options.Dir != "/var/lib/socialscraper" || !options.Headless || options.NavigationTimeout != DefaultTimeout {
		t.Errorf("SessionOptions = %+v", options)
	}
	if options := config.CheckpointOptions(); options.Wait != 2*time.Minute || options.ScreenshotDir != "screenshots" {
		t.Errorf("CheckpointOptions = %+v", options)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown field", "sesion:\n  dir: x\n"},
		{"unknown section", "sections: [profile, stories]\n"},
		{"inverted bounds", "pacing:\n  hover: {min: 2s, max: 1s}\n"},
		{"bad duration", "checkpoint:\n  wait: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filename := writeConfig(t, t.TempDir(), "config.yaml", tt.body)
			if _, err := LoadConfig(filename, true); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestLocalName(t *testing.T) {
	if got := localName("conf/socialscraper.yaml"); got != "conf/socialscraper.local.yaml" {
		t.Errorf("localName = %v", got)
	}
}

func TestConfigRuleBook(t *testing.T) {
	config := DefaultConfig()
	book, err := config.LoadRuleBook()
	if err != nil || len(book.Fields) == 0 {
		t.Fatalf("LoadRuleBook = %v", err)
	}

	config.Rules = writeConfig(t, t.TempDir(), "rules.yaml", "vocabulary:\n  boost post: chrome\n")
	book, err = config.LoadRuleBook()
	if err != nil || book.Vocabulary["boost post"] != "chrome" {
		t.Errorf("LoadRuleBook with overlay = %v", err)
	}
}

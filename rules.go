package scraper

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/dimchansky/utfbom"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Rule is one candidate way of locating a semantic field.
type Rule struct {
	Selector    string   `yaml:"selector"`
	Attr        string   `yaml:"attr,omitempty"`         // if nonempty, reads the attribute instead of the text
	Pattern     string   `yaml:"pattern,omitempty"`      // must match; the first capture group, if any, becomes the value
	Prefixes    []string `yaml:"prefixes,omitempty"`     // text must start with one of these labels, which are stripped
	MinLen      int      `yaml:"min_len,omitempty"`      // in runes, after normalization
	MaxLen      int      `yaml:"max_len,omitempty"`      // 0 = unbounded
	AllowChrome bool     `yaml:"allow_chrome,omitempty"` // skip the content-vs-chrome classifier

	re       *regexp.Regexp
	prefixes []string
}

type RuleSet []Rule

// ChallengeSignature describes one family of interactive checkpoints.
type ChallengeSignature struct {
	Name        string   `yaml:"name"`
	Phrases     []string `yaml:"phrases"`
	URLContains []string `yaml:"url_contains"`
	Selectors   []string `yaml:"selectors"`
}

// RuleBook is the whole data-driven description of the target site's markup.
type RuleBook struct {
	Fields          map[string]RuleSet   `yaml:"fields"`
	Vocabulary      map[string]string    `yaml:"vocabulary"`
	ChromePatterns  []string             `yaml:"chrome_patterns"`
	ChallengeScope  string               `yaml:"challenge_scope"`
	Challenges      []ChallengeSignature `yaml:"challenges"`
	RestrictedScope string               `yaml:"restricted_scope"`
	Restricted      []string             `yaml:"restricted"`
}

// DefaultRules returns the embedded rule book.
func DefaultRules() (*RuleBook, error) {
	return ParseRules(bytes.NewReader(defaultRules))
}

// LoadRules reads a rule book from filename and lays it over the embedded defaults:
// fields present in the file replace the default chains, vocabulary entries are added,
// and signature lists are appended.
func LoadRules(filename string) (*RuleBook, error) {
	book, err := DefaultRules()
	if err != nil {
		return nil, err
	}
	if filename == "" {
		return book, nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	overlay, err := ParseRules(f)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	book.merge(overlay)
	return book, nil
}

func ParseRules(r io.Reader) (*RuleBook, error) {
	var book RuleBook
	if err := yaml.NewDecoder(utfbom.SkipOnly(r)).Decode(&book); err != nil && err != io.EOF {
		return nil, err
	}
	if err := book.compile(); err != nil {
		return nil, err
	}
	return &book, nil
}

func (book *RuleBook) compile() error {
	for name, rules := range book.Fields {
		for i := range rules {
			rule := &rules[i]
			if rule.Pattern != "" {
				re, err := regexp.Compile(rule.Pattern)
				if err != nil {
					return fmt.Errorf("field %v rule #%d: %w", name, i, err)
				}
				rule.re = re
			}
			rule.prefixes = make([]string, len(rule.Prefixes))
			for j, prefix := range rule.Prefixes {
				rule.prefixes[j] = FoldText(prefix)
			}
		}
	}
	for _, pattern := range book.ChromePatterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return fmt.Errorf("chrome pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (book *RuleBook) merge(overlay *RuleBook) {
	if book.Fields == nil {
		book.Fields = map[string]RuleSet{}
	}
	for name, rules := range overlay.Fields {
		book.Fields[name] = rules
	}
	if book.Vocabulary == nil {
		book.Vocabulary = map[string]string{}
	}
	for phrase, class := range overlay.Vocabulary {
		book.Vocabulary[phrase] = class
	}
	book.ChromePatterns = append(book.ChromePatterns, overlay.ChromePatterns...)
	book.Challenges = append(book.Challenges, overlay.Challenges...)
	book.Restricted = append(book.Restricted, overlay.Restricted...)
	if overlay.ChallengeScope != "" {
		book.ChallengeScope = overlay.ChallengeScope
	}
	if overlay.RestrictedScope != "" {
		book.RestrictedScope = overlay.RestrictedScope
	}
}

// Field returns the rule chain for name, or for the first fallback name that has one.
func (book *RuleBook) Field(name string, fallbacks ...string) RuleSet {
	if rules, ok := book.Fields[name]; ok {
		return rules
	}
	for _, fallback := range fallbacks {
		if rules, ok := book.Fields[fallback]; ok {
			return rules
		}
	}
	return nil
}

package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

type TextClass int

const (
	ClassContent TextClass = iota
	ClassChrome
)

func (class TextClass) String() string {
	if class == ClassChrome {
		return "chrome"
	}
	return "content"
}

func parseTextClass(s string) (TextClass, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chrome":
		return ClassChrome, nil
	case "content":
		return ClassContent, nil
	}
	return ClassContent, fmt.Errorf("unknown text class %q", s)
}

// minimum phrase length (runes) for a one-edit fuzzy match against the chrome vocabulary
const fuzzyMinLen = 5

var chromeSeparators = regexp.MustCompile(`\s*[·•|\n]\s*`)

// ChromeClassifier tells interface labels ("Like", "See more", "3h") apart from content.
// Phrases are looked up after NormalizeText and case folding; the vocabulary can be
// extended at runtime with Add.
type ChromeClassifier struct {
	mu       sync.RWMutex
	vocab    map[string]TextClass
	chrome   []string // folded chrome phrases eligible for fuzzy matching
	patterns []*regexp.Regexp
}

func NewChromeClassifier(vocabulary map[string]string, patterns []string) (*ChromeClassifier, error) {
	classifier := &ChromeClassifier{vocab: map[string]TextClass{}}
	for phrase, name := range vocabulary {
		class, err := parseTextClass(name)
		if err != nil {
			return nil, fmt.Errorf("vocabulary %q: %w", phrase, err)
		}
		classifier.Add(phrase, class)
	}
	for _, pattern := range patterns {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, err
		}
		classifier.patterns = append(classifier.patterns, re)
	}
	return classifier, nil
}

// Add registers or reclassifies a phrase.
func (classifier *ChromeClassifier) Add(phrase string, class TextClass) {
	key := FoldText(phrase)
	if key == "" {
		return
	}
	classifier.mu.Lock()
	defer classifier.mu.Unlock()
	classifier.vocab[key] = class
	classifier.chrome = classifier.chrome[:0]
	for p, c := range classifier.vocab {
		if c == ClassChrome && utf8.RuneCountInString(p) >= fuzzyMinLen {
			classifier.chrome = append(classifier.chrome, p)
		}
	}
}

func (classifier *ChromeClassifier) Classify(text string) TextClass {
	key := FoldText(text)
	if key == "" {
		return ClassChrome
	}

	classifier.mu.RLock()
	defer classifier.mu.RUnlock()
	if class, ok := classifier.vocab[key]; ok {
		return class
	}
	if classifier.chromeLocked(key) {
		return ClassChrome
	}

	// "Like · Reply · 3h" is chrome only if every part is
	parts := chromeSeparators.Split(key, -1)
	if len(parts) > 1 {
		for _, part := range parts {
			if part == "" {
				continue
			}
			if class, ok := classifier.vocab[part]; ok && class == ClassChrome {
				continue
			}
			if !classifier.chromeLocked(part) {
				return ClassContent
			}
		}
		return ClassChrome
	}
	return ClassContent
}

func (classifier *ChromeClassifier) chromeLocked(key string) bool {
	for _, re := range classifier.patterns {
		if re.MatchString(key) {
			return true
		}
	}
	n := utf8.RuneCountInString(key)
	if n < fuzzyMinLen || n > 40 {
		return false
	}
	for _, phrase := range classifier.chrome {
		m := utf8.RuneCountInString(phrase)
		if m-n > 1 || n-m > 1 {
			continue
		}
		if matchr.Levenshtein(key, phrase) <= 1 {
			return true
		}
	}
	return false
}

func (classifier *ChromeClassifier) IsChrome(text string) bool {
	return classifier.Classify(text) == ClassChrome
}

// Best drops chrome candidates and returns the longest remaining one; on equal length
// the earlier candidate wins.
func (classifier *ChromeClassifier) Best(candidates []string) (string, bool) {
	best, found := "", false
	for _, candidate := range candidates {
		if classifier.IsChrome(candidate) {
			continue
		}
		if !found || utf8.RuneCountInString(candidate) > utf8.RuneCountInString(best) {
			best, found = candidate, true
		}
	}
	return best, found
}

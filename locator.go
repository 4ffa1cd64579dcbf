package scraper

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// ExtractionAttempt records which rule produced a field's value. It exists for
// diagnostics only and is never written to results.
type ExtractionAttempt struct {
	Field     string
	RuleIndex int
	Text      string
}

// Resolver evaluates ordered rule chains against a document scope. It holds no
// per-call state and may be shared.
type Resolver struct {
	Classifier *ChromeClassifier
	Trace      func(ExtractionAttempt) // optional
}

func NewResolver(book *RuleBook) (*Resolver, error) {
	classifier, err := NewChromeClassifier(book.Vocabulary, book.ChromePatterns)
	if err != nil {
		return nil, err
	}
	return &Resolver{Classifier: classifier}, nil
}

func ruleScope(scope *goquery.Selection, rule Rule) *goquery.Selection {
	if strings.TrimSpace(rule.Selector) == "" {
		return scope
	}
	return scope.Find(rule.Selector)
}

// candidate extracts and validates one node's value under rule.
func (resolver *Resolver) candidate(node *goquery.Selection, rule Rule) (string, bool) {
	var raw string
	if rule.Attr != "" {
		v, ok := node.Attr(rule.Attr)
		if !ok {
			return "", false
		}
		raw = v
	} else {
		raw = node.Text()
	}
	text := NormalizeText(raw)

	if len(rule.prefixes) > 0 {
		stripped, ok := stripLabel(text, rule.prefixes)
		if !ok {
			return "", false
		}
		text = stripped
	}

	if rule.re != nil {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			text = NormalizeText(m[1])
		}
	}

	if text == "" {
		return "", false
	}
	n := utf8.RuneCountInString(text)
	if n < rule.MinLen || (rule.MaxLen > 0 && n > rule.MaxLen) {
		return "", false
	}
	if rule.Attr == "" && !rule.AllowChrome && resolver.Classifier != nil && resolver.Classifier.IsChrome(text) {
		return "", false
	}
	return text, true
}

// stripLabel removes a leading label such as "Lives in" and the separator after it.
func stripLabel(text string, folded []string) (string, bool) {
	key := FoldText(text)
	for _, prefix := range folded {
		if prefix == "" || !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if rest != "" && !strings.ContainsAny(rest[:1], " :") {
			continue
		}
		// folding may change byte lengths, so cut by rune count on the original
		cut := utf8.RuneCountInString(prefix)
		runes := []rune(text)
		if cut > len(runes) {
			continue
		}
		return strings.TrimLeft(string(runes[cut:]), " :"), true
	}
	return "", false
}

// Resolve walks rules in order and returns the value from the first rule that has at
// least one validated candidate. When a rule matches several nodes the longest valid
// text is taken. Not finding anything is not an error.
func (resolver *Resolver) Resolve(scope *goquery.Selection, field string, rules RuleSet) (ExtractionAttempt, bool) {
	for i, rule := range rules {
		var candidates []string
		ruleScope(scope, rule).Each(func(_ int, node *goquery.Selection) {
			if text, ok := resolver.candidate(node, rule); ok {
				candidates = append(candidates, text)
			}
		})
		if len(candidates) == 0 {
			continue
		}
		best := candidates[0]
		for _, c := range candidates[1:] {
			if utf8.RuneCountInString(c) > utf8.RuneCountInString(best) {
				best = c
			}
		}
		attempt := ExtractionAttempt{Field: field, RuleIndex: i, Text: best}
		resolver.trace(attempt)
		return attempt, true
	}
	return ExtractionAttempt{Field: field, RuleIndex: -1}, false
}

// ResolveText is Resolve returning only the value.
func (resolver *Resolver) ResolveText(scope *goquery.Selection, field string, rules RuleSet) (string, bool) {
	attempt, ok := resolver.Resolve(scope, field, rules)
	return attempt.Text, ok
}

// Require is Resolve for mandatory fields.
func (resolver *Resolver) Require(scope *goquery.Selection, field string, rules RuleSet) (string, error) {
	attempt, ok := resolver.Resolve(scope, field, rules)
	if !ok {
		return "", ExtractionExhaustedError{Field: field, Rules: len(rules)}
	}
	return attempt.Text, nil
}

// Item is one element matched by a list rule.
type Item struct {
	Node *goquery.Selection
	Text string
}

// ResolveAll returns every validated candidate, in document order, from the first rule
// that has any. Used for repeated fields such as tagged accounts.
func (resolver *Resolver) ResolveAll(scope *goquery.Selection, field string, rules RuleSet) []Item {
	for i, rule := range rules {
		var items []Item
		ruleScope(scope, rule).Each(func(_ int, node *goquery.Selection) {
			if text, ok := resolver.candidate(node, rule); ok {
				items = append(items, Item{Node: node, Text: text})
			}
		})
		if len(items) > 0 {
			resolver.trace(ExtractionAttempt{Field: field, RuleIndex: i, Text: items[0].Text})
			return items
		}
	}
	return nil
}

// ResolveNodes returns the outermost nodes matched by the first rule matching anything.
// It checks presence only; no text validation is applied.
func (resolver *Resolver) ResolveNodes(scope *goquery.Selection, field string, rules RuleSet) (*goquery.Selection, int) {
	for i, rule := range rules {
		nodes := ruleScope(scope, rule)
		if nodes.Length() == 0 {
			continue
		}
		outer := nodes.FilterFunction(func(_ int, node *goquery.Selection) bool {
			return node.ParentsUntilSelection(scope).FilterSelection(nodes).Length() == 0
		})
		resolver.trace(ExtractionAttempt{Field: field, RuleIndex: i})
		return outer, i
	}
	return nil, -1
}

func (resolver *Resolver) trace(attempt ExtractionAttempt) {
	if resolver.Trace != nil {
		resolver.Trace(attempt)
	}
}

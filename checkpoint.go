package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

type CheckpointState int

const (
	CheckpointNormal CheckpointState = iota
	CheckpointChallengeDetected
	CheckpointAwaitingManualResolution
	CheckpointResumed
	CheckpointFailed
)

func (state CheckpointState) String() string {
	switch state {
	case CheckpointNormal:
		return "Normal"
	case CheckpointChallengeDetected:
		return "ChallengeDetected"
	case CheckpointAwaitingManualResolution:
		return "AwaitingManualResolution"
	case CheckpointResumed:
		return "Resumed"
	case CheckpointFailed:
		return "Failed"
	}
	return fmt.Sprintf("CheckpointState(%d)", int(state))
}

// nodes longer than this are page content, not a challenge banner
const maxSignatureNodeLen = 300

// Detection describes a matched challenge signature.
type Detection struct {
	Signature string
	Evidence  string
}

// ChallengeDetector matches pages against challenge and access-denied signatures.
// Phrases are compared after NFKC normalization and case folding, so one list covers
// every locale that was added to the rule book.
type ChallengeDetector struct {
	signatures      []ChallengeSignature
	folded          [][]string
	scope           string
	restricted      []string
	restrictedScope string
}

func NewChallengeDetector(book *RuleBook) *ChallengeDetector {
	detector := &ChallengeDetector{
		signatures:      book.Challenges,
		scope:           book.ChallengeScope,
		restrictedScope: book.RestrictedScope,
	}
	if detector.scope == "" {
		detector.scope = "title, h1, h2, h3, [role=dialog], [role=alert], form"
	}
	if detector.restrictedScope == "" {
		detector.restrictedScope = "h1, h2, h3, [role=alert]"
	}
	for _, signature := range book.Challenges {
		phrases := make([]string, 0, len(signature.Phrases))
		for _, phrase := range signature.Phrases {
			phrases = append(phrases, FoldText(phrase))
		}
		detector.folded = append(detector.folded, phrases)
	}
	for _, phrase := range book.Restricted {
		detector.restricted = append(detector.restricted, FoldText(phrase))
	}
	return detector
}

func scopedTexts(page *Page, scope string) []string {
	var texts []string
	page.Find(scope).Each(func(_ int, s *goquery.Selection) {
		text := FoldText(s.Text())
		if text != "" && utf8.RuneCountInString(text) <= maxSignatureNodeLen {
			texts = append(texts, text)
		}
	})
	return texts
}

// Detect reports the first challenge signature present on page.
func (detector *ChallengeDetector) Detect(page *Page) (Detection, bool) {
	pageURL := ""
	if page.Url != nil {
		pageURL = strings.ToLower(page.Url.String())
	}
	texts := scopedTexts(page, detector.scope)

	for i, signature := range detector.signatures {
		for _, fragment := range signature.URLContains {
			if fragment != "" && strings.Contains(pageURL, strings.ToLower(fragment)) {
				return Detection{signature.Name, "url contains " + fragment}, true
			}
		}
		for _, selector := range signature.Selectors {
			if page.Find(selector).Length() > 0 {
				return Detection{signature.Name, "element " + selector}, true
			}
		}
		for _, phrase := range detector.folded[i] {
			for _, text := range texts {
				if phrase != "" && strings.Contains(text, phrase) {
					return Detection{signature.Name, fmt.Sprintf("text %q", phrase)}, true
				}
			}
		}
	}
	return Detection{}, false
}

// Restricted reports whether the page says its content is not available to us.
func (detector *ChallengeDetector) Restricted(page *Page) (string, bool) {
	for _, text := range scopedTexts(page, detector.restrictedScope) {
		for _, phrase := range detector.restricted {
			if phrase != "" && strings.Contains(text, phrase) {
				return phrase, true
			}
		}
	}
	return "", false
}

type CheckpointOptions struct {
	Wait          time.Duration // how long to wait for the operator before giving up
	Poll          time.Duration // how often the page is re-inspected while waiting
	MaxChallenges int           // per run; 0 = unlimited
	ScreenshotDir string        // if nonempty, a screenshot is saved on detection
}

func DefaultCheckpointOptions() CheckpointOptions {
	return CheckpointOptions{
		Wait:          10 * time.Minute,
		Poll:          5 * time.Second,
		MaxChallenges: 3,
	}
}

type Transition struct {
	From      CheckpointState
	To        CheckpointState
	Signature string
	Reason    string
	At        time.Time
}

// CheckpointResolver runs the challenge state machine after every navigation:
//
//	Normal -> ChallengeDetected -> AwaitingManualResolution -> Resumed -> Normal
//	                                                           Resumed -> Failed
//
// While awaiting resolution it blocks until the signature disappears, an operator
// resume signal arrives, or the wait window elapses.
type CheckpointResolver struct {
	Options  CheckpointOptions
	Detector *ChallengeDetector
	Browser  Browser
	Resume   <-chan struct{} // operator "proceed"; nil means no operator
	Log      Logger

	// OnTransition is called synchronously after each state change.
	OnTransition func(Transition)

	mu         sync.Mutex
	state      CheckpointState
	history    []Transition
	challenges int
}

func NewCheckpointResolver(browser Browser, detector *ChallengeDetector, options CheckpointOptions, log Logger) *CheckpointResolver {
	if log == nil {
		log = DummyLogger{}
	}
	return &CheckpointResolver{
		Options:  options,
		Detector: detector,
		Browser:  browser,
		Log:      log,
	}
}

func (resolver *CheckpointResolver) State() CheckpointState {
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	return resolver.state
}

func (resolver *CheckpointResolver) History() []Transition {
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	return append([]Transition(nil), resolver.history...)
}

func (resolver *CheckpointResolver) Challenges() int {
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	return resolver.challenges
}

func (resolver *CheckpointResolver) transition(to CheckpointState, signature, reason string) {
	resolver.mu.Lock()
	t := Transition{From: resolver.state, To: to, Signature: signature, Reason: reason, At: time.Now()}
	resolver.state = to
	resolver.history = append(resolver.history, t)
	hook := resolver.OnTransition
	resolver.mu.Unlock()

	resolver.Log.Printf("checkpoint: %v -> %v (%v) %v", t.From, t.To, signature, reason)
	if hook != nil {
		hook(t)
	}
}

func (resolver *CheckpointResolver) current(ctx context.Context) (*Page, error) {
	snapshot, err := resolver.Browser.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Page(resolver.Log)
}

// Inspect examines the current page. With no challenge it returns the page at once.
// Otherwise it suspends until the challenge is resolved and returns the page as it is
// after resolution, or returns ChallengeTimeoutError once the wait window has elapsed
// with the challenge still present.
func (resolver *CheckpointResolver) Inspect(ctx context.Context) (*Page, error) {
	page, err := resolver.current(ctx)
	if err != nil {
		return nil, err
	}
	detection, found := resolver.Detector.Detect(page)
	if !found {
		return page, nil
	}

	resolver.mu.Lock()
	resolver.challenges++
	count := resolver.challenges
	resolver.mu.Unlock()

	resolver.transition(CheckpointChallengeDetected, detection.Signature, detection.Evidence)
	if limit := resolver.Options.MaxChallenges; limit > 0 && count > limit {
		resolver.transition(CheckpointFailed, detection.Signature, "too many challenges in one run")
		return page, TooManyChallengesError{count}
	}
	resolver.screenshot(ctx, detection.Signature)

	resolver.transition(CheckpointAwaitingManualResolution, detection.Signature,
		fmt.Sprintf("waiting up to %v for the challenge to be solved in the browser", resolver.Options.Wait))
	return resolver.await(ctx, detection)
}

func (resolver *CheckpointResolver) await(ctx context.Context, detection Detection) (*Page, error) {
	started := time.Now()
	poll := resolver.Options.Poll
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	deadline := time.NewTimer(resolver.Options.Wait)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				resolver.transition(CheckpointFailed, detection.Signature, "deadline reached while waiting")
				return nil, ChallengeTimeoutError{Signature: detection.Signature, Waited: time.Since(started)}
			}
			return nil, ctx.Err()

		case <-resolver.Resume:
			resolver.transition(CheckpointResumed, detection.Signature, "operator signal")
			page, err := resolver.current(ctx)
			if err != nil {
				return nil, err
			}
			resolver.transition(CheckpointNormal, detection.Signature, "")
			return page, nil

		case <-ticker.C:
			page, err := resolver.current(ctx)
			if err != nil {
				resolver.Log.Printf("checkpoint: re-inspection failed: %v", err)
				continue
			}
			if _, still := resolver.Detector.Detect(page); !still {
				resolver.transition(CheckpointResumed, detection.Signature, "signature cleared")
				resolver.transition(CheckpointNormal, detection.Signature, "")
				return page, nil
			}

		case <-deadline.C:
			resolver.transition(CheckpointResumed, detection.Signature, "wait window elapsed")
			page, err := resolver.current(ctx)
			if err != nil {
				return nil, err
			}
			if _, still := resolver.Detector.Detect(page); still {
				resolver.transition(CheckpointFailed, detection.Signature, "signature still present")
				return page, ChallengeTimeoutError{Signature: detection.Signature, Waited: time.Since(started)}
			}
			resolver.transition(CheckpointNormal, detection.Signature, "")
			return page, nil
		}
	}
}

func (resolver *CheckpointResolver) screenshot(ctx context.Context, signature string) {
	dir := resolver.Options.ScreenshotDir
	if dir == "" {
		return
	}
	buf, err := resolver.Browser.Screenshot(ctx)
	if err != nil {
		resolver.Log.Printf("checkpoint: screenshot failed: %v", err)
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		resolver.Log.Printf("checkpoint: %v", err)
		return
	}
	filename := filepath.Join(dir, fmt.Sprintf("challenge_%v_%v.png", signature, time.Now().Format("20060102_150405")))
	if err := os.WriteFile(filename, buf, 0644); err != nil {
		resolver.Log.Printf("checkpoint: %v", err)
		return
	}
	resolver.Log.Printf("checkpoint: screenshot saved to %v", filename)
}

// Reset clears the failed state and the challenge count, for a new run on the same browser.
func (resolver *CheckpointResolver) Reset() {
	resolver.mu.Lock()
	defer resolver.mu.Unlock()
	resolver.state = CheckpointNormal
	resolver.challenges = 0
	resolver.history = nil
}

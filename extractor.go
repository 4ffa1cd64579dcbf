package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Limits bound how much work one section may do.
type Limits struct {
	StableRounds       int           `yaml:"stable_rounds"` // rounds without new entities before a list is considered exhausted
	MaxItems           int           `yaml:"max_items"`
	MaxRounds          int           `yaml:"max_rounds"`
	SectionTimeout     time.Duration `yaml:"section_timeout"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout"`
	MaxCommentsPerPost int           `yaml:"max_comments_per_post"`
	MaxTaggedPerPost   int           `yaml:"max_tagged_per_post"`
}

func DefaultLimits() Limits {
	return Limits{
		StableRounds:       3,
		MaxItems:           50,
		MaxRounds:          40,
		SectionTimeout:     15 * time.Minute,
		NavigationTimeout:  DefaultTimeout,
		MaxCommentsPerPost: 20,
		MaxTaggedPerPost:   20,
	}
}

// Extractor runs section extractions against one browser. It is not safe for concurrent
// use: every section owns the page for as long as it runs.
type Extractor struct {
	Browser    Browser
	Rules      *RuleBook
	Resolver   *Resolver
	Checkpoint *CheckpointResolver // nil disables challenge handling
	Detector   *ChallengeDetector
	Pacer      *Pacer
	Limits     Limits
	Log        Logger

	// Navigate replaces Browser.Navigate, e.g. with Session.Navigate. Optional.
	Navigate func(ctx context.Context, url string) error
}

// NewExtractor builds an extractor that drives session's browser.
func NewExtractor(session *Session, checkpoint *CheckpointResolver, pacer *Pacer, limits Limits) *Extractor {
	return &Extractor{
		Browser:    session.Browser(),
		Rules:      session.Rules(),
		Resolver:   session.Resolver(),
		Checkpoint: checkpoint,
		Detector:   NewChallengeDetector(session.Rules()),
		Pacer:      pacer,
		Limits:     limits,
		Log:        session.Log,
		Navigate:   session.Navigate,
	}
}

func (ex *Extractor) navigate(ctx context.Context, url string) error {
	if ex.Navigate != nil {
		return ex.Navigate(ctx, url)
	}
	timeout := ex.Limits.NavigationTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := ex.Browser.Navigate(nctx, url)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return NavigationTimeoutError{URL: url, Err: err}
	}
	return err
}

// inspect returns the current page once no challenge is in the way.
func (ex *Extractor) inspect(ctx context.Context) (*Page, error) {
	if ex.Checkpoint != nil {
		return ex.Checkpoint.Inspect(ctx)
	}
	snapshot, err := ex.Browser.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snapshot.Page(ex.Log)
}

// open moves the pointer around a little and loads url under sctx, then waits out any
// challenge under ctx. The challenge wait is bounded by the checkpoint wait window, not
// by the section deadline carried in sctx.
func (ex *Extractor) open(ctx, sctx context.Context, url string) (*Page, error) {
	if _, err := ex.Pacer.SimulatePresence(sctx, ex.Browser); err != nil {
		return nil, err
	}
	if err := ex.navigate(sctx, url); err != nil {
		return nil, err
	}
	return ex.inspect(ctx)
}

// failed records a failed step with the pacer and waits out the backoff. Only a
// cancelled ctx interrupts the wait.
func (ex *Extractor) failed(ctx context.Context, err error) {
	if IsRunFatal(err) || ctx.Err() != nil {
		return
	}
	d := ex.Pacer.Failure()
	ex.Log.Printf("backing off %v after: %v", d.Round(time.Second), err)
	sleepContext(ctx, d)
}

// extractFunc reads the entities visible on page. omitted counts entities that were
// seen but could not be resolved to anything keyable.
type extractFunc[T Keyed] func(page *Page) (items []T, omitted int)

// collect runs the shared list algorithm: load the section, then extract, merge, scroll
// and pace until StableRounds rounds in a row add nothing or a cap is hit. A timeout
// leaves the section partial. The error return is non-nil only for run-level failures
// and for cancellation of ctx; everything else is reported through the section.
func collect[T Keyed](ctx context.Context, ex *Extractor, name string, url string, extract extractFunc[T]) (Section[T], error) {
	ex.Log.Printf("section %v: %v", name, url)
	sctx := ctx
	if ex.Limits.SectionTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, ex.Limits.SectionTimeout)
		defer cancel()
	}

	collection := NewCollection[T]()
	var section Section[T]
	stop := func(err error) (Section[T], error) {
		section.Items = collection.Items()
		section.Error = err.Error()
		var timeout NavigationTimeoutError
		switch {
		case IsRunFatal(err):
			section.Status = StatusFailed
		case ctx.Err() != nil:
			section.Status = StatusPartial
			err = ctx.Err()
		case sctx.Err() != nil || errors.As(err, &timeout) || collection.Len() > 0:
			section.Status = StatusPartial
			err = nil
		default:
			section.Status = StatusFailed
			err = nil
		}
		ex.Log.Printf("section %v: %v after %d rounds, %d items: %v", name, section.Status, section.Rounds, collection.Len(), section.Error)
		if err == nil {
			ex.failed(ctx, errors.New(section.Error))
		}
		return section, err
	}

	page, err := ex.open(ctx, sctx, url)
	if err != nil {
		return stop(err)
	}

	stable := 0
	for {
		section.Rounds++
		items, omitted := extract(page)
		section.Omitted = max(section.Omitted, omitted)
		added := collection.Merge(items...)

		if section.Rounds == 1 && collection.Len() == 0 && ex.Detector != nil {
			if indicator, restricted := ex.Detector.Restricted(page); restricted {
				ex.Log.Printf("section %v: %v", name, PrivacyRestrictedError{Section: name, Indicator: indicator})
				section.Status = StatusPrivacyRestricted
				section.Items = []T{}
				ex.Pacer.Success()
				return section, nil
			}
		}

		if ex.Limits.MaxItems > 0 && collection.Len() >= ex.Limits.MaxItems {
			collection.Truncate(ex.Limits.MaxItems)
			break
		}
		if added == 0 {
			stable++
		} else {
			stable = 0
		}
		if stable >= max(ex.Limits.StableRounds, 1) {
			break
		}
		if ex.Limits.MaxRounds > 0 && section.Rounds >= ex.Limits.MaxRounds {
			break
		}

		if err := ex.Browser.Scroll(sctx, ex.Pacer.ScrollDistance()); err != nil {
			return stop(err)
		}
		if err := ex.Pacer.Pause(sctx, ActionScrollStep); err != nil {
			return stop(err)
		}
		if page, err = ex.inspect(ctx); err != nil {
			return stop(err)
		}
	}

	section.Status = StatusComplete
	section.Items = collection.Items()
	if section.Items == nil {
		section.Items = []T{}
	}
	if section.Omitted > 0 {
		section.Status = StatusPartial
		section.Error = fmt.Sprintf("%d entities could not be resolved", section.Omitted)
	}
	ex.Pacer.Success()
	ex.Log.Printf("section %v: %v after %d rounds, %d items", name, section.Status, section.Rounds, len(section.Items))
	return section, nil
}

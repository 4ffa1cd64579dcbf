package scraper

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type ActionKind int

const (
	ActionClick ActionKind = iota
	ActionScrollStep
	ActionBetweenSections
	ActionHover
	ActionErrorBackoff
)

func (kind ActionKind) String() string {
	switch kind {
	case ActionClick:
		return "click"
	case ActionScrollStep:
		return "scroll-step"
	case ActionBetweenSections:
		return "between-sections"
	case ActionHover:
		return "hover"
	case ActionErrorBackoff:
		return "error-backoff"
	}
	return "unknown"
}

// Bounds is an inclusive duration range.
type Bounds struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// PacingProfile holds every timing knob of the pacer.
type PacingProfile struct {
	Click           Bounds `yaml:"click"`
	ScrollStep      Bounds `yaml:"scroll_step"`
	BetweenSections Bounds `yaml:"between_sections"`
	Hover           Bounds `yaml:"hover"`

	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	BackoffJitter  float64       `yaml:"backoff_jitter"` // upward only, fraction of the base delay

	PresenceMovesMin int `yaml:"presence_moves_min"`
	PresenceMovesMax int `yaml:"presence_moves_max"`

	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

func DefaultPacing() PacingProfile {
	return PacingProfile{
		Click:            Bounds{5 * time.Second, 15 * time.Second},
		ScrollStep:       Bounds{2 * time.Second, 5 * time.Second},
		BetweenSections:  Bounds{15 * time.Second, 30 * time.Second},
		Hover:            Bounds{100 * time.Millisecond, 600 * time.Millisecond},
		BackoffInitial:   30 * time.Second,
		BackoffMax:       5 * time.Minute,
		BackoffJitter:    0.25,
		PresenceMovesMin: 2,
		PresenceMovesMax: 5,
		ViewportWidth:    1366,
		ViewportHeight:   768,
	}
}

// ZeroPacing never waits. Mouse movement still happens so that its effects stay observable.
func ZeroPacing() PacingProfile {
	return PacingProfile{
		PresenceMovesMin: 1,
		PresenceMovesMax: 1,
		ViewportWidth:    1366,
		ViewportHeight:   768,
	}
}

func (profile PacingProfile) bounds(kind ActionKind) Bounds {
	switch kind {
	case ActionClick:
		return profile.Click
	case ActionScrollStep:
		return profile.ScrollStep
	case ActionBetweenSections:
		return profile.BetweenSections
	case ActionHover:
		return profile.Hover
	}
	return Bounds{}
}

// Pointer is the part of a browser the pacer drives for presence simulation.
type Pointer interface {
	MoveMouse(ctx context.Context, x, y float64) error
}

// Pacer draws human-like delays. It is safe for concurrent use, though a session only
// ever drives it from one goroutine.
type Pacer struct {
	profile PacingProfile

	mu       sync.Mutex
	rng      *rand.Rand
	backoff  *backoff.ExponentialBackOff
	current  time.Duration // base delay for the next error backoff
	failures int
	x, y     float64
}

// NewPacer returns a pacer whose draws are reproducible for a given seed.
func NewPacer(profile PacingProfile, seed uint64) *Pacer {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = profile.BackoffInitial
	b.MaxInterval = profile.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	pacer := &Pacer{
		profile: profile,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		backoff: b,
		x:       float64(profile.ViewportWidth) / 2,
		y:       float64(profile.ViewportHeight) / 2,
	}
	pacer.resetBackoff()
	return pacer
}

func (pacer *Pacer) resetBackoff() {
	pacer.backoff.Reset()
	pacer.current = pacer.backoff.NextBackOff()
}

func (pacer *Pacer) Profile() PacingProfile {
	return pacer.profile
}

// draw returns a value in [b.Min, b.Max], centre-weighted (mean of two uniforms).
func (pacer *Pacer) draw(b Bounds) time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}
	span := float64(b.Max - b.Min)
	u := (pacer.rng.Float64() + pacer.rng.Float64()) / 2
	return b.Min + time.Duration(math.Round(u*span))
}

// Delay returns a randomized duration for kind. For ActionErrorBackoff the result
// grows with the number of consecutive failures recorded by Failure.
func (pacer *Pacer) Delay(kind ActionKind) time.Duration {
	pacer.mu.Lock()
	defer pacer.mu.Unlock()
	if kind == ActionErrorBackoff {
		base := pacer.current
		jitter := time.Duration(pacer.rng.Float64() * pacer.profile.BackoffJitter * float64(base))
		return base + jitter
	}
	return pacer.draw(pacer.profile.bounds(kind))
}

// Pause sleeps for Delay(kind) or until ctx is done.
func (pacer *Pacer) Pause(ctx context.Context, kind ActionKind) error {
	return sleepContext(ctx, pacer.Delay(kind))
}

// Failure records a failed step and returns the backoff to wait before the next attempt.
func (pacer *Pacer) Failure() time.Duration {
	d := pacer.Delay(ActionErrorBackoff)
	pacer.mu.Lock()
	pacer.failures++
	pacer.current = pacer.backoff.NextBackOff()
	pacer.mu.Unlock()
	return d
}

// Success resets the failure streak.
func (pacer *Pacer) Success() {
	pacer.mu.Lock()
	defer pacer.mu.Unlock()
	pacer.failures = 0
	pacer.resetBackoff()
}

// Backoff records a failure and waits for the resulting delay.
func (pacer *Pacer) Backoff(ctx context.Context) error {
	return sleepContext(ctx, pacer.Failure())
}

func (pacer *Pacer) ConsecutiveFailures() int {
	pacer.mu.Lock()
	defer pacer.mu.Unlock()
	return pacer.failures
}

// ScrollDistance returns how far one scroll round moves, between 70% and 100% of the viewport.
func (pacer *Pacer) ScrollDistance() int {
	pacer.mu.Lock()
	defer pacer.mu.Unlock()
	h := float64(pacer.profile.ViewportHeight)
	return int(h*0.7 + pacer.rng.Float64()*h*0.3)
}

// SimulatePresence moves the pointer along a few short curved paths with hover pauses.
// It performs between PresenceMovesMin and PresenceMovesMax moves and returns the count.
func (pacer *Pacer) SimulatePresence(ctx context.Context, pointer Pointer) (int, error) {
	pacer.mu.Lock()
	lo, hi := pacer.profile.PresenceMovesMin, pacer.profile.PresenceMovesMax
	if hi < lo {
		hi = lo
	}
	moves := lo
	if hi > lo {
		moves += pacer.rng.IntN(hi - lo + 1)
	}
	pacer.mu.Unlock()

	for i := 0; i < moves; i++ {
		for _, point := range pacer.path() {
			if err := pointer.MoveMouse(ctx, point[0], point[1]); err != nil {
				return i, err
			}
		}
		if err := pacer.Pause(ctx, ActionHover); err != nil {
			return i + 1, err
		}
	}
	return moves, nil
}

// path plans a short eased path from the current pointer position to a random target.
func (pacer *Pacer) path() [][2]float64 {
	pacer.mu.Lock()
	defer pacer.mu.Unlock()
	w, h := float64(pacer.profile.ViewportWidth), float64(pacer.profile.ViewportHeight)
	tx := w*0.1 + pacer.rng.Float64()*w*0.8
	ty := h*0.1 + pacer.rng.Float64()*h*0.8
	steps := 4 + pacer.rng.IntN(5)
	// control point bends the path off the straight line
	cx := (pacer.x+tx)/2 + (pacer.rng.Float64()-0.5)*w*0.1
	cy := (pacer.y+ty)/2 + (pacer.rng.Float64()-0.5)*h*0.1

	points := make([][2]float64, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		t = t * t * (3 - 2*t)
		x := (1-t)*(1-t)*pacer.x + 2*(1-t)*t*cx + t*t*tx
		y := (1-t)*(1-t)*pacer.y + 2*(1-t)*t*cy + t*t*ty
		points = append(points, [2]float64{math.Round(x), math.Round(y)})
	}
	pacer.x, pacer.y = tx, ty
	return points
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Package reveal paces the disclosure of a resolved action's dice. A result
// may only be committed once its reveal has reached the final phase.
package reveal

import (
	"errors"
	"sync"
	"time"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// Phase is one step of a reveal.
type Phase string

const (
	Idle              Phase = "idle"
	Rolling           Phase = "rolling"
	Reveal            Phase = "reveal"
	CritBuildup       Phase = "crit_buildup"
	ClashAnticipation Phase = "clash_anticipation"
	Impact            Phase = "impact"
	Final             Phase = "final"
)

var (
	// ErrSequencerBusy is returned by Start while a reveal is running.
	ErrSequencerBusy = errors.New("a reveal is already running")
	// ErrNotFinal is returned by Dismiss before the final phase.
	ErrNotFinal = errors.New("the reveal has not finished")
	// ErrNotReady is returned by FastForward before the result is ready.
	ErrNotReady = errors.New("the result is not ready yet")
)

// Timings are the dwell times of each phase.
type Timings struct {
	// Rolling is the minimum time dice spin before any is revealed.
	Rolling time.Duration
	// Stagger separates successive die reveals.
	Stagger time.Duration
	// RevealHold is the pause after the last die is revealed.
	RevealHold  time.Duration
	CritBuildup time.Duration
	Clash       time.Duration
	Impact      time.Duration
}

// DefaultTimings returns the standard pacing.
func DefaultTimings() Timings {
	return Timings{
		Rolling:     800 * time.Millisecond,
		Stagger:     600 * time.Millisecond,
		RevealHold:  1000 * time.Millisecond,
		CritBuildup: 2000 * time.Millisecond,
		Clash:       1000 * time.Millisecond,
		Impact:      800 * time.Millisecond,
	}
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// Sequencer is a phase machine driven by Tick. It never discards a started
// reveal: it can be fast-forwarded but not aborted.
//
// It is safe for concurrent use.
type Sequencer struct {
	mu      sync.Mutex
	clock   Clock
	timings Timings

	phase     Phase
	enteredAt time.Time
	readyAt   time.Time
	ready     bool
	dice      []dice.Die
	revealed  int
	crit      bool
	clash     bool
	onDismiss func() error
}

// NewSequencer creates an idle Sequencer.
//
// Precondition: clock must be non-nil.
func NewSequencer(clock Clock, t Timings) *Sequencer {
	return &Sequencer{clock: clock, timings: t, phase: Idle}
}

// Start begins a reveal of ds. onDismiss runs exactly once, when the final
// phase is dismissed; it must not call back into the Sequencer.
//
// Precondition: the sequencer is idle.
// Postcondition: Phase() == Rolling.
func (s *Sequencer) Start(ds []dice.Die, onDismiss func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Idle {
		return ErrSequencerBusy
	}
	s.dice = append([]dice.Die(nil), ds...)
	s.revealed = 0
	s.ready = false
	s.onDismiss = onDismiss
	s.crit, s.clash = analyse(ds)
	s.phase = Rolling
	s.enteredAt = s.clock.Now()
	return nil
}

// analyse derives whether the reveal has a clash (damage and defense both
// counted) and a crit (the counted damage die is critical).
func analyse(ds []dice.Die) (crit, clash bool) {
	var dmg, def *dice.Die
	for i := range ds {
		switch ds[i].Kind {
		case dice.KindDamage:
			dmg = &ds[i]
		case dice.KindDefense:
			def = &ds[i]
		}
	}
	clash = dmg != nil && def != nil && !dmg.Ignored && !def.Ignored
	crit = dmg != nil && !dmg.Ignored && dmg.Crit
	return crit, clash
}

// MarkReady records that the underlying result is available.
func (s *Sequencer) MarkReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == Rolling && !s.ready {
		s.ready = true
		s.readyAt = s.clock.Now()
	}
}

// Phase returns the current phase.
func (s *Sequencer) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Tick advances through every phase whose dwell has elapsed and returns the
// resulting phase.
func (s *Sequencer) Tick() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for s.advance(now) {
	}
	return s.phase
}

// advance performs at most one transition. Phase entry times are the exact
// deadlines, so a late tick still yields the same phase sequence.
func (s *Sequencer) advance(now time.Time) bool {
	switch s.phase {
	case Rolling:
		if !s.ready {
			return false
		}
		start := s.enteredAt.Add(s.timings.Rolling)
		if s.readyAt.After(start) {
			start = s.readyAt
		}
		if now.Before(start) {
			return false
		}
		s.enter(Reveal, start)
		s.revealed = min(1, len(s.dice))
		return true
	case Reveal:
		elapsed := now.Sub(s.enteredAt)
		if n := len(s.dice); n > 0 && s.timings.Stagger > 0 {
			s.revealed = min(n, 1+int(elapsed/s.timings.Stagger))
		} else {
			s.revealed = len(s.dice)
		}
		hold := time.Duration(max(len(s.dice)-1, 0))*s.timings.Stagger + s.timings.RevealHold
		if elapsed < hold {
			return false
		}
		s.revealed = len(s.dice)
		next := Final
		switch {
		case s.crit && s.clash:
			next = CritBuildup
		case s.clash:
			next = ClashAnticipation
		}
		s.enter(next, s.enteredAt.Add(hold))
		return true
	case CritBuildup:
		return s.after(now, s.timings.CritBuildup, ClashAnticipation)
	case ClashAnticipation:
		return s.after(now, s.timings.Clash, Impact)
	case Impact:
		return s.after(now, s.timings.Impact, Final)
	}
	return false
}

func (s *Sequencer) after(now time.Time, dwell time.Duration, next Phase) bool {
	deadline := s.enteredAt.Add(dwell)
	if now.Before(deadline) {
		return false
	}
	s.enter(next, deadline)
	return true
}

func (s *Sequencer) enter(p Phase, at time.Time) {
	s.phase = p
	s.enteredAt = at
}

// FastForward jumps straight to the final phase with every die revealed.
//
// Precondition: the result is ready.
func (s *Sequencer) FastForward() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.phase == Idle || s.phase == Final:
		return nil
	case !s.ready:
		return ErrNotReady
	}
	s.revealed = len(s.dice)
	s.enter(Final, s.clock.Now())
	return nil
}

// Dismiss accepts the final phase: it runs the commit callback once and
// returns the sequencer to idle. If the callback fails the sequencer stays in
// final so dismissal can be retried.
func (s *Sequencer) Dismiss() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != Final {
		return ErrNotFinal
	}
	if s.onDismiss != nil {
		if err := s.onDismiss(); err != nil {
			return err
		}
	}
	s.phase = Idle
	s.dice = nil
	s.revealed = 0
	s.ready = false
	s.onDismiss = nil
	return nil
}

// DieView is a die as currently displayed.
type DieView struct {
	dice.Die
	Revealed bool
	// Shown is the face on display: the real value once revealed, otherwise a placeholder.
	Shown int
}

// Frame is a consistent view of the sequencer for rendering.
type Frame struct {
	Phase Phase
	Dice  []DieView
	// ShowNet is true once the damage display should switch to damage minus defense.
	ShowNet bool
	Crit    bool
	Clash   bool
}

// Frame returns the current view. Unrevealed dice show placeholder faces
// drawn from placeholder, which may be nil to show zero.
func (s *Sequencer) Frame(placeholder dice.Source) Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := Frame{
		Phase:   s.phase,
		Dice:    make([]DieView, len(s.dice)),
		ShowNet: s.phase == Impact || s.phase == Final,
		Crit:    s.crit,
		Clash:   s.clash,
	}
	for i, d := range s.dice {
		v := DieView{Die: d, Revealed: i < s.revealed}
		switch {
		case v.Revealed:
			v.Shown = d.Value
		case placeholder != nil && d.Sides > 0:
			v.Shown = placeholder.Intn(d.Sides) + 1
		}
		f.Dice[i] = v
	}
	return f
}

// Revealed returns how many dice are showing their real value.
func (s *Sequencer) Revealed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revealed
}

package reveal

import (
	"sync"
	"time"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
)

// Driver ticks a Sequencer in real time and broadcasts a Frame to subscribers
// whenever the phase or the number of revealed dice changes.
type Driver struct {
	seq         *Sequencer
	interval    time.Duration
	placeholder dice.Source

	mu           sync.Mutex
	subscribers  map[chan<- Frame]struct{}
	lastPhase    Phase
	lastRevealed int
}

// NewDriver creates a stopped Driver.
//
// Precondition: seq must be non-nil; interval > 0.
func NewDriver(seq *Sequencer, interval time.Duration, placeholder dice.Source) *Driver {
	return &Driver{
		seq:         seq,
		interval:    interval,
		placeholder: placeholder,
		subscribers: make(map[chan<- Frame]struct{}),
		lastPhase:   Idle,
	}
}

// Subscribe registers ch to receive frames. A full channel drops the frame.
//
// Precondition: ch must not be nil.
func (d *Driver) Subscribe(ch chan<- Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch.
func (d *Driver) Unsubscribe(ch chan<- Frame) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.subscribers, ch)
}

// Step ticks the sequencer once and broadcasts on change. It reports whether a
// frame was broadcast.
func (d *Driver) Step() bool {
	phase := d.seq.Tick()
	revealed := d.seq.Revealed()

	d.mu.Lock()
	if phase == d.lastPhase && revealed == d.lastRevealed {
		d.mu.Unlock()
		return false
	}
	d.lastPhase, d.lastRevealed = phase, revealed
	subs := make([]chan<- Frame, 0, len(d.subscribers))
	for ch := range d.subscribers {
		subs = append(subs, ch)
	}
	d.mu.Unlock()

	frame := d.seq.Frame(d.placeholder)
	for _, ch := range subs {
		select {
		case ch <- frame:
		default:
		}
	}
	return true
}

// Start launches the ticking goroutine and returns an idempotent stop function.
func (d *Driver) Start() (stop func()) {
	done := make(chan struct{})
	var once sync.Once
	go func() {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d.Step()
			case <-done:
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(done) })
	}
}

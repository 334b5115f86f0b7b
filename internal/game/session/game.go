package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/encounter"
	"github.com/cory-johannsen/dicecrawl/internal/game/reveal"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
	"github.com/cory-johannsen/dicecrawl/internal/observability"
	"github.com/cory-johannsen/dicecrawl/internal/peersync"
	"github.com/cory-johannsen/dicecrawl/internal/storage/postgres"
)

// ErrRevealInProgress is returned by operations that must wait until the
// current reveal has been dismissed.
var ErrRevealInProgress = errors.New("a roll is still being revealed")

// MaxLogEntries caps the per-game action log.
const MaxLogEntries = 100

// Journal records committed actions.
type Journal interface {
	Append(ctx context.Context, e postgres.Entry) (postgres.Entry, error)
}

// Publisher replicates committed state to peers.
type Publisher interface {
	Offer(ctx context.Context, snap peersync.Snapshot) error
}

// Deps are the collaborators shared by every game on a server.
type Deps struct {
	Catalog  *encounter.Catalog
	Narrator narrative.Narrator
	Roller   *dice.Roller
	Clock    reveal.Clock
	Timings  reveal.Timings
	// TickInterval is how often the reveal driver advances; zero disables the driver.
	TickInterval time.Duration
	Options      combat.Options
	ChestGold    string
	PartySize    int
	// Journal and Publisher are optional.
	Journal   Journal
	Publisher Publisher
	Logger    *zap.Logger
}

// LogEntry is one line of the game's action history.
type LogEntry struct {
	Seq        int
	Action     string
	Category   string
	TargetName string
	Breakdown  string
	Trace      string
	TickLog    string
	Narrative  string
	HeroHP     int
	EnemyHP    int
	Mode       encounter.Mode
	At         time.Time
}

// Outcome is what a dismissal committed.
type Outcome struct {
	Entry LogEntry
	Mode  encounter.Mode
	// VictoryGold is the reward waiting to be collected when Mode is Victory.
	VictoryGold int
}

// View is a read-only copy of the game for rendering.
type View struct {
	ID          string
	Room        string
	Mode        encounter.Mode
	Hero        *character.Character
	Enemy       *character.Character
	Party       []string
	Phase       reveal.Phase
	TurnsTaken  int
	EnemyTurn   bool
	VictoryGold int
}

// Game orchestrates one hero against one enemy: legality through the
// encounter machine, resolution through the engine, pacing through the reveal
// sequencer and state changes only at dismissal.
//
// All methods are safe for concurrent use.
type Game struct {
	id     string
	room   string
	deps   Deps
	logger *zap.Logger

	mu      sync.Mutex
	hero    *character.Character
	enemy   *character.Character
	party   []string
	buffer  *combat.Buffer
	engine  *combat.Engine
	machine *encounter.Machine
	seq     *reveal.Sequencer
	driver  *reveal.Driver
	outbox  *Outbox

	staged    encounter.Action
	committed *LogEntry
	seqNo     int
	log       []LogEntry
	stop      func()

	// narrated is closed once the staged result's narration has landed.
	narrated   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	narrations sync.WaitGroup
}

// NewGame creates a game in exploration with a fresh hero and a randomly
// drawn enemy.
//
// Precondition: id, room and heroName must be non-empty; deps.Catalog,
// deps.Roller, deps.Clock and deps.Logger must be non-nil.
// Postcondition: Returns a Game or an error if any dependency is invalid.
func NewGame(id, room, heroName, heroClass string, deps Deps) (*Game, error) {
	if id == "" || room == "" {
		return nil, errors.New("game id and room must not be empty")
	}
	hero, err := character.NewHero(heroName, heroClass)
	if err != nil {
		return nil, err
	}
	chest := dice.MustParse(encounter.DefaultChestGold)
	if deps.ChestGold != "" {
		if chest, err = dice.Parse(deps.ChestGold); err != nil {
			return nil, fmt.Errorf("chest gold: %w", err)
		}
	}
	preset, err := deps.Catalog.Random(deps.Roller.Source())
	if err != nil {
		return nil, err
	}

	logger := observability.ForGame(deps.Logger, id, room)
	buffer := combat.NewBuffer()
	engine, err := combat.NewEngine(deps.Roller.Source(), deps.Narrator, buffer, logger, deps.Options)
	if err != nil {
		return nil, err
	}
	seq := reveal.NewSequencer(deps.Clock, deps.Timings)
	ctx, cancel := context.WithCancel(context.Background())
	g := &Game{
		ctx:     ctx,
		cancel:  cancel,
		id:      id,
		room:    room,
		deps:    deps,
		logger:  logger,
		hero:    hero,
		enemy:   preset.Spawn(),
		party:   partyNames(hero.Name, deps.PartySize),
		buffer:  buffer,
		engine:  engine,
		machine: encounter.NewMachine(max(deps.PartySize, 1), logger).WithChestGold(chest),
		seq:     seq,
		outbox:  NewOutbox(id, 0),
	}
	interval := deps.TickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	g.driver = reveal.NewDriver(seq, interval, deps.Roller.Source())
	return g, nil
}

// partyNames lists the hero-side slots an enemy attack can pick. A party of
// one is solo play and returns nil.
func partyNames(hero string, size int) []string {
	if size <= 1 {
		return nil
	}
	names := []string{hero}
	for i := 2; i <= size; i++ {
		names = append(names, fmt.Sprintf("Ally %d", i))
	}
	return names
}

// ID returns the game identifier.
func (g *Game) ID() string { return g.id }

// Room returns the replication room the game belongs to.
func (g *Game) Room() string { return g.room }

// Outbox returns the queue of asynchronous notices for the frontend.
func (g *Game) Outbox() *Outbox { return g.outbox }

// Start launches the reveal driver when a tick interval is configured.
// Close stops it.
func (g *Game) Start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop == nil && g.deps.TickInterval > 0 {
		g.stop = g.driver.Start()
	}
}

// Close abandons any narration in progress, stops the reveal driver and
// closes the outbox.
func (g *Game) Close() error {
	g.cancel()
	g.narrations.Wait()
	g.mu.Lock()
	stop := g.stop
	g.stop = nil
	g.mu.Unlock()
	if stop != nil {
		stop()
	}
	return g.outbox.Close()
}

// Subscribe registers ch for reveal frames.
func (g *Game) Subscribe(ch chan<- reveal.Frame) { g.driver.Subscribe(ch) }

// Unsubscribe removes ch.
func (g *Game) Unsubscribe(ch chan<- reveal.Frame) { g.driver.Unsubscribe(ch) }

// Step advances the reveal once, broadcasting a frame on change. Used when no
// driver goroutine is running.
func (g *Game) Step() bool { return g.driver.Step() }

// Frame returns the current reveal frame.
func (g *Game) Frame() reveal.Frame { return g.seq.Frame(g.deps.Roller.Source()) }

// Attack resolves a hero attack on part and starts its reveal.
//
// Postcondition: on success the result is pending and nothing has been applied.
func (g *Game) Attack(ctx context.Context, part combat.BodyPart) (*combat.PendingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.machine.CheckAction(encounter.ActAttack); err != nil {
		return nil, err
	}
	p, err := g.engine.Attack(ctx, g.hero, g.enemy, part)
	if err != nil {
		return nil, err
	}
	return p, g.startReveal(p, encounter.ActAttack)
}

// EnemyAttack resolves the enemy's turn and starts its reveal.
func (g *Game) EnemyAttack(ctx context.Context) (*combat.PendingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.machine.CheckAction(encounter.ActEnemyAttack); err != nil {
		return nil, err
	}
	p, err := g.engine.EnemyAttack(ctx, g.hero, g.enemy, g.party)
	if err != nil {
		return nil, err
	}
	return p, g.startReveal(p, encounter.ActEnemyAttack)
}

// Flee attempts to escape combat and starts the reveal of the d20.
func (g *Game) Flee(ctx context.Context) (*combat.PendingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.machine.CheckAction(encounter.ActFlee); err != nil {
		return nil, err
	}
	p, err := g.engine.Flee(ctx, g.hero, g.enemy)
	if err != nil {
		return nil, err
	}
	return p, g.startReveal(p, encounter.ActFlee)
}

// startReveal hands the staged result to the sequencer and narrates it in the
// background. The dice keep rolling until the narration lands and the
// result is marked ready. Caller must hold g.mu.
func (g *Game) startReveal(p *combat.PendingResult, act encounter.Action) error {
	if err := g.seq.Start(p.Dice, g.commit); err != nil {
		g.buffer.Clear()
		return err
	}
	g.staged = act
	done := make(chan struct{})
	g.narrated = done
	g.narrations.Add(1)
	go g.narrate(p, done)
	g.logger.Debug("reveal started",
		zap.String("pending_id", p.ID),
		zap.String("action", string(p.Action)),
		zap.Int("dice", len(p.Dice)),
	)
	return nil
}

// narrate runs the narrator without g.mu, then stores the text and releases
// the sequencer's rolling phase.
func (g *Game) narrate(p *combat.PendingResult, done chan struct{}) {
	defer g.narrations.Done()
	defer close(done)
	text := g.engine.Narrate(g.ctx, p.Story)

	g.mu.Lock()
	defer g.mu.Unlock()
	p.Narrative = text
	g.seq.MarkReady()
}

// AwaitResult blocks until the staged result has been narrated and marked
// ready, or ctx ends. It returns at once when nothing is staged.
func (g *Game) AwaitResult(ctx context.Context) error {
	g.mu.Lock()
	done := g.narrated
	g.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	default:
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}

// FastForward skips the remaining reveal pacing. A result still being
// narrated cannot be skipped past, so FastForward first waits for it.
func (g *Game) FastForward(ctx context.Context) error {
	if err := g.AwaitResult(ctx); err != nil {
		return err
	}
	return g.seq.FastForward()
}

// Phase returns the current reveal phase.
func (g *Game) Phase() reveal.Phase {
	return g.seq.Phase()
}

// Dismiss accepts a finished reveal and commits its result. Journal and peer
// failures are logged and never undo the commit.
//
// Precondition: the reveal is in its final phase.
// Postcondition: the buffer is empty and the encounter mode reflects the result.
func (g *Game) Dismiss(ctx context.Context) (Outcome, error) {
	g.mu.Lock()
	g.committed = nil
	if err := g.seq.Dismiss(); err != nil {
		g.mu.Unlock()
		return Outcome{}, err
	}
	entry := *g.committed
	out := Outcome{Entry: entry, Mode: g.machine.Mode(), VictoryGold: g.machine.VictoryGold()}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.record(ctx, entry)
	g.publish(ctx, snap)
	return out, nil
}

// commit is the sequencer's dismissal callback. It runs with g.mu and the
// sequencer lock held and must not call back into the sequencer.
func (g *Game) commit() error {
	p, ok := g.buffer.Pending()
	if !ok {
		return combat.ErrNothingPending
	}
	ev, err := g.buffer.Commit(g.hero, g.enemy)
	if err != nil {
		return err
	}
	mode, err := g.machine.Apply(context.Background(), ev)
	if err != nil {
		g.logger.Error("applying commit to encounter", zap.String("pending_id", p.ID), zap.Error(err))
	}
	g.machine.RecordAction(g.staged)
	entry := g.appendLog(LogEntry{
		Action:     string(p.Action),
		Category:   string(p.Category),
		TargetName: p.TargetName,
		Breakdown:  p.Breakdown,
		Trace:      p.Trace,
		TickLog:    p.TickLog,
		Narrative:  p.Narrative,
		Mode:       mode,
	})
	g.committed = &entry
	g.logger.Info("action committed",
		zap.String("pending_id", p.ID),
		zap.String("action", string(p.Action)),
		zap.Int("hero_hp", ev.HeroHP),
		zap.Int("enemy_hp", ev.EnemyHP),
		zap.String("mode", string(mode)),
	)
	return nil
}

// appendLog stamps e with the next sequence number and current HP, and keeps
// the log at MaxLogEntries. Caller must hold g.mu.
func (g *Game) appendLog(e LogEntry) LogEntry {
	g.seqNo++
	e.Seq = g.seqNo
	e.HeroHP = g.hero.HP
	e.EnemyHP = g.enemy.HP
	if e.Mode == "" {
		e.Mode = g.machine.Mode()
	}
	e.At = time.Now().UTC()
	g.log = append(g.log, e)
	if over := len(g.log) - MaxLogEntries; over > 0 {
		g.log = append([]LogEntry(nil), g.log[over:]...)
	}
	return e
}

// UseItem consumes an inventory item at once. In combat it uses the hero's turn.
func (g *Game) UseItem(ctx context.Context, ref, target string) (combat.ItemResult, error) {
	g.mu.Lock()
	if err := g.machine.CheckAction(encounter.ActUseItem); err != nil {
		g.mu.Unlock()
		return combat.ItemResult{}, err
	}
	res, err := g.engine.UseItem(ctx, g.hero, ref, target)
	if err != nil {
		g.mu.Unlock()
		return combat.ItemResult{}, err
	}
	g.machine.RecordAction(encounter.ActUseItem)
	entry := g.appendLog(LogEntry{
		Action:     string(combat.ActionItem),
		Category:   string(narrative.ItemUse),
		TargetName: res.Target,
		Breakdown:  fmt.Sprintf("%s: +%d HP", res.Item.Name, res.Healed),
	})
	snap := g.snapshotLocked()
	g.mu.Unlock()

	res.Narrative = g.engine.Narrate(ctx, res.Story)
	entry.Narrative = res.Narrative
	g.mu.Lock()
	for i := range g.log {
		if g.log[i].Seq == entry.Seq {
			g.log[i].Narrative = res.Narrative
		}
	}
	g.mu.Unlock()

	g.record(ctx, entry)
	g.publish(ctx, snap)
	return res, nil
}

// Encounter starts combat against a new enemy. which is a preset ID, "boss",
// or empty for a weighted random draw.
func (g *Game) Encounter(ctx context.Context, which string) (*character.Character, error) {
	g.mu.Lock()
	if err := g.machine.CheckAction(encounter.ActMove); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	var (
		preset *character.Preset
		err    error
	)
	key := strings.ToLower(strings.TrimSpace(which))
	switch key {
	case "":
		preset, err = g.deps.Catalog.Random(g.deps.Roller.Source())
	case "boss":
		preset, err = g.deps.Catalog.Boss()
	default:
		preset, err = g.deps.Catalog.Get(key)
	}
	if err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.enemy = preset.Spawn()
	if err := g.machine.Engage(ctx); err != nil {
		g.mu.Unlock()
		return nil, err
	}
	g.logger.Info("encounter started", zap.String("enemy", preset.ID))
	enemy := g.enemy.Clone()
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.publish(ctx, snap)
	return enemy, nil
}

// Chest enters chest mode from exploration.
func (g *Game) Chest(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.machine.CheckAction(encounter.ActMove); err != nil {
		return err
	}
	return g.machine.DiscoverChest(ctx)
}

// ResolveChest opens or ignores the chest. Opening grants the rolled gold.
//
// Postcondition: returns the gold granted, zero when ignored.
func (g *Game) ResolveChest(ctx context.Context, open bool) (int, error) {
	g.mu.Lock()
	gold, err := g.machine.ResolveChest(ctx, open, g.deps.Roller.Source())
	if err != nil {
		g.mu.Unlock()
		return 0, err
	}
	if gold > 0 {
		g.buffer.GrantGold(g.hero, gold)
	}
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.publish(ctx, snap)
	return gold, nil
}

// CollectLoot leaves victory and grants the reward fixed at the kill.
func (g *Game) CollectLoot(ctx context.Context) (int, error) {
	g.mu.Lock()
	gold, err := g.machine.CollectLoot(ctx)
	if err != nil {
		g.mu.Unlock()
		return 0, err
	}
	g.buffer.GrantGold(g.hero, gold)
	g.logger.Info("loot collected", zap.Int("gold", gold), zap.Int("total", g.hero.Gold))
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.publish(ctx, snap)
	return gold, nil
}

// Explore draws a dungeon event. Its mechanics are descriptive only.
func (g *Game) Explore() (narrative.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.machine.CheckAction(encounter.ActMove); err != nil {
		return narrative.Event{}, err
	}
	return narrative.RandomEvent(g.deps.Roller.Source()), nil
}

// Reset starts a new run: a fresh hero, a new random enemy and exploration mode.
//
// Precondition: no reveal is running.
func (g *Game) Reset(ctx context.Context) error {
	g.mu.Lock()
	if g.seq.Phase() != reveal.Idle {
		g.mu.Unlock()
		return ErrRevealInProgress
	}
	hero, err := character.NewHero(g.hero.Name, g.hero.Class)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	preset, err := g.deps.Catalog.Random(g.deps.Roller.Source())
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if err := g.machine.Reset(ctx); err != nil {
		g.mu.Unlock()
		return err
	}
	g.buffer.Clear()
	g.hero = hero
	g.enemy = preset.Spawn()
	g.logger.Info("game reset", zap.String("enemy", preset.ID))
	snap := g.snapshotLocked()
	g.mu.Unlock()

	g.publish(ctx, snap)
	return nil
}

// ApplyRemote overwrites local state with a peer's snapshot. It bypasses the
// commit step entirely; last writer wins.
func (g *Game) ApplyRemote(snap peersync.Snapshot) {
	g.mu.Lock()
	if snap.Room != g.room {
		g.mu.Unlock()
		return
	}
	hero, enemy := snap.Hero, snap.Enemy
	g.hero = hero.Clone()
	g.enemy = enemy.Clone()
	if len(snap.Party) > 0 {
		g.party = append([]string(nil), snap.Party...)
	}
	if snap.Mode != "" {
		g.machine.Restore(encounter.Mode(snap.Mode), snap.Enemy.Gold)
	}
	g.mu.Unlock()

	g.logger.Debug("remote snapshot applied",
		zap.String("origin", snap.Origin),
		zap.Int64("version", snap.Version),
	)
	if err := g.outbox.Push(fmt.Sprintf("State updated by peer %s.", snap.Origin)); err != nil {
		g.logger.Debug("dropping peer notice", zap.Error(err))
	}
}

// View returns a consistent copy of the game.
func (g *Game) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	return View{
		ID:          g.id,
		Room:        g.room,
		Mode:        g.machine.Mode(),
		Hero:        g.hero.Clone(),
		Enemy:       g.enemy.Clone(),
		Party:       append([]string(nil), g.party...),
		Phase:       g.seq.Phase(),
		TurnsTaken:  g.machine.TurnsTaken(),
		EnemyTurn:   g.machine.IsEnemyTurn(),
		VictoryGold: g.machine.VictoryGold(),
	}
}

// Log returns the most recent n entries, oldest first; n <= 0 returns all.
func (g *Game) Log(n int) []LogEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := 0
	if n > 0 && n < len(g.log) {
		start = len(g.log) - n
	}
	return append([]LogEntry(nil), g.log[start:]...)
}

// snapshotLocked captures the replicated state. Caller must hold g.mu.
func (g *Game) snapshotLocked() peersync.Snapshot {
	return peersync.Snapshot{
		Room:  g.room,
		Mode:  string(g.machine.Mode()),
		Hero:  *g.hero.Clone(),
		Enemy: *g.enemy.Clone(),
		Party: append([]string(nil), g.party...),
	}
}

func (g *Game) record(ctx context.Context, e LogEntry) {
	if g.deps.Journal == nil {
		return
	}
	_, err := g.deps.Journal.Append(ctx, postgres.Entry{
		SessionID:  g.id,
		Room:       g.room,
		Seq:        e.Seq,
		Action:     e.Action,
		Category:   e.Category,
		TargetName: e.TargetName,
		Breakdown:  e.Breakdown,
		Trace:      e.Trace,
		TickLog:    e.TickLog,
		Narrative:  e.Narrative,
		HeroHP:     e.HeroHP,
		EnemyHP:    e.EnemyHP,
		Mode:       string(e.Mode),
	})
	if err != nil {
		g.logger.Warn("journal append failed", zap.Int("seq", e.Seq), zap.Error(err))
	}
}

func (g *Game) publish(ctx context.Context, snap peersync.Snapshot) {
	if g.deps.Publisher == nil {
		return
	}
	if err := g.deps.Publisher.Offer(ctx, snap); err != nil {
		g.logger.Warn("snapshot offer failed", zap.Error(err))
	}
}

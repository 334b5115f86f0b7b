package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/encounter"
	"github.com/cory-johannsen/dicecrawl/internal/game/reveal"
	"github.com/cory-johannsen/dicecrawl/internal/game/session"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
	"github.com/cory-johannsen/dicecrawl/internal/peersync"
	"github.com/cory-johannsen/dicecrawl/internal/storage/postgres"
)

type fixedSrc struct{ val int }

func (f fixedSrc) Intn(n int) int {
	if f.val >= n {
		return n - 1
	}
	return f.val
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeJournal struct {
	mu      sync.Mutex
	entries []postgres.Entry
	err     error
}

func (j *fakeJournal) Append(_ context.Context, e postgres.Entry) (postgres.Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return postgres.Entry{}, j.err
	}
	j.entries = append(j.entries, e)
	return e, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	snaps []peersync.Snapshot
}

func (p *fakePublisher) Offer(_ context.Context, snap peersync.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, snap)
	return nil
}

func (p *fakePublisher) last(t *testing.T) peersync.Snapshot {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.snaps)
	return p.snaps[len(p.snaps)-1]
}

func testCatalog() *encounter.Catalog {
	presets := []*character.Preset{
		{ID: "dummy", Name: "Training Dummy", MaxHP: 1, MinDmg: 2, MaxDmg: 4, HitChance: 60},
		{ID: "brute", Name: "Brute", MaxHP: 30, MinDmg: 2, MaxDmg: 4, MinDefense: 1, MaxDefense: 2, HitChance: 60, GoldReward: 12},
		{ID: "lich", Name: "Lich", MaxHP: 80, MinDmg: 5, MaxDmg: 9, MinDefense: 2, MaxDefense: 4, HitChance: 70, Boss: true},
	}
	return encounter.NewCatalog(presets, encounter.DefaultSpawnTable())
}

type harness struct {
	game    *session.Game
	clock   *fakeClock
	journal *fakeJournal
	pub     *fakePublisher
}

func newHarness(t *testing.T, val int) *harness {
	t.Helper()
	return newNarratedHarness(t, val, nil)
}

func newNarratedHarness(t *testing.T, val int, narrator narrative.Narrator) *harness {
	t.Helper()
	h := &harness{
		clock:   &fakeClock{now: time.Unix(1_700_000_000, 0)},
		journal: &fakeJournal{},
		pub:     &fakePublisher{},
	}
	g, err := session.NewGame("g-1", "lobby", "Aria", "Warrior", session.Deps{
		Catalog:   testCatalog(),
		Narrator:  narrator,
		Roller:    dice.NewLoggedRoller(fixedSrc{val: val}, zap.NewNop()),
		Clock:     h.clock,
		Timings:   reveal.DefaultTimings(),
		Options:   combat.DefaultOptions(),
		PartySize: 1,
		Journal:   h.journal,
		Publisher: h.pub,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	h.game = g
	t.Cleanup(func() { _ = g.Close() })
	return h
}

func TestNewGame_RejectsMissingIdentity(t *testing.T) {
	_, err := session.NewGame("", "lobby", "Aria", "Warrior", session.Deps{Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestGame_StartsInExploration(t *testing.T) {
	h := newHarness(t, 0)
	v := h.game.View()
	assert.Equal(t, encounter.Exploration, v.Mode)
	assert.Equal(t, reveal.Idle, v.Phase)
	assert.Equal(t, "Training Dummy", v.Enemy.Name)
	assert.Equal(t, character.HeroMaxHP, v.Hero.HP)
	assert.Empty(t, v.Party)
}

func TestGame_AttackOutsideCombatIsIllegal(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.game.Attack(context.Background(), combat.Torso)
	assert.True(t, errors.Is(err, encounter.ErrIllegalAction))
}

func TestGame_KillCommitsOnlyOnDismiss(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	_, err := h.game.Encounter(ctx, "dummy")
	require.NoError(t, err)

	p, err := h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	require.True(t, p.Hit)
	assert.Equal(t, reveal.Rolling, h.game.Phase())

	v := h.game.View()
	assert.Equal(t, 1, v.Enemy.HP, "nothing is applied before dismissal")
	assert.Equal(t, encounter.Combat, v.Mode)

	_, err = h.game.Dismiss(ctx)
	assert.True(t, errors.Is(err, reveal.ErrNotFinal))

	require.NoError(t, h.game.FastForward(ctx))
	out, err := h.game.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, encounter.Victory, out.Mode)
	assert.Equal(t, 1, out.VictoryGold, "a zero-gold enemy still pays one")
	assert.Equal(t, 1, out.Entry.Seq)
	assert.Equal(t, 0, out.Entry.EnemyHP)
	assert.Equal(t, reveal.Idle, h.game.Phase())

	require.Len(t, h.journal.entries, 1)
	assert.Equal(t, "g-1", h.journal.entries[0].SessionID)
	assert.Equal(t, "attack", h.journal.entries[0].Action)
	assert.Equal(t, string(encounter.Victory), h.pub.last(t).Mode)

	gold, err := h.game.CollectLoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, gold)
	v = h.game.View()
	assert.Equal(t, 1, v.Hero.Gold)
	assert.Equal(t, encounter.Exploration, v.Mode)
}

func TestGame_SlowNarrationHoldsRollingWithoutLockingGame(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	asked := make(chan struct{}, 1)
	slow := narrative.NarratorFunc(func(ctx context.Context, _ narrative.Request) (string, error) {
		asked <- struct{}{}
		select {
		case <-release:
			return "The dummy splinters.", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})
	h := newNarratedHarness(t, 0, slow)
	_, err := h.game.Encounter(ctx, "dummy")
	require.NoError(t, err)

	p, err := h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	<-asked
	assert.Equal(t, reveal.Rolling, h.game.Phase())
	assert.Empty(t, p.Narrative)

	h.clock.Advance(5 * time.Second)
	h.game.Step()
	assert.Equal(t, reveal.Rolling, h.game.Phase(), "the dice keep rolling until the result is ready")

	applied := make(chan struct{})
	go func() {
		v := h.game.View()
		h.game.ApplyRemote(peersync.Snapshot{Room: "lobby", Origin: "peer-b", Mode: string(encounter.Combat), Hero: *v.Hero, Enemy: *v.Enemy})
		close(applied)
	}()
	select {
	case <-applied:
	case <-time.After(time.Second):
		t.Fatal("a peer snapshot waited on the narrator")
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.game.FastForward(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, h.game.AwaitResult(ctx))
	h.game.Step()
	assert.Equal(t, reveal.Reveal, h.game.Phase())

	require.NoError(t, h.game.FastForward(ctx))
	out, err := h.game.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, "The dummy splinters.", out.Entry.Narrative)
	assert.Equal(t, "The dummy splinters.", h.journal.entries[0].Narrative)
}

func TestGame_CloseAbandonsNarration(t *testing.T) {
	ctx := context.Background()
	stuck := narrative.NarratorFunc(func(ctx context.Context, _ narrative.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	h := newNarratedHarness(t, 0, stuck)
	_, err := h.game.Encounter(ctx, "dummy")
	require.NoError(t, err)
	_, err = h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		_ = h.game.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited on a stuck narrator")
	}
}

func TestGame_SecondActionWhileRevealing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	_, err := h.game.Encounter(ctx, "brute")
	require.NoError(t, err)

	_, err = h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	_, err = h.game.Attack(ctx, combat.Head)
	assert.True(t, errors.Is(err, combat.ErrActionInFlight))
	_, err = h.game.UseItem(ctx, "Healing Potion", "")
	assert.True(t, errors.Is(err, combat.ErrActionInFlight))
	assert.True(t, errors.Is(h.game.Reset(ctx), session.ErrRevealInProgress))
}

func TestGame_TurnPassesToEnemyAfterCommit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	_, err := h.game.Encounter(ctx, "brute")
	require.NoError(t, err)

	_, err = h.game.EnemyAttack(ctx)
	assert.True(t, errors.Is(err, encounter.ErrIllegalAction))

	_, err = h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	require.NoError(t, h.game.FastForward(ctx))
	_, err = h.game.Dismiss(ctx)
	require.NoError(t, err)
	assert.True(t, h.game.View().EnemyTurn)

	_, err = h.game.Attack(ctx, combat.Torso)
	assert.True(t, errors.Is(err, encounter.ErrIllegalAction))

	p, err := h.game.EnemyAttack(ctx)
	require.NoError(t, err)
	require.True(t, p.Hit)
	assert.Equal(t, character.HeroMaxHP, h.game.View().Hero.HP)

	require.NoError(t, h.game.FastForward(ctx))
	out, err := h.game.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, encounter.Combat, out.Mode)
	assert.Less(t, out.Entry.HeroHP, character.HeroMaxHP)
	assert.False(t, h.game.View().EnemyTurn)
	assert.Len(t, h.game.Log(0), 2)
}

func TestGame_FleeSuccessReturnsToExploration(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 19)
	_, err := h.game.Encounter(ctx, "brute")
	require.NoError(t, err)

	p, err := h.game.Flee(ctx)
	require.NoError(t, err)
	assert.Equal(t, combat.Escape, p.Transition)
	assert.Equal(t, encounter.Combat, h.game.View().Mode)

	require.NoError(t, h.game.FastForward(ctx))
	out, err := h.game.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, encounter.Exploration, out.Mode)
}

func TestGame_RevealFollowsClock(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 19)
	_, err := h.game.Encounter(ctx, "brute")
	require.NoError(t, err)
	_, err = h.game.Flee(ctx)
	require.NoError(t, err)
	require.NoError(t, h.game.AwaitResult(ctx))

	frames := make(chan reveal.Frame, 16)
	h.game.Subscribe(frames)
	defer h.game.Unsubscribe(frames)

	for i := 0; i < 100 && h.game.Phase() != reveal.Final; i++ {
		h.clock.Advance(100 * time.Millisecond)
		h.game.Step()
	}
	require.Equal(t, reveal.Final, h.game.Phase())

	var last reveal.Frame
	for len(frames) > 0 {
		last = <-frames
	}
	assert.Equal(t, reveal.Final, last.Phase)
	require.Len(t, last.Dice, 1)
	assert.True(t, last.Dice[0].Revealed)
	assert.Equal(t, 20, last.Dice[0].Shown)
}

func TestGame_BossEncounter(t *testing.T) {
	h := newHarness(t, 0)
	enemy, err := h.game.Encounter(context.Background(), "boss")
	require.NoError(t, err)
	assert.Equal(t, "Lich", enemy.Name)
	assert.Equal(t, encounter.Combat, h.game.View().Mode)
}

func TestGame_UnknownEnemy(t *testing.T) {
	h := newHarness(t, 0)
	_, err := h.game.Encounter(context.Background(), "kraken")
	assert.Error(t, err)
	assert.Equal(t, encounter.Exploration, h.game.View().Mode)
}

func TestGame_ChestOpenGrantsGold(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	require.NoError(t, h.game.Chest(ctx))
	assert.Equal(t, encounter.Chest, h.game.View().Mode)

	gold, err := h.game.ResolveChest(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 10, gold)
	v := h.game.View()
	assert.Equal(t, 10, v.Hero.Gold)
	assert.Equal(t, encounter.Exploration, v.Mode)
}

func TestGame_ChestIgnoredGrantsNothing(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	require.NoError(t, h.game.Chest(ctx))
	gold, err := h.game.ResolveChest(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, gold)
	assert.Zero(t, h.game.View().Hero.Gold)
}

func TestGame_UseItemConsumesAndJournals(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	res, err := h.game.UseItem(ctx, "Healing Potion", "")
	require.NoError(t, err)
	assert.Equal(t, "Aria", res.Target)
	assert.Zero(t, res.Healed, "a full-health hero gains nothing")

	assert.Empty(t, h.game.View().Hero.Inventory)
	entries := h.game.Log(0)
	require.Len(t, entries, 1)
	assert.Equal(t, "item", entries[0].Action)
	require.Len(t, h.journal.entries, 1)

	_, err = h.game.UseItem(ctx, "Healing Potion", "")
	assert.True(t, errors.Is(err, combat.ErrItemNotFound))
}

func TestGame_JournalFailureDoesNotUndoCommit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.journal.err = errors.New("database down")
	_, err := h.game.Encounter(ctx, "dummy")
	require.NoError(t, err)
	_, err = h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	require.NoError(t, h.game.FastForward(ctx))
	out, err := h.game.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, encounter.Victory, out.Mode)
}

func TestGame_ResetRestoresFreshRun(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	_, err := h.game.Encounter(ctx, "brute")
	require.NoError(t, err)
	_, err = h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	require.NoError(t, h.game.FastForward(ctx))
	_, err = h.game.Dismiss(ctx)
	require.NoError(t, err)

	require.NoError(t, h.game.Reset(ctx))
	v := h.game.View()
	assert.Equal(t, encounter.Exploration, v.Mode)
	assert.Equal(t, v.Hero.MaxHP, v.Hero.HP)
	assert.Equal(t, v.Enemy.MaxHP, v.Enemy.HP)
	assert.Len(t, v.Hero.Inventory, 1)
}

func TestGame_ApplyRemoteOverwritesState(t *testing.T) {
	h := newHarness(t, 0)
	v := h.game.View()
	hero, enemy := *v.Hero, *v.Enemy
	hero.HP = 7
	hero.Gold = 99
	enemy.HP = 0

	h.game.ApplyRemote(peersync.Snapshot{Room: "lobby", Origin: "peer-b", Version: 3, Mode: string(encounter.Victory), Hero: hero, Enemy: enemy})
	v = h.game.View()
	assert.Equal(t, 7, v.Hero.HP)
	assert.Equal(t, 99, v.Hero.Gold)
	assert.Equal(t, encounter.Victory, v.Mode)
	assert.Equal(t, 1, v.VictoryGold)

	select {
	case msg := <-h.game.Outbox().Events():
		assert.Contains(t, msg, "peer-b")
	default:
		t.Fatal("expected a peer notice")
	}
}

func TestGame_ApplyRemoteClearsStaleTurnAndPaysReward(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	_, err := h.game.Encounter(ctx, "brute")
	require.NoError(t, err)
	_, err = h.game.Attack(ctx, combat.Torso)
	require.NoError(t, err)
	require.NoError(t, h.game.FastForward(ctx))
	_, err = h.game.Dismiss(ctx)
	require.NoError(t, err)
	require.True(t, h.game.View().EnemyTurn)

	v := h.game.View()
	enemy := *v.Enemy
	enemy.HP = 0
	enemy.Gold = 12
	h.game.ApplyRemote(peersync.Snapshot{Room: "lobby", Origin: "peer-b", Version: 1, Mode: string(encounter.Victory), Hero: *v.Hero, Enemy: enemy})
	v = h.game.View()
	assert.False(t, v.EnemyTurn)
	assert.Equal(t, 12, v.VictoryGold)

	gold, err := h.game.CollectLoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, gold)
}

func TestGame_ApplyRemoteIgnoresOtherRooms(t *testing.T) {
	h := newHarness(t, 0)
	v := h.game.View()
	hero := *v.Hero
	hero.HP = 1
	h.game.ApplyRemote(peersync.Snapshot{Room: "elsewhere", Origin: "peer-b", Hero: hero, Enemy: *v.Enemy})
	assert.Equal(t, character.HeroMaxHP, h.game.View().Hero.HP)
}

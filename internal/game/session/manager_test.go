package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/reveal"
	"github.com/cory-johannsen/dicecrawl/internal/game/session"
	"github.com/cory-johannsen/dicecrawl/internal/peersync"
)

func newGame(t *testing.T, id, room string) *session.Game {
	t.Helper()
	g, err := session.NewGame(id, room, "Hero "+id, "Warrior", session.Deps{
		Catalog: testCatalog(),
		Roller:  dice.NewLoggedRoller(fixedSrc{}, zap.NewNop()),
		Clock:   &fakeClock{now: time.Unix(0, 0)},
		Timings: reveal.DefaultTimings(),
		Options: combat.DefaultOptions(),
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	return g
}

func TestManager_AddGetRemove(t *testing.T) {
	m := session.NewManager()
	g := newGame(t, "a", "lobby")
	require.NoError(t, m.Add(g))
	assert.Error(t, m.Add(g), "duplicate id")

	got, ok := m.Get("a")
	require.True(t, ok)
	assert.Same(t, g, got)
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.Remove("a"))
	assert.True(t, g.Outbox().IsClosed())
	assert.Zero(t, m.Count())
	assert.Empty(t, m.GamesInRoom("lobby"))
	assert.Error(t, m.Remove("a"))
}

func TestManager_GamesInRoomSorted(t *testing.T) {
	m := session.NewManager()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, m.Add(newGame(t, id, "lobby")))
	}
	require.NoError(t, m.Add(newGame(t, "z", "crypt")))
	assert.Equal(t, []string{"a", "b", "c"}, m.GamesInRoom("lobby"))
	assert.Equal(t, []string{"z"}, m.GamesInRoom("crypt"))
}

func TestManager_ApplySnapshotRoutesByRoom(t *testing.T) {
	m := session.NewManager()
	lobby := newGame(t, "a", "lobby")
	crypt := newGame(t, "b", "crypt")
	require.NoError(t, m.Add(lobby))
	require.NoError(t, m.Add(crypt))

	v := lobby.View()
	hero := *v.Hero
	hero.HP = 3
	n := m.ApplySnapshot(peersync.Snapshot{Room: "lobby", Origin: "peer", Hero: hero, Enemy: *v.Enemy})
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, lobby.View().Hero.HP)
	assert.NotEqual(t, 3, crypt.View().Hero.HP)
	assert.Zero(t, m.ApplySnapshot(peersync.Snapshot{Room: "nowhere", Origin: "peer"}))
}

func TestManager_CountMatchesMembership(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		m := session.NewManager()
		ids := rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,6}`), 1, 12, rapid.ID[string]).Draw(rt, "ids")
		rooms := []string{"lobby", "crypt"}
		for i, id := range ids {
			require.NoError(rt, m.Add(newGame(t, id, rooms[i%2])))
		}
		removed := rapid.IntRange(0, len(ids)).Draw(rt, "removed")
		for _, id := range ids[:removed] {
			require.NoError(rt, m.Remove(id))
		}
		total := len(m.GamesInRoom("lobby")) + len(m.GamesInRoom("crypt"))
		assert.Equal(rt, len(ids)-removed, m.Count())
		assert.Equal(rt, m.Count(), total)
	})
}

func TestOutbox_PushAfterClose(t *testing.T) {
	o := session.NewOutbox("x", 1)
	require.NoError(t, o.Push("one"))
	assert.Error(t, o.Push("two"), "full")
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.Error(t, o.Push("three"))
	assert.Equal(t, "one", <-o.Events())
}

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicecrawl/internal/storage/postgres"
	"github.com/cory-johannsen/dicecrawl/internal/testutil"
)

func validEntry(seq int) postgres.Entry {
	return postgres.Entry{
		SessionID: "game-1",
		Room:      "crypt",
		Seq:       seq,
		Action:    "attack",
		Category:  "hit",
		Breakdown: "Hit Torso (50) | Damage: 5 - Def: 2 = 3",
		Trace:     "[Torso] Base: 5\nDefense: -2\nTOTAL: 3",
		Narrative: "Aria lashes out and connects with Goblin.",
		HeroHP:    40,
		EnemyHP:   15,
		Mode:      "combat",
	}
}

func TestEntryValidate(t *testing.T) {
	assert.NoError(t, validEntry(1).Validate())

	bad := validEntry(0)
	bad.SessionID = ""
	bad.Action = ""
	bad.Mode = ""
	err := bad.Validate()
	require.Error(t, err)
	for _, want := range []string{"session id", "seq", "action", "mode"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestProperty_EntryValidateSeq(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seq := rapid.IntRange(-100, 100).Draw(rt, "seq")
		err := validEntry(seq).Validate()
		if (seq >= 1) != (err == nil) {
			rt.Fatalf("seq %d: unexpected result %v", seq, err)
		}
	})
}

func TestJournalRepository_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	ctx := context.Background()
	assert.ErrorIs(t, pc.Pool.Health(ctx, 5*time.Second), postgres.ErrSchemaMissing)
	pc.ApplyMigrations(t)
	repo := pc.Pool.Journal()

	first, err := repo.Append(ctx, validEntry(1))
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	second := validEntry(2)
	second.Action = "enemy_attack"
	second.HeroHP = 36
	_, err = repo.Append(ctx, second)
	require.NoError(t, err)

	_, err = repo.Append(ctx, validEntry(1))
	assert.ErrorIs(t, err, postgres.ErrDuplicateEntry)

	_, err = repo.Append(ctx, validEntry(0))
	assert.Error(t, err)

	entries, err := repo.ListBySession(ctx, "game-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "attack", entries[0].Action)
	assert.Equal(t, "enemy_attack", entries[1].Action)
	assert.Equal(t, 36, entries[1].HeroHP)

	none, err := repo.ListBySession(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, pc.Pool.Health(ctx, 5*time.Second))
}

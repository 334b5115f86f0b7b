package narrative_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
	"github.com/cory-johannsen/dicecrawl/internal/scripting"
)

type zeroSrc struct{}

func (zeroSrc) Intn(int) int { return 0 }

func attackReq(cat narrative.Category) narrative.Request {
	return narrative.Request{
		Action:   narrative.ActionAttack,
		Category: cat,
		Attacker: narrative.Combatant{Name: "Aria", Class: "Fighter", HP: 40, MaxHP: 40},
		Defender: narrative.Combatant{Name: "Goblin", Class: "Raider", HP: 9, MaxHP: 18},
		Hit:      cat != narrative.Miss,
		Damage:   4,
		Defense:  2,
	}
}

func TestTemplateNarrator_InterpolatesNames(t *testing.T) {
	n := narrative.NewTemplateNarrator(zeroSrc{})
	text, err := n.Narrate(context.Background(), attackReq(narrative.Hit))
	require.NoError(t, err)
	assert.Equal(t, "Aria lashes out and connects with Goblin.", text)
}

func TestTemplateNarrator_CritSuffixOnlyForAttacks(t *testing.T) {
	n := narrative.NewTemplateNarrator(zeroSrc{})
	req := attackReq(narrative.CriticalHit)
	req.Crit = true
	text, err := n.Narrate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(text, "echoes through the dungeon!"))

	flee := narrative.Request{Action: narrative.ActionFlee, Category: narrative.FleeFail, Crit: true}
	text, err = n.Narrate(context.Background(), flee)
	require.NoError(t, err)
	assert.NotContains(t, text, "echoes")
}

func TestTemplateNarrator_UnknownCategory(t *testing.T) {
	n := narrative.NewTemplateNarrator(zeroSrc{})
	_, err := n.Narrate(context.Background(), narrative.Request{Category: "dance"})
	assert.ErrorIs(t, err, narrative.ErrNoNarration)
}

func TestProperty_TemplateNarratorNeverLeavesPlaceholders(t *testing.T) {
	cats := []narrative.Category{
		narrative.CriticalHit, narrative.Hit, narrative.Blocked, narrative.Miss,
		narrative.Kill, narrative.FleeSuccess, narrative.FleeFail, narrative.ItemUse,
	}
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		cat := rapid.SampledFrom(cats).Draw(rt, "category")
		n := narrative.NewTemplateNarrator(dice.NewSeededSource(seed))
		text, err := n.Narrate(context.Background(), attackReq(cat))
		if err != nil {
			rt.Fatalf("narrate %s: %v", cat, err)
		}
		if strings.Contains(text, "{") || text == "" {
			rt.Fatalf("bad narration %q", text)
		}
	})
}

func TestFallbackText(t *testing.T) {
	assert.Equal(t, "You slip away by a hair's breadth.",
		narrative.FallbackText(narrative.Request{Category: narrative.FleeSuccess}))
	assert.Equal(t, "You fail to escape; the enemy blocks your path.",
		narrative.FallbackText(narrative.Request{Category: narrative.FleeFail}))
	assert.Equal(t, "Aria uses the item.", narrative.FallbackText(attackReq(narrative.ItemUse)))
	assert.Equal(t, "The narrator falters.", narrative.FallbackText(attackReq(narrative.Hit)))
}

func TestFallback_FirstSuccessWins(t *testing.T) {
	calls := 0
	failing := narrative.NarratorFunc(func(context.Context, narrative.Request) (string, error) {
		calls++
		return "", errors.New("offline")
	})
	blank := narrative.NarratorFunc(func(context.Context, narrative.Request) (string, error) {
		calls++
		return "   ", nil
	})
	ok := narrative.NarratorFunc(func(context.Context, narrative.Request) (string, error) {
		calls++
		return "It works.", nil
	})
	f := narrative.NewFallback(zap.NewNop(), failing, nil, blank, ok)
	text, err := f.Narrate(context.Background(), attackReq(narrative.Hit))
	require.NoError(t, err)
	assert.Equal(t, "It works.", text)
	assert.Equal(t, 3, calls)
}

func TestFallback_AllFail(t *testing.T) {
	boom := errors.New("boom")
	failing := narrative.NarratorFunc(func(context.Context, narrative.Request) (string, error) {
		return "", boom
	})
	f := narrative.NewFallback(zap.NewNop(), failing)
	_, err := f.Narrate(context.Background(), attackReq(narrative.Hit))
	assert.ErrorIs(t, err, boom)

	_, err = narrative.NewFallback(zap.NewNop()).Narrate(context.Background(), attackReq(narrative.Hit))
	assert.ErrorIs(t, err, narrative.ErrNoNarration)
}

func newLuaNarrator(t *testing.T, src string) *narrative.LuaNarrator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "narrative.lua")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	logger := zap.NewNop()
	mgr := scripting.NewManager(dice.NewLoggedRoller(dice.NewSeededSource(1), logger), logger)
	t.Cleanup(mgr.Close)
	n, err := narrative.NewLuaNarrator(mgr, path, 0)
	require.NoError(t, err)
	return n
}

func TestLuaNarrator_ReceivesRequest(t *testing.T) {
	n := newLuaNarrator(t, `
		function narrate(req)
			if req.category == "miss" then
				return req.attacker.name .. " misses " .. req.defender.name .. "."
			end
			return req.attacker.name .. " deals " .. req.damage .. " to " .. req.defender.name .. "."
		end
	`)
	text, err := n.Narrate(context.Background(), attackReq(narrative.Hit))
	require.NoError(t, err)
	assert.Equal(t, "Aria deals 4 to Goblin.", text)

	text, err = n.Narrate(context.Background(), attackReq(narrative.Miss))
	require.NoError(t, err)
	assert.Equal(t, "Aria misses Goblin.", text)
}

func TestLuaNarrator_ErrorsBecomeNoNarration(t *testing.T) {
	n := newLuaNarrator(t, `
		function narrate(req)
			if req.category == "kill" then error("script bug") end
			return nil
		end
	`)
	_, err := n.Narrate(context.Background(), attackReq(narrative.Kill))
	assert.ErrorIs(t, err, narrative.ErrNoNarration)
	_, err = n.Narrate(context.Background(), attackReq(narrative.Hit))
	assert.ErrorIs(t, err, narrative.ErrNoNarration)
}

func TestLuaNarrator_MissingScript(t *testing.T) {
	logger := zap.NewNop()
	mgr := scripting.NewManager(dice.NewLoggedRoller(dice.NewSeededSource(1), logger), logger)
	defer mgr.Close()
	_, err := narrative.NewLuaNarrator(mgr, filepath.Join(t.TempDir(), "nope.lua"), 0)
	assert.Error(t, err)
}

func fakeMessagesServer(t *testing.T, status int, text string) (*httptest.Server, *narrative.Request) {
	t.Helper()
	var seen narrative.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var params struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		assert.NoError(t, json.Unmarshal(body, &params))
		if len(params.Messages) == 1 && len(params.Messages[0].Content) == 1 {
			_ = json.Unmarshal([]byte(params.Messages[0].Content[0].Text), &seen)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"down"}}`))
			return
		}
		resp := map[string]any{
			"id":            "msg_test",
			"type":          "message",
			"role":          "assistant",
			"model":         "test-model",
			"stop_reason":   "end_turn",
			"stop_sequence": nil,
			"content":       []map[string]any{{"type": "text", "text": text}},
			"usage":         map[string]any{"input_tokens": 10, "output_tokens": 5},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestAnthropicNarrator_ReturnsText(t *testing.T) {
	srv, seen := fakeMessagesServer(t, http.StatusOK, "  The goblin reels.  ")
	n, err := narrative.NewAnthropicNarrator(narrative.AnthropicConfig{
		APIKey: "test", Model: "test-model", MaxTokens: 64, Timeout: 5 * time.Second,
	}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)

	text, err := n.Narrate(context.Background(), attackReq(narrative.Hit))
	require.NoError(t, err)
	assert.Equal(t, "The goblin reels.", text)
	assert.Equal(t, "Goblin", seen.Defender.Name)
	assert.Equal(t, narrative.Hit, seen.Category)
}

func TestAnthropicNarrator_ServerErrorSurfaces(t *testing.T) {
	srv, _ := fakeMessagesServer(t, http.StatusInternalServerError, "")
	n, err := narrative.NewAnthropicNarrator(narrative.AnthropicConfig{
		APIKey: "test", Model: "test-model", MaxTokens: 64,
	}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = n.Narrate(context.Background(), attackReq(narrative.Hit))
	assert.Error(t, err)
}

func TestAnthropicNarrator_EmptyTextIsNoNarration(t *testing.T) {
	srv, _ := fakeMessagesServer(t, http.StatusOK, "")
	n, err := narrative.NewAnthropicNarrator(narrative.AnthropicConfig{
		APIKey: "test", Model: "test-model", MaxTokens: 64,
	}, option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	require.NoError(t, err)
	_, err = n.Narrate(context.Background(), attackReq(narrative.Hit))
	assert.ErrorIs(t, err, narrative.ErrNoNarration)
}

func TestNewAnthropicNarrator_Validates(t *testing.T) {
	_, err := narrative.NewAnthropicNarrator(narrative.AnthropicConfig{MaxTokens: 10})
	assert.Error(t, err)
	_, err = narrative.NewAnthropicNarrator(narrative.AnthropicConfig{Model: "m"})
	assert.Error(t, err)
}

func TestRandomEvent(t *testing.T) {
	ev := narrative.RandomEvent(zeroSrc{})
	assert.Equal(t, "Desecrated Altar", ev.Title)
	assert.Len(t, narrative.Events(), 10)
}

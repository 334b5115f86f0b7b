package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/cory-johannsen/dicecrawl/internal/frontend/telnet"
	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/command"
	"github.com/cory-johannsen/dicecrawl/internal/game/session"
)

// errQuit signals a clean disconnect requested by the player.
var errQuit = errors.New("player quit")

// defaultLogLines is how many entries "log" shows without an argument.
const defaultLogLines = 5

// playState is the per-connection state the command loop keeps between lines.
type playState struct {
	game *session.Game
	// pending is the result currently being revealed, shown in full once final.
	pending    *combat.PendingResult
	shownFinal bool
}

// cmdContext carries all inputs a command handler needs.
type cmdContext struct {
	ctx      context.Context
	cmd      *command.Command
	parsed   command.ParseResult
	state    *playState
	registry *command.Registry
}

// cmdHandlerFunc runs one command and returns the text to show. A returned
// error other than errQuit is shown to the player and the loop continues.
type cmdHandlerFunc func(c *cmdContext) (string, error)

// CommandHandlers returns the set of handler identifiers wired to a function.
// Exported so TestAllCommandHandlersAreWired can verify completeness.
func CommandHandlers() map[string]bool {
	out := make(map[string]bool, len(cmdHandlerMap))
	for k := range cmdHandlerMap {
		out[k] = true
	}
	return out
}

// cmdHandlerMap is the single source of truth for command dispatch.
// To add a new command: add a Handler constant to commands.go AND add an entry here.
var cmdHandlerMap = map[string]cmdHandlerFunc{
	command.HandlerAttack:  cmdAttack,
	command.HandlerEnemy:   cmdEnemy,
	command.HandlerFlee:    cmdFlee,
	command.HandlerUse:     cmdUse,
	command.HandlerFight:   cmdFight,
	command.HandlerChest:   cmdChest,
	command.HandlerOpen:    cmdOpen,
	command.HandlerIgnore:  cmdIgnore,
	command.HandlerCollect: cmdCollect,
	command.HandlerExplore: cmdExplore,
	command.HandlerNext:    cmdNext,
	command.HandlerSkip:    cmdSkip,
	command.HandlerStats:   cmdStats,
	command.HandlerLog:     cmdLog,
	command.HandlerRestart: cmdRestart,
	command.HandlerHelp:    cmdHelp,
	command.HandlerQuit:    cmdQuit,
}

// dispatch parses line and runs the matching handler.
func dispatch(ctx context.Context, registry *command.Registry, st *playState, line string) (string, error) {
	parsed := command.Parse(line)
	if parsed.Command == "" {
		return "", nil
	}
	cmd, err := registry.Lookup(parsed)
	if err != nil {
		return "", err
	}
	fn, ok := cmdHandlerMap[cmd.Handler]
	if !ok {
		return "", fmt.Errorf("command %q is not available", cmd.Name)
	}
	return fn(&cmdContext{ctx: ctx, cmd: cmd, parsed: parsed, state: st, registry: registry})
}

func (c *cmdContext) started(p *combat.PendingResult) string {
	c.state.pending = p
	c.state.shownFinal = false
	return telnet.Colorize(telnet.Dim, "The dice are rolling... ('skip' to hurry)")
}

func cmdAttack(c *cmdContext) (string, error) {
	part, err := combat.ParseBodyPart(c.parsed.Arg(0))
	if err != nil {
		return "", err
	}
	p, err := c.state.game.Attack(c.ctx, part)
	if err != nil {
		return "", err
	}
	return c.started(p), nil
}

func cmdEnemy(c *cmdContext) (string, error) {
	p, err := c.state.game.EnemyAttack(c.ctx)
	if err != nil {
		return "", err
	}
	return c.started(p), nil
}

func cmdFlee(c *cmdContext) (string, error) {
	p, err := c.state.game.Flee(c.ctx)
	if err != nil {
		return "", err
	}
	return c.started(p), nil
}

func cmdUse(c *cmdContext) (string, error) {
	item, target := c.parsed.ItemArgs()
	res, err := c.state.game.UseItem(c.ctx, item, target)
	if err != nil {
		return "", err
	}
	return RenderItem(res), nil
}

func cmdFight(c *cmdContext) (string, error) {
	enemy, err := c.state.game.Encounter(c.ctx, c.parsed.RawArgs)
	if err != nil {
		return "", err
	}
	return telnet.Colorf(telnet.BrightRed, "%s blocks your path!", enemy.Name) + "\r\n" + RenderStats(c.state.game.View()), nil
}

func cmdChest(c *cmdContext) (string, error) {
	if err := c.state.game.Chest(c.ctx); err != nil {
		return "", err
	}
	return telnet.Colorize(telnet.BrightYellow, "You find a dusty treasure chest. 'open' or 'ignore'?"), nil
}

func cmdOpen(c *cmdContext) (string, error) {
	gold, err := c.state.game.ResolveChest(c.ctx, true)
	if err != nil {
		return "", err
	}
	return telnet.Colorf(telnet.BrightYellow, "The chest creaks open: %d gold!", gold), nil
}

func cmdIgnore(c *cmdContext) (string, error) {
	if _, err := c.state.game.ResolveChest(c.ctx, false); err != nil {
		return "", err
	}
	return "You leave the chest untouched.", nil
}

func cmdCollect(c *cmdContext) (string, error) {
	gold, err := c.state.game.CollectLoot(c.ctx)
	if err != nil {
		return "", err
	}
	return telnet.Colorf(telnet.BrightYellow, "You collect %d gold (total %d).", gold, c.state.game.View().Hero.Gold), nil
}

func cmdExplore(c *cmdContext) (string, error) {
	ev, err := c.state.game.Explore()
	if err != nil {
		return "", err
	}
	return RenderEvent(ev), nil
}

func cmdNext(c *cmdContext) (string, error) {
	out, err := c.state.game.Dismiss(c.ctx)
	if err != nil {
		return "", err
	}
	c.state.pending = nil
	c.state.shownFinal = false
	return RenderOutcome(out, c.state.game.View()), nil
}

func cmdSkip(c *cmdContext) (string, error) {
	return "", c.state.game.FastForward(c.ctx)
}

func cmdStats(c *cmdContext) (string, error) {
	return RenderStats(c.state.game.View()), nil
}

func cmdLog(c *cmdContext) (string, error) {
	n := defaultLogLines
	if arg := c.parsed.Arg(0); arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 {
			return "", fmt.Errorf("usage: %s", c.cmd.Usage)
		}
		n = v
	}
	return RenderLog(c.state.game.Log(n)), nil
}

func cmdRestart(c *cmdContext) (string, error) {
	if err := c.state.game.Reset(c.ctx); err != nil {
		return "", err
	}
	c.state.pending = nil
	return telnet.Colorize(telnet.BrightGreen, "A new run begins.") + "\r\n" + RenderStats(c.state.game.View()), nil
}

func cmdHelp(c *cmdContext) (string, error) {
	return telnet.Colorize(telnet.BrightWhite, "Available commands:") + "\r\n" + c.registry.HelpText(), nil
}

func cmdQuit(_ *cmdContext) (string, error) {
	return telnet.Colorize(telnet.Cyan, "The torchlight fades behind you. Goodbye."), errQuit
}

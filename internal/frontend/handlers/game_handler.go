// Package handlers runs the Telnet game loop: hero creation, command dispatch
// and live rendering of dice reveals.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/frontend/telnet"
	"github.com/cory-johannsen/dicecrawl/internal/game/command"
	"github.com/cory-johannsen/dicecrawl/internal/game/reveal"
	"github.com/cory-johannsen/dicecrawl/internal/game/session"
	"github.com/cory-johannsen/dicecrawl/internal/observability"
)

// RandomNames are offered when the player leaves the name blank.
var RandomNames = []string{
	"Aria", "Borin", "Cassia", "Doran", "Elowen",
	"Fenris", "Garrick", "Hale", "Isolde", "Jorah",
}

// HeroClasses are the selectable hero classes. Class is descriptive only.
var HeroClasses = []string{"Warrior", "Rogue", "Mage", "Cleric"}

// IdleSettings controls the idle monitor. A zero Timeout disables it.
type IdleSettings struct {
	Timeout time.Duration
	Grace   time.Duration
	Tick    time.Duration
}

// GameHandler implements telnet.SessionHandler: one game per connection,
// registered with the Manager for the duration of the session.
type GameHandler struct {
	manager  *session.Manager
	deps     session.Deps
	room     string
	idle     IdleSettings
	registry *command.Registry
	logger   *zap.Logger
}

// NewGameHandler creates a GameHandler.
//
// Precondition: manager and logger must be non-nil; deps must satisfy session.NewGame.
func NewGameHandler(manager *session.Manager, deps session.Deps, room string, idle IdleSettings, logger *zap.Logger) *GameHandler {
	return &GameHandler{
		manager:  manager,
		deps:     deps,
		room:     room,
		idle:     idle,
		registry: command.DefaultRegistry(),
		logger:   logger,
	}
}

// HandleSession runs hero creation and then the command loop until the
// player quits or the connection fails.
//
// Postcondition: Returns nil on clean quit; the game is removed from the manager.
func (h *GameHandler) HandleSession(ctx context.Context, conn *telnet.Conn) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := conn.ReadLines(ctx)

	_ = conn.WriteBlock(banner())
	name, class, err := h.createHero(conn, lines)
	if err != nil {
		return err
	}

	g, err := session.NewGame(conn.ID(), h.room, name, class, h.deps)
	if err != nil {
		_ = conn.WriteLine(RenderError(err))
		return fmt.Errorf("creating game: %w", err)
	}
	if err := h.manager.Add(g); err != nil {
		return err
	}
	defer func() {
		_ = h.manager.Remove(g.ID())
		_ = g.Close()
	}()
	g.Start()

	logger := observability.ForGame(h.logger, g.ID(), g.Room()).With(zap.String("hero", name))
	logger.Info("game started", zap.String("class", class))

	frames := make(chan reveal.Frame, 32)
	g.Subscribe(frames)
	defer g.Unsubscribe(frames)

	var lastInput atomic.Int64
	lastInput.Store(time.Now().UnixNano())
	if h.idle.Timeout > 0 {
		stop := StartIdleMonitor(IdleMonitorConfig{
			LastInput:    &lastInput,
			IdleTimeout:  h.idle.Timeout,
			GracePeriod:  h.idle.Grace,
			TickInterval: max(h.idle.Tick, 10*time.Millisecond),
			OnWarning: func() {
				_ = conn.WriteLine(telnet.Colorize(telnet.Yellow, "\r\nYou have been idle for a while. Type anything to stay."))
			},
			OnDisconnect: func() {
				_ = conn.WriteLine(telnet.Colorize(telnet.Yellow, "\r\nDisconnected for inactivity."))
				_ = conn.Close()
			},
		})
		defer stop()
	}

	st := &playState{game: g}
	_ = conn.WriteBlock(RenderStats(g.View()) + "\r\n" + telnet.Colorize(telnet.Cyan, "Type 'help' for commands, 'fight' to find an enemy."))
	_ = conn.WritePrompt(Prompt(g.View()))

	notices := g.Outbox().Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if l.Err != nil {
				return fmt.Errorf("reading input: %w", l.Err)
			}
			lastInput.Store(time.Now().UnixNano())
			text, err := dispatch(ctx, h.registry, st, l.Text)
			if errors.Is(err, errQuit) {
				_ = conn.WriteLine(text)
				logger.Info("player quit")
				return nil
			}
			if err != nil {
				text = RenderError(err)
			}
			if text != "" {
				_ = conn.WriteBlock(text)
			}
			h.drainFinal(conn, st, g)
			_ = conn.WritePrompt(Prompt(g.View()))

		case f := <-frames:
			if f.Phase == reveal.Idle {
				continue
			}
			_ = conn.Redraw(RenderFrame(f))
			if f.Phase == reveal.Final {
				_ = conn.WriteLine("")
				h.showFinal(conn, st)
				_ = conn.WritePrompt(Prompt(g.View()))
			}

		case msg, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			_ = conn.WriteLine("\r\n" + telnet.Colorize(telnet.BrightBlue, msg))
			_ = conn.WritePrompt(Prompt(g.View()))
		}
	}
}

// drainFinal shows the resolution immediately when a command (such as skip)
// left the reveal in its final phase before the driver broadcast it.
func (h *GameHandler) drainFinal(conn *telnet.Conn, st *playState, g *session.Game) {
	if st.pending != nil && !st.shownFinal && g.Phase() == reveal.Final {
		_ = conn.WriteLine(RenderFrame(g.Frame()))
		h.showFinal(conn, st)
	}
}

func (h *GameHandler) showFinal(conn *telnet.Conn, st *playState) {
	if st.pending == nil || st.shownFinal {
		return
	}
	st.shownFinal = true
	_ = conn.WriteBlock(RenderResolution(st.pending))
}

// createHero prompts for a name and class. Blank answers pick at random.
func (h *GameHandler) createHero(conn *telnet.Conn, lines <-chan telnet.Line) (name, class string, err error) {
	src := h.deps.Roller.Source()

	_ = conn.WritePrompt(telnet.Colorize(telnet.BrightWhite, "What is your name, adventurer? "))
	answer, err := nextLine(lines)
	if err != nil {
		return "", "", err
	}
	name = clampName(answer)
	if name == "" {
		name = RandomNames[src.Intn(len(RandomNames))]
	}

	_ = conn.WriteLine(telnet.Colorize(telnet.BrightWhite, "Choose your class:"))
	for i, c := range HeroClasses {
		_ = conn.WriteLine(fmt.Sprintf("  %s%d%s. %s", telnet.Green, i+1, telnet.Reset, c))
	}
	_ = conn.WritePrompt("Class [random]: ")
	answer, err = nextLine(lines)
	if err != nil {
		return "", "", err
	}
	class = pickClass(answer)
	if class == "" {
		class = HeroClasses[src.Intn(len(HeroClasses))]
	}
	_ = conn.WriteLine(telnet.Colorf(telnet.BrightGreen, "Welcome, %s the %s.", name, class))
	return name, class, nil
}

// MaxNameRunes bounds hero names.
const MaxNameRunes = 24

// clampName trims answer and cuts it to MaxNameRunes runes, dropping any
// invalid UTF-8 first.
func clampName(answer string) string {
	name := strings.ToValidUTF8(strings.TrimSpace(answer), "")
	if r := []rune(name); len(r) > MaxNameRunes {
		name = strings.TrimSpace(string(r[:MaxNameRunes]))
	}
	return name
}

// pickClass resolves a menu answer by number or name; "" means random.
func pickClass(answer string) string {
	answer = strings.TrimSpace(answer)
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(HeroClasses) {
		return HeroClasses[n-1]
	}
	for _, c := range HeroClasses {
		if strings.EqualFold(c, answer) {
			return c
		}
	}
	return ""
}

func nextLine(lines <-chan telnet.Line) (string, error) {
	l, ok := <-lines
	if !ok {
		return "", errors.New("connection closed")
	}
	if l.Err != nil {
		return "", fmt.Errorf("reading input: %w", l.Err)
	}
	return l.Text, nil
}

func banner() string {
	return telnet.Colorize(telnet.Bold+telnet.BrightRed, "=== DICECRAWL ===") + "\n" +
		telnet.Colorize(telnet.Dim, "Every blow is a roll of the dice.")
}

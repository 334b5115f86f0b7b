package handlers

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/dicecrawl/internal/frontend/telnet"
	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/combat"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/encounter"
	"github.com/cory-johannsen/dicecrawl/internal/game/reveal"
	"github.com/cory-johannsen/dicecrawl/internal/game/session"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
)

const hpBarWidth = 20

// phaseBanner labels the dramatic phases of a reveal.
var phaseBanner = map[reveal.Phase]string{
	reveal.Rolling:           telnet.Colorize(telnet.Dim, "rolling..."),
	reveal.Reveal:            telnet.Colorize(telnet.White, "reveal"),
	reveal.CritBuildup:       telnet.Colorize(telnet.Bold+telnet.BrightMagenta, "CRITICAL!"),
	reveal.ClashAnticipation: telnet.Colorize(telnet.BrightYellow, "clash!"),
	reveal.Impact:            telnet.Colorize(telnet.Bold+telnet.BrightRed, "IMPACT!"),
	reveal.Final:             telnet.Colorize(telnet.BrightWhite, "result"),
}

// RenderFrame formats a reveal frame as a single line suitable for Redraw.
// Unrevealed dice show their placeholder face; dice that had no effect are dimmed.
func RenderFrame(f reveal.Frame) string {
	parts := make([]string, 0, len(f.Dice))
	var dmg, def *reveal.DieView
	for i := range f.Dice {
		switch f.Dice[i].Kind {
		case dice.KindDamage:
			dmg = &f.Dice[i]
		case dice.KindDefense:
			def = &f.Dice[i]
		}
	}
	for _, d := range f.Dice {
		parts = append(parts, renderDie(d, f, dmg, def))
	}
	return fmt.Sprintf("[%s] %s", phaseBanner[f.Phase], strings.Join(parts, " | "))
}

func renderDie(d reveal.DieView, f reveal.Frame, dmg, def *reveal.DieView) string {
	label := d.Label
	if label == "" {
		label = string(d.Kind)
	}
	if !d.Revealed {
		return fmt.Sprintf("%s: %s", label, telnet.Colorf(telnet.Dim, "%2d", d.Shown))
	}
	if d.Ignored {
		return telnet.Colorf(telnet.Dim, "%s: %d (no effect)", label, d.Shown)
	}
	face := fmt.Sprintf("%d", d.Shown)
	if f.ShowNet && d.Kind == dice.KindDamage && def != nil && !def.Ignored && dmg != nil {
		face = fmt.Sprintf("%d - %d = %d", dmg.Value, def.Value, max(dmg.Value-def.Value, 0))
	}
	color := telnet.BrightWhite
	switch {
	case d.Crit:
		color = telnet.BrightMagenta
	case d.Target > 0 && d.Succeeded():
		color = telnet.BrightGreen
	case d.Target > 0:
		color = telnet.BrightRed
	}
	return fmt.Sprintf("%s: %s", label, telnet.Colorize(color, face))
}

// RenderResolution formats a result once its reveal is final: the narrative,
// the one-line breakdown and the step-by-step math.
func RenderResolution(p *combat.PendingResult) string {
	var b strings.Builder
	if p.TickLog != "" {
		b.WriteString(telnet.Colorize(telnet.Magenta, p.TickLog))
		b.WriteString("\r\n")
	}
	b.WriteString(telnet.Colorize(telnet.Italic+telnet.White, p.Narrative))
	b.WriteString("\r\n")
	b.WriteString(telnet.Colorize(telnet.BrightYellow, p.Breakdown))
	b.WriteString("\r\n")
	for _, line := range strings.Split(p.Trace, "\n") {
		if line == "" {
			continue
		}
		b.WriteString(telnet.Colorize(telnet.Dim, "  "+line))
		b.WriteString("\r\n")
	}
	b.WriteString(telnet.Colorize(telnet.Cyan, "Type 'next' to continue."))
	return b.String()
}

// RenderOutcome reports what a dismissal committed and what to do next.
func RenderOutcome(out session.Outcome, v session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %s\r\n", v.Hero.Name, telnet.HPBar(v.Hero.HP, v.Hero.MaxHP, hpBarWidth))
	fmt.Fprintf(&b, "%-10s %s\r\n", v.Enemy.Name, telnet.HPBar(v.Enemy.HP, v.Enemy.MaxHP, hpBarWidth))
	switch out.Mode {
	case encounter.Victory:
		b.WriteString(telnet.Colorf(telnet.BrightGreen, "Victory! %s is defeated. Type 'collect' for %d gold.", v.Enemy.Name, out.VictoryGold))
	case encounter.Death:
		b.WriteString(telnet.Colorize(telnet.BrightRed, "You have fallen. Type 'restart' to begin again."))
	case encounter.Exploration:
		b.WriteString(telnet.Colorize(telnet.Green, "You are back in the dungeon corridors."))
	case encounter.Combat:
		if v.EnemyTurn {
			b.WriteString(telnet.Colorf(telnet.Yellow, "%s readies its attack. Type 'enemy'.", v.Enemy.Name))
		} else {
			b.WriteString(telnet.Colorize(telnet.Cyan, "Your turn: attack <part>, use <item> or flee."))
		}
	}
	return b.String()
}

// RenderStats formats both combatants and the encounter state.
func RenderStats(v session.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\r\n",
		telnet.Colorf(telnet.BrightWhite, "Mode: %s", v.Mode),
		telnet.Colorf(telnet.Dim, "room %s", v.Room))
	b.WriteString(renderCombatant(v.Hero, telnet.BrightCyan))
	if v.Hero != nil {
		fmt.Fprintf(&b, "  Gold: %s\r\n", telnet.Colorf(telnet.BrightYellow, "%d", v.Hero.Gold))
		if len(v.Hero.Inventory) > 0 {
			names := make([]string, 0, len(v.Hero.Inventory))
			for _, it := range v.Hero.Inventory {
				names = append(names, it.Name)
			}
			fmt.Fprintf(&b, "  Inventory: %s\r\n", strings.Join(names, ", "))
		}
	}
	b.WriteString(renderCombatant(v.Enemy, telnet.BrightRed))
	if v.Mode == encounter.Combat {
		turn := "yours"
		if v.EnemyTurn {
			turn = "the enemy's"
		}
		fmt.Fprintf(&b, "Turn: %s\r\n", turn)
	}
	if len(v.Party) > 1 {
		fmt.Fprintf(&b, "Party: %s\r\n", strings.Join(v.Party, ", "))
	}
	return strings.TrimRight(b.String(), "\r\n")
}

func renderCombatant(c *character.Character, color string) string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	title := c.Name
	if c.Class != "" {
		title += " the " + c.Class
	}
	fmt.Fprintf(&b, "%s %s\r\n", telnet.Colorize(color, title), telnet.HPBar(c.HP, c.MaxHP, hpBarWidth))
	fmt.Fprintf(&b, "  Dmg %d-%d  Def %d-%d  Hit %d%%  Crit %d%% x%.1f\r\n",
		c.MinDmg, c.MaxDmg, c.MinDefense, c.MaxDefense, c.HitChance, c.CritChance, c.CritMult)
	for _, s := range c.Statuses {
		dur := "permanent"
		if !s.IsInfinite() {
			dur = fmt.Sprintf("%d turns", s.Duration)
		}
		fmt.Fprintf(&b, "  %s\r\n", telnet.Colorf(telnet.Magenta, "* %s (%s)", s.Name, dur))
	}
	return b.String()
}

// RenderLog formats action history, oldest first.
func RenderLog(entries []session.LogEntry) string {
	if len(entries) == 0 {
		return telnet.Colorize(telnet.Dim, "Nothing has happened yet.")
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s %s\r\n",
			telnet.Colorf(telnet.Dim, "#%d", e.Seq),
			telnet.Colorf(telnet.BrightWhite, "%-12s", e.Action),
			e.Breakdown)
		if e.Narrative != "" {
			fmt.Fprintf(&b, "    %s\r\n", telnet.Colorize(telnet.Italic, e.Narrative))
		}
		for _, line := range strings.Split(e.Trace, "\n") {
			if line != "" {
				fmt.Fprintf(&b, "    %s\r\n", telnet.Colorize(telnet.Dim, line))
			}
		}
	}
	return strings.TrimRight(b.String(), "\r\n")
}

// RenderEvent formats a dungeon event.
func RenderEvent(ev narrative.Event) string {
	return telnet.Colorize(telnet.BrightYellow, ev.Title) + "\r\n" +
		telnet.Colorize(telnet.White, ev.Description) + "\r\n" +
		telnet.Colorize(telnet.Dim, ev.Mechanics)
}

// RenderItem formats an item use.
func RenderItem(res combat.ItemResult) string {
	line := telnet.Colorf(telnet.Green, "%s used on %s: +%d HP.", res.Item.Name, res.Target, res.Healed)
	if res.Narrative == "" {
		return line
	}
	return telnet.Colorize(telnet.Italic, res.Narrative) + "\r\n" + line
}

// RenderError formats a rejected command.
func RenderError(err error) string {
	return telnet.Colorize(telnet.Red, err.Error())
}

// Prompt renders the input prompt for v.
func Prompt(v session.View) string {
	return telnet.Colorf(telnet.BrightCyan, "[%s %d/%d | %s]> ", v.Hero.Name, v.Hero.HP, v.Hero.MaxHP, v.Mode)
}

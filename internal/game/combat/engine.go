package combat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dicecrawl/internal/game/character"
	"github.com/cory-johannsen/dicecrawl/internal/game/dice"
	"github.com/cory-johannsen/dicecrawl/internal/game/stats"
	"github.com/cory-johannsen/dicecrawl/internal/game/status"
	"github.com/cory-johannsen/dicecrawl/internal/narrative"
)

// Options tunes the engine's fixed rules.
type Options struct {
	// FleeDC is the minimum d20 roll for a successful flee.
	FleeDC int
	// PotionHeal is the dice expression rolled for potion items.
	PotionHeal string
	// ItemHeal is the flat heal of any other consumable.
	ItemHeal int
}

// DefaultOptions returns the standard rule set: flee on 6+, potions heal 1d8+2, other items heal 5.
func DefaultOptions() Options {
	return Options{FleeDC: 6, PotionHeal: "1d8+2", ItemHeal: 5}
}

// Engine resolves actions into PendingResults. It never mutates a Character;
// results are applied by Buffer.Commit once the reveal has finished.
//
// Only one action may be in flight at a time.
type Engine struct {
	src      Source
	narrator narrative.Narrator
	buffer   *Buffer
	logger   *zap.Logger

	fleeDC     int
	potionHeal dice.Expression
	itemHeal   int

	mu        sync.Mutex
	computing bool
}

// NewEngine creates an Engine.
//
// Precondition: src, buffer and logger must be non-nil; narrator may be nil,
// in which case fallback text is always used.
// Postcondition: Returns an Engine or an error if opts are invalid.
func NewEngine(src Source, narrator narrative.Narrator, buffer *Buffer, logger *zap.Logger, opts Options) (*Engine, error) {
	if opts.FleeDC < 1 || opts.FleeDC > 20 {
		return nil, fmt.Errorf("flee dc %d must be in [1,20]", opts.FleeDC)
	}
	if opts.ItemHeal < 0 {
		return nil, fmt.Errorf("item heal %d must be >= 0", opts.ItemHeal)
	}
	heal, err := dice.Parse(opts.PotionHeal)
	if err != nil {
		return nil, fmt.Errorf("potion heal: %w", err)
	}
	return &Engine{
		src:        src,
		narrator:   narrator,
		buffer:     buffer,
		logger:     logger,
		fleeDC:     opts.FleeDC,
		potionHeal: heal,
		itemHeal:   opts.ItemHeal,
	}, nil
}

// Busy reports whether an action is being computed or awaits commit.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.computing || e.buffer.Busy()
}

func (e *Engine) begin() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.computing || e.buffer.Busy() {
		return ErrActionInFlight
	}
	e.computing = true
	return nil
}

func (e *Engine) end() {
	e.mu.Lock()
	e.computing = false
	e.mu.Unlock()
}

type tickPass struct {
	hero  status.TickResult
	enemy status.TickResult
	log   string
}

func tickBoth(hero, enemy *character.Character) tickPass {
	t := tickPass{hero: status.Tick(hero.Statuses), enemy: status.Tick(enemy.Statuses)}
	var parts []string
	if len(t.hero.Log) > 0 {
		parts = append(parts, fmt.Sprintf("[%s] %s.", hero.Name, strings.Join(t.hero.Log, "; ")))
	}
	if len(t.enemy.Log) > 0 {
		parts = append(parts, fmt.Sprintf("[%s] %s.", enemy.Name, strings.Join(t.enemy.Log, "; ")))
	}
	t.log = strings.Join(parts, " ")
	return t
}

func (e *Engine) newPending(kind ActionKind, target character.Side, t tickPass) *PendingResult {
	return &PendingResult{
		ID:            uuid.NewString(),
		Action:        kind,
		Target:        target,
		AppliesToHero: true,
		StatusDamage:  SideDamage{Hero: t.hero.TotalDamage, Enemy: t.enemy.TotalDamage},
		HeroStatuses:  t.hero.Statuses,
		EnemyStatuses: t.enemy.Statuses,
		TickLog:       t.log,
	}
}

// Attack resolves a targeted hero attack on part and stages the result.
//
// Precondition: hero and enemy must be non-nil.
// Postcondition: on success exactly one PendingResult is staged; on error nothing is.
func (e *Engine) Attack(ctx context.Context, hero, enemy *character.Character, part BodyPart) (*PendingResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	tick := tickBoth(hero, enemy)
	heroEff := stats.Resolve(stats.Base(hero), tick.hero.Statuses)
	enemyEff := stats.Resolve(stats.Base(enemy), tick.enemy.Statuses)

	tgt, err := ResolveTarget(part, enemyEff, e.src)
	if err != nil {
		return nil, err
	}
	hr := RollToHit(e.src, heroEff.HitChance, tgt.HitModifier, hero.CritChance)

	p := e.newPending(ActionAttack, character.Enemy, tick)
	p.Roll, p.Hit, p.Crit = hr.Roll, hr.Hit, hr.Crit

	var dmg Damage
	if hr.Hit {
		base := RollRange(e.src, heroEff.MinDmg, heroEff.MaxDmg)
		def := RollRange(e.src, enemyEff.MinDefense, enemyEff.MaxDefense)
		dmg = ComputeDamage(base, tgt.DamageMultiplier, hr.Crit, hero.CritMult, tgt.FlatModifier, def)
		p.HPDelta = -dmg.Final
		p.Damage, p.Defense = dmg.Final, def
		p.NewStatus = tgt.Debuff
		p.Trace = dmg.Trace(tgt.Label)
		if tgt.Debuff != nil {
			p.Trace += "\n+ Effect: " + tgt.Debuff.Name
		}
		p.Breakdown = fmt.Sprintf("Hit %s (%d) | Damage: %d - Def: %d = %d", tgt.Label, hr.Roll, dmg.Raw, def, dmg.Final)
	} else {
		p.Trace = fmt.Sprintf("Miss: %d > %d%% (Req)", hr.Roll, hr.Target)
		p.Breakdown = fmt.Sprintf("Miss %s: %d (Req: %d)", tgt.Label, hr.Roll, hr.Target)
	}
	p.Category = classify(hr, dmg.Final, dmg.Defense, enemy.HP-tick.enemy.TotalDamage)

	p.Dice = []dice.Die{
		hitDie("hit-roll", "To hit (1-100)", hr),
		{ID: "dmg-roll", Kind: dice.KindDamage, Label: "Damage", Sides: 20, Value: max(0, dmg.Raw), Ignored: !hr.Hit, Crit: hr.Crit},
		{ID: "def-roll", Kind: dice.KindDefense, Label: "Defense", Sides: 6, Value: dmg.Defense, Ignored: !hr.Hit},
	}
	if hr.Hit && tgt.DebuffSides > 0 {
		p.Dice = append(p.Dice, debuffDie(part, tgt))
	}

	contextText := strings.TrimSpace(fmt.Sprintf("%s Targeted attack on %s.", tick.log, tgt.Label))
	if hr.Hit && tgt.Debuff != nil {
		contextText += " Applied " + tgt.Debuff.Name + "."
	}
	p.Story = narrative.Request{
		Action:    narrative.ActionAttack,
		Category:  p.Category,
		Attacker:  view(hero),
		Defender:  view(enemy),
		Context:   contextText,
		Roll:      hr.Roll,
		Breakdown: p.Breakdown,
		Hit:       hr.Hit,
		Crit:      hr.Crit,
		Damage:    p.Damage,
		Defense:   p.Defense,
	}
	return p, e.stage(p)
}

// EnemyAttack resolves the enemy's turn against one party slot and stages the result.
// party lists every hero-side name; an empty party means solo play.
//
// Precondition: hero and enemy must be non-nil.
// Postcondition: the target die has max(len(party), 6) sides; in solo play the
// hero is always the target.
func (e *Engine) EnemyAttack(ctx context.Context, hero, enemy *character.Character, party []string) (*PendingResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	members := max(len(party), 1)
	sides := max(members, 6)
	targetRoll := e.src.Intn(sides) + 1
	targetName := hero.Name
	if len(party) > 0 {
		targetName = party[(targetRoll-1)%members]
	}

	tick := tickBoth(hero, enemy)
	heroEff := stats.Resolve(stats.Base(hero), tick.hero.Statuses)
	enemyEff := stats.Resolve(stats.Base(enemy), tick.enemy.Statuses)

	hr := RollToHit(e.src, enemyEff.HitChance, 0, enemy.CritChance)
	p := e.newPending(ActionEnemyAttack, character.Hero, tick)
	p.TargetName = targetName
	p.AppliesToHero = members == 1 || targetName == hero.Name
	p.Roll, p.Hit, p.Crit = hr.Roll, hr.Hit, hr.Crit

	var dmg Damage
	if hr.Hit {
		base := RollRange(e.src, enemyEff.MinDmg, enemyEff.MaxDmg)
		def := RollRange(e.src, heroEff.MinDefense, heroEff.MaxDefense)
		dmg = ComputeDamage(base, 1.0, hr.Crit, enemy.CritMult, 0, def)
		p.HPDelta = -dmg.Final
		p.Damage, p.Defense = dmg.Final, def
		p.Trace = dmg.Trace("")
		p.Breakdown = fmt.Sprintf("Hit (%d) | Damage: %d - Def: %d = %d", hr.Roll, dmg.Raw, def, dmg.Final)
	} else {
		p.Trace = fmt.Sprintf("Enemy miss: %d > %d%%", hr.Roll, hr.Target)
		p.Breakdown = fmt.Sprintf("Miss (%d)", hr.Roll)
	}
	defenderHP := hero.HP - tick.hero.TotalDamage
	if !p.AppliesToHero {
		defenderHP = dmg.Final + 1
	}
	p.Category = classify(hr, dmg.Final, dmg.Defense, defenderHP)

	p.Dice = []dice.Die{
		{ID: "target-roll", Kind: dice.KindTarget, Label: "Target: " + targetName, Sides: sides, Value: targetRoll},
		hitDie("enemy-hit-roll", "Attack", hr),
		{ID: "enemy-dmg-roll", Kind: dice.KindDamage, Label: "Damage", Sides: 20, Value: max(0, dmg.Raw), Ignored: !hr.Hit, Crit: hr.Crit},
		{ID: "hero-def-roll", Kind: dice.KindDefense, Label: "Defense", Sides: 6, Value: dmg.Defense, Ignored: !hr.Hit},
	}

	p.Story = narrative.Request{
		Action:    narrative.ActionEnemyAttack,
		Category:  p.Category,
		Attacker:  view(enemy),
		Defender:  combatantNamed(hero, targetName),
		Context:   strings.TrimSpace(fmt.Sprintf("%s Target die d%d(%d) picks %s.", tick.log, sides, targetRoll, targetName)),
		Roll:      hr.Roll,
		Breakdown: p.Breakdown,
		Hit:       hr.Hit,
		Crit:      hr.Crit,
		Damage:    p.Damage,
		Defense:   p.Defense,
	}
	return p, e.stage(p)
}

// Flee rolls a d20 against the flee DC. Success schedules an Escape transition
// that the encounter applies at commit.
func (e *Engine) Flee(ctx context.Context, hero, enemy *character.Character) (*PendingResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	tick := tickBoth(hero, enemy)
	roll := e.src.Intn(20) + 1
	ok := roll >= e.fleeDC

	p := e.newPending(ActionFlee, character.Hero, tick)
	p.Roll, p.Hit = roll, ok
	p.Breakdown = fmt.Sprintf("Agility: d20(%d)", roll)
	p.Trace = fmt.Sprintf("Agility: d20 (%d) vs DC %d", roll, e.fleeDC)
	p.Category = narrative.FleeFail
	if ok {
		p.Category = narrative.FleeSuccess
		p.Transition = Escape
	}
	p.Dice = []dice.Die{{
		ID: "flee-roll", Kind: dice.KindFlee, Label: "Agility (1-20)", Sides: 20,
		Value: roll, Target: e.fleeDC, Compare: dice.Over,
	}}

	outcome := "FAILED"
	if ok {
		outcome = "SUCCEEDED"
	}
	p.Story = narrative.Request{
		Action:    narrative.ActionFlee,
		Category:  p.Category,
		Attacker:  view(hero),
		Defender:  view(enemy),
		Context:   strings.TrimSpace(fmt.Sprintf("%s Escape attempt %s.", tick.log, outcome)),
		Roll:      roll,
		Breakdown: p.Breakdown,
		Hit:       ok,
	}
	return p, e.stage(p)
}

// ItemResult is the immediate outcome of using an item.
type ItemResult struct {
	Item   character.Item
	Target string
	// Rolled is the heal amount before the MaxHP cap.
	Rolled int
	// Healed is the HP actually restored to the hero; zero when another party
	// member was the target.
	Healed int
	// Story is the narration request; Narrative is filled from it by the caller.
	Story     narrative.Request
	Narrative string
}

// UseItem consumes an item from hero's inventory immediately, without a
// status tick or PendingResult. The heal is applied only when target is empty
// or names the hero.
//
// Postcondition: the item is removed from the inventory on success.
func (e *Engine) UseItem(ctx context.Context, hero *character.Character, ref, target string) (ItemResult, error) {
	if err := e.begin(); err != nil {
		return ItemResult{}, err
	}
	defer e.end()

	idx := hero.FindItem(ref)
	if idx < 0 {
		return ItemResult{}, fmt.Errorf("%w: %q", ErrItemNotFound, ref)
	}
	item := hero.Inventory[idx]
	amount := e.itemHeal
	if item.IsPotion() {
		amount = e.potionHeal.Roll(e.src).Total()
	}
	if target == "" {
		target = hero.Name
	}

	res := ItemResult{Item: item, Target: target, Rolled: amount}
	if strings.EqualFold(target, hero.Name) {
		healed, err := e.buffer.ApplyHeal(hero, idx, amount)
		if err != nil {
			return ItemResult{}, err
		}
		res.Healed = healed
	} else if err := e.buffer.ConsumeItem(hero, idx); err != nil {
		return ItemResult{}, err
	}

	res.Story = narrative.Request{
		Action:   narrative.ActionItem,
		Category: narrative.ItemUse,
		Attacker: view(hero),
		Defender: narrative.Combatant{Name: target},
		Context:  fmt.Sprintf("%s uses %s on %s, restoring %d HP.", hero.Name, item.Name, target, res.Healed),
		Hit:      true,
	}
	e.logger.Debug("item used",
		zap.String("item", item.Name),
		zap.String("target", target),
		zap.Int("rolled", amount),
		zap.Int("healed", res.Healed),
	)
	return res, nil
}

func (e *Engine) stage(p *PendingResult) error {
	if err := e.buffer.Stage(p); err != nil {
		return err
	}
	values := make([]int, len(p.Dice))
	for i, d := range p.Dice {
		values[i] = d.Value
	}
	e.logger.Debug("action staged",
		zap.String("id", p.ID),
		zap.String("action", string(p.Action)),
		zap.String("category", string(p.Category)),
		zap.Ints("dice", values),
		zap.Int("hp_delta", p.HPDelta),
		zap.Int("status_damage_hero", p.StatusDamage.Hero),
		zap.Int("status_damage_enemy", p.StatusDamage.Enemy),
		zap.String("breakdown", p.Breakdown),
	)
	return nil
}

// Narrate asks the narrator for the text of a resolved action. Attack,
// EnemyAttack, Flee and UseItem only fill in the request (Story).
//
// Postcondition: never returns an empty string; failures yield the category fallback.
func (e *Engine) Narrate(ctx context.Context, req narrative.Request) string {
	if e.narrator == nil {
		return narrative.FallbackText(req)
	}
	text, err := e.narrator.Narrate(ctx, req)
	if err != nil || strings.TrimSpace(text) == "" {
		e.logger.Warn("narrative generation failed; using fallback",
			zap.String("action", string(req.Action)),
			zap.Error(err),
		)
		return narrative.FallbackText(req)
	}
	return text
}

// classify picks the narrative category of an attack. Order: miss, kill, crit, blocked, hit.
func classify(hr HitRoll, final, defense, defenderHP int) narrative.Category {
	switch {
	case !hr.Hit:
		return narrative.Miss
	case final >= defenderHP:
		return narrative.Kill
	case hr.Crit:
		return narrative.CriticalHit
	case float64(defense) > float64(final)*1.5:
		return narrative.Blocked
	default:
		return narrative.Hit
	}
}

func hitDie(id, label string, hr HitRoll) dice.Die {
	return dice.Die{
		ID: id, Kind: dice.KindHit, Label: label, Sides: 100, Value: hr.Roll,
		Target: hr.Target, Compare: dice.Under, Crit: hr.Crit, CritThreshold: hr.CritChance,
	}
}

func debuffDie(part BodyPart, t Targeting) dice.Die {
	label := "Accuracy (-% hit)"
	if part != Legs {
		label = "Weaken max (4-6)"
		if t.DebuffRoll <= 3 {
			label = "Weaken min (1-3)"
		}
	}
	return dice.Die{ID: "debuff-roll", Kind: dice.KindDebuff, Label: label, Sides: t.DebuffSides, Value: t.DebuffRoll, Compare: dice.Over}
}

func view(c *character.Character) narrative.Combatant {
	return narrative.Combatant{Name: c.Name, Class: c.Class, HP: c.HP, MaxHP: c.MaxHP}
}

func combatantNamed(hero *character.Character, name string) narrative.Combatant {
	if name == hero.Name {
		return view(hero)
	}
	return narrative.Combatant{Name: name}
}

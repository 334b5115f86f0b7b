// Package command provides the command registry, parser, and built-in command definitions.
package command

// Categories for organizing commands.
const (
	CategoryCombat  = "combat"
	CategoryExplore = "explore"
	CategoryReveal  = "reveal"
	CategoryInfo    = "info"
	CategorySystem  = "system"
)

// Handler identifiers mapping commands to game operations.
const (
	HandlerAttack  = "attack"
	HandlerEnemy   = "enemy"
	HandlerFlee    = "flee"
	HandlerUse     = "use"
	HandlerFight   = "fight"
	HandlerChest   = "chest"
	HandlerOpen    = "open"
	HandlerIgnore  = "ignore"
	HandlerCollect = "collect"
	HandlerExplore = "explore"
	HandlerNext    = "next"
	HandlerSkip    = "skip"
	HandlerStats   = "stats"
	HandlerLog     = "log"
	HandlerRestart = "restart"
	HandlerHelp    = "help"
	HandlerQuit    = "quit"
)

// Command defines a player-invocable command.
type Command struct {
	// Name is the canonical command name.
	Name string
	// Aliases are alternate names for this command.
	Aliases []string
	// Usage shows the argument shape, e.g. "attack <part>".
	Usage string
	// Help is the short help text displayed to players.
	Help string
	// Category groups the command for the help listing.
	Category string
	// Handler maps to the game operation.
	Handler string
	// MinArgs is the number of arguments the command requires.
	MinArgs int
}

// BuiltinCommands returns all built-in commands for the game.
func BuiltinCommands() []Command {
	return []Command{
		{Name: "attack", Aliases: []string{"a", "hit"}, Usage: "attack <torso|head|legs|arm_r|arm_l>", Help: "Attack the enemy at a body part", Category: CategoryCombat, Handler: HandlerAttack, MinArgs: 1},
		{Name: "enemy", Aliases: []string{"e"}, Usage: "enemy", Help: "Let the enemy take its turn", Category: CategoryCombat, Handler: HandlerEnemy},
		{Name: "flee", Aliases: []string{"run"}, Usage: "flee", Help: "Attempt to escape combat (d20)", Category: CategoryCombat, Handler: HandlerFlee},
		{Name: "use", Aliases: []string{"u", "quaff"}, Usage: "use <item> [target]", Help: "Use an inventory item", Category: CategoryCombat, Handler: HandlerUse, MinArgs: 1},

		{Name: "fight", Aliases: []string{"f"}, Usage: "fight [enemy|boss]", Help: "Start an encounter", Category: CategoryExplore, Handler: HandlerFight},
		{Name: "chest", Aliases: nil, Usage: "chest", Help: "Search for a treasure chest", Category: CategoryExplore, Handler: HandlerChest},
		{Name: "open", Aliases: nil, Usage: "open", Help: "Open the chest", Category: CategoryExplore, Handler: HandlerOpen},
		{Name: "ignore", Aliases: []string{"leave"}, Usage: "ignore", Help: "Leave the chest closed", Category: CategoryExplore, Handler: HandlerIgnore},
		{Name: "collect", Aliases: []string{"loot"}, Usage: "collect", Help: "Collect the victory gold", Category: CategoryExplore, Handler: HandlerCollect},
		{Name: "explore", Aliases: []string{"x"}, Usage: "explore", Help: "Wander the dungeon", Category: CategoryExplore, Handler: HandlerExplore},

		{Name: "next", Aliases: []string{"n", "ok"}, Usage: "next", Help: "Accept the revealed result", Category: CategoryReveal, Handler: HandlerNext},
		{Name: "skip", Aliases: []string{"ff"}, Usage: "skip", Help: "Skip the reveal animation", Category: CategoryReveal, Handler: HandlerSkip},

		{Name: "stats", Aliases: []string{"st", "status"}, Usage: "stats", Help: "Show both combatants", Category: CategoryInfo, Handler: HandlerStats},
		{Name: "log", Aliases: []string{"history"}, Usage: "log [n]", Help: "Show recent actions with their math", Category: CategoryInfo, Handler: HandlerLog},

		{Name: "restart", Aliases: []string{"reset"}, Usage: "restart", Help: "Start a new run", Category: CategorySystem, Handler: HandlerRestart},
		{Name: "quit", Aliases: []string{"exit"}, Usage: "quit", Help: "Disconnect from the game", Category: CategorySystem, Handler: HandlerQuit},
		{Name: "help", Aliases: []string{"?"}, Usage: "help", Help: "Show available commands", Category: CategorySystem, Handler: HandlerHelp},
	}
}

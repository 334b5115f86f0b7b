package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownCommand is returned by Lookup for an unregistered name.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrMissingArgs is returned by Lookup when too few arguments were given.
	ErrMissingArgs = errors.New("missing arguments")
)

// categoryOrder fixes the help listing order.
var categoryOrder = []string{CategoryCombat, CategoryExplore, CategoryReveal, CategoryInfo, CategorySystem}

// Registry maps command names and aliases to Command definitions.
type Registry struct {
	commands map[string]*Command // canonical name → command
	aliases  map[string]string   // alias → canonical name
}

// NewRegistry creates a Registry populated with the given commands.
//
// Precondition: No two commands may share a canonical name or alias.
// Postcondition: Returns a Registry or an error on name/alias collisions.
func NewRegistry(cmds []Command) (*Registry, error) {
	r := &Registry{
		commands: make(map[string]*Command, len(cmds)),
		aliases:  make(map[string]string),
	}

	for i := range cmds {
		cmd := &cmds[i]
		if _, exists := r.commands[cmd.Name]; exists {
			return nil, fmt.Errorf("duplicate command name: %q", cmd.Name)
		}
		if _, exists := r.aliases[cmd.Name]; exists {
			return nil, fmt.Errorf("command name %q conflicts with an existing alias", cmd.Name)
		}
		r.commands[cmd.Name] = cmd

		for _, alias := range cmd.Aliases {
			if _, exists := r.commands[alias]; exists {
				return nil, fmt.Errorf("alias %q conflicts with command name %q", alias, alias)
			}
			if existing, exists := r.aliases[alias]; exists {
				return nil, fmt.Errorf("duplicate alias %q: used by %q and %q", alias, existing, cmd.Name)
			}
			r.aliases[alias] = cmd.Name
		}
	}

	return r, nil
}

// DefaultRegistry creates a Registry with all built-in commands.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(BuiltinCommands())
	if err != nil {
		panic(fmt.Sprintf("building default registry: %v", err))
	}
	return r
}

// Resolve looks up a command by name or alias.
//
// Postcondition: Returns (command, true) if found, or (nil, false).
func (r *Registry) Resolve(input string) (*Command, bool) {
	if cmd, ok := r.commands[input]; ok {
		return cmd, true
	}
	if canonical, ok := r.aliases[input]; ok {
		return r.commands[canonical], true
	}
	return nil, false
}

// Lookup resolves a parsed line and checks its argument count.
//
// Postcondition: the error wraps ErrUnknownCommand or ErrMissingArgs.
func (r *Registry) Lookup(p ParseResult) (*Command, error) {
	cmd, ok := r.Resolve(p.Command)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, p.Command)
	}
	if len(p.Args) < cmd.MinArgs {
		return nil, fmt.Errorf("%w: usage: %s", ErrMissingArgs, cmd.Usage)
	}
	return cmd, nil
}

// Commands returns all registered commands sorted by name.
func (r *Registry) Commands() []*Command {
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// CommandsByCategory returns commands grouped by category.
func (r *Registry) CommandsByCategory() map[string][]*Command {
	categories := make(map[string][]*Command)
	for _, cmd := range r.Commands() {
		categories[cmd.Category] = append(categories[cmd.Category], cmd)
	}
	return categories
}

// HelpText renders the command listing grouped by category.
func (r *Registry) HelpText() string {
	byCat := r.CommandsByCategory()
	var b strings.Builder
	for _, cat := range categoryOrder {
		cmds := byCat[cat]
		if len(cmds) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\r\n", strings.ToUpper(cat[:1])+cat[1:])
		for _, c := range cmds {
			fmt.Fprintf(&b, "  %-40s %s\r\n", c.Usage, c.Help)
		}
	}
	return b.String()
}

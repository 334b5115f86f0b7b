package command

import "strings"

// ParseResult holds the parsed command name and arguments from a text line.
type ParseResult struct {
	// Command is the first word of the input, lowercased.
	Command string
	// Args are the remaining words after the command.
	Args []string
	// RawArgs is the raw text after the command, preserving inner spacing.
	RawArgs string
}

// Parse splits a text line into a command and arguments.
//
// Postcondition: Returns a ParseResult. If line is blank, Command is empty.
func Parse(line string) ParseResult {
	line = strings.TrimSpace(line)
	if line == "" {
		return ParseResult{}
	}

	cmd, rest, found := strings.Cut(line, " ")
	if !found {
		return ParseResult{Command: strings.ToLower(cmd)}
	}
	rest = strings.TrimSpace(rest)

	var args []string
	if rest != "" {
		args = strings.Fields(rest)
	}
	return ParseResult{
		Command: strings.ToLower(cmd),
		Args:    args,
		RawArgs: rest,
	}
}

// Arg returns the i-th argument or "" when absent.
func (p ParseResult) Arg(i int) string {
	if i < 0 || i >= len(p.Args) {
		return ""
	}
	return p.Args[i]
}

// ItemArgs splits "use" arguments into an item reference and an optional
// target. Item names may contain spaces; a trailing "on <target>" or
// "@<target>" names the target.
//
// Postcondition: item is empty only when there are no arguments.
func (p ParseResult) ItemArgs() (item, target string) {
	raw := p.RawArgs
	if before, after, ok := strings.Cut(raw, " on "); ok {
		return strings.TrimSpace(before), strings.TrimSpace(after)
	}
	if i := strings.LastIndex(raw, " @"); i >= 0 {
		return strings.TrimSpace(raw[:i]), strings.TrimSpace(raw[i+2:])
	}
	return strings.TrimSpace(raw), ""
}

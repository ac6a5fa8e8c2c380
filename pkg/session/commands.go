package session

import (
	"fmt"
	"strings"

	"github.com/Thurtea/amlp-driver/pkg/object"
	"github.com/Thurtea/amlp-driver/pkg/value"
)

var directionNames = map[string]string{
	"n": "north", "north": "north",
	"s": "south", "south": "south",
	"e": "east", "east": "east",
	"w": "west", "west": "west",
	"u": "up", "up": "up",
	"d": "down", "down": "down",
}

// builtinDispatch runs spec.md §6's built-in command set: the fallback
// every script-driven command handler falls through to (by returning
// Null or an Int) and the path used whenever no bound object exists at
// all (e.g. during a stub-free test session).
func (s *Session) builtinDispatch(line string) string {
	word, rest, _ := strings.Cut(line, " ")
	cmd := strings.ToLower(word)
	rest = strings.TrimSpace(rest)

	if dir, ok := directionNames[cmd]; ok {
		return s.move(dir)
	}

	switch cmd {
	case "quit":
		s.quit()
		return "Goodbye."
	case "save":
		s.save()
		return "Saved."
	case "help":
		return s.help()
	case "ls", "cd", "pwd", "cat":
		return s.filesystemCommand(cmd, rest)
	case "shutdown", "users", "promote":
		return s.adminCommand(cmd, rest)
	default:
		return "Huh? Type 'help' for a list of commands."
	}
}

func (s *Session) help() string {
	lines := []string{
		"Movement: north/n, south/s, east/e, west/w, up/u, down/d",
		"quit       disconnect, saving your character",
		"save       save your character without disconnecting",
		"help       show this text",
	}
	if s.PrivLevel >= 1 {
		lines = append(lines, "ls, cd, pwd, cat   browse the sandboxed script filesystem")
	}
	if s.PrivLevel >= 2 {
		lines = append(lines, "shutdown, users, promote <name>   administer the driver")
	}
	return strings.Join(lines, "\n")
}

// move walks the bound object's "exits" property (a Mapping from
// direction name to a destination object's path) and relocates it via
// the move_object efun, the same primitive a script would call.
func (s *Session) move(direction string) string {
	obj, ok := s.BoundObject.AsObject().(*object.Object)
	if !ok {
		return "You have no body."
	}
	exitsVal, ok := obj.Property("exits")
	if !ok || exitsVal.Kind() != value.Mapping {
		return "There is nowhere to go from here."
	}
	dest, ok := exitsVal.AsMapping().Get(direction)
	if !ok || dest.Kind() != value.String {
		return "You can't go that way."
	}
	destObj := s.registry.Objects().Find(dest.AsString())
	if destObj == nil {
		return "The way is blocked."
	}
	entry, ok := s.machine.LookupEfun("move_object")
	if !ok {
		return "Movement is unavailable."
	}
	if _, rerr := entry.Fn(s.machine, []value.Value{s.BoundObject, object.ValueOf(destObj)}); rerr != nil {
		return "You can't go that way."
	}
	return fmt.Sprintf("You go %s.", direction)
}

// filesystemCommand implements the priv≥1 read-only script-filesystem
// browsing commands, routed through the same Sandbox the file efuns
// use so a player can never see outside root.
func (s *Session) filesystemCommand(cmd, arg string) string {
	if s.PrivLevel < 1 {
		return "You don't have permission to use that command."
	}
	switch cmd {
	case "pwd":
		return s.registry.Filesystem().Root()
	case "cd":
		return "cd is not stateful in this build; pass full paths to ls/cat."
	case "ls":
		if arg == "" {
			arg = "."
		}
		entry, _ := s.machine.LookupEfun("get_dir")
		result, rerr := entry.Fn(s.machine, []value.Value{value.StringValue(arg)})
		if rerr != nil || result.Kind() != value.Array {
			return fmt.Sprintf("ls: cannot access %q", arg)
		}
		var names []string
		for _, v := range result.AsArray().Elements() {
			names = append(names, v.AsString())
		}
		return strings.Join(names, "  ")
	case "cat":
		if arg == "" {
			return "cat: missing file operand"
		}
		entry, _ := s.machine.LookupEfun("read_file")
		result, rerr := entry.Fn(s.machine, []value.Value{value.StringValue(arg)})
		if rerr != nil || result.Kind() != value.String {
			return fmt.Sprintf("cat: cannot read %q", arg)
		}
		return result.AsString()
	default:
		return "Huh? Type 'help' for a list of commands."
	}
}

// adminCommand implements the priv≥2 operator commands.
func (s *Session) adminCommand(cmd, arg string) string {
	if s.PrivLevel < 2 {
		return "You don't have permission to use that command."
	}
	if s.host == nil {
		return "Administration is unavailable in this session."
	}
	switch cmd {
	case "shutdown":
		s.host.RequestShutdown()
		return "Shutting down..."
	case "users":
		var names []string
		for _, other := range s.host.Sessions() {
			if other.Username != "" {
				names = append(names, other.Username)
			}
		}
		if len(names) == 0 {
			return "No players connected."
		}
		return strings.Join(names, ", ")
	case "promote":
		if arg == "" {
			return "Usage: promote <name>"
		}
		for _, other := range s.host.Sessions() {
			if strings.EqualFold(other.Username, arg) {
				other.PrivLevel = 2
				other.save()
				return fmt.Sprintf("%s is now a wizard.", other.Username)
			}
		}
		return fmt.Sprintf("No connected player named %q.", arg)
	default:
		return "Huh? Type 'help' for a list of commands."
	}
}

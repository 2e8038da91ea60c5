package handlers

import (
	"strings"
)

// Command is an inbound text split into its canonical name and arguments.
type Command struct {
	Name  string // canonical; empty when the text names no known command
	Raw   string // first token as typed, without slash or @bot suffix
	Args  []string
	Flags map[string]bool
}

// Flag reports whether --name was given.
func (c Command) Flag(name string) bool { return c.Flags[name] }

// Rest joins the non-flag arguments starting at i.
func (c Command) Rest(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// ParseCommand splits text on whitespace. The leading slash is optional, a
// "@botname" suffix is dropped and names match case-insensitively. Arguments
// starting with "--" become flags. ok is false for blank text.
func ParseCommand(text string) (cmd Command, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{}, false
	}

	head := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	head = strings.ToLower(head)

	cmd = Command{Raw: head, Name: aliases[head], Flags: map[string]bool{}}
	for _, f := range fields[1:] {
		if strings.HasPrefix(f, "--") && len(f) > 2 {
			cmd.Flags[strings.ToLower(f[2:])] = true
			continue
		}
		cmd.Args = append(cmd.Args, f)
	}
	return cmd, true
}

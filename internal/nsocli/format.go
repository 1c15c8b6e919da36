// Package nsocli turns a raw NSO CLI command into a shell invocation that
// pipes it, line by line, into a non-interactive ncs_cli session inside the
// target container.
package nsocli

import (
	"strings"
)

// Style selects the ncs_cli flavour.
type Style string

const (
	// StyleDefault leaves the choice to ncs_cli.
	StyleDefault Style = ""
	StyleCisco   Style = "cisco"
	StyleJuniper Style = "juniper"
)

// DefaultPrelude is sent ahead of every command so that hidden debug
// commands are available in the session.
const DefaultPrelude = "unhide debug"

// Formatter builds invocation strings for a container runtime and CLI user.
// The zero value is not usable; use New.
type Formatter struct {
	Runtime string // container runtime binary, e.g. "docker"
	User    string // ncs_cli -u
	Prelude string // session setup command, empty for none
	Style   Style
}

// New returns a Formatter with the defaults used by the NSO docker images.
func New() *Formatter {
	return &Formatter{
		Runtime: "docker",
		User:    "admin",
		Prelude: DefaultPrelude,
	}
}

// Format returns the shell invocation that runs command against target.
//
// The command is escaped for a single-quoted argument to echo -e, and the
// resulting pipeline is escaped again for bash -lc, so any quotes in the
// command reach ncs_cli unchanged. Newlines (literal or "\n") separate
// multiple CLI commands.
func (f *Formatter) Format(target, command string) string {
	script := command
	if f.Prelude != "" {
		script = f.Prelude + "\n" + command
	}

	var cli strings.Builder
	cli.WriteString("ncs_cli --noninteractive --stop-on-error")
	switch f.Style {
	case StyleCisco:
		cli.WriteString(" -C")
	case StyleJuniper:
		cli.WriteString(" -J")
	}
	cli.WriteString(" -u ")
	cli.WriteString(Quote(f.User))

	pipeline := "echo -e " + Quote(script) + " | " + cli.String() + " 2>&1"

	return f.Runtime + " exec " + Quote(target) + " bash -lc " + Quote(pipeline)
}

// Quote wraps s in single quotes, escaping any embedded single quotes
// as '\'' (end quote, escaped quote, start quote).
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ParseStyle maps a style name to a Style. Unknown names yield false.
func ParseStyle(name string) (Style, bool) {
	switch Style(strings.ToLower(name)) {
	case StyleDefault:
		return StyleDefault, true
	case StyleCisco:
		return StyleCisco, true
	case StyleJuniper:
		return StyleJuniper, true
	}
	return StyleDefault, false
}

package process

import (
	"errors"
	"os/exec"
	"strings"
)

// Spec describes the child server process.
type Spec struct {
	Name         string   `json:"name"`
	Command      string   `json:"command"`       // executable, or a shell command line when Args is empty
	Args         []string `json:"args"`          // explicit arguments; disables shell parsing of Command
	WorkDir      string   `json:"work_dir"`      // optional working dir, defaults to the supervisor's
	Env          []string `json:"env"`           // complete child environment ("K=V"); nil inherits
	InheritStdin bool     `json:"inherit_stdin"` // connect the supervisor's stdin to the child
}

// Validate checks the fields BuildCommand relies on.
func (s *Spec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("process requires name")
	}
	if strings.TrimSpace(s.Command) == "" {
		return errors.New("process requires command")
	}
	return nil
}

// BuildCommand constructs an *exec.Cmd for the spec.
// With explicit Args the command is executed directly. Otherwise Command is
// treated as a command line: an explicit "sh -c ..." prefix is honored without
// double-wrapping, shell metacharacters force /bin/sh -c, and plain words are
// split on whitespace.
func (s *Spec) BuildCommand() *exec.Cmd {
	cmdStr := strings.TrimSpace(s.Command)
	if len(s.Args) > 0 {
		// #nosec G204 -- the command line comes from the operator's config
		return exec.Command(cmdStr, s.Args...)
	}
	if _, afterC, ok := parseExplicitShell(cmdStr); ok {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", afterC)
	}
	if strings.ContainsAny(cmdStr, "|&;<>*?`$\"'(){}[]~") {
		// #nosec G204
		return exec.Command("/bin/sh", "-c", cmdStr)
	}
	parts := strings.Fields(cmdStr)
	// #nosec G204
	return exec.Command(parts[0], parts[1:]...)
}

// CommandLine renders the command for log messages.
func (s *Spec) CommandLine() string {
	if len(s.Args) == 0 {
		return strings.TrimSpace(s.Command)
	}
	return strings.TrimSpace(s.Command) + " " + strings.Join(s.Args, " ")
}

// parseExplicitShell detects patterns like "sh -c <ARG>" or "/bin/sh -c <ARG>" at the
// beginning of cmdStr. It returns (shellPath, afterCArg, true) when matched.
// One pair of quotes around the script is stripped.
func parseExplicitShell(cmdStr string) (string, string, bool) {
	trim := strings.TrimLeft(cmdStr, " \t")
	candidates := []string{"sh -c ", "/bin/sh -c ", "/usr/bin/sh -c "}
	for _, p := range candidates {
		if strings.HasPrefix(trim, p) {
			after := trim[len(p):]
			if n := len(after); n >= 2 {
				if (after[0] == '\'' && after[n-1] == '\'') || (after[0] == '"' && after[n-1] == '"') {
					after = after[1 : n-1]
				}
			}
			return strings.Fields(p)[0], after, true
		}
	}
	return "", "", false
}

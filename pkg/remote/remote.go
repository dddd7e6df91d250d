// Package remote is the port to the submission host.
//
// Commands are given as argument vectors and rendered into a shell script
// where every argument is quoted, so values like job names never become shell syntax.
package remote

import (
	"context"
	"regexp"
	"strings"
)

// Output is the result of a Script.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Ok tells the script exited with 0 and wrote nothing to stderr.
func (o Output) Ok() bool {
	return o.ExitCode == 0 && strings.TrimSpace(o.Stderr) == ""
}

// Executor runs scripts and transfers files on the submission host.
type Executor interface {
	// Run executes the script in one session.
	//
	// Non-zero exit code is not an error; see Output.ExitCode.
	// Errors are reported only when the script could not be run.
	Run(ctx context.Context, script Script) (Output, error)

	// Upload copies a local file to the remote path.
	Upload(ctx context.Context, localPath, remotePath string) error

	// Download copies a remote file to the local path.
	Download(ctx context.Context, remotePath, localPath string) error

	// Close releases pooled sessions.
	//
	// The Executor can still be used after Close. It opens new sessions as needed.
	Close() error
}

// Command is an argument vector.
type Command []string

// Cmd builds a Command.
func Cmd(name string, args ...string) Command {
	return append(Command{name}, args...)
}

func (c Command) String() string {
	quoted := make([]string, len(c))
	for i, a := range c {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

// Script is an ordered sequence of Commands.
//
// The script stops at the first failing command.
type Script []Command

// NewScript builds a Script.
func NewScript(commands ...Command) Script {
	return Script(commands)
}

// Then appends a command.
func (s Script) Then(name string, args ...string) Script {
	return append(s[:len(s):len(s)], Cmd(name, args...))
}

// Render makes a shell script text.
func (s Script) Render() string {
	b := new(strings.Builder)
	b.WriteString("set -e\n")
	for _, c := range s {
		if len(c) == 0 {
			continue
		}
		b.WriteString(c.String())
		b.WriteString("\n")
	}
	return b.String()
}

func (s Script) String() string {
	lines := make([]string, 0, len(s))
	for _, c := range s {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "; ")
}

var safe = regexp.MustCompile(`^[A-Za-z0-9_@%+=:,./-]+$`)

// Quote makes s a single shell word.
func Quote(s string) string {
	if s == "" {
		return "''"
	}
	if safe.MatchString(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

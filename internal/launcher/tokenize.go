package launcher

import (
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
)

// ErrEmptyCommand is returned when a command line has no tokens.
var ErrEmptyCommand = errors.New("empty command")

// Tokenize splits a command line with POSIX shell quoting rules: quoted
// arguments containing spaces stay single tokens and backslash escapes are
// honored. No expansion (variables, globs, redirection) is performed.
func Tokenize(commandLine string) ([]string, error) {
	argv, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("tokenize %q: %w", commandLine, err)
	}
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}

// Package term handles the operator-facing prompts the pipeline needs at
// its two decision points: freeing occupied ports and overwriting data on
// restore.
package term

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer answers yes/no questions put to the operator.
type Confirmer interface {
	// Confirm asks the question and returns the operator's answer.
	// defaultYes selects the answer taken on a bare Enter.
	Confirm(question string, defaultYes bool) (bool, error)
}

// =============================================================================
// Terminal
// =============================================================================

// TerminalConfirmer prompts on an interactive terminal.
type TerminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminalConfirmer creates a confirmer reading from in and prompting
// on out.
func NewTerminalConfirmer(in io.Reader, out io.Writer) *TerminalConfirmer {
	return &TerminalConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *TerminalConfirmer) Confirm(question string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}

	for {
		if _, err := fmt.Fprintf(c.out, "%s %s ", question, hint); err != nil {
			return false, err
		}

		line, err := c.in.ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			if err == io.EOF {
				// Non-interactive stdin: take the default rather than loop.
				return defaultYes, nil
			}
			return defaultYes, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}

		if err == io.EOF {
			return defaultYes, nil
		}
		fmt.Fprintln(c.out, "please answer y or n")
	}
}

// =============================================================================
// Static
// =============================================================================

// StaticConfirmer answers every question the same way. Used by the
// --assume-yes flag and by tests.
type StaticConfirmer struct {
	Answer bool
}

func (c StaticConfirmer) Confirm(string, bool) (bool, error) {
	return c.Answer, nil
}

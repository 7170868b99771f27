// Package ui provides the small set of interactive prompts the
// orchestrator needs for operator-confirmed decisions (taking over a
// stale lock, skipping a corrupt-world restore, intercepting a raw
// "stop" console command): a yes/no confirm and a single-choice
// select, both backed by charmbracelet/huh when attached to a real
// terminal, falling back to plain scanner-based prompts otherwise so
// tests and piped input still work.
package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
)

// IO lets callers redirect prompts away from the real stdin/stdout,
// primarily for tests. The zero value uses the process's stdin/stdout.
type IO struct {
	In  io.Reader
	Out io.Writer
}

var defaultIO = IO{In: os.Stdin, Out: os.Stdout}

// SetDefault overrides the package-level default IO, used by
// Confirm/Select when called without an explicit IO.
func SetDefault(io IO) { defaultIO = io }

func (io IO) in() io.Reader {
	if io.In != nil {
		return io.In
	}
	return os.Stdin
}

func (io IO) out() io.Writer {
	if io.Out != nil {
		return io.Out
	}
	return os.Stdout
}

// usesRealTerminal reports whether huh's interactive form should be
// used, versus the scanner fallback. huh requires its input to be the
// process's actual stdin; anything else (a test's bytes.Reader, a
// piped file) gets the plain-text fallback.
func (io IO) usesRealTerminal() bool {
	return io.in() == os.Stdin
}

// Confirm asks a yes/no question, returning the operator's answer.
// defaultYes controls both the form's preselected value and the
// fallback prompt's default when the operator just presses Enter.
func Confirm(prompt string, defaultYes bool) (bool, error) {
	return defaultIO.Confirm(prompt, defaultYes)
}

// Confirm is the IO-scoped equivalent of the package-level Confirm.
func (io IO) Confirm(prompt string, defaultYes bool) (bool, error) {
	if io.usesRealTerminal() {
		confirmed := defaultYes
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(prompt).
					Affirmative("Yes").
					Negative("No").
					Value(&confirmed),
			),
		)
		if err := form.Run(); err != nil {
			return false, fmt.Errorf("ui: confirm: %w", err)
		}
		return confirmed, nil
	}
	return io.confirmWithScanner(prompt, defaultYes)
}

func (io IO) confirmWithScanner(prompt string, defaultYes bool) (bool, error) {
	hint := "[y/N]"
	if defaultYes {
		hint = "[Y/n]"
	}
	fmt.Fprintf(io.out(), "%s %s: ", prompt, hint)

	scanner := bufio.NewScanner(io.in())
	if !scanner.Scan() {
		return defaultYes, nil
	}
	response := strings.ToLower(strings.TrimSpace(scanner.Text()))
	if response == "" {
		return defaultYes, nil
	}
	return response == "y" || response == "yes", nil
}

// Select presents a list of options and returns the index chosen, or
// -1 if the operator aborted the prompt.
func Select(prompt string, options []string) (int, error) {
	return defaultIO.Select(prompt, options)
}

// Select is the IO-scoped equivalent of the package-level Select.
func (io IO) Select(prompt string, options []string) (int, error) {
	if io.usesRealTerminal() {
		var choice int
		huhOptions := make([]huh.Option[int], len(options))
		for i, opt := range options {
			huhOptions[i] = huh.NewOption(opt, i)
		}
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[int]().
					Title(prompt).
					Options(huhOptions...).
					Value(&choice),
			),
		)
		if err := form.Run(); err != nil {
			return -1, fmt.Errorf("ui: select: %w", err)
		}
		return choice, nil
	}
	return io.selectWithScanner(prompt, options)
}

func (io IO) selectWithScanner(prompt string, options []string) (int, error) {
	fmt.Fprintln(io.out(), prompt)
	for i, opt := range options {
		fmt.Fprintf(io.out(), "  %d. %s\n", i+1, opt)
	}
	fmt.Fprint(io.out(), "Selection: ")

	scanner := bufio.NewScanner(io.in())
	if !scanner.Scan() {
		return -1, nil
	}
	choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil || choice < 1 || choice > len(options) {
		return -1, nil
	}
	return choice - 1, nil
}

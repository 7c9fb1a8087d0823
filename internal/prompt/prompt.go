// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package prompt asks the operator yes/no questions.

# Implementations

  - FormPrompter: a huh confirm form, used on a terminal.
  - LinePrompter: prints "<prompt> [y/N]: " and reads one line; used when
    input is piped.
  - NonInteractivePrompter: always answers no (--non-interactive).
  - AutoApprovePrompter: always answers yes (--yes).
  - MockPrompter: test double recording calls.

New picks one from the flags and the terminal state.
*/
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"github.com/mattn/go-isatty"
)

// UserPrompter asks yes/no questions.
type UserPrompter interface {
	// Confirm asks prompt and reports whether the answer was yes. An
	// aborted or empty answer is no.
	Confirm(ctx context.Context, prompt string) (bool, error)

	// IsInteractive reports whether a person is asked.
	IsInteractive() bool
}

// Options selects a prompter.
type Options struct {
	// Yes answers every prompt with yes.
	Yes bool

	// NonInteractive answers every prompt with no. Yes wins when both are
	// set.
	NonInteractive bool

	// In and Out default to os.Stdin and os.Stdout.
	In  *os.File
	Out *os.File

	Logger *slog.Logger
}

// New returns the prompter for opts.
//
// # Description
//
// --yes and --non-interactive short-circuit to fixed answers. Otherwise a
// terminal on both ends gets a huh form and anything else gets the line
// reader, so piped "y" still works.
func New(opts Options) UserPrompter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case opts.Yes:
		return NewAutoApprovePrompter(logger)
	case opts.NonInteractive:
		return NewNonInteractivePrompter(logger)
	}

	in, out := opts.In, opts.Out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	if IsTerminal(in) && IsTerminal(out) {
		return NewFormPrompter(in, out)
	}
	return NewLinePrompter(in, out)
}

// IsTerminal reports whether f is a terminal, Cygwin terminals included.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// =============================================================================
// FormPrompter
// =============================================================================

// FormPrompter asks through a huh confirm form.
type FormPrompter struct {
	in  io.Reader
	out io.Writer
}

// NewFormPrompter creates a FormPrompter on the given terminal streams.
func NewFormPrompter(in io.Reader, out io.Writer) *FormPrompter {
	return &FormPrompter{in: in, out: out}
}

// Confirm shows a Yes/No form defaulting to No. Ctrl+C answers no.
func (p *FormPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	var answer bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	).WithInput(p.in).WithOutput(p.out)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, fmt.Errorf("confirm: %w", err)
	}
	return answer, nil
}

// IsInteractive returns true.
func (p *FormPrompter) IsInteractive() bool { return true }

// =============================================================================
// LinePrompter
// =============================================================================

// LinePrompter asks on a writer and reads the answer line from a reader.
//
// # Thread Safety
//
// Safe for concurrent use; prompts are serialized.
type LinePrompter struct {
	mu     sync.Mutex
	reader *bufio.Reader
	out    io.Writer
}

// NewLinePrompter creates a LinePrompter.
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{reader: bufio.NewReader(in), out: out}
}

// Confirm prints "<prompt> [y/N]: " and reads one line. "y" and "yes"
// (any case, surrounding space ignored) answer yes; anything else,
// including EOF, answers no.
func (p *LinePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.out, "%s [y/N]: ", prompt); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}

	line, err := p.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}
	return isYes(line), nil
}

// IsInteractive returns true.
func (p *LinePrompter) IsInteractive() bool { return true }

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// =============================================================================
// Fixed answers
// =============================================================================

// NonInteractivePrompter answers no without asking.
type NonInteractivePrompter struct {
	logger *slog.Logger
}

// NewNonInteractivePrompter creates a NonInteractivePrompter.
func NewNonInteractivePrompter(logger *slog.Logger) *NonInteractivePrompter {
	if logger == nil {
		logger = slog.Default()
	}
	return &NonInteractivePrompter{logger: logger}
}

// Confirm returns false.
func (p *NonInteractivePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.logger.Info("non-interactive, answering no", "prompt", prompt)
	return false, nil
}

// IsInteractive returns false.
func (p *NonInteractivePrompter) IsInteractive() bool { return false }

// AutoApprovePrompter answers yes without asking.
type AutoApprovePrompter struct {
	logger *slog.Logger
}

// NewAutoApprovePrompter creates an AutoApprovePrompter.
func NewAutoApprovePrompter(logger *slog.Logger) *AutoApprovePrompter {
	if logger == nil {
		logger = slog.Default()
	}
	return &AutoApprovePrompter{logger: logger}
}

// Confirm returns true.
func (p *AutoApprovePrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.logger.Info("auto-approved", "prompt", prompt)
	return true, nil
}

// IsInteractive returns false.
func (p *AutoApprovePrompter) IsInteractive() bool { return false }

// =============================================================================
// MockPrompter
// =============================================================================

// MockCall records one call to a MockPrompter.
type MockCall struct {
	Method string
	Prompt string
}

// MockPrompter is a UserPrompter for tests.
type MockPrompter struct {
	mu sync.Mutex

	// ConfirmFunc answers Confirm. Nil answers no.
	ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

	// IsInteractiveFunc answers IsInteractive. Nil answers true.
	IsInteractiveFunc func() bool

	Calls []MockCall
}

// Confirm records the call and delegates to ConfirmFunc.
func (m *MockPrompter) Confirm(ctx context.Context, prompt string) (bool, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, MockCall{Method: "Confirm", Prompt: prompt})
	fn := m.ConfirmFunc
	m.mu.Unlock()

	if fn == nil {
		return false, nil
	}
	return fn(ctx, prompt)
}

// IsInteractive delegates to IsInteractiveFunc.
func (m *MockPrompter) IsInteractive() bool {
	if m.IsInteractiveFunc == nil {
		return true
	}
	return m.IsInteractiveFunc()
}

// Reset clears the recorded calls.
func (m *MockPrompter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/greg-hellings/datasettool/pkg/session"
)

// Prompter asks the user to confirm a dialog.
type Prompter interface {
	Confirm(d session.Dialog) (bool, error)
}

// huhPrompter renders dialogs as huh confirm forms. Accessible mode reads
// plain lines from in, which keeps it usable when stdin is not a terminal.
type huhPrompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

func (p *huhPrompter) Confirm(d session.Dialog) (bool, error) {
	ok := false
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(d.Title).
				Description(d.Description).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula()).
		WithAccessible(p.accessible)

	if p.in != nil {
		form = form.WithInput(p.in)
	}
	if p.out != nil {
		form = form.WithOutput(p.out)
	}
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("%s: %w", d.Title, err)
	}
	return ok, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

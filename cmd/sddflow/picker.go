package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/Strob0t/sddflow/internal/domain/workflow"
	"github.com/Strob0t/sddflow/internal/service"
)

// taskPicker returns an interactive select on terminals and a line prompt
// on anything else, such as pipes in scripts and tests.
func taskPicker(in io.Reader, out io.Writer) service.TaskPicker {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return selectTask
	}
	return promptTask(in, out)
}

func selectTask(ctx context.Context, ready []string) (string, error) {
	options := make([]huh.Option[string], 0, len(ready)+1)
	for _, id := range ready {
		options = append(options, huh.NewOption(taskLabel(id), id))
	}
	options = append(options, huh.NewOption("quit", service.QuitCommand))

	var choice string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select the next task").
			Options(options...).
			Value(&choice),
	))
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return service.QuitCommand, nil
		}
		return "", fmt.Errorf("task prompt: %w", err)
	}
	return choice, nil
}

// promptTask reads one task id per line. End of input quits.
func promptTask(in io.Reader, out io.Writer) service.TaskPicker {
	sc := bufio.NewScanner(in)
	return func(_ context.Context, ready []string) (string, error) {
		fmt.Fprintln(out, "\nReady tasks:")
		for _, id := range ready {
			fmt.Fprintf(out, "  - %s\n", taskLabel(id))
		}
		fmt.Fprintf(out, "Select task (or '%s'): ", service.QuitCommand)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("read task: %w", err)
			}
			fmt.Fprintln(out)
			return service.QuitCommand, nil
		}
		return strings.TrimSpace(sc.Text()), nil
	}
}

func taskLabel(id string) string {
	return fmt.Sprintf("%s (%s)", id, workflow.AgentFor(id))
}

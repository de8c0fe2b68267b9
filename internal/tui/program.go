package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sourcegraph/conc"

	"skilltest/internal/harness"
	"skilltest/pkg/logging"
)

// RunFunc performs a harness run, reporting progress to r.
type RunFunc func(ctx context.Context, r harness.Reporter) (*harness.RunReport, error)

// Run shows the progress view while run executes. The view closes when run
// returns; quitting it early cancels ctx for run and waits for it to
// finish.
func Run(ctx context.Context, logCh <-chan logging.LogEntry, run RunFunc, opts ...tea.ProgramOption) (*harness.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(cancel, logCh), opts...)
	send := func(msg any) { p.Send(msg) }

	var (
		wg     conc.WaitGroup
		report *harness.RunReport
		runErr error
	)
	wg.Go(func() {
		report, runErr = run(ctx, NewReporter(send))
		p.Send(runDoneMsg{report: report, err: runErr})
	})

	_, progErr := p.Run()
	if progErr != nil {
		logging.Error("TUI", progErr, "Progress view failed")
	}
	cancel()
	wg.Wait()

	if runErr == nil && progErr != nil && !errors.Is(progErr, tea.ErrProgramKilled) {
		return report, progErr
	}
	return report, runErr
}

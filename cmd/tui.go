package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jamknife/internal/shared"
	"github.com/desertthunder/jamknife/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/jamknife-tui.log"

// useFileLogger redirects logs to a file to avoid interfering with TUI rendering.
// Must run before the orchestrator is built so its components log there too.
func (r *Runner) useFileLogger() error {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)
	return nil
}

// TUI launches the interactive terminal UI to pick an enabled playlist and sync it.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if err := r.requireServices(); err != nil {
		return err
	}
	if err := r.useFileLogger(); err != nil {
		return err
	}

	engine, err := r.orchestrator()
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, r.store.Playlists, engine)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return model.Err()
}

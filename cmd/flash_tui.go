// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/Thermoquad/amadou/pkg/espboot"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

type flashProgressMsg struct {
	written int
	total   int
}

type flashDoneMsg struct {
	err error
}

type flashModel struct {
	bar     progress.Model
	written int
	total   int
	done    bool
	err     error
}

func newFlashModel() flashModel {
	return flashModel{
		bar: progress.New(progress.WithDefaultGradient()),
	}
}

func (m flashModel) Init() tea.Cmd {
	return nil
}

func (m flashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = msg.Width - 8
		if m.bar.Width > 60 {
			m.bar.Width = 60
		}
		return m, nil

	case flashProgressMsg:
		m.written = msg.written
		m.total = msg.total
		return m, m.bar.SetPercent(float64(msg.written) / float64(msg.total))

	case flashDoneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd

	case tea.KeyMsg:
		// The transfer is driven elsewhere; keys only quit the view
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil

	default:
		return m, nil
	}
}

func (m flashModel) View() string {
	if m.done {
		return ""
	}
	if m.total == 0 {
		return "  connecting...\n"
	}
	return fmt.Sprintf("  %s %d/%d bytes\n", m.bar.View(), m.written, m.total)
}

// runFlashTUI renders a progress bar while the transfer function runs
// in the background.
func runFlashTUI(flasher *espboot.Flasher, transfer func() error) error {
	p := tea.NewProgram(newFlashModel())

	go func() {
		flasher.SetProgress(func(written, total int) {
			p.Send(flashProgressMsg{written: written, total: total})
		})
		p.Send(flashDoneMsg{err: transfer()})
	}()

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return final.(flashModel).err
}

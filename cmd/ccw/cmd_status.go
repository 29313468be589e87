// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ccw/services/workflow/locator"
	"github.com/AleutianAI/ccw/services/workflow/store"
)

// =============================================================================
// OUTPUT STYLES
// =============================================================================

var (
	styleHeader  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2CD7C7"))
	styleLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("#1D9EA3"))
	styleID      = lipgloss.NewStyle().Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A80"))
	styleBad     = lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252"))
	styleByState = map[store.SessionStatus]lipgloss.Style{
		store.StatusInitialized: lipgloss.NewStyle().Foreground(lipgloss.Color("#C8B26A")),
		store.StatusActive:      lipgloss.NewStyle().Foreground(lipgloss.Color("#2CD7C7")),
		store.StatusCompleted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#57B26A")),
		store.StatusArchived:    lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7A80")),
		store.StatusFailed:      lipgloss.NewStyle().Foreground(lipgloss.Color("#E05252")),
	}
)

// statusReport is the --json shape of the status command.
type statusReport struct {
	ProjectID   string                `json:"projectId"`
	ProjectPath string                `json:"projectPath"`
	StateRoot   string                `json:"stateRoot"`
	Nested      bool                  `json:"nested"`
	Sessions    []store.SessionDigest `json:"sessions"`
}

// runStatus prints the project location and per-session digests.
func runStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := resolveProjectRoot()
	if err != nil {
		return err
	}
	loc, err := locator.Locate(ctx, root)
	if err != nil {
		return err
	}

	st := store.New(loc.StateRoot)
	digests, err := st.Digests(ctx)
	if err != nil {
		return err
	}
	if statusLocation != "all" {
		if !store.Location(statusLocation).Valid() {
			return fmt.Errorf("unknown location %q (want active, archived, lite-plan, lite-fix, or all)", statusLocation)
		}
		filtered := digests[:0]
		for _, d := range digests {
			if string(d.Location) == statusLocation {
				filtered = append(filtered, d)
			}
		}
		digests = filtered
	}

	if statusJSON {
		report := statusReport{
			ProjectID:   loc.ProjectID,
			ProjectPath: loc.ProjectPath,
			StateRoot:   loc.StateRoot,
			Nested:      loc.Nested(),
			Sessions:    digests,
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	printStatus(loc, digests)
	return nil
}

// printStatus renders the human report. Styling is dropped when stdout
// is not a terminal so piped output stays clean.
func printStatus(loc locator.ProjectLocation, digests []store.SessionDigest) {
	tty := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	render := func(style lipgloss.Style, s string) string {
		if !tty {
			return s
		}
		return style.Render(s)
	}

	fmt.Println(render(styleHeader, "ccw project status"))
	fmt.Printf("%s %s\n", render(styleLabel, "project:"), loc.ProjectPath)
	fmt.Printf("%s %s\n", render(styleLabel, "state:  "), loc.StateRoot)
	if loc.Nested() {
		fmt.Printf("%s %s (under %s)\n",
			render(styleLabel, "nested: "), loc.RelativeFromParent, loc.ParentProjectID)
	}
	fmt.Println()

	if len(digests) == 0 {
		fmt.Println(render(styleMuted, "no sessions"))
		return
	}

	for _, d := range digests {
		state, ok := styleByState[d.Status]
		if !ok {
			state = styleBad
		}
		fmt.Printf("%s  %s  %s  %s\n",
			render(styleID, d.SessionID),
			render(styleMuted, string(d.Type)),
			render(state, string(d.Status)),
			render(styleMuted, string(d.Location)))
		if d.Tasks.Total > 0 {
			fmt.Printf("    %s %d", render(styleLabel, "tasks:"), d.Tasks.Total)
			for status, n := range d.Tasks.ByStatus {
				fmt.Printf("  %s=%d", status, n)
			}
			fmt.Println()
		}
	}
}

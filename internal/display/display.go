// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package display renders signing event state for terminals. The
// markdown report rendering for CI comments lives with the event
// evaluator; this package only handles interactive output.
package display

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tufci/tufci/internal/signingevent"
)

var (
	colorEnabled = true

	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	waitingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	neutralStyle = lipgloss.NewStyle().Bold(true)
	detailStyle  = lipgloss.NewStyle().Faint(true)
)

// EnableColor turns colored output on.
func EnableColor() {
	colorEnabled = true
}

// DisableColor turns colored output off, for pipes and --no-color.
func DisableColor() {
	colorEnabled = false
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

func statusStyle(status signingevent.Status) lipgloss.Style {
	switch status {
	case signingevent.StatusReady:
		return readyStyle
	case signingevent.StatusAwaitingSignatures, signingevent.StatusAwaitingInvitees:
		return waitingStyle
	case signingevent.StatusInvalid:
		return invalidStyle
	default:
		return neutralStyle
	}
}

// Event renders the evaluated signing event state for a terminal.
func Event(event *signingevent.Event) string {
	out := &strings.Builder{}

	fmt.Fprintf(out, "Signing event %s: %s\n", event.Name, render(statusStyle(event.Status), event.Status.String()))

	for _, message := range event.Errors {
		fmt.Fprintf(out, "  %s %s\n", render(invalidStyle, "error:"), message)
	}

	for _, role := range event.Roles {
		fmt.Fprintf(out, "  %s (v%d): %s\n", role.Name, role.Version, render(statusStyle(role.Status), role.Status.String()))

		if len(role.Invites) > 0 {
			fmt.Fprintf(out, "    open invites: %s\n", strings.Join(role.Invites, ", "))
		}
		if len(role.SignedBy) > 0 {
			fmt.Fprintf(out, "    signed by %d/%d: %s\n", len(role.SignedBy), role.Threshold, strings.Join(role.SignedBy, ", "))
		}
		if len(role.Missing) > 0 {
			fmt.Fprintf(out, "    missing: %s\n", strings.Join(role.Missing, ", "))
		}
		for _, path := range role.Artifacts.Added {
			fmt.Fprintf(out, "    %s\n", render(detailStyle, "added "+path))
		}
		for _, path := range role.Artifacts.Modified {
			fmt.Fprintf(out, "    %s\n", render(detailStyle, "modified "+path))
		}
		for _, path := range role.Artifacts.Removed {
			fmt.Fprintf(out, "    %s\n", render(detailStyle, "removed "+path))
		}
		for _, message := range role.Messages {
			fmt.Fprintf(out, "    %s %s\n", render(invalidStyle, "error:"), message)
		}
	}

	return out.String()
}

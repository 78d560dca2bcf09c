// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package signingevent

import (
	"fmt"
	"strings"
)

// Markdown renders the event state as the markdown comment posted on
// the signing event's change request.
func (e *Event) Markdown(signingTool string) string {
	out := &strings.Builder{}

	fmt.Fprintf(out, "### Signing event %s\n\n", e.Name)

	switch e.Status {
	case StatusNoChange:
		out.WriteString("This signing event contains no changes yet.\n")
		return out.String()
	case StatusMerged:
		out.WriteString("This signing event has been merged.\n")
		return out.String()
	}

	for _, message := range e.Errors {
		fmt.Fprintf(out, "**Error**: %s\n", message)
	}

	for _, role := range e.Roles {
		emoji := ":x:"
		if role.Status == StatusReady {
			emoji = ":heavy_check_mark:"
		}
		fmt.Fprintf(out, "#### %s %s (v%d)\n", emoji, role.Name, role.Version)

		if len(role.Invites) > 0 {
			fmt.Fprintf(out, "%s delegations have open invites (%s).\n", role.Name, strings.Join(role.Invites, ", "))
			fmt.Fprintf(out, "Invitees can accept the invitations by running `%s %s`\n", signingTool, e.Name)
			continue
		}

		if !role.Artifacts.empty() {
			fmt.Fprintf(out, "%s contains following artifact changes:\n", role.Name)
			for _, path := range role.Artifacts.Added {
				fmt.Fprintf(out, " * %s: ADDED\n", path)
			}
			for _, path := range role.Artifacts.Modified {
				fmt.Fprintf(out, " * %s: MODIFIED\n", path)
			}
			for _, path := range role.Artifacts.Removed {
				fmt.Fprintf(out, " * %s: REMOVED\n", path)
			}
			out.WriteString("\n")
		}

		counts := fmt.Sprintf("%d/%d", len(role.SignedBy), role.Threshold)
		switch {
		case role.Status == StatusReady:
			fmt.Fprintf(out, "%s is verified and signed by %s signers (%s).\n", role.Name, counts, strings.Join(role.SignedBy, ", "))
		case len(role.SignedBy) > 0:
			fmt.Fprintf(out, "%s is not yet verified. It is signed by %s signers (%s).\n", role.Name, counts, strings.Join(role.SignedBy, ", "))
		default:
			fmt.Fprintf(out, "%s is unsigned and not yet verified.\n", role.Name)
		}

		if len(role.Missing) > 0 {
			fmt.Fprintf(out, "Still missing signatures from %s\n", strings.Join(role.Missing, ", "))
			fmt.Fprintf(out, "Signers can sign these changes by running `%s %s`\n", signingTool, e.Name)
		}
		if len(role.InvalidSigs) > 0 {
			fmt.Fprintf(out, "Signatures from keyids %s did not verify and are ignored.\n", strings.Join(role.InvalidSigs, ", "))
		}

		for _, message := range role.Messages {
			fmt.Fprintf(out, "**Error**: %s\n", message)
		}
	}

	return out.String()
}

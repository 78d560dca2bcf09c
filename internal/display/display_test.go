// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tufci/tufci/internal/signingevent"
)

func TestEvent(t *testing.T) {
	DisableColor()
	defer EnableColor()

	event := &signingevent.Event{
		Name:   "sign/targets-v2",
		Status: signingevent.StatusAwaitingSignatures,
		Roles: []*signingevent.RoleStatus{
			{
				Name:      "targets",
				Status:    signingevent.StatusAwaitingSignatures,
				Version:   2,
				Threshold: 2,
				SignedBy:  []string{"@alice"},
				Missing:   []string{"@bob"},
				Artifacts: signingevent.ArtifactChanges{Added: []string{"file.txt"}},
			},
			{
				Name:     "app",
				Status:   signingevent.StatusInvalid,
				Version:  1,
				Messages: []string{"target files in metadata do not match committed artifacts"},
			},
		},
	}

	output := Event(event)
	assert.Contains(t, output, "Signing event sign/targets-v2: awaiting signatures\n")
	assert.Contains(t, output, "  targets (v2): awaiting signatures\n")
	assert.Contains(t, output, "    signed by 1/2: @alice\n")
	assert.Contains(t, output, "    missing: @bob\n")
	assert.Contains(t, output, "    added file.txt\n")
	assert.Contains(t, output, "  app (v1): invalid\n")
	assert.Contains(t, output, "    error: target files in metadata do not match committed artifacts\n")
}

func TestEventErrors(t *testing.T) {
	DisableColor()
	defer EnableColor()

	event := &signingevent.Event{
		Name:   "sign/targets-v2",
		Status: signingevent.StatusInvalid,
		Errors: []string{"online role 'snapshot' metadata changed in signing event"},
	}

	output := Event(event)
	assert.Contains(t, output, "Signing event sign/targets-v2: invalid\n")
	assert.Contains(t, output, "  error: online role 'snapshot' metadata changed in signing event\n")
}

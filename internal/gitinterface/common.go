// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package gitinterface

import (
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	testName  = "Jane Doe"
	testEmail = "jane.doe@example.com"
)

var testClock = clockwork.NewFakeClockAt(time.Date(2024, time.August, 31, 12, 0, 0, 0, time.UTC))

// CreateTestGitRepository creates a Git repository in the specified
// directory. This is meant to be used by tests across tufci packages;
// the repository uses a fake clock so commits are reproducible.
func CreateTestGitRepository(t *testing.T, dir string) *Repository {
	t.Helper()

	cmd := exec.Command(binary, "init", "-b", "main", dir)
	if err := cmd.Run(); err != nil {
		t.Fatal(err)
	}

	repo := &Repository{
		gitDirPath: filepath.Join(dir, ".git"),
		clock:      testClock,
	}

	if err := repo.SetGitConfig("user.name", testName); err != nil {
		t.Fatal(err)
	}
	if err := repo.SetGitConfig("user.email", testEmail); err != nil {
		t.Fatal(err)
	}

	return repo
}

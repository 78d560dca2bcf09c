// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package common holds helpers shared by the CLI commands.
package common

import (
	"errors"

	"github.com/tufci/tufci/internal/gitinterface"
	"github.com/tufci/tufci/internal/roletree"
)

// DefaultBaseBranch is the branch holding the trusted repository state.
const DefaultBaseBranch = "main"

// EventContext describes the signing event the current checkout is on:
// the event branch and the two states every evaluation compares.
type EventContext struct {
	Repo *gitinterface.Repository

	// EventName is the current branch, i.e. the signing event name.
	EventName string

	// Base reads the known-good state: the merge base of the base
	// branch and the event branch.
	Base roletree.Source

	// Candidate reads the signing event state at HEAD.
	Candidate roletree.Source
}

// LoadEventContext resolves the signing event context from the
// repository containing dir. The base branch's remote tracking ref is
// preferred over the local one so CI evaluates against the published
// state.
func LoadEventContext(dir, baseBranch string) (*EventContext, error) {
	repo, err := gitinterface.LoadRepository(dir)
	if err != nil {
		return nil, err
	}

	eventName, err := repo.CurrentBranch()
	if err != nil {
		return nil, err
	}

	baseRef := gitinterface.RemoteRefPrefix + gitinterface.DefaultRemoteName + "/" + baseBranch
	if _, err := repo.GetReference(baseRef); err != nil {
		if !errors.Is(err, gitinterface.ErrReferenceNotFound) {
			return nil, err
		}
		baseRef = gitinterface.BranchRefPrefix + baseBranch
	}

	mergeBase, err := repo.MergeBase(baseRef, "HEAD")
	if err != nil {
		return nil, err
	}

	return &EventContext{
		Repo:      repo,
		EventName: eventName,
		Base:      gitinterface.NewRefSource(repo, mergeBase),
		Candidate: gitinterface.NewRefSource(repo, "HEAD"),
	}, nil
}

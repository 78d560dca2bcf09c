// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package sign

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/cmd/common"
	"github.com/tufci/tufci/internal/gitinterface"
	"github.com/tufci/tufci/internal/roletree"
	"github.com/tufci/tufci/internal/signerverifier"
	"github.com/tufci/tufci/internal/signingevent"
	"github.com/tufci/tufci/internal/tuf"
)

type options struct {
	baseBranch string
	key        string
	push       bool
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(
		&o.baseBranch,
		"base-branch",
		common.DefaultBaseBranch,
		"branch holding the trusted repository state",
	)

	cmd.Flags().StringVar(
		&o.key,
		"key",
		"",
		"locator of the signing key, e.g. file:path/to/key.json or ssh:path/to/id_ed25519",
	)
	cmd.MarkFlagRequired("key") //nolint:errcheck

	cmd.Flags().BoolVar(
		&o.push,
		"push",
		true,
		"push the signed metadata to the signing event branch",
	)
}

func (o *options) Run(cmd *cobra.Command, args []string) error {
	eventCtx, err := common.LoadEventContext(".", o.baseBranch)
	if err != nil {
		return err
	}

	if len(args) > 0 && args[0] != eventCtx.EventName {
		return fmt.Errorf("signing event '%s' is not checked out, current branch is '%s'", args[0], eventCtx.EventName)
	}

	evaluator := signingevent.NewEvaluator(nil)
	event, err := evaluator.Evaluate(eventCtx.EventName, eventCtx.Base, eventCtx.Candidate)
	if err != nil {
		return err
	}

	candidateTree, err := roletree.Load(eventCtx.Candidate)
	if err != nil {
		return err
	}
	baseTree, err := roletree.Load(eventCtx.Base)
	if err != nil {
		if !errors.Is(err, roletree.ErrNoRootMetadata) {
			return err
		}
		baseTree = nil
	}

	signed := []string{}
	files := map[string][]byte{}
	for _, role := range event.Roles {
		if len(role.Missing) == 0 {
			continue
		}

		keys, err := roleKeys(candidateTree, baseTree, role.Name)
		if err != nil {
			return err
		}

		contents, err := eventCtx.Candidate.ReadFile(roletree.MetadataPath(role.Name))
		if err != nil {
			return err
		}
		metadata, err := tuf.LoadMetadata(contents)
		if err != nil {
			return err
		}

		key, signature, err := o.signRole(cmd.Context(), metadata, keys)
		if err != nil {
			return err
		}
		if key == nil {
			// the provided key is not in this role's signer set
			continue
		}

		attachSignature(metadata, *signature)
		updated, err := metadata.Bytes()
		if err != nil {
			return err
		}
		files[roletree.MetadataPath(role.Name)] = updated
		signed = append(signed, role.Name)
	}

	if len(files) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No roles awaiting a signature from this key")
		return nil
	}

	eventRef := gitinterface.BranchRefPrefix + eventCtx.EventName
	message := fmt.Sprintf("Add signatures for role(s) %s", strings.Join(signed, ", "))
	if _, err := eventCtx.Repo.CommitFilesToRef(eventRef, "", message, files); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Signed role(s) %s\n", strings.Join(signed, ", "))

	if o.push {
		return eventCtx.Repo.PushBranch(cmd.Context(), gitinterface.DefaultRemoteName, eventCtx.EventName)
	}
	return nil
}

// signRole signs the role's payload and attributes the signature to the
// first key in the signer set it verifies under. A nil key means the
// configured private key belongs to none of them.
func (o *options) signRole(ctx context.Context, metadata *tuf.Metadata, keys []*tuf.Key) (*tuf.Key, *tuf.Signature, error) {
	payload, err := metadata.SigningBytes()
	if err != nil {
		return nil, nil, err
	}

	for _, key := range keys {
		if hasVerifiedSignature(metadata, key, payload) {
			continue
		}

		signer, err := signerverifier.NewSignerForKey(ctx, key, o.key)
		if err != nil {
			return nil, nil, err
		}
		raw, err := signer.Sign(ctx, payload)
		if err != nil {
			return nil, nil, err
		}

		signature := tuf.Signature{KeyID: key.KeyID, Signature: hex.EncodeToString(raw)}
		if key.Verify(payload, signature) != nil {
			continue
		}
		return key, &signature, nil
	}
	return nil, nil, nil
}

// roleKeys returns the role's signer set in the candidate state. For
// root the previous root's signers are eligible as well, so a rotated
// out signer can still approve the handover.
func roleKeys(candidateTree, baseTree *roletree.RoleTree, roleName string) ([]*tuf.Key, error) {
	delegator := candidateTree.Delegator(roleName)
	if delegator == nil {
		return nil, nil
	}
	keys, err := delegator.RoleKeys(roleName)
	if err != nil {
		return nil, err
	}

	if roleName == tuf.RootRoleName && baseTree != nil {
		prevKeys, err := baseTree.Root().RoleKeys(roleName)
		if err != nil {
			return nil, err
		}
		known := map[string]bool{}
		for _, key := range keys {
			known[key.KeyID] = true
		}
		for _, key := range prevKeys {
			if !known[key.KeyID] {
				keys = append(keys, key)
			}
		}
	}
	return keys, nil
}

func hasVerifiedSignature(metadata *tuf.Metadata, key *tuf.Key, payload []byte) bool {
	for _, sig := range metadata.Signatures {
		if sig.KeyID == key.KeyID && key.Verify(payload, sig) == nil {
			return true
		}
	}
	return false
}

func attachSignature(metadata *tuf.Metadata, signature tuf.Signature) {
	for i, sig := range metadata.Signatures {
		if sig.KeyID == signature.KeyID {
			metadata.Signatures[i] = signature
			return
		}
	}
	metadata.Signatures = append(metadata.Signatures, signature)
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:               "sign [event]",
		Short:             "Sign the roles awaiting this signer's signature in the current signing event",
		Long:              "Signs, with the key named by --key, every role in the current signing event that lists the key in its signer set and still misses its signature. The signed metadata is committed to the event branch. The optional event argument guards against signing while the wrong branch is checked out.",
		Args:              cobra.MaximumNArgs(1),
		RunE:              o.Run,
		DisableAutoGenTag: true,
	}
	o.AddFlags(cmd)

	return cmd
}

// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package threshold evaluates a role's candidate signature set against
// its signer policy. The evaluator is pure: it never consults the
// network or mutates anything.
package threshold

import (
	"errors"
	"log/slog"

	"github.com/tufci/tufci/internal/common/set"
	"github.com/tufci/tufci/internal/tuf"
)

var ErrNoSigners = errors.New("role has an empty signer set")

// Result is the outcome of evaluating one role's signatures.
type Result struct {
	// ValidSigners holds keyids from the role's signer set with a
	// verified signature over the signing bytes.
	ValidSigners *set.Set[string]

	// MissingSigners holds keyids from the role's signer set with no
	// verified signature.
	MissingSigners *set.Set[string]

	// InvalidSignatures holds keyids of candidate signatures that did
	// not verify, claim a keyid outside the signer set, or fail the
	// canonical keyid recomputation. They never count towards the
	// threshold but are surfaced for diagnostics.
	InvalidSignatures *set.Set[string]

	Threshold int
	Satisfied bool
}

// SignerIdentities maps the keyids in ids to the responsible signer
// identities (keyowner or backend locator) given the role's keys.
func SignerIdentities(keys []*tuf.Key, ids *set.Set[string]) []string {
	identities := set.NewSet[string]()
	for _, key := range keys {
		if ids.Has(key.KeyID) {
			identities.Add(key.SignerID())
		}
	}
	return identities.Contents()
}

// Evaluate computes satisfaction of roleName's threshold in delegator,
// over the signatures carried by metadata. Duplicate signatures from
// one keyid count once; a signature from a keyid not in the current
// signer set is recorded as invalid, never silently counted.
func Evaluate(delegator tuf.Delegator, roleName string, metadata *tuf.Metadata) (*Result, error) {
	keys, err := delegator.RoleKeys(roleName)
	if err != nil {
		return nil, err
	}
	thresholdValue, err := delegator.RoleThreshold(roleName)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, ErrNoSigners
	}

	payload, err := metadata.SigningBytes()
	if err != nil {
		return nil, err
	}

	result := &Result{
		ValidSigners:      set.NewSet[string](),
		MissingSigners:    set.NewSet[string](),
		InvalidSignatures: set.NewSet[string](),
		Threshold:         thresholdValue,
	}

	trusted := map[string]*tuf.Key{}
	for _, key := range keys {
		trusted[key.KeyID] = key
		result.MissingSigners.Add(key.KeyID)
	}

	for _, signature := range metadata.Signatures {
		key, isTrusted := trusted[signature.KeyID]
		if !isTrusted {
			slog.Debug("Ignoring signature from keyid outside signer set", "role", roleName, "keyid", signature.KeyID)
			result.InvalidSignatures.Add(signature.KeyID)
			continue
		}

		if err := key.Verify(payload, signature); err != nil {
			if errors.Is(err, tuf.ErrKeyIDMismatch) {
				// a prior defect class: surface it loudly, do not crash
				slog.Warn("Signature keyid does not match canonical recomputation", "role", roleName, "keyid", signature.KeyID)
			}
			if !errors.Is(err, tuf.ErrSignatureInvalid) && !errors.Is(err, tuf.ErrKeyIDMismatch) && !errors.Is(err, tuf.ErrUnknownSignatureScheme) {
				return nil, err
			}
			if signature.Signature != "" {
				result.InvalidSignatures.Add(signature.KeyID)
			}
			continue
		}

		result.ValidSigners.Add(signature.KeyID)
		result.MissingSigners.Remove(signature.KeyID)
	}

	result.Satisfied = result.ValidSigners.Len() >= thresholdValue
	return result, nil
}

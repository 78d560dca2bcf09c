// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	"github.com/secure-systems-lab/go-securesystemslib/signerverifier"
	"github.com/tufci/tufci/internal/signerverifier/ssh"
)

// KeyVal holds the public key material. Encoding follows the
// securesystemslib conventions for the key type.
type KeyVal struct {
	Public string `json:"public"`
}

// Key is a public key as stored in metadata. KeyID is the map key the
// key was stored under, not a serialized field: the canonical keyid is
// recomputed from the key contents (including vendor fields) so a
// tampered or legacy identifier is always detectable.
//
// KeyOwner names the person responsible for signing with this key and
// is set on every offline key. OnlineURI locates the signing backend
// and is set only on online keys; a key never carries both.
type Key struct {
	KeyID     string `json:"-"`
	KeyType   string `json:"keytype"`
	Scheme    string `json:"scheme"`
	KeyVal    KeyVal `json:"keyval"`
	KeyOwner  string `json:"x-tufci-keyowner,omitempty"`
	OnlineURI string `json:"x-tufci-online-uri,omitempty"`
}

// IsOnline indicates whether the key is signed by an automated backend.
func (k *Key) IsOnline() bool {
	return k.OnlineURI != ""
}

// SignerID returns the identity to report for this key: the keyowner
// for offline keys, the backend locator for online keys.
func (k *Key) SignerID() string {
	if k.KeyOwner != "" {
		return k.KeyOwner
	}
	return k.OnlineURI
}

// ComputeKeyID returns the canonical key identifier: the SHA-256 digest
// of the canonical JSON representation of the key, vendor fields
// included. This matches the wire-compatible specification; keys issued
// with non-compliant ids must be migrated, never silently accepted.
func ComputeKeyID(key *Key) (string, error) {
	canonical, err := cjson.EncodeCanonical(key)
	if err != nil {
		return "", err
	}

	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:]), nil
}

// Verify checks sig over payload using this key. A signature whose
// claimed keyid does not match the canonical recomputation for this key
// fails with ErrKeyIDMismatch; verification failure with the correct
// keyid fails with ErrSignatureInvalid.
func (k *Key) Verify(payload []byte, sig Signature) error {
	computedKeyID, err := ComputeKeyID(k)
	if err != nil {
		return err
	}
	if sig.KeyID != computedKeyID {
		return fmt.Errorf("%w: claimed '%s', computed '%s'", ErrKeyIDMismatch, sig.KeyID, computedKeyID)
	}

	sigBytes, err := hex.DecodeString(sig.Signature)
	if err != nil {
		return fmt.Errorf("%w: malformed signature encoding: %w", ErrSignatureInvalid, err)
	}
	if len(sigBytes) == 0 {
		// placeholder written by a version bump, not an attempt to sign
		return ErrSignatureInvalid
	}

	verifier, err := k.verifier()
	if err != nil {
		return err
	}
	if err := verifier.Verify(context.Background(), payload, sigBytes); err != nil {
		return fmt.Errorf("%w: %w", ErrSignatureInvalid, err)
	}

	return nil
}

func (k *Key) verifier() (dsse.Verifier, error) {
	sslibKey := &signerverifier.SSLibKey{
		KeyID:   k.KeyID,
		KeyType: k.KeyType,
		Scheme:  k.Scheme,
		KeyVal:  signerverifier.KeyVal{Public: k.KeyVal.Public},
	}

	switch k.KeyType {
	case ssh.KeyType:
		return ssh.NewVerifier(k.KeyVal.Public, k.KeyID)
	case signerverifier.ED25519KeyType:
		return signerverifier.NewED25519SignerVerifierFromSSLibKey(sslibKey)
	case signerverifier.ECDSAKeyType:
		return signerverifier.NewECDSASignerVerifierFromSSLibKey(sslibKey)
	case signerverifier.RSAKeyType:
		return signerverifier.NewRSAPSSSignerVerifierFromSSLibKey(sslibKey)
	default:
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownSignatureScheme, k.KeyType)
	}
}

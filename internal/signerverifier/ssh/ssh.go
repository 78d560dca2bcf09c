// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package ssh

import (
	"bytes"
	"context"
	"crypto"
	"encoding/base64"
	"fmt"
	"os/exec"

	"github.com/hiddeco/sshsig"
	"golang.org/x/crypto/ssh"
)

const (
	// SigNamespace is the sshsig namespace signatures are created and
	// verified under.
	SigNamespace = "tufci"

	KeyType = "ssh"
)

// Verifier verifies sshsig signatures made with an SSH key.
type Verifier struct {
	keyID  string
	sshKey ssh.PublicKey
}

// NewVerifier creates a Verifier from the base64-encoded SSH wire
// format public key recorded in metadata.
func NewVerifier(public, keyID string) (*Verifier, error) {
	bodyBytes, err := base64.StdEncoding.DecodeString(public)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ssh public key material: %w", err)
	}
	sshKey, err := ssh.ParsePublicKey(bodyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ssh public key material: %w", err)
	}

	return &Verifier{keyID: keyID, sshKey: sshKey}, nil
}

// Verify implements dsse.Verifier.
func (v *Verifier) Verify(_ context.Context, data []byte, sig []byte) error {
	signature, err := sshsig.Unarmor(sig)
	if err != nil {
		return fmt.Errorf("failed to parse ssh signature: %w", err)
	}

	message := bytes.NewReader(data)

	// ssh-keygen uses sha512 to sign with **any** key
	hash := sshsig.HashSHA512
	if err := sshsig.Verify(message, signature, v.sshKey, hash, SigNamespace); err != nil {
		return fmt.Errorf("failed to verify ssh signature: %w", err)
	}

	return nil
}

// KeyID implements dsse.Verifier.
func (v *Verifier) KeyID() (string, error) {
	return v.keyID, nil
}

// Public implements dsse.Verifier.
func (v *Verifier) Public() crypto.PublicKey {
	return v.sshKey.(ssh.CryptoPublicKey).CryptoPublicKey()
}

// Signer signs with "ssh-keygen -Y sign" using the key file at Path.
// The path may point to a public or private, encrypted or plaintext
// key in any format ssh-keygen supports, matching git's
// "user.signingKey" behavior.
type Signer struct {
	Path string
	*Verifier
}

// Sign implements dsse.Signer. The call blocks on any interaction the
// underlying key demands (passphrase, hardware touch); cancellation and
// retries are the caller's concern.
func (s *Signer) Sign(_ context.Context, data []byte) ([]byte, error) {
	cmd := exec.Command("ssh-keygen", "-Y", "sign", "-n", SigNamespace, "-f", s.Path) //nolint:gosec

	cmd.Stdin = bytes.NewBuffer(data)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run command %v: %w", cmd, err)
	}

	return output, nil
}

// PublicFromFile extracts the base64-encoded wire format public key
// from an SSH key file via ssh-keygen, for recording in metadata.
func PublicFromFile(path string) (string, error) {
	cmd := exec.Command("ssh-keygen", "-f", path, "-y")
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("failed to run command %v: %w", cmd, err)
	}

	pub, _, _, _, err := ssh.ParseAuthorizedKey(output)
	if err != nil {
		return "", fmt.Errorf("failed to parse ssh public key: %w", err)
	}

	return base64.StdEncoding.EncodeToString(pub.Marshal()), nil
}

// NewSignerFromFile creates an SSH signer from the passed path.
func NewSignerFromFile(path string) (*Signer, error) {
	public, err := PublicFromFile(path)
	if err != nil {
		return nil, err
	}
	verifier, err := NewVerifier(public, "")
	if err != nil {
		return nil, err
	}

	return &Signer{Path: path, Verifier: verifier}, nil
}

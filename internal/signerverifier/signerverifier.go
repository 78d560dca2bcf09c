// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

// Package signerverifier binds the abstract signing capability to
// concrete backends. A key's x-tufci-online-uri selects the backend:
// the cloud KMS providers are routed through the sigstore KMS registry,
// file-backed keys through securesystemslib, ssh keys through
// ssh-keygen. Backend errors propagate unchanged; retry semantics
// differ per backend and are the caller's concern.
package signerverifier

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/secure-systems-lab/go-securesystemslib/dsse"
	"github.com/secure-systems-lab/go-securesystemslib/signerverifier"
	"github.com/sigstore/sigstore/pkg/signature/kms"
	"github.com/sigstore/sigstore/pkg/signature/options"
	"github.com/tufci/tufci/internal/signerverifier/ssh"
	"github.com/tufci/tufci/internal/tuf"

	// Register the KMS providers with the sigstore registry.
	_ "github.com/sigstore/sigstore/pkg/signature/kms/aws"
	_ "github.com/sigstore/sigstore/pkg/signature/kms/azure"
	_ "github.com/sigstore/sigstore/pkg/signature/kms/gcp"
	_ "github.com/sigstore/sigstore/pkg/signature/kms/hashivault"
)

const (
	fileURIScheme = "file:"
	sshURIScheme  = "ssh:"
)

var (
	ErrNotAnOnlineKey       = errors.New("key has no online backend locator")
	ErrUnknownSigningSystem = errors.New("unknown signing system in online-uri")
)

// NewSignerFromKey returns a signer for the backend named by the key's
// online-uri annotation.
func NewSignerFromKey(ctx context.Context, key *tuf.Key) (dsse.Signer, error) {
	if key.OnlineURI == "" {
		return nil, ErrNotAnOnlineKey
	}
	return NewSignerForKey(ctx, key, key.OnlineURI)
}

// NewSignerForKey returns a signer for key whose private material lives
// at uri. Offline signers hold their keys locally and pass the locator
// explicitly; uri uses the same schemes as online keys.
func NewSignerForKey(ctx context.Context, key *tuf.Key, uri string) (dsse.Signer, error) {
	switch {
	case strings.HasPrefix(uri, fileURIScheme):
		return newFileSigner(key.KeyID, strings.TrimPrefix(uri, fileURIScheme))
	case strings.HasPrefix(uri, sshURIScheme):
		signer, err := ssh.NewSignerFromFile(strings.TrimPrefix(uri, sshURIScheme))
		if err != nil {
			return nil, err
		}
		return &keyIDSigner{signer: signer.Sign, keyID: key.KeyID}, nil
	default:
		return newKMSSigner(ctx, key.KeyID, uri)
	}
}

// keyIDSigner adapts a bare signing function to dsse.Signer, reporting
// the keyid recorded in metadata rather than one derived by the
// backend.
type keyIDSigner struct {
	signer func(ctx context.Context, data []byte) ([]byte, error)
	keyID  string
}

func (s *keyIDSigner) Sign(ctx context.Context, data []byte) ([]byte, error) {
	return s.signer(ctx, data)
}

func (s *keyIDSigner) KeyID() (string, error) {
	return s.keyID, nil
}

// newFileSigner loads a securesystemslib-format private key from disk.
// This backend exists for development and tests.
func newFileSigner(keyID, path string) (dsse.Signer, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sslibKey := &signerverifier.SSLibKey{}
	if err := json.Unmarshal(contents, sslibKey); err != nil {
		return nil, fmt.Errorf("unable to parse signing key at '%s': %w", path, err)
	}

	var signer dsse.Signer
	switch sslibKey.KeyType {
	case signerverifier.ED25519KeyType:
		signer, err = signerverifier.NewED25519SignerVerifierFromSSLibKey(sslibKey)
	case signerverifier.ECDSAKeyType:
		signer, err = signerverifier.NewECDSASignerVerifierFromSSLibKey(sslibKey)
	case signerverifier.RSAKeyType:
		signer, err = signerverifier.NewRSAPSSSignerVerifierFromSSLibKey(sslibKey)
	default:
		return nil, fmt.Errorf("%w: '%s'", tuf.ErrUnknownSignatureScheme, sslibKey.KeyType)
	}
	if err != nil {
		return nil, err
	}

	return &keyIDSigner{
		signer: signer.Sign,
		keyID:  keyID,
	}, nil
}

// newKMSSigner resolves uri against the sigstore KMS registry
// (gcpkms://, awskms://, azurekms://, hashivault://).
func newKMSSigner(ctx context.Context, keyID, uri string) (dsse.Signer, error) {
	sv, err := kms.Get(ctx, uri, crypto.SHA256)
	if err != nil {
		var notFound *kms.ProviderNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: '%s'", ErrUnknownSigningSystem, uri)
		}
		return nil, err
	}

	return &keyIDSigner{
		keyID: keyID,
		signer: func(ctx context.Context, data []byte) ([]byte, error) {
			return sv.SignMessage(bytes.NewReader(data), options.WithContext(ctx))
		},
	}, nil
}

// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

// This package defines the TUF metadata handled by tufci. The field
// shapes follow the TUF specification; tufci-specific configuration is
// carried in vendor-prefixed fields (x-tufci-*) that form a closed
// schema: unknown vendor fields are rejected at load time.

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/secure-systems-lab/go-securesystemslib/cjson"
	"github.com/tufci/tufci/internal/common/set"
)

const (
	RootRoleName      = "root"
	TargetsRoleName   = "targets"
	SnapshotRoleName  = "snapshot"
	TimestampRoleName = "timestamp"

	SpecVersion = "1.0.31"

	// Vendor-prefixed custom fields. The prefix is chosen so it cannot
	// collide with base specification fields.
	FieldExpiryPeriod  = "x-tufci-expiry-period"
	FieldSigningPeriod = "x-tufci-signing-period"
	FieldKeyOwner      = "x-tufci-keyowner"
	FieldOnlineURI     = "x-tufci-online-uri"

	vendorPrefix = "x-tufci-"
)

var (
	ErrUnknownMetadataType    = errors.New("unknown metadata type")
	ErrUnknownVendorField     = errors.New("unknown vendor field in metadata")
	ErrCannotMeetThreshold    = errors.New("insufficient keys to meet threshold")
	ErrInvalidThreshold       = errors.New("threshold must be at least 1")
	ErrRoleNotFound           = errors.New("role not delegated")
	ErrKeyNotFound            = errors.New("key not found")
	ErrDuplicatedRoleName     = errors.New("two delegations with same name found")
	ErrSignatureInvalid       = errors.New("signature is invalid")
	ErrKeyIDMismatch          = errors.New("keyid does not match canonical computation for key")
	ErrUnknownSignatureScheme = errors.New("unknown signature scheme")
)

// Signature records a single signature over a role's signed content.
// The signature bytes are hex encoded as in the TUF wire format.
type Signature struct {
	KeyID     string `json:"keyid"`
	Signature string `json:"sig"`
}

// Role records the signer set and threshold for a role entry in Root
// metadata. For the online roles (timestamp, snapshot), the entry also
// carries the expiry and signing periods in days.
type Role struct {
	KeyIDs        *set.Set[string] `json:"keyids"`
	Threshold     int              `json:"threshold"`
	ExpiryPeriod  int              `json:"x-tufci-expiry-period,omitempty"`
	SigningPeriod int              `json:"x-tufci-signing-period,omitempty"`
}

// Signed is the interface implemented by the four signed metadata
// payloads (root, targets, snapshot, timestamp).
type Signed interface {
	// RoleType returns the value of the _type field.
	RoleType() string
	GetVersion() int
	SetVersion(version int)
	ExpiresAt() (time.Time, error)
	SetExpires(expires time.Time)
	// Periods returns the signing and expiry periods in days. The
	// signing period defaults to half the expiry period when unset.
	Periods() (signingDays, expiryDays int)
}

// SignedCommon holds the fields common to all signed metadata payloads.
type SignedCommon struct {
	Type          string `json:"_type"`
	SpecVersion   string `json:"spec_version"`
	Version       int    `json:"version"`
	Expires       string `json:"expires"`
	ExpiryPeriod  int    `json:"x-tufci-expiry-period,omitempty"`
	SigningPeriod int    `json:"x-tufci-signing-period,omitempty"`
}

func (s *SignedCommon) RoleType() string {
	return s.Type
}

func (s *SignedCommon) GetVersion() int {
	return s.Version
}

func (s *SignedCommon) SetVersion(version int) {
	s.Version = version
}

func (s *SignedCommon) ExpiresAt() (time.Time, error) {
	return time.Parse(time.RFC3339, s.Expires)
}

func (s *SignedCommon) SetExpires(expires time.Time) {
	s.Expires = expires.UTC().Format("2006-01-02T15:04:05Z")
}

func (s *SignedCommon) Periods() (int, int) {
	signing := s.SigningPeriod
	if signing == 0 {
		signing = s.ExpiryPeriod / 2
	}
	return signing, s.ExpiryPeriod
}

// Delegator is implemented by metadata that delegates trust to other
// roles: Root (for the top-level roles, including itself) and Targets
// (for delegated targets roles).
type Delegator interface {
	RoleKeys(name string) ([]*Key, error)
	RoleThreshold(name string) (int, error)
	DelegatedRoleNames() []string
}

// Metadata is a signed metadata envelope: a payload plus the signatures
// collected over it.
type Metadata struct {
	Signed     Signed
	Signatures []Signature
}

type metadataAlias struct {
	Signed     json.RawMessage `json:"signed"`
	Signatures []Signature     `json:"signatures"`
}

func (m *Metadata) MarshalJSON() ([]byte, error) {
	signed, err := json.Marshal(m.Signed)
	if err != nil {
		return nil, err
	}

	sigs := m.Signatures
	if sigs == nil {
		sigs = []Signature{}
	}

	return json.Marshal(&metadataAlias{Signed: signed, Signatures: sigs})
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	alias := &metadataAlias{}
	if err := json.Unmarshal(data, alias); err != nil {
		return err
	}

	peek := struct {
		Type string `json:"_type"`
	}{}
	if err := json.Unmarshal(alias.Signed, &peek); err != nil {
		return err
	}

	var signed Signed
	switch peek.Type {
	case RootRoleName:
		signed = &RootMetadata{}
	case TargetsRoleName:
		signed = &TargetsMetadata{}
	case SnapshotRoleName:
		signed = &SnapshotMetadata{}
	case TimestampRoleName:
		signed = &TimestampMetadata{}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownMetadataType, peek.Type)
	}

	if err := validateVendorFields(alias.Signed, peek.Type); err != nil {
		return err
	}

	if err := json.Unmarshal(alias.Signed, signed); err != nil {
		return err
	}

	// keyids are the map keys on the wire; propagate them onto the
	// loaded Key values
	switch s := signed.(type) {
	case *RootMetadata:
		for keyID, key := range s.Keys {
			key.KeyID = keyID
		}
	case *TargetsMetadata:
		if s.Delegations != nil {
			for keyID, key := range s.Delegations.Keys {
				key.KeyID = keyID
			}
		}
	}

	m.Signed = signed
	m.Signatures = alias.Signatures
	return nil
}

// SigningBytes returns the canonical JSON representation of the signed
// payload, i.e. the bytes signatures are computed over.
func (m *Metadata) SigningBytes() ([]byte, error) {
	return cjson.EncodeCanonical(m.Signed)
}

// Bytes returns the serialized envelope as written to metadata files.
func (m *Metadata) Bytes() ([]byte, error) {
	return json.MarshalIndent(m, "", " ")
}

// LoadMetadata parses a metadata envelope from its file contents.
func LoadMetadata(data []byte) (*Metadata, error) {
	metadata := &Metadata{}
	if err := json.Unmarshal(data, metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// validateVendorFields enforces the closed vendor field schema: any
// x-tufci-* field not explicitly part of the schema is rejected rather
// than passed through silently.
func validateVendorFields(signedRaw []byte, metadataType string) error {
	top := map[string]json.RawMessage{}
	if err := json.Unmarshal(signedRaw, &top); err != nil {
		return err
	}

	switch metadataType {
	case RootRoleName, TargetsRoleName:
		if err := checkVendorKeys(top, FieldExpiryPeriod, FieldSigningPeriod); err != nil {
			return err
		}
	default:
		// online roles carry their periods on the root role entry
		if err := checkVendorKeys(top); err != nil {
			return err
		}
	}

	if rawKeys, has := top["keys"]; has {
		if err := validateKeyMapVendorFields(rawKeys); err != nil {
			return err
		}
	}

	if rawRoles, has := top["roles"]; has {
		roles := map[string]map[string]json.RawMessage{}
		if err := json.Unmarshal(rawRoles, &roles); err != nil {
			return err
		}
		for _, role := range roles {
			if err := checkVendorKeys(role, FieldExpiryPeriod, FieldSigningPeriod); err != nil {
				return err
			}
		}
	}

	if rawDelegations, has := top["delegations"]; has {
		delegations := map[string]json.RawMessage{}
		if err := json.Unmarshal(rawDelegations, &delegations); err != nil {
			return err
		}
		if rawKeys, has := delegations["keys"]; has {
			if err := validateKeyMapVendorFields(rawKeys); err != nil {
				return err
			}
		}
		if rawRoles, has := delegations["roles"]; has {
			delegatedRoles := []map[string]json.RawMessage{}
			if err := json.Unmarshal(rawRoles, &delegatedRoles); err != nil {
				return err
			}
			for _, role := range delegatedRoles {
				if err := checkVendorKeys(role, FieldExpiryPeriod, FieldSigningPeriod); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func validateKeyMapVendorFields(rawKeys json.RawMessage) error {
	keys := map[string]map[string]json.RawMessage{}
	if err := json.Unmarshal(rawKeys, &keys); err != nil {
		return err
	}
	for _, key := range keys {
		if err := checkVendorKeys(key, FieldKeyOwner, FieldOnlineURI); err != nil {
			return err
		}
	}
	return nil
}

func checkVendorKeys(fields map[string]json.RawMessage, allowed ...string) error {
	for name := range fields {
		if !strings.HasPrefix(name, vendorPrefix) {
			continue
		}
		permitted := false
		for _, a := range allowed {
			if name == a {
				permitted = true
				break
			}
		}
		if !permitted {
			return fmt.Errorf("%w: '%s'", ErrUnknownVendorField, name)
		}
	}
	return nil
}

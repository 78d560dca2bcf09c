// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package tuf

// MigrateKeyIDs rewrites every key identifier in the metadata to the
// canonical computation, updating the key maps and every signer set
// that references a migrated key. It returns whether anything changed.
// Signatures are left untouched: a signature under a legacy keyid stops
// verifying and must be collected again in a signing event.
func MigrateKeyIDs(metadata *Metadata) (bool, error) {
	switch signed := metadata.Signed.(type) {
	case *RootMetadata:
		renames, err := migrateKeyMap(signed.Keys)
		if err != nil {
			return false, err
		}
		for name, role := range signed.Roles {
			for legacy, canonical := range renames {
				if role.KeyIDs.Has(legacy) {
					role.KeyIDs.Remove(legacy)
					role.KeyIDs.Add(canonical)
				}
			}
			signed.Roles[name] = role
		}
		return len(renames) > 0, nil

	case *TargetsMetadata:
		if signed.Delegations == nil {
			return false, nil
		}
		renames, err := migrateKeyMap(signed.Delegations.Keys)
		if err != nil {
			return false, err
		}
		for _, role := range signed.Delegations.Roles {
			for legacy, canonical := range renames {
				if role.KeyIDs.Has(legacy) {
					role.KeyIDs.Remove(legacy)
					role.KeyIDs.Add(canonical)
				}
			}
		}
		return len(renames) > 0, nil

	default:
		return false, nil
	}
}

// migrateKeyMap rekeys the map by canonical keyids and returns the
// legacy-to-canonical renames performed.
func migrateKeyMap(keys map[string]*Key) (map[string]string, error) {
	renames := map[string]string{}
	for keyID, key := range keys {
		canonical, err := ComputeKeyID(key)
		if err != nil {
			return nil, err
		}
		if canonical != keyID {
			renames[keyID] = canonical
		}
	}

	for legacy, canonical := range renames {
		key := keys[legacy]
		key.KeyID = canonical
		delete(keys, legacy)
		keys[canonical] = key
	}
	return renames, nil
}

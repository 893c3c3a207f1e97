package simplet

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// =============================================================================
// Identity Derivation
// =============================================================================

// proofOfAttendanceDocument is the serialized form hashed for
// ProofOfAttendance deployments.
type proofOfAttendanceDocument struct {
	Common CommonConfig `json:"common"`
}

// emailAirdropDocument is the serialized form hashed for EmailAirdrop
// deployments. CollectionUUID is written as null when unset.
type emailAirdropDocument struct {
	Common         CommonConfig `json:"common"`
	CollectionUUID *string      `json:"collection_uuid"`
}

// DeriveID computes the stable identity of a deployment configuration: the
// Keccak-256 digest of its JSON serialization, hex encoded without a prefix.
//
// Identical configurations always produce the same identity. Unset optional
// fields serialize as null rather than being omitted, keeping the byte form
// stable across runs. Characters such as & < > are written literally.
func DeriveID(cfg DeploymentConfig) (string, error) {
	data, err := serialize(cfg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(crypto.Keccak256(data)), nil
}

func serialize(cfg DeploymentConfig) ([]byte, error) {
	var doc any
	switch cfg.Kind {
	case KindProofOfAttendance:
		doc = proofOfAttendanceDocument{Common: cfg.Common}
	case KindEmailAirdrop:
		doc = emailAirdropDocument{Common: cfg.Common, CollectionUUID: cfg.CollectionUUID}
	default:
		return nil, fmt.Errorf("serialize config: %w: %q", ErrUnknownKind, cfg.Kind)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("serialize config: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// RegistryKey builds the key a running stack is tracked under.
// Pattern: {service}_{identity}
//
// Example:
//
//	RegistryKey(KindProofOfAttendance, "3af1") // returns "proof_of_attendance_3af1"
func RegistryKey(kind Kind, id string) string {
	return fmt.Sprintf("%s_%s", kind, id)
}

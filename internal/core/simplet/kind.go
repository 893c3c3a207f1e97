package simplet

import (
	"errors"
	"fmt"
)

// ErrUnknownKind is returned when a service name does not map to a Kind.
var ErrUnknownKind = errors.New("unknown simplet kind")

// Kind identifies a supported simplet type. The string value is the
// service name used in registry keys and configuration sections.
type Kind string

const (
	KindProofOfAttendance Kind = "proof_of_attendance"
	KindEmailAirdrop      Kind = "email_airdrop"
)

// binding is the static wiring of a kind to its database host and image.
type binding struct {
	displayName   string
	databaseHost  string
	image         string
	hasCollection bool
}

var bindings = map[Kind]binding{
	KindProofOfAttendance: {
		displayName:  "Proof of Attendance",
		databaseHost: "poa_db",
		image:        "ps-poa:latest",
	},
	KindEmailAirdrop: {
		displayName:   "Email Airdrop",
		databaseHost:  "airdrop_db",
		image:         "ps-email-airdrop:latest",
		hasCollection: true,
	},
}

// Kinds returns every supported kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindProofOfAttendance, KindEmailAirdrop}
}

// ParseKind maps a service name to its Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(name)
	if _, ok := bindings[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, name)
	}
	return k, nil
}

// Valid reports whether k is one of the supported kinds.
func (k Kind) Valid() bool {
	_, ok := bindings[k]
	return ok
}

// String returns the service name.
func (k Kind) String() string {
	return string(k)
}

// DisplayName returns the human readable name used in status messages.
func (k Kind) DisplayName() string {
	if b, ok := bindings[k]; ok {
		return b.displayName
	}
	return string(k)
}

// DatabaseHost returns the logical database hostname the application
// container connects to. It is never derived from user input.
func (k Kind) DatabaseHost() string {
	return bindings[k].databaseHost
}

// Image returns the application image reference.
func (k Kind) Image() string {
	return bindings[k].image
}

// HasCollection reports whether the kind accepts a collection identifier.
func (k Kind) HasCollection() bool {
	return bindings[k].hasCollection
}

package ids

import (
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/ed25519"
)

// Curve names the two elliptic curves a signer public key may use.
type Curve int

const (
	CurveSecp256k1 Curve = iota
	CurveEd25519
)

// ValidatePublicKey checks that a signer public key is well-formed for its
// claimed curve (33 compressed bytes for Secp256k1, 32 bytes for Ed25519),
// returning the canonical byte form DeriveVirtual should hash.
func ValidatePublicKey(curve Curve, raw []byte) ([]byte, error) {
	switch curve {
	case CurveSecp256k1:
		if len(raw) != 33 {
			return nil, fmt.Errorf("ids: secp256k1 public key must be 33 bytes, got %d", len(raw))
		}
		if _, err := secp256k1.ParsePubKey(raw); err != nil {
			return nil, fmt.Errorf("ids: invalid secp256k1 public key: %w", err)
		}
		return raw, nil
	case CurveEd25519:
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("ids: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("ids: unknown curve %d", curve)
	}
}

// DeriveVirtualFromSigner validates the signer's public key for its curve
// and derives the corresponding virtual NodeId, combining ValidatePublicKey
// and DeriveVirtual for the common case of turning a transaction signer
// into a virtual account/identity.
func DeriveVirtualFromSigner(entity EntityType, curve Curve, rawPublicKey []byte) (NodeId, error) {
	canonical, err := ValidatePublicKey(curve, rawPublicKey)
	if err != nil {
		return NodeId{}, err
	}
	return DeriveVirtual(entity, canonical)
}

// NewExecutionTraceID mints a random UUID a host can use as a correlation
// id for one transaction execution. Nothing in this module calls it, and
// the engine's own log lines do not carry it.
func NewExecutionTraceID() string {
	return uuid.NewString()
}

package connections

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// VerkeyLength is the decoded size of an Ed25519 verification key.
const VerkeyLength = 32

// ErrInvalidVerkey is returned for keys that are not base58-encoded Ed25519 verkeys.
var ErrInvalidVerkey = errors.New("invalid verkey")

// ValidateVerkey checks that key is a raw base58 Ed25519 public key.
func ValidateVerkey(key string) error {
	raw, err := base58.Decode(key)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidVerkey, key, err)
	}
	if len(raw) != VerkeyLength {
		return fmt.Errorf("%w %q: decoded to %d bytes, want %d", ErrInvalidVerkey, key, len(raw), VerkeyLength)
	}
	return nil
}

func validateInvitationKeys(invitation *ConnectionInvitation) error {
	for _, keys := range [][]string{invitation.RecipientKeys, invitation.RoutingKeys} {
		for _, key := range keys {
			if err := ValidateVerkey(key); err != nil {
				return err
			}
		}
	}
	return nil
}

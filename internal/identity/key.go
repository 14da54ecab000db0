package identity

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// SecretLength is the byte length of a secp256k1 private key.
const SecretLength = 32

// ErrInvalidSecret is returned when the configured secret is not a valid key.
var ErrInvalidSecret = errors.New("invalid secret")

// Identity is a signing key together with the account address it controls.
// Its String form shows the address only.
type Identity struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// Derive parses a hex-encoded 32-byte secret (optionally 0x-prefixed) and
// derives its account address. The result depends on the secret alone.
// When logger is non-nil the derived address is logged at debug level.
func Derive(secretHex string, logger *zap.Logger) (*Identity, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(secretHex), "0x"), "0X")

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}
	if len(raw) != SecretLength {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidSecret, len(raw), SecretLength)
	}

	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSecret, err)
	}

	id := &Identity{key: key, address: AddressOf(&key.PublicKey)}
	if logger != nil {
		logger.Debug("derived signing identity", zap.String("address", id.address.Hex()))
	}
	return id, nil
}

// AddressOf returns the last 20 bytes of the Keccak-256 digest of the
// uncompressed public key, without its 0x04 prefix byte.
func AddressOf(pub *ecdsa.PublicKey) common.Address {
	uncompressed := crypto.FromECDSAPub(pub)

	h := sha3.NewLegacyKeccak256()
	h.Write(uncompressed[1:])
	digest := h.Sum(nil)

	return common.BytesToAddress(digest[12:])
}

// Address returns the account address.
func (i *Identity) Address() common.Address {
	return i.address
}

// PrivateKey returns the signing key.
func (i *Identity) PrivateKey() *ecdsa.PrivateKey {
	return i.key
}

// PublicKey returns the 65-byte uncompressed public key.
func (i *Identity) PublicKey() []byte {
	return crypto.FromECDSAPub(&i.key.PublicKey)
}

func (i *Identity) String() string {
	return i.address.Hex()
}

package identity_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jmerrifield20/git-audit/internal/identity"
)

// Well-known development key (the first account of many local dev chains).
const (
	devSecret  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestDerive_knownVector(t *testing.T) {
	id, err := identity.Derive(devSecret, nil)
	if err != nil {
		t.Fatal(err)
	}
	if id.Address().Hex() != devAddress {
		t.Errorf("Address: got %s, want %s", id.Address().Hex(), devAddress)
	}
	if id.String() != devAddress {
		t.Errorf("String must show the address only, got %q", id.String())
	}
}

func TestDerive_deterministic(t *testing.T) {
	secrets := []string{
		devSecret,
		"0x" + devSecret,
		"e2ee547be17ac9f7777d4763c43fd726c0a2a6d40450c92de942d7925d620b6d",
		"0740fb09781e8fa771edcf1bddee93ad6772593b3139f1cf36b0d095d235887b",
	}
	for _, s := range secrets {
		a, err := identity.Derive(s, nil)
		if err != nil {
			t.Fatalf("Derive(%q): %v", s, err)
		}
		b, err := identity.Derive(s, nil)
		if err != nil {
			t.Fatal(err)
		}
		if a.Address() != b.Address() {
			t.Errorf("non-deterministic derivation for %q: %s vs %s", s, a.Address().Hex(), b.Address().Hex())
		}
	}
}

func TestAddressOf_matchesGoEthereum(t *testing.T) {
	for i := 0; i < 8; i++ {
		key, err := crypto.GenerateKey()
		if err != nil {
			t.Fatal(err)
		}
		got := identity.AddressOf(&key.PublicKey)
		want := crypto.PubkeyToAddress(key.PublicKey)
		if got != want {
			t.Fatalf("AddressOf: got %s, want %s", got.Hex(), want.Hex())
		}
	}
}

func TestDerive_invalid(t *testing.T) {
	cases := map[string]string{
		"not hex":   "zz" + devSecret[2:],
		"too short": devSecret[:62],
		"too long":  devSecret + "00",
		"zero key":  strings.Repeat("0", 64),
		"empty":     "",
	}
	for name, secret := range cases {
		secret := secret
		t.Run(name, func(t *testing.T) {
			_, err := identity.Derive(secret, nil)
			if !errors.Is(err, identity.ErrInvalidSecret) {
				t.Fatalf("expected ErrInvalidSecret, got %v", err)
			}
		})
	}
}

func TestPublicKey_uncompressed(t *testing.T) {
	id, err := identity.Derive(devSecret, nil)
	if err != nil {
		t.Fatal(err)
	}
	pub := id.PublicKey()
	if len(pub) != 65 || pub[0] != 0x04 {
		t.Errorf("PublicKey: got %d bytes, prefix %#x", len(pub), pub[0])
	}
}

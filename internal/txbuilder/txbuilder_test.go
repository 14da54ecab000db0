package txbuilder_test

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/jmerrifield20/git-audit/internal/txbuilder"
)

const devSecret = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func fixture(t *testing.T) (*big.Int, common.Address, func() txbuilder.UnsignedTransaction) {
	t.Helper()
	contract := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	build := func() txbuilder.UnsignedTransaction {
		return txbuilder.Build(3, &contract, nil, big.NewInt(2_000_000_000), 45_000, []byte{0xb5, 0xc9, 0xd0, 0x46})
	}
	return big.NewInt(1337), contract, build
}

func TestSign_RecoversSender(t *testing.T) {
	key, err := crypto.HexToECDSA(devSecret)
	if err != nil {
		t.Fatalf("HexToECDSA: %v", err)
	}
	chainID, contract, build := fixture(t)

	signed, err := txbuilder.Sign(build(), key, chainID.Uint64())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	var tx types.Transaction
	if err := tx.UnmarshalBinary(signed.Bytes()); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if tx.Hash() != signed.Hash() {
		t.Errorf("hash mismatch: %s vs %s", tx.Hash().Hex(), signed.Hash().Hex())
	}
	if tx.ChainId().Cmp(chainID) != 0 {
		t.Errorf("ChainId = %s, want %s", tx.ChainId(), chainID)
	}
	if tx.Nonce() != 3 || tx.Gas() != 45_000 || *tx.To() != contract {
		t.Errorf("unexpected fields: nonce=%d gas=%d to=%s", tx.Nonce(), tx.Gas(), tx.To().Hex())
	}
	if tx.Value().Sign() != 0 {
		t.Errorf("Value = %s, want 0", tx.Value())
	}

	sender, err := types.Sender(types.NewEIP155Signer(chainID), &tx)
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	if sender != crypto.PubkeyToAddress(key.PublicKey) {
		t.Errorf("sender = %s, want %s", sender.Hex(), crypto.PubkeyToAddress(key.PublicKey).Hex())
	}
}

func TestSign_Deterministic(t *testing.T) {
	key, _ := crypto.HexToECDSA(devSecret)
	chainID, _, build := fixture(t)

	a, err := txbuilder.Sign(build(), key, chainID.Uint64())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	b, err := txbuilder.Sign(build(), key, chainID.Uint64())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("signing the same transaction twice produced different bytes")
	}
}

func TestSign_ChainBound(t *testing.T) {
	key, _ := crypto.HexToECDSA(devSecret)
	_, _, build := fixture(t)

	a, _ := txbuilder.Sign(build(), key, 1)
	b, _ := txbuilder.Sign(build(), key, 1337)
	if a.Hash() == b.Hash() {
		t.Error("signatures for different chains share a hash")
	}
	if a.ChainID() != 1 || b.ChainID() != 1337 {
		t.Errorf("ChainID = %d, %d", a.ChainID(), b.ChainID())
	}
}

func TestSign_Errors(t *testing.T) {
	key, _ := crypto.HexToECDSA(devSecret)
	_, _, build := fixture(t)

	if _, err := txbuilder.Sign(build(), key, 0); err != txbuilder.ErrChainID {
		t.Errorf("chain id 0: got %v, want ErrChainID", err)
	}
	if _, err := txbuilder.Sign(build(), nil, 1); err != txbuilder.ErrNoKey {
		t.Errorf("nil key: got %v, want ErrNoKey", err)
	}
}

func TestSign_Creation(t *testing.T) {
	key, _ := crypto.HexToECDSA(devSecret)
	code := []byte{0x60, 0x00, 0x60, 0x00}
	u := txbuilder.Build(0, nil, nil, big.NewInt(1), txbuilder.CreationGasLimit(code), code)
	if !u.IsCreation() {
		t.Fatal("expected creation transaction")
	}

	signed, err := txbuilder.Sign(u, key, 1337)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	var tx types.Transaction
	if err := tx.UnmarshalBinary(signed.Bytes()); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}
	if tx.To() != nil {
		t.Errorf("To = %s, want nil", tx.To().Hex())
	}
	if !bytes.Equal(tx.Data(), code) {
		t.Errorf("Data = %x, want %x", tx.Data(), code)
	}
}

func TestBuild_CopiesInputs(t *testing.T) {
	data := []byte{1, 2, 3}
	price := big.NewInt(10)
	to := common.HexToAddress("0x01")
	u := txbuilder.Build(0, &to, nil, price, 21000, data)

	data[0] = 9
	price.SetInt64(99)
	to[0] = 0xff

	if u.Data[0] != 1 {
		t.Error("Build kept a reference to the data slice")
	}
	if u.GasPrice.Int64() != 10 {
		t.Error("Build kept a reference to the gas price")
	}
	if *u.To != common.HexToAddress("0x01") {
		t.Error("Build kept a reference to the recipient")
	}
}

func TestCreationGasLimit(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want uint64
	}{
		{"empty", nil, 53_000 + 100_000},
		{"zero byte", []byte{0x00}, 53_000 + 4 + 200 + 100_000},
		{"non-zero byte", []byte{0x60}, 53_000 + 16 + 200 + 100_000},
		{"mixed", []byte{0x00, 0x01, 0x00}, 53_000 + 4 + 16 + 4 + 600 + 100_000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := txbuilder.CreationGasLimit(tc.code); got != tc.want {
				t.Errorf("CreationGasLimit = %d, want %d", got, tc.want)
			}
		})
	}
}

// Package contract encodes and decodes calls to the audit contract.
//
// The contract keeps an append-only array of anchored revisions:
//
//	anchor(uint256 commit)            owner only
//	commits() view returns (uint256[])
//	owner()   view returns (address)
//
// Its creation bytecode and ABI are embedded under artifacts/.
package contract

import (
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmerrifield20/git-audit/pkg/revision"
)

// Method names of the audit contract.
const (
	MethodAnchor  = "anchor"
	MethodCommits = "commits"
	MethodOwner   = "owner"
)

var (
	// ErrABIParse is returned when an ABI description cannot be parsed.
	ErrABIParse = errors.New("abi: parse failed")
	// ErrEncoding is returned when a call cannot be encoded against the ABI.
	ErrEncoding = errors.New("abi: encoding failed")
	// ErrDecoding is returned when return data does not match the ABI.
	ErrDecoding = errors.New("abi: decoding failed")
)

var (
	//go:embed artifacts/GitAudit.abi
	auditABI string

	//go:embed artifacts/GitAudit.bin
	auditBin string
)

// Artifact is a deployable contract: creation bytecode and its ABI description.
type Artifact struct {
	ABI      string
	Bytecode []byte
}

// Audit returns the embedded audit contract artifact.
func Audit() Artifact {
	return Artifact{
		ABI:      auditABI,
		Bytecode: common.FromHex(strings.TrimSpace(auditBin)),
	}
}

// Interface is a parsed ABI description.
type Interface struct {
	abi abi.ABI
	raw string
}

// LoadABI parses an ABI JSON description.
func LoadABI(raw string) (*Interface, error) {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrABIParse, err)
	}
	return &Interface{abi: parsed, raw: raw}, nil
}

// MustLoadABI is like LoadABI but panics on error. Useful for embedded ABIs.
func MustLoadABI(raw string) *Interface {
	c, err := LoadABI(raw)
	if err != nil {
		panic(err)
	}
	return c
}

// JSON returns the description the Interface was loaded from.
func (c *Interface) JSON() string {
	return c.raw
}

// HasMethod reports whether the ABI declares a method called name.
func (c *Interface) HasMethod(name string) bool {
	_, ok := c.abi.Methods[name]
	return ok
}

// EncodeCall returns the selector and ABI-encoded arguments for method.
func (c *Interface) EncodeCall(method string, args ...any) ([]byte, error) {
	if !c.HasMethod(method) {
		return nil, fmt.Errorf("%w: method %q not found", ErrEncoding, method)
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEncoding, method, err)
	}
	return data, nil
}

// EncodeDeploy appends the encoded constructor arguments to bytecode.
func (c *Interface) EncodeDeploy(bytecode []byte, args ...any) ([]byte, error) {
	packed, err := c.abi.Pack("", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: constructor: %v", ErrEncoding, err)
	}
	data := make([]byte, 0, len(bytecode)+len(packed))
	data = append(data, bytecode...)
	return append(data, packed...), nil
}

// DecodeReturn unpacks the return data of method into Go values.
func (c *Interface) DecodeReturn(method string, raw []byte) ([]any, error) {
	if !c.HasMethod(method) {
		return nil, fmt.Errorf("%w: method %q not found", ErrDecoding, method)
	}
	vals, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecoding, method, err)
	}
	return vals, nil
}

// EncodeAnchor encodes anchor(id) with id as a full-width uint256.
func (c *Interface) EncodeAnchor(id revision.ID) ([]byte, error) {
	return c.EncodeCall(MethodAnchor, id.Big())
}

// EncodeCommits encodes the zero-argument commits() accessor.
func (c *Interface) EncodeCommits() ([]byte, error) {
	return c.EncodeCall(MethodCommits)
}

// DecodeCommits decodes the commits() return value, preserving contract order.
func (c *Interface) DecodeCommits(raw []byte) ([]revision.ID, error) {
	vals, err := c.DecodeReturn(MethodCommits, raw)
	if err != nil {
		return nil, err
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("%w: commits: got %d return values, want 1", ErrDecoding, len(vals))
	}
	ints, ok := vals[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: commits: got %T, want []*big.Int", ErrDecoding, vals[0])
	}

	ids := make([]revision.ID, len(ints))
	for i, v := range ints {
		id, err := revision.FromBig(v)
		if err != nil {
			return nil, fmt.Errorf("%w: commits[%d]: %v", ErrDecoding, i, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// DecodeOwner decodes the owner() return value.
func (c *Interface) DecodeOwner(raw []byte) (common.Address, error) {
	vals, err := c.DecodeReturn(MethodOwner, raw)
	if err != nil {
		return common.Address{}, err
	}
	if len(vals) != 1 {
		return common.Address{}, fmt.Errorf("%w: owner: got %d return values, want 1", ErrDecoding, len(vals))
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: owner: got %T, want common.Address", ErrDecoding, vals[0])
	}
	return addr, nil
}

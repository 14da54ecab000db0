// Package identity implements the git-audit signing identity.
//
// It provides:
//   - Derive: parses the configured secret into an Identity
//   - Identity: the secp256k1 signing key and its account address
//   - AddressOf: account address derivation from a public key
package identity

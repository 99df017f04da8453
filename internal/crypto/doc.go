// Package crypto exposes the primitives the MLS cipher suite
// MLS_128_DHKEMX25519_CHACHA20POLY1305_SHA256_Ed25519 is built from.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     DeriveKeyPair, DH)
//   - Ed25519 signing with MLS domain-separation labels (SignWithLabel,
//     VerifyWithLabel)
//   - HKDF helpers in MLS form (ExtractSecret, ExpandWithLabel, DeriveSecret)
//   - HPKE base mode, DHKEM(X25519)+HKDF-SHA256+ChaCha20-Poly1305
//     (HPKESeal, HPKEOpen)
//   - ChaCha20-Poly1305 AEAD wrappers (SealAEAD, OpenAEAD)
//   - Hash-based references for key packages and proposals (RefHash)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Callers should treat returned secrets as
// sensitive and rely on memzero.Zero when practical to reduce lifetime in
// memory.
package crypto

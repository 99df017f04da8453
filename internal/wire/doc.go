// Package wire implements the deterministic binary encoding of the MLS
// message structures defined in internal/domain.
//
// The encoding is TLS presentation language style: fixed-width integers in
// network order and opaque vectors with 8, 16 or 32 bit length prefixes,
// built on golang.org/x/crypto/cryptobyte. Signatures, transcript hashes and
// hash references are all computed over these encodings, so encode/decode
// must round-trip byte for byte.
//
// Marshal functions never fail for well-formed in-memory values. Unmarshal
// functions return ErrDecode (wrapped with context) for anything malformed,
// including trailing bytes.
package wire

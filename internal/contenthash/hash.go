package contenthash

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Hashes are stable across processes and
// machines for identical input bytes; they key every cache decision and are
// embedded in artifact names and provenance lines.
type Hash [32]byte

// SchemaVersion salts description digests. Bumping it invalidates every
// cached lock derived from a description, without touching locks supplied
// directly by users.
const SchemaVersion = "lockstep-schema-1"

// Hex returns the full lowercase hex token.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Short returns the 12-character path-segment token used in environment
// directory names.
func (h Hash) Short() string {
	return h.Hex()[:12]
}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Parse decodes a full hex token produced by Hex.
func Parse(token string) (Hash, error) {
	var h Hash
	raw, err := hex.DecodeString(token)
	if err != nil {
		return h, fmt.Errorf("contenthash: decode %q: %w", token, err)
	}
	if len(raw) != len(h) {
		return h, fmt.Errorf("contenthash: token %q has %d bytes, want %d", token, len(raw), len(h))
	}
	copy(h[:], raw)
	return h, nil
}

// Digest hashes a byte slice.
func Digest(data []byte) Hash {
	return Hash(blake3.Sum256(data))
}

// DigestReader hashes a stream.
func DigestReader(r io.Reader) (Hash, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}

// DigestFile hashes a file's current contents.
func DigestFile(path string) (Hash, error) {
	file, err := os.Open(path)
	if err != nil {
		return Hash{}, err
	}
	defer file.Close()
	return DigestReader(file)
}

// DigestDescription computes the governing hash of a description: the schema
// version is folded in ahead of the content so a schema change regenerates
// every derived lock.
func DigestDescription(data []byte) Hash {
	hasher := blake3.New()
	hasher.Write([]byte(SchemaVersion))
	hasher.Write([]byte{0})
	hasher.Write(data)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h
}

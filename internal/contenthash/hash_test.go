package contenthash

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestDigestStability(t *testing.T) {
	first := Digest([]byte("numpy=1.26.4"))
	second := Digest([]byte("numpy=1.26.4"))
	if first != second {
		t.Fatalf("identical input produced different digests: %s vs %s", first.Hex(), second.Hex())
	}
	if first == Digest([]byte("numpy=1.26.5")) {
		t.Fatalf("distinct inputs collided")
	}
}

func TestDigestReaderMatchesDigest(t *testing.T) {
	payload := bytes.Repeat([]byte("environment"), 4096)
	fromBytes := Digest(payload)
	fromReader, err := DigestReader(bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("digest reader: %v", err)
	}
	if fromBytes != fromReader {
		t.Fatalf("reader digest %s differs from byte digest %s", fromReader.Hex(), fromBytes.Hex())
	}
}

func TestDigestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "env.yml")
	if err := os.WriteFile(path, []byte("dependencies:\n  - python\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	fromFile, err := DigestFile(path)
	if err != nil {
		t.Fatalf("digest file: %v", err)
	}
	if fromFile != Digest([]byte("dependencies:\n  - python\n")) {
		t.Fatalf("file digest does not match content digest")
	}
}

func TestDigestDescriptionSalted(t *testing.T) {
	content := []byte("dependencies:\n  - python\n")
	if DigestDescription(content) == Digest(content) {
		t.Fatalf("description digest must differ from raw digest (schema salt missing)")
	}
	if DigestDescription(content) != DigestDescription(content) {
		t.Fatalf("description digest is not deterministic")
	}
}

func TestParseRoundTrip(t *testing.T) {
	h := Digest([]byte("roundtrip"))
	parsed, err := Parse(h.Hex())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip changed hash")
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected error for invalid hex")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Fatalf("expected error for short token")
	}
}

func TestShortToken(t *testing.T) {
	h := Digest([]byte("short"))
	if len(h.Short()) != 12 {
		t.Fatalf("short token length %d, want 12", len(h.Short()))
	}
	if h.Hex()[:12] != h.Short() {
		t.Fatalf("short token is not a prefix of the hex token")
	}
}

package crypto

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// SignatureHeader carries the canonicalization version the signature was
// computed over, so a verifier can detect a lockfile written by a future,
// differently-canonicalized version of this tool.
type SignatureHeader struct {
	CanonVersion string `json:"canon_version"`
}

// SignatureEnvelope is a header plus an Ed25519 signature.
type SignatureEnvelope struct {
	Header    *SignatureHeader
	Signature []byte
}

// WriteSignature serializes sig with its canonicalization version as
// "<json header>\n<hex signature>".
func WriteSignature(sig []byte, canonVersion string) []byte {
	header := SignatureHeader{CanonVersion: canonVersion}
	headerBytes, _ := json.Marshal(header)
	return []byte(string(headerBytes) + "\n" + hex.EncodeToString(sig))
}

// ReadSignature parses an envelope written by WriteSignature. A bare hex
// string with no header line is accepted as a legacy v1 signature.
func ReadSignature(data []byte) (*SignatureEnvelope, error) {
	content := strings.TrimSpace(string(data))

	if strings.HasPrefix(content, "{") {
		lines := strings.SplitN(content, "\n", 2)
		if len(lines) != 2 {
			return nil, fmt.Errorf("invalid signature format: expected header and payload")
		}

		var header SignatureHeader
		if err := json.Unmarshal([]byte(lines[0]), &header); err != nil {
			return nil, fmt.Errorf("invalid signature header: %w", err)
		}

		sig, err := hex.DecodeString(strings.TrimSpace(lines[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid signature hex: %w", err)
		}
		return &SignatureEnvelope{Header: &header, Signature: sig}, nil
	}

	sig, err := hex.DecodeString(content)
	if err != nil {
		return nil, fmt.Errorf("invalid signature format: %w", err)
	}
	return &SignatureEnvelope{Header: nil, Signature: sig}, nil
}

// GetCanonVersion returns the envelope's canonicalization version,
// defaulting to "v1" for a header-less legacy signature.
func (e *SignatureEnvelope) GetCanonVersion() string {
	if e.Header == nil {
		return "v1"
	}
	return e.Header.CanonVersion
}

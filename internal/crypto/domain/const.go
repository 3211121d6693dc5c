package domain

import "fmt"

// Algorithm represents the cryptographic algorithm used for encryption.
//
// All supported algorithms provide Authenticated Encryption with Associated Data (AEAD),
// ensuring both confidentiality and authenticity of encrypted data. AEAD prevents both
// unauthorized reading and tampering with encrypted data.
//
// Algorithm selection guidelines:
//   - Use AESGCM on modern CPUs with AES-NI hardware acceleration
//   - Use ChaCha20 on mobile devices or systems without AES-NI
//   - Both provide equivalent 256-bit security when used correctly
type Algorithm string

const (
	// AESGCM represents the AES-256-GCM authenticated encryption algorithm.
	//
	// Key features:
	//   - 256-bit key size
	//   - 12-byte nonce (96 bits)
	//   - 16-byte authentication tag
	AESGCM Algorithm = "aes-gcm"

	// ChaCha20 represents the ChaCha20-Poly1305 authenticated encryption algorithm.
	//
	// Key features:
	//   - 256-bit key size
	//   - 12-byte nonce (96 bits)
	//   - 16-byte authentication tag
	//   - Constant-time software implementation
	ChaCha20 Algorithm = "chacha20-poly1305"
)

const (
	// KeySize is the size in bytes of every key in the hierarchy (root, scope and data keys).
	KeySize = 32

	// TagSize is the authentication tag size of every supported AEAD.
	TagSize = 16
)

// AlgorithmID is the one-byte identifier embedded in sealed payloads.
//
// Identifiers are part of the persisted format and must never be reassigned.
type AlgorithmID byte

const (
	// AlgorithmIDAESGCM identifies AES-256-GCM in sealed payloads.
	AlgorithmIDAESGCM AlgorithmID = 0x01
	// AlgorithmIDChaCha20 identifies ChaCha20-Poly1305 in sealed payloads.
	AlgorithmIDChaCha20 AlgorithmID = 0x02
)

// ID returns the persisted identifier of the algorithm.
func (a Algorithm) ID() (AlgorithmID, error) {
	switch a {
	case AESGCM:
		return AlgorithmIDAESGCM, nil
	case ChaCha20:
		return AlgorithmIDChaCha20, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, a)
	}
}

// Algorithm returns the algorithm for a persisted identifier.
func (id AlgorithmID) Algorithm() (Algorithm, error) {
	switch id {
	case AlgorithmIDAESGCM:
		return AESGCM, nil
	case AlgorithmIDChaCha20:
		return ChaCha20, nil
	default:
		return "", fmt.Errorf("%w: id 0x%02x", ErrUnsupportedAlgorithm, byte(id))
	}
}

// ParseAlgorithm converts a configuration or CLI value into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	alg := Algorithm(s)
	if _, err := alg.ID(); err != nil {
		return "", err
	}
	return alg, nil
}

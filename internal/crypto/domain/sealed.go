package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Persisted format versions. Historical blobs must stay parseable forever, so new
// layouts get a new version byte instead of changing these.
const (
	SealedPayloadV1 byte = 0x01
	SealedBlobV1    byte = 0x01
)

const (
	payloadHeaderSize = 3          // version | algorithm id | nonce length
	blobHeaderSize    = 1 + 16 + 2 // version | kms key id | wrapped key length
	maxWrappedKeySize = 1<<16 - 1  // uint16 length prefix
	minPayloadSize    = payloadHeaderSize + TagSize
)

// SealedPayload is the self-describing output of the envelope cipher.
//
// Binary layout (version 1):
//
//	+---------+--------+-----------+-------+------------+-----------+
//	| 0x01    | alg id | nonce len | nonce | ciphertext | tag (16B) |
//	+---------+--------+-----------+-------+------------+-----------+
type SealedPayload struct {
	Algorithm  Algorithm
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Marshal encodes the payload in the version 1 layout.
func (p *SealedPayload) Marshal() ([]byte, error) {
	algID, err := p.Algorithm.ID()
	if err != nil {
		return nil, err
	}
	if len(p.Nonce) == 0 || len(p.Nonce) > 255 {
		return nil, fmt.Errorf("%w: nonce length %d", ErrInvalidSealedBlob, len(p.Nonce))
	}
	if len(p.Tag) != TagSize {
		return nil, fmt.Errorf("%w: tag length %d", ErrInvalidSealedBlob, len(p.Tag))
	}

	out := make([]byte, 0, payloadHeaderSize+len(p.Nonce)+len(p.Ciphertext)+TagSize)
	out = append(out, SealedPayloadV1, byte(algID), byte(len(p.Nonce)))
	out = append(out, p.Nonce...)
	out = append(out, p.Ciphertext...)
	out = append(out, p.Tag...)
	return out, nil
}

// Sealed returns ciphertext||tag, the form AEAD implementations consume.
func (p *SealedPayload) Sealed() []byte {
	out := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	out = append(out, p.Ciphertext...)
	return append(out, p.Tag...)
}

// ParseSealedPayload decodes a version 1 payload. The returned slices alias data.
func ParseSealedPayload(data []byte) (*SealedPayload, error) {
	if len(data) < minPayloadSize {
		return nil, fmt.Errorf("%w: payload too short", ErrInvalidSealedBlob)
	}
	if data[0] != SealedPayloadV1 {
		return nil, fmt.Errorf("%w: unknown payload version 0x%02x", ErrInvalidSealedBlob, data[0])
	}
	alg, err := AlgorithmID(data[1]).Algorithm()
	if err != nil {
		return nil, err
	}
	nonceLen := int(data[2])
	if nonceLen == 0 || len(data) < payloadHeaderSize+nonceLen+TagSize {
		return nil, fmt.Errorf("%w: truncated payload", ErrInvalidSealedBlob)
	}

	body := data[payloadHeaderSize+nonceLen:]
	return &SealedPayload{
		Algorithm:  alg,
		Nonce:      data[payloadHeaderSize : payloadHeaderSize+nonceLen],
		Ciphertext: body[:len(body)-TagSize],
		Tag:        body[len(body)-TagSize:],
	}, nil
}

// SealedBlob is the self-describing output of encrypting with a scope key: the
// wrapped data key travels with the ciphertext.
//
// Binary layout (version 1):
//
//	+------+-------------------+------------------+-------------------+--------------+
//	| 0x01 | kms key id (16B)  | wrapped len (u16)| wrapped data key  | data payload |
//	+------+-------------------+------------------+-------------------+--------------+
//
// Both the wrapped data key and the data payload are SealedPayloads.
type SealedBlob struct {
	KmsKeyID       uuid.UUID
	WrappedDataKey []byte
	Payload        []byte
}

// Marshal encodes the blob in the version 1 layout.
func (b *SealedBlob) Marshal() ([]byte, error) {
	if len(b.WrappedDataKey) == 0 || len(b.WrappedDataKey) > maxWrappedKeySize {
		return nil, fmt.Errorf("%w: wrapped key length %d", ErrInvalidSealedBlob, len(b.WrappedDataKey))
	}
	if len(b.Payload) < minPayloadSize {
		return nil, fmt.Errorf("%w: payload too short", ErrInvalidSealedBlob)
	}

	out := make([]byte, blobHeaderSize, blobHeaderSize+len(b.WrappedDataKey)+len(b.Payload))
	out[0] = SealedBlobV1
	copy(out[1:17], b.KmsKeyID[:])
	binary.BigEndian.PutUint16(out[17:19], uint16(len(b.WrappedDataKey)))
	out = append(out, b.WrappedDataKey...)
	return append(out, b.Payload...), nil
}

// ParseSealedBlob decodes a version 1 blob. The returned slices alias data.
func ParseSealedBlob(data []byte) (*SealedBlob, error) {
	if len(data) < blobHeaderSize {
		return nil, fmt.Errorf("%w: blob too short", ErrInvalidSealedBlob)
	}
	if data[0] != SealedBlobV1 {
		return nil, fmt.Errorf("%w: unknown blob version 0x%02x", ErrInvalidSealedBlob, data[0])
	}
	keyID, err := uuid.FromBytes(data[1:17])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSealedBlob, err)
	}
	wrappedLen := int(binary.BigEndian.Uint16(data[17:19]))
	if wrappedLen == 0 || len(data) < blobHeaderSize+wrappedLen+minPayloadSize {
		return nil, fmt.Errorf("%w: truncated blob", ErrInvalidSealedBlob)
	}

	return &SealedBlob{
		KmsKeyID:       keyID,
		WrappedDataKey: data[blobHeaderSize : blobHeaderSize+wrappedLen],
		Payload:        data[blobHeaderSize+wrappedLen:],
	}, nil
}

// SealedBlobKeyID returns the key id of a blob without parsing the rest.
func SealedBlobKeyID(data []byte) (uuid.UUID, error) {
	blob, err := ParseSealedBlob(data)
	if err != nil {
		return uuid.Nil, err
	}
	return blob.KmsKeyID, nil
}

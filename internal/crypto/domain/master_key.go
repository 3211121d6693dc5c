package domain

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// MasterKey is a root key held by the local custodian.
type MasterKey struct {
	ID  string
	Key []byte
}

// MasterKeyChain holds every configured master key and designates the one used for
// new wraps. Retired keys stay in the chain so organization keys wrapped by them
// remain readable.
type MasterKeyChain struct {
	activeID string
	keys     sync.Map
}

// NewMasterKeyChain creates an empty chain whose active key is activeID.
func NewMasterKeyChain(activeID string) *MasterKeyChain {
	return &MasterKeyChain{activeID: activeID}
}

// ActiveMasterKeyID returns the id of the key used for new wraps.
func (m *MasterKeyChain) ActiveMasterKeyID() string {
	return m.activeID
}

// Add stores a copy of key under id.
func (m *MasterKeyChain) Add(id string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: master key %s must be %d bytes, got %d", ErrInvalidKeySize, id, KeySize, len(key))
	}
	m.keys.Store(id, &MasterKey{ID: id, Key: append([]byte(nil), key...)})
	return nil
}

// Get returns the master key with the given id.
func (m *MasterKeyChain) Get(id string) (*MasterKey, bool) {
	if masterKey, ok := m.keys.Load(id); ok {
		return masterKey.(*MasterKey), ok
	}

	return nil, false
}

// Close zeroes every key and empties the chain.
func (m *MasterKeyChain) Close() {
	m.keys.Range(func(_, value any) bool {
		Zero(value.(*MasterKey).Key)
		return true
	})
	m.activeID = ""
	m.keys.Clear()
}

// ParseMasterKeys builds a chain from the MASTER_KEYS format "id1:base64,id2:base64".
//
// decode receives each base64-decoded value and returns the raw key; it is the
// identity for plaintext keys and a KMS decrypt for KMS-encrypted keys. The chain
// owns the returned slice.
func ParseMasterKeys(raw, activeID string, decode func(id string, value []byte) ([]byte, error)) (*MasterKeyChain, error) {
	if raw == "" {
		return nil, ErrMasterKeysNotSet
	}
	if activeID == "" {
		return nil, ErrActiveMasterKeyIDNotSet
	}

	mkc := NewMasterKeyChain(activeID)

	for part := range strings.SplitSeq(raw, ",") {
		p := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(p) != 2 || p[0] == "" {
			mkc.Close()
			return nil, fmt.Errorf("%w: %q", ErrInvalidMasterKeysFormat, part)
		}
		id := p[0]
		value, err := base64.StdEncoding.DecodeString(p[1])
		if err != nil {
			mkc.Close()
			return nil, fmt.Errorf("%w for %s: %v", ErrInvalidMasterKeyBase64, id, err)
		}
		key, err := decode(id, value)
		if err != nil {
			mkc.Close()
			return nil, fmt.Errorf("failed to decode master key %s: %w", id, err)
		}
		err = mkc.Add(id, key)
		Zero(key)
		if err != nil {
			mkc.Close()
			return nil, err
		}
	}

	if _, ok := mkc.Get(activeID); !ok {
		mkc.Close()
		return nil, fmt.Errorf("%w: ACTIVE_MASTER_KEY_ID=%s", ErrActiveMasterKeyNotFound, activeID)
	}

	return mkc, nil
}

// PlaintextMasterKey is the ParseMasterKeys decoder for unencrypted keys.
func PlaintextMasterKey(_ string, value []byte) ([]byte, error) {
	return value, nil
}

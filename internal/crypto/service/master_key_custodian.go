package service

import (
	"context"
	"fmt"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// MasterKeyCustodian wraps organization keys with the local master key chain.
//
// New wraps use the active master key; the reference stored with each
// organization key is the master key id, so keys wrapped before a master key
// rotation remain readable while the old master key stays in MASTER_KEYS.
type MasterKeyCustodian struct {
	chain  *cryptoDomain.MasterKeyChain
	cipher EnvelopeCipher
	alg    cryptoDomain.Algorithm
}

// NewMasterKeyCustodian creates a custodian over chain. The custodian owns chain
// and zeroes it on Close.
func NewMasterKeyCustodian(
	chain *cryptoDomain.MasterKeyChain,
	cipher EnvelopeCipher,
	alg cryptoDomain.Algorithm,
) *MasterKeyCustodian {
	return &MasterKeyCustodian{chain: chain, cipher: cipher, alg: alg}
}

// Wrap seals key under the active master key, bound to the master key id.
func (c *MasterKeyCustodian) Wrap(ctx context.Context, key []byte) (string, []byte, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, fmt.Errorf("%w: %v", cryptoDomain.ErrTransientProvider, err)
	}

	ref := c.chain.ActiveMasterKeyID()
	masterKey, ok := c.chain.Get(ref)
	if !ok {
		return "", nil, fmt.Errorf("%w: active master key %q", cryptoDomain.ErrKeyUnavailable, ref)
	}

	blob, err := c.cipher.Seal(masterKey.Key, c.alg, key, []byte(ref))
	if err != nil {
		return "", nil, err
	}
	return ref, blob, nil
}

// Unwrap opens blob with the master key named by ref.
func (c *MasterKeyCustodian) Unwrap(ctx context.Context, ref string, blob []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", cryptoDomain.ErrTransientProvider, err)
	}

	masterKey, ok := c.chain.Get(ref)
	if !ok {
		return nil, fmt.Errorf("%w: master key %q is not configured", cryptoDomain.ErrKeyUnavailable, ref)
	}
	return c.cipher.Open(masterKey.Key, blob, []byte(ref))
}

// Close zeroes the master key chain.
func (c *MasterKeyCustodian) Close() error {
	c.chain.Close()
	return nil
}

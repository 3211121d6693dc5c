package service

import (
	"context"
	"fmt"
	"time"

	"gocloud.dev/gcerrors"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
)

// KeeperCustodian delegates every root wrap and unwrap to an external KMS keeper.
//
// Each call is bounded by the configured timeout. Errors are classified by their
// gocloud error code: codes that cannot change on retry become ErrKeyUnavailable,
// everything else (deadlines, throttling, network failures) becomes
// ErrTransientProvider.
type KeeperCustodian struct {
	keeper  cryptoDomain.KMSKeeper
	ref     string
	timeout time.Duration
}

// NewKeeperCustodian creates a custodian over keeper. ref is stored with each
// wrapped organization key and must not carry key material (use the provider
// name, never a base64key:// URI).
func NewKeeperCustodian(keeper cryptoDomain.KMSKeeper, ref string, timeout time.Duration) *KeeperCustodian {
	return &KeeperCustodian{keeper: keeper, ref: ref, timeout: timeout}
}

// Wrap encrypts key with the keeper.
func (c *KeeperCustodian) Wrap(ctx context.Context, key []byte) (string, []byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	blob, err := c.keeper.Encrypt(ctx, key)
	if err != nil {
		return "", nil, classifyKeeperError(err)
	}
	return c.ref, blob, nil
}

// Unwrap decrypts blob with the keeper. Blobs wrapped under another reference are
// unavailable to this custodian.
func (c *KeeperCustodian) Unwrap(ctx context.Context, ref string, blob []byte) ([]byte, error) {
	if ref != c.ref {
		return nil, fmt.Errorf("%w: root key reference %q is not served by %q",
			cryptoDomain.ErrKeyUnavailable, ref, c.ref)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	key, err := c.keeper.Decrypt(ctx, blob)
	if err != nil {
		return nil, classifyKeeperError(err)
	}
	return key, nil
}

// Close closes the keeper.
func (c *KeeperCustodian) Close() error {
	return c.keeper.Close()
}

func (c *KeeperCustodian) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func classifyKeeperError(err error) error {
	return keeperError(gcerrors.Code(err), err)
}

func keeperError(code gcerrors.ErrorCode, err error) error {
	switch code {
	case gcerrors.NotFound,
		gcerrors.PermissionDenied,
		gcerrors.FailedPrecondition,
		gcerrors.InvalidArgument,
		gcerrors.Unimplemented:
		return fmt.Errorf("%w: %v", cryptoDomain.ErrKeyUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", cryptoDomain.ErrTransientProvider, err)
	}
}

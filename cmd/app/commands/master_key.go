package commands

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"time"

	cryptoDomain "github.com/allisson/envsafe/internal/crypto/domain"
	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
)

// masterKeySize is the size of a generated master key (AES-256 / ChaCha20).
const masterKeySize = 32

// RunCreateMasterKey generates a 32-byte master key and prints the MASTER_KEYS
// configuration for the master_key root custodian.
//
// With kmsProvider and kmsKeyURI the key is encrypted by the KMS before it is
// printed and the application decrypts it once at boot. Without them the key is
// printed in plaintext, which is only suitable for local development. If keyID
// is empty a default "master-key-YYYY-MM-DD" id is used.
func RunCreateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	keyID, kmsProvider, kmsKeyURI string,
) error {
	if (kmsProvider == "") != (kmsKeyURI == "") {
		return fmt.Errorf("--kms-provider and --kms-key-uri must be set together")
	}

	if keyID == "" {
		keyID = defaultMasterKeyID()
	}

	encodedKey, err := newEncodedMasterKey(ctx, kmsService, kmsKeyURI)
	if err != nil {
		return err
	}

	logger.Info("master key generated",
		slog.String("master_key_id", keyID),
		slog.Bool("kms_encrypted", kmsProvider != ""),
	)

	_, _ = fmt.Fprintln(writer, "# Master Key Configuration")
	_, _ = fmt.Fprintln(writer, "# Copy these environment variables to your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "ROOT_CUSTODIAN=\"master_key\"")
	if kmsProvider != "" {
		_, _ = fmt.Fprintf(writer, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
		_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	} else {
		_, _ = fmt.Fprintln(writer, "# WARNING: plaintext master key, use a KMS provider outside development")
	}
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s:%s\"\n", keyID, encodedKey)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)

	return nil
}

// defaultMasterKeyID returns the id used when none is given.
func defaultMasterKeyID() string {
	return fmt.Sprintf("master-key-%s", time.Now().Format("2006-01-02"))
}

// newEncodedMasterKey generates a master key and returns its MASTER_KEYS value:
// the base64 KMS ciphertext when kmsKeyURI is set, the base64 key otherwise.
// The plaintext key is zeroed before returning.
func newEncodedMasterKey(ctx context.Context, kmsService cryptoService.KMSService, kmsKeyURI string) (string, error) {
	masterKey := make([]byte, masterKeySize)
	defer cryptoDomain.Zero(masterKey)

	if _, err := rand.Read(masterKey); err != nil {
		return "", fmt.Errorf("failed to generate master key: %w", err)
	}

	if kmsKeyURI == "" {
		return base64.StdEncoding.EncodeToString(masterKey), nil
	}

	keeper, err := kmsService.OpenKeeper(ctx, kmsKeyURI)
	if err != nil {
		return "", fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	defer func() {
		_ = keeper.Close()
	}()

	ciphertext, err := keeper.Encrypt(ctx, masterKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt master key with KMS: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

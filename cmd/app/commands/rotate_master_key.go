package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	cryptoService "github.com/allisson/envsafe/internal/crypto/service"
)

// RunRotateMasterKey generates a new master key and prints a MASTER_KEYS value
// that keeps the existing keys and makes the new one active.
//
// Organization keys wrapped by an older master key stay readable while that key
// remains in MASTER_KEYS; running rotate-key for each organization re-wraps them
// under the new key, after which the old entry can be removed.
func RunRotateMasterKey(
	ctx context.Context,
	kmsService cryptoService.KMSService,
	logger *slog.Logger,
	writer io.Writer,
	keyID, kmsProvider, kmsKeyURI, existingMasterKeys, existingActiveKeyID string,
) error {
	if (kmsProvider == "") != (kmsKeyURI == "") {
		return fmt.Errorf("KMS_PROVIDER and KMS_KEY_URI must be set together")
	}
	if existingMasterKeys == "" {
		return fmt.Errorf("MASTER_KEYS is not set - cannot rotate without existing keys")
	}
	if existingActiveKeyID == "" {
		return fmt.Errorf("ACTIVE_MASTER_KEY_ID is not set")
	}

	if keyID == "" {
		keyID = defaultMasterKeyID()
	}
	for part := range strings.SplitSeq(existingMasterKeys, ",") {
		if id, _, _ := strings.Cut(strings.TrimSpace(part), ":"); id == keyID {
			return fmt.Errorf("master key id %q is already in MASTER_KEYS", keyID)
		}
	}

	encodedKey, err := newEncodedMasterKey(ctx, kmsService, kmsKeyURI)
	if err != nil {
		return err
	}

	// New key last, it becomes the active one
	newMasterKeys := fmt.Sprintf("%s,%s:%s", existingMasterKeys, keyID, encodedKey)

	logger.Info("master key rotated",
		slog.String("previous_master_key_id", existingActiveKeyID),
		slog.String("master_key_id", keyID),
	)

	_, _ = fmt.Fprintln(writer, "# Master Key Rotation")
	_, _ = fmt.Fprintln(writer, "# Update these environment variables in your .env file or secrets manager")
	_, _ = fmt.Fprintln(writer)
	if kmsProvider != "" {
		_, _ = fmt.Fprintf(writer, "KMS_PROVIDER=\"%s\"\n", kmsProvider)
		_, _ = fmt.Fprintf(writer, "KMS_KEY_URI=\"%s\"\n", kmsKeyURI)
	}
	_, _ = fmt.Fprintf(writer, "MASTER_KEYS=\"%s\"\n", newMasterKeys)
	_, _ = fmt.Fprintf(writer, "ACTIVE_MASTER_KEY_ID=\"%s\"\n", keyID)
	_, _ = fmt.Fprintln(writer)
	_, _ = fmt.Fprintln(writer, "# Rotation Workflow:")
	_, _ = fmt.Fprintln(writer, "# 1. Update the above environment variables")
	_, _ = fmt.Fprintln(writer, "# 2. Restart the application")
	_, _ = fmt.Fprintln(writer, "# 3. Rotate every organization key: app rotate-key --scope organization --id <org-id>")
	_, _ = fmt.Fprintf(writer,
		"# 4. After all organization keys rotated, remove %q from MASTER_KEYS\n",
		existingActiveKeyID,
	)

	return nil
}

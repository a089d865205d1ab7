package storageconfig

import (
	"encoding/base64"

	"github.com/gtank/cryptopasta"

	"github.com/cloudvault/vaultd/vaulterrs"
)

// Secret is the process-wide encryption secret: set at init, passed
// into the Service constructor, never mutated or read from a package
// global.
type Secret [32]byte

// encryptField authenticated-encrypts a secret config field's plaintext
// value under secret, returning a base64 string fit for config_json
// storage.
func encryptField(secret Secret, plaintext string) (string, error) {
	key := [32]byte(secret)
	ciphertext, err := cryptopasta.Encrypt([]byte(plaintext), &key)
	if err != nil {
		return "", vaulterrs.Driver.Wrap(err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptField reverses encryptField. A stale or rotated secret
// produces an error here, which is the documented "config present but
// unusable" symptom of rotating ENCRYPTION_SECRET.
func decryptField(secret Secret, stored string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", vaulterrs.Driver.Wrap(err)
	}
	key := [32]byte(secret)
	plaintext, err := cryptopasta.Decrypt(raw, &key)
	if err != nil {
		return "", vaulterrs.Driver.Wrap(err)
	}
	return string(plaintext), nil
}

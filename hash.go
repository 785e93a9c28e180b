package metacache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// shortHashLen is the length of the display form of a digest, matching the
// registry's AutoV2 convention.
const shortHashLen = 10

// fileSHA256 computes the SHA-256 digest of the file at path, streaming so
// multi-gigabyte weights files are never held in memory. Returns the full
// lowercase hex digest. Read failures wrap ErrFileError and must propagate:
// a hash cannot be meaningfully defaulted.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFileError, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("%w: reading %s: %v", ErrFileError, path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ShortHash returns the 10-character display prefix of a digest (the AutoV2
// form). Presentation only; the cache always indexes by the full digest.
func ShortHash(hash string) string {
	if len(hash) <= shortHashLen {
		return hash
	}
	return hash[:shortHashLen]
}

// verifyFileSHA256 computes the digest of the file at path and compares it to
// expectedHash. Returns nil on match, ErrHashMismatch otherwise.
func verifyFileSHA256(path, expectedHash string) error {
	actual, err := fileSHA256(path)
	if err != nil {
		return err
	}
	if actual != expectedHash {
		return fmt.Errorf("%w: got %s, want %s", ErrHashMismatch, ShortHash(actual), ShortHash(expectedHash))
	}
	return nil
}

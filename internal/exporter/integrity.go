package exporter

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrBundleCorrupt is returned when the stored records no longer match the
// checksum written with them
var ErrBundleCorrupt = stderrors.New("run bundle checksum mismatch")

// Checksum hashes the records and pooled records of b
func Checksum(b *Bundle) (string, error) {
	payload, err := json.Marshal(struct {
		Records interface{} `json:"records"`
		Pooled  interface{} `json:"pooled"`
	}{b.Records, b.Pooled})
	if err != nil {
		return "", fmt.Errorf("failed to encode records: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// verify checks b against its stored checksum. Bundles written without one
// pass.
func verify(b *Bundle) error {
	if b.Checksum == "" {
		return nil
	}
	got, err := Checksum(b)
	if err != nil {
		return err
	}
	if got != b.Checksum {
		return fmt.Errorf("%w: run %s", ErrBundleCorrupt, b.RunID)
	}
	return nil
}

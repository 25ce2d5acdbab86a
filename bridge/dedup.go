// Copyright © 2024 The pikelsp authors

package bridge

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Fingerprint returns a stable digest of method plus its normalized
// parameters. Normalization re-marshals through an untyped value so that
// two logically identical calls hash identically regardless of struct
// versus map construction or key insertion order (Go marshals map keys
// sorted). The fingerprint keys in-flight deduplication and doubles as a
// cache key for compile results.
func Fingerprint(method string, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", method, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", method, err)
	}
	canonical, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint %s: %w", method, err)
	}
	sum := sha256.Sum256(canonical)
	return method + ":" + hex.EncodeToString(sum[:16]), nil
}

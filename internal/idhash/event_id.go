package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(source|index|name)
// source is the operation id for local operations or the transaction
// signature for mirrored ones. Returns hex-encoded hash (64 characters).
func ComputeEventID(source string, index int, name string) string {
	data := fmt.Sprintf("%s|%d|%s", source, index, name)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Package randutil generates short identifiers for consumer tags and
// published message ids.
package randutil

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var fallbackSeq atomic.Uint32

// RandomSuffix returns 8 hex characters suitable for unique naming.
func RandomSuffix() string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		n := uint32(time.Now().UnixNano()) ^ fallbackSeq.Add(1)<<20
		return fmt.Sprintf("%08x", n)
	}
	return hex.EncodeToString(b[:])
}

package util

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID gera identificador ordenável usado como id de sessão.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(Now()), entropy).String()
}

// Now devolve o instante atual em UTC.
func Now() time.Time {
	return time.Now().UTC()
}

package domain

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

// NewULID returns a lexicographically sortable unique id.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewTxID returns the shared external id for the legs of one ledger event.
func NewTxID() string {
	return NewULID()
}

// NewReference returns a prefixed correlation reference, e.g. TRF_01HV....
func NewReference(prefix string) string {
	return prefix + "_" + NewULID()
}

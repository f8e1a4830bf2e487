/*
	Unique, time-ordered identifiers for scratch names: staged files on the
	medium and snapshot branches.

	IDs are ULIDs in their canonical Crockford base32 form, so they sort by
	creation time and are safe in both filenames and ref names.
*/
package guid

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const size = ulid.EncodedSize

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

func New() string {
	return At(time.Now())
}

// At is New with the timestamp part taken from t.
func At(t time.Time) string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Package surrogate derives deterministic, content-addressed surrogate keys
// for dimension and fact rows.
//
// A key is the SHA-256 digest of the ordered field values, rendered as
// lowercase hex. The caller must pass values in a fixed, documented order:
// changing the order or the stringification of a field changes every key
// derived from it and breaks joins against previously built tables.
//
// Each value is length-prefixed before hashing ("5:10100" for "10100"), so
// ("1", "23") and ("12", "3") hash differently even though their bare
// concatenations collide.
package surrogate

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	asterrors "github.com/Ramsey-B/aster/pkg/errors"
)

// KeyLength is the length of a rendered surrogate key in hex characters.
const KeyLength = sha256.Size * 2

// Key derives a surrogate key from one or more stringified field values.
//
// An empty value is rejected rather than hashed: a silently hashed empty
// placeholder would collide with a legitimately empty value elsewhere, which
// is the kind of bug that only surfaces months later as a bad join.
func Key(values ...string) (string, error) {
	if len(values) == 0 {
		return "", asterrors.NewBuildError("surrogate key requires at least one value")
	}

	h := sha256.New()
	for i, v := range values {
		if v == "" {
			return "", asterrors.NewBuildErrorf("surrogate key value at position %d is empty", i)
		}
		h.Write([]byte(strconv.Itoa(len(v))))
		h.Write([]byte{':'})
		h.Write([]byte(v))
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

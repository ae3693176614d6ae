// Package licensekey generates the opaque keys stamped on bound slots.
package licensekey

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Prefix marks engine-issued keys.
const Prefix = "LK-"

// Generate derives a key from the bind timestamp and the user id, salted with
// a random UUID so two binds in the same instant still differ. Keys look like
// LK-XXXXXXXX-XXXXXXXX-XXXXXXXX-XXXXXXXX.
func Generate(now time.Time, userID int64) string {
	h := sha256.New()
	h.Write([]byte(strconv.FormatInt(now.UnixNano(), 16)))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(userID, 10)))
	h.Write([]byte{':'})
	salt := uuid.New()
	h.Write(salt[:])

	sum := strings.ToUpper(hex.EncodeToString(h.Sum(nil))[:32])
	groups := make([]string, 0, 4)
	for i := 0; i < len(sum); i += 8 {
		groups = append(groups, sum[i:i+8])
	}
	return Prefix + strings.Join(groups, "-")
}

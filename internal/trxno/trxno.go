// Package trxno generates human-readable transaction numbers of the form
// TRX-YYYYMMDD-XXXXXX, where the suffix is three random bytes in upper hex.
// Uniqueness is enforced by the database, not here.
package trxno

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

func New(t time.Time) string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("TRX-%s-%06d", t.Format("20060102"), t.UnixNano()%1000000)
	}
	return fmt.Sprintf("TRX-%s-%s", t.Format("20060102"), strings.ToUpper(hex.EncodeToString(buf)))
}

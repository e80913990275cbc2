package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewBookingReference returns a human-readable reference like BKG-7NQ2X4FD.
// The alphabet omits easily-confused characters.
func NewBookingReference() string {
	b := make([]byte, 8)
	for i := range b {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(referenceAlphabet))))
		b[i] = referenceAlphabet[n.Int64()]
	}
	return "BKG-" + string(b)
}

// TicketNumber composes a deterministic per-ticket identifier from the
// booking reference, a 3-letter category code, a 2-letter tier code, a
// zero-padded sequence and a timestamp fragment. Uniqueness within a booking
// needs no central sequence allocator.
func TicketNumber(reference, categoryCode, tierCode string, seq int, issuedAt time.Time) string {
	cat := normalizeCode(categoryCode, 3, "GEN")
	tier := normalizeCode(tierCode, 2, "GA")
	return fmt.Sprintf("%s-%s%s-%03d-%d", reference, cat, tier, seq, issuedAt.Unix()%100000)
}

func normalizeCode(code string, width int, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = fallback
	}
	if len(code) > width {
		return code[:width]
	}
	for len(code) < width {
		code += "X"
	}
	return code
}

package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	SeatsPerRow  = 6
	CodeLength   = 6
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	seatPattern = regexp.MustCompile(`^[1-9][0-9]{0,3}[A-F]$`)
	codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)
)

// SeatForIndex maps the n-th allocation on a flight to a seat label:
// 0 -> 1A, 5 -> 1F, 6 -> 2A.
func SeatForIndex(n int) string {
	return fmt.Sprintf("%d%c", n/SeatsPerRow+1, rune('A'+n%SeatsPerRow))
}

// NextFreeSeat starts from the seat the active count points at and moves
// forward past seats still held, so a cancellation in the middle of the
// cabin never yields a seat that is already taken.
func NextFreeSeat(activeCount int, taken map[string]bool) string {
	for n := activeCount; ; n++ {
		seat := SeatForIndex(n)
		if !taken[seat] {
			return seat
		}
	}
}

func ValidSeat(seat string) bool {
	return seatPattern.MatchString(seat)
}

func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// GenerateCode returns a random reservation code of CodeLength characters
// from [A-Z0-9].
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate reservation code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

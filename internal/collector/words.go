package collector

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

const (
	letters      = "abcdefghijklmnopqrstuvwxyz"
	lettersMixed = letters + letters + "0123456789"
)

// RandomWord returns a short search term: a number, a word or a mix of both.
// Search engines return fairly random result pages for these.
func RandomWord() string {
	if rand.IntN(100) < 30 {
		if rand.IntN(100) < 30 {
			return strconv.Itoa(1 + rand.IntN(999))
		}
		return strconv.Itoa(1 + rand.IntN(999999))
	}

	charset := letters
	if rand.IntN(100) < 60 {
		charset = lettersMixed
	}
	n := 2 + rand.IntN(4)
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(charset[rand.IntN(len(charset))])
	}
	return b.String()
}

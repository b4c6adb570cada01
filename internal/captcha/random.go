package captcha

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultAlphabet is the 50-character set solutions and handle randomness
// are drawn from: ASCII letters with the lookalikes l and I removed, and
// no digits, so 0/O and 1/l/I confusions cannot happen.
const DefaultAlphabet = "abcdefghijkmnopqrstuvwxyz" + "ABCDEFGHJKLMNOPQRSTUVWXYZ"

// Generate returns an n-character string with every character drawn
// uniformly and independently from alphabet using crypto/rand. It keeps no
// state between calls; collisions are the store's problem, not this
// function's.
func Generate(alphabet string, n int) (string, error) {
	size := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("draw random index: %w", err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// newSolution draws a solution of length 4 or 5, chosen by a fair coin.
func newSolution(alphabet string) (string, error) {
	coin, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil {
		return "", fmt.Errorf("draw solution length: %w", err)
	}
	return Generate(alphabet, 4+int(coin.Int64()))
}

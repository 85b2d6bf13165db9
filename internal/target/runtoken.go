package target

import (
	"crypto/rand"
	"math/big"
)

const runTokenLength = 13

// NewRunToken generates the per-invocation token woven into restored
// resource names so repeated runs never collide
func NewRunToken() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, runTokenLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a fixed letter rather than abort a restore run.
			buf[i] = 'x'
			continue
		}
		buf[i] = letters[n.Int64()]
	}
	return string(buf)
}

package shortener

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const alphanumeric = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces candidate short codes of a requested length.
// Implementations only generate candidates; collision handling and the
// retry policy belong to the caller and must not change when the
// generator is swapped.
type Generator interface {
	Generate(length int) (string, error)
}

// RandomGenerator produces uniform random alphanumeric codes.
type RandomGenerator struct{}

func (RandomGenerator) Generate(length int) (string, error) {
	const op = "shortener.RandomGenerator.Generate"

	code, err := gonanoid.Generate(alphanumeric, length)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return code, nil
}

// HexGenerator produces codes from the hex digest of a time-and-randomness
// seed, yielding lowercase [0-9a-f] candidates.
type HexGenerator struct{}

func (HexGenerator) Generate(length int) (string, error) {
	const op = "shortener.HexGenerator.Generate"

	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%f", time.Now().UnixNano(), rand.Float64())))
	digest := hex.EncodeToString(sum[:])

	if length <= 0 || length > len(digest) {
		return "", fmt.Errorf("%s: invalid code length %d", op, length)
	}

	return digest[:length], nil
}

// New returns the generator registered under kind, defaulting to the
// random alphanumeric generator for unrecognized kinds.
func New(kind string) Generator {
	switch kind {
	case "hex":
		return HexGenerator{}
	default:
		return RandomGenerator{}
	}
}

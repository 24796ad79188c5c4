// Package credentials issues temporary passwords and hashes passwords with argon2id.
package credentials

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

const (
	// DefaultLength is used when no length is requested.
	DefaultLength = 12
	// MinLength is the shortest password that can hold one character of every class.
	MinLength = 8

	upperChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerChars  = "abcdefghijklmnopqrstuvwxyz"
	digitChars  = "0123456789"
	symbolChars = "!@#$%^&*()-_=+[]{}<>?"
	allChars    = upperChars + lowerChars + digitChars + symbolChars
)

// ErrTooShort is returned for lengths below MinLength.
var ErrTooShort = errors.New("password length must be at least 8")

// Generator produces temporary passwords from an injected random source.
type Generator struct {
	rand io.Reader
}

// NewGenerator returns a generator reading from source. A nil source uses
// crypto/rand.
func NewGenerator(source io.Reader) *Generator {
	if source == nil {
		source = rand.Reader
	}
	return &Generator{rand: source}
}

// Generate returns a password of the given length containing at least one
// uppercase letter, lowercase letter, digit and symbol. Positions are shuffled
// so the guaranteed characters are not at predictable offsets.
func (g *Generator) Generate(length int) (string, error) {
	if length < MinLength {
		return "", ErrTooShort
	}

	buf := make([]byte, 0, length)
	for _, class := range []string{upperChars, lowerChars, digitChars, symbolChars} {
		c, err := g.pick(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := g.pick(allChars)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates
	for i := len(buf) - 1; i > 0; i-- {
		j, err := g.intn(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

// GenerateDefault returns a password of DefaultLength.
func (g *Generator) GenerateDefault() (string, error) {
	return g.Generate(DefaultLength)
}

func (g *Generator) pick(alphabet string) (byte, error) {
	i, err := g.intn(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func (g *Generator) intn(n int) (int, error) {
	v, err := rand.Int(g.rand, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return int(v.Int64()), nil
}

package credentials

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func classes(s string) (upper, lower, digit, symbol bool) {
	for _, c := range s {
		switch {
		case strings.ContainsRune(upperChars, c):
			upper = true
		case strings.ContainsRune(lowerChars, c):
			lower = true
		case strings.ContainsRune(digitChars, c):
			digit = true
		case strings.ContainsRune(symbolChars, c):
			symbol = true
		}
	}
	return
}

func TestGenerate(t *testing.T) {
	g := NewGenerator(nil)

	t.Run("every class present across many trials", func(t *testing.T) {
		for i := 0; i < 1000; i++ {
			pw, err := g.Generate(12)
			require.NoError(t, err)
			require.Len(t, pw, 12)
			upper, lower, digit, symbol := classes(pw)
			require.True(t, upper && lower && digit && symbol, "missing class in %q", pw)
		}
	})

	t.Run("minimum length", func(t *testing.T) {
		for i := 0; i < 200; i++ {
			pw, err := g.Generate(MinLength)
			require.NoError(t, err)
			upper, lower, digit, symbol := classes(pw)
			require.True(t, upper && lower && digit && symbol)
		}
	})

	t.Run("short lengths rejected", func(t *testing.T) {
		for _, n := range []int{-1, 0, 4, 7} {
			_, err := g.Generate(n)
			assert.ErrorIs(t, err, ErrTooShort)
		}
	})

	t.Run("default length", func(t *testing.T) {
		pw, err := g.GenerateDefault()
		require.NoError(t, err)
		assert.Len(t, pw, DefaultLength)
	})

	t.Run("only alphabet characters", func(t *testing.T) {
		pw, err := g.Generate(64)
		require.NoError(t, err)
		for _, c := range pw {
			assert.True(t, strings.ContainsRune(allChars, c))
		}
	})
}

func TestGenerateRandomSourceFailure(t *testing.T) {
	g := NewGenerator(bytes.NewReader(nil))
	_, err := g.Generate(12)
	assert.Error(t, err)
}

func TestGenerateIsDeterministicForSource(t *testing.T) {
	seed := bytes.Repeat([]byte{0x5a, 0x13, 0xc7, 0x02}, 256)
	a, err := NewGenerator(bytes.NewReader(seed)).Generate(16)
	require.NoError(t, err)
	b, err := NewGenerator(bytes.NewReader(seed)).Generate(16)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func testHasher(t *testing.T) *Argon2Hasher {
	t.Helper()
	h, err := NewArgon2Hasher(Argon2Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	return h
}

func TestArgon2Hasher(t *testing.T) {
	h := testHasher(t)

	digest, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(digest, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("correct horse", digest)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong horse", digest)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, digest, other, "salt must differ")
}

func TestArgon2HasherRejectsMalformedDigest(t *testing.T) {
	h := testHasher(t)
	for _, digest := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$!!$a2V5",
	} {
		_, err := h.Verify("x", digest)
		assert.Error(t, err, digest)
	}
}

func TestNewArgon2HasherValidation(t *testing.T) {
	_, err := NewArgon2Hasher(Argon2Config{Memory: 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	assert.Error(t, err)
	_, err = NewArgon2Hasher(DefaultArgon2Config())
	assert.NoError(t, err)
}

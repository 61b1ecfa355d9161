package ticket

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// idAlphabet is the 68-symbol pool ticket ids are drawn from: letters,
// digits and a small set of symbols that survive copy-paste in chat clients.
const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_@#$!"

const (
	// DefaultIDPrefix makes ids recognizable as tickets at a glance.
	DefaultIDPrefix = "BV-"
	// DefaultIDLength is the random part; 68^8 makes collisions astronomically rare.
	DefaultIDLength = 8
	// DefaultMaxAttempts bounds the retry loop so a pathological store
	// cannot stall id generation forever.
	DefaultMaxAttempts = 100
)

// Generator produces collision-free ticket ids. Generation is pure: the
// caller inserts the id into the store itself.
type Generator struct {
	Prefix      string
	Length      int
	MaxAttempts int
}

// NewGenerator returns a generator with the default prefix, length and retry cap.
func NewGenerator() Generator {
	return Generator{
		Prefix:      DefaultIDPrefix,
		Length:      DefaultIDLength,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Next draws random ids until taken reports one as unused. It fails after
// MaxAttempts draws, which is unreachable under normal parameters.
func (g Generator) Next(taken func(id string) (bool, error)) (string, error) {
	length := g.Length
	if length <= 0 {
		length = DefaultIDLength
	}
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		id, err := g.draw(length)
		if err != nil {
			return "", err
		}
		used, err := taken(id)
		if err != nil {
			return "", fmt.Errorf("ticket id: collision check: %w", err)
		}
		if !used {
			return id, nil
		}
	}
	return "", fmt.Errorf("ticket id: no unique id after %d attempts", attempts)
}

// randRead is swappable in tests.
var randRead = rand.Read

// drawLimit is the largest multiple of the alphabet size that fits in a
// byte. Bytes at or above it are redrawn; reducing them modulo the alphabet
// would over-represent the first 256%len symbols.
const drawLimit = 256 - 256%len(idAlphabet)

func (g Generator) draw(length int) (string, error) {
	var b strings.Builder
	b.WriteString(g.Prefix)
	for remaining := length; remaining > 0; {
		buf := make([]byte, remaining)
		if _, err := randRead(buf); err != nil {
			return "", fmt.Errorf("ticket id: random source: %w", err)
		}
		for _, c := range buf {
			if int(c) >= drawLimit {
				continue
			}
			b.WriteByte(idAlphabet[int(c)%len(idAlphabet)])
			remaining--
		}
	}
	return b.String(), nil
}

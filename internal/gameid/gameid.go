// Package gameid generates the prefixed identifiers used across the
// arena: agents ("agt_..."), tables ("tbl_...") and hands ("hand_...").
// The payload is a UUIDv7 encoded as 26 characters of Crockford base32,
// so ids sort roughly by creation time in the store.
package gameid

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Kind distinguishes the entity an id names.
type Kind string

const (
	KindAgent Kind = "agt"
	KindTable Kind = "tbl"
	KindHand  Kind = "hand"
)

// RandSource interface for dependency injection of randomness
type RandSource interface {
	Intn(n int) int
}

// Generator handles id generation with configurable randomness
type Generator struct {
	randSource RandSource
}

// NewGenerator creates a new generator with optional RandSource
func NewGenerator(randSource RandSource) *Generator {
	return &Generator{randSource: randSource}
}

// New creates a new prefixed id for the given kind.
func New(kind Kind) string {
	return NewGenerator(nil).New(kind)
}

// New creates a new prefixed id using the generator's RandSource.
func (g *Generator) New(kind Kind) string {
	uuid := g.generateUUIDv7()
	return string(kind) + "_" + encodeBase32(uuid)
}

// generateUUIDv7 creates a 128-bit UUIDv7
func (g *Generator) generateUUIDv7() [16]byte {
	var uuid [16]byte

	// 48-bit millisecond timestamp, then version/variant bits over random data.
	now := time.Now().UnixMilli()
	uuid[0] = byte(now >> 40)
	uuid[1] = byte(now >> 32)
	uuid[2] = byte(now >> 24)
	uuid[3] = byte(now >> 16)
	uuid[4] = byte(now >> 8)
	uuid[5] = byte(now)

	if g.randSource != nil {
		// Deterministic ids for tests
		for i := 6; i < 16; i++ {
			uuid[i] = byte(g.randSource.Intn(256))
		}
	} else {
		if _, err := rand.Read(uuid[6:]); err != nil {
			panic("failed to generate random bytes: " + err.Error())
		}
	}

	uuid[6] = (uuid[6] & 0x0f) | 0x70
	uuid[8] = (uuid[8] & 0x3f) | 0x80

	return uuid
}

// encodeBase32 encodes a 128-bit UUID as a 26-character base32 string
func encodeBase32(data [16]byte) string {
	result := make([]byte, 26)

	for i := 0; i < 26; i++ {
		bitOffset := i * 5
		byteIndex := bitOffset / 8
		bitIndex := bitOffset % 8

		var value uint8
		if byteIndex < 16 {
			if bitIndex <= 3 {
				value = (data[byteIndex] >> (3 - bitIndex)) & 0x1f
			} else {
				value = (data[byteIndex] << (bitIndex - 3)) & 0x1f
				if byteIndex+1 < 16 {
					value |= data[byteIndex+1] >> (11 - bitIndex)
				}
			}
		}

		result[i] = alphabet[value]
	}

	return string(result)
}

// Validate checks that an id carries the expected prefix and a well-formed payload.
func Validate(kind Kind, id string) error {
	prefix := string(kind) + "_"
	if !strings.HasPrefix(id, prefix) {
		return fmt.Errorf("id %q must start with %q", id, prefix)
	}

	payload := strings.TrimPrefix(id, prefix)
	if len(payload) != 26 {
		return fmt.Errorf("id payload must be exactly 26 characters, got %d", len(payload))
	}

	// First character must not exceed 7 so the payload fits in 128 bits.
	if payload[0] > '7' {
		return fmt.Errorf("id payload first character must be 0-7, got %c", payload[0])
	}

	for i, char := range payload {
		if !strings.ContainsRune(alphabet, char) {
			return fmt.Errorf("invalid character %c at position %d", char, i)
		}
	}

	return nil
}

package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrNonceExhausted is returned by ChunkNonceGenerator.Next after the last chunk.
var ErrNonceExhausted = errors.New("chunk nonce requested past the last chunk")

var now = time.Now

// NextGeneralNonce returns a nonce whose first 4 bytes are the low 32 bits of
// the current unix time in milliseconds (big-endian) and the rest is random.
// The timestamp prefix alone does not repeat for ~49.7 days.
func NextGeneralNonce() ([NonceSize]byte, error) {
	var nonce [NonceSize]byte
	binary.BigEndian.PutUint32(nonce[:4], uint32(now().UnixMilli()))
	if _, err := rand.Read(nonce[4:]); err != nil {
		return nonce, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// ChunkNonceGenerator produces per-chunk nonces for one file transfer.
//
// Layout: byte 0 is the last-chunk flag, bytes 1-4 the big-endian chunk counter,
// bytes 5-23 a seed tail that stays the same for the whole file. The tail is
// reused on purpose: uniqueness comes from counter+flag, and a resumed transfer
// must produce exactly the nonces of an uninterrupted one.
type ChunkNonceGenerator struct {
	nonce      [NonceSize]byte
	chunkID    uint32
	maxChunkID uint32
	eof        bool
}

// NewChunkNonceGenerator starts at startChunkID. A nil seed is replaced with
// random bytes; otherwise it must be NonceSize long (only bytes 5-23 matter).
func NewChunkNonceGenerator(startChunkID, maxChunkID uint32, seed []byte) (*ChunkNonceGenerator, error) {
	if startChunkID > maxChunkID {
		return nil, fmt.Errorf("start chunk %d is past max chunk %d", startChunkID, maxChunkID)
	}

	g := &ChunkNonceGenerator{chunkID: startChunkID, maxChunkID: maxChunkID}
	if seed == nil {
		if _, err := rand.Read(g.nonce[:]); err != nil {
			return nil, fmt.Errorf("failed to generate nonce seed: %w", err)
		}
	} else {
		if len(seed) != NonceSize {
			return nil, fmt.Errorf("nonce seed must be %d bytes, got %d", NonceSize, len(seed))
		}
		copy(g.nonce[:], seed)
	}
	return g, nil
}

// Next writes the flag and counter into the shared nonce and returns a copy.
func (g *ChunkNonceGenerator) Next(isLast bool) ([NonceSize]byte, error) {
	if g.eof || g.chunkID > g.maxChunkID {
		return [NonceSize]byte{}, ErrNonceExhausted
	}

	g.nonce[0] = 0
	if isLast {
		g.nonce[0] = 1
	}
	binary.BigEndian.PutUint32(g.nonce[1:5], g.chunkID)

	g.chunkID++
	if isLast {
		g.eof = true
	}
	return g.nonce, nil
}

// ChunkID is the counter the next call to Next will use.
func (g *ChunkNonceGenerator) ChunkID() uint32 {
	return g.chunkID
}

// Seed returns a copy of the current nonce bytes.
func (g *ChunkNonceGenerator) Seed() []byte {
	seed := make([]byte, NonceSize)
	copy(seed, g.nonce[:])
	return seed
}

// NewNonceSeed returns random bytes for NewChunkNonceGenerator. The seed is
// stored alongside the file key so a later download derives the same nonces.
func NewNonceSeed() ([]byte, error) {
	seed := make([]byte, NonceSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("failed to generate nonce seed: %w", err)
	}
	return seed, nil
}
